package cache

import (
	"reflect"
	"strings"
	"unicode"
)

// Namespace returns the snake_case name of T, used as the first segment of
// keys cached for T so they can be dropped together with RemovePrefix.
// Pointer, slice, array and map wrappers are unwrapped to the element type,
// and generic arguments lose their package path: Box[*models.User] becomes
// box_user.
func Namespace[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for {
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array, reflect.Map:
			t = t.Elem()
			continue
		}
		break
	}
	name := t.Name()
	if name == "" {
		name = t.String()
	}
	return snakeTypeName(name)
}

// snakeTypeName splits a reflected type name into lower-case words.
func snakeTypeName(name string) string {
	var words []string
	for _, part := range strings.FieldsFunc(name, func(r rune) bool {
		return r == '[' || r == ']' || r == ',' || r == '*' || unicode.IsSpace(r)
	}) {
		if i := strings.LastIndexAny(part, "/."); i >= 0 {
			part = part[i+1:]
		}
		for _, ident := range strings.FieldsFunc(part, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			for _, w := range camelWords(ident) {
				words = append(words, strings.ToLower(w))
			}
		}
	}
	return strings.Join(words, "_")
}

// camelWords splits HTTPServer into HTTP and Server, and Order2 into Order and 2.
func camelWords(ident string) []string {
	runes := []rune(ident)
	var words []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, r := runes[i-1], runes[i]
		nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		switch {
		case unicode.IsDigit(r) && !unicode.IsDigit(prev),
			unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)),
			unicode.IsUpper(r) && unicode.IsUpper(prev) && nextLower:
			words = append(words, string(runes[start:i]))
			start = i
		}
	}
	return append(words, string(runes[start:]))
}
