package command

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

func itoa(n int) string { return strconv.Itoa(n) }

// rewriteNamed replaces @name and :name tokens with the dialect's positional
// placeholders, in order of appearance. It returns the rewritten text and
// the token names in the same order. Quoted strings, comments, PostgreSQL
// dollar-quoted blocks, :: casts and @@ system variables are left alone.
func rewriteNamed(query string, d Dialect) (string, []string, error) {
	var (
		b     strings.Builder
		names []string
	)
	b.Grow(len(query) + 16)

	i := 0
	for i < len(query) {
		r, w := utf8.DecodeRuneInString(query[i:])
		switch r {
		case '\'', '"', '`':
			j, err := skipQuoted(query, i+w, byte(r))
			if err != nil {
				return "", nil, err
			}
			b.WriteString(query[i:j])
			i = j
			continue
		case '-':
			if strings.HasPrefix(query[i:], "--") {
				j := skipLineComment(query, i+2)
				b.WriteString(query[i:j])
				i = j
				continue
			}
		case '/':
			if strings.HasPrefix(query[i:], "/*") {
				j, err := skipBlockComment(query, i+2)
				if err != nil {
					return "", nil, err
				}
				b.WriteString(query[i:j])
				i = j
				continue
			}
		case '$':
			if j, ok, err := skipDollarQuoted(query, i); err != nil {
				return "", nil, err
			} else if ok {
				b.WriteString(query[i:j])
				i = j
				continue
			}
		case ':', '@':
			if i+1 < len(query) && query[i+1] == byte(r) {
				b.WriteString(query[i : i+2])
				i += 2
				continue
			}
			name, end := parseIdent(query, i+1)
			if name != "" && !precededByIdent(query, i) {
				names = append(names, name)
				b.WriteString(d.placeholder(len(names)))
				i = end
				continue
			}
		}
		b.WriteString(query[i : i+w])
		i += w
	}
	return b.String(), names, nil
}

// precededByIdent guards against rewriting the tail of e.g. user@host.
func precededByIdent(s string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func skipQuoted(s string, i int, quote byte) (int, error) {
	for i < len(s) {
		c := s[i]
		i++
		if c == quote {
			if i < len(s) && s[i] == quote {
				i++
				continue
			}
			return i, nil
		}
	}
	return 0, fmt.Errorf("unterminated %c-quoted text", quote)
}

func skipLineComment(s string, i int) int {
	if j := strings.IndexByte(s[i:], '\n'); j >= 0 {
		return i + j + 1
	}
	return len(s)
}

func skipBlockComment(s string, i int) (int, error) {
	if j := strings.Index(s[i:], "*/"); j >= 0 {
		return i + j + 2, nil
	}
	return 0, fmt.Errorf("unterminated block comment")
}

// skipDollarQuoted handles $$...$$ and $tag$...$tag$.
func skipDollarQuoted(s string, i int) (int, bool, error) {
	j := i + 1
	for j < len(s) && isIdentRune(rune(s[j])) {
		j++
	}
	if j >= len(s) || s[j] != '$' {
		return 0, false, nil
	}
	// $1 style positional markers are not tags.
	if j > i+1 && unicode.IsDigit(rune(s[i+1])) {
		return 0, false, nil
	}
	tag := s[i : j+1]
	k := strings.Index(s[j+1:], tag)
	if k < 0 {
		return 0, true, fmt.Errorf("unterminated dollar-quoted string")
	}
	return j + 1 + k + len(tag), true, nil
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func parseIdent(s string, i int) (string, int) {
	start := i
	for i < len(s) {
		r, w := utf8.DecodeRuneInString(s[i:])
		if !isIdentRune(r) {
			break
		}
		i += w
	}
	if i == start {
		return "", i
	}
	// A leading digit is a positional marker such as :1, not a name.
	if first, _ := utf8.DecodeRuneInString(s[start:]); unicode.IsDigit(first) {
		return "", start
	}
	return s[start:i], i
}
