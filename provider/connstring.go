package provider

import (
	"net/url"
	"strings"
)

const mask = "*****"

// passwordKeys are the key=value names that carry a secret.
var passwordKeys = map[string]bool{
	"password": true,
	"pwd":      true,
	"pass":     true,
}

// ParseConnectionString splits a key=value connection string into a map with
// lower-cased keys. Strings containing ';' are split on ';' only, so keys such
// as "Data Source" keep their spaces. Other strings are read as libpq keyword
// lists separated by whitespace, with single-quoted values. URL style strings
// return nil.
func ParseConnectionString(s string) map[string]string {
	if strings.Contains(s, "://") {
		return nil
	}
	out := map[string]string{}
	for _, sp := range pairSpans(s) {
		k, v, ok := strings.Cut(s[sp[0]:sp[1]], "=")
		if !ok {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(k))] = strings.Trim(strings.TrimSpace(v), "'")
	}
	return out
}

// MaskPassword hides the password in URL, key=value and MySQL DSN style
// connection strings.
func MaskPassword(s string) string {
	if s == "" {
		return s
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err == nil && u.User != nil {
			if _, has := u.User.Password(); has {
				u.User = url.UserPassword(u.User.Username(), mask)
				// url.String escapes the mask.
				return strings.Replace(u.String(), url.QueryEscape(mask), mask, 1)
			}
		}
		return maskQuery(s)
	}

	// user:password@tcp(host)/db, where the password may contain '@'.
	head := s
	if slash := strings.LastIndex(s, "/"); slash >= 0 {
		head = s[:slash]
	}
	if at := strings.LastIndex(head, "@"); at > 0 {
		colon := strings.Index(s[:at], ":")
		user := s[:at]
		if colon >= 0 {
			user = s[:colon]
		}
		if !strings.ContainsAny(user, "=; \t") {
			if colon < 0 {
				return s
			}
			return s[:colon+1] + mask + s[at:]
		}
	}

	return maskPairs(s)
}

func maskPairs(s string) string {
	var b strings.Builder
	last := 0
	for _, sp := range pairSpans(s) {
		k, _, ok := strings.Cut(s[sp[0]:sp[1]], "=")
		if !ok || !passwordKeys[strings.ToLower(strings.TrimSpace(k))] {
			continue
		}
		b.WriteString(s[last:sp[0]])
		b.WriteString(k + "=" + mask)
		last = sp[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

// pairSpans returns the [start, end) offsets of each pair in s.
func pairSpans(s string) [][2]int {
	semi := strings.Contains(s, ";")
	var (
		spans  [][2]int
		start  int
		quoted bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case !semi && c == '\'':
			quoted = !quoted
		case quoted:
		case semi && c == ';', !semi && (c == ' ' || c == '\t' || c == '\n'):
			if i > start {
				spans = append(spans, [2]int{start, i})
			}
			start = i + 1
		}
	}
	if start < len(s) {
		spans = append(spans, [2]int{start, len(s)})
	}
	return spans
}

func maskQuery(s string) string {
	base, query, ok := strings.Cut(s, "?")
	if !ok {
		return s
	}
	return base + "?" + strings.ReplaceAll(maskPairs(strings.ReplaceAll(query, "&", ";")), ";", "&")
}
