// Package lexical converts between XML Schema lexical values and Go values.
//
// Every builtin primitive family has a Parse function accepting the raw
// lexical text and a Print function producing the canonical form. Parse
// functions apply the whitespace facet of their type themselves, so callers
// may pass text exactly as it appeared in the document.
package lexical

import "strings"

// Whitespace is the whiteSpace facet of a simple type.
type Whitespace int

const (
	// Preserve leaves the value untouched.
	Preserve Whitespace = iota
	// Replace turns every tab, newline and carriage return into a space.
	Replace
	// Collapse replaces, then trims and folds runs of spaces into one.
	Collapse
)

// Normalize applies the whitespace facet to s. It returns s unchanged
// when no change is needed.
func Normalize(ws Whitespace, s string) string {
	switch ws {
	case Replace:
		return replace(s)
	case Collapse:
		return collapse(s)
	default:
		return s
	}
}

// IsSpace reports whether b is XML whitespace.
func IsSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

// Fields splits s around runs of XML whitespace.
func Fields(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r < 0x80 && IsSpace(byte(r))
	})
}

func replace(s string) string {
	if !strings.ContainsAny(s, "\t\n\r") {
		return s
	}
	b := []byte(s)
	for i, c := range b {
		if IsSpace(c) {
			b[i] = ' '
		}
	}
	return string(b)
}

func collapse(s string) string {
	if !needsCollapse(s) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	pending := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if IsSpace(c) {
			pending = true
			continue
		}
		if pending && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		pending = false
		sb.WriteByte(c)
	}
	return sb.String()
}

func needsCollapse(s string) bool {
	if s == "" {
		return false
	}
	if IsSpace(s[0]) || IsSpace(s[len(s)-1]) {
		return true
	}
	return strings.ContainsAny(s, "\t\n\r") || strings.Contains(s, "  ")
}
