package search

import (
	"strings"
	"unicode"
)

// Normalize lower-cases a string and strips every character outside
// [a-z0-9\s]. Candidate text and queries go through the same
// normalization so matching is symmetric.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', unicode.IsSpace(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Tokenize splits a normalized form of s into non-empty tokens.
func Tokenize(s string) []string {
	return strings.Fields(Normalize(s))
}

// matchesAll reports whether every token is a substring of the
// normalized candidate text (AND semantics).
func matchesAll(normalized string, tokens []string) bool {
	for _, tok := range tokens {
		if !strings.Contains(normalized, tok) {
			return false
		}
	}
	return true
}

// stripArchiveExt removes a trailing .zip or .7z for display.
func stripArchiveExt(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return name[:len(name)-4]
	case strings.HasSuffix(lower, ".7z"):
		return name[:len(name)-3]
	}
	return name
}
