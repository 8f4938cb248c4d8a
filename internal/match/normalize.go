package match

import "strings"

// Normalize lowercases a label, strips punctuation and collapses whitespace.
// Both the rule matcher and the embedding cache key on normalized labels, so
// the rules here must stay deterministic.
func Normalize(label string) string {
	var b strings.Builder
	b.Grow(len(label))

	lastSpace := true
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}

	return strings.TrimSpace(b.String())
}

// Tokenize splits a normalized label into tokens.
func Tokenize(label string) []string {
	norm := Normalize(label)
	if norm == "" {
		return nil
	}
	return strings.Fields(norm)
}
