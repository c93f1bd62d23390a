// Package normalize turns raw user text into the canonical form that
// trigger patterns are matched against.
package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalizer runs the input pipeline: lowercase and trim, substitutions,
// punctuation stripping, whitespace collapsing. Each stage feeds the next
// and none is re-entered.
type Normalizer struct {
	subs *Substituter
}

// New creates a normalizer. A nil substituter skips the substitution stage.
func New(subs *Substituter) *Normalizer {
	if subs == nil {
		subs = NewSubstituter(nil)
	}
	return &Normalizer{subs: subs}
}

// Normalize never fails; text no stage recognizes passes through.
func (n *Normalizer) Normalize(raw string) string {
	text := Lower(raw)
	text = n.subs.Apply(text)
	text = StripPunctuation(text)
	return CollapseSpace(text)
}

// Lower lowercases, trims and folds curly apostrophes.
func Lower(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("’", "'", "‘", "'").Replace(s)
}

// StripPunctuation replaces every rune other than letters, digits and
// spaces with a space. Apostrophes survive only between two letters.
func StripPunctuation(s string) string {
	var out strings.Builder
	out.Grow(len(s))
	for i, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			out.WriteRune(r)
		case r == '\'':
			if letterBefore(s, i) && letterAfter(s, i+1) {
				out.WriteRune(r)
			} else {
				out.WriteByte(' ')
			}
		default:
			out.WriteByte(' ')
		}
	}
	return out.String()
}

// CollapseSpace trims and joins fields with single spaces.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Tokens splits normalized text into match tokens.
func Tokens(s string) []string {
	return strings.Fields(s)
}

func letterBefore(s string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return unicode.IsLetter(r)
}

func letterAfter(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return unicode.IsLetter(r)
}
