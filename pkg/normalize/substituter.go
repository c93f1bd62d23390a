package normalize

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"

	"github.com/voicetyped/rivebot/pkg/lexicon"
)

// Substituter rewrites whole-word occurrences of a rule table in a single
// left-to-right pass. At every position the longest rule that ends on a
// word boundary wins; replaced text is never scanned again in the same pass.
type Substituter struct {
	ac           ahocorasick.AhoCorasick
	replacements []string
}

// span is one boundary-aligned rule occurrence.
type span struct {
	start, end, rule int
}

// NewSubstituter builds a substituter from rules in declaration order.
// Rules with an empty match are ignored.
func NewSubstituter(rules []lexicon.Rule) *Substituter {
	s := &Substituter{}
	patterns := make([]string, 0, len(rules))
	for _, r := range rules {
		m := strings.TrimSpace(r.Match)
		if m == "" {
			continue
		}
		patterns = append(patterns, strings.ToLower(m))
		s.replacements = append(s.replacements, r.Replacement)
	}
	if len(patterns) == 0 {
		return s
	}

	// IterOverlapping requires StandardMatch.
	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: true,
		MatchOnlyWholeWords:  false,
		MatchKind:            ahocorasick.StandardMatch,
		DFA:                  false,
	})
	s.ac = builder.Build(patterns)
	return s
}

// Len returns the number of active rules.
func (s *Substituter) Len() int {
	return len(s.replacements)
}

// Apply returns text with every matching rule replaced.
func (s *Substituter) Apply(text string) string {
	if len(s.replacements) == 0 || text == "" {
		return text
	}

	spans := s.find(text)
	if len(spans) == 0 {
		return text
	}

	var out strings.Builder
	out.Grow(len(text))
	last := 0
	for _, sp := range spans {
		if sp.start < last {
			continue
		}
		out.WriteString(text[last:sp.start])
		out.WriteString(s.replacements[sp.rule])
		last = sp.end
	}
	out.WriteString(text[last:])
	return out.String()
}

// find lists the boundary-aligned occurrences ordered by start, then
// longest first, then declaration order.
func (s *Substituter) find(text string) []span {
	var spans []span
	iter := s.ac.IterOverlapping(text)
	for m := iter.Next(); m != nil; m = iter.Next() {
		if onBoundary(text, m.Start(), m.End()) {
			spans = append(spans, span{start: m.Start(), end: m.End(), rule: m.Pattern()})
		}
	}
	sort.Slice(spans, func(i, j int) bool {
		a, b := spans[i], spans[j]
		if a.start != b.start {
			return a.start < b.start
		}
		if a.end != b.end {
			return a.end > b.end
		}
		return a.rule < b.rule
	})
	return spans
}

// onBoundary reports whether text[start:end] is not glued to a letter or
// digit on either side.
func onBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
