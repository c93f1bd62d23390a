// Package pattern compiles trigger patterns into segment sequences and
// matches them against normalized input tokens.
package pattern

import (
	"errors"
	"fmt"
	"unicode"
)

// DefaultMaxSteps is the step budget used when Match is given none.
const DefaultMaxSteps = 10000

// ErrMatchTimeout is returned when a match exhausts its step budget.
var ErrMatchTimeout = errors.New("pattern: match step budget exhausted")

// Kind is the type of a pattern segment.
type Kind uint8

const (
	KindLiteral Kind = iota
	KindWildcard
	KindAlternation
)

func (k Kind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindWildcard:
		return "wildcard"
	case KindAlternation:
		return "alternation"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Class restricts what a wildcard accepts.
type Class uint8

const (
	// AnyTokens is "*": one or more tokens, or zero when optional.
	AnyTokens Class = iota
	// NumericToken is "#": exactly one all-digit token.
	NumericToken
	// AlphaToken is "_": exactly one token without digits.
	AlphaToken
)

func (c Class) accepts(tok string) bool {
	switch c {
	case NumericToken:
		for _, r := range tok {
			if !unicode.IsDigit(r) {
				return false
			}
		}
		return tok != ""
	case AlphaToken:
		for _, r := range tok {
			if !unicode.IsLetter(r) && r != '\'' {
				return false
			}
		}
		return tok != ""
	}
	return true
}

// Segment is one element of a compiled pattern.
type Segment struct {
	Kind Kind
	// Word is the literal token for KindLiteral.
	Word string
	// Class applies to KindWildcard.
	Class Class
	// Choices are the token sequences of an alternation, longest first.
	Choices [][]string
	// Array names the array an alternation was expanded from.
	Array    string
	Optional bool
	Capture  bool
	// Slot is the capture index, or -1.
	Slot int
}

// minTokens is the fewest input tokens this segment can consume.
func (s *Segment) minTokens() int {
	if s.Optional {
		return 0
	}
	switch s.Kind {
	case KindAlternation:
		min := -1
		for _, c := range s.Choices {
			if min < 0 || len(c) < min {
				min = len(c)
			}
		}
		if min < 0 {
			return 0
		}
		return min
	default:
		return 1
	}
}

// Pattern is an immutable compiled trigger pattern.
type Pattern struct {
	Source   string
	Priority int
	Segments []Segment
	// Captures is the number of capture slots.
	Captures int

	// Ranking data.
	Literals      int
	Wildcards     int
	OpenWildcards int
}

func (p *Pattern) String() string {
	return p.Source
}

// CompileError reports a malformed pattern.
type CompileError struct {
	Source string
	Reason string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("pattern %q: %s", e.Source, e.Reason)
}
