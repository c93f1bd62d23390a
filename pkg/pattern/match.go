package pattern

import "strings"

// Match reports whether the pattern consumes exactly tokens. Captures are
// returned in slot order; an absent optional wildcard captures "".
// Every attempted segment extent spends one step of budget; a budget of
// zero or less means DefaultMaxSteps.
func (p *Pattern) Match(tokens []string, budget int) ([]string, bool, error) {
	if budget <= 0 {
		budget = DefaultMaxSteps
	}
	m := &matcher{
		segs:   p.Segments,
		tokens: tokens,
		budget: budget,
		caps:   make([]string, p.Captures),
		tail:   make([]int, len(p.Segments)+1),
	}
	for i := len(p.Segments) - 1; i >= 0; i-- {
		m.tail[i] = m.tail[i+1] + p.Segments[i].minTokens()
	}

	ok, err := m.at(0, 0)
	if err != nil || !ok {
		return nil, false, err
	}
	return m.caps, true, nil
}

type matcher struct {
	segs   []Segment
	tokens []string
	budget int
	steps  int
	caps   []string
	// tail[i] is the minimum number of tokens segs[i:] need.
	tail []int
}

func (m *matcher) spend() error {
	m.steps++
	if m.steps > m.budget {
		return ErrMatchTimeout
	}
	return nil
}

func (m *matcher) capture(seg *Segment, value string) {
	if seg.Slot >= 0 {
		m.caps[seg.Slot] = value
	}
}

func (m *matcher) at(si, ti int) (bool, error) {
	if si == len(m.segs) {
		return ti == len(m.tokens), nil
	}
	if len(m.tokens)-ti < m.tail[si] {
		return false, nil
	}

	seg := &m.segs[si]
	switch seg.Kind {
	case KindLiteral:
		if err := m.spend(); err != nil {
			return false, err
		}
		if m.tokens[ti] != seg.Word {
			return false, nil
		}
		return m.at(si+1, ti+1)
	case KindWildcard:
		return m.wildcard(seg, si, ti)
	case KindAlternation:
		return m.alternation(seg, si, ti)
	}
	return false, nil
}

func (m *matcher) wildcard(seg *Segment, si, ti int) (bool, error) {
	lo, hi := 1, 1
	if seg.Class == AnyTokens {
		if seg.Optional {
			lo = 0
		}
		hi = len(m.tokens) - ti - m.tail[si+1]
	}

	for n := hi; n >= lo; n-- {
		if err := m.spend(); err != nil {
			return false, err
		}
		if seg.Class != AnyTokens && !seg.Class.accepts(m.tokens[ti]) {
			continue
		}
		m.capture(seg, strings.Join(m.tokens[ti:ti+n], " "))
		ok, err := m.at(si+1, ti+n)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (m *matcher) alternation(seg *Segment, si, ti int) (bool, error) {
	rest := m.tokens[ti:]
	for _, choice := range seg.Choices {
		if err := m.spend(); err != nil {
			return false, err
		}
		if !hasPrefix(rest, choice) {
			continue
		}
		m.capture(seg, strings.Join(choice, " "))
		ok, err := m.at(si+1, ti+len(choice))
		if err != nil || ok {
			return ok, err
		}
	}

	if !seg.Optional {
		return false, nil
	}
	if err := m.spend(); err != nil {
		return false, err
	}
	m.capture(seg, "")
	return m.at(si+1, ti)
}

func hasPrefix(tokens, prefix []string) bool {
	if len(prefix) > len(tokens) {
		return false
	}
	for i, t := range prefix {
		if tokens[i] != t {
			return false
		}
	}
	return true
}
