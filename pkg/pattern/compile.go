package pattern

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/voicetyped/rivebot/pkg/normalize"
)

// Resolver supplies the lexicon data a pattern may reference.
type Resolver interface {
	Array(name string) ([]string, bool)
	Var(name string) string
}

var (
	weightRe = regexp.MustCompile(`(?i)\{weight=([^}]*)\}`)
	botRe    = regexp.MustCompile(`(?i)<bot\s+([^>]+)>`)
)

// Compile parses source into a Pattern. It is pure: the same source and
// resolver state always give an identical result.
func Compile(source string, r Resolver) (*Pattern, error) {
	c := &compiler{
		p:        &Pattern{Source: source},
		resolver: r,
	}
	if err := c.run(); err != nil {
		return nil, err
	}
	return c.p, nil
}

type compiler struct {
	p        *Pattern
	resolver Resolver
	toks     []string
	pos      int
}

func (c *compiler) fail(format string, args ...any) error {
	return &CompileError{Source: c.p.Source, Reason: fmt.Sprintf(format, args...)}
}

func (c *compiler) run() error {
	text := strings.TrimSpace(c.p.Source)

	if m := weightRe.FindStringSubmatch(text); m != nil {
		w, err := strconv.Atoi(strings.TrimSpace(m[1]))
		if err != nil {
			return c.fail("invalid weight %q", m[1])
		}
		c.p.Priority = w
		text = weightRe.ReplaceAllString(text, " ")
	}

	text = botRe.ReplaceAllStringFunc(text, func(tag string) string {
		name := strings.TrimSpace(botRe.FindStringSubmatch(tag)[1])
		value := "undefined"
		if c.resolver != nil {
			value = c.resolver.Var(name)
		}
		return " " + normalize.CollapseSpace(normalize.StripPunctuation(normalize.Lower(value))) + " "
	})

	c.toks = lex(strings.ToLower(text))
	if len(c.toks) == 0 {
		return c.fail("empty pattern")
	}

	for c.pos < len(c.toks) {
		tok := c.toks[c.pos]
		c.pos++

		switch tok {
		case "(":
			if err := c.group("(", ")", false); err != nil {
				return err
			}
		case "[":
			if err := c.group("[", "]", true); err != nil {
				return err
			}
		case ")", "]":
			return c.fail("unexpected %q", tok)
		case "|":
			return c.fail(`unexpected "|" outside a group`)
		case "*":
			c.add(Segment{Kind: KindWildcard, Class: AnyTokens, Capture: true})
		case "#":
			c.add(Segment{Kind: KindWildcard, Class: NumericToken, Capture: true})
		case "_":
			c.add(Segment{Kind: KindWildcard, Class: AlphaToken, Capture: true})
		default:
			if strings.HasPrefix(tok, "@") {
				choices, err := c.array(tok[1:])
				if err != nil {
					return err
				}
				c.add(Segment{Kind: KindAlternation, Choices: choices, Array: tok[1:], Capture: true})
				continue
			}
			c.add(Segment{Kind: KindLiteral, Word: tok})
		}
	}
	return nil
}

// group parses the body of "(...)" or "[...]" after the opening token.
func (c *compiler) group(open, close string, optional bool) error {
	var (
		alts [][]string
		cur  []string
	)
	for {
		if c.pos >= len(c.toks) {
			return c.fail("unterminated %q", open)
		}
		tok := c.toks[c.pos]
		c.pos++

		switch tok {
		case close:
			if len(cur) == 0 {
				if len(alts) == 0 {
					return c.fail("empty group %q", open+close)
				}
				return c.fail("empty alternative in %q group", open+close)
			}
			alts = append(alts, cur)
			return c.finishGroup(alts, optional)
		case "|":
			if len(cur) == 0 {
				return c.fail("empty alternative in %q group", open+close)
			}
			alts = append(alts, cur)
			cur = nil
		case "(", "[":
			return c.fail("nested group %q", tok)
		case ")", "]":
			return c.fail("unexpected %q inside %q group", tok, open+close)
		default:
			cur = append(cur, tok)
		}
	}
}

func (c *compiler) finishGroup(alts [][]string, optional bool) error {
	if optional && len(alts) == 1 && len(alts[0]) == 1 && alts[0][0] == "*" {
		c.add(Segment{Kind: KindWildcard, Class: AnyTokens, Optional: true, Capture: true})
		return nil
	}

	var (
		choices [][]string
		array   string
	)
	for _, alt := range alts {
		if len(alt) == 1 && strings.HasPrefix(alt[0], "@") {
			members, err := c.array(alt[0][1:])
			if err != nil {
				return err
			}
			if len(alts) == 1 {
				array = alt[0][1:]
			}
			choices = append(choices, members...)
			continue
		}
		for _, tok := range alt {
			switch {
			case tok == "*" || tok == "#" || tok == "_":
				return c.fail("wildcard %q inside a group", tok)
			case strings.HasPrefix(tok, "@"):
				return c.fail("array %q must stand alone in a group", tok)
			}
		}
		choices = append(choices, alt)
	}

	sortChoices(choices)
	c.add(Segment{
		Kind:     KindAlternation,
		Choices:  choices,
		Array:    array,
		Optional: optional,
		Capture:  !optional,
	})
	return nil
}

// array expands a named array into token sequences.
func (c *compiler) array(name string) ([][]string, error) {
	if name == "" {
		return nil, c.fail("missing array name after \"@\"")
	}
	if c.resolver == nil {
		return nil, c.fail("undeclared array %q", name)
	}
	members, ok := c.resolver.Array(name)
	if !ok {
		return nil, c.fail("undeclared array %q", name)
	}
	var choices [][]string
	for _, m := range members {
		toks := normalize.Tokens(normalize.StripPunctuation(normalize.Lower(m)))
		if len(toks) > 0 {
			choices = append(choices, toks)
		}
	}
	if len(choices) == 0 {
		return nil, c.fail("array %q has no members", name)
	}
	sortChoices(choices)
	return choices, nil
}

func (c *compiler) add(seg Segment) {
	p := c.p
	seg.Slot = -1
	if seg.Capture {
		seg.Slot = p.Captures
		p.Captures++
	}

	switch seg.Kind {
	case KindLiteral:
		p.Literals++
	case KindAlternation:
		if !seg.Optional {
			p.Literals++
		}
	case KindWildcard:
		p.Wildcards++
		if seg.Class == AnyTokens {
			p.OpenWildcards++
		}
	}
	p.Segments = append(p.Segments, seg)
}

// sortChoices orders alternatives longest first, keeping declaration
// order among equal lengths.
func sortChoices(choices [][]string) {
	sort.SliceStable(choices, func(i, j int) bool {
		return len(choices[i]) > len(choices[j])
	})
}

func lex(text string) []string {
	var b strings.Builder
	b.Grow(len(text) + 8)
	for _, r := range text {
		switch r {
		case '(', ')', '[', ']', '|':
			b.WriteByte(' ')
			b.WriteRune(r)
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Fields(b.String())
}
