package script

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/voicetyped/rivebot/pkg/lexicon"
)

// Parse reads RiveScript text. Recoverable problems are collected in
// Script.Warnings; a *ParseError is returned only when the file cannot be
// used at all.
func Parse(name string, r io.Reader) (*Script, error) {
	p := &parser{
		s:      &Script{File: name},
		topic:  DefaultTopic,
		trig:   -1,
		concat: "",
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		p.line++
		if err := p.feed(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, &ParseError{File: name, Msg: fmt.Sprintf("read: %v", err)}
	}
	if p.object != nil {
		return nil, &ParseError{File: name, Line: p.object.Line, Msg: fmt.Sprintf("object %q is never closed", p.object.Name)}
	}
	if err := p.flush(); err != nil {
		return nil, err
	}
	return p.s, nil
}

// pending is a command whose "^" continuations may still follow.
type pending struct {
	cmd   byte
	text  string
	line  int
	conts []string
}

type parser struct {
	s    *Script
	line int

	inComment bool
	object    *Object
	body      []string

	topic  string
	trig   int
	concat string
	cur    *pending
}

func (p *parser) warn(line int, format string, args ...any) {
	p.s.Warnings = append(p.s.Warnings, Warning{File: p.s.File, Line: line, Msg: fmt.Sprintf(format, args...)})
}

func (p *parser) fail(line int, format string, args ...any) error {
	return &ParseError{File: p.s.File, Line: line, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) feed(raw string) error {
	if p.object != nil {
		if strings.HasPrefix(strings.TrimSpace(raw), "< object") {
			p.object.Body = strings.Join(p.body, "\n")
			p.s.Objects = append(p.s.Objects, *p.object)
			p.object, p.body = nil, nil
			return nil
		}
		p.body = append(p.body, raw)
		return nil
	}

	line := strings.TrimSpace(raw)
	if p.inComment {
		if strings.Contains(line, "*/") {
			p.inComment = false
		}
		return nil
	}
	if strings.HasPrefix(line, "/*") {
		if !strings.Contains(line, "*/") {
			p.inComment = true
		}
		return nil
	}
	if line == "" || strings.HasPrefix(line, "//") {
		return nil
	}
	line = stripInlineComment(line)

	cmd := line[0]
	text := strings.TrimSpace(line[1:])

	if cmd == '^' {
		if p.cur == nil {
			p.warn(p.line, "continuation with nothing to continue")
			return nil
		}
		p.cur.conts = append(p.cur.conts, text)
		return nil
	}

	if err := p.flush(); err != nil {
		return err
	}
	p.cur = &pending{cmd: cmd, text: text, line: p.line}

	// Block commands take effect immediately so an object body starts on
	// the next line.
	if cmd == '>' || cmd == '<' {
		cur := p.cur
		p.cur = nil
		return p.block(cur)
	}
	return nil
}

// stripInlineComment cuts " // comment" from the end of a line.
func stripInlineComment(line string) string {
	for i := 1; i+1 < len(line); i++ {
		if line[i] == '/' && line[i+1] == '/' && (line[i-1] == ' ' || line[i-1] == '\t') {
			return strings.TrimSpace(line[:i])
		}
	}
	return line
}

func (p *parser) flush() error {
	cur := p.cur
	p.cur = nil
	if cur == nil {
		return nil
	}

	switch cur.cmd {
	case '!':
		return p.definition(cur)
	case '+':
		p.addTrigger(p.join(cur), cur.line)
	case '-':
		if t := p.trigger(cur, "reply"); t != nil {
			t.Replies = append(t.Replies, p.join(cur))
		}
	case '%':
		if t := p.trigger(cur, "previous"); t != nil {
			t.Previous = p.join(cur)
		}
	case '*':
		if t := p.trigger(cur, "condition"); t != nil {
			t.Conditions = append(t.Conditions, p.join(cur))
		}
	case '@':
		if t := p.trigger(cur, "redirect"); t != nil {
			t.Redirect = p.join(cur)
		}
	default:
		p.warn(cur.line, "unknown command %q", string(cur.cmd))
	}
	return nil
}

func (p *parser) join(cur *pending) string {
	if len(cur.conts) == 0 {
		return cur.text
	}
	return cur.text + p.concat + strings.Join(cur.conts, p.concat)
}

func (p *parser) definition(cur *pending) error {
	head, value, ok := strings.Cut(cur.text, "=")
	if !ok {
		p.warn(cur.line, "definition %q has no \"=\"", cur.text)
		return nil
	}
	value = strings.TrimSpace(value)
	fields := strings.Fields(head)
	if len(fields) == 0 {
		p.warn(cur.line, "definition without a type")
		return nil
	}
	kind := fields[0]
	name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(head), kind))

	switch kind {
	case "version":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return p.fail(cur.line, "invalid version %q", value)
		}
		if v > MaxVersion {
			return p.fail(cur.line, "unsupported version %s", value)
		}
		p.s.Version = value
		return nil
	case "local":
		if name == "concat" {
			switch value {
			case "none":
				p.concat = ""
			case "space":
				p.concat = " "
			case "newline":
				p.concat = "\n"
			default:
				p.warn(cur.line, "unknown concat mode %q", value)
			}
		} else {
			p.warn(cur.line, "unknown local option %q", name)
		}
		return nil
	}

	k := lexicon.Kind(kind)
	if !k.Valid() {
		p.warn(cur.line, "unknown definition type %q", kind)
		return nil
	}
	if name == "" {
		p.warn(cur.line, "%s definition without a name", kind)
		return nil
	}

	def := Definition{Kind: k, Name: name, Line: cur.line}
	switch {
	case value == "<undef>":
		def.Undefine = true
	case k == lexicon.KindArray:
		def.Values = splitArray(value)
		for _, c := range cur.conts {
			def.Values = append(def.Values, splitArray(c)...)
		}
	default:
		def.Values = []string{unescape(p.join(&pending{text: value, conts: cur.conts}))}
	}
	p.s.Definitions = append(p.s.Definitions, def)
	return nil
}

// splitArray splits on "|" when present, otherwise on whitespace.
func splitArray(value string) []string {
	var parts []string
	if strings.Contains(value, "|") {
		parts = strings.Split(value, "|")
	} else {
		parts = strings.Fields(value)
	}
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(unescape(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func unescape(s string) string {
	return strings.ReplaceAll(s, `\s`, " ")
}

func (p *parser) block(cur *pending) error {
	fields := strings.Fields(cur.text)
	if cur.cmd == '<' {
		if len(fields) > 0 && fields[0] == "object" {
			p.warn(cur.line, "\"< object\" without an open object")
		}
		p.topic = DefaultTopic
		p.trig = -1
		return nil
	}

	if len(fields) == 0 {
		p.warn(cur.line, "empty block label")
		return nil
	}
	switch fields[0] {
	case "begin":
		p.topic = BeginTopic
		p.trig = -1
		p.topicIndex(BeginTopic)
	case "topic":
		if len(fields) < 2 {
			p.warn(cur.line, "topic without a name")
			return nil
		}
		name := strings.ToLower(fields[1])
		idx := p.topicIndex(name)
		mode := ""
		for _, f := range fields[2:] {
			switch f {
			case "includes", "inherits":
				mode = f
			default:
				f = strings.ToLower(f)
				switch mode {
				case "includes":
					p.s.Topics[idx].Includes = append(p.s.Topics[idx].Includes, f)
				case "inherits":
					p.s.Topics[idx].Inherits = append(p.s.Topics[idx].Inherits, f)
				default:
					p.warn(cur.line, "unexpected word %q in topic label", f)
				}
			}
		}
		p.topic = name
		p.trig = -1
	case "object":
		if len(fields) < 2 {
			return p.fail(cur.line, "object without a name")
		}
		obj := &Object{Name: fields[1], Line: cur.line}
		if len(fields) > 2 {
			obj.Language = strings.ToLower(fields[2])
		}
		p.object = obj
	default:
		p.warn(cur.line, "unknown block type %q", fields[0])
	}
	return nil
}

func (p *parser) topicIndex(name string) int {
	for i := range p.s.Topics {
		if p.s.Topics[i].Name == name {
			return i
		}
	}
	p.s.Topics = append(p.s.Topics, Topic{Name: name})
	return len(p.s.Topics) - 1
}

func (p *parser) addTrigger(pattern string, line int) {
	idx := p.topicIndex(p.topic)
	t := &p.s.Topics[idx]
	t.Triggers = append(t.Triggers, Trigger{Pattern: pattern, Line: line})
	p.trig = len(t.Triggers) - 1
}

// trigger returns the trigger a reply-side command attaches to.
func (p *parser) trigger(cur *pending, what string) *Trigger {
	if p.trig < 0 {
		p.warn(cur.line, "%s %q before any trigger", what, cur.text)
		return nil
	}
	idx := p.topicIndex(p.topic)
	return &p.s.Topics[idx].Triggers[p.trig]
}
