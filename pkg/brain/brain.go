// Package brain compiles scripts into an immutable rule set and answers
// user messages with it.
package brain

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/voicetyped/rivebot/pkg/lexicon"
	"github.com/voicetyped/rivebot/pkg/normalize"
	"github.com/voicetyped/rivebot/pkg/pattern"
	"github.com/voicetyped/rivebot/pkg/script"
)

// Reply is one candidate answer of a trigger.
type Reply struct {
	Text   string
	Weight int
}

// Condition is a "left op right => reply" test.
type Condition struct {
	Left  string
	Op    string
	Right string
	Reply string
}

// Trigger is a compiled pattern with its replies.
type Trigger struct {
	// ID is unique within a brain: topic, pattern and previous pattern.
	ID         string
	Topic      string
	Pattern    *pattern.Pattern
	Previous   *pattern.Pattern
	Replies    []Reply
	Conditions []Condition
	Redirect   string
	// Order is the global declaration index, the final ranking tie-break.
	Order int
	File  string
	Line  int
}

// Topic is a named trigger set in declaration order.
type Topic struct {
	Name     string
	Includes []string
	Inherits []string
	Triggers []*Trigger
}

// BuildOptions tune a build.
type BuildOptions struct {
	MaxMatchSteps int
}

// Brain is the compiled, immutable rule set. Only the bot and global
// variables of its lexicon change at runtime.
type Brain struct {
	lex      *lexicon.Store
	norm     *normalize.Normalizer
	person   *normalize.Substituter
	topics   map[string]*Topic
	ranked   map[string][]*Trigger
	objects  map[string]script.Object
	maxSteps int
	files    int
}

var (
	replyWeightRe = regexp.MustCompile(`\{weight=(\d+)\}`)
	conditionRe   = regexp.MustCompile(`^(.+?)\s+(==|eq|!=|ne|<>|<=|>=|<|>)\s+(.*?)$`)
)

// Build compiles scripts. Bad triggers are skipped and reported in a
// *CompileErrors; the returned brain is always usable.
func Build(scripts []*script.Script, opts BuildOptions) (*Brain, error) {
	if opts.MaxMatchSteps <= 0 {
		opts.MaxMatchSteps = pattern.DefaultMaxSteps
	}
	issues := &CompileErrors{}
	b := &Brain{
		lex:      lexicon.NewStore(),
		topics:   make(map[string]*Topic),
		ranked:   make(map[string][]*Trigger),
		objects:  make(map[string]script.Object),
		maxSteps: opts.MaxMatchSteps,
	}

	for _, s := range scripts {
		if s == nil {
			continue
		}
		b.files++
		for _, w := range s.Warnings {
			issues.add(Issue{File: w.File, Line: w.Line, Err: errors.New(w.Msg)})
		}
		for _, d := range s.Definitions {
			if d.Undefine {
				b.lex.Undefine(d.Kind, d.Name)
				continue
			}
			b.lex.Define(d.Kind, d.Name, d.Values...)
		}
		for _, obj := range s.Objects {
			if _, dup := b.objects[obj.Name]; dup {
				issues.add(Issue{File: s.File, Line: obj.Line, Err: fmt.Errorf("object %q redefined", obj.Name)})
			}
			b.objects[obj.Name] = obj
		}
	}

	b.norm = normalize.New(normalize.NewSubstituter(b.lex.Rules(lexicon.KindSub)))
	b.person = normalize.NewSubstituter(b.lex.Rules(lexicon.KindPerson))

	order := 0
	for _, s := range scripts {
		if s == nil {
			continue
		}
		for _, st := range s.Topics {
			topic := b.topic(st.Name)
			topic.Includes = appendUnique(topic.Includes, st.Includes...)
			topic.Inherits = appendUnique(topic.Inherits, st.Inherits...)

			for _, src := range st.Triggers {
				trig, err := compileTrigger(topic.Name, src, b.lex)
				if err != nil {
					issues.add(Issue{File: s.File, Line: src.Line, Topic: topic.Name, Pattern: src.Pattern, Err: err})
					continue
				}
				if b.hasTrigger(topic, trig.ID) {
					issues.add(Issue{File: s.File, Line: src.Line, Topic: topic.Name, Pattern: src.Pattern,
						Err: fmt.Errorf("duplicate trigger %q", src.Pattern)})
					continue
				}
				trig.Order = order
				trig.File = s.File
				order++
				topic.Triggers = append(topic.Triggers, trig)
			}
		}
	}
	b.topic(script.DefaultTopic)

	for _, name := range b.TopicNames() {
		t := b.topics[name]
		for _, ref := range append(append([]string(nil), t.Includes...), t.Inherits...) {
			if _, ok := b.topics[ref]; !ok {
				issues.add(Issue{Topic: name, Err: fmt.Errorf("unknown topic %q referenced", ref)})
			}
		}
		b.ranked[name] = b.rank(name, map[string]bool{})
	}

	return b, issues.errOrNil()
}

func (b *Brain) topic(name string) *Topic {
	if name == "" {
		name = script.DefaultTopic
	}
	t, ok := b.topics[name]
	if !ok {
		t = &Topic{Name: name}
		b.topics[name] = t
	}
	return t
}

func (b *Brain) hasTrigger(t *Topic, id string) bool {
	for _, trig := range t.Triggers {
		if trig.ID == id {
			return true
		}
	}
	return false
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, have := range list {
			if have == v {
				found = true
				break
			}
		}
		if !found {
			list = append(list, v)
		}
	}
	return list
}

func compileTrigger(topic string, src script.Trigger, lex *lexicon.Store) (*Trigger, error) {
	p, err := pattern.Compile(src.Pattern, lex)
	if err != nil {
		return nil, err
	}
	t := &Trigger{
		ID:       topic + "/" + strings.TrimSpace(src.Pattern),
		Topic:    topic,
		Pattern:  p,
		Redirect: strings.TrimSpace(src.Redirect),
		Line:     src.Line,
	}

	if prev := strings.TrimSpace(src.Previous); prev != "" {
		t.Previous, err = pattern.Compile(prev, lex)
		if err != nil {
			return nil, fmt.Errorf("previous: %w", err)
		}
		t.ID += " %" + prev
	}

	for _, text := range src.Replies {
		t.Replies = append(t.Replies, parseReply(text))
	}
	for _, text := range src.Conditions {
		c, err := parseCondition(text)
		if err != nil {
			return nil, err
		}
		t.Conditions = append(t.Conditions, c)
	}

	if len(t.Replies) == 0 && len(t.Conditions) == 0 && t.Redirect == "" {
		return nil, fmt.Errorf("trigger %q has no replies", src.Pattern)
	}
	return t, nil
}

func parseReply(text string) Reply {
	r := Reply{Text: text, Weight: 1}
	if m := replyWeightRe.FindStringSubmatch(text); m != nil {
		if w, err := strconv.Atoi(m[1]); err == nil && w > 0 {
			r.Weight = w
		}
		r.Text = strings.TrimSpace(replyWeightRe.ReplaceAllString(text, ""))
	}
	return r
}

func parseCondition(text string) (Condition, error) {
	test, reply, ok := strings.Cut(text, "=>")
	if !ok {
		return Condition{}, fmt.Errorf("condition %q has no \"=>\"", text)
	}
	m := conditionRe.FindStringSubmatch(strings.TrimSpace(test))
	if m == nil {
		return Condition{}, fmt.Errorf("condition %q has no operator", text)
	}
	return Condition{
		Left:  strings.TrimSpace(m[1]),
		Op:    m[2],
		Right: strings.TrimSpace(m[3]),
		Reply: strings.TrimSpace(reply),
	}, nil
}

// rank orders the triggers reachable from a topic: the topic and its
// includes merged and sorted, then each inherited topic after them.
func (b *Brain) rank(name string, visiting map[string]bool) []*Trigger {
	if visiting[name] {
		return nil
	}
	visiting[name] = true
	defer delete(visiting, name)

	var (
		members []string
		seen    = map[string]bool{}
	)
	var collect func(string)
	collect = func(n string) {
		if seen[n] {
			return
		}
		if _, ok := b.topics[n]; !ok {
			return
		}
		seen[n] = true
		members = append(members, n)
		for _, inc := range b.topics[n].Includes {
			collect(inc)
		}
	}
	collect(name)

	var own []*Trigger
	for _, m := range members {
		own = append(own, b.topics[m].Triggers...)
	}
	sort.SliceStable(own, func(i, j int) bool { return higherRank(own[i], own[j]) })

	present := make(map[*Trigger]bool, len(own))
	for _, t := range own {
		present[t] = true
	}
	result := own
	for _, m := range members {
		for _, inh := range b.topics[m].Inherits {
			for _, t := range b.rank(inh, visiting) {
				if !present[t] {
					present[t] = true
					result = append(result, t)
				}
			}
		}
	}
	return result
}

// higherRank is the total order of triggers within one ranking tier.
func higherRank(a, c *Trigger) bool {
	pa, pc := a.Pattern, c.Pattern
	if pa.Priority != pc.Priority {
		return pa.Priority > pc.Priority
	}
	if (a.Previous != nil) != (c.Previous != nil) {
		return a.Previous != nil
	}
	if pa.Literals != pc.Literals {
		return pa.Literals > pc.Literals
	}
	if pa.Wildcards != pc.Wildcards {
		return pa.Wildcards < pc.Wildcards
	}
	if pa.OpenWildcards != pc.OpenWildcards {
		return pa.OpenWildcards < pc.OpenWildcards
	}
	return a.Order < c.Order
}

// Lexicon returns the brain's variables, arrays and substitutions.
func (b *Brain) Lexicon() *lexicon.Store {
	return b.lex
}

// Normalize runs raw user text through the brain's input pipeline.
func (b *Brain) Normalize(raw string) string {
	return b.norm.Normalize(raw)
}

// Person applies the person substitutions to text.
func (b *Brain) Person(text string) string {
	return b.person.Apply(text)
}

// HasTopic reports whether a topic is defined.
func (b *Brain) HasTopic(name string) bool {
	_, ok := b.topics[name]
	return ok
}

// Topic returns a topic by name.
func (b *Brain) Topic(name string) (*Topic, bool) {
	t, ok := b.topics[name]
	return t, ok
}

// TopicNames returns every topic name, sorted.
func (b *Brain) TopicNames() []string {
	names := make([]string, 0, len(b.topics))
	for n := range b.topics {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Ranked returns the full ranked trigger list of a topic, before
// previous-reply filtering.
func (b *Brain) Ranked(topic string) []*Trigger {
	return append([]*Trigger(nil), b.ranked[topic]...)
}

// Object returns an object macro by name.
func (b *Brain) Object(name string) (script.Object, bool) {
	o, ok := b.objects[name]
	return o, ok
}

// Stats summarizes a brain.
type Stats struct {
	Files    int `json:"files"`
	Topics   int `json:"topics"`
	Triggers int `json:"triggers"`
	Objects  int `json:"objects"`
}

// Stats counts what the brain holds.
func (b *Brain) Stats() Stats {
	s := Stats{Files: b.files, Topics: len(b.topics), Objects: len(b.objects)}
	for _, t := range b.topics {
		s.Triggers += len(t.Triggers)
	}
	return s
}
