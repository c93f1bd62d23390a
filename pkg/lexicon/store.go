// Package lexicon holds the declarative vocabulary of a bot: bot and global
// variables, word-class arrays and the two substitution tables.
package lexicon

import (
	"sort"
	"strings"
	"sync"
)

// Undefined is rendered for any variable that has no value.
const Undefined = "undefined"

// Kind identifies a class of lexicon definition.
type Kind string

const (
	KindVar    Kind = "var"
	KindGlobal Kind = "global"
	KindArray  Kind = "array"
	KindSub    Kind = "sub"
	KindPerson Kind = "person"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindVar, KindGlobal, KindArray, KindSub, KindPerson:
		return true
	}
	return false
}

// Rule is one substitution pair.
type Rule struct {
	Match       string `json:"match"`
	Replacement string `json:"replacement"`
}

// ruleTable keeps the first declaration position of every rule name while
// letting later definitions overwrite the value.
type ruleTable struct {
	order  []string
	values map[string]string
}

func newRuleTable() *ruleTable {
	return &ruleTable{values: make(map[string]string)}
}

func (t *ruleTable) set(match, replacement string) {
	if _, ok := t.values[match]; !ok {
		t.order = append(t.order, match)
	}
	t.values[match] = replacement
}

func (t *ruleTable) remove(match string) {
	if _, ok := t.values[match]; !ok {
		return
	}
	delete(t.values, match)
	for i, m := range t.order {
		if m == match {
			t.order = append(t.order[:i:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *ruleTable) rules() []Rule {
	out := make([]Rule, 0, len(t.order))
	for _, m := range t.order {
		out = append(out, Rule{Match: m, Replacement: t.values[m]})
	}
	return out
}

// Store is a last-write-wins registry of definitions. All access is
// thread-safe.
type Store struct {
	mu      sync.RWMutex
	vars    map[string]string
	globals map[string]string
	arrays  map[string][]string
	subs    *ruleTable
	person  *ruleTable
}

// NewStore creates an empty lexicon.
func NewStore() *Store {
	return &Store{
		vars:    make(map[string]string),
		globals: make(map[string]string),
		arrays:  make(map[string][]string),
		subs:    newRuleTable(),
		person:  newRuleTable(),
	}
}

// Define registers a definition, overwriting any earlier one with the same
// kind and name. Arrays take every value as a member; other kinds use the
// first value. Substitution keys are stored lowercased.
func (s *Store) Define(kind Kind, name string, values ...string) {
	value := ""
	if len(values) > 0 {
		value = values[0]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case KindVar:
		s.vars[name] = value
	case KindGlobal:
		s.globals[name] = value
	case KindArray:
		members := make([]string, 0, len(values))
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				members = append(members, v)
			}
		}
		s.arrays[name] = members
	case KindSub:
		s.subs.set(strings.ToLower(name), value)
	case KindPerson:
		s.person.set(strings.ToLower(name), value)
	}
}

// Undefine removes a definition. Removing an unknown name is a no-op.
func (s *Store) Undefine(kind Kind, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case KindVar:
		delete(s.vars, name)
	case KindGlobal:
		delete(s.globals, name)
	case KindArray:
		delete(s.arrays, name)
	case KindSub:
		s.subs.remove(strings.ToLower(name))
	case KindPerson:
		s.person.remove(strings.ToLower(name))
	}
}

// Resolve returns the stored value or Undefined. Arrays resolve to their
// members joined by "|".
func (s *Store) Resolve(kind Kind, name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		v  string
		ok bool
	)
	switch kind {
	case KindVar:
		v, ok = s.vars[name]
	case KindGlobal:
		v, ok = s.globals[name]
	case KindArray:
		var members []string
		members, ok = s.arrays[name]
		v = strings.Join(members, "|")
	case KindSub:
		v, ok = s.subs.values[strings.ToLower(name)]
	case KindPerson:
		v, ok = s.person.values[strings.ToLower(name)]
	}
	if !ok {
		return Undefined
	}
	return v
}

// Var is shorthand for Resolve(KindVar, name).
func (s *Store) Var(name string) string {
	return s.Resolve(KindVar, name)
}

// Global is shorthand for Resolve(KindGlobal, name).
func (s *Store) Global(name string) string {
	return s.Resolve(KindGlobal, name)
}

// Array returns a copy of the members of a named array.
func (s *Store) Array(name string) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members, ok := s.arrays[name]
	if !ok {
		return nil, false
	}
	cp := make([]string, len(members))
	copy(cp, members)
	return cp, true
}

// Rules returns the substitution or person rules in first-declaration order.
func (s *Store) Rules(kind Kind) []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch kind {
	case KindSub:
		return s.subs.rules()
	case KindPerson:
		return s.person.rules()
	}
	return nil
}

// Snapshot is a point-in-time copy of a Store, used for dumps and the API.
type Snapshot struct {
	Vars    map[string]string   `json:"vars"`
	Globals map[string]string   `json:"globals"`
	Arrays  map[string][]string `json:"arrays"`
	Subs    []Rule              `json:"subs"`
	Person  []Rule              `json:"person"`
}

// Snapshot copies the whole store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Vars:    make(map[string]string, len(s.vars)),
		Globals: make(map[string]string, len(s.globals)),
		Arrays:  make(map[string][]string, len(s.arrays)),
		Subs:    s.subs.rules(),
		Person:  s.person.rules(),
	}
	for k, v := range s.vars {
		snap.Vars[k] = v
	}
	for k, v := range s.globals {
		snap.Globals[k] = v
	}
	for k, v := range s.arrays {
		snap.Arrays[k] = append([]string(nil), v...)
	}
	return snap
}

// Names returns the sorted names defined for a kind.
func (s *Store) Names(kind Kind) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	switch kind {
	case KindVar:
		for k := range s.vars {
			names = append(names, k)
		}
	case KindGlobal:
		for k := range s.globals {
			names = append(names, k)
		}
	case KindArray:
		for k := range s.arrays {
			names = append(names, k)
		}
	case KindSub:
		names = append(names, s.subs.order...)
	case KindPerson:
		names = append(names, s.person.order...)
	}
	sort.Strings(names)
	return names
}
