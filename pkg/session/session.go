// Package session tracks per-user conversation state and persists it.
package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// DefaultHistorySize is the number of inputs and replies kept per session.
const DefaultHistorySize = 9

// DefaultTopic is the topic every new session starts in.
const DefaultTopic = "random"

// Turn is the outcome of one exchange, recorded by Advance.
type Turn struct {
	TriggerID   string
	Captures    []string
	BotCaptures []string
	Input       string
	Reply       string
}

// Session holds per-user mutable state. All access is thread-safe.
type Session struct {
	mu          sync.RWMutex
	historySize int

	ID            string
	Topic         string
	HandshakeDone bool
	// Inputs and Replies are ordered oldest first.
	Inputs       []string
	Replies      []string
	Captures     map[string][]string
	LastTrigger  string
	LastCaptures []string
	BotCaptures  []string
	Variables    map[string]string
	StartTime    time.Time
	LastActive   time.Time
}

// NewSession creates a session in the default topic. A historySize of zero
// or less means DefaultHistorySize.
func NewSession(id string, historySize int) *Session {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	now := time.Now()
	return &Session{
		historySize: historySize,
		ID:          id,
		Topic:       DefaultTopic,
		Captures:    make(map[string][]string),
		Variables:   make(map[string]string),
		StartTime:   now,
		LastActive:  now,
	}
}

// Advance records a completed exchange. History is bounded; the oldest
// input and reply are evicted once the cap is reached.
func (s *Session) Advance(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Inputs = appendBounded(s.Inputs, t.Input, s.historySize)
	s.Replies = appendBounded(s.Replies, t.Reply, s.historySize)

	caps := append([]string(nil), t.Captures...)
	if t.TriggerID != "" {
		s.Captures[t.TriggerID] = caps
	}
	s.LastTrigger = t.TriggerID
	s.LastCaptures = caps
	s.BotCaptures = append([]string(nil), t.BotCaptures...)
	s.LastActive = time.Now()
}

func appendBounded(list []string, v string, limit int) []string {
	if len(list) >= limit {
		list = append(list[:0:0], list[len(list)-limit+1:]...)
	}
	return append(list, v)
}

// GetTopic returns the current topic.
func (s *Session) GetTopic() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Topic
}

// SetTopic switches the current topic.
func (s *Session) SetTopic(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Topic = topic
}

// Handshaken reports whether the begin block has let this session through.
func (s *Session) Handshaken() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.HandshakeDone
}

// CompleteHandshake marks the handshake as done. It stays done.
func (s *Session) CompleteHandshake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.HandshakeDone = true
}

// LastReply returns the most recent reply, or "" before the first one.
func (s *Session) LastReply() string {
	return s.ReplyAt(1)
}

// InputAt returns the n-th most recent input (1 is the latest), or "".
func (s *Session) InputAt(n int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return recent(s.Inputs, n)
}

// ReplyAt returns the n-th most recent reply (1 is the latest), or "".
func (s *Session) ReplyAt(n int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return recent(s.Replies, n)
}

func recent(list []string, n int) string {
	if n < 1 || n > len(list) {
		return ""
	}
	return list[len(list)-n]
}

// SetVariable sets a user variable.
func (s *Session) SetVariable(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Variables[key] = value
}

// GetVariable returns a user variable and whether it is set.
func (s *Session) GetVariable(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.Variables[key]
	return v, ok
}

// CopyVariables returns a snapshot of all user variables.
func (s *Session) CopyVariables() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(map[string]string, len(s.Variables))
	for k, v := range s.Variables {
		cp[k] = v
	}
	return cp
}

// IdleSince returns the time of the last recorded activity.
func (s *Session) IdleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastActive
}

// Snapshot is the persisted form of a Session.
type Snapshot struct {
	ID            string              `json:"id"`
	Topic         string              `json:"topic"`
	HandshakeDone bool                `json:"handshake_done"`
	HistorySize   int                 `json:"history_size"`
	Inputs        []string            `json:"inputs"`
	Replies       []string            `json:"replies"`
	Captures      map[string][]string `json:"captures"`
	LastTrigger   string              `json:"last_trigger,omitempty"`
	LastCaptures  []string            `json:"last_captures"`
	BotCaptures   []string            `json:"bot_captures"`
	Variables     map[string]string   `json:"variables"`
	StartTime     time.Time           `json:"start_time"`
	LastActive    time.Time           `json:"last_active"`
}

// Snapshot returns a deep copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		ID:            s.ID,
		Topic:         s.Topic,
		HandshakeDone: s.HandshakeDone,
		HistorySize:   s.historySize,
		Inputs:        append([]string(nil), s.Inputs...),
		Replies:       append([]string(nil), s.Replies...),
		Captures:      make(map[string][]string, len(s.Captures)),
		LastTrigger:   s.LastTrigger,
		LastCaptures:  append([]string(nil), s.LastCaptures...),
		BotCaptures:   append([]string(nil), s.BotCaptures...),
		Variables:     make(map[string]string, len(s.Variables)),
		StartTime:     s.StartTime,
		LastActive:    s.LastActive,
	}
	for k, v := range s.Captures {
		snap.Captures[k] = append([]string(nil), v...)
	}
	for k, v := range s.Variables {
		snap.Variables[k] = v
	}
	return snap
}

// Restore rebuilds a session from a snapshot. History beyond the snapshot's
// size is trimmed from the oldest end.
func Restore(snap Snapshot) *Session {
	s := NewSession(snap.ID, snap.HistorySize)
	if snap.Topic != "" {
		s.Topic = snap.Topic
	}
	s.HandshakeDone = snap.HandshakeDone
	s.Inputs = tail(snap.Inputs, s.historySize)
	s.Replies = tail(snap.Replies, s.historySize)
	for k, v := range snap.Captures {
		s.Captures[k] = append([]string(nil), v...)
	}
	for k, v := range snap.Variables {
		s.Variables[k] = v
	}
	s.LastTrigger = snap.LastTrigger
	s.LastCaptures = append([]string(nil), snap.LastCaptures...)
	s.BotCaptures = append([]string(nil), snap.BotCaptures...)
	if !snap.StartTime.IsZero() {
		s.StartTime = snap.StartTime
	}
	if !snap.LastActive.IsZero() {
		s.LastActive = snap.LastActive
	}
	return s
}

func tail(list []string, n int) []string {
	if len(list) > n {
		list = list[len(list)-n:]
	}
	return append([]string(nil), list...)
}

// Encode marshals the session snapshot as JSON.
func (s *Session) Encode() ([]byte, error) {
	snap := s.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode session %q: %w", snap.ID, err)
	}
	return data, nil
}

// Decode restores a session from Encode output.
func Decode(data []byte) (*Session, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return Restore(snap), nil
}
