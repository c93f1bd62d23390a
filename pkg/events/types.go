package events

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event flowing through the system.
type EventType string

const (
	ReplyMatched       EventType = "reply.matched"
	ReplyNoMatch       EventType = "reply.nomatch"
	MatchTimeout       EventType = "match.timeout"
	HandshakeCompleted EventType = "handshake.completed"
	TopicChanged       EventType = "topic.changed"
	ScriptReloaded     EventType = "script.reloaded"
	ScriptError        EventType = "script.error"
	MacroResult        EventType = "macro.result"
	MacroError         EventType = "macro.error"
	SystemError        EventType = "error"
)

// Envelope is the standard event wrapper published to the event bus.
type Envelope struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Source    string            `json:"source"`
	SessionID string            `json:"session_id"`
	Timestamp time.Time         `json:"timestamp"`
	Data      json.RawMessage   `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ReplyData is the payload for reply.matched and reply.nomatch events.
type ReplyData struct {
	Input     string   `json:"input"`
	Reply     string   `json:"reply"`
	Topic     string   `json:"topic"`
	TriggerID string   `json:"trigger_id,omitempty"`
	Captures  []string `json:"captures,omitempty"`
}

// MatchTimeoutData is the payload for match.timeout events.
type MatchTimeoutData struct {
	TriggerID string `json:"trigger_id"`
	Input     string `json:"input"`
	Budget    int    `json:"budget"`
}

// HandshakeData is the payload for handshake.completed events.
type HandshakeData struct {
	Topic string `json:"topic"`
}

// TopicChangedData is the payload for topic.changed events.
type TopicChangedData struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ScriptReloadedData is the payload for script.reloaded events.
type ScriptReloadedData struct {
	Files    int `json:"files"`
	Topics   int `json:"topics"`
	Triggers int `json:"triggers"`
	Issues   int `json:"issues"`
}

// ScriptErrorData is the payload for script.error events.
type ScriptErrorData struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Pattern string `json:"pattern,omitempty"`
	Error   string `json:"error"`
}

// MacroResultData is the payload for macro.result events.
type MacroResultData struct {
	Object   string `json:"object"`
	Language string `json:"language"`
	Output   string `json:"output"`
}

// MacroErrorData is the payload for macro.error events.
type MacroErrorData struct {
	Object string `json:"object"`
	Error  string `json:"error"`
}

// ErrorData is the payload for error events.
type ErrorData struct {
	Op    string `json:"op"`
	Error string `json:"error"`
}
