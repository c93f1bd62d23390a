package handler

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/voicetyped/rivebot/pkg/brain"
	"github.com/voicetyped/rivebot/pkg/session"
)

const (
	maxUserIDLen  = 128
	maxMessageLen = 4096
)

// ReplyRequest carries one user message.
type ReplyRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

func (r ReplyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required, validation.Length(1, maxUserIDLen)),
		validation.Field(&r.Message, validation.Required, validation.Length(1, maxMessageLen)),
	)
}

// ReplyResponse is the bot's answer.
type ReplyResponse struct {
	brain.Response
}

// SessionRequest names a user session.
type SessionRequest struct {
	UserID string `json:"user_id"`
}

func (r SessionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required, validation.Length(1, maxUserIDLen)),
	)
}

// SessionResponse returns a copy of a session's state.
type SessionResponse struct {
	Session session.Snapshot `json:"session"`
}

// ResetSessionResponse confirms a reset.
type ResetSessionResponse struct {
	UserID string `json:"user_id"`
}

// ReloadRequest asks for the script directory to be reloaded.
type ReloadRequest struct{}

// ReloadResponse reports the loaded brain and every issue found.
type ReloadResponse struct {
	Stats  brain.Stats `json:"stats"`
	Issues []string    `json:"issues,omitempty"`
}

// ListTopicsRequest lists the topics of the current brain.
type ListTopicsRequest struct{}

// TopicInfo summarizes one topic.
type TopicInfo struct {
	Name     string   `json:"name"`
	Triggers int      `json:"triggers"`
	Includes []string `json:"includes,omitempty"`
	Inherits []string `json:"inherits,omitempty"`
}

// ListTopicsResponse holds the topics sorted by name.
type ListTopicsResponse struct {
	Topics []TopicInfo `json:"topics"`
}
