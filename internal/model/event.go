package model

import (
	"time"
)

// EventType represents the type of a streamed conversation event.
type EventType string

const (
	EventTypeNewMessage     EventType = "new_message"
	EventTypeMessageDeleted EventType = "message_deleted"
	EventTypeMessageEdited  EventType = "message_edited"
	EventTypeMessagesRead   EventType = "messages_read"
	EventTypeUserTyping     EventType = "user_typing"
)

// StreamEvent is one event received on a thread's stream. ThreadID is not
// part of the payload; it is set to the thread the connection was opened for.
type StreamEvent struct {
	ThreadID int64     `json:"-"`
	Type     EventType `json:"type"`

	Message   *Message `json:"message,omitempty"`
	MessageID int64    `json:"message_id,omitempty"`

	// message_deleted
	DeletedByUserID   int64 `json:"deleted_by_user_id,omitempty"`
	DeleteForEveryone bool  `json:"delete_for_everyone,omitempty"`

	// messages_read
	MessageIDs []int64 `json:"message_ids,omitempty"`

	// user_typing
	UserID   int64  `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	IsTyping bool   `json:"is_typing,omitempty"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEvent represents an error event.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
