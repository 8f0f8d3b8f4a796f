package session

import (
	"github.com/capitalize-ai/chatcore/internal/messagelog"
	"github.com/capitalize-ai/chatcore/internal/model"
)

// UpdateKind says which part of the projection changed.
type UpdateKind string

const (
	UpdateThreads   UpdateKind = "threads"
	UpdateSelection UpdateKind = "selection"
	UpdateMessages  UpdateKind = "messages"
	UpdateTyping    UpdateKind = "typing"
	UpdateStream    UpdateKind = "stream"
	UpdateError     UpdateKind = "error"
)

// Typing is a typing indicator for the active thread.
type Typing struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

// Update is a change notification delivered to subscribers.
type Update struct {
	Kind     UpdateKind `json:"kind"`
	ThreadID int64      `json:"thread_id,omitempty"`
	// Anchor is the message id to keep in view after a backfill.
	Anchor int64   `json:"anchor_id,omitempty"`
	Typing *Typing `json:"typing,omitempty"`
	Err    error   `json:"-"`
	// Message is Err rendered for transport.
	Message string `json:"error,omitempty"`
}

// Snapshot is a consistent copy of the session projection.
type Snapshot struct {
	Threads           []model.Thread   `json:"threads"`
	Loaded            bool             `json:"loaded"`
	Restored          bool             `json:"restored,omitempty"`
	ActiveThreadID    int64            `json:"active_thread_id,omitempty"`
	ActiveThread      *model.Thread    `json:"active_thread,omitempty"`
	Messages          []model.Message  `json:"messages"`
	Pager             messagelog.Pager `json:"pager"`
	ShowRequestPrompt bool             `json:"show_request_prompt"`
	Streaming         bool             `json:"streaming"`
}

// Thread returns a thread from the snapshot.
func (s Snapshot) Thread(id int64) (model.Thread, bool) {
	for _, t := range s.Threads {
		if t.ID == id {
			return t, true
		}
	}
	return model.Thread{}, false
}
