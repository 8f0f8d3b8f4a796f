// Package model defines data structures for the conversation session core.
package model

import (
	"time"
)

// ThreadStatus represents the lifecycle state of a thread.
type ThreadStatus string

const (
	ThreadStatusActive  ThreadStatus = "active"
	ThreadStatusPending ThreadStatus = "pending"
	ThreadStatusBlocked ThreadStatus = "blocked"
)

// UserRef is the account behind a participant profile.
type UserRef struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Participant is a profile taking part in a thread.
type Participant struct {
	ID            int64    `json:"id"`
	Username      string   `json:"username,omitempty"`
	User          *UserRef `json:"user,omitempty"`
	Avatar        string   `json:"avatar,omitempty"`
	IsFollowing   bool     `json:"is_following,omitempty"`
	IsBlockedByMe bool     `json:"is_blocked_by_me,omitempty"`
	IsBlockingMe  bool     `json:"is_blocking_me,omitempty"`
}

// UserID returns the account id of the participant, falling back to the
// profile id when the account is not embedded.
func (p Participant) UserID() int64 {
	if p.User != nil && p.User.ID != 0 {
		return p.User.ID
	}
	return p.ID
}

// DisplayName returns the best available username.
func (p Participant) DisplayName() string {
	if p.User != nil && p.User.Username != "" {
		return p.User.Username
	}
	return p.Username
}

// Thread represents a conversation container, direct or group.
type Thread struct {
	ID           int64         `json:"id"`
	IsGroup      bool          `json:"is_group"`
	Participants []Participant `json:"participants"`
	GroupName    string        `json:"group_name,omitempty"`
	GroupAvatar  string        `json:"group_avatar,omitempty"`
	Admin        *Participant  `json:"admin,omitempty"`
	Admins       []Participant `json:"admins,omitempty"`
	Initiator    *Participant  `json:"initiator,omitempty"`
	Status       ThreadStatus  `json:"status"`
	BlockedByID  *int64        `json:"blocked_by_id,omitempty"`
	LastMessage  *Message      `json:"last_message,omitempty"`
	UnreadCount  int           `json:"unread_count,omitempty"`
	IsMuted      bool          `json:"is_muted,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// SortTime is the instant used to order threads: updated_at, or created_at
// when the thread was never updated.
func (t Thread) SortTime() time.Time {
	if !t.UpdatedAt.IsZero() {
		return t.UpdatedAt
	}
	return t.CreatedAt
}

// OtherParticipant returns the participant of a direct thread that is not
// selfID. It reports false for group threads and threads without one.
func (t Thread) OtherParticipant(selfID int64) (Participant, bool) {
	if t.IsGroup {
		return Participant{}, false
	}
	for _, p := range t.Participants {
		if p.ID != selfID {
			return p, true
		}
	}
	return Participant{}, false
}

// InitiatedBy reports whether the participant with the given profile id
// started the thread.
func (t Thread) InitiatedBy(id int64) bool {
	return t.Initiator != nil && t.Initiator.ID == id
}

// IsAdmin reports whether the profile id administers the group.
func (t Thread) IsAdmin(id int64) bool {
	if t.Admin != nil && t.Admin.ID == id {
		return true
	}
	for _, a := range t.Admins {
		if a.ID == id {
			return true
		}
	}
	return false
}

// HasParticipant reports whether the profile id is a member of the thread.
func (t Thread) HasParticipant(id int64) bool {
	for _, p := range t.Participants {
		if p.ID == id {
			return true
		}
	}
	return false
}

// CreateThreadRequest is the request to create a direct or group thread.
type CreateThreadRequest struct {
	Participants []int64 `json:"participants"`
	IsGroup      bool    `json:"is_group,omitempty"`
	GroupName    string  `json:"group_name,omitempty"`
}
