// Package api defines the contract the session core requires from the remote
// chat API, plus an HTTP implementation of it.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/capitalize-ai/chatcore/internal/model"
)

// Error kinds. Every error returned by a Client matches exactly one of these
// through errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("rejected by server")
	ErrTransient  = errors.New("transient failure")
)

// Error describes a failed API call.
type Error struct {
	Op     string
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Is matches the error kind derived from the status code.
func (e *Error) Is(target error) bool {
	return kindOf(e.Status) == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

func kindOf(status int) error {
	switch {
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity, status == http.StatusConflict:
		return ErrValidation
	default:
		return ErrTransient
	}
}

// Client is the remote chat API as seen by the session core.
type Client interface {
	ListThreads(ctx context.Context) ([]model.Thread, error)
	GetThread(ctx context.Context, threadID int64) (*model.Thread, error)
	GetOrCreateThread(ctx context.Context, otherUserID int64) (*model.Thread, error)
	CreateThread(ctx context.Context, req *model.CreateThreadRequest) (*model.Thread, error)
	DeleteThread(ctx context.Context, threadID int64) error
	VerifyThreadDeleted(ctx context.Context, threadID int64) (bool, error)

	// GetMessages returns up to limit messages; beforeID 0 means the newest page.
	GetMessages(ctx context.Context, threadID int64, limit int, beforeID int64) ([]model.Message, error)
	SendMessage(ctx context.Context, threadID int64, content string) (*model.Message, error)
	EditMessage(ctx context.Context, messageID int64, content string) (*model.Message, error)
	DeleteMessage(ctx context.Context, messageID int64, forEveryone bool) error

	AcceptRequest(ctx context.Context, threadID int64) error
	RejectRequest(ctx context.Context, threadID int64) error
	BlockUser(ctx context.Context, userID int64) error
	UnblockUser(ctx context.Context, userID int64) error

	LeaveGroup(ctx context.Context, threadID int64) error
	AddMembers(ctx context.Context, threadID int64, userIDs []int64) error
	RemoveMember(ctx context.Context, threadID, memberID int64) error
	PromoteAdmin(ctx context.Context, threadID, memberID int64) error
	DemoteAdmin(ctx context.Context, threadID, memberID int64) error
	UpdateGroupName(ctx context.Context, threadID int64, name string) error
}
