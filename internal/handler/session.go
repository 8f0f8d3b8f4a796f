// Package handler exposes a chat session over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/capitalize-ai/chatcore/internal/api"
	"github.com/capitalize-ai/chatcore/internal/model"
	"github.com/capitalize-ai/chatcore/internal/session"
)

// Session is the session core as driven by the handlers.
type Session interface {
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Update, func())
	Refresh(ctx context.Context) error

	Select(ctx context.Context, threadID int64) error
	Deselect(ctx context.Context) error
	OpenDirect(ctx context.Context, userID int64) (*model.Thread, error)
	CreateGroup(ctx context.Context, name string, memberIDs []int64) (*model.Thread, error)

	AcceptRequest(ctx context.Context, threadID int64) error
	RejectRequest(ctx context.Context, threadID int64) error
	DeleteThread(ctx context.Context, threadID int64) error
	LeaveGroup(ctx context.Context, threadID int64) error
	Block(ctx context.Context, threadID int64) error
	Unblock(ctx context.Context, threadID int64) error
	AddMembers(ctx context.Context, threadID int64, userIDs []int64) error
	RemoveMember(ctx context.Context, threadID, memberID int64) error
	PromoteAdmin(ctx context.Context, threadID, memberID int64) error
	DemoteAdmin(ctx context.Context, threadID, memberID int64) error
	RenameGroup(ctx context.Context, threadID int64, name string) error

	Send(ctx context.Context, content string) (*model.Message, error)
	Edit(ctx context.Context, messageID int64, content string) (*model.Message, error)
	DeleteMessage(ctx context.Context, messageID int64, forEveryone bool) error
	LoadOlder(ctx context.Context) (int64, error)
	SetTyping(ctx context.Context, typing bool) error
}

var _ Session = (*session.Controller)(nil)

// statusFor maps a session error to an HTTP status.
func statusFor(err error) int {
	switch {
	case session.IsValidation(err), errors.Is(err, api.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrUnknownThread),
		errors.Is(err, session.ErrUnknownMessage),
		errors.Is(err, api.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrThreadBlocked), errors.Is(err, api.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, session.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
