package session

import (
	"errors"
)

// Validation errors are returned before any remote call is made.
var (
	ErrEmptyContent        = errors.New("message content is empty")
	ErrEmptyName           = errors.New("group name is empty")
	ErrGroupTooSmall       = errors.New("a group needs at least two other members")
	ErrNoMembers           = errors.New("no members given")
	ErrThreadBlocked       = errors.New("thread is blocked")
	ErrNoActiveThread      = errors.New("no active thread")
	ErrBackfillUnavailable = errors.New("no older messages to load")
	ErrUnknownThread       = errors.New("thread is not in the directory")
	ErrUnknownMessage      = errors.New("message is not in the active thread")
	ErrNotGroup            = errors.New("operation requires a group thread")
	ErrNotDirect           = errors.New("operation requires a direct thread")
	ErrSelfThread          = errors.New("cannot open a thread with yourself")
	ErrStopped             = errors.New("session stopped")
)

// IsValidation reports whether err was rejected locally.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrEmptyContent, ErrEmptyName, ErrGroupTooSmall, ErrNoMembers,
		ErrNotGroup, ErrNotDirect, ErrSelfThread, ErrBackfillUnavailable, ErrNoActiveThread,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
