package session

import (
	"github.com/capitalize-ai/chatcore/internal/model"
)

// RequestPolicy decides whether a thread shows the accept/decline prompt in
// place of the message input.
type RequestPolicy interface {
	ShowRequestPrompt(selfID int64, t model.Thread, msgs []model.Message) bool
}

// RequestPolicyFunc adapts a function to RequestPolicy.
type RequestPolicyFunc func(selfID int64, t model.Thread, msgs []model.Message) bool

// ShowRequestPrompt calls f.
func (f RequestPolicyFunc) ShowRequestPrompt(selfID int64, t model.Thread, msgs []model.Message) bool {
	return f(selfID, t, msgs)
}

// UntrustedRequestPolicy prompts for a still-unanswered cold-contact
// request: a direct thread that is not active, whose other participant does
// not follow the user, that the user did not start and has not replied to.
type UntrustedRequestPolicy struct{}

// ShowRequestPrompt implements RequestPolicy.
func (UntrustedRequestPolicy) ShowRequestPrompt(selfID int64, t model.Thread, msgs []model.Message) bool {
	if t.IsGroup || t.Status == model.ThreadStatusActive {
		return false
	}
	other, ok := t.OtherParticipant(selfID)
	if !ok || other.IsFollowing {
		return false
	}
	if t.InitiatedBy(selfID) {
		return false
	}
	for _, m := range msgs {
		if m.Sender.ID == selfID {
			return false
		}
	}
	return true
}
