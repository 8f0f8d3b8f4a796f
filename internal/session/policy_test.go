package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capitalize-ai/chatcore/internal/model"
)

func TestUntrustedRequestPolicy(t *testing.T) {
	cold := func() model.Thread {
		th := direct(7, 42, model.ThreadStatusPending, t0)
		th.Initiator = &model.Participant{ID: 42}
		return th
	}

	tests := []struct {
		name   string
		thread func() model.Thread
		msgs   []model.Message
		want   bool
	}{
		{
			name:   "unanswered cold request",
			thread: cold,
			msgs:   []model.Message{message(1, 42)},
			want:   true,
		},
		{
			name: "active thread",
			thread: func() model.Thread {
				th := cold()
				th.Status = model.ThreadStatusActive
				return th
			},
		},
		{
			name: "group thread",
			thread: func() model.Thread {
				return group(3, "g", t0)
			},
		},
		{
			name: "other participant follows me",
			thread: func() model.Thread {
				th := cold()
				th.Participants[1].IsFollowing = true
				return th
			},
		},
		{
			name: "I started it",
			thread: func() model.Thread {
				th := cold()
				th.Initiator = &model.Participant{ID: selfID}
				return th
			},
		},
		{
			name:   "I already replied",
			thread: cold,
			msgs:   []model.Message{message(1, 42), message(2, selfID)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UntrustedRequestPolicy{}.ShowRequestPrompt(selfID, tt.thread(), tt.msgs)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequestPolicyFunc(t *testing.T) {
	p := RequestPolicyFunc(func(int64, model.Thread, []model.Message) bool { return true })
	assert.True(t, p.ShowRequestPrompt(selfID, model.Thread{}, nil))
}
