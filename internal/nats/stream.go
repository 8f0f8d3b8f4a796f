package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName is the name of the session projection stream.
	StreamName = "CHATSESSION"

	// SubjectPrefix is the prefix for all projection subjects.
	SubjectPrefix = "chat"
)

// streamManager is the part of jetstream.JetStream used to manage streams.
type streamManager interface {
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// EnsureStream ensures the projection stream exists. Only the latest message
// per subject is retained; the stream holds current state, not history.
func EnsureStream(ctx context.Context, js streamManager) error {
	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:              StreamName,
		Subjects:          []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:         jetstream.LimitsPolicy,
		MaxMsgsPerSubject: 1,
		MaxAge:            7 * 24 * time.Hour,
		Storage:           jetstream.FileStorage,
		Replicas:          1,
		Discard:           jetstream.DiscardOld,
		Description:       "Latest chat session projection per user",
	})
	if err != nil && !errors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// ThreadsSubject returns the subject carrying a user's thread directory.
func ThreadsSubject(userID int64) string {
	return fmt.Sprintf("%s.%d.threads", SubjectPrefix, userID)
}

// MessagesSubject returns the subject carrying the loaded messages of a thread.
func MessagesSubject(userID, threadID int64) string {
	return fmt.Sprintf("%s.%d.thread.%d.messages", SubjectPrefix, userID, threadID)
}

// TypingSubject returns the subject carrying typing indicators.
func TypingSubject(userID int64) string {
	return fmt.Sprintf("%s.%d.typing", SubjectPrefix, userID)
}
