package nats

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chatcore/internal/model"
	"github.com/capitalize-ai/chatcore/internal/session"
	"github.com/capitalize-ai/chatcore/pkg/logger"
)

type published struct {
	subject string
	data    []byte
}

type fakeJS struct {
	mu     sync.Mutex
	msgs   []published
	stream jetstream.Stream
	err    error
}

func (f *fakeJS) Publish(_ context.Context, subject string, payload []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{subject: subject, data: payload})
	return &jetstream.PubAck{Stream: StreamName, Sequence: uint64(len(f.msgs))}, nil
}

func (f *fakeJS) Stream(context.Context, string) (jetstream.Stream, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

func (f *fakeJS) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.msgs))
	for _, m := range f.msgs {
		out = append(out, m.subject)
	}
	return out
}

func (f *fakeJS) last(subject string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.msgs) - 1; i >= 0; i-- {
		if f.msgs[i].subject == subject {
			return f.msgs[i].data, true
		}
	}
	return nil, false
}

// fakeStream serves GetLastMsgForSubject; other Stream methods are not used.
type fakeStream struct {
	jetstream.Stream
	last map[string][]byte
}

func (s *fakeStream) GetLastMsgForSubject(_ context.Context, subject string) (*jetstream.RawStreamMsg, error) {
	data, ok := s.last[subject]
	if !ok {
		return nil, jetstream.ErrMsgNotFound
	}
	return &jetstream.RawStreamMsg{Subject: subject, Data: data}, nil
}

type fakeSource struct {
	mu      sync.Mutex
	snap    session.Snapshot
	updates chan session.Update
}

func (s *fakeSource) Snapshot() session.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *fakeSource) Subscribe() (<-chan session.Update, func()) {
	return s.updates, func() {}
}

func (s *fakeSource) set(snap session.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "chat.7.threads", ThreadsSubject(7))
	assert.Equal(t, "chat.7.thread.12.messages", MessagesSubject(7, 12))
	assert.Equal(t, "chat.7.typing", TypingSubject(7))
}

func TestProjectorPublishesUpdates(t *testing.T) {
	js := &fakeJS{}
	src := &fakeSource{updates: make(chan session.Update, 4)}
	src.set(session.Snapshot{Loaded: true, Threads: []model.Thread{{ID: 1}, {ID: 2}}})

	p := NewProjector(js, 7, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx, src)
	}()

	require.Eventually(t, func() bool { return len(js.subjects()) == 1 }, time.Second, 5*time.Millisecond)

	src.set(session.Snapshot{
		Loaded:         true,
		Threads:        []model.Thread{{ID: 1}},
		ActiveThreadID: 1,
		Messages:       []model.Message{{ID: 5, Content: "hi"}},
	})
	src.updates <- session.Update{Kind: session.UpdateMessages, ThreadID: 1}
	src.updates <- session.Update{Kind: session.UpdateTyping, ThreadID: 1, Typing: &session.Typing{UserID: 3, IsTyping: true}}
	src.updates <- session.Update{Kind: session.UpdateError, ThreadID: 1}

	require.Eventually(t, func() bool { return len(js.subjects()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []string{"chat.7.threads", "chat.7.thread.1.messages", "chat.7.typing"}, js.subjects())

	data, ok := js.last("chat.7.thread.1.messages")
	require.True(t, ok)
	var rec MessagesRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, int64(1), rec.ThreadID)
	require.Len(t, rec.Messages, 1)
	assert.Equal(t, "hi", rec.Messages[0].Content)

	data, ok = js.last("chat.7.typing")
	require.True(t, ok)
	var typing TypingRecord
	require.NoError(t, json.Unmarshal(data, &typing))
	assert.Equal(t, int64(3), typing.UserID)
	assert.True(t, typing.IsTyping)
}

func TestProjectorSkipsUnloadedDirectory(t *testing.T) {
	js := &fakeJS{}
	src := &fakeSource{updates: make(chan session.Update)}
	close(src.updates)

	p := NewProjector(js, 7, logger.NewNop())
	require.NoError(t, p.Run(context.Background(), src))
	assert.Empty(t, js.subjects())
}

func TestLastThreads(t *testing.T) {
	rec, err := json.Marshal(ThreadsRecord{UserID: 7, Threads: []model.Thread{{ID: 4}, {ID: 9}}})
	require.NoError(t, err)

	js := &fakeJS{stream: &fakeStream{last: map[string][]byte{ThreadsSubject(7): rec}}}
	threads, err := NewProjector(js, 7, logger.NewNop()).LastThreads(context.Background())
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, int64(4), threads[0].ID)

	threads, err = NewProjector(js, 8, logger.NewNop()).LastThreads(context.Background())
	require.NoError(t, err)
	assert.Nil(t, threads)
}

func TestLastThreadsWithoutStream(t *testing.T) {
	js := &fakeJS{err: jetstream.ErrStreamNotFound}
	threads, err := NewProjector(js, 7, logger.NewNop()).LastThreads(context.Background())
	require.NoError(t, err)
	assert.Nil(t, threads)
}
