package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatcore/internal/messagelog"
	"github.com/capitalize-ai/chatcore/internal/model"
	"github.com/capitalize-ai/chatcore/internal/session"
	"github.com/capitalize-ai/chatcore/pkg/logger"
	"github.com/capitalize-ai/chatcore/pkg/metrics"
)

// Source is the session state a Projector mirrors.
type Source interface {
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Update, func())
}

// jetStream is the part of jetstream.JetStream the projector needs.
type jetStream interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
}

// ThreadsRecord is the payload published on ThreadsSubject.
type ThreadsRecord struct {
	Instance    string         `json:"instance"`
	UserID      int64          `json:"user_id"`
	Threads     []model.Thread `json:"threads"`
	PublishedAt time.Time      `json:"published_at"`
}

// MessagesRecord is the payload published on MessagesSubject.
type MessagesRecord struct {
	Instance    string           `json:"instance"`
	ThreadID    int64            `json:"thread_id"`
	Messages    []model.Message  `json:"messages"`
	Pager       messagelog.Pager `json:"pager"`
	PublishedAt time.Time        `json:"published_at"`
}

// TypingRecord is the payload published on TypingSubject.
type TypingRecord struct {
	ThreadID int64 `json:"thread_id"`
	session.Typing
}

// Projector mirrors a session's projection onto JetStream subjects so other
// processes can read the latest state.
type Projector struct {
	js       jetStream
	userID   int64
	instance string
	logger   *logger.Logger
	now      func() time.Time
}

// NewProjector creates a projector publishing for userID.
func NewProjector(js jetStream, userID int64, log *logger.Logger) *Projector {
	instance := uuid.NewString()
	return &Projector{
		js:       js,
		userID:   userID,
		instance: instance,
		logger:   log.Named("projector").With(zap.String("instance", instance)),
		now:      time.Now,
	}
}

// Run publishes src's projection until ctx ends or src stops. Publish
// failures are logged and do not stop the projector.
func (p *Projector) Run(ctx context.Context, src Source) error {
	updates, cancel := src.Subscribe()
	defer cancel()

	snap := src.Snapshot()
	p.publishThreads(ctx, snap)
	p.publishMessages(ctx, snap)

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			p.handle(ctx, src, u)
		}
	}
}

func (p *Projector) handle(ctx context.Context, src Source, u session.Update) {
	switch u.Kind {
	case session.UpdateThreads:
		p.publishThreads(ctx, src.Snapshot())
	case session.UpdateMessages, session.UpdateSelection:
		p.publishMessages(ctx, src.Snapshot())
	case session.UpdateTyping:
		if u.Typing != nil {
			p.publish(ctx, "typing", TypingSubject(p.userID), TypingRecord{ThreadID: u.ThreadID, Typing: *u.Typing})
		}
	}
}

func (p *Projector) publishThreads(ctx context.Context, snap session.Snapshot) {
	if !snap.Loaded {
		return
	}
	p.publish(ctx, "threads", ThreadsSubject(p.userID), ThreadsRecord{
		Instance:    p.instance,
		UserID:      p.userID,
		Threads:     snap.Threads,
		PublishedAt: p.now().UTC(),
	})
}

func (p *Projector) publishMessages(ctx context.Context, snap session.Snapshot) {
	if snap.ActiveThreadID == 0 {
		return
	}
	p.publish(ctx, "messages", MessagesSubject(p.userID, snap.ActiveThreadID), MessagesRecord{
		Instance:    p.instance,
		ThreadID:    snap.ActiveThreadID,
		Messages:    snap.Messages,
		Pager:       snap.Pager,
		PublishedAt: p.now().UTC(),
	})
}

func (p *Projector) publish(ctx context.Context, kind, subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		metrics.NATSPublishTotal.WithLabelValues(kind, "error").Inc()
		p.logger.Error("failed to encode projection", zap.String("kind", kind), zap.Error(err))
		return
	}

	ack, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(uuid.NewString()))
	if err != nil {
		metrics.NATSPublishTotal.WithLabelValues(kind, "error").Inc()
		p.logger.Warn("failed to publish projection",
			zap.String("kind", kind),
			zap.String("subject", subject),
			zap.Error(err),
		)
		return
	}
	metrics.NATSPublishTotal.WithLabelValues(kind, "ok").Inc()
	p.logger.Debug("projection published", zap.String("subject", subject), zap.Uint64("seq", ack.Sequence))
}

// LastThreads returns the most recently published thread directory for the
// user, or nil when none has been published.
func (p *Projector) LastThreads(ctx context.Context) ([]model.Thread, error) {
	stream, err := p.js.Stream(ctx, StreamName)
	if err != nil {
		if errors.Is(err, jetstream.ErrStreamNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}

	msg, err := stream.GetLastMsgForSubject(ctx, ThreadsSubject(p.userID))
	if err != nil {
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read last directory: %w", err)
	}

	var rec ThreadsRecord
	if err := json.Unmarshal(msg.Data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode directory: %w", err)
	}
	p.logger.Info("restored directory",
		zap.Int("threads", len(rec.Threads)),
		zap.Time("published_at", rec.PublishedAt),
	)
	return rec.Threads, nil
}
