// Package session owns the conversation state of one signed-in user: the
// thread directory, the active thread's message log and its live stream.
//
// All state is mutated by a single loop goroutine started with Run. Public
// methods may be called from any goroutine; they hand work to the loop and
// perform remote calls on the caller's goroutine.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/capitalize-ai/chatcore/internal/api"
	"github.com/capitalize-ai/chatcore/internal/directory"
	"github.com/capitalize-ai/chatcore/internal/messagelog"
	"github.com/capitalize-ai/chatcore/internal/model"
	"github.com/capitalize-ai/chatcore/internal/stream"
	"github.com/capitalize-ai/chatcore/internal/tombstone"
	"github.com/capitalize-ai/chatcore/pkg/logger"
	"github.com/capitalize-ai/chatcore/pkg/metrics"
	"github.com/capitalize-ai/chatcore/pkg/tracing"
)

// Controller is the session core.
type Controller struct {
	api     api.Client
	streams stream.Opener
	self    Identity
	opts    Options
	log     *logger.Logger
	limiter *rate.Limiter

	steps   chan func()
	started chan struct{}
	done    chan struct{}
	runCtx  context.Context

	// Owned by the loop.
	dir          *directory.Directory
	tombs        *tombstone.Set
	active       int64
	msgs         *messagelog.Log
	sub          stream.Subscription
	dirGen       uint64
	reloading    bool
	reloadQueued bool

	mu       sync.RWMutex
	snap     Snapshot
	subs     map[int]chan Update
	nextSub  int
	runOnce  sync.Once
	stopOnce sync.Once
}

// New creates a controller. Run must be called before any action.
func New(client api.Client, streams stream.Opener, self Identity, opts Options) *Controller {
	opts = opts.withDefaults()
	c := &Controller{
		api:     client,
		streams: streams,
		self:    self,
		opts:    opts,
		log:     opts.Logger.With(zap.Int64("self_id", self.ID)),
		limiter: opts.limiter(),
		steps:   make(chan func()),
		started: make(chan struct{}),
		done:    make(chan struct{}),
		tombs:   tombstone.New(opts.Grace, opts.Now),
		subs:    make(map[int]chan Update),
	}
	c.dir = directory.New(self.ID, c.suppressed)
	c.snap = Snapshot{Threads: []model.Thread{}, Messages: []model.Message{}}
	return c
}

// Self returns the identity the session acts for.
func (c *Controller) Self() Identity {
	return c.self
}

// Run drives the session loop until ctx is cancelled. It loads the directory
// immediately and then every poll interval.
func (c *Controller) Run(ctx context.Context) error {
	first := false
	c.runOnce.Do(func() { first = true })
	if !first {
		return errors.New("session already running")
	}

	c.runCtx = ctx
	close(c.started)
	defer c.stop()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	c.log.Info("session started", zap.Duration("poll_interval", c.opts.PollInterval))
	c.startReload("initial")

	for {
		select {
		case <-ctx.Done():
			c.closeStream()
			c.log.Info("session stopped")
			return ctx.Err()
		case fn := <-c.steps:
			fn()
		case <-ticker.C:
			c.tombs.Purge()
			c.startReload("poll")
		}
	}
}

// Done is closed when Run returns.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		for id, ch := range c.subs {
			close(ch)
			delete(c.subs, id)
		}
		c.mu.Unlock()
	})
}

// do runs fn on the loop and waits for it.
func (c *Controller) do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	step := func() { result <- fn() }

	select {
	case c.steps <- step:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}

	select {
	case err := <-result:
		return err
	case <-c.done:
		return ErrStopped
	}
}

// post queues fn on the loop without waiting. It returns false once the loop
// has stopped.
func (c *Controller) post(fn func()) bool {
	select {
	case c.steps <- fn:
		return true
	case <-c.done:
		return false
	}
}

// background returns the context for work the loop starts on its own.
func (c *Controller) background() context.Context {
	<-c.started
	return c.runCtx
}

func (c *Controller) suppressed(threadID int64) bool {
	if c.tombs.Contains(threadID) {
		metrics.ThreadsSuppressed.Inc()
		return true
	}
	return false
}

// Snapshot returns the current projection.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Subscribe registers for change notifications. Slow subscribers miss
// updates rather than stall the session. The channel is closed by cancel or
// when the session stops.
func (c *Controller) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, c.opts.UpdateBuffer)

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				close(sub)
				delete(c.subs, id)
			}
		})
	}
}

// publish rebuilds the snapshot and notifies subscribers. Loop only.
func (c *Controller) publish(updates ...Update) {
	snap := Snapshot{
		Threads:  c.dir.List(),
		Loaded:   c.dir.Loaded(),
		Restored: c.dir.Restored(),
		Messages: []model.Message{},
	}
	metrics.ThreadsListed.Set(float64(len(snap.Threads)))

	if c.active != 0 {
		snap.ActiveThreadID = c.active
		if t, ok := snap.Thread(c.active); ok {
			snap.ActiveThread = &t
		}
		if c.msgs != nil {
			snap.Messages = c.msgs.Messages()
			snap.Pager = c.msgs.Pager()
		}
		if snap.ActiveThread != nil {
			snap.ShowRequestPrompt = c.opts.Policy.ShowRequestPrompt(c.self.ID, *snap.ActiveThread, snap.Messages)
		}
		snap.Streaming = c.sub != nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snap
	for _, u := range updates {
		if u.Err != nil && u.Message == "" {
			u.Message = u.Err.Error()
		}
		for _, ch := range c.subs {
			select {
			case ch <- u:
			default:
			}
		}
	}
}

// fail reports an error to subscribers. Loop only.
func (c *Controller) fail(threadID int64, err error) {
	c.publish(Update{Kind: UpdateError, ThreadID: threadID, Err: err})
}

// traced runs a remote call inside a span and records the action outcome.
func (c *Controller) traced(ctx context.Context, action string, threadID int64, call func(context.Context) error) error {
	ctx, span := tracing.Start(ctx, "session."+action, attribute.Int64("thread.id", threadID))
	err := call(ctx)
	tracing.End(span, err)
	metrics.RecordAction(action, err)
	return err
}
