package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatcore/internal/api"
	"github.com/capitalize-ai/chatcore/internal/messagelog"
	"github.com/capitalize-ai/chatcore/internal/model"
	"github.com/capitalize-ai/chatcore/internal/stream"
	"github.com/capitalize-ai/chatcore/pkg/metrics"
	"github.com/capitalize-ai/chatcore/pkg/tracing"
)

// startReload fetches the directory in the background. Loop only.
func (c *Controller) startReload(trigger string) {
	if c.reloading {
		c.reloadQueued = true
		return
	}
	c.reloading = true
	gen := c.dirGen
	metrics.Reloads.WithLabelValues(trigger).Inc()

	go func() {
		ctx, span := tracing.Start(c.background(), "session.reload")
		threads, err := c.api.ListThreads(ctx)
		tracing.End(span, err)

		c.post(func() {
			c.reloading = false
			c.finishReload(gen, trigger, threads, err)
			if c.reloadQueued {
				c.reloadQueued = false
				c.startReload("queued")
			}
		})
	}()
}

// forceReload rolls back optimistic state by reloading, subject to the
// limiter. A refused reload is left to the next poll. Loop only.
func (c *Controller) forceReload(reason string) {
	if !c.limiter.AllowN(c.opts.Now(), 1) {
		c.log.Debug("forced reload deferred to next poll", zap.String("reason", reason))
		return
	}
	c.startReload("rollback")
}

func (c *Controller) finishReload(gen uint64, trigger string, threads []model.Thread, err error) {
	if err != nil {
		c.log.Warn("directory reload failed", zap.String("trigger", trigger), zap.Error(err))
		c.fail(0, fmt.Errorf("reload threads: %w", err))
		return
	}
	if gen != c.dirGen {
		c.log.Debug("discarding stale directory snapshot", zap.String("trigger", trigger))
		c.reloadQueued = true
		return
	}
	c.applyDirectory(threads)
}

// applyDirectory merges a confirmed snapshot. Loop only.
func (c *Controller) applyDirectory(raw []model.Thread) {
	c.dir.Replace(raw)
	updates := []Update{{Kind: UpdateThreads}}
	if c.active != 0 && !c.dir.Contains(c.active) {
		c.log.Info("active thread vanished from directory", zap.Int64("thread_id", c.active))
		c.clearActive()
		updates = append(updates, Update{Kind: UpdateSelection})
	}
	c.publish(updates...)
}

// Restore seeds the directory from a previously published snapshot. It is a
// no-op once a live snapshot has been merged. A restored directory does not
// count as loaded.
func (c *Controller) Restore(ctx context.Context, threads []model.Thread) error {
	return c.do(ctx, func() error {
		if c.dir.Loaded() || len(threads) == 0 {
			return nil
		}
		c.dir.Restore(threads)
		c.publish(Update{Kind: UpdateThreads})
		return nil
	})
}

// Refresh reloads the directory now and, when a thread is active, folds in
// its newest page and reconnects its stream if it has dropped.
func (c *Controller) Refresh(ctx context.Context) error {
	var gen uint64
	err := c.do(ctx, func() error {
		gen = c.dirGen
		return nil
	})
	if err != nil {
		return err
	}

	var threads []model.Thread
	err = c.traced(ctx, "refresh", 0, func(ctx context.Context) error {
		var err error
		threads, err = c.api.ListThreads(ctx)
		return err
	})
	if err != nil {
		return err
	}

	var active int64
	var log *messagelog.Log
	err = c.do(ctx, func() error {
		if gen != c.dirGen {
			c.startReload("refresh")
		} else {
			metrics.Reloads.WithLabelValues("refresh").Inc()
			c.applyDirectory(threads)
		}
		active, log = c.active, c.msgs
		return nil
	})
	if err != nil || active == 0 {
		return err
	}

	msgs, fetchErr := c.api.GetMessages(ctx, active, messagelog.PageSize, 0)
	reconnect := false
	err = c.do(ctx, func() error {
		if c.active != active || c.msgs != log {
			return nil
		}
		if fetchErr != nil {
			return c.historyFailed(active, fetchErr)
		}
		mode := messagelog.Append
		if !c.msgs.Loaded() {
			mode = messagelog.FullReload
		}
		c.msgs.Apply(msgs, mode)
		c.publish(Update{Kind: UpdateMessages, ThreadID: active})
		reconnect = c.sub == nil
		return nil
	})
	if err != nil || !reconnect {
		return err
	}
	c.openStream(ctx, active, log)
	return nil
}

// historyFailed handles a failed message fetch for the active thread. A
// missing thread clears the selection. Loop only.
func (c *Controller) historyFailed(threadID int64, err error) error {
	if errors.Is(err, api.ErrNotFound) {
		c.log.Info("active thread no longer exists", zap.Int64("thread_id", threadID))
		c.dir.Remove(threadID)
		c.dirGen++
		c.clearActive()
		c.publish(Update{Kind: UpdateThreads}, Update{Kind: UpdateSelection})
		c.forceReload("thread not found")
		return err
	}
	c.log.Warn("message fetch failed", zap.Int64("thread_id", threadID), zap.Error(err))
	c.fail(threadID, err)
	return err
}

// Select makes a thread active: the previous stream is closed, the newest
// page is loaded and a stream is opened for the thread. Selecting the active
// thread again is a no-op unless its history failed to load or its stream
// has dropped, in which case both are re-established.
func (c *Controller) Select(ctx context.Context, threadID int64) error {
	var log *messagelog.Log
	err := c.do(ctx, func() error {
		if !c.dir.Contains(threadID) {
			return fmt.Errorf("select %d: %w", threadID, ErrUnknownThread)
		}
		if c.active == threadID && c.msgs != nil && c.msgs.Loaded() && (c.sub != nil || c.streams == nil) {
			return nil
		}
		c.clearActive()
		c.active = threadID
		c.msgs = messagelog.New(threadID)
		log = c.msgs
		c.publish(Update{Kind: UpdateSelection, ThreadID: threadID})
		return nil
	})
	if err != nil || log == nil {
		return err
	}

	var msgs []model.Message
	loadErr := c.traced(ctx, "load_messages", threadID, func(ctx context.Context) error {
		var err error
		msgs, err = c.api.GetMessages(ctx, threadID, messagelog.PageSize, 0)
		return err
	})
	err = c.do(ctx, func() error {
		if c.active != threadID || c.msgs != log {
			return nil
		}
		if loadErr != nil {
			return c.historyFailed(threadID, loadErr)
		}
		c.msgs.Apply(msgs, messagelog.FullReload)
		c.publish(Update{Kind: UpdateMessages, ThreadID: threadID})
		return nil
	})
	if err != nil {
		return err
	}

	c.openStream(ctx, threadID, log)
	return nil
}

// openStream connects the thread's stream and attaches it if the thread is
// still active. A failed open leaves the thread without live updates.
func (c *Controller) openStream(ctx context.Context, threadID int64, log *messagelog.Log) {
	if c.streams == nil {
		return
	}
	sub, err := c.streams.Open(ctx, threadID)
	posted := c.post(func() {
		if err != nil {
			c.log.Warn("stream open failed", zap.Int64("thread_id", threadID), zap.Error(err))
			if c.active == threadID {
				c.publish(Update{Kind: UpdateStream, ThreadID: threadID, Err: err})
			}
			return
		}
		if c.active != threadID || c.msgs != log || c.sub != nil {
			go sub.Close()
			return
		}
		c.sub = sub
		go c.pump(sub)
		c.publish(Update{Kind: UpdateStream, ThreadID: threadID})
	})
	if !posted && sub != nil {
		_ = sub.Close()
	}
}

// pump forwards stream events to the loop.
func (c *Controller) pump(sub stream.Subscription) {
	for ev := range sub.Events() {
		ev := ev
		if !c.post(func() { c.applyEvent(ev) }) {
			_ = sub.Close()
			return
		}
	}
	c.post(func() { c.streamEnded(sub) })
}

func (c *Controller) streamEnded(sub stream.Subscription) {
	if c.sub != sub {
		return
	}
	c.sub = nil
	err := sub.Err()
	if err == nil {
		c.log.Info("stream closed", zap.Int64("thread_id", sub.ThreadID()))
		c.publish(Update{Kind: UpdateStream, ThreadID: sub.ThreadID()})
		return
	}
	if errors.Is(err, stream.ErrAccessDenied) {
		c.log.Warn("stream access denied", zap.Int64("thread_id", sub.ThreadID()))
	} else {
		c.log.Warn("stream failed", zap.Int64("thread_id", sub.ThreadID()), zap.Error(err))
	}
	c.publish(Update{Kind: UpdateStream, ThreadID: sub.ThreadID(), Err: err})
}

// Deselect clears the active thread.
func (c *Controller) Deselect(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.active == 0 {
			return nil
		}
		c.clearActive()
		c.publish(Update{Kind: UpdateSelection})
		return nil
	})
}

// clearActive drops all active-thread state and closes its stream. Loop only.
func (c *Controller) clearActive() {
	c.closeStream()
	c.active = 0
	c.msgs = nil
}

func (c *Controller) closeStream() {
	if c.sub == nil {
		return
	}
	sub := c.sub
	c.sub = nil
	go func() {
		if err := sub.Close(); err != nil {
			c.log.Debug("stream close failed", zap.Error(err))
		}
	}()
}

// adopt brings a thread returned by an explicit open or create into the
// directory, lifting any tombstone on it. It returns the thread the directory
// shows for it, which is a newer parallel thread with the same user when the
// server handed back an older one. Loop only.
func (c *Controller) adopt(t model.Thread) (model.Thread, error) {
	c.tombs.Remove(t.ID)
	id, ok := c.dir.Upsert(t)
	c.dirGen++
	c.publish(Update{Kind: UpdateThreads, ThreadID: t.ID})
	if !ok {
		return model.Thread{}, fmt.Errorf("adopt %d: %w", t.ID, ErrUnknownThread)
	}
	if id != t.ID {
		c.log.Info("opened thread superseded by a newer one",
			zap.Int64("thread_id", t.ID), zap.Int64("selected_id", id))
	}
	return c.thread(id)
}

// adoptAndSelect adopts t and selects the thread standing for it.
func (c *Controller) adoptAndSelect(ctx context.Context, t model.Thread) (*model.Thread, error) {
	var shown model.Thread
	err := c.do(ctx, func() error {
		var err error
		shown, err = c.adopt(t)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &shown, c.Select(ctx, shown.ID)
}

// OpenDirect gets or creates the direct thread with a user and selects it.
func (c *Controller) OpenDirect(ctx context.Context, userID int64) (*model.Thread, error) {
	if userID == 0 || userID == c.self.ID {
		return nil, ErrSelfThread
	}

	var t *model.Thread
	err := c.traced(ctx, "open_direct", 0, func(ctx context.Context) error {
		var err error
		t, err = c.api.GetOrCreateThread(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return c.adoptAndSelect(ctx, *t)
}

// CreateGroup creates a group thread with the given members and selects it.
func (c *Controller) CreateGroup(ctx context.Context, name string, memberIDs []int64) (*model.Thread, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	members := make([]int64, 0, len(memberIDs))
	seen := map[int64]bool{c.self.ID: true}
	for _, id := range memberIDs {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}
	if len(members) < 2 {
		return nil, ErrGroupTooSmall
	}

	var t *model.Thread
	err := c.traced(ctx, "create_group", 0, func(ctx context.Context) error {
		var err error
		t, err = c.api.CreateThread(ctx, &model.CreateThreadRequest{
			Participants: members,
			IsGroup:      true,
			GroupName:    name,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return c.adoptAndSelect(ctx, *t)
}

// thread returns a visible thread or ErrUnknownThread. Loop only.
func (c *Controller) thread(threadID int64) (model.Thread, error) {
	t, ok := c.dir.Get(threadID)
	if !ok {
		return model.Thread{}, fmt.Errorf("thread %d: %w", threadID, ErrUnknownThread)
	}
	return t, nil
}

// blocked reports whether interaction with a thread is disabled.
func (c *Controller) blocked(t model.Thread) bool {
	if t.Status == model.ThreadStatusBlocked {
		return true
	}
	if other, ok := t.OtherParticipant(c.self.ID); ok {
		return other.IsBlockedByMe || other.IsBlockingMe
	}
	return false
}
