package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatcore/internal/api"
	"github.com/capitalize-ai/chatcore/internal/directory"
	"github.com/capitalize-ai/chatcore/internal/messagelog"
	"github.com/capitalize-ai/chatcore/internal/model"
	"github.com/capitalize-ai/chatcore/pkg/metrics"
)

// activeThread returns the active thread, failing when there is none. Loop
// only.
func (c *Controller) activeThread() (model.Thread, error) {
	if c.active == 0 || c.msgs == nil {
		return model.Thread{}, ErrNoActiveThread
	}
	return c.thread(c.active)
}

// Send posts a message to the active thread. Replying to a pending request
// the user did not start accepts it.
func (c *Controller) Send(ctx context.Context, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	var threadID int64
	var autoAccept bool
	err := c.do(ctx, func() error {
		t, err := c.activeThread()
		if err != nil {
			return err
		}
		if c.blocked(t) {
			return ErrThreadBlocked
		}
		threadID = t.ID
		autoAccept = !t.IsGroup && t.Status == model.ThreadStatusPending && !t.InitiatedBy(c.self.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var msg *model.Message
	err = c.traced(ctx, "send", threadID, func(ctx context.Context) error {
		var err error
		msg, err = c.api.SendMessage(ctx, threadID, content)
		return err
	})
	if err != nil {
		metrics.MessagesTotal.WithLabelValues("error").Inc()
		_ = c.do(ctx, func() error { return c.actionFailed(threadID, err) })
		return nil, err
	}
	metrics.MessagesTotal.WithLabelValues("sent").Inc()
	msg.ThreadID = threadID

	err = c.do(ctx, func() error {
		if c.active == threadID && c.msgs != nil {
			c.msgs.Add(*msg)
		}
		updates := []Update{{Kind: UpdateMessages, ThreadID: threadID}}
		if autoAccept {
			c.dir.Patch(threadID, directory.Patch{Status: model.ThreadStatusActive})
			updates = append(updates, Update{Kind: UpdateThreads, ThreadID: threadID})
		}
		c.publish(updates...)
		return nil
	})
	if err != nil {
		return msg, err
	}

	if autoAccept {
		c.log.Info("accepting request by reply", zap.Int64("thread_id", threadID))
		if err := c.confirm(ctx, "auto_accept", threadID, c.api.AcceptRequest); err != nil {
			c.log.Warn("auto-accept failed", zap.Int64("thread_id", threadID), zap.Error(err))
		}
	}
	return msg, nil
}

// Edit replaces the content of a message in the active thread.
func (c *Controller) Edit(ctx context.Context, messageID int64, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	var threadID int64
	err := c.do(ctx, func() error {
		t, err := c.activeThread()
		if err != nil {
			return err
		}
		if c.blocked(t) {
			return ErrThreadBlocked
		}
		if _, ok := c.msgs.Get(messageID); !ok {
			return fmt.Errorf("message %d: %w", messageID, ErrUnknownMessage)
		}
		threadID = t.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	var msg *model.Message
	err = c.traced(ctx, "edit", threadID, func(ctx context.Context) error {
		var err error
		msg, err = c.api.EditMessage(ctx, messageID, content)
		return err
	})
	if err != nil {
		_ = c.do(ctx, func() error { return c.messageFailed(threadID, messageID, err) })
		return nil, err
	}
	msg.ThreadID = threadID

	return msg, c.do(ctx, func() error {
		if c.active == threadID && c.msgs != nil {
			c.msgs.Add(*msg)
			c.publish(Update{Kind: UpdateMessages, ThreadID: threadID})
		}
		return nil
	})
}

// DeleteMessage deletes a message in the active thread, for the user only or
// for every participant.
func (c *Controller) DeleteMessage(ctx context.Context, messageID int64, forEveryone bool) error {
	var threadID int64
	err := c.do(ctx, func() error {
		t, err := c.activeThread()
		if err != nil {
			return err
		}
		if _, ok := c.msgs.Get(messageID); !ok {
			return fmt.Errorf("message %d: %w", messageID, ErrUnknownMessage)
		}
		threadID = t.ID
		return nil
	})
	if err != nil {
		return err
	}

	err = c.traced(ctx, "delete_message", threadID, func(ctx context.Context) error {
		return c.api.DeleteMessage(ctx, messageID, forEveryone)
	})
	if err != nil && !errors.Is(err, api.ErrNotFound) {
		_ = c.do(ctx, func() error { return c.messageFailed(threadID, messageID, err) })
		return err
	}

	return c.do(ctx, func() error {
		if c.active == threadID && c.msgs != nil && c.msgs.Remove(messageID) {
			c.publish(Update{Kind: UpdateMessages, ThreadID: threadID})
		}
		return nil
	})
}

// LoadOlder fetches the page before the oldest loaded message. It returns the
// id of the message to keep anchored in view.
func (c *Controller) LoadOlder(ctx context.Context) (int64, error) {
	var threadID, beforeID int64
	var log *messagelog.Log
	err := c.do(ctx, func() error {
		if c.active == 0 || c.msgs == nil {
			return ErrNoActiveThread
		}
		before, ok := c.msgs.BeginBackfill()
		if !ok {
			return ErrBackfillUnavailable
		}
		threadID, beforeID, log = c.active, before, c.msgs
		c.publish(Update{Kind: UpdateMessages, ThreadID: threadID})
		return nil
	})
	if err != nil {
		return 0, err
	}

	var batch []model.Message
	fetchErr := c.traced(ctx, "load_older", threadID, func(ctx context.Context) error {
		var err error
		batch, err = c.api.GetMessages(ctx, threadID, messagelog.PageSize, beforeID)
		return err
	})

	var anchor int64
	err = c.doDetached(func() error {
		if c.active != threadID || c.msgs != log {
			log.AbortBackfill()
			return nil
		}
		if fetchErr != nil {
			c.msgs.AbortBackfill()
			return c.historyFailed(threadID, fetchErr)
		}
		anchor = c.msgs.FinishBackfill(batch)
		c.publish(Update{Kind: UpdateMessages, ThreadID: threadID, Anchor: anchor})
		return nil
	})
	return anchor, err
}

// doDetached runs fn on the loop even when the caller's context has ended, so an
// in-flight slot reserved on the loop is always released.
func (c *Controller) doDetached(fn func() error) error {
	return c.do(context.Background(), fn)
}

// SetTyping tells the other participants whether the user is typing.
func (c *Controller) SetTyping(ctx context.Context, typing bool) error {
	type typingSender interface {
		SendTyping(ctx context.Context, typing bool) error
	}

	var sender typingSender
	err := c.do(ctx, func() error {
		if c.active == 0 {
			return ErrNoActiveThread
		}
		if s, ok := c.sub.(typingSender); ok {
			sender = s
		}
		return nil
	})
	if err != nil || sender == nil {
		return err
	}
	return sender.SendTyping(ctx, typing)
}

// applyEvent folds a stream event into the active log. Events for any other
// thread are stale and dropped. Loop only.
func (c *Controller) applyEvent(ev model.StreamEvent) {
	if ev.ThreadID != c.active || c.msgs == nil {
		metrics.RecordStreamEvent(string(ev.Type), false)
		return
	}

	changed := false
	switch ev.Type {
	case model.EventTypeNewMessage, model.EventTypeMessageEdited:
		if ev.Message == nil {
			break
		}
		m := *ev.Message
		m.ThreadID = ev.ThreadID
		c.msgs.Add(m)
		changed = true
	case model.EventTypeMessageDeleted:
		changed = c.msgs.Remove(ev.MessageID)
	case model.EventTypeMessagesRead:
		changed = c.msgs.MarkRead(ev.MessageIDs) > 0
	case model.EventTypeUserTyping:
		metrics.RecordStreamEvent(string(ev.Type), true)
		c.publish(Update{Kind: UpdateTyping, ThreadID: ev.ThreadID, Typing: &Typing{
			UserID:   ev.UserID,
			Username: ev.Username,
			IsTyping: ev.IsTyping,
		}})
		return
	default:
		metrics.RecordStreamEvent(string(ev.Type), false)
		return
	}

	metrics.RecordStreamEvent(string(ev.Type), changed)
	if changed {
		c.publish(Update{Kind: UpdateMessages, ThreadID: ev.ThreadID})
	}
}

// messageFailed handles a failed edit or delete. Loop only.
func (c *Controller) messageFailed(threadID, messageID int64, err error) error {
	if errors.Is(err, api.ErrNotFound) && c.active == threadID && c.msgs != nil {
		if c.msgs.Remove(messageID) {
			c.publish(Update{Kind: UpdateMessages, ThreadID: threadID})
		}
		return err
	}
	return c.actionFailed(threadID, err)
}

// actionFailed reacts to a failed remote call on a thread. A vanished thread
// is dropped; a forbidden call means the block relationship changed, so the
// directory is reloaded. Loop only.
func (c *Controller) actionFailed(threadID int64, err error) error {
	switch {
	case errors.Is(err, api.ErrNotFound):
		c.dir.Remove(threadID)
		c.dirGen++
		updates := []Update{{Kind: UpdateThreads}}
		if c.active == threadID {
			c.clearActive()
			updates = append(updates, Update{Kind: UpdateSelection})
		}
		c.publish(updates...)
		c.forceReload("thread not found")
	case errors.Is(err, api.ErrForbidden):
		c.forceReload("forbidden")
	}
	c.log.Warn("thread action failed", zap.Int64("thread_id", threadID), zap.Error(err))
	c.fail(threadID, err)
	return err
}
