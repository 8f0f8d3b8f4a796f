package session

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatcore/internal/api"
	"github.com/capitalize-ai/chatcore/internal/directory"
	"github.com/capitalize-ai/chatcore/internal/model"
)

type threadCall func(ctx context.Context, threadID int64) error

// confirm issues the remote call behind an optimistic patch. On success the
// next directory snapshot settles the patch, whether or not it agrees;
// snapshots fetched before the call returned are discarded. Failure drops
// the patch and reloads.
func (c *Controller) confirm(ctx context.Context, action string, threadID int64, call threadCall) error {
	err := c.traced(ctx, action, threadID, func(ctx context.Context) error {
		return call(ctx, threadID)
	})
	return c.doDetached(func() error {
		if err != nil {
			c.dir.Settle(threadID)
			c.publish(Update{Kind: UpdateThreads, ThreadID: threadID})
			return c.actionFailed(threadID, err)
		}
		c.dir.MarkSent(threadID)
		c.dirGen++
		c.startReload(action)
		return nil
	})
}

// AcceptRequest accepts a pending message request.
func (c *Controller) AcceptRequest(ctx context.Context, threadID int64) error {
	err := c.do(ctx, func() error {
		t, err := c.thread(threadID)
		if err != nil {
			return err
		}
		if t.Status == model.ThreadStatusActive {
			return nil
		}
		c.dir.Patch(threadID, directory.Patch{Status: model.ThreadStatusActive})
		c.publish(Update{Kind: UpdateThreads, ThreadID: threadID})
		return nil
	})
	if err != nil {
		return err
	}
	return c.confirm(ctx, "accept", threadID, c.api.AcceptRequest)
}

// RejectRequest declines a message request or group invite. The thread
// leaves the directory through the deletion protocol.
func (c *Controller) RejectRequest(ctx context.Context, threadID int64) error {
	return c.remove(ctx, "reject", threadID, nil, c.api.RejectRequest)
}

// DeleteThread deletes a thread for the user.
func (c *Controller) DeleteThread(ctx context.Context, threadID int64) error {
	return c.remove(ctx, "delete_thread", threadID, nil, c.api.DeleteThread)
}

// LeaveGroup leaves a group thread.
func (c *Controller) LeaveGroup(ctx context.Context, threadID int64) error {
	return c.remove(ctx, "leave", threadID, requireGroup, c.api.LeaveGroup)
}

func requireGroup(t model.Thread) error {
	if !t.IsGroup {
		return ErrNotGroup
	}
	return nil
}

// remove runs the deletion protocol: clear the active state, tombstone the
// thread, drop it from the directory, then call the server. Loop state is
// updated in one step before the remote call is issued.
func (c *Controller) remove(ctx context.Context, action string, threadID int64, check func(model.Thread) error, call threadCall) error {
	err := c.do(ctx, func() error {
		t, err := c.thread(threadID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(t); err != nil {
				return err
			}
		}

		updates := []Update{{Kind: UpdateThreads, ThreadID: threadID}}
		if c.active == threadID {
			c.clearActive()
			updates = append(updates, Update{Kind: UpdateSelection})
		}
		c.tombs.Add(threadID)
		c.dir.Remove(threadID)
		c.dirGen++
		c.publish(updates...)
		return nil
	})
	if err != nil {
		return err
	}

	err = c.traced(ctx, action, threadID, func(ctx context.Context) error {
		return call(ctx, threadID)
	})
	if err == nil {
		if c.opts.VerifyDeletes {
			c.verifyRemoved(ctx, threadID)
		}
		return nil
	}

	return c.doDetached(func() error {
		c.tombs.Remove(threadID)
		if errors.Is(err, api.ErrNotFound) {
			c.log.Info("thread already gone", zap.String("action", action), zap.Int64("thread_id", threadID))
			return nil
		}
		c.log.Warn("thread removal failed, reloading", zap.String("action", action),
			zap.Int64("thread_id", threadID), zap.Error(err))
		c.forceReload(action + " failed")
		c.fail(threadID, err)
		return err
	})
}

// verifyRemoved checks that the server no longer serves a removed thread.
// The outcome is only logged; the tombstone runs its full window either way.
func (c *Controller) verifyRemoved(ctx context.Context, threadID int64) {
	gone, err := c.api.VerifyThreadDeleted(ctx, threadID)
	switch {
	case err != nil:
		c.log.Warn("delete verification failed", zap.Int64("thread_id", threadID), zap.Error(err))
	case !gone:
		c.log.Warn("thread still readable after delete", zap.Int64("thread_id", threadID))
	default:
		c.log.Debug("thread deletion verified", zap.Int64("thread_id", threadID))
	}
}

// Block blocks the other participant of a direct thread. A pending request is
// also cleared from view.
func (c *Controller) Block(ctx context.Context, threadID int64) error {
	var userID int64
	err := c.do(ctx, func() error {
		t, err := c.thread(threadID)
		if err != nil {
			return err
		}
		other, ok := t.OtherParticipant(c.self.ID)
		if !ok {
			return ErrNotDirect
		}
		userID = other.UserID()

		updates := []Update{{Kind: UpdateThreads, ThreadID: threadID}}
		if t.Status == model.ThreadStatusPending && c.active == threadID {
			c.clearActive()
			updates = append(updates, Update{Kind: UpdateSelection})
		}
		c.dir.Patch(threadID, directory.Patch{Status: model.ThreadStatusBlocked})
		c.publish(updates...)
		return nil
	})
	if err != nil {
		return err
	}
	return c.confirm(ctx, "block", threadID, func(ctx context.Context, _ int64) error {
		return c.api.BlockUser(ctx, userID)
	})
}

// Unblock lifts a block on the other participant of a direct thread and
// reloads the directory.
func (c *Controller) Unblock(ctx context.Context, threadID int64) error {
	var userID int64
	err := c.do(ctx, func() error {
		t, err := c.thread(threadID)
		if err != nil {
			return err
		}
		other, ok := t.OtherParticipant(c.self.ID)
		if !ok {
			return ErrNotDirect
		}
		userID = other.UserID()
		c.dir.Settle(threadID)
		return nil
	})
	if err != nil {
		return err
	}

	err = c.traced(ctx, "unblock", threadID, func(ctx context.Context) error {
		return c.api.UnblockUser(ctx, userID)
	})
	if err != nil {
		_ = c.doDetached(func() error { return c.actionFailed(threadID, err) })
		return err
	}
	return c.Refresh(ctx)
}

// AddMembers adds users to a group.
func (c *Controller) AddMembers(ctx context.Context, threadID int64, userIDs []int64) error {
	if len(userIDs) == 0 {
		return ErrNoMembers
	}
	return c.groupCall(ctx, "add_members", threadID, func(ctx context.Context, id int64) error {
		return c.api.AddMembers(ctx, id, userIDs)
	})
}

// RemoveMember removes a member from a group.
func (c *Controller) RemoveMember(ctx context.Context, threadID, memberID int64) error {
	return c.groupCall(ctx, "remove_member", threadID, func(ctx context.Context, id int64) error {
		return c.api.RemoveMember(ctx, id, memberID)
	})
}

// PromoteAdmin makes a member a group admin.
func (c *Controller) PromoteAdmin(ctx context.Context, threadID, memberID int64) error {
	return c.groupCall(ctx, "promote_admin", threadID, func(ctx context.Context, id int64) error {
		return c.api.PromoteAdmin(ctx, id, memberID)
	})
}

// DemoteAdmin revokes a member's admin role.
func (c *Controller) DemoteAdmin(ctx context.Context, threadID, memberID int64) error {
	return c.groupCall(ctx, "demote_admin", threadID, func(ctx context.Context, id int64) error {
		return c.api.DemoteAdmin(ctx, id, memberID)
	})
}

// RenameGroup changes a group's name. The new name shows immediately.
func (c *Controller) RenameGroup(ctx context.Context, threadID int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	err := c.do(ctx, func() error {
		t, err := c.thread(threadID)
		if err != nil {
			return err
		}
		if err := requireGroup(t); err != nil {
			return err
		}
		c.dir.Patch(threadID, directory.Patch{GroupName: name})
		c.publish(Update{Kind: UpdateThreads, ThreadID: threadID})
		return nil
	})
	if err != nil {
		return err
	}
	return c.confirm(ctx, "rename_group", threadID, func(ctx context.Context, id int64) error {
		return c.api.UpdateGroupName(ctx, id, name)
	})
}

// groupCall validates a group thread, runs call and reloads the directory.
func (c *Controller) groupCall(ctx context.Context, action string, threadID int64, call threadCall) error {
	err := c.do(ctx, func() error {
		t, err := c.thread(threadID)
		if err != nil {
			return err
		}
		return requireGroup(t)
	})
	if err != nil {
		return err
	}
	return c.confirm(ctx, action, threadID, call)
}
