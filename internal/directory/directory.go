package directory

import (
	"github.com/capitalize-ai/chatcore/internal/model"
)

// Patch is an optimistic local edit awaiting server confirmation. Empty
// fields are left untouched.
type Patch struct {
	Status    model.ThreadStatus
	GroupName string
}

func (p Patch) apply(t *model.Thread) {
	if p.Status != "" {
		t.Status = p.Status
	}
	if p.GroupName != "" {
		t.GroupName = p.GroupName
	}
}

// confirmedBy reports whether the server state already matches the patch.
func (p Patch) confirmedBy(t model.Thread) bool {
	if p.Status != "" && t.Status != p.Status {
		return false
	}
	if p.GroupName != "" && t.GroupName != p.GroupName {
		return false
	}
	return true
}

// overlay is a pending patch. Once sent, the server has answered the call
// behind it and the next snapshot is authoritative.
type overlay struct {
	Patch
	sent bool
}

// Directory holds the confirmed thread list plus pending optimistic patches.
// It is owned by the session loop and is not safe for concurrent use.
type Directory struct {
	selfID     int64
	suppressed Suppressed
	confirmed  []model.Thread
	pending    map[int64]overlay
	loaded     bool
	restored   bool
}

// New creates an empty directory for the given user.
func New(selfID int64, suppressed Suppressed) *Directory {
	return &Directory{
		selfID:     selfID,
		suppressed: suppressed,
		pending:    make(map[int64]overlay),
	}
}

// Replace merges a live snapshot and makes it the confirmed list. Sent
// patches are settled whatever the snapshot says; unsent ones only when the
// snapshot already reflects them.
func (d *Directory) Replace(raw []model.Thread) []model.Thread {
	d.confirmed = Merge(raw, d.selfID, d.suppressed)
	d.loaded = true
	d.restored = false
	for id, p := range d.pending {
		if p.sent {
			delete(d.pending, id)
		}
	}
	for _, t := range d.confirmed {
		if p, ok := d.pending[t.ID]; ok && p.confirmedBy(t) {
			delete(d.pending, t.ID)
		}
	}
	return d.List()
}

// Restore seeds the list from a saved snapshot without marking the
// directory loaded.
func (d *Directory) Restore(raw []model.Thread) {
	d.confirmed = Merge(raw, d.selfID, d.suppressed)
	d.restored = true
}

// Upsert adds or replaces a single thread, re-running the merge so that
// ordering and uniqueness hold. It returns the id of the visible thread that
// stands for t: t itself, or the newer direct thread with the same user that
// won the merge. ok is false when nothing stands for t.
func (d *Directory) Upsert(t model.Thread) (id int64, ok bool) {
	raw := make([]model.Thread, 0, len(d.confirmed)+1)
	raw = append(raw, t)
	for _, existing := range d.confirmed {
		if existing.ID != t.ID {
			raw = append(raw, existing)
		}
	}
	d.confirmed = Merge(raw, d.selfID, d.suppressed)

	if d.Contains(t.ID) {
		return t.ID, true
	}
	if t.IsGroup {
		return 0, false
	}
	other, found := t.OtherParticipant(d.selfID)
	if !found || other.UserID() == 0 {
		return 0, false
	}
	for _, c := range d.confirmed {
		if c.IsGroup {
			continue
		}
		if o, found := c.OtherParticipant(d.selfID); found && o.UserID() == other.UserID() {
			return c.ID, true
		}
	}
	return 0, false
}

// Remove drops a thread and any patch for it. It reports whether the thread
// was present.
func (d *Directory) Remove(threadID int64) bool {
	delete(d.pending, threadID)
	for i, t := range d.confirmed {
		if t.ID == threadID {
			d.confirmed = append(d.confirmed[:i:i], d.confirmed[i+1:]...)
			return true
		}
	}
	return false
}

// Patch records an optimistic edit for a thread.
func (d *Directory) Patch(threadID int64, p Patch) {
	cur := d.pending[threadID]
	if p.Status != "" {
		cur.Status = p.Status
	}
	if p.GroupName != "" {
		cur.GroupName = p.GroupName
	}
	cur.sent = false
	d.pending[threadID] = cur
}

// MarkSent records that the call confirming a thread's patch has returned.
func (d *Directory) MarkSent(threadID int64) {
	if p, ok := d.pending[threadID]; ok {
		p.sent = true
		d.pending[threadID] = p
	}
}

// Settle discards the optimistic edit for a thread.
func (d *Directory) Settle(threadID int64) {
	delete(d.pending, threadID)
}

// Get returns a thread with any pending patch applied.
func (d *Directory) Get(threadID int64) (model.Thread, bool) {
	for _, t := range d.confirmed {
		if t.ID == threadID {
			if p, ok := d.pending[t.ID]; ok {
				p.apply(&t)
			}
			return t, true
		}
	}
	return model.Thread{}, false
}

// Contains reports whether a thread is visible.
func (d *Directory) Contains(threadID int64) bool {
	_, ok := d.Get(threadID)
	return ok
}

// List returns a copy of the visible threads with pending patches applied.
func (d *Directory) List() []model.Thread {
	out := make([]model.Thread, len(d.confirmed))
	copy(out, d.confirmed)
	for i := range out {
		if p, ok := d.pending[out[i].ID]; ok {
			p.apply(&out[i])
		}
	}
	return out
}

// Len returns the number of visible threads.
func (d *Directory) Len() int {
	return len(d.confirmed)
}

// Loaded reports whether at least one live snapshot has been merged.
func (d *Directory) Loaded() bool {
	return d.loaded
}

// Restored reports whether the list comes from a saved snapshot and no live
// one has been merged yet.
func (d *Directory) Restored() bool {
	return d.restored
}
