package messagelog

import (
	"github.com/capitalize-ai/chatcore/internal/model"
)

// PageSize is the number of messages requested per history page.
const PageSize = 50

// Pager tracks backfill state for the thread being viewed.
type Pager struct {
	HasMore  bool  `json:"has_more"`
	OldestID int64 `json:"oldest_loaded_id,omitempty"`
	Loading  bool  `json:"loading_older"`
}

// Log is the message sequence of one thread. It is owned by the session loop
// and is not safe for concurrent use.
type Log struct {
	threadID int64
	messages []model.Message
	pager    Pager
	loaded   bool
}

// New creates an empty log bound to a thread.
func New(threadID int64) *Log {
	return &Log{
		threadID: threadID,
		pager:    Pager{HasMore: true},
	}
}

// ThreadID returns the thread the log belongs to.
func (l *Log) ThreadID() int64 {
	return l.threadID
}

// Apply merges a batch using the given mode. A full reload also recomputes
// HasMore from the batch size.
func (l *Log) Apply(incoming []model.Message, mode Mode) {
	l.messages = Merge(l.messages, incoming, mode)
	if mode == FullReload {
		l.pager.HasMore = len(incoming) >= PageSize
		l.loaded = true
	}
	l.syncOldest()
}

// Loaded reports whether the newest page has been fetched.
func (l *Log) Loaded() bool {
	return l.loaded
}

// Add folds a single message, as received from a send or a stream event.
func (l *Log) Add(msg model.Message) {
	l.Apply([]model.Message{msg}, Append)
}

// Remove drops a message by id and reports whether it was present.
func (l *Log) Remove(messageID int64) bool {
	for i, m := range l.messages {
		if m.ID == messageID {
			l.messages = append(l.messages[:i:i], l.messages[i+1:]...)
			l.syncOldest()
			return true
		}
	}
	return false
}

// MarkRead flags the given ids as read and returns how many changed.
func (l *Log) MarkRead(ids []int64) int {
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	changed := 0
	for i := range l.messages {
		if _, ok := want[l.messages[i].ID]; ok && !l.messages[i].Read {
			l.messages[i].Read = true
			changed++
		}
	}
	return changed
}

// Get returns a message by id.
func (l *Log) Get(messageID int64) (model.Message, bool) {
	for _, m := range l.messages {
		if m.ID == messageID {
			return m, true
		}
	}
	return model.Message{}, false
}

// BeginBackfill reserves the single in-flight backfill slot and returns the
// id to page before. It reports false when a request is already in flight,
// there is no older history, or nothing is loaded yet.
func (l *Log) BeginBackfill() (beforeID int64, ok bool) {
	if l.pager.Loading || !l.pager.HasMore || len(l.messages) == 0 {
		return 0, false
	}
	l.pager.Loading = true
	return l.messages[0].ID, true
}

// FinishBackfill folds an older page and releases the in-flight slot. It
// returns the id of the message that was oldest before the merge, which the
// presentation layer keeps anchored on screen.
func (l *Log) FinishBackfill(batch []model.Message) (anchorID int64) {
	anchorID = l.pager.OldestID
	l.pager.Loading = false
	l.messages = Merge(l.messages, batch, Prepend)
	if len(batch) < PageSize {
		l.pager.HasMore = false
	}
	l.syncOldest()
	return anchorID
}

// AbortBackfill releases the in-flight slot without changing the log.
func (l *Log) AbortBackfill() {
	l.pager.Loading = false
}

// Messages returns a copy of the ordered messages.
func (l *Log) Messages() []model.Message {
	out := make([]model.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of messages.
func (l *Log) Len() int {
	return len(l.messages)
}

// Pager returns the pagination state.
func (l *Log) Pager() Pager {
	return l.pager
}

// LastFrom returns the newest message sent by the given profile.
func (l *Log) LastFrom(senderID int64) (model.Message, bool) {
	for i := len(l.messages) - 1; i >= 0; i-- {
		if l.messages[i].Sender.ID == senderID {
			return l.messages[i], true
		}
	}
	return model.Message{}, false
}

func (l *Log) syncOldest() {
	if len(l.messages) == 0 {
		l.pager.OldestID = 0
		return
	}
	l.pager.OldestID = l.messages[0].ID
}
