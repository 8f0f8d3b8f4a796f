// Package tombstone tracks threads pending deletion so stale directory
// snapshots cannot bring them back.
package tombstone

import (
	"time"
)

// DefaultGrace is how long a deleted thread stays suppressed.
const DefaultGrace = 30 * time.Second

// Set is a short-lived record of thread ids pending deletion. It is owned by
// the session loop and is not safe for concurrent use.
type Set struct {
	grace   time.Duration
	now     func() time.Time
	entries map[int64]time.Time
}

// New creates a tombstone set with the given grace window.
func New(grace time.Duration, now func() time.Time) *Set {
	if grace <= 0 {
		grace = DefaultGrace
	}
	if now == nil {
		now = time.Now
	}
	return &Set{
		grace:   grace,
		now:     now,
		entries: make(map[int64]time.Time),
	}
}

// Add tombstones a thread until now + grace. Re-adding extends the window.
func (s *Set) Add(threadID int64) time.Time {
	expires := s.now().Add(s.grace)
	s.entries[threadID] = expires
	return expires
}

// Remove drops the tombstone for a thread.
func (s *Set) Remove(threadID int64) {
	delete(s.entries, threadID)
}

// Contains reports whether the thread is currently suppressed. Expired
// entries are dropped on lookup.
func (s *Set) Contains(threadID int64) bool {
	expires, ok := s.entries[threadID]
	if !ok {
		return false
	}
	if !s.now().Before(expires) {
		delete(s.entries, threadID)
		return false
	}
	return true
}

// Purge removes every expired entry and returns how many remain.
func (s *Set) Purge() int {
	now := s.now()
	for id, expires := range s.entries {
		if !now.Before(expires) {
			delete(s.entries, id)
		}
	}
	return len(s.entries)
}

// Len returns the number of entries, including ones not yet purged.
func (s *Set) Len() int {
	return len(s.entries)
}
