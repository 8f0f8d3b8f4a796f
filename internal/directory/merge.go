// Package directory maintains the deduplicated, ordered list of conversation
// threads visible to the current user.
package directory

import (
	"sort"

	"github.com/capitalize-ai/chatcore/internal/model"
)

// Suppressed reports whether a thread id must be kept out of the directory.
type Suppressed func(threadID int64) bool

// Merge produces the canonical thread list from a raw snapshot.
//
// Tombstoned ids are dropped, group threads are deduplicated by id (first
// wins) and direct threads by the other participant's user id (most recently
// updated wins). The result is sorted newest first and deduplicated by id
// once more.
func Merge(raw []model.Thread, selfID int64, suppressed Suppressed) []model.Thread {
	groups := make(map[int64]model.Thread)
	var groupOrder []int64

	directs := make(map[int64]model.Thread)
	var directOrder []int64

	// Direct threads without a resolvable counterpart are kept by thread id.
	orphans := make(map[int64]model.Thread)
	var orphanOrder []int64

	for _, t := range raw {
		if suppressed != nil && suppressed(t.ID) {
			continue
		}

		if t.IsGroup {
			if _, ok := groups[t.ID]; !ok {
				groups[t.ID] = t
				groupOrder = append(groupOrder, t.ID)
			}
			continue
		}

		other, ok := t.OtherParticipant(selfID)
		if !ok || other.UserID() == 0 {
			if _, seen := orphans[t.ID]; !seen {
				orphans[t.ID] = t
				orphanOrder = append(orphanOrder, t.ID)
			}
			continue
		}

		key := other.UserID()
		existing, seen := directs[key]
		if !seen {
			directs[key] = t
			directOrder = append(directOrder, key)
			continue
		}
		if t.SortTime().After(existing.SortTime()) {
			directs[key] = t
		}
	}

	merged := make([]model.Thread, 0, len(directOrder)+len(orphanOrder)+len(groupOrder))
	for _, key := range directOrder {
		merged = append(merged, directs[key])
	}
	for _, id := range orphanOrder {
		merged = append(merged, orphans[id])
	}
	for _, id := range groupOrder {
		merged = append(merged, groups[id])
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].SortTime().After(merged[j].SortTime())
	})

	return uniqueByID(merged)
}

func uniqueByID(threads []model.Thread) []model.Thread {
	seen := make(map[int64]struct{}, len(threads))
	out := threads[:0]
	for _, t := range threads {
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out
}
