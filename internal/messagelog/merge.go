// Package messagelog keeps the ordered, deduplicated message sequence of the
// active thread and reconciles history fetches with streamed events.
package messagelog

import (
	"sort"

	"github.com/capitalize-ai/chatcore/internal/model"
)

// Mode selects which source wins when ids collide.
type Mode int

const (
	// FullReload replaces the log with the incoming batch.
	FullReload Mode = iota
	// Append folds newer data into the log; incoming entries win.
	Append
	// Prepend folds older history into the log; existing entries win.
	Prepend
)

func (m Mode) String() string {
	switch m {
	case FullReload:
		return "full_reload"
	case Append:
		return "append"
	case Prepend:
		return "prepend"
	default:
		return "unknown"
	}
}

// Merge reconciles existing and incoming messages. The result never holds two
// entries with the same id and is ordered by (created_at, id) ascending.
func Merge(existing, incoming []model.Message, mode Mode) []model.Message {
	byID := make(map[int64]model.Message, len(existing)+len(incoming))

	switch mode {
	case Append:
		put(byID, existing)
		put(byID, incoming)
	case Prepend:
		put(byID, incoming)
		put(byID, existing)
	default:
		put(byID, incoming)
	}

	out := make([]model.Message, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	Sort(out)
	return out
}

// Sort orders messages by (created_at, id) ascending.
func Sort(msgs []model.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].Before(msgs[j])
	})
}

func put(dst map[int64]model.Message, msgs []model.Message) {
	for _, m := range msgs {
		dst[m.ID] = m
	}
}
