package messagelog

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chatcore/internal/model"
)

var base = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func msg(id int64, offset time.Duration) model.Message {
	return model.Message{ID: id, ThreadID: 3, Content: "m", CreatedAt: base.Add(offset)}
}

func seq(from, to int64) []model.Message {
	var out []model.Message
	for id := from; id <= to; id++ {
		out = append(out, msg(id, time.Duration(id)*time.Second))
	}
	return out
}

func idsOf(msgs []model.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestMergeFullReloadReplaces(t *testing.T) {
	merged := Merge(seq(1, 3), seq(10, 11), FullReload)
	assert.Equal(t, []int64{10, 11}, idsOf(merged))
}

func TestMergeAppendIncomingWins(t *testing.T) {
	existing := []model.Message{msg(1, 0)}
	updated := msg(1, 0)
	updated.Read = true

	merged := Merge(existing, []model.Message{updated, msg(2, time.Second)}, Append)

	require.Len(t, merged, 2)
	assert.True(t, merged[0].Read)
}

func TestMergePrependExistingWins(t *testing.T) {
	current := msg(20, 20*time.Second)
	current.Content = "edited locally"
	stale := msg(20, 20*time.Second)
	stale.Content = "old"

	merged := Merge([]model.Message{current}, []model.Message{stale, msg(19, 19*time.Second)}, Prepend)

	assert.Equal(t, []int64{19, 20}, idsOf(merged))
	assert.Equal(t, "edited locally", merged[1].Content)
}

func TestMergeOrdersByCreatedAtThenID(t *testing.T) {
	same := base
	a := model.Message{ID: 9, CreatedAt: same}
	b := model.Message{ID: 4, CreatedAt: same}
	c := model.Message{ID: 1, CreatedAt: same.Add(time.Second)}

	merged := Merge(nil, []model.Message{c, a, b}, Append)

	assert.Equal(t, []int64{4, 9, 1}, idsOf(merged))
}

func TestMergeInvariantsHoldForRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	modes := []Mode{FullReload, Append, Prepend}

	var log []model.Message
	for round := 0; round < 200; round++ {
		batch := make([]model.Message, rng.Intn(8))
		for i := range batch {
			id := int64(rng.Intn(30))
			batch[i] = msg(id, time.Duration(rng.Intn(5))*time.Second)
		}
		log = Merge(log, batch, modes[rng.Intn(len(modes))])

		seen := map[int64]bool{}
		for i, m := range log {
			require.False(t, seen[m.ID], "duplicate id %d", m.ID)
			seen[m.ID] = true
			if i > 0 {
				prev := log[i-1]
				require.False(t, m.CreatedAt.Before(prev.CreatedAt))
				if m.CreatedAt.Equal(prev.CreatedAt) {
					require.Greater(t, m.ID, prev.ID)
				}
			}
		}
	}
}

func TestMergeAppendIsIdempotent(t *testing.T) {
	existing := seq(1, 5)
	batch := append(seq(4, 8), msg(2, 2*time.Second))

	once := Merge(existing, batch, Append)
	twice := Merge(once, batch, Append)

	assert.Equal(t, once, twice)
}

func TestLogStreamAfterSendDoesNotDuplicate(t *testing.T) {
	l := New(3)
	l.Apply([]model.Message{msg(10, 0)}, FullReload)

	sent := msg(11, time.Second)
	l.Add(sent)
	l.Add(sent)

	assert.Equal(t, []int64{10, 11}, idsOf(l.Messages()))
}

func TestLogBackfillMerge(t *testing.T) {
	l := New(3)
	l.Apply([]model.Message{msg(20, 20*time.Second), msg(21, 21*time.Second)}, Append)

	before, ok := l.BeginBackfill()
	require.True(t, ok)
	assert.Equal(t, int64(20), before)

	anchor := l.FinishBackfill([]model.Message{msg(18, 18*time.Second), msg(19, 19*time.Second)})

	assert.Equal(t, int64(20), anchor)
	assert.Equal(t, []int64{18, 19, 20, 21}, idsOf(l.Messages()))
	assert.False(t, l.Pager().HasMore)
	assert.Equal(t, int64(18), l.Pager().OldestID)
}

func TestLogBackfillSingleFlight(t *testing.T) {
	l := New(3)
	l.Apply(seq(100, 149), FullReload)
	require.True(t, l.Pager().HasMore)

	_, ok := l.BeginBackfill()
	require.True(t, ok)
	_, ok = l.BeginBackfill()
	assert.False(t, ok, "second backfill must be dropped while one is in flight")

	l.FinishBackfill(seq(50, 99))
	assert.True(t, l.Pager().HasMore, "a full page keeps has_more")

	_, ok = l.BeginBackfill()
	assert.True(t, ok)
	l.AbortBackfill()
	assert.False(t, l.Pager().Loading)
}

func TestLogLoadedAfterFullReload(t *testing.T) {
	l := New(3)
	assert.False(t, l.Loaded())

	l.Add(msg(1, 0))
	assert.False(t, l.Loaded(), "a single message is not the newest page")

	l.Apply(nil, FullReload)
	assert.True(t, l.Loaded())
}

func TestLogBackfillRequiresHistory(t *testing.T) {
	l := New(3)
	_, ok := l.BeginBackfill()
	assert.False(t, ok)

	l.Apply(seq(1, 3), FullReload)
	assert.False(t, l.Pager().HasMore)
	_, ok = l.BeginBackfill()
	assert.False(t, ok)
}

func TestLogRemoveAndMarkRead(t *testing.T) {
	l := New(3)
	l.Apply(seq(1, 4), FullReload)

	assert.True(t, l.Remove(1))
	assert.False(t, l.Remove(1))
	assert.Equal(t, int64(2), l.Pager().OldestID)

	assert.Equal(t, 2, l.MarkRead([]int64{2, 3, 99}))
	assert.Equal(t, 0, l.MarkRead([]int64{2}))

	m, ok := l.Get(3)
	require.True(t, ok)
	assert.True(t, m.Read)
}

func TestLogLastFrom(t *testing.T) {
	l := New(3)
	a := msg(1, 0)
	a.Sender.ID = 99
	b := msg(2, time.Second)
	b.Sender.ID = 42
	l.Apply([]model.Message{a, b}, FullReload)

	got, ok := l.LastFrom(99)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.ID)

	_, ok = l.LastFrom(7)
	assert.False(t, ok)
}
