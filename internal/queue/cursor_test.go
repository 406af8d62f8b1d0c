package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trackIDs(q *Queue) []string {
	ids := make([]string, 0, len(q.Items))
	for _, it := range q.Items {
		if it.Type == ItemTrack {
			ids = append(ids, it.TrackID)
		} else {
			ids = append(ids, "coll")
		}
	}
	return ids
}

func reverse(n int, swap func(i, j int)) {
	for i := range n / 2 {
		swap(i, n-1-i)
	}
}

func TestAppendTracks_UniquePositions(t *testing.T) {
	q := New("ch")
	q.AppendTracks("a", "b")
	q.AppendCollection(7)
	q.AppendTracks("c")

	seen := map[int]bool{}
	for _, it := range q.Items {
		assert.False(t, seen[it.Position], "duplicate position %d", it.Position)
		seen[it.Position] = true
		assert.Equal(t, it.Position, it.OriginalPosition)
	}
	assert.Equal(t, []string{"a", "b", "coll", "c"}, trackIDs(q))
	assert.Equal(t, int64(7), q.Items[2].CollectionID)
	assert.Equal(t, 0, q.Items[2].CurrentIndex)
}

func TestAdvance_ClampsAtEnd(t *testing.T) {
	q := New("ch")
	q.AppendTracks("a", "b")

	assert.Equal(t, OutcomeMoved, q.Advance(0))
	assert.Equal(t, 1, q.CurrentPosition)

	assert.Equal(t, OutcomeBoundary, q.Advance(0))
	assert.Equal(t, 1, q.CurrentPosition)
	assert.Equal(t, "b", q.Current().TrackID)
}

func TestAdvance_EmptyQueue(t *testing.T) {
	q := New("ch")
	assert.Equal(t, OutcomeEmpty, q.Advance(0))
	assert.Equal(t, OutcomeEmpty, q.Retreat())
	assert.Equal(t, OutcomeEmpty, q.SkipItem())
}

func TestAdvance_WalksCollection(t *testing.T) {
	q := New("ch")
	q.AppendTracks("a")
	q.AppendCollection(1) // B, C, D
	q.AppendTracks("e")

	require.Equal(t, OutcomeMoved, q.Advance(0))
	assert.Equal(t, ItemCollection, q.Current().Type)
	assert.Equal(t, 0, q.Current().CurrentIndex)

	require.Equal(t, OutcomeMoved, q.Advance(3))
	assert.Equal(t, 1, q.Current().CurrentIndex)

	require.Equal(t, OutcomeMoved, q.Advance(3))
	assert.Equal(t, 2, q.Current().CurrentIndex)

	// consumed collection is removed, cursor lands on e
	require.Equal(t, OutcomeMoved, q.Advance(3))
	assert.Equal(t, []string{"a", "e"}, trackIDs(q))
	assert.Equal(t, "e", q.Current().TrackID)

	assert.Equal(t, OutcomeBoundary, q.Advance(0))
}

func TestAdvance_LastCollectionConsumed(t *testing.T) {
	q := New("ch")
	q.AppendTracks("a")
	q.AppendCollection(1)
	q.CurrentPosition = 1
	q.Items[1].CurrentIndex = 1

	assert.Equal(t, OutcomeBoundary, q.Advance(2))
	assert.Equal(t, []string{"a"}, trackIDs(q))
	assert.Equal(t, 0, q.CurrentPosition)
}

func TestAdvance_LoopPlaylistWrapsAndRewinds(t *testing.T) {
	q := New("ch")
	q.LoopMode = LoopPlaylist
	q.AppendTracks("a")
	q.AppendCollection(1)
	q.CurrentPosition = 1
	q.Items[1].CurrentIndex = 1

	assert.Equal(t, OutcomeMoved, q.Advance(2))
	assert.Equal(t, 0, q.CurrentPosition)
	assert.Equal(t, 0, q.Items[1].CurrentIndex)
	assert.Equal(t, 2, q.Len())
}

func TestRetreat(t *testing.T) {
	q := New("ch")
	q.AppendTracks("a")
	q.AppendCollection(1)
	q.CurrentPosition = 1
	q.Items[1].CurrentIndex = 1

	assert.Equal(t, OutcomeMoved, q.Retreat())
	assert.Equal(t, 0, q.Items[1].CurrentIndex)
	assert.Equal(t, 1, q.CurrentPosition)

	assert.Equal(t, OutcomeMoved, q.Retreat())
	assert.Equal(t, 0, q.CurrentPosition)

	assert.Equal(t, OutcomeBoundary, q.Retreat())
	assert.Equal(t, 0, q.CurrentPosition)
}

func TestSkipItem_LeavesCollection(t *testing.T) {
	q := New("ch")
	q.AppendCollection(1)
	q.AppendTracks("b")

	assert.Equal(t, OutcomeMoved, q.SkipItem())
	assert.Equal(t, "b", q.Current().TrackID)
	// skipped collections stay in the queue
	assert.Equal(t, 2, q.Len())
}

func TestRemove(t *testing.T) {
	t.Run("current item lands on successor", func(t *testing.T) {
		q := New("ch")
		q.AppendTracks("a", "b", "c")
		q.CurrentPosition = 1

		assert.Equal(t, OutcomeMoved, q.Remove(q.Items[1].ID))
		assert.Equal(t, "c", q.Current().TrackID)
	})

	t.Run("item before cursor keeps current", func(t *testing.T) {
		q := New("ch")
		q.AppendTracks("a", "b", "c")
		q.CurrentPosition = 2

		assert.Equal(t, OutcomeMoved, q.Remove(q.Items[0].ID))
		assert.Equal(t, "c", q.Current().TrackID)
	})

	t.Run("last current item is boundary", func(t *testing.T) {
		q := New("ch")
		q.AppendTracks("a", "b")
		q.CurrentPosition = 1

		assert.Equal(t, OutcomeBoundary, q.Remove(q.Items[1].ID))
		assert.Equal(t, 0, q.CurrentPosition)
	})

	t.Run("only item empties queue", func(t *testing.T) {
		q := New("ch")
		q.AppendTracks("a")

		assert.Equal(t, OutcomeEmpty, q.Remove(q.Items[0].ID))
		assert.True(t, q.IsEmpty())
	})
}

func TestShuffleAndRestore(t *testing.T) {
	q := New("ch")
	q.AppendTracks("t1", "t2", "t3", "t4", "t5")
	q.CurrentPosition = 1

	q.Shuffle(reverse)

	assert.Equal(t, []string{"t5", "t2", "t4", "t3", "t1"}, trackIDs(q))
	assert.Equal(t, "t2", q.Current().TrackID)

	assert.Equal(t, OutcomeMoved, q.RestoreOrder())

	assert.Equal(t, []string{"t1", "t2", "t3", "t4", "t5"}, trackIDs(q))
	assert.Equal(t, 0, q.CurrentPosition)
	for _, it := range q.Items {
		assert.Equal(t, it.OriginalPosition, it.Position)
	}
}

func TestRestoreOrder_SameCurrentIsReordered(t *testing.T) {
	q := New("ch")
	q.AppendTracks("t1", "t2", "t3")

	q.Shuffle(reverse)
	assert.Equal(t, "t1", q.Current().TrackID)

	assert.Equal(t, OutcomeReordered, q.RestoreOrder())
	assert.Equal(t, []string{"t1", "t2", "t3"}, trackIDs(q))
	assert.Equal(t, OutcomeEmpty, New("ch").RestoreOrder())
}

func TestAppendAfterShuffle_KeepsPositionsUnique(t *testing.T) {
	q := New("ch")
	q.AppendTracks("a", "b", "c")
	q.Shuffle(reverse)
	q.AppendTracks("d")
	q.RestoreOrder()

	assert.Equal(t, []string{"a", "b", "c", "d"}, trackIDs(q))
}

func TestToggleLoopMode(t *testing.T) {
	q := New("ch")
	assert.Equal(t, LoopTrack, q.ToggleLoopMode())
	assert.Equal(t, LoopNone, q.ToggleLoopMode())

	q.LoopMode = LoopPlaylist
	assert.Equal(t, LoopNone, q.ToggleLoopMode())
}

func TestReconcileCollection(t *testing.T) {
	q := New("ch")
	q.AppendCollection(1)
	q.AppendCollection(2)
	q.Items[0].CurrentIndex = 3
	q.Items[1].CurrentIndex = 3

	// tracks 0 and 1 of collection 1 removed, 5 tracks left
	assert.True(t, q.ReconcileCollection(1, []int{0, 1}, 5))
	assert.Equal(t, 1, q.Items[0].CurrentIndex)
	assert.Equal(t, 3, q.Items[1].CurrentIndex)

	// index clamped into the shrunken collection
	q.Items[0].CurrentIndex = 4
	assert.True(t, q.ReconcileCollection(1, []int{5}, 2))
	assert.Equal(t, 1, q.Items[0].CurrentIndex)
}

func TestRemainingSlots(t *testing.T) {
	q := New("ch")
	q.AppendTracks("a")
	q.AppendCollection(1)
	q.AppendCollection(2)
	q.CurrentPosition = 1
	q.Items[1].CurrentIndex = 1

	sizes := map[int64]int{1: 4, 2: 0}
	// 3 left in collection 1, empty collection 2 still counts once
	assert.Equal(t, 4, q.RemainingSlots(func(id int64) int { return sizes[id] }))
}

func TestClampVolume(t *testing.T) {
	assert.Equal(t, 0, ClampVolume(-5))
	assert.Equal(t, 150, ClampVolume(150))
	assert.Equal(t, 200, ClampVolume(500))
}

func TestParseLoopMode(t *testing.T) {
	for _, m := range []LoopMode{LoopNone, LoopTrack, LoopPlaylist} {
		assert.Equal(t, m, ParseLoopMode(m.String()))
	}
	assert.Equal(t, LoopNone, ParseLoopMode("bogus"))
}
