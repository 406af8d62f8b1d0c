package queue

// Outcome reports what a cursor operation did.
type Outcome int

const (
	// OutcomeEmpty means there was no queue or it had no items.
	OutcomeEmpty Outcome = iota
	// OutcomeMoved means the cursor now points at a different slot.
	OutcomeMoved
	// OutcomeBoundary means the cursor hit an end of the queue and was
	// clamped. After Advance or SkipItem this means the queue is finished.
	OutcomeBoundary
	// OutcomeReordered means items moved around the current slot, which
	// stayed the same.
	OutcomeReordered
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeEmpty:
		return "empty"
	case OutcomeMoved:
		return "moved"
	case OutcomeBoundary:
		return "boundary"
	case OutcomeReordered:
		return "reordered"
	default:
		return "unknown"
	}
}

// AppendTracks adds TRACK items at the tail with contiguous positions.
func (q *Queue) AppendTracks(trackIDs ...string) {
	pos := q.nextPosition()
	id := q.nextItemID()
	for i, trackID := range trackIDs {
		q.Items = append(q.Items, Item{
			ID:               id + int64(i),
			Type:             ItemTrack,
			Position:         pos + i,
			OriginalPosition: pos + i,
			TrackID:          trackID,
		})
	}
}

// AppendCollection adds one COLLECTION item at the tail, starting at its first track.
func (q *Queue) AppendCollection(collectionID int64) {
	pos := q.nextPosition()
	q.Items = append(q.Items, Item{
		ID:               q.nextItemID(),
		Type:             ItemCollection,
		Position:         pos,
		OriginalPosition: pos,
		CollectionID:     collectionID,
	})
}

// Advance moves to the next track. Inside a collection with tracks left it
// only bumps CurrentIndex. A fully consumed collection is removed from the
// queue, or rewound when looping the whole playlist. At the last item the
// cursor stays put and OutcomeBoundary is returned unless LoopPlaylist wraps.
//
// collectionLen is the track count of the current item when it is a
// collection; it is ignored for tracks.
func (q *Queue) Advance(collectionLen int) Outcome {
	cur := q.Current()
	if cur == nil {
		return OutcomeEmpty
	}

	if cur.Type == ItemCollection {
		if cur.CurrentIndex+1 < collectionLen {
			cur.CurrentIndex++
			return OutcomeMoved
		}
		if q.LoopMode != LoopPlaylist {
			return q.removeAt(q.CurrentPosition)
		}
		cur.CurrentIndex = 0
	}

	return q.stepForward()
}

// SkipItem moves to the next queue-level item, ignoring the position inside
// a collection.
func (q *Queue) SkipItem() Outcome {
	if q.Current() == nil {
		return OutcomeEmpty
	}
	return q.stepForward()
}

func (q *Queue) stepForward() Outcome {
	if q.CurrentPosition < len(q.Items)-1 {
		q.CurrentPosition++
		return OutcomeMoved
	}
	if q.LoopMode == LoopPlaylist && len(q.Items) > 1 {
		q.CurrentPosition = 0
		return OutcomeMoved
	}
	if q.LoopMode == LoopPlaylist {
		// A single item wraps onto itself.
		return OutcomeMoved
	}
	return OutcomeBoundary
}

// Retreat moves to the previous track: inside a collection it decrements
// CurrentIndex, otherwise the queue cursor, clamped at 0.
func (q *Queue) Retreat() Outcome {
	cur := q.Current()
	if cur == nil {
		return OutcomeEmpty
	}
	if cur.Type == ItemCollection && cur.CurrentIndex > 0 {
		cur.CurrentIndex--
		return OutcomeMoved
	}
	if q.CurrentPosition > 0 {
		q.CurrentPosition--
		return OutcomeMoved
	}
	return OutcomeBoundary
}

// Remove deletes the item with the given ID. When the current item is
// removed the cursor lands on its successor; OutcomeBoundary reports that
// there was none.
func (q *Queue) Remove(itemID int64) Outcome {
	idx := q.IndexOf(itemID)
	if idx < 0 {
		if q.IsEmpty() {
			return OutcomeEmpty
		}
		return OutcomeMoved
	}
	return q.removeAt(idx)
}

func (q *Queue) removeAt(idx int) Outcome {
	q.Items = append(q.Items[:idx], q.Items[idx+1:]...)

	switch {
	case len(q.Items) == 0:
		q.CurrentPosition = 0
		return OutcomeEmpty
	case idx < q.CurrentPosition:
		q.CurrentPosition--
	case idx == q.CurrentPosition && q.CurrentPosition >= len(q.Items):
		q.CurrentPosition = len(q.Items) - 1
		if q.LoopMode == LoopPlaylist {
			q.CurrentPosition = 0
			return OutcomeMoved
		}
		return OutcomeBoundary
	}
	return OutcomeMoved
}

// Shuffle permutes every item except the current one, which keeps its
// position value. swap follows the rand.Shuffle contract.
func (q *Queue) Shuffle(shuffle func(n int, swap func(i, j int))) {
	if len(q.Items) < 2 {
		return
	}
	q.sortItems()

	var others []int // indexes of non-current items
	for i := range q.Items {
		if i != q.CurrentPosition {
			others = append(others, i)
		}
	}

	positions := make([]int, len(others))
	for i, idx := range others {
		positions[i] = q.Items[idx].Position
	}
	shuffle(len(positions), func(i, j int) {
		positions[i], positions[j] = positions[j], positions[i]
	})
	for i, idx := range others {
		q.Items[idx].Position = positions[i]
	}

	q.sortItems()
}

// RestoreOrder copies OriginalPosition back into Position and rewinds the
// cursor to the first item. It reports OutcomeMoved when a different item
// is current afterwards.
func (q *Queue) RestoreOrder() Outcome {
	if len(q.Items) == 0 {
		return OutcomeEmpty
	}
	var before int64
	if cur := q.Current(); cur != nil {
		before = cur.ID
	}
	for i := range q.Items {
		q.Items[i].Position = q.Items[i].OriginalPosition
	}
	q.sortItems()
	q.CurrentPosition = 0
	if q.Items[0].ID != before {
		return OutcomeMoved
	}
	return OutcomeReordered
}

// ToggleLoopMode flips between LoopNone and LoopTrack. LoopPlaylist turns off.
func (q *Queue) ToggleLoopMode() LoopMode {
	if q.LoopMode == LoopNone {
		q.LoopMode = LoopTrack
	} else {
		q.LoopMode = LoopNone
	}
	return q.LoopMode
}

// ReconcileCollection keeps CurrentIndex of items embedding collectionID
// consistent after tracks at the given (pre-removal) indexes were removed.
// newLen is the collection's track count after the removal.
func (q *Queue) ReconcileCollection(collectionID int64, removed []int, newLen int) bool {
	changed := false
	for i := range q.Items {
		it := &q.Items[i]
		if it.Type != ItemCollection || it.CollectionID != collectionID {
			continue
		}
		idx := it.CurrentIndex
		for _, r := range removed {
			if r < it.CurrentIndex {
				idx--
			}
		}
		if idx >= newLen {
			idx = newLen - 1
		}
		idx = max(idx, 0)
		if idx != it.CurrentIndex {
			it.CurrentIndex = idx
			changed = true
		}
	}
	return changed
}

// RemainingSlots counts the tracks left from the cursor to the end.
// Every item counts at least once so invalid entries can still be visited.
func (q *Queue) RemainingSlots(collectionLen func(collectionID int64) int) int {
	total := 0
	for i := q.CurrentPosition; i >= 0 && i < len(q.Items); i++ {
		it := q.Items[i]
		if it.Type != ItemCollection {
			total++
			continue
		}
		total += max(collectionLen(it.CollectionID)-it.CurrentIndex, 1)
	}
	return total
}
