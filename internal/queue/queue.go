// Package queue holds the per-channel playback queue: its data model, the
// two-level cursor logic, and the Store that linearizes mutations per channel.
package queue

import (
	"slices"
	"sort"
)

// ItemType distinguishes single tracks from embedded collections.
type ItemType int

const (
	ItemTrack ItemType = iota
	ItemCollection
)

// String returns the item type name.
func (t ItemType) String() string {
	switch t {
	case ItemTrack:
		return "TRACK"
	case ItemCollection:
		return "COLLECTION"
	default:
		return "UNKNOWN"
	}
}

// LoopMode defines the repeat behavior of a queue.
type LoopMode int

const (
	LoopNone     LoopMode = iota // stop when the queue is exhausted
	LoopTrack                    // replay the current track on completion
	LoopPlaylist                 // wrap to the first item at the end
)

// String returns the loop mode name.
func (m LoopMode) String() string {
	switch m {
	case LoopNone:
		return "NONE"
	case LoopTrack:
		return "TRACK"
	case LoopPlaylist:
		return "PLAYLIST"
	default:
		return "UNKNOWN"
	}
}

// ParseLoopMode converts a stored or user supplied name to a LoopMode.
// Unknown names map to LoopNone.
func ParseLoopMode(s string) LoopMode {
	switch s {
	case "TRACK", "track":
		return LoopTrack
	case "PLAYLIST", "playlist", "queue":
		return LoopPlaylist
	default:
		return LoopNone
	}
}

// Volume bounds, in percent.
const (
	MinVolume     = 0
	MaxVolume     = 200
	DefaultVolume = 100
)

// ClampVolume restricts v to [MinVolume, MaxVolume].
func ClampVolume(v int) int {
	return min(max(v, MinVolume), MaxVolume)
}

// Item is a track or an embedded collection placed in a queue.
type Item struct {
	ID               int64
	Type             ItemType
	Position         int
	OriginalPosition int

	TrackID string // ItemTrack

	CollectionID int64 // ItemCollection
	CurrentIndex int   // ItemCollection: index into the collection's ordered tracks
}

// Queue is the ordered playlist of one channel context.
// Items are kept sorted by Position.
type Queue struct {
	ChannelID       string
	Items           []Item
	CurrentPosition int
	LoopMode        LoopMode
	Volume          int
	PlayerMessageID string
}

// New creates an empty queue for a channel.
func New(channelID string) *Queue {
	return &Queue{
		ChannelID: channelID,
		Items:     make([]Item, 0),
		Volume:    DefaultVolume,
	}
}

// Len returns the number of items.
func (q *Queue) Len() int {
	return len(q.Items)
}

// IsEmpty returns true if the queue has no items.
func (q *Queue) IsEmpty() bool {
	return len(q.Items) == 0
}

// Current returns the item under the cursor, or nil if the queue is empty.
func (q *Queue) Current() *Item {
	if q.CurrentPosition < 0 || q.CurrentPosition >= len(q.Items) {
		return nil
	}
	return &q.Items[q.CurrentPosition]
}

// Clone returns a deep copy safe to hand to other goroutines.
func (q *Queue) Clone() *Queue {
	c := *q
	c.Items = slices.Clone(q.Items)
	return &c
}

// IndexOf returns the slice index of the item with the given ID, or -1.
func (q *Queue) IndexOf(itemID int64) int {
	for i := range q.Items {
		if q.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

// sortItems orders items by Position, keeping the cursor on the same item.
func (q *Queue) sortItems() {
	var currentID int64 = -1
	if cur := q.Current(); cur != nil {
		currentID = cur.ID
	}
	sort.SliceStable(q.Items, func(i, j int) bool {
		return q.Items[i].Position < q.Items[j].Position
	})
	if currentID >= 0 {
		if idx := q.IndexOf(currentID); idx >= 0 {
			q.CurrentPosition = idx
		}
	}
}

// nextPosition returns an ordinal larger than every Position and
// OriginalPosition in use, so both stay unique after a restore.
func (q *Queue) nextPosition() int {
	next := 0
	for i := range q.Items {
		next = max(next, q.Items[i].Position+1, q.Items[i].OriginalPosition+1)
	}
	return next
}

func (q *Queue) nextItemID() int64 {
	var next int64 = 1
	for i := range q.Items {
		next = max(next, q.Items[i].ID+1)
	}
	return next
}
