package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/rs/zerolog"
)

// Repository persists whole queues keyed by channel.
type Repository interface {
	// Load returns the queue for a channel, or nil if none exists.
	Load(ctx context.Context, channelID string) (*Queue, error)
	Save(ctx context.Context, q *Queue) error
	Delete(ctx context.Context, channelID string) error
	// ChannelsWithCollection lists channels whose queue embeds a collection.
	ChannelsWithCollection(ctx context.Context, collectionID int64) ([]string, error)
}

// CollectionSizer reports how many tracks a collection holds.
// A missing collection has zero tracks.
type CollectionSizer interface {
	TrackCount(ctx context.Context, collectionID int64) (int, error)
}

// Store is the durable queue of every channel context. All mutations of one
// channel are serialized, so a control command and the in-flight playback
// cycle never interleave their read-modify-write.
type Store struct {
	repo    Repository
	sizes   CollectionSizer
	log     zerolog.Logger
	shuffle func(n int, swap func(i, j int))

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a queue store.
func NewStore(repo Repository, sizes CollectionSizer, log zerolog.Logger) *Store {
	return &Store{
		repo:    repo,
		sizes:   sizes,
		log:     log.With().Str("component", "queue").Logger(),
		shuffle: rand.Shuffle,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *Store) lock(channelID string) func() {
	s.mu.Lock()
	l, ok := s.locks[channelID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[channelID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// update loads the queue under the channel lock, applies fn and saves.
// Without create, an absent queue yields OutcomeEmpty and fn is not called.
func (s *Store) update(ctx context.Context, channelID string, create bool, fn func(q *Queue) (Outcome, error)) (Outcome, error) {
	unlock := s.lock(channelID)
	defer unlock()

	q, err := s.repo.Load(ctx, channelID)
	if err != nil {
		return OutcomeEmpty, fmt.Errorf("load queue: %w", err)
	}
	if q == nil {
		if !create {
			return OutcomeEmpty, nil
		}
		q = New(channelID)
	}

	out, err := fn(q)
	if err != nil {
		return out, err
	}
	if err := s.repo.Save(ctx, q); err != nil {
		return out, fmt.Errorf("save queue: %w", err)
	}
	return out, nil
}

// Get returns a snapshot of a channel's queue, or nil if it has none.
func (s *Store) Get(ctx context.Context, channelID string) (*Queue, error) {
	unlock := s.lock(channelID)
	defer unlock()

	q, err := s.repo.Load(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	return q, nil
}

// EnqueueTracks appends tracks at the tail, creating the queue if needed.
// An empty list is a no-op.
func (s *Store) EnqueueTracks(ctx context.Context, channelID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}
	_, err := s.update(ctx, channelID, true, func(q *Queue) (Outcome, error) {
		q.AppendTracks(trackIDs...)
		return OutcomeMoved, nil
	})
	if err == nil {
		s.log.Debug().Str("channel", channelID).Int("count", len(trackIDs)).Msg("enqueued tracks")
	}
	return err
}

// EnqueueCollection appends a collection item starting at its first track.
func (s *Store) EnqueueCollection(ctx context.Context, channelID string, collectionID int64) error {
	_, err := s.update(ctx, channelID, true, func(q *Queue) (Outcome, error) {
		q.AppendCollection(collectionID)
		return OutcomeMoved, nil
	})
	if err == nil {
		s.log.Debug().Str("channel", channelID).Int64("collection", collectionID).Msg("enqueued collection")
	}
	return err
}

// Command is a cursor move requested by a user.
type Command int

const (
	CommandNext Command = iota
	CommandPrev
	CommandSkipItem
	CommandRestore
)

var errStale = errors.New("stale cursor move")

// Apply runs a user cursor command. When a different slot becomes current,
// onMoved runs before the channel lock is released, so a playback cycle's
// guarded advance can never land on top of the command.
func (s *Store) Apply(ctx context.Context, channelID string, cmd Command, onMoved func()) (Outcome, error) {
	return s.update(ctx, channelID, false, func(q *Queue) (Outcome, error) {
		var out Outcome
		switch cmd {
		case CommandNext:
			n, err := s.currentCollectionLen(ctx, q)
			if err != nil {
				return OutcomeEmpty, err
			}
			out = q.Advance(n)
		case CommandPrev:
			out = q.Retreat()
		case CommandSkipItem:
			out = q.SkipItem()
		case CommandRestore:
			out = q.RestoreOrder()
		default:
			return OutcomeEmpty, fmt.Errorf("unknown cursor command %d", cmd)
		}
		if out == OutcomeMoved && onMoved != nil {
			onMoved()
		}
		return out, nil
	})
}

// Advance moves to the next track (see Queue.Advance).
func (s *Store) Advance(ctx context.Context, channelID string) (Outcome, error) {
	return s.Apply(ctx, channelID, CommandNext, nil)
}

// AdvanceIf is Advance for a playback cycle. guard runs under the channel
// lock and the queue is left untouched unless it returns true. The second
// return is false when the guard refused.
func (s *Store) AdvanceIf(ctx context.Context, channelID string, guard func() bool) (Outcome, bool, error) {
	out, err := s.update(ctx, channelID, false, func(q *Queue) (Outcome, error) {
		if !guard() {
			return OutcomeEmpty, errStale
		}
		n, err := s.currentCollectionLen(ctx, q)
		if err != nil {
			return OutcomeEmpty, err
		}
		return q.Advance(n), nil
	})
	if errors.Is(err, errStale) {
		return OutcomeEmpty, false, nil
	}
	return out, true, err
}

// Retreat moves to the previous track (see Queue.Retreat).
func (s *Store) Retreat(ctx context.Context, channelID string) (Outcome, error) {
	return s.Apply(ctx, channelID, CommandPrev, nil)
}

// SkipItem moves to the next queue-level item.
func (s *Store) SkipItem(ctx context.Context, channelID string) (Outcome, error) {
	return s.Apply(ctx, channelID, CommandSkipItem, nil)
}

// Prune removes an invalid item. The cursor lands on its successor.
func (s *Store) Prune(ctx context.Context, channelID string, itemID int64) (Outcome, error) {
	out, err := s.update(ctx, channelID, false, func(q *Queue) (Outcome, error) {
		return q.Remove(itemID), nil
	})
	if err == nil {
		s.log.Info().Str("channel", channelID).Int64("item", itemID).Stringer("outcome", out).Msg("pruned queue item")
	}
	return out, err
}

// ToggleLoopMode flips NONE and TRACK and returns the new mode.
// The second return is false when the channel has no queue.
func (s *Store) ToggleLoopMode(ctx context.Context, channelID string) (LoopMode, bool, error) {
	var mode LoopMode
	out, err := s.update(ctx, channelID, false, func(q *Queue) (Outcome, error) {
		mode = q.ToggleLoopMode()
		return OutcomeMoved, nil
	})
	return mode, out != OutcomeEmpty, err
}

// SetLoopMode sets an explicit loop mode.
func (s *Store) SetLoopMode(ctx context.Context, channelID string, mode LoopMode) error {
	_, err := s.update(ctx, channelID, false, func(q *Queue) (Outcome, error) {
		q.LoopMode = mode
		return OutcomeMoved, nil
	})
	return err
}

// SetVolume clamps and stores the volume, returning the stored value.
// The second return is false when the channel has no queue.
func (s *Store) SetVolume(ctx context.Context, channelID string, volume int) (int, bool, error) {
	volume = ClampVolume(volume)
	out, err := s.update(ctx, channelID, false, func(q *Queue) (Outcome, error) {
		q.Volume = volume
		return OutcomeMoved, nil
	})
	if err != nil || out == OutcomeEmpty {
		return 0, false, err
	}
	return volume, true, nil
}

// Shuffle permutes all items but the current one.
func (s *Store) Shuffle(ctx context.Context, channelID string) (Outcome, error) {
	return s.update(ctx, channelID, false, func(q *Queue) (Outcome, error) {
		if q.IsEmpty() {
			return OutcomeEmpty, nil
		}
		q.Shuffle(s.shuffle)
		return OutcomeReordered, nil
	})
}

// RestoreOrder undoes shuffles and rewinds to the first item.
func (s *Store) RestoreOrder(ctx context.Context, channelID string) (Outcome, error) {
	return s.Apply(ctx, channelID, CommandRestore, nil)
}

// SetPlayerMessageID records the presentation layer's last status message.
func (s *Store) SetPlayerMessageID(ctx context.Context, channelID, messageID string) error {
	_, err := s.update(ctx, channelID, false, func(q *Queue) (Outcome, error) {
		q.PlayerMessageID = messageID
		return OutcomeMoved, nil
	})
	return err
}

// PlayerMessageID returns the stored status message id, or "" if none.
func (s *Store) PlayerMessageID(ctx context.Context, channelID string) (string, error) {
	q, err := s.Get(ctx, channelID)
	if err != nil || q == nil {
		return "", err
	}
	return q.PlayerMessageID, nil
}

// Clear deletes every item and the queue itself.
func (s *Store) Clear(ctx context.Context, channelID string) error {
	unlock := s.lock(channelID)
	defer unlock()

	if err := s.repo.Delete(ctx, channelID); err != nil {
		return fmt.Errorf("delete queue: %w", err)
	}
	s.log.Debug().Str("channel", channelID).Msg("cleared queue")
	return nil
}

// RemainingSlots counts tracks left from the cursor to the end of the queue.
func (s *Store) RemainingSlots(ctx context.Context, channelID string) (int, error) {
	q, err := s.Get(ctx, channelID)
	if err != nil || q == nil {
		return 0, err
	}

	lens := make(map[int64]int)
	for _, it := range q.Items {
		if it.Type != ItemCollection {
			continue
		}
		if _, ok := lens[it.CollectionID]; ok {
			continue
		}
		n, err := s.sizes.TrackCount(ctx, it.CollectionID)
		if err != nil {
			return 0, err
		}
		lens[it.CollectionID] = n
	}
	return q.RemainingSlots(func(id int64) int { return lens[id] }), nil
}

// ReconcileCollection fixes collection cursors in every queue embedding the
// collection after tracks were removed from it.
func (s *Store) ReconcileCollection(ctx context.Context, collectionID int64, removed []int) error {
	if len(removed) == 0 {
		return nil
	}
	channels, err := s.repo.ChannelsWithCollection(ctx, collectionID)
	if err != nil {
		return fmt.Errorf("find queues with collection: %w", err)
	}
	n, err := s.sizes.TrackCount(ctx, collectionID)
	if err != nil {
		return err
	}
	for _, ch := range channels {
		_, err := s.update(ctx, ch, false, func(q *Queue) (Outcome, error) {
			q.ReconcileCollection(collectionID, removed, n)
			return OutcomeMoved, nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) currentCollectionLen(ctx context.Context, q *Queue) (int, error) {
	cur := q.Current()
	if cur == nil || cur.Type != ItemCollection {
		return 0, nil
	}
	n, err := s.sizes.TrackCount(ctx, cur.CollectionID)
	if err != nil {
		return 0, fmt.Errorf("count collection tracks: %w", err)
	}
	return n, nil
}
