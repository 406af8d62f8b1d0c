// Package resolver maps a channel's queue cursor to a concrete track,
// descending into embedded collections and pruning entries that can no
// longer be played.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/llehouerou/wavebot/internal/library"
	"github.com/llehouerou/wavebot/internal/queue"
)

// ErrUnresolvable matches every *UnresolvableError.
var ErrUnresolvable = errors.New("unresolvable queue item")

// UnresolvableError reports a queue item that was pruned because it could
// not be resolved. Outcome tells where the cursor landed afterwards.
type UnresolvableError struct {
	ChannelID string
	ItemID    int64
	Reason    string
	Outcome   queue.Outcome
}

func (e *UnresolvableError) Error() string {
	return fmt.Sprintf("queue item %d in %s: %s", e.ItemID, e.ChannelID, e.Reason)
}

func (e *UnresolvableError) Is(target error) bool {
	return target == ErrUnresolvable
}

// Tracks looks up track metadata by id.
type Tracks interface {
	TrackByID(ctx context.Context, id string) (*library.Track, error)
}

// Collections lists the tracks of a collection in playback order.
type Collections interface {
	TrackIDs(ctx context.Context, collectionID int64) ([]string, error)
}

// Current is a resolved queue slot.
type Current struct {
	Track  *library.Track
	ItemID int64
	Index  int // position inside a collection, 0 for tracks
}

// Resolver maps queue cursors to playable tracks.
type Resolver struct {
	queues      *queue.Store
	tracks      Tracks
	collections Collections
	log         zerolog.Logger
}

// New creates a resolver.
func New(queues *queue.Store, tracks Tracks, collections Collections, log zerolog.Logger) *Resolver {
	return &Resolver{
		queues:      queues,
		tracks:      tracks,
		collections: collections,
		log:         log.With().Str("component", "resolver").Logger(),
	}
}

// ResolveCurrent returns the track under the cursor of a channel, or nil
// when the queue is absent or empty. An invalid item is pruned from the
// queue (a dead slot inside a collection is stepped over) and reported as
// *UnresolvableError. The cursor already sits on the successor then, so
// callers must not advance again.
func (r *Resolver) ResolveCurrent(ctx context.Context, channelID string) (*Current, error) {
	q, err := r.queues.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, nil
	}
	item := q.Current()
	if item == nil {
		return nil, nil
	}

	trackID := item.TrackID
	if item.Type == queue.ItemCollection {
		ids, err := r.collections.TrackIDs(ctx, item.CollectionID)
		if err != nil {
			return nil, fmt.Errorf("collection tracks: %w", err)
		}
		switch {
		case len(ids) == 0:
			return nil, r.prune(ctx, channelID, item.ID, "collection is empty or missing")
		case item.CurrentIndex < 0 || item.CurrentIndex >= len(ids):
			return nil, r.prune(ctx, channelID, item.ID,
				fmt.Sprintf("index %d out of range (%d tracks)", item.CurrentIndex, len(ids)))
		}
		trackID = ids[item.CurrentIndex]
	}

	track, err := r.tracks.TrackByID(ctx, trackID)
	if errors.Is(err, library.ErrNotFound) {
		if item.Type == queue.ItemCollection {
			// One dead entry does not invalidate the whole collection.
			return nil, r.skipSlot(ctx, channelID, item.ID, "track "+trackID+" not found")
		}
		return nil, r.prune(ctx, channelID, item.ID, "track "+trackID+" not found")
	}
	if err != nil {
		return nil, err
	}

	return &Current{Track: track, ItemID: item.ID, Index: item.CurrentIndex}, nil
}

// skipSlot steps past a dead slot inside a collection.
func (r *Resolver) skipSlot(ctx context.Context, channelID string, itemID int64, reason string) error {
	out, err := r.queues.Advance(ctx, channelID)
	if err != nil {
		return err
	}
	r.log.Warn().Str("channel", channelID).Int64("item", itemID).Str("reason", reason).Msg("skipped unresolvable collection slot")
	return &UnresolvableError{ChannelID: channelID, ItemID: itemID, Reason: reason, Outcome: out}
}

func (r *Resolver) prune(ctx context.Context, channelID string, itemID int64, reason string) error {
	out, err := r.queues.Prune(ctx, channelID, itemID)
	if err != nil {
		return err
	}
	r.log.Warn().Str("channel", channelID).Int64("item", itemID).Str("reason", reason).Msg("pruned unresolvable item")
	return &UnresolvableError{ChannelID: channelID, ItemID: itemID, Reason: reason, Outcome: out}
}
