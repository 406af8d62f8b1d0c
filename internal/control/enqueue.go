package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/llehouerou/wavebot/internal/library"
	"github.com/llehouerou/wavebot/internal/voice"
)

// ErrNoTracks is returned when an enqueue request resolves to nothing.
var ErrNoTracks = errors.New("no tracks to enqueue")

// EnqueueRequest adds tracks to a channel's queue. With more than one
// track and a Playlist name, the tracks are stored as the owner's
// collection of that name and queued as a single item.
type EnqueueRequest struct {
	Ref      voice.ChannelRef
	Owner    string
	TrackIDs []string
	Playlist string
}

// EnqueueResult describes what was queued.
type EnqueueResult struct {
	Queued       int   // tracks that could be queued
	Fetched      int   // tracks newly added to the library
	CollectionID int64 // set when queued as a collection
	Removed      int   // tracks dropped from an existing collection
}

// Enqueue makes sure every track is known, queues them and starts
// playback if the channel is idle.
func (r *Router) Enqueue(ctx context.Context, req EnqueueRequest) (EnqueueResult, error) {
	var res EnqueueResult
	log := r.log.With().Str("channel", req.Ref.ID).Logger()

	ids, fetched, err := r.ensureTracks(ctx, req.TrackIDs)
	if err != nil {
		return res, err
	}
	res.Fetched = fetched
	res.Queued = len(ids)
	if len(ids) == 0 {
		return res, ErrNoTracks
	}

	if len(ids) > 1 && req.Playlist != "" {
		id, err := r.collections.FindOrCreate(ctx, req.Owner, req.Playlist)
		if err != nil {
			return res, fmt.Errorf("find collection: %w", err)
		}
		// Merges apply to insertion order.
		shuffled, err := r.collections.IsShuffled(ctx, id)
		if err != nil {
			return res, err
		}
		if shuffled {
			if err := r.collections.RestoreOrder(ctx, id); err != nil {
				return res, fmt.Errorf("restore collection order: %w", err)
			}
		}
		removed, added, err := r.collections.Sync(ctx, id, ids)
		if err != nil {
			return res, fmt.Errorf("sync collection: %w", err)
		}
		if err := r.queues.ReconcileCollection(ctx, id, removed); err != nil {
			return res, err
		}
		if err := r.queues.EnqueueCollection(ctx, req.Ref.ID, id); err != nil {
			return res, err
		}
		res.CollectionID = id
		res.Removed = len(removed)
		log.Info().Int64("collection", id).Str("name", req.Playlist).
			Int("added", added).Int("removed", len(removed)).Msg("queued collection")
	} else {
		if err := r.queues.EnqueueTracks(ctx, req.Ref.ID, ids); err != nil {
			return res, err
		}
		log.Info().Int("tracks", len(ids)).Msg("queued tracks")
	}

	if err := r.proc.Start(ctx, req.Ref); err != nil {
		return res, err
	}
	return res, nil
}

// ensureTracks returns the ids that exist in the library, fetching unknown
// ones from the catalog first. Order is preserved; unknown ids the catalog
// cannot describe are dropped.
func (r *Router) ensureTracks(ctx context.Context, ids []string) ([]string, int, error) {
	var missing []string
	for _, id := range ids {
		_, err := r.library.TrackByID(ctx, id)
		if errors.Is(err, library.ErrNotFound) {
			missing = append(missing, id)
			continue
		}
		if err != nil {
			return nil, 0, err
		}
	}

	fetched := 0
	known := make(map[string]bool)
	if len(missing) > 0 && r.catalog != nil {
		tracks, err := r.catalog.Tracks(ctx, missing)
		if err != nil {
			return nil, 0, fmt.Errorf("fetch track metadata: %w", err)
		}
		fetched, err = r.library.Ingest(ctx, tracks)
		if err != nil {
			return nil, 0, err
		}
		for _, t := range tracks {
			known[t.ID] = true
		}
	}

	stillMissing := make(map[string]bool)
	for _, id := range missing {
		if !known[id] {
			stillMissing[id] = true
		}
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !stillMissing[id] {
			out = append(out, id)
		}
	}
	if len(stillMissing) > 0 {
		r.log.Warn().Int("count", len(stillMissing)).Msg("dropped unknown tracks")
	}
	return out, fetched, nil
}
