// Package control turns user commands into queue mutations and playback
// cycle restarts. It is the only place that sequences the queue store and
// the processor for a command.
package control

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog"

	"github.com/llehouerou/wavebot/internal/collections"
	"github.com/llehouerou/wavebot/internal/library"
	"github.com/llehouerou/wavebot/internal/queue"
	"github.com/llehouerou/wavebot/internal/voice"
)

// Action is a player control.
type Action string

const (
	ActionNext     Action = "next"
	ActionPrev     Action = "prev"
	ActionStop     Action = "stop"
	ActionLoop     Action = "loop"
	ActionShuffle  Action = "shuffle"
	ActionSkipItem Action = "skipItem"
	ActionVolume   Action = "volume"
	ActionPause    Action = "pause"
	ActionRestore  Action = "restore"
)

var cursorCommands = map[Action]queue.Command{
	ActionNext:     queue.CommandNext,
	ActionPrev:     queue.CommandPrev,
	ActionSkipItem: queue.CommandSkipItem,
	ActionRestore:  queue.CommandRestore,
}

// ErrUnknownAction is returned for an action name the router does not know.
var ErrUnknownAction = errors.New("unknown action")

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionNext, ActionPrev, ActionStop, ActionLoop, ActionShuffle,
		ActionSkipItem, ActionVolume, ActionPause, ActionRestore:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Processor is the part of the playback processor commands drive.
type Processor interface {
	Start(ctx context.Context, ref voice.ChannelRef) error
	Restart(ctx context.Context, ref voice.ChannelRef) error
	Stop(ctx context.Context, channelID string) error
	Supersede(channelID string)
	TogglePause(channelID string) bool
	ApplyVolume(ctx context.Context, channelID string) error
}

// Library stores track metadata.
type Library interface {
	TrackByID(ctx context.Context, id string) (*library.Track, error)
	Ingest(ctx context.Context, tracks []library.Track) (int, error)
}

// Catalog fetches metadata for tracks the library has not seen yet.
type Catalog interface {
	Tracks(ctx context.Context, ids []string) ([]library.Track, error)
}

// Collections stores named track lists.
type Collections interface {
	FindByName(ctx context.Context, owner, name string) (*collections.Collection, error)
	FindOrCreate(ctx context.Context, owner, name string) (int64, error)
	List(ctx context.Context, owner string) ([]collections.Collection, error)
	Delete(ctx context.Context, id int64) error
	Sync(ctx context.Context, id int64, trackIDs []string) (removed []int, added int, err error)
	Shuffle(ctx context.Context, id int64, shuffle func(n int, swap func(i, j int))) error
	RestoreOrder(ctx context.Context, id int64) error
	IsShuffled(ctx context.Context, id int64) (bool, error)
}

// Request is a control command for one channel.
type Request struct {
	Ref    voice.ChannelRef
	Action Action
	Volume int // for ActionVolume, in percent
}

// Result reports the state a command left behind.
type Result struct {
	Outcome  queue.Outcome
	LoopMode queue.LoopMode
	Volume   int
	Paused   bool
	NoQueue  bool // loop and volume found no queue to change
}

// Router executes control commands and the enqueue flow.
type Router struct {
	queues      *queue.Store
	proc        Processor
	library     Library
	catalog     Catalog
	collections Collections
	log         zerolog.Logger
}

// New creates a router. catalog may be nil when only local tracks exist.
func New(queues *queue.Store, proc Processor, lib Library, catalog Catalog, colls Collections, log zerolog.Logger) *Router {
	return &Router{
		queues:      queues,
		proc:        proc,
		library:     lib,
		catalog:     catalog,
		collections: colls,
		log:         log.With().Str("component", "control").Logger(),
	}
}

// Handle applies a control action. Commands that move the cursor restart
// the channel's playback cycle; a cursor already at an end is left alone.
func (r *Router) Handle(ctx context.Context, req Request) (Result, error) {
	ch := req.Ref.ID
	r.log.Debug().Str("channel", ch).Str("action", string(req.Action)).Msg("control")

	var res Result
	switch req.Action {
	case ActionNext, ActionPrev, ActionSkipItem, ActionRestore:
		// The running cycle is retired under the queue lock, before its own
		// completion can advance the cursor a second time.
		out, err := r.queues.Apply(ctx, ch, cursorCommands[req.Action], func() {
			r.proc.Supersede(ch)
		})
		if err != nil {
			return res, err
		}
		res.Outcome = out
		if out == queue.OutcomeMoved {
			if err := r.proc.Restart(ctx, req.Ref); err != nil {
				return res, err
			}
		}

	case ActionStop:
		if err := r.proc.Stop(ctx, ch); err != nil {
			return res, err
		}
		res.Outcome = queue.OutcomeEmpty

	case ActionLoop:
		mode, ok, err := r.queues.ToggleLoopMode(ctx, ch)
		if err != nil {
			return res, err
		}
		res.LoopMode = mode
		res.NoQueue = !ok

	case ActionShuffle:
		out, err := r.queues.Shuffle(ctx, ch)
		if err != nil {
			return res, err
		}
		res.Outcome = out

	case ActionVolume:
		v, ok, err := r.queues.SetVolume(ctx, ch, req.Volume)
		if err != nil {
			return res, err
		}
		if !ok {
			res.NoQueue = true
			break
		}
		res.Volume = v
		if err := r.proc.ApplyVolume(ctx, ch); err != nil {
			return res, err
		}

	case ActionPause:
		res.Paused = r.proc.TogglePause(ch)

	default:
		return res, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}
	return res, nil
}

// ShuffleCollection shuffles a stored collection in place. Queues embedding
// it keep their cursor index, so they continue in the new order.
func (r *Router) ShuffleCollection(ctx context.Context, owner, name string) error {
	col, err := r.collections.FindByName(ctx, owner, name)
	if err != nil {
		return err
	}
	return r.collections.Shuffle(ctx, col.ID, rand.Shuffle)
}

// RestoreCollection puts a shuffled collection back in insertion order.
func (r *Router) RestoreCollection(ctx context.Context, owner, name string) error {
	col, err := r.collections.FindByName(ctx, owner, name)
	if err != nil {
		return err
	}
	return r.collections.RestoreOrder(ctx, col.ID)
}

// Collections lists the owner's stored collections by name.
func (r *Router) Collections(ctx context.Context, owner string) ([]collections.Collection, error) {
	return r.collections.List(ctx, owner)
}

// DeleteCollection removes a stored collection. Queues still embedding it
// drop the item the next time their cursor reaches it.
func (r *Router) DeleteCollection(ctx context.Context, owner, name string) error {
	col, err := r.collections.FindByName(ctx, owner, name)
	if err != nil {
		return err
	}
	if err := r.collections.Delete(ctx, col.ID); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	r.log.Info().Int64("collection", col.ID).Str("name", name).Msg("deleted collection")
	return nil
}
