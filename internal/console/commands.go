package console

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/llehouerou/wavebot/internal/control"
	"github.com/llehouerou/wavebot/internal/errmsg"
	"github.com/llehouerou/wavebot/internal/library"
	"github.com/llehouerou/wavebot/internal/queue"
	"github.com/llehouerou/wavebot/internal/voice"
)

const (
	commandTimeout = 30 * time.Second
	searchLimit    = 10
)

var errUsage = errors.New("usage")

// command is a parsed input line.
type command struct {
	name string
	args []string
}

func parseCommand(line string) (command, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, false
	}
	return command{name: strings.ToLower(fields[0]), args: fields[1:]}, true
}

// aliases map console verbs to control actions.
var aliases = map[string]control.Action{
	"next":    control.ActionNext,
	"n":       control.ActionNext,
	"prev":    control.ActionPrev,
	"p":       control.ActionPrev,
	"stop":    control.ActionStop,
	"loop":    control.ActionLoop,
	"shuffle": control.ActionShuffle,
	"skip":    control.ActionSkipItem,
	"pause":   control.ActionPause,
	"restore": control.ActionRestore,
	"volume":  control.ActionVolume,
	"vol":     control.ActionVolume,
}

// statusMsg carries the outcome of a command.
type statusMsg struct {
	text    string
	err     error
	results []library.Track
	channel string // set by join
}

func (m Model) run(c command) tea.Cmd {
	ref := voice.ChannelRef{ID: m.channel, Name: m.channel}
	deps := m.deps

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		if action, ok := aliases[c.name]; ok {
			return runAction(ctx, deps, ref, action, c.args)
		}

		switch c.name {
		case "play":
			if len(c.args) == 0 {
				return statusMsg{err: fmt.Errorf("%w: play <track-id>...", errUsage)}
			}
			return runEnqueue(ctx, deps, control.EnqueueRequest{Ref: ref, Owner: deps.Owner, TrackIDs: c.args})

		case "playlist":
			if len(c.args) < 2 {
				return statusMsg{err: fmt.Errorf("%w: playlist <name> <track-id>...", errUsage)}
			}
			return runEnqueue(ctx, deps, control.EnqueueRequest{
				Ref: ref, Owner: deps.Owner, Playlist: c.args[0], TrackIDs: c.args[1:],
			})

		case "pshuffle", "prestore":
			if len(c.args) != 1 {
				return statusMsg{err: fmt.Errorf("%w: %s <name>", errUsage, c.name)}
			}
			if c.name == "pshuffle" {
				err := deps.Controller.ShuffleCollection(ctx, deps.Owner, c.args[0])
				return statusMsg{text: "playlist shuffled", err: wrap(errmsg.OpCollectionShuffle, c.args[0], err)}
			}
			err := deps.Controller.RestoreCollection(ctx, deps.Owner, c.args[0])
			return statusMsg{text: "playlist order restored", err: wrap(errmsg.OpCollectionRestore, c.args[0], err)}

		case "playlists":
			cols, err := deps.Controller.Collections(ctx, deps.Owner)
			if err != nil {
				return statusMsg{err: wrap(errmsg.OpCollectionList, deps.Owner, err)}
			}
			if len(cols) == 0 {
				return statusMsg{text: "no playlists"}
			}
			names := make([]string, len(cols))
			for i, col := range cols {
				names[i] = col.Name
			}
			return statusMsg{text: "playlists: " + strings.Join(names, ", ")}

		case "pdelete":
			if len(c.args) != 1 {
				return statusMsg{err: fmt.Errorf("%w: pdelete <name>", errUsage)}
			}
			err := deps.Controller.DeleteCollection(ctx, deps.Owner, c.args[0])
			return statusMsg{text: "playlist deleted", err: wrap(errmsg.OpCollectionDelete, c.args[0], err)}

		case "search", "s":
			q := strings.Join(c.args, " ")
			tracks, err := deps.Library.Search(ctx, q, searchLimit)
			if err != nil {
				return statusMsg{err: wrap(errmsg.OpLibrarySearch, q, err)}
			}
			return statusMsg{text: fmt.Sprintf("%d results for %q", len(tracks), q), results: tracks}

		case "join":
			if len(c.args) != 1 {
				return statusMsg{err: fmt.Errorf("%w: join <channel>", errUsage)}
			}
			return statusMsg{text: "controlling " + c.args[0], channel: c.args[0]}

		case "listeners":
			n := 0
			if len(c.args) == 1 {
				v, err := strconv.Atoi(c.args[0])
				if err != nil {
					return statusMsg{err: fmt.Errorf("%w: listeners <count>", errUsage)}
				}
				n = v
			}
			deps.Idle.ObserveMembership(ref.ID, n)
			if n == 0 {
				return statusMsg{text: "no listeners, leaving after the grace period"}
			}
			return statusMsg{text: fmt.Sprintf("%d listeners", n)}

		case "cache":
			files, size, err := deps.Cache.Usage()
			if err != nil {
				return statusMsg{err: err}
			}
			return statusMsg{text: fmt.Sprintf("cache: %d files, %s", files, humanize.Bytes(uint64(size)))}
		}

		return statusMsg{err: fmt.Errorf("%w %q", errUnknownCommand, c.name)}
	}
}

var errUnknownCommand = errors.New("unknown command")

func runAction(ctx context.Context, deps Deps, ref voice.ChannelRef, action control.Action, args []string) tea.Msg {
	req := control.Request{Ref: ref, Action: action}
	if action == control.ActionVolume {
		if len(args) != 1 {
			return statusMsg{err: fmt.Errorf("%w: volume <percent>", errUsage)}
		}
		v, err := strconv.Atoi(strings.TrimSuffix(args[0], "%"))
		if err != nil {
			return statusMsg{err: fmt.Errorf("%w: volume <percent>", errUsage)}
		}
		req.Volume = v
	}

	res, err := deps.Controller.Handle(ctx, req)
	if err != nil {
		return statusMsg{err: wrap(errmsg.OpQueueControl, string(action), err)}
	}
	return statusMsg{text: describeResult(action, res)}
}

func describeResult(action control.Action, res control.Result) string {
	if res.NoQueue {
		return "queue is empty"
	}
	switch action {
	case control.ActionLoop:
		return "loop: " + res.LoopMode.String()
	case control.ActionVolume:
		return fmt.Sprintf("volume: %d%%", res.Volume)
	case control.ActionPause:
		if res.Paused {
			return "paused"
		}
		return "playing"
	case control.ActionStop:
		return "stopped"
	}
	switch res.Outcome {
	case queue.OutcomeEmpty:
		return "queue is empty"
	case queue.OutcomeBoundary:
		return "no more tracks in that direction"
	default:
		return string(action)
	}
}

func runEnqueue(ctx context.Context, deps Deps, req control.EnqueueRequest) tea.Msg {
	res, err := deps.Controller.Enqueue(ctx, req)
	if err != nil {
		return statusMsg{err: wrap(errmsg.OpQueueAdd, req.Playlist, err)}
	}
	text := fmt.Sprintf("queued %d tracks", res.Queued)
	if res.CollectionID != 0 {
		text = fmt.Sprintf("queued playlist %s (%d tracks)", req.Playlist, res.Queued)
	}
	if res.Fetched > 0 {
		text += fmt.Sprintf(", %d new", res.Fetched)
	}
	return statusMsg{text: text}
}

// userError keeps the formatted message next to the cause.
type userError struct {
	msg string
	err error
}

func (e *userError) Error() string { return e.msg }
func (e *userError) Unwrap() error { return e.err }

func wrap(op errmsg.Op, subject string, err error) error {
	if err == nil {
		return nil
	}
	return &userError{msg: errmsg.FormatWith(op, subject, err), err: err}
}
