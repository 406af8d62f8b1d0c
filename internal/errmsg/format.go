// Package errmsg provides consistent error formatting for user-facing messages.
package errmsg

import (
	"context"
	"errors"
	"fmt"

	"github.com/llehouerou/wavebot/internal/cache"
	"github.com/llehouerou/wavebot/internal/collections"
	"github.com/llehouerou/wavebot/internal/control"
	"github.com/llehouerou/wavebot/internal/library"
	"github.com/llehouerou/wavebot/internal/resolver"
	"github.com/llehouerou/wavebot/internal/voice"
)

// Op represents an operation that can fail.
type Op string

// Operation constants - grouped by domain.
const (
	// Library operations
	OpLibraryScan   Op = "scan library"
	OpLibraryIngest Op = "add tracks to library"
	OpLibrarySearch Op = "search library"

	// Queue operations
	OpQueueAdd     Op = "add to queue"
	OpQueueControl Op = "control playback"

	// Collection operations
	OpCollectionShuffle Op = "shuffle playlist"
	OpCollectionRestore Op = "restore playlist order"
	OpCollectionList    Op = "list playlists"
	OpCollectionDelete  Op = "delete playlist"

	// Playback operations
	OpPlaybackStart    Op = "start playback"
	OpPlaybackDownload Op = "download track"
	OpPlaybackResolve  Op = "resolve queue entry"
	OpPlaybackPlay     Op = "play track"
	OpPlaybackPersist  Op = "save queue"

	// Initialization
	OpInitialize Op = "initialize bot"
)

// ForPlayback maps a processor error operation to an Op.
func ForPlayback(operation string) Op {
	switch operation {
	case "download":
		return OpPlaybackDownload
	case "resolve":
		return OpPlaybackResolve
	case "play":
		return OpPlaybackPlay
	case "persist":
		return OpPlaybackPersist
	default:
		return OpPlaybackStart
	}
}

// Describe turns an error into a short explanation for users. Errors the
// bot does not classify are shown as is.
func Describe(err error) string {
	var connErr *voice.ConnectionError
	var failure *cache.DownloadFailure
	switch {
	case err == nil:
		return ""
	case errors.As(err, &connErr):
		if errors.Is(err, voice.ErrReadyTimeout) {
			return "voice channel did not become ready in time"
		}
		return "could not join the voice channel"
	case errors.As(err, &failure):
		return fmt.Sprintf("track %s could not be downloaded after %d attempts", failure.TrackID, failure.Attempts)
	case errors.Is(err, resolver.ErrUnresolvable):
		return "queue entry is no longer available and was removed"
	case errors.Is(err, control.ErrNoTracks):
		return "none of the requested tracks could be found"
	case errors.Is(err, control.ErrUnknownAction):
		return err.Error()
	case errors.Is(err, library.ErrNotFound), errors.Is(err, collections.ErrNotFound):
		return "not found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	default:
		return err.Error()
	}
}

// Format creates a user-friendly error message.
func Format(op Op, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Failed to %s: %s", op, Describe(err))
}

// FormatWith creates an error message with additional context.
func FormatWith(op Op, context string, err error) string {
	if err == nil {
		return ""
	}
	if context == "" {
		return Format(op, err)
	}
	return fmt.Sprintf("Failed to %s '%s': %s", op, context, Describe(err))
}
