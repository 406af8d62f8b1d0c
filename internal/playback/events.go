package playback

import (
	"github.com/llehouerou/wavebot/internal/library"
	"github.com/llehouerou/wavebot/internal/queue"
)

// Update is emitted whenever what a channel presents changes: a new track,
// a pause, a teardown. Track and Queue are nil when nothing is queued.
type Update struct {
	ChannelID string
	Track     *library.Track
	Queue     *queue.Queue
	Paused    bool
	State     State
}

// ErrorEvent is emitted when a cycle step fails.
type ErrorEvent struct {
	ChannelID string
	Operation string // "resolve", "download", "play", "persist"
	Err       error
}
