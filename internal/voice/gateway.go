// Package voice owns the per-channel audio sessions: one gateway
// connection and one player per channel context.
package voice

import "context"

// PlayerState represents the player state machine.
//
//	┌──────────┐      play       ┌──────────┐
//	│   Idle   │ ───────────────▶│  Playing │
//	└──────────┘                 └──────────┘
//	  ▲   ▲                        │ ▲    │
//	  │   │ stop / finished  pause │ │    │ stop / finished
//	  │   │                        ▼ │    │
//	  │   │                    ┌──────────┐
//	  │   └────────────────────│  Paused  │
//	  │          stop          └──────────┘
//	  └────────────────────────────────────┘
//
// Pause on a non-playing player and Unpause on a non-paused one are no-ops.
type PlayerState int

const (
	Idle PlayerState = iota
	Playing
	Paused
)

// String returns the state name for debugging.
func (s PlayerState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// IsActive returns true if a track is loaded (Playing or Paused).
func (s PlayerState) IsActive() bool {
	return s == Playing || s == Paused
}

// ChannelRef identifies the voice channel to join.
type ChannelRef struct {
	ID   string
	Name string
}

// Gateway joins voice channels and creates players.
type Gateway interface {
	Join(ctx context.Context, ref ChannelRef) (Connection, error)
	NewPlayer(channelID string) Player
}

// Connection is a joined voice channel.
type Connection interface {
	// Ready is closed once the connection can carry audio.
	Ready() <-chan struct{}
	Subscribe(p Player)
	Destroy()
}

// Player plays one local file at a time into its connection.
type Player interface {
	// Play starts path, replacing whatever is playing. onFinished is called
	// once when the track ends on its own; Stop and a later Play drop it.
	Play(path string, onFinished func()) error
	Pause()
	Unpause()
	Stop()
	// SetVolume takes a percentage in [0, 200].
	SetVolume(percent int)
	State() PlayerState
}
