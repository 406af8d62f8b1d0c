package playback

// State is the phase of a channel's playback cycle.
//
//	Idle ──Start──▶ Resolving ──▶ Acquiring ──▶ Playing
//	                   ▲   │          │             │
//	                   │   └──────────┴──▶ Idle      │ finished
//	                   └────────────────────────────┘
type State int

const (
	StateIdle State = iota
	StateResolving
	StateAcquiring
	StatePlaying
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateResolving:
		return "Resolving"
	case StateAcquiring:
		return "Acquiring"
	case StatePlaying:
		return "Playing"
	default:
		return "Unknown"
	}
}

// IsBusy reports whether a cycle is in flight.
func (s State) IsBusy() bool {
	return s != StateIdle
}
