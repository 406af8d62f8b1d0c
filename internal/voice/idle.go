package voice

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

// DefaultIdleGrace is how long a channel may stay without listeners.
const DefaultIdleGrace = 3 * time.Minute

// IdleWatcher tears a session down once its channel has had no human
// members for a grace period.
type IdleWatcher struct {
	manager *Manager
	grace   time.Duration
	clock   clock.Clock
	log     zerolog.Logger

	mu     sync.Mutex
	timers map[string]*clock.Timer
}

// NewIdleWatcher creates a watcher and forgets pending timers when
// sessions are torn down by other means.
func NewIdleWatcher(manager *Manager, grace time.Duration, clk clock.Clock, log zerolog.Logger) *IdleWatcher {
	if grace <= 0 {
		grace = DefaultIdleGrace
	}
	if clk == nil {
		clk = clock.New()
	}
	w := &IdleWatcher{
		manager: manager,
		grace:   grace,
		clock:   clk,
		log:     log.With().Str("component", "idle").Logger(),
		timers:  make(map[string]*clock.Timer),
	}
	manager.OnTeardown(w.cancel)
	return w
}

// ObserveMembership records how many non-bot members a channel has.
func (w *IdleWatcher) ObserveMembership(channelID string, humans int) {
	if humans > 0 {
		w.cancel(channelID)
		return
	}
	if w.manager.Session(channelID) == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, pending := w.timers[channelID]; pending {
		return
	}

	var t *clock.Timer
	t = w.clock.AfterFunc(w.grace, func() {
		w.mu.Lock()
		current := w.timers[channelID] == t
		if current {
			delete(w.timers, channelID)
		}
		w.mu.Unlock()

		if current {
			w.log.Info().Str("channel", channelID).Dur("grace", w.grace).Msg("channel empty, leaving")
			w.manager.Teardown(channelID)
		}
	})
	w.timers[channelID] = t
}

// Pending reports whether a leave timer runs for the channel.
func (w *IdleWatcher) Pending(channelID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.timers[channelID]
	return ok
}

func (w *IdleWatcher) cancel(channelID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[channelID]; ok {
		t.Stop()
		delete(w.timers, channelID)
	}
}
