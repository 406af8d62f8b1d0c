// Package playback drives each channel's queue through its voice player:
// resolve the slot under the cursor, fetch it into the cache, play it, and
// move on when it ends.
//
// Every channel runs at most one cycle at a time. A generation counter per
// channel is bumped whenever a cycle is superseded (restart, stop,
// teardown), and every step of a cycle checks it, so a stale download or a
// late completion callback never touches the queue.
package playback

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/llehouerou/wavebot/internal/cache"
	"github.com/llehouerou/wavebot/internal/library"
	"github.com/llehouerou/wavebot/internal/queue"
	"github.com/llehouerou/wavebot/internal/resolver"
	"github.com/llehouerou/wavebot/internal/voice"
)

// Resolver maps a channel's cursor to a track.
type Resolver interface {
	ResolveCurrent(ctx context.Context, channelID string) (*resolver.Current, error)
}

// Cache hands out local files for tracks.
type Cache interface {
	LocalPath(ctx context.Context, trackID string) (string, error)
	Release(trackID string)
}

// Sessions owns the voice connection and player of each channel.
type Sessions interface {
	Ensure(ctx context.Context, ref voice.ChannelRef) (*voice.Session, error)
	Player(channelID string) voice.Player
	Teardown(channelID string) bool
}

type channel struct {
	state   State
	gen     uint64
	held    string // track whose cache file the player is using
	current *library.Track
}

// Processor is the per-channel playback state machine.
type Processor struct {
	queues   *queue.Store
	resolver Resolver
	cache    Cache
	sessions Sessions
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	channels map[string]*channel

	subsMu sync.RWMutex
	subs   []*Subscription
	closed bool
}

// New creates a processor. Cycles run on their own context, cancelled by Close.
func New(queues *queue.Store, res Resolver, c Cache, sessions Sessions, log zerolog.Logger) *Processor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Processor{
		queues:   queues,
		resolver: res,
		cache:    c,
		sessions: sessions,
		log:      log.With().Str("component", "playback").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		channels: make(map[string]*channel),
	}
}

// Start joins the channel if needed and begins playing its queue. It does
// nothing if a cycle is already running there. Connection failures are
// returned as *voice.ConnectionError.
func (p *Processor) Start(ctx context.Context, ref voice.ChannelRef) error {
	if _, err := p.sessions.Ensure(ctx, ref); err != nil {
		return err
	}
	gen, ok := p.begin(ref.ID, false)
	if !ok {
		return nil
	}
	go p.cycle(ref.ID, gen)
	return nil
}

// Restart abandons the running cycle, if any, and plays whatever the
// cursor points at now. Used after the cursor was moved by a command.
func (p *Processor) Restart(ctx context.Context, ref voice.ChannelRef) error {
	if _, err := p.sessions.Ensure(ctx, ref); err != nil {
		return err
	}
	gen, _ := p.begin(ref.ID, true)
	go p.cycle(ref.ID, gen)
	return nil
}

// Stop ends playback, leaves the voice channel and clears the queue.
func (p *Processor) Stop(ctx context.Context, channelID string) error {
	p.Invalidate(channelID)
	p.sessions.Teardown(channelID)
	if err := p.queues.Clear(ctx, channelID); err != nil {
		return err
	}
	p.notify(channelID)
	return nil
}

// Invalidate abandons the channel's cycle and returns it to Idle. It is
// safe to call from a session teardown hook.
func (p *Processor) Invalidate(channelID string) {
	p.mu.Lock()
	st, ok := p.channels[channelID]
	if ok {
		st.gen++
		p.stopLocked(channelID, st)
	}
	p.mu.Unlock()

	if ok {
		p.notify(channelID)
	}
}

// Supersede retires the running cycle without publishing anything, so it
// can run while the queue store holds the channel lock. A command that
// moved the cursor calls it from there and restarts the cycle afterwards.
func (p *Processor) Supersede(channelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.channels[channelID]; ok {
		st.gen++
		p.stopLocked(channelID, st)
	}
}

// TogglePause pauses or resumes the channel's player and reports whether
// it is paused afterwards.
func (p *Processor) TogglePause(channelID string) bool {
	pl := p.sessions.Player(channelID)
	if pl == nil {
		return false
	}
	switch pl.State() {
	case voice.Playing:
		pl.Pause()
	case voice.Paused:
		pl.Unpause()
	default:
		return false
	}
	p.notify(channelID)
	return pl.State() == voice.Paused
}

// ApplyVolume pushes the queue's stored volume to the player.
func (p *Processor) ApplyVolume(ctx context.Context, channelID string) error {
	pl := p.sessions.Player(channelID)
	if pl == nil {
		return nil
	}
	q, err := p.queues.Get(ctx, channelID)
	if err != nil {
		return err
	}
	if q != nil {
		pl.SetVolume(q.Volume)
	}
	p.notify(channelID)
	return nil
}

// State returns the phase of a channel's cycle.
func (p *Processor) State(channelID string) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.channels[channelID]; ok {
		return st.state
	}
	return StateIdle
}

// Current returns the track playing in a channel, or nil.
func (p *Processor) Current(channelID string) *library.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.channels[channelID]; ok {
		return st.current
	}
	return nil
}

// Subscribe creates a new event subscription.
func (p *Processor) Subscribe() *Subscription {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	sub := newSubscription()
	if p.closed {
		sub.close()
		return sub
	}
	p.subs = append(p.subs, sub)
	return sub
}

// Close cancels in-flight cycles and ends all subscriptions.
func (p *Processor) Close() {
	p.cancel()

	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, sub := range p.subs {
		sub.close()
	}
	p.subs = nil
}

func (p *Processor) channel(channelID string) *channel {
	st, ok := p.channels[channelID]
	if !ok {
		st = &channel{}
		p.channels[channelID] = st
	}
	return st
}

// begin moves a channel to Resolving and returns the generation the new
// cycle runs under. Without restart a busy channel is left alone.
func (p *Processor) begin(channelID string, restart bool) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.channel(channelID)
	if st.state.IsBusy() && !restart {
		return 0, false
	}
	st.gen++
	p.stopLocked(channelID, st)
	st.state = StateResolving
	return st.gen, true
}

// stopLocked silences the player and drops the held cache file.
func (p *Processor) stopLocked(channelID string, st *channel) {
	if pl := p.sessions.Player(channelID); pl != nil {
		pl.Stop()
	}
	if st.held != "" {
		p.cache.Release(st.held)
		st.held = ""
	}
	st.current = nil
	st.state = StateIdle
}

func (p *Processor) valid(channelID string, gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.channels[channelID]
	return ok && st.gen == gen
}

func (p *Processor) transition(channelID string, gen uint64, to State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.channels[channelID]
	if !ok || st.gen != gen {
		return false
	}
	st.state = to
	return true
}

func (p *Processor) cycle(channelID string, gen uint64) {
	ctx := p.ctx

	// Each failed slot costs one; a queue where nothing plays ends instead
	// of spinning, even when it loops.
	budget, err := p.queues.RemainingSlots(ctx, channelID)
	if err != nil {
		p.abort(channelID, gen, "persist", err)
		return
	}

	for {
		if !p.valid(channelID, gen) {
			return
		}

		cur, err := p.resolver.ResolveCurrent(ctx, channelID)
		var unresolvable *resolver.UnresolvableError
		switch {
		case errors.As(err, &unresolvable):
			p.emitError(channelID, "resolve", err)
			// The item is gone and the cursor already sits on its successor.
			if unresolvable.Outcome != queue.OutcomeMoved || budget <= 0 {
				p.exhausted(channelID, gen)
				return
			}
			budget--
			continue
		case err != nil:
			p.abort(channelID, gen, "persist", err)
			return
		case cur == nil:
			p.exhausted(channelID, gen)
			return
		}

		if !p.transition(channelID, gen, StateAcquiring) {
			return
		}
		path, err := p.cache.LocalPath(ctx, cur.Track.ID)
		if err != nil {
			if !p.valid(channelID, gen) {
				return
			}
			var failure *cache.DownloadFailure
			if !errors.As(err, &failure) {
				p.abort(channelID, gen, "download", err)
				return
			}
			p.emitError(channelID, "download", err)
			if !p.skip(ctx, channelID, gen, &budget) {
				return
			}
			continue
		}

		if err := p.play(ctx, channelID, gen, cur.Track, path); err != nil {
			p.emitError(channelID, "play", err)
			if !p.skip(ctx, channelID, gen, &budget) {
				return
			}
			continue
		}
		return
	}
}

// play starts path on the channel's player. It returns an error only when
// the player refused the file; a superseded cycle just drops the file.
func (p *Processor) play(ctx context.Context, channelID string, gen uint64, track *library.Track, path string) error {
	log := p.log.With().Str("channel", channelID).Str("track", track.ID).Logger()

	volume := queue.DefaultVolume
	if q, err := p.queues.Get(ctx, channelID); err == nil && q != nil {
		volume = q.Volume
	}

	pl := p.sessions.Player(channelID)

	p.mu.Lock()
	st := p.channel(channelID)
	if st.gen != gen {
		p.mu.Unlock()
		p.cache.Release(track.ID)
		return nil
	}
	if pl == nil {
		st.state = StateIdle
		p.mu.Unlock()
		p.cache.Release(track.ID)
		log.Warn().Msg("no voice session, cycle abandoned")
		return nil
	}

	pl.SetVolume(volume)
	if err := pl.Play(path, func() { go p.finished(channelID, gen) }); err != nil {
		p.mu.Unlock()
		p.cache.Release(track.ID)
		return err
	}
	prev := st.held
	st.held = track.ID
	st.current = track
	st.state = StatePlaying
	p.mu.Unlock()

	// A looped track holds two references here; drop the older one.
	if prev != "" {
		p.cache.Release(prev)
	}
	log.Info().Str("title", track.Title).Str("artist", track.Artist).Msg("now playing")
	p.notify(channelID)
	return nil
}

// skip advances past a slot that could not be played.
func (p *Processor) skip(ctx context.Context, channelID string, gen uint64, budget *int) bool {
	if *budget <= 0 {
		p.exhausted(channelID, gen)
		return false
	}
	*budget--

	if !p.transition(channelID, gen, StateResolving) {
		return false
	}
	out, ok, err := p.advance(ctx, channelID, gen)
	if err != nil {
		p.abort(channelID, gen, "persist", err)
		return false
	}
	if !ok {
		return false
	}
	if out != queue.OutcomeMoved {
		p.exhausted(channelID, gen)
		return false
	}
	return true
}

// finished runs when the player reaches the end of a track.
func (p *Processor) finished(channelID string, gen uint64) {
	p.mu.Lock()
	st, ok := p.channels[channelID]
	if !ok || st.gen != gen || st.state != StatePlaying {
		p.mu.Unlock()
		return
	}
	st.state = StateResolving
	p.mu.Unlock()

	ctx := p.ctx
	q, err := p.queues.Get(ctx, channelID)
	if err != nil {
		p.abort(channelID, gen, "persist", err)
		return
	}
	if q == nil {
		p.exhausted(channelID, gen)
		return
	}

	if q.LoopMode != queue.LoopTrack {
		p.releaseHeld(channelID, gen)
		out, ok, err := p.advance(ctx, channelID, gen)
		if err != nil {
			p.abort(channelID, gen, "persist", err)
			return
		}
		if !ok {
			return
		}
		if out != queue.OutcomeMoved {
			p.exhausted(channelID, gen)
			return
		}
	}
	p.cycle(channelID, gen)
}

// advance moves the cursor only if gen is still current once the channel
// lock is held; a command that got there first wins.
func (p *Processor) advance(ctx context.Context, channelID string, gen uint64) (queue.Outcome, bool, error) {
	return p.queues.AdvanceIf(ctx, channelID, func() bool {
		return p.valid(channelID, gen)
	})
}

func (p *Processor) releaseHeld(channelID string, gen uint64) {
	p.mu.Lock()
	st, ok := p.channels[channelID]
	if !ok || st.gen != gen || st.held == "" {
		p.mu.Unlock()
		return
	}
	held := st.held
	st.held = ""
	st.current = nil
	p.mu.Unlock()

	p.cache.Release(held)
}

// exhausted ends a channel whose queue has nothing left to play.
func (p *Processor) exhausted(channelID string, gen uint64) {
	p.mu.Lock()
	st, ok := p.channels[channelID]
	if !ok || st.gen != gen {
		p.mu.Unlock()
		return
	}
	st.gen++
	p.stopLocked(channelID, st)
	p.mu.Unlock()

	p.log.Info().Str("channel", channelID).Msg("queue finished")
	p.sessions.Teardown(channelID)
	if err := p.queues.Clear(p.ctx, channelID); err != nil {
		p.emitError(channelID, "persist", err)
	}
	p.notify(channelID)
}

// abort leaves the channel Idle without retrying. The session stays up so
// a later command can start again.
func (p *Processor) abort(channelID string, gen uint64, op string, err error) {
	p.mu.Lock()
	st, ok := p.channels[channelID]
	if !ok || st.gen != gen {
		p.mu.Unlock()
		return
	}
	if st.held != "" {
		p.cache.Release(st.held)
		st.held = ""
	}
	st.current = nil
	st.state = StateIdle
	p.mu.Unlock()

	p.log.Error().Err(err).Str("channel", channelID).Str("op", op).Msg("playback cycle aborted")
	p.emitError(channelID, op, err)
	p.notify(channelID)
}

func (p *Processor) emitError(channelID, op string, err error) {
	p.log.Warn().Err(err).Str("channel", channelID).Str("op", op).Msg("playback error")

	p.subsMu.RLock()
	defer p.subsMu.RUnlock()
	for _, sub := range p.subs {
		sub.sendError(ErrorEvent{ChannelID: channelID, Operation: op, Err: err})
	}
}

func (p *Processor) notify(channelID string) {
	u := Update{ChannelID: channelID}

	p.mu.Lock()
	if st, ok := p.channels[channelID]; ok {
		u.State = st.state
		u.Track = st.current
	}
	p.mu.Unlock()

	if pl := p.sessions.Player(channelID); pl != nil {
		u.Paused = pl.State() == voice.Paused
	}
	if q, err := p.queues.Get(p.ctx, channelID); err == nil {
		u.Queue = q
	}

	p.subsMu.RLock()
	defer p.subsMu.RUnlock()
	for _, sub := range p.subs {
		sub.sendUpdate(u)
	}
}
