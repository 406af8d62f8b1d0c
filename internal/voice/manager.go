package voice

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultReadyTimeout bounds how long a join may take to become ready.
const DefaultReadyTimeout = 15 * time.Second

// ErrReadyTimeout is wrapped in a ConnectionError when a join never becomes ready.
var ErrReadyTimeout = errors.New("connection not ready in time")

// Session is the connection and player bound to one channel context.
type Session struct {
	Ref    ChannelRef
	Conn   Connection
	Player Player
}

// Manager is the registry of live sessions keyed by channel id.
type Manager struct {
	gateway      Gateway
	readyTimeout time.Duration
	clock        clock.Clock
	log          zerolog.Logger

	joins singleflight.Group

	mu       sync.Mutex
	sessions map[string]*Session
	hooks    []func(channelID string)
}

// NewManager creates a session manager. A zero readyTimeout uses the default.
func NewManager(gateway Gateway, readyTimeout time.Duration, clk clock.Clock, log zerolog.Logger) *Manager {
	if readyTimeout <= 0 {
		readyTimeout = DefaultReadyTimeout
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{
		gateway:      gateway,
		readyTimeout: readyTimeout,
		clock:        clk,
		log:          log.With().Str("component", "voice").Logger(),
		sessions:     make(map[string]*Session),
	}
}

// OnTeardown registers fn to run after a session is torn down.
// Hooks run outside the manager lock, in registration order.
func (m *Manager) OnTeardown(fn func(channelID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Ensure returns the session of ref.ID, joining the channel and creating
// the player only when missing. Concurrent calls share one join.
func (m *Manager) Ensure(ctx context.Context, ref ChannelRef) (*Session, error) {
	if s := m.Session(ref.ID); s != nil {
		return s, nil
	}

	v, err, _ := m.joins.Do(ref.ID, func() (any, error) {
		if s := m.Session(ref.ID); s != nil {
			return s, nil
		}
		return m.join(ctx, ref)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (m *Manager) join(ctx context.Context, ref ChannelRef) (*Session, error) {
	log := m.log.With().Str("channel", ref.ID).Logger()

	conn, err := m.gateway.Join(ctx, ref)
	if err != nil {
		return nil, &ConnectionError{ChannelID: ref.ID, Err: err}
	}

	timer := m.clock.Timer(m.readyTimeout)
	defer timer.Stop()
	select {
	case <-conn.Ready():
	case <-timer.C:
		conn.Destroy()
		log.Warn().Dur("timeout", m.readyTimeout).Msg("voice connection not ready")
		return nil, &ConnectionError{ChannelID: ref.ID, Err: ErrReadyTimeout}
	case <-ctx.Done():
		conn.Destroy()
		return nil, &ConnectionError{ChannelID: ref.ID, Err: ctx.Err()}
	}

	p := m.gateway.NewPlayer(ref.ID)
	conn.Subscribe(p)

	s := &Session{Ref: ref, Conn: conn, Player: p}
	m.mu.Lock()
	m.sessions[ref.ID] = s
	m.mu.Unlock()

	log.Info().Str("name", ref.Name).Msg("joined voice channel")
	return s, nil
}

// Session returns the live session of a channel, or nil.
func (m *Manager) Session(channelID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[channelID]
}

// Player returns the player of a channel, or nil.
func (m *Manager) Player(channelID string) Player {
	if s := m.Session(channelID); s != nil {
		return s.Player
	}
	return nil
}

// Connection returns the connection of a channel, or nil.
func (m *Manager) Connection(channelID string) Connection {
	if s := m.Session(channelID); s != nil {
		return s.Conn
	}
	return nil
}

// Channels returns the ids of all live sessions.
func (m *Manager) Channels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Teardown stops the player, destroys the connection and forgets the
// session. It returns false if the channel had no session.
func (m *Manager) Teardown(channelID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[channelID]
	delete(m.sessions, channelID)
	hooks := append([]func(string){}, m.hooks...)
	m.mu.Unlock()

	if !ok {
		return false
	}

	s.Player.Stop()
	s.Conn.Destroy()
	m.log.Info().Str("channel", channelID).Msg("left voice channel")

	for _, fn := range hooks {
		fn(channelID)
	}
	return true
}

// TeardownAll tears down every session, for shutdown.
func (m *Manager) TeardownAll() {
	for _, id := range m.Channels() {
		m.Teardown(id)
	}
}
