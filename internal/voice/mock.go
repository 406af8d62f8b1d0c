package voice

import (
	"context"
	"errors"
	"sync"
)

// MockGateway is a test double for Gateway. Connections become ready
// immediately unless NeverReady is set.
type MockGateway struct {
	mu         sync.Mutex
	JoinErr    error
	NeverReady bool
	joins      []string
	conns      map[string]*MockConnection
	players    map[string]*MockPlayer
}

// NewMockGateway creates a mock gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		conns:   make(map[string]*MockConnection),
		players: make(map[string]*MockPlayer),
	}
}

func (g *MockGateway) Join(_ context.Context, ref ChannelRef) (Connection, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.joins = append(g.joins, ref.ID)
	if g.JoinErr != nil {
		return nil, g.JoinErr
	}
	c := &MockConnection{ready: make(chan struct{})}
	if !g.NeverReady {
		close(c.ready)
	}
	g.conns[ref.ID] = c
	return c, nil
}

func (g *MockGateway) NewPlayer(channelID string) Player {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := NewMockPlayer()
	g.players[channelID] = p
	return p
}

// Joins returns the channel ids of every Join call.
func (g *MockGateway) Joins() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.joins...)
}

// Conn returns the last connection made for a channel.
func (g *MockGateway) Conn(channelID string) *MockConnection {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conns[channelID]
}

// PlayerFor returns the last player created for a channel.
func (g *MockGateway) PlayerFor(channelID string) *MockPlayer {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.players[channelID]
}

// MockConnection is a test double for Connection.
type MockConnection struct {
	mu         sync.Mutex
	ready      chan struct{}
	subscribed Player
	destroyed  bool
}

func (c *MockConnection) Ready() <-chan struct{} { return c.ready }

func (c *MockConnection) Subscribe(p Player) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = p
}

func (c *MockConnection) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed = true
}

// Destroyed reports whether Destroy was called.
func (c *MockConnection) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// Subscribed returns the player subscribed to the connection.
func (c *MockConnection) Subscribed() Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}

// ErrMockPlay is a ready-made error for MockPlayer.PlayErr.
var ErrMockPlay = errors.New("mock play failure")

// MockPlayer is a test double for Player. Finish simulates the end of the
// current track.
type MockPlayer struct {
	mu         sync.Mutex
	state      PlayerState
	volume     int
	PlayErr    error
	plays      []string
	onFinished func()
	playedCh   chan string
}

// NewMockPlayer creates an idle mock player.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{volume: 100, playedCh: make(chan string, 64)}
}

func (p *MockPlayer) Play(path string, onFinished func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PlayErr != nil {
		return p.PlayErr
	}
	p.plays = append(p.plays, path)
	p.onFinished = onFinished
	p.state = Playing
	select {
	case p.playedCh <- path:
	default:
	}
	return nil
}

func (p *MockPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Playing {
		p.state = Paused
	}
}

func (p *MockPlayer) Unpause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Paused {
		p.state = Playing
	}
}

func (p *MockPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = Idle
	p.onFinished = nil
}

func (p *MockPlayer) SetVolume(percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = percent
}

func (p *MockPlayer) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Volume returns the last volume set.
func (p *MockPlayer) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Plays returns every path passed to Play.
func (p *MockPlayer) Plays() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.plays...)
}

// Played delivers each path passed to Play.
func (p *MockPlayer) Played() <-chan string { return p.playedCh }

// Finish ends the current track as if it played to the end, returning
// false if nothing was playing.
func (p *MockPlayer) Finish() bool {
	p.mu.Lock()
	fn := p.onFinished
	p.onFinished = nil
	active := p.state.IsActive()
	p.state = Idle
	p.mu.Unlock()

	if !active {
		return false
	}
	if fn != nil {
		fn()
	}
	return true
}

// Callback returns the completion callback of the current track.
func (p *MockPlayer) Callback() func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onFinished
}

var (
	_ Gateway    = (*MockGateway)(nil)
	_ Connection = (*MockConnection)(nil)
	_ Player     = (*MockPlayer)(nil)
)
