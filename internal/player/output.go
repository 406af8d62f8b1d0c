// Package player is a voice gateway that plays into the local audio
// device. Every channel gets its own player; all of them share the
// speaker's mixer.
package player

import (
	"context"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog"

	"github.com/llehouerou/wavebot/internal/voice"
)

// DefaultSampleRate is the output rate; tracks are resampled to it.
const DefaultSampleRate = beep.SampleRate(44100)

// sink is where players send their streams.
type sink interface {
	Play(s beep.Streamer)
	Lock()
	Unlock()
}

type speakerSink struct{}

func (speakerSink) Play(s beep.Streamer) { speaker.Play(s) }
func (speakerSink) Lock()                { speaker.Lock() }
func (speakerSink) Unlock()              { speaker.Unlock() }

// Gateway implements voice.Gateway on the local speaker.
type Gateway struct {
	sink sink
	rate beep.SampleRate
	log  zerolog.Logger
}

// NewGateway initializes the speaker at the given rate.
func NewGateway(rate beep.SampleRate, log zerolog.Logger) (*Gateway, error) {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	if err := speaker.Init(rate, rate.N(time.Second/10)); err != nil {
		return nil, err
	}
	return &Gateway{sink: speakerSink{}, rate: rate, log: log.With().Str("component", "player").Logger()}, nil
}

// Join returns a connection that is ready at once: the speaker is always there.
func (g *Gateway) Join(_ context.Context, ref voice.ChannelRef) (voice.Connection, error) {
	g.log.Debug().Str("channel", ref.ID).Msg("local output attached")
	ready := make(chan struct{})
	close(ready)
	return &connection{ready: ready}, nil
}

func (g *Gateway) NewPlayer(channelID string) voice.Player {
	return newPlayer(g.sink, g.rate, g.log.With().Str("channel", channelID).Logger())
}

type connection struct {
	ready chan struct{}

	mu     sync.Mutex
	player voice.Player
}

func (c *connection) Ready() <-chan struct{} { return c.ready }

func (c *connection) Subscribe(p voice.Player) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.player = p
}

// Destroy silences the subscribed player.
func (c *connection) Destroy() {
	c.mu.Lock()
	p := c.player
	c.player = nil
	c.mu.Unlock()
	if p != nil {
		p.Stop()
	}
}

var _ voice.Gateway = (*Gateway)(nil)
