package player

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/rs/zerolog"

	"github.com/llehouerou/wavebot/internal/voice"
)

// Player plays one track at a time into the shared sink.
type Player struct {
	sink sink
	rate beep.SampleRate
	log  zerolog.Logger

	mu         sync.Mutex
	state      voice.PlayerState
	ctrl       *beep.Ctrl
	volume     *effects.Volume
	closer     io.Closer
	percent    int
	gen        uint64
	onFinished func()
}

func newPlayer(s sink, rate beep.SampleRate, log zerolog.Logger) *Player {
	return &Player{sink: s, rate: rate, log: log, percent: 100}
}

// Play decodes path and starts it, replacing the current track.
func (p *Player) Play(path string, onFinished func()) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".mp3" && ext != ".flac" {
		return fmt.Errorf("unsupported format: %s", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}

	var streamer beep.StreamSeekCloser
	var format beep.Format
	switch ext {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".flac":
		streamer, format, err = flac.Decode(f)
	}
	if err != nil {
		f.Close()
		return err
	}

	p.start(streamer, streamer, format, onFinished)
	p.log.Debug().Str("path", path).Dur("duration", format.SampleRate.D(streamer.Len())).Msg("playing")
	return nil
}

func (p *Player) start(s beep.Streamer, closer io.Closer, format beep.Format, onFinished func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	p.gen++
	gen := p.gen

	var src beep.Streamer = s
	if format.SampleRate != p.rate {
		src = beep.Resample(4, format.SampleRate, p.rate, s)
	}
	p.ctrl = &beep.Ctrl{Streamer: src}
	p.volume = &effects.Volume{Streamer: p.ctrl, Base: 2}
	applyVolume(p.volume, p.percent)
	p.closer = closer
	p.onFinished = onFinished
	p.state = voice.Playing

	// The callback runs on the audio goroutine with the sink locked.
	p.sink.Play(beep.Seq(p.volume, beep.Callback(func() {
		go p.finish(gen)
	})))
}

func (p *Player) finish(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || !p.state.IsActive() {
		p.mu.Unlock()
		return
	}
	fn := p.onFinished
	p.releaseLocked()
	p.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Stop ends playback without calling the completion callback.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Player) stopLocked() {
	if p.ctrl != nil {
		// A nil streamer ends the sequence; the stale callback then sees
		// a newer generation and does nothing.
		p.sink.Lock()
		p.ctrl.Streamer = nil
		p.sink.Unlock()
	}
	p.gen++
	p.releaseLocked()
}

func (p *Player) releaseLocked() {
	if p.closer != nil {
		p.closer.Close()
		p.closer = nil
	}
	p.ctrl = nil
	p.volume = nil
	p.onFinished = nil
	p.state = voice.Idle
}

func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != voice.Playing || p.ctrl == nil {
		return
	}
	p.sink.Lock()
	p.ctrl.Paused = true
	p.sink.Unlock()
	p.state = voice.Paused
}

func (p *Player) Unpause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != voice.Paused || p.ctrl == nil {
		return
	}
	p.sink.Lock()
	p.ctrl.Paused = false
	p.sink.Unlock()
	p.state = voice.Playing
}

func (p *Player) State() voice.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

var _ voice.Player = (*Player)(nil)
