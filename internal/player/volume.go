package player

import (
	"math"

	"github.com/gopxl/beep/v2/effects"
)

// SetVolume sets the volume in percent, 100 being unchanged.
func (p *Player) SetVolume(percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.percent = min(max(percent, 0), 200)
	if p.volume != nil {
		p.sink.Lock()
		applyVolume(p.volume, p.percent)
		p.sink.Unlock()
	}
}

// Volume returns the volume in percent.
func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.percent
}

func applyVolume(v *effects.Volume, percent int) {
	v.Silent = percent <= 0
	v.Volume = percentToVolume(percent)
}

// percentToVolume converts a percentage to beep's base-2 volume.
// 100 -> 0, 50 -> -1, 200 -> +1, 0 -> -10 (and silenced separately).
func percentToVolume(percent int) float64 {
	if percent <= 0 {
		return -10
	}
	return math.Log2(float64(percent) / 100)
}
