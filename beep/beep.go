// Package beep plays short cues on the default output device: when
// recording starts, when it stops and when a silence warning fires.
package beep

import (
	"math"
	"sync"
	"sync/atomic"
)

type Cue int

const (
	Start Cue = iota
	Stop
	Warn
)

const sampleRate = 44100

type tone struct {
	freq     float64
	volume   float64
	decay    float64
	duration float64 // seconds per tick
	ticks    int
}

var tones = map[Cue]tone{
	// high pitch, short
	Start: {freq: 1200, volume: 0.5, decay: 60, duration: 0.2, ticks: 1},
	// medium pitch, slightly longer
	Stop: {freq: 900, volume: 0.5, decay: 40, duration: 0.2, ticks: 1},
	// low pitch double-beep
	Warn: {freq: 350, volume: 0.6, decay: 30, duration: 0.08, ticks: 2},
}

const tickGap = 0.05

var (
	disabled  atomic.Bool
	soundOnce sync.Once
	rendered  map[Cue][]int16
)

func Disable() { disabled.Store(true) }

// Play starts cue in the background and returns immediately. Playback
// errors are dropped.
func Play(c Cue) {
	if disabled.Load() {
		return
	}
	soundOnce.Do(func() {
		rendered = make(map[Cue][]int16, len(tones))
		for cue := range tones {
			rendered[cue] = Render(cue, sampleRate)
		}
		initOutput()
	})
	if samples := rendered[c]; len(samples) > 0 {
		play(samples)
	}
}

// Render synthesizes cue as mono s16 samples at rate: decaying sine ticks
// separated by a short gap.
func Render(c Cue, rate int) []int16 {
	t, ok := tones[c]
	if !ok {
		return nil
	}
	n := int(float64(rate) * t.duration)
	gap := int(float64(rate) * tickGap)

	out := make([]int16, 0, t.ticks*n+(t.ticks-1)*gap)
	for k := 0; k < t.ticks; k++ {
		if k > 0 {
			out = append(out, make([]int16, gap)...)
		}
		for i := 0; i < n; i++ {
			ts := float64(i) / float64(rate)
			envelope := math.Exp(-ts * t.decay)
			out = append(out, int16(math.Sin(2*math.Pi*t.freq*ts)*32767*t.volume*envelope))
		}
	}
	return out
}
