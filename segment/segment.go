// Package segment cuts the captured sample stream into discrete, indexed
// segments for transcription.
package segment

import (
	"context"
	"time"
)

const (
	DefaultFrameDuration = 20 * time.Millisecond
	// consecutive speech frames needed before a run counts as voice
	speechDebounce = 3
)

// Segment is one bounded slice of captured audio. Samples are interleaved.
type Segment struct {
	Index      int
	Samples    []int16
	SampleRate int
	Channels   int
	Start      time.Duration
	Partial    bool
	Speech     bool
}

func (s Segment) Frames() int {
	return len(s.Samples) / max(s.Channels, 1)
}

func (s Segment) Duration() time.Duration {
	if s.SampleRate == 0 {
		return 0
	}
	return time.Duration(s.Frames()) * time.Second / time.Duration(s.SampleRate)
}

// Source is the consumer side of the ring buffer.
type Source interface {
	WaitFor(ctx context.Context, n int) (available int, closed bool, err error)
	Read(n int) (samples []int16, start uint64)
}

// Segmenter yields segments in index order and io.EOF once the source is
// closed and drained.
type Segmenter interface {
	Next(ctx context.Context) (Segment, error)
}

// FrameObserver receives the raw speech decision for every analysed frame.
type FrameObserver func(speech bool, d time.Duration)

type Config struct {
	SampleRate int
	Channels   int

	// Duration is the fixed-mode segment length.
	Duration time.Duration

	// SilenceGap and MaxSegment drive silence mode.
	SilenceGap time.Duration
	MaxSegment time.Duration

	FrameDuration time.Duration
	Detector      Detector
	Observer      FrameObserver
}

func (c Config) frameDuration() time.Duration {
	if c.FrameDuration <= 0 {
		return DefaultFrameDuration
	}
	return c.FrameDuration
}

// samplesFor converts a duration to interleaved samples.
func (c Config) samplesFor(d time.Duration) int {
	frames := int(int64(c.SampleRate) * int64(d) / int64(time.Second))
	return frames * max(c.Channels, 1)
}

func (c Config) offset(pos uint64) time.Duration {
	frames := pos / uint64(max(c.Channels, 1))
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// analyzer classifies frames and tracks debounced speech runs.
type analyzer struct {
	cfg       Config
	speechRun int
	voiced    bool
}

// frame classifies one interleaved frame and reports whether a debounced
// speech run is in progress.
func (a *analyzer) frame(samples []int16) (raw bool) {
	if a.cfg.Detector == nil {
		return true
	}
	raw = a.cfg.Detector.Speech(mono(samples, a.cfg.Channels))
	if raw {
		a.speechRun++
		if a.speechRun >= speechDebounce {
			a.voiced = true
		}
	} else {
		a.speechRun = 0
	}
	if a.cfg.Observer != nil {
		frames := len(samples) / max(a.cfg.Channels, 1)
		a.cfg.Observer(raw, time.Duration(frames)*time.Second/time.Duration(a.cfg.SampleRate))
	}
	return raw
}

func (a *analyzer) reset() {
	a.speechRun = 0
	a.voiced = false
}

// scan runs every frame of samples through the analyzer and reports
// whether voice was found.
func (a *analyzer) scan(samples []int16) bool {
	if a.cfg.Detector == nil {
		return true
	}
	a.reset()
	step := a.cfg.samplesFor(a.cfg.frameDuration())
	for i := 0; i+step <= len(samples); i += step {
		a.frame(samples[i : i+step])
	}
	return a.voiced
}

func mono(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	out := make([]int16, len(samples)/channels)
	for i := range out {
		var sum int32
		for c := 0; c < channels; c++ {
			sum += int32(samples[i*channels+c])
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}
