package segment

import (
	"context"
	"fmt"
	"io"
)

// Fixed emits segments of exactly Config.Duration, plus one partial tail
// segment when the source closes with audio left over.
type Fixed struct {
	cfg    Config
	src    Source
	target int
	next   int
	an     analyzer
	done   bool
}

func NewFixed(src Source, cfg Config) (*Fixed, error) {
	target := cfg.samplesFor(cfg.Duration)
	if target <= 0 {
		return nil, fmt.Errorf("segment duration %v too short for %d Hz", cfg.Duration, cfg.SampleRate)
	}
	return &Fixed{cfg: cfg, src: src, target: target, an: analyzer{cfg: cfg}}, nil
}

// Target is the number of interleaved samples in a full segment.
func (f *Fixed) Target() int { return f.target }

func (f *Fixed) Next(ctx context.Context) (Segment, error) {
	if f.done {
		return Segment{}, io.EOF
	}
	available, closed, err := f.src.WaitFor(ctx, f.target)
	if err != nil {
		return Segment{}, err
	}

	var partial bool
	n := f.target
	if available < f.target {
		if !closed || available == 0 {
			f.done = closed
			return Segment{}, io.EOF
		}
		n, partial = available, true
		f.done = true
	}

	samples, start := f.src.Read(n)
	seg := Segment{
		Index:      f.next,
		Samples:    samples,
		SampleRate: f.cfg.SampleRate,
		Channels:   f.cfg.Channels,
		Start:      f.cfg.offset(start),
		Partial:    partial,
		Speech:     f.an.scan(samples),
	}
	f.next++
	return seg, nil
}
