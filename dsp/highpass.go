// Package dsp holds the optional per-segment signal conditioning.
package dsp

import (
	"fmt"
	"math"

	"scribe/segment"
)

const minPad = 9 // 3 * filter order + 3, the usual filtfilt default

// HighPass is a second-order Butterworth high-pass filter run forward and
// backward so the output has no phase shift.
type HighPass struct {
	Cutoff float64 // Hz
}

func (h HighPass) Validate(sampleRate int) error {
	if h.Cutoff <= 0 || h.Cutoff >= float64(sampleRate)/2 {
		return fmt.Errorf("high-pass cutoff %.1f Hz must be between 0 and %d Hz", h.Cutoff, sampleRate/2)
	}
	return nil
}

// padding is the number of frames reflected onto each edge: one period of
// the cutoff.
func (h HighPass) padding(sampleRate int) int {
	return max(int(math.Ceil(float64(sampleRate)/h.Cutoff)), minPad)
}

// MinWindow is the shortest input, in frames, that gets filtered.
func (h HighPass) MinWindow(sampleRate int) int {
	return 3 * h.padding(sampleRate)
}

// Segment returns a copy of seg with filtered samples.
func (h HighPass) Segment(seg segment.Segment) segment.Segment {
	seg.Samples = h.Apply(seg.Samples, seg.SampleRate, seg.Channels)
	return seg
}

// Apply filters interleaved samples and returns a new slice of the same
// length. Inputs shorter than MinWindow come back as an unfiltered copy.
func (h HighPass) Apply(samples []int16, sampleRate, channels int) []int16 {
	out := make([]int16, len(samples))
	copy(out, samples)
	channels = max(channels, 1)
	frames := len(samples) / channels
	if h.Validate(sampleRate) != nil || frames < h.MinWindow(sampleRate) {
		return out
	}

	bq := butterworth(h.Cutoff, float64(sampleRate))
	pad := h.padding(sampleRate)
	x := make([]float64, frames)
	for c := 0; c < channels; c++ {
		for i := range x {
			x[i] = float64(samples[i*channels+c])
		}
		y := bq.filtfilt(x, pad)
		for i, v := range y {
			out[i*channels+c] = clamp16(v)
		}
	}
	return out
}

// biquad holds normalized coefficients (a0 == 1).
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

func butterworth(cutoff, rate float64) biquad {
	w0 := 2 * math.Pi * cutoff / rate
	cosw := math.Cos(w0)
	alpha := math.Sin(w0) / math.Sqrt2 // 1/(2Q) with Q = 1/sqrt(2)
	a0 := 1 + alpha
	return biquad{
		b0: (1 + cosw) / 2 / a0,
		b1: -(1 + cosw) / a0,
		b2: (1 + cosw) / 2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

// run filters x in place (direct form II transposed) starting from the
// steady state for a constant input of x[0].
func (q biquad) run(x []float64) {
	z1, z2 := -q.b0*x[0], q.b2*x[0]
	for i, in := range x {
		y := q.b0*in + z1
		z1 = q.b1*in - q.a1*y + z2
		z2 = q.b2*in - q.a2*y
		x[i] = y
	}
}

func (q biquad) filtfilt(x []float64, pad int) []float64 {
	n := len(x)
	ext := make([]float64, n+2*pad)
	for i := 0; i < pad; i++ {
		ext[i] = 2*x[0] - x[pad-i]
		ext[n+pad+i] = 2*x[n-1] - x[n-2-i]
	}
	copy(ext[pad:], x)

	q.run(ext)
	reverse(ext)
	q.run(ext)
	reverse(ext)
	return ext[pad : pad+n]
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}

func clamp16(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
