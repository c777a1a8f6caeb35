package segment

import (
	"fmt"
	"math"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

// Detector decides whether a mono frame contains speech.
type Detector interface {
	Speech(frame []int16) bool
}

const DefaultEnergyThreshold = 0.01 // RMS, about -40 dBFS

// EnergyDetector treats frames louder than Threshold as speech.
type EnergyDetector struct {
	Threshold float64
}

func (d EnergyDetector) Speech(frame []int16) bool {
	if len(frame) == 0 {
		return false
	}
	var sumSquares float64
	for _, s := range frame {
		n := float64(s) / 32768.0
		sumSquares += n * n
	}
	threshold := d.Threshold
	if threshold <= 0 {
		threshold = DefaultEnergyThreshold
	}
	return math.Sqrt(sumSquares/float64(len(frame))) >= threshold
}

// VADDetector classifies frames with the WebRTC voice activity detector.
// It is not safe for concurrent use.
type VADDetector struct {
	vad        *webrtcvad.VAD
	sampleRate int
	buf        []byte
}

// NewVADDetector creates a detector with aggressiveness mode 0-3.
func NewVADDetector(mode, sampleRate int) (*VADDetector, error) {
	switch sampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return nil, fmt.Errorf("vad: unsupported sample rate %d (use 8000, 16000, 32000 or 48000)", sampleRate)
	}
	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("vad: %w", err)
	}
	mode = min(max(mode, 0), 3)
	if err := v.SetMode(mode); err != nil {
		return nil, fmt.Errorf("vad: set mode: %w", err)
	}
	return &VADDetector{vad: v, sampleRate: sampleRate}, nil
}

// Speech expects 10, 20 or 30 ms frames. Other lengths count as silence.
func (d *VADDetector) Speech(frame []int16) bool {
	switch len(frame) {
	case d.sampleRate / 100, d.sampleRate / 50, d.sampleRate * 3 / 100:
	default:
		return false
	}
	if cap(d.buf) < len(frame)*2 {
		d.buf = make([]byte, len(frame)*2)
	}
	d.buf = d.buf[:len(frame)*2]
	for i, s := range frame {
		d.buf[2*i] = byte(s)
		d.buf[2*i+1] = byte(s >> 8)
	}
	active, err := d.vad.Process(d.sampleRate, d.buf)
	return err == nil && active
}
