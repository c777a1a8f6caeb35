package audio

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

const DefaultRingSeconds = 4

type StreamConfig struct {
	SampleRate  int
	Channels    int
	RingSeconds float64
	// MaxSamples caps the interleaved samples admitted over the stream's
	// life. Zero means unlimited.
	MaxSamples uint64
	// OnOverflow, if set, is called from the device goroutine with the
	// number of samples the ring overwrote.
	OnOverflow func(n int)
}

func (c StreamConfig) ringCapacity() int {
	secs := c.RingSeconds
	if secs <= 0 {
		secs = DefaultRingSeconds
	}
	return int(math.Ceil(float64(c.SampleRate*c.Channels) * secs))
}

// Stream owns a capture device for one session and feeds its frames into
// a RingBuffer.
type Stream struct {
	capture CaptureDevice
	cfg     StreamConfig
	ring    *RingBuffer

	admitMu  sync.Mutex
	halted   bool
	admitted uint64

	level     atomic.Uint64
	limit     chan struct{}
	limitOnce sync.Once
	haltOnce  sync.Once
	closeOnce sync.Once
}

// OpenStream starts capture and begins admitting frames. On failure the
// device is released and the error wraps ErrDevice.
func OpenStream(capture CaptureDevice, cfg StreamConfig) (*Stream, error) {
	if capture == nil {
		return nil, fmt.Errorf("%w: no capture device", ErrDevice)
	}
	if err := (CaptureConfig{SampleRate: uint32(cfg.SampleRate), Channels: uint32(cfg.Channels)}).Validate(); err != nil {
		capture.Close()
		return nil, fmt.Errorf("%w: %v", ErrDevice, err)
	}

	s := &Stream{
		capture: capture,
		cfg:     cfg,
		ring:    NewRingBuffer(cfg.ringCapacity()),
		limit:   make(chan struct{}),
	}

	capture.SetCallback(s.deliver)
	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		return nil, fmt.Errorf("%w: starting %s: %v", ErrDevice, capture.DeviceName(), err)
	}
	return s, nil
}

func (s *Stream) deliver(data []byte, _ uint32) {
	if len(data) < BytesPerSample {
		return
	}
	samples := Samples(data)

	s.admitMu.Lock()
	if s.halted {
		s.admitMu.Unlock()
		return
	}
	reached := false
	if s.cfg.MaxSamples > 0 {
		remaining := s.cfg.MaxSamples - s.admitted
		if uint64(len(samples)) >= remaining {
			samples = samples[:remaining]
			reached = true
		}
	}
	s.admitted += uint64(len(samples))
	overwritten := s.ring.Write(samples)
	s.admitMu.Unlock()

	s.level.Store(math.Float64bits(RMS(samples)))
	if overwritten > 0 && s.cfg.OnOverflow != nil {
		s.cfg.OnOverflow(overwritten)
	}
	if reached {
		s.limitOnce.Do(func() { close(s.limit) })
		s.Halt()
	}
}

// Ring exposes the buffer for the consumer side.
func (s *Stream) Ring() *RingBuffer { return s.ring }

// LimitReached closes once MaxSamples have been admitted.
func (s *Stream) LimitReached() <-chan struct{} { return s.limit }

// Level is the RMS of the most recent delivery.
func (s *Stream) Level() float64 { return math.Float64frombits(s.level.Load()) }

// Admitted is the number of interleaved samples accepted so far.
func (s *Stream) Admitted() uint64 {
	s.admitMu.Lock()
	defer s.admitMu.Unlock()
	return s.admitted
}

func (s *Stream) DeviceName() string { return s.capture.DeviceName() }

// Halt stops admitting audio immediately and closes the ring so the
// consumer can flush what is left. The device keeps running until Close.
func (s *Stream) Halt() {
	if s == nil {
		return
	}
	s.haltOnce.Do(func() {
		s.admitMu.Lock()
		s.halted = true
		s.admitMu.Unlock()
		s.capture.ClearCallback()
		s.ring.Close()
	})
}

// Close halts admission and releases the device. Safe to call repeatedly
// and on a nil Stream.
func (s *Stream) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		s.Halt()
		s.capture.Stop()
		s.capture.Close()
	})
}
