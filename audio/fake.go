package audio

import (
	"sync"
	"time"
)

const fakeChunkFrames = 1024

// FakeContext hands out FakeCaptures that replay fixed PCM instead of a
// microphone.
type FakeContext struct {
	pcm   []int16
	speed float64
}

// NewFakeContext replays pcm. speed 1 is realtime, larger values play
// faster, 0 leaves the capture in manual mode (see FakeCapture.Push).
func NewFakeContext(pcm []int16, speed float64) *FakeContext {
	return &FakeContext{pcm: pcm, speed: speed}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, cfg CaptureConfig) (CaptureDevice, error) {
	return NewFakeCapture(f.pcm, cfg, f.speed), nil
}

// FakeCapture delivers PCM through the callback like a real device. Once
// the PCM is exhausted it keeps delivering silence until stopped.
type FakeCapture struct {
	pcm   []int16
	cfg   CaptureConfig
	speed float64

	mu        sync.Mutex
	cb        DataCallback
	started   bool
	stopCh    chan struct{}
	feedDone  chan struct{}
	audioDone chan struct{}
	StartErr  error

	stops  int
	closes int
}

func NewFakeCapture(pcm []int16, cfg CaptureConfig, speed float64) *FakeCapture {
	return &FakeCapture{
		pcm:       pcm,
		cfg:       cfg,
		speed:     speed,
		stopCh:    make(chan struct{}),
		feedDone:  make(chan struct{}),
		audioDone: make(chan struct{}),
	}
}

// AudioDone closes once all PCM has been delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

// Push delivers samples synchronously through the current callback.
func (f *FakeCapture) Push(samples []int16) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb == nil || len(samples) == 0 {
		return
	}
	ch := max(int(f.cfg.Channels), 1)
	cb(Bytes(samples), uint32(len(samples)/ch))
}

func (f *FakeCapture) Start() error {
	if f.StartErr != nil {
		return f.StartErr
	}
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return nil
	}
	f.started = true
	f.mu.Unlock()

	if f.speed <= 0 {
		close(f.feedDone)
		return nil
	}

	ch := max(int(f.cfg.Channels), 1)
	chunk := fakeChunkFrames * ch
	rate := max(int(f.cfg.SampleRate), 1)
	interval := time.Duration(float64(fakeChunkFrames) / float64(rate) / f.speed * float64(time.Second))

	go func() {
		defer close(f.feedDone)
		silence := make([]int16, chunk)
		pos := 0
		finished := false
		for {
			if pos < len(f.pcm) {
				end := min(pos+chunk, len(f.pcm))
				f.Push(f.pcm[pos:end])
				pos = end
			} else {
				if !finished {
					finished = true
					close(f.audioDone)
				}
				f.Push(silence)
			}
			select {
			case <-f.stopCh:
				return
			case <-time.After(interval):
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	f.stops++
	started := f.started
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	f.mu.Unlock()
	if started {
		<-f.feedDone
	}
}

func (f *FakeCapture) Close() {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
}

// Released reports whether Stop and Close have both been called.
func (f *FakeCapture) Released() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops > 0 && f.closes > 0
}
