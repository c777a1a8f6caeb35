//go:build darwin

package beep

import (
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"scribe/audio"
)

var (
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device

	// Playback state, read from the device callback
	current atomic.Pointer[[]byte]
	pos     atomic.Uint32
	playMu  sync.Mutex
)

func initDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	var err error
	device, err = malgo.InitDevice(malgoCtx.Context, config, malgo.DeviceCallbacks{Data: dataCallback})
	return err
}

func initOutput() {
	var err error
	malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return
	}
	if err := initDevice(); err != nil {
		malgoCtx.Uninit()
		malgoCtx = nil
	}
}

func dataCallback(out, _ []byte, frameCount uint32) {
	want := frameCount * 2
	clear(out[:want])

	buf := current.Load()
	if buf == nil {
		return
	}
	p := pos.Load()
	remaining := uint32(len(*buf)) - p
	if remaining == 0 {
		current.Store(nil)
		return
	}
	n := min(want, remaining)
	copy(out[:n], (*buf)[p:p+n])
	pos.Store(p + n)
}

func play(samples []int16) {
	if malgoCtx == nil {
		return
	}
	data := audio.Bytes(samples)

	playMu.Lock()
	defer playMu.Unlock()
	if device == nil {
		return
	}

	// Restart so a new cue replaces one still playing.
	device.Stop()
	pos.Store(0)
	current.Store(&data)

	if err := device.Start(); err != nil {
		// Recreate after sleep/wake
		device.Uninit()
		if err := initDevice(); err != nil {
			current.Store(nil)
			return
		}
		if err := device.Start(); err != nil {
			current.Store(nil)
		}
	}
}
