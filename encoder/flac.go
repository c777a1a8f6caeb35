package encoder

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

type FlacEncoder struct {
	enc         *flac.Encoder
	sampleRate  int
	channels    int
	totalFrames uint64
	encodeTime  time.Duration
	mu          sync.Mutex
}

// NewFlac streams FLAC frames into w. When w is an io.WriteSeeker the
// stream info header is patched with the final sample count on Close.
func NewFlac(w io.Writer, sampleRate, channels int) (*FlacEncoder, error) {
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("flac: unsupported channel count %d", channels)
	}
	info := &meta.StreamInfo{
		BlockSizeMin:  BlockSize,
		BlockSizeMax:  BlockSize,
		SampleRate:    uint32(sampleRate),
		NChannels:     uint8(channels),
		BitsPerSample: BitsPerSample,
	}
	enc, err := flac.NewEncoder(w, info)
	if err != nil {
		return nil, fmt.Errorf("creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)
	return &FlacEncoder{enc: enc, sampleRate: sampleRate, channels: channels}, nil
}

// EncodeBlock writes one frame of at most BlockSize interleaved frames.
func (e *FlacEncoder) EncodeBlock(block []int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	n := len(block) / e.channels
	if n == 0 {
		return nil
	}
	if n > BlockSize {
		return fmt.Errorf("flac: block of %d frames exceeds %d", n, BlockSize)
	}

	subframes := make([]*frame.Subframe, e.channels)
	for c := range subframes {
		samples := make([]int32, n)
		for i := range samples {
			samples[i] = int32(block[i*e.channels+c])
		}
		subframes[c] = &frame.Subframe{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   samples,
			NSamples:  n,
		}
	}

	layout := frame.ChannelsMono
	if e.channels == 2 {
		layout = frame.ChannelsLR
	}
	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(n),
			SampleRate:    uint32(e.sampleRate),
			Channels:      layout,
			BitsPerSample: BitsPerSample,
		},
		Subframes: subframes,
	}

	if err := e.enc.WriteFrame(f); err != nil {
		return fmt.Errorf("writing flac frame: %w", err)
	}
	e.totalFrames += uint64(n)
	e.encodeTime += time.Since(start)
	return nil
}

func (e *FlacEncoder) Close() error {
	return e.enc.Close()
}

func (e *FlacEncoder) TotalFrames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalFrames
}

func (e *FlacEncoder) EncodeTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.encodeTime
}
