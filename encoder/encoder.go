package encoder

import (
	"fmt"
	"io"
	"time"
)

const (
	BitsPerSample = 16
	BlockSize     = 4096 // frames per FLAC block
)

// Format is the container used for audio artifacts.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatFLAC Format = "flac"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatWAV, FormatFLAC:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown audio format %q (use wav or flac)", s)
	}
}

func (f Format) Ext() string { return string(f) }

// Encoder consumes interleaved s16 samples block by block.
type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	TotalFrames() uint64
	EncodeTime() time.Duration
}

// Write encodes samples into w using format f.
func Write(w io.WriteSeeker, f Format, samples []int16, sampleRate, channels int) error {
	switch f {
	case FormatWAV:
		return WriteWAV(w, samples, sampleRate, channels)
	case FormatFLAC:
		enc, err := NewFlac(w, sampleRate, channels)
		if err != nil {
			return err
		}
		step := BlockSize * channels
		for i := 0; i < len(samples); i += step {
			if err := enc.EncodeBlock(samples[i:min(i+step, len(samples))]); err != nil {
				enc.Close()
				return err
			}
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown audio format %q", f)
	}
}
