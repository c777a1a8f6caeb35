package session

import (
	"errors"
	"fmt"
	"math"
	"time"

	"scribe/audio"
	"scribe/conversation"
	"scribe/dsp"
	"scribe/encoder"
	"scribe/segment"
	"scribe/transcriber"
)

var ErrConfiguration = errors.New("invalid configuration")

type Mode string

const (
	ModeFixed   Mode = "fixed"
	ModeSilence Mode = "silence"
)

const DefaultMaxInFlight = 4

type Config struct {
	SampleRate int
	Channels   int

	Mode            Mode
	SegmentDuration time.Duration // fixed mode
	SilenceGap      time.Duration // silence mode
	MaxSegment      time.Duration // silence mode

	MaxDuration time.Duration // 0 disables the time limit
	MaxSilence  time.Duration // 0 disables the silence limit
	StopPhrases []string

	Detector        string // "energy" or "vad"
	EnergyThreshold float64
	VADMode         int

	RingSeconds float64 // 0 picks a size that holds two segments
	HighPass    float64 // cutoff in Hz, 0 disables filtering
	MaxInFlight int

	Dir       string
	Base      string
	Format    encoder.Format // transient segment files
	SaveAudio bool           // write <base>.flac at the end

	Retry transcriber.RetryPolicy
	Empty transcriber.EmptyPolicy
}

func DefaultConfig() Config {
	return Config{
		SampleRate:      16000,
		Channels:        1,
		Mode:            ModeFixed,
		SegmentDuration: 5 * time.Second,
		SilenceGap:      800 * time.Millisecond,
		MaxSegment:      30 * time.Second,
		MaxDuration:     10 * time.Minute,
		MaxSilence:      30 * time.Second,
		StopPhrases:     []string{"stop recording"},
		Detector:        "energy",
		VADMode:         2,
		MaxInFlight:     DefaultMaxInFlight,
		Dir:             ".",
		Base:            "conversation",
		Format:          encoder.FormatWAV,
		SaveAudio:       true,
		Retry:           transcriber.DefaultRetry,
	}
}

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

func (c Config) Validate() error {
	if err := (audio.CaptureConfig{SampleRate: uint32(c.SampleRate), Channels: uint32(c.Channels)}).Validate(); err != nil {
		return configErr("%v", err)
	}
	if _, err := conversation.NewPhrases(c.StopPhrases); err != nil {
		return configErr("%v", err)
	}
	if c.MaxDuration < 0 {
		return configErr("max duration must not be negative")
	}
	if c.MaxSilence < 0 {
		return configErr("max silence must not be negative")
	}
	if c.RingSeconds < 0 {
		return configErr("ring size must not be negative")
	}

	switch c.Mode {
	case ModeFixed:
		if c.SegmentDuration <= 0 {
			return configErr("segment duration must be positive")
		}
		segSamples := int64(c.SampleRate) * int64(c.Channels) * int64(c.SegmentDuration) / int64(time.Second)
		if segSamples < 1 {
			return configErr("segment duration %v too short", c.SegmentDuration)
		}
		if int64(c.ringCapacity()) < segSamples {
			return configErr("ring buffer (%.1fs) is smaller than one segment (%v)", c.ringSeconds(), c.SegmentDuration)
		}
	case ModeSilence:
		if c.SilenceGap < segment.DefaultFrameDuration {
			return configErr("silence gap must be at least %v", segment.DefaultFrameDuration)
		}
		if c.MaxSegment < c.SilenceGap {
			return configErr("max segment %v shorter than silence gap %v", c.MaxSegment, c.SilenceGap)
		}
	default:
		return configErr("unknown segmentation mode %q (use fixed or silence)", c.Mode)
	}

	switch c.Detector {
	case "", "energy":
	case "vad":
		if _, err := segment.NewVADDetector(c.VADMode, c.SampleRate); err != nil {
			return configErr("%v", err)
		}
	default:
		return configErr("unknown detector %q (use energy or vad)", c.Detector)
	}

	if c.HighPass != 0 {
		if err := (dsp.HighPass{Cutoff: c.HighPass}).Validate(c.SampleRate); err != nil {
			return configErr("%v", err)
		}
	}
	if c.MaxInFlight < 0 {
		return configErr("max in-flight transcriptions must not be negative")
	}
	if c.Base == "" {
		return configErr("output base name is empty")
	}
	if c.Format != "" {
		if _, err := encoder.ParseFormat(string(c.Format)); err != nil {
			return configErr("%v", err)
		}
	}
	if c.Retry.MaxAttempts != 0 {
		if err := c.Retry.Validate(); err != nil {
			return configErr("%v", err)
		}
	}
	return nil
}

func (c Config) ringSeconds() float64 {
	if c.RingSeconds > 0 {
		return c.RingSeconds
	}
	secs := float64(audio.DefaultRingSeconds)
	if c.Mode == ModeFixed {
		secs = max(secs, 2*c.SegmentDuration.Seconds())
	}
	return secs
}

func (c Config) ringCapacity() int {
	return int(math.Ceil(float64(c.SampleRate*c.Channels) * c.ringSeconds()))
}

func (c Config) maxInFlight() int {
	if c.MaxInFlight <= 0 {
		return DefaultMaxInFlight
	}
	return c.MaxInFlight
}

// maxSamples caps admitted audio at MaxDuration on the audio clock.
func (c Config) maxSamples() uint64 {
	if c.MaxDuration <= 0 {
		return 0
	}
	return uint64(int64(c.SampleRate) * int64(c.Channels) * int64(c.MaxDuration) / int64(time.Second))
}

func (c Config) detector() (segment.Detector, error) {
	if c.Detector == "vad" {
		return segment.NewVADDetector(c.VADMode, c.SampleRate)
	}
	return segment.EnergyDetector{Threshold: c.EnergyThreshold}, nil
}
