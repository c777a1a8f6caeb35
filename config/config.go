// Package config resolves recording settings from defaults, an optional
// TOML file and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"scribe/encoder"
	"scribe/hotkey"
	"scribe/session"
	"scribe/transcriber"
)

// Settings is everything a recording needs besides API keys, which only
// come from the environment.
type Settings struct {
	Session  session.Config
	Provider string // empty picks the first provider with a key set
	Model    string
	Language string
	Device   string
	Copy     bool
	Hotkey   hotkey.Key // chord for the stop binding, when enabled
}

func Default() Settings {
	return Settings{Session: session.DefaultConfig(), Hotkey: hotkey.DefaultKey()}
}

// File mirrors the TOML layout. Unset keys leave the current value alone.
type File struct {
	Capture       Capture       `toml:"capture"`
	Segment       Segment       `toml:"segment"`
	Stop          Stop          `toml:"stop"`
	Transcription Transcription `toml:"transcription"`
	Retry         Retry         `toml:"retry"`
	Output        Output        `toml:"output"`
}

type Capture struct {
	SampleRate  *int     `toml:"sample_rate"`
	Channels    *int     `toml:"channels"`
	Device      string   `toml:"device"`
	RingSeconds *float64 `toml:"ring_seconds"`
	HighPass    *float64 `toml:"highpass"`
}

type Segment struct {
	Mode            string    `toml:"mode"`
	Duration        *Duration `toml:"duration"`
	SilenceGap      *Duration `toml:"silence_gap"`
	MaxSegment      *Duration `toml:"max_segment"`
	Detector        string    `toml:"detector"`
	EnergyThreshold *float64  `toml:"energy_threshold"`
	VADMode         *int      `toml:"vad_mode"`
}

type Stop struct {
	MaxDuration *Duration `toml:"max_duration"`
	MaxSilence  *Duration `toml:"max_silence"`
	Phrases     []string  `toml:"phrases"`
	Hotkey      string    `toml:"hotkey"`
}

type Transcription struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	Language string `toml:"language"`
	Format   string `toml:"format"`
	InFlight *int   `toml:"inflight"`
	Empty    string `toml:"empty"`
}

type Retry struct {
	Preset      string    `toml:"preset"`
	Initial     *Duration `toml:"initial"`
	Factor      *float64  `toml:"factor"`
	MaxDelay    *Duration `toml:"max_delay"`
	MaxAttempts *int      `toml:"max_attempts"`
}

type Output struct {
	Dir       string `toml:"dir"`
	Name      string `toml:"name"`
	SaveAudio *bool  `toml:"save_audio"`
	Copy      *bool  `toml:"copy"`
}

// Duration wraps time.Duration for TOML parsing
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", session.ErrConfiguration, fmt.Sprintf(format, args...))
}

// Load parses a TOML file. Unknown keys are an error so typos do not pass
// silently.
func Load(path string) (File, error) {
	path = os.ExpandEnv(path)

	var f File
	md, err := toml.DecodeFile(path, &f)
	if errors.Is(err, os.ErrNotExist) {
		return f, invalid("config file not found: %s", path)
	}
	if err != nil {
		return f, invalid("parsing %s: %v", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return f, invalid("%s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return f, nil
}

// Apply overlays the file onto s.
func (f File) Apply(s *Settings) error {
	c := &s.Session

	setInt(&c.SampleRate, f.Capture.SampleRate)
	setInt(&c.Channels, f.Capture.Channels)
	setString(&s.Device, f.Capture.Device)
	setFloat(&c.RingSeconds, f.Capture.RingSeconds)
	setFloat(&c.HighPass, f.Capture.HighPass)

	if f.Segment.Mode != "" {
		c.Mode = session.Mode(f.Segment.Mode)
	}
	setDuration(&c.SegmentDuration, f.Segment.Duration)
	setDuration(&c.SilenceGap, f.Segment.SilenceGap)
	setDuration(&c.MaxSegment, f.Segment.MaxSegment)
	setString(&c.Detector, f.Segment.Detector)
	setFloat(&c.EnergyThreshold, f.Segment.EnergyThreshold)
	setInt(&c.VADMode, f.Segment.VADMode)

	setDuration(&c.MaxDuration, f.Stop.MaxDuration)
	setDuration(&c.MaxSilence, f.Stop.MaxSilence)
	if f.Stop.Phrases != nil {
		c.StopPhrases = f.Stop.Phrases
	}
	if f.Stop.Hotkey != "" {
		k, err := hotkey.ParseKey(f.Stop.Hotkey)
		if err != nil {
			return invalid("%v", err)
		}
		s.Hotkey = k
	}

	setString(&s.Provider, f.Transcription.Provider)
	setString(&s.Model, f.Transcription.Model)
	setString(&s.Language, f.Transcription.Language)
	if f.Transcription.Format != "" {
		format, err := encoder.ParseFormat(f.Transcription.Format)
		if err != nil {
			return invalid("%v", err)
		}
		c.Format = format
	}
	setInt(&c.MaxInFlight, f.Transcription.InFlight)
	if f.Transcription.Empty != "" {
		p, err := transcriber.ParseEmptyPolicy(f.Transcription.Empty)
		if err != nil {
			return invalid("%v", err)
		}
		c.Empty = p
	}

	if f.Retry.Preset != "" {
		p, err := transcriber.RetryPreset(f.Retry.Preset)
		if err != nil {
			return invalid("%v", err)
		}
		c.Retry = p
	}
	setDuration(&c.Retry.Initial, f.Retry.Initial)
	setFloat(&c.Retry.Factor, f.Retry.Factor)
	setDuration(&c.Retry.MaxDelay, f.Retry.MaxDelay)
	setInt(&c.Retry.MaxAttempts, f.Retry.MaxAttempts)

	setString(&c.Dir, f.Output.Dir)
	setString(&c.Base, f.Output.Name)
	if f.Output.SaveAudio != nil {
		c.SaveAudio = *f.Output.SaveAudio
	}
	if f.Output.Copy != nil {
		s.Copy = *f.Output.Copy
	}
	return nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *Duration) {
	if v != nil {
		*dst = v.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
