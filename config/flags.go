package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"scribe/encoder"
	"scribe/hotkey"
	"scribe/session"
	"scribe/transcriber"
)

// Flags are the command-line overrides. Only flags given explicitly
// replace file or default values.
type Flags struct {
	fs *flag.FlagSet

	Config string

	out, name       string
	rate, channels  int
	segment         time.Duration
	maxDuration     time.Duration
	maxSilence      time.Duration
	stop            stringList
	hotkeyKey       string
	mode            string
	gap, maxSegment time.Duration
	highpass        float64
	ring            float64
	detector        string
	format          string
	provider, model string
	lang            string
	inflight        int
	retry           string
	empty           string
	device          string
	copy, saveAudio bool
}

type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ", ") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// RegisterFlags defines the settings flags on fs. Help text defaults come
// from Default().
func RegisterFlags(fs *flag.FlagSet) *Flags {
	d := Default()
	c := d.Session
	f := &Flags{fs: fs}

	fs.StringVar(&f.Config, "config", "", "TOML settings file (default: $SCRIBE_CONFIG)")
	fs.StringVar(&f.out, "out", c.Dir, "Output directory for the transcript and audio")
	fs.StringVar(&f.name, "name", c.Base, "Base name of the output files")
	fs.IntVar(&f.rate, "rate", c.SampleRate, "Capture sample rate in Hz")
	fs.IntVar(&f.channels, "channels", c.Channels, "Capture channels (1 or 2)")
	fs.DurationVar(&f.segment, "segment", c.SegmentDuration, "Segment length in fixed mode")
	fs.DurationVar(&f.maxDuration, "max", c.MaxDuration, "Stop after this much audio (0 = no limit)")
	fs.DurationVar(&f.maxSilence, "max-silence", c.MaxSilence, "Stop after this much continuous silence (0 = never)")
	fs.Var(&f.stop, "stop", "Stop phrase, repeatable (default \"stop recording\")")
	fs.StringVar(&f.hotkeyKey, "hotkey-key", strings.ToLower(d.Hotkey.String()), "Chord for the stop hotkey, e.g. ctrl+alt+s")
	fs.StringVar(&f.mode, "mode", string(c.Mode), "Segmentation: fixed or silence")
	fs.DurationVar(&f.gap, "gap", c.SilenceGap, "Silence that ends a segment in silence mode")
	fs.DurationVar(&f.maxSegment, "max-segment", c.MaxSegment, "Longest segment in silence mode")
	fs.Float64Var(&f.highpass, "highpass", c.HighPass, "High-pass cutoff in Hz (0 = off)")
	fs.Float64Var(&f.ring, "ring", c.RingSeconds, "Ring buffer size in seconds (0 = auto)")
	fs.StringVar(&f.detector, "detector", c.Detector, "Speech detector: energy or vad")
	fs.StringVar(&f.format, "format", string(c.Format), "Segment upload format: wav or flac")
	fs.StringVar(&f.provider, "provider", "", "Transcription provider: groq, openai or deepgram")
	fs.StringVar(&f.model, "model", "", "Provider model (default: provider's default)")
	fs.StringVar(&f.lang, "lang", "", "Language code (empty = auto-detect)")
	fs.IntVar(&f.inflight, "inflight", c.MaxInFlight, "Concurrent transcriptions")
	fs.StringVar(&f.retry, "retry", "default", "Retry preset: default, simple, medium, advanced or verbose")
	fs.StringVar(&f.empty, "empty", c.Empty.String(), "Empty provider reply: accept or retry")
	fs.StringVar(&f.device, "device", "", "Use named microphone device")
	fs.BoolVar(&f.copy, "copy", false, "Copy the final transcript to the clipboard")
	fs.BoolVar(&f.saveAudio, "save-audio", c.SaveAudio, "Write the full recording as FLAC")
	return f
}

// Resolve builds the settings: defaults, then the config file, then every
// flag that was set. Call after fs.Parse.
func (f *Flags) Resolve() (Settings, error) {
	s := Default()

	path := f.Config
	if path == "" {
		path = os.Getenv("SCRIBE_CONFIG")
	}
	if path != "" {
		file, err := Load(path)
		if err != nil {
			return s, err
		}
		if err := file.Apply(&s); err != nil {
			return s, err
		}
	}

	var err error
	f.fs.Visit(func(fl *flag.Flag) {
		if err == nil {
			err = f.apply(fl.Name, &s)
		}
	})
	return s, err
}

func (f *Flags) apply(name string, s *Settings) error {
	c := &s.Session
	switch name {
	case "out":
		c.Dir = f.out
	case "name":
		c.Base = f.name
	case "rate":
		c.SampleRate = f.rate
	case "channels":
		c.Channels = f.channels
	case "segment":
		c.SegmentDuration = f.segment
	case "max":
		c.MaxDuration = f.maxDuration
	case "max-silence":
		c.MaxSilence = f.maxSilence
	case "stop":
		c.StopPhrases = append([]string(nil), f.stop...)
	case "hotkey-key":
		k, err := hotkey.ParseKey(f.hotkeyKey)
		if err != nil {
			return invalid("%v", err)
		}
		s.Hotkey = k
	case "mode":
		c.Mode = session.Mode(f.mode)
	case "gap":
		c.SilenceGap = f.gap
	case "max-segment":
		c.MaxSegment = f.maxSegment
	case "highpass":
		c.HighPass = f.highpass
	case "ring":
		c.RingSeconds = f.ring
	case "detector":
		c.Detector = f.detector
	case "format":
		format, err := encoder.ParseFormat(f.format)
		if err != nil {
			return invalid("%v", err)
		}
		c.Format = format
	case "provider":
		s.Provider = f.provider
	case "model":
		s.Model = f.model
	case "lang":
		s.Language = f.lang
	case "inflight":
		c.MaxInFlight = f.inflight
	case "retry":
		p, err := transcriber.RetryPreset(f.retry)
		if err != nil {
			return invalid("%v", err)
		}
		c.Retry = p
	case "empty":
		p, err := transcriber.ParseEmptyPolicy(f.empty)
		if err != nil {
			return invalid("%v", err)
		}
		c.Empty = p
	case "device":
		s.Device = f.device
	case "copy":
		s.Copy = f.copy
	case "save-audio":
		c.SaveAudio = f.saveAudio
	}
	return nil
}
