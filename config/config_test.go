package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"scribe/encoder"
	"scribe/hotkey"
	"scribe/session"
	"scribe/transcriber"
)

const sample = `
[capture]
sample_rate = 48000
channels = 2
highpass = 80.0

[segment]
mode = "silence"
silence_gap = "600ms"
max_segment = "20s"
detector = "vad"
vad_mode = 3

[stop]
max_duration = "1h"
max_silence = "2m"
phrases = ["that's all", "stop recording"]
hotkey = "ctrl+alt+s"

[transcription]
provider = "openai"
language = "de"
format = "flac"
inflight = 2
empty = "retry"

[retry]
preset = "medium"
max_attempts = 7

[output]
dir = "/tmp/talks"
name = "standup"
save_audio = false
copy = true
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scribe.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func resolve(t *testing.T, args ...string) (Settings, error) {
	t.Helper()
	fs := flag.NewFlagSet("scribe", flag.ContinueOnError)
	f := RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return f.Resolve()
}

func TestDefaultsValidate(t *testing.T) {
	t.Setenv("SCRIBE_CONFIG", "")
	s, err := resolve(t)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Session.Validate(); err != nil {
		t.Fatalf("default settings invalid: %v", err)
	}
	if s.Session.SampleRate != 16000 || s.Session.Mode != session.ModeFixed {
		t.Errorf("unexpected defaults: %+v", s.Session)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("SCRIBE_CONFIG", "")
	s, err := resolve(t, "-config", writeFile(t, sample))
	if err != nil {
		t.Fatal(err)
	}
	c := s.Session

	if c.SampleRate != 48000 || c.Channels != 2 || c.HighPass != 80 {
		t.Errorf("capture = %d Hz %d ch hp %g", c.SampleRate, c.Channels, c.HighPass)
	}
	if c.Mode != session.ModeSilence || c.SilenceGap != 600*time.Millisecond || c.MaxSegment != 20*time.Second {
		t.Errorf("segment = %s gap %v max %v", c.Mode, c.SilenceGap, c.MaxSegment)
	}
	if c.Detector != "vad" || c.VADMode != 3 {
		t.Errorf("detector = %s mode %d", c.Detector, c.VADMode)
	}
	if c.MaxDuration != time.Hour || c.MaxSilence != 2*time.Minute {
		t.Errorf("stop limits = %v / %v", c.MaxDuration, c.MaxSilence)
	}
	if !slices.Equal(c.StopPhrases, []string{"that's all", "stop recording"}) {
		t.Errorf("phrases = %q", c.StopPhrases)
	}
	if s.Hotkey != (hotkey.Key{Mods: hotkey.ModCtrl | hotkey.ModAlt, Code: "s"}) {
		t.Errorf("hotkey = %s", s.Hotkey)
	}
	if s.Provider != "openai" || s.Language != "de" || c.Format != encoder.FormatFLAC {
		t.Errorf("transcription = %s %s %s", s.Provider, s.Language, c.Format)
	}
	if c.MaxInFlight != 2 || c.Empty != transcriber.EmptyRetryOnce {
		t.Errorf("inflight = %d empty = %v", c.MaxInFlight, c.Empty)
	}
	medium, _ := transcriber.RetryPreset("medium")
	if c.Retry.Initial != medium.Initial || c.Retry.Factor != medium.Factor || c.Retry.MaxAttempts != 7 {
		t.Errorf("retry = %+v", c.Retry)
	}
	if c.Dir != "/tmp/talks" || c.Base != "standup" || c.SaveAudio || !s.Copy {
		t.Errorf("output = %s/%s save=%v copy=%v", c.Dir, c.Base, c.SaveAudio, s.Copy)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("loaded settings invalid: %v", err)
	}
}

func TestFlagsOverrideFile(t *testing.T) {
	t.Setenv("SCRIBE_CONFIG", writeFile(t, sample))
	s, err := resolve(t,
		"-rate", "16000",
		"-stop", "over and out",
		"-stop", "goodbye",
		"-retry", "simple",
		"-save-audio=true",
	)
	if err != nil {
		t.Fatal(err)
	}
	c := s.Session

	if c.SampleRate != 16000 {
		t.Errorf("rate = %d, flag should win", c.SampleRate)
	}
	if c.Channels != 2 {
		t.Errorf("channels = %d, file value should survive", c.Channels)
	}
	if !slices.Equal(c.StopPhrases, []string{"over and out", "goodbye"}) {
		t.Errorf("phrases = %q", c.StopPhrases)
	}
	if c.Retry.MaxAttempts != 2 {
		t.Errorf("retry attempts = %d, want simple preset", c.Retry.MaxAttempts)
	}
	if !c.SaveAudio {
		t.Error("save-audio flag ignored")
	}
}

func TestHotkeyFlag(t *testing.T) {
	t.Setenv("SCRIBE_CONFIG", writeFile(t, sample))
	s, err := resolve(t, "-hotkey-key", "Shift+F9")
	if err != nil {
		t.Fatal(err)
	}
	if s.Hotkey != (hotkey.Key{Mods: hotkey.ModShift, Code: "f9"}) {
		t.Errorf("hotkey = %s, flag should win", s.Hotkey)
	}

	t.Setenv("SCRIBE_CONFIG", "")
	if s, err := resolve(t); err != nil || s.Hotkey != hotkey.DefaultKey() {
		t.Errorf("default hotkey = %s, err %v", s.Hotkey, err)
	}
	if _, err := resolve(t, "-hotkey-key", "ctrl+shift+pagedown"); !errors.Is(err, session.ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}

func TestUnsetFlagsKeepFileValues(t *testing.T) {
	t.Setenv("SCRIBE_CONFIG", "")
	s, err := resolve(t, "-config", writeFile(t, sample), "-lang", "fr")
	if err != nil {
		t.Fatal(err)
	}
	if s.Session.Mode != session.ModeSilence {
		t.Errorf("mode = %s; the -mode default must not override the file", s.Session.Mode)
	}
	if s.Language != "fr" {
		t.Errorf("lang = %q", s.Language)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "[capture]\nsample_rat = 8000\n"},
		{"bad duration", "[stop]\nmax_duration = \"ten minutes\"\n"},
		{"bad syntax", "[capture\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			if !errors.Is(err, session.ErrConfiguration) {
				t.Errorf("err = %v, want ErrConfiguration", err)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, session.ErrConfiguration) {
		t.Errorf("missing file: err = %v", err)
	}
}

func TestApplyRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		file File
	}{
		{"format", File{Transcription: Transcription{Format: "mp3"}}},
		{"empty policy", File{Transcription: Transcription{Empty: "sometimes"}}},
		{"retry preset", File{Retry: Retry{Preset: "aggressive"}}},
		{"hotkey", File{Stop: Stop{Hotkey: "space"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			if err := tt.file.Apply(&s); !errors.Is(err, session.ErrConfiguration) {
				t.Errorf("err = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestBadFlagValue(t *testing.T) {
	t.Setenv("SCRIBE_CONFIG", "")
	if _, err := resolve(t, "-format", "ogg"); !errors.Is(err, session.ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}
