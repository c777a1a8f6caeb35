package doctor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"scribe/artifact"
	"scribe/audio"
	"scribe/clipboard"
	"scribe/config"
	"scribe/hotkey"
	"scribe/segment"
	"scribe/shutdown"
	"scribe/transcriber"
)

const micSeconds = 3

// Options selects which checks apply to the configured recording.
type Options struct {
	Settings config.Settings
	Hotkey   bool // stop binding in use
}

type check struct {
	name string
	run  func(*bufio.Reader) bool
	skip bool
}

// Run executes interactive diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(opts Options) int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("scribe doctor - interactive system diagnostics")
	fmt.Println("==============================================")

	reader := bufio.NewReader(os.Stdin)
	checks := []check{
		{name: "Output directory", run: func(*bufio.Reader) bool { return checkOutputDir(opts.Settings) }},
		{name: "Stop hotkey", run: func(*bufio.Reader) bool { return checkHotkey(opts.Settings.Hotkey) }, skip: !opts.Hotkey},
		{name: "Microphone and transcription", run: func(r *bufio.Reader) bool { return checkMicAndTranscription(r, opts.Settings) }},
		{name: "Clipboard", run: func(*bufio.Reader) bool { return checkClipboard() }, skip: !opts.Settings.Copy},
	}

	allPass := true
	for i, c := range checks {
		fmt.Println()
		fmt.Printf("[%d/%d] %s\n", i+1, len(checks), c.name)
		if c.skip {
			fmt.Println("  SKIP: not enabled")
			continue
		}
		if !c.run(reader) {
			allPass = false
			break
		}
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func setupInterruptHandler() {
	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		println("\nInterrupted")
		os.Exit(1)
	}()
}

func checkOutputDir(s config.Settings) bool {
	m := artifact.New(s.Session.Dir, s.Session.Base)
	stale, err := m.Prepare()
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	if stale > 0 {
		fmt.Printf("  removed %d stale segment files\n", stale)
	}

	scratch := filepath.Join(s.Session.Dir, ".scribe-doctor")
	if err := os.WriteFile(scratch, []byte("ok"), 0644); err != nil {
		fmt.Printf("  FAIL: %s is not writable: %v\n", s.Session.Dir, err)
		return false
	}
	os.Remove(scratch)

	abs, _ := filepath.Abs(m.TranscriptPath())
	fmt.Printf("  PASS: transcript will be written to %s\n", abs)
	return true
}

func checkHotkey(key hotkey.Key) bool {
	status, err := hotkey.Diagnose(key)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	fmt.Printf("  %s\n", status)
	fmt.Printf("Press and release %s...\n", key)

	hk := hotkey.New(key)
	if err := hk.Register(); err != nil {
		fmt.Printf("  FAIL: could not register hotkey: %v\n", err)
		return false
	}
	defer hk.Unregister()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = hotkey.WaitTap(ctx, hk)
	// Reset terminal after hotkey - it may leave terminal in raw mode
	resetTerminal()
	if err != nil {
		fmt.Println("  FAIL: timeout waiting for hotkey")
		return false
	}
	fmt.Println("  PASS: hotkey detected")
	return true
}

func checkMicAndTranscription(reader *bufio.Reader, s config.Settings) bool {
	ctx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
		return false
	}
	defer ctx.Close()

	device, err := audio.FindDevice(ctx, s.Device)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	if device == nil {
		if device, err = audio.SelectDevice(ctx); err != nil {
			fmt.Printf("  FAIL: %v\n", err)
			return false
		}
	}
	name := "system default"
	if device != nil {
		name = device.Name
	}
	fmt.Printf("Using device: %s\n", name)
	if device != nil && audio.IsBluetooth(device.Name) {
		fmt.Println("  Warning: Bluetooth headsets record narrow-band audio in call mode")
	}

	trans, err := transcriber.FromEnv(s.Provider, s.Model, s.Language)
	if err != nil {
		trans, err = askTranscriber(reader, s)
		if err != nil {
			fmt.Printf("  FAIL: %v\n", err)
			return false
		}
	}

	fmt.Println()
	fmt.Printf("Press Enter and speak for %d seconds...", micSeconds)
	reader.ReadString('\n')

	seg, err := recordSegment(ctx, device, s)
	if err != nil {
		fmt.Printf("  FAIL: recording error: %v\n", err)
		return false
	}
	if len(seg.Samples) == 0 {
		fmt.Println("  FAIL: no audio captured")
		return false
	}
	fmt.Printf("  Recorded %.1fs (level %.3f), transcribing with %s...\n",
		seg.Duration().Seconds(), audio.RMS(seg.Samples), trans.Name())

	client := &transcriber.Client{
		Transcriber: trans,
		Artifacts:   artifact.New(os.TempDir(), "scribe-doctor"),
		Format:      s.Session.Format,
		Retry:       s.Session.Retry,
		OnRetry: func(_, attempt int, err error, delay time.Duration) {
			fmt.Printf("  attempt %d failed (%v), retrying in %v\n", attempt, err, delay)
		},
	}
	out, err := client.Transcribe(context.Background(), seg)
	if err != nil {
		fmt.Printf("  FAIL: transcription error: %v\n", err)
		return false
	}

	text := out.Text
	if text == "" {
		text = "(no speech detected)"
	}
	fmt.Printf("\n  Transcribed text: %s\n\n", text)

	fmt.Print("Is this correct? [y/n]: ")
	confirm, _ := reader.ReadString('\n')
	confirm = strings.TrimSpace(strings.ToLower(confirm))

	if confirm == "y" || confirm == "yes" {
		fmt.Println("  PASS: transcription verified by user")
		return true
	}

	fmt.Println("  FAIL: transcription not confirmed")
	return false
}

func askTranscriber(reader *bufio.Reader, s config.Settings) (transcriber.Transcriber, error) {
	fmt.Println()
	fmt.Println("No API key in the environment. Select transcription provider:")
	fmt.Println("  1. Groq")
	fmt.Println("  2. OpenAI")
	fmt.Println("  3. Deepgram")
	fmt.Print("Choice [1/2/3]: ")

	choice, _ := reader.ReadString('\n')
	var provider string
	switch strings.TrimSpace(choice) {
	case "1", "":
		provider = "groq"
	case "2":
		provider = "openai"
	case "3":
		provider = "deepgram"
	default:
		return nil, fmt.Errorf("invalid choice %q", strings.TrimSpace(choice))
	}

	fmt.Printf("Enter %s API key: ", provider)
	apiKey, _ := reader.ReadString('\n')
	return transcriber.New(provider, strings.TrimSpace(apiKey), s.Model, s.Language)
}

// recordSegment captures a few seconds through the same stream the
// recorder uses and returns them as one segment.
func recordSegment(ctx audio.Context, device *audio.DeviceInfo, s config.Settings) (segment.Segment, error) {
	rate, channels := s.Session.SampleRate, s.Session.Channels
	capture, err := ctx.NewCapture(device, audio.CaptureConfig{SampleRate: uint32(rate), Channels: uint32(channels)})
	if err != nil {
		return segment.Segment{}, err
	}
	stream, err := audio.OpenStream(capture, audio.StreamConfig{
		SampleRate:  rate,
		Channels:    channels,
		RingSeconds: micSeconds + 1,
		MaxSamples:  uint64(rate * channels * micSeconds),
	})
	if err != nil {
		return segment.Segment{}, err
	}
	defer stream.Close()

	fmt.Print("  Recording")
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	timeout := time.After(micSeconds*time.Second + 2*time.Second)
wait:
	for {
		select {
		case <-stream.LimitReached():
			break wait
		case <-timeout:
			break wait
		case <-ticker.C:
			fmt.Print(".")
		}
	}
	stream.Halt()
	fmt.Println(" done")

	samples, _ := stream.Ring().Read(stream.Ring().Len())
	return segment.Segment{
		Samples:    samples,
		SampleRate: rate,
		Channels:   channels,
		Speech:     true,
	}, nil
}

func checkClipboard() bool {
	if err := clipboard.Available(); err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}

	prev, _ := clipboard.Read()
	const scratch = "scribe-doctor-test"
	if _, err := clipboard.Copy(scratch); err != nil {
		fmt.Printf("  FAIL: clipboard copy failed: %v\n", err)
		return false
	}
	got, err := clipboard.Read()
	if prev != "" {
		clipboard.Copy(prev)
	}
	if err != nil {
		fmt.Printf("  FAIL: could not read clipboard back: %v\n", err)
		return false
	}
	if got != scratch {
		fmt.Printf("  FAIL: clipboard returned %q, want %q\n", got, scratch)
		return false
	}
	fmt.Println("  PASS: clipboard copy verified")
	return true
}
