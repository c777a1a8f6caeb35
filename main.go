package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"golang.org/x/term"

	"scribe/audio"
	"scribe/beep"
	"scribe/clipboard"
	"scribe/config"
	"scribe/doctor"
	"scribe/hotkey"
	"scribe/log"
	"scribe/metrics"
	"scribe/session"
	"scribe/shutdown"
	"scribe/transcriber"
)

var version = "dev"

// initCrashLog sends fatal runtime output to crash_log.txt in the log
// directory. It runs before flag parsing so it only honors SCRIBE_LOG_PATH.
func initCrashLog() {
	dir, err := log.ResolveDir("")
	if err != nil {
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return
	}
	crashFile, err := os.OpenFile(filepath.Join(dir, "crash_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

func modeLineText(s config.Settings, tr transcriber.Transcriber) string {
	c := s.Session
	mode := fmt.Sprintf("fixed %v", c.SegmentDuration)
	if c.Mode == session.ModeSilence {
		mode = fmt.Sprintf("silence %v gap", c.SilenceGap)
	}
	provider := tr.Name()
	if s.Language != "" {
		provider += " (" + s.Language + ")"
	}
	return fmt.Sprintf("[%s | %s | %s]", mode, c.Format, provider)
}

func deviceLineText(dev *audio.DeviceInfo) string {
	if dev == nil {
		return "system default"
	}
	if audio.IsBluetooth(dev.Name) {
		return dev.Name + " (BT!)"
	}
	return dev.Name
}

func run() int {
	settingsFlags := config.RegisterFlags(flag.CommandLine)
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	hotkeyFlag := flag.Bool("hotkey", false, "Stop recording with the global hotkey (see -hotkey-key)")
	tuiFlag := flag.Bool("tui", true, "Run with terminal UI")
	metricsFlag := flag.String("metrics", "", "Serve Prometheus metrics on this address (e.g., :9090)")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	crashFlag := flag.Bool("crash", false, "Trigger synthetic panic for testing crash logging")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	profileFlag := flag.String("profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	testFlag := flag.Bool("test", false, "Test mode (headless, stdin-driven)")
	beepFlag := flag.Bool("beep", true, "Play a cue when recording starts, stops or goes quiet")
	flag.Parse()

	// Resolve log directory early
	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)

	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	if *versionFlag {
		fmt.Printf("scribe %s\n", version)
		return 0
	}

	settings, err := settingsFlags.Resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if err := settings.Session.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	if *doctorFlag {
		return doctor.Run(doctor.Options{Settings: settings, Hotkey: *hotkeyFlag})
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	if !*beepFlag {
		beep.Disable()
	}

	if *testFlag {
		args := flag.Args()
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: scribe -test <wav-file>")
			return 1
		}
		return runTestMode(args[0], settings)
	}

	tr, err := transcriber.FromEnv(settings.Provider, settings.Model, settings.Language)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	transcriber.Warm(tr)

	ctx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio context: %v\n", err)
		return 1
	}
	defer ctx.Close()

	var selectedDevice *audio.DeviceInfo
	if settings.Device != "" {
		selectedDevice, err = audio.FindDevice(ctx, settings.Device)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	} else if *setupFlag {
		selectedDevice, err = audio.SelectDevice(ctx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: device selection failed: %v\n", err)
			fmt.Fprintln(os.Stderr, "Falling back to default device")
			selectedDevice = nil
		}
	}

	c := settings.Session
	capture, err := ctx.NewCapture(selectedDevice, audio.CaptureConfig{
		SampleRate: uint32(c.SampleRate),
		Channels:   uint32(c.Channels),
	})
	if err != nil {
		log.Errorf("capture device init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing capture device: %v\n", err)
		return 1
	}

	sess := session.New(c, capture, tr)
	defer sess.Close()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *metricsFlag != "" {
		sess.Metrics = metrics.New()
		go func() {
			if err := sess.Metrics.Serve(runCtx, *metricsFlag); err != nil {
				log.Warnf("metrics server: %v", err)
				fmt.Fprintf(os.Stderr, "Warning: metrics server: %v\n", err)
			}
		}()
	}

	sess.Signals = append(sess.Signals, shutdown.NewSignal())
	if *hotkeyFlag {
		sess.Signals = append(sess.Signals, hotkey.NewBinding(hotkey.New(settings.Hotkey)))
	}

	var res session.Result
	if *tuiFlag && term.IsTerminal(int(os.Stdout.Fd())) {
		res, err = runWithTUI(runCtx, sess, modeLineText(settings, tr), deviceLineText(selectedDevice))
	} else {
		fmt.Fprintf(os.Stderr, "%s mic: %s\n", modeLineText(settings, tr), deviceLineText(selectedDevice))
		sess.Events = cueEvents{&consoleEvents{out: os.Stdout, status: os.Stderr}}
		res, err = sess.Run(runCtx)
		fmt.Fprintln(os.Stdout)
	}

	return finishSession(res, err, settings.Copy)
}

func runWithTUI(ctx context.Context, sess *session.Session, header, device string) (session.Result, error) {
	p := NewTUIProgram(sess, header, device)
	sess.Events = cueEvents{tuiEvents{p: p}}

	type done struct {
		res session.Result
		err error
	}
	finished := make(chan done, 1)
	go func() {
		res, err := sess.Run(ctx)
		finished <- done{res, err}
		p.Send(DoneMsg{})
	}()

	if _, err := p.Run(); err != nil {
		log.Errorf("TUI error: %v", err)
		sess.Stop()
	}
	d := <-finished
	return d.res, d.err
}

// finishSession prints the summary and returns the process exit code.
func finishSession(res session.Result, err error, copyText bool) int {
	if res.Transcript != "" && res.TranscriptPath == "" {
		// Final write failed; the text is only in memory now.
		fmt.Println(res.Transcript)
	}

	fmt.Fprintf(os.Stderr, "stopped: %s", res.Reason)
	if res.Phrase != "" {
		fmt.Fprintf(os.Stderr, " (%q)", res.Phrase)
	}
	fmt.Fprintf(os.Stderr, " after %v, %d segments", res.Elapsed.Round(100*time.Millisecond), res.Segments)
	if res.Failed > 0 {
		fmt.Fprintf(os.Stderr, ", %d failed", res.Failed)
	}
	if res.Retries > 0 {
		fmt.Fprintf(os.Stderr, ", %d retries", res.Retries)
	}
	if res.Dropped > 0 {
		fmt.Fprintf(os.Stderr, ", %d samples dropped", res.Dropped)
	}
	fmt.Fprintln(os.Stderr)
	if res.TranscriptPath != "" {
		fmt.Fprintf(os.Stderr, "transcript: %s\n", res.TranscriptPath)
	}
	if res.AudioPath != "" {
		fmt.Fprintf(os.Stderr, "audio: %s\n", res.AudioPath)
	}

	if copyText {
		if ok, cerr := clipboard.Copy(res.Transcript); cerr != nil {
			log.Warnf("clipboard copy failed: %v", cerr)
			fmt.Fprintf(os.Stderr, "Warning: clipboard copy failed: %v\n", cerr)
		} else if ok {
			fmt.Fprintln(os.Stderr, "copied to clipboard")
		}
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, session.ErrConfiguration):
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	default:
		log.Errorf("session error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
}
