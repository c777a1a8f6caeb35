package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"scribe/audio"
	"scribe/beep"
	"scribe/config"
	"scribe/encoder"
	"scribe/log"
	"scribe/session"
	"scribe/transcriber"
)

// runTestMode records from a WAV file instead of the microphone. Stdin
// drives it line by line:
//
//	STOP | QUIT        fire the external stop signal
//	WAIT_AUDIO_DONE    block until the whole file has been delivered
//	SLEEP <ms>         pause the driver
//
// SCRIBE_TEST_SPEED sets the replay speed (1 = realtime). SCRIBE_FAKE_TEXT
// replaces the provider: one text answers every segment, a "|" separated
// list answers segment by segment.
func runTestMode(wavPath string, settings config.Settings) int {
	beep.Disable()

	pcm, rate, channels, err := encoder.ReadWAV(wavPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		return 1
	}
	c := settings.Session
	c.SampleRate = rate
	c.Channels = channels

	speed := 1.0
	if v := os.Getenv("SCRIBE_TEST_SPEED"); v != "" {
		if speed, err = strconv.ParseFloat(v, 64); err != nil || speed <= 0 {
			fmt.Fprintf(os.Stderr, "Error: bad SCRIBE_TEST_SPEED %q\n", v)
			return 1
		}
	}

	tr, err := testTranscriber(settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fakeCtx := audio.NewFakeContext(pcm, speed)
	capture, err := fakeCtx.NewCapture(nil, audio.CaptureConfig{
		SampleRate: uint32(rate), Channels: uint32(channels),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating capture: %v\n", err)
		return 1
	}
	fakeCapture := capture.(*audio.FakeCapture)

	stop := make(chan struct{})
	var stopOnce sync.Once
	fire := func() { stopOnce.Do(func() { close(stop) }) }

	sess := session.New(c, capture, tr)
	defer sess.Close()
	sess.Signals = []session.StopSignal{session.ChanSignal{C: stop}}
	sess.Events = &consoleEvents{out: os.Stdout, status: os.Stderr}

	// Stdin driver in background
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			cmd := strings.TrimSpace(scanner.Text())
			switch cmd {
			case "STOP", "QUIT":
				fire()
			case "WAIT_AUDIO_DONE":
				<-fakeCapture.AudioDone()
			default:
				if strings.HasPrefix(cmd, "SLEEP ") {
					if ms, err := strconv.Atoi(cmd[6:]); err == nil {
						time.Sleep(time.Duration(ms) * time.Millisecond)
					}
				} else if cmd != "" {
					log.Warnf("test mode: unknown command %q", cmd)
				}
			}
		}
	}()

	res, err := sess.Run(context.Background())
	fmt.Fprintln(os.Stdout)
	return finishSession(res, err, settings.Copy)
}

func testTranscriber(settings config.Settings) (transcriber.Transcriber, error) {
	text, ok := os.LookupEnv("SCRIBE_FAKE_TEXT")
	if !ok {
		return transcriber.FromEnv(settings.Provider, settings.Model, settings.Language)
	}
	parts := strings.Split(text, "|")
	if len(parts) == 1 {
		return transcriber.NewFake(text), nil
	}
	return transcriber.NewFake("").Texts(parts...), nil
}
