package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"scribe/beep"
	"scribe/conversation"
	"scribe/segment"
	"scribe/session"
)

// consoleEvents echoes the transcript to out as entries arrive and
// progress notes to status.
type consoleEvents struct {
	session.NopEvents
	out    io.Writer
	status io.Writer

	mu    sync.Mutex
	wrote bool
}

func (c *consoleEvents) StateChanged(_, to session.State) {
	switch to {
	case session.Recording:
		fmt.Fprintln(c.status, "recording... (Ctrl+C to stop)")
	case session.Stopping:
		fmt.Fprintln(c.status, "\nfinishing transcription...")
	}
}

func (c *consoleEvents) EntryAppended(e conversation.Entry) {
	if e.Text == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wrote {
		fmt.Fprint(c.out, " ")
	}
	fmt.Fprint(c.out, e.Text)
	c.wrote = true
}

func (c *consoleEvents) Retry(index, attempt int, err error, delay time.Duration) {
	fmt.Fprintf(c.status, "\nsegment %d: attempt %d failed (%v), retrying in %v\n", index, attempt, err, delay.Round(time.Millisecond))
}

func (c *consoleEvents) SegmentFailed(index int, err error) {
	fmt.Fprintf(c.status, "\nsegment %d skipped: %v\n", index, err)
}

func (c *consoleEvents) SilenceWarning(silentFor time.Duration) {
	fmt.Fprintf(c.status, "\nno speech for %v\n", silentFor.Round(time.Second))
}

// tuiEvents forwards session progress into the Bubble Tea program.
type tuiEvents struct {
	p *tea.Program
}

func (e tuiEvents) StateChanged(_, to session.State) { e.p.Send(StateMsg{State: to}) }

func (e tuiEvents) SegmentCaptured(seg segment.Segment) {
	e.p.Send(SegmentMsg{Index: seg.Index, Partial: seg.Partial, Speech: seg.Speech})
}

func (e tuiEvents) EntryAppended(en conversation.Entry) { e.p.Send(EntryMsg{Entry: en}) }

func (e tuiEvents) Retry(index, attempt int, err error, delay time.Duration) {
	e.p.Send(RetryMsg{Index: index, Attempt: attempt, Err: err, Delay: delay})
}

func (e tuiEvents) SegmentFailed(index int, err error) {
	e.p.Send(FailedMsg{Index: index, Err: err})
}

func (e tuiEvents) SilenceWarning(silentFor time.Duration) {
	e.p.Send(SilenceWarningMsg{SilentFor: silentFor})
}

// cueEvents plays audible cues and passes everything on to the wrapped sink.
type cueEvents struct {
	session.Events
}

func (c cueEvents) StateChanged(from, to session.State) {
	switch to {
	case session.Recording:
		beep.Play(beep.Start)
	case session.Stopping:
		beep.Play(beep.Stop)
	}
	c.Events.StateChanged(from, to)
}

func (c cueEvents) SilenceWarning(silentFor time.Duration) {
	beep.Play(beep.Warn)
	c.Events.SilenceWarning(silentFor)
}
