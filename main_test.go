package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"scribe/conversation"
	"scribe/session"
)

func TestWrapText(t *testing.T) {
	tests := []struct {
		text  string
		width int
		want  []string
	}{
		{"", 10, []string{""}},
		{"short", 10, []string{"short"}},
		{"hello world again", 11, []string{"hello world", "again"}},
		{"abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
	}
	for _, tt := range tests {
		got := wrapText(tt.text, tt.width)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("wrapText(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
		}
	}
}

func TestConsoleEventsJoinsEntries(t *testing.T) {
	var out, status bytes.Buffer
	c := &consoleEvents{out: &out, status: &status}

	c.EntryAppended(conversation.Entry{Index: 0, Text: "hello"})
	c.EntryAppended(conversation.Entry{Index: 1})
	c.EntryAppended(conversation.Entry{Index: 2, Text: "there"})
	if got := out.String(); got != "hello there" {
		t.Errorf("out = %q", got)
	}

	c.SegmentFailed(3, errors.New("http 500"))
	c.Retry(4, 1, errors.New("http 429"), 1500*time.Millisecond)
	if s := status.String(); !strings.Contains(s, "segment 3 skipped") || !strings.Contains(s, "retrying in 1.5s") {
		t.Errorf("status = %q", s)
	}
}

type fakeSource struct {
	level   float64
	stopped int
}

func (f *fakeSource) Level() float64         { return f.level }
func (f *fakeSource) Elapsed() time.Duration { return 3 * time.Second }
func (f *fakeSource) Stop()                  { f.stopped++ }

func step(m tea.Model, msg tea.Msg) tea.Model {
	m, _ = m.Update(msg)
	return m
}

func TestTUIModel(t *testing.T) {
	src := &fakeSource{level: 0.05}
	var m tea.Model = tuiModel{src: src, header: "[fixed 5s | wav | fake]"}

	m = step(m, tea.WindowSizeMsg{Width: 60, Height: 20})
	m = step(m, StateMsg{State: session.Recording})
	m = step(m, tickMsg(time.Now()))
	m = step(m, SegmentMsg{Index: 1})
	m = step(m, EntryMsg{Entry: conversation.Entry{Index: 0, Text: "first words"}})
	m = step(m, RetryMsg{Index: 1, Attempt: 1, Delay: time.Second})

	view := m.View()
	for _, want := range []string{"REC 3.0s", "segments 2", "retries 1", "first words"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}

	m = step(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if src.stopped != 1 {
		t.Errorf("q pressed: Stop called %d times", src.stopped)
	}

	if _, cmd := m.Update(DoneMsg{}); cmd == nil {
		t.Fatal("DoneMsg returned no command")
	} else if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("DoneMsg did not quit")
	}
}
