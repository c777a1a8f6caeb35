package session

import (
	"testing"
	"time"
)

func TestSilenceMonitorCountsConsecutiveRun(t *testing.T) {
	const frame = 100 * time.Millisecond
	m := newSilenceMonitor(time.Second)

	quiet := func(n int) (events []SilenceEvent) {
		for i := 0; i < n; i++ {
			if ev := m.Observe(false, frame); ev != SilenceNone {
				events = append(events, ev)
			}
		}
		return events
	}

	if ev := quiet(5); len(ev) != 1 || ev[0] != SilenceWarn {
		t.Fatalf("500ms of silence: events %v, want one warning", ev)
	}

	// A blip shorter than the debounce keeps the run going.
	m.Observe(true, frame)
	if m.SilentFor() != 600*time.Millisecond {
		t.Errorf("after blip silentFor = %v, want 600ms", m.SilentFor())
	}

	// Sustained speech resets the run.
	var cleared bool
	for i := 0; i < vadDebounce; i++ {
		if m.Observe(true, frame) == SilenceWarnClear {
			cleared = true
		}
	}
	if !cleared || m.SilentFor() != 0 {
		t.Fatalf("speech: cleared=%v silentFor=%v", cleared, m.SilentFor())
	}

	if ev := quiet(9); len(ev) != 1 || ev[0] != SilenceWarn {
		t.Errorf("new run of 900ms: events %v, want only a warning", ev)
	}
	if ev := quiet(1); len(ev) != 1 || ev[0] != SilenceLimit {
		t.Errorf("run reached 1s: events %v, want limit", ev)
	}
}
