package session

import "time"

// consecutive speech frames needed to reset the silence run
const vadDebounce = 3

type SilenceEvent int

const (
	SilenceNone      SilenceEvent = iota
	SilenceWarn                   // half of the limit reached
	SilenceWarnClear              // speech resumed after a warning
	SilenceLimit                  // limit reached, stop the session
)

// silenceMonitor tracks the current run of silence on the audio clock.
// The limit applies to one consecutive run, not to silence summed over the
// session: sustained speech resets it. Short speech blips below the
// debounce do not interrupt a run.
type silenceMonitor struct {
	limit  time.Duration
	warnAt time.Duration

	silentFor time.Duration
	speechRun int
	warned    bool
	fired     bool
}

func newSilenceMonitor(limit time.Duration) *silenceMonitor {
	return &silenceMonitor{limit: limit, warnAt: limit / 2}
}

func (m *silenceMonitor) Observe(speech bool, d time.Duration) SilenceEvent {
	if speech {
		m.speechRun++
	} else {
		m.speechRun = 0
	}

	if m.speechRun >= vadDebounce {
		m.silentFor = 0
		if m.warned {
			m.warned = false
			return SilenceWarnClear
		}
		return SilenceNone
	}

	m.silentFor += d
	if m.silentFor >= m.limit && !m.fired {
		m.fired = true
		return SilenceLimit
	}
	if m.silentFor >= m.warnAt && !m.warned && !m.fired {
		m.warned = true
		return SilenceWarn
	}
	return SilenceNone
}

func (m *silenceMonitor) SilentFor() time.Duration { return m.silentFor }
