// Package conversation accumulates transcribed segments into one ordered,
// append-only transcript.
package conversation

import (
	"strings"
	"sync"
	"time"
)

type Entry struct {
	Index      int
	Text       string
	CapturedAt time.Time
	Failed     bool // transcription gave up; Text is empty
}

// Delivery is what one Deliver call appended.
type Delivery struct {
	Appended []Entry
	// Phrase is set when a stop phrase matched after one of the appended
	// entries. Entries after the match are discarded and the state sealed.
	Phrase  string
	Matched bool
}

// State holds entries in index order. Entries may be delivered in any
// order; each one waits until every lower index has been appended.
type State struct {
	phrases Phrases

	mu      sync.Mutex
	next    int
	entries []Entry
	pending map[int]Entry
	sealed  bool
	text    strings.Builder
	lower   strings.Builder
}

// New returns an empty state. phrases may be nil.
func New(phrases Phrases) *State {
	return &State{phrases: phrases, pending: make(map[int]Entry)}
}

// Deliver hands over the entry for one segment index. Duplicates and
// deliveries after Seal are ignored.
func (s *State) Deliver(e Entry) Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()

	var d Delivery
	if s.sealed || e.Index < s.next {
		return d
	}
	if _, dup := s.pending[e.Index]; dup {
		return d
	}
	s.pending[e.Index] = e

	for {
		next, ok := s.pending[s.next]
		if !ok {
			break
		}
		delete(s.pending, s.next)
		s.next++
		s.append(next)
		d.Appended = append(d.Appended, next)

		if phrase, ok := s.phrases.Match(s.lower.String()); ok {
			d.Phrase, d.Matched = phrase, true
			s.seal()
			break
		}
	}
	return d
}

func (s *State) append(e Entry) {
	e.Text = strings.TrimSpace(e.Text)
	s.entries = append(s.entries, e)
	if e.Text == "" {
		return
	}
	if s.text.Len() > 0 {
		s.text.WriteByte(' ')
		s.lower.WriteByte(' ')
	}
	s.text.WriteString(e.Text)
	s.lower.WriteString(strings.ToLower(e.Text))
}

// Seal stops all further appends and drops held entries.
func (s *State) Seal() {
	s.mu.Lock()
	s.seal()
	s.mu.Unlock()
}

func (s *State) seal() {
	s.sealed = true
	clear(s.pending)
}

func (s *State) Sealed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sealed
}

// Text is the visible transcript: non-empty entry texts in index order
// joined by single spaces.
func (s *State) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

func (s *State) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

// Next is the index the state is waiting for.
func (s *State) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Held is the number of entries waiting for a lower index.
func (s *State) Held() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
