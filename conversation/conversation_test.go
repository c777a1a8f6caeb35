package conversation

import (
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
)

func TestDeliverInOrder(t *testing.T) {
	s := New(nil)
	for i, text := range []string{"hello", "", "  world "} {
		d := s.Deliver(Entry{Index: i, Text: text})
		if len(d.Appended) != 1 || d.Appended[0].Index != i {
			t.Fatalf("deliver %d appended %+v", i, d.Appended)
		}
	}
	if got := s.Text(); got != "hello world" {
		t.Errorf("Text = %q", got)
	}
	if n := len(s.Entries()); n != 3 {
		t.Errorf("entries = %d, want 3 (empty entries are kept)", n)
	}
}

func TestDeliverHoldsOutOfOrder(t *testing.T) {
	s := New(nil)
	if d := s.Deliver(Entry{Index: 2, Text: "c"}); len(d.Appended) != 0 {
		t.Fatal("index 2 appended before 0")
	}
	if d := s.Deliver(Entry{Index: 1, Text: "b"}); len(d.Appended) != 0 {
		t.Fatal("index 1 appended before 0")
	}
	if s.Held() != 2 {
		t.Errorf("Held = %d", s.Held())
	}
	d := s.Deliver(Entry{Index: 0, Text: "a"})
	if len(d.Appended) != 3 {
		t.Fatalf("appended %d, want 3", len(d.Appended))
	}
	for i, e := range d.Appended {
		if e.Index != i {
			t.Errorf("appended[%d].Index = %d", i, e.Index)
		}
	}
	if s.Text() != "a b c" || s.Next() != 3 || s.Held() != 0 {
		t.Errorf("text=%q next=%d held=%d", s.Text(), s.Next(), s.Held())
	}
}

func TestDeliverIgnoresDuplicates(t *testing.T) {
	s := New(nil)
	s.Deliver(Entry{Index: 0, Text: "a"})
	s.Deliver(Entry{Index: 0, Text: "again"})
	s.Deliver(Entry{Index: 2, Text: "c"})
	s.Deliver(Entry{Index: 2, Text: "c2"})
	s.Deliver(Entry{Index: 1, Text: "b"})
	if got := s.Text(); got != "a b c" {
		t.Errorf("Text = %q", got)
	}
}

func TestAnyInterleavingGivesIndexOrder(t *testing.T) {
	const n = 40
	texts := make([]string, n)
	var want []string
	for i := range texts {
		if i%5 == 3 {
			continue // silence
		}
		texts[i] = "w" + strings.Repeat("x", i%4) + string(rune('a'+i%26))
		want = append(want, texts[i])
	}

	for trial := range 50 {
		s := New(nil)
		order := rand.Perm(n)
		var wg sync.WaitGroup
		for _, idx := range order {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.Deliver(Entry{Index: idx, Text: texts[idx]})
			}()
		}
		wg.Wait()
		if got := s.Text(); got != strings.Join(want, " ") {
			t.Fatalf("trial %d: order %v gave %q", trial, order, got)
		}
		for i, e := range s.Entries() {
			if e.Index != i {
				t.Fatalf("trial %d: entry %d has index %d", trial, i, e.Index)
			}
		}
	}
}

func TestStopPhraseSealsAfterMatchingEntry(t *testing.T) {
	phrases, _ := NewPhrases([]string{"exit"})
	s := New(phrases)

	// 3 and 4 finish early and are held.
	s.Deliver(Entry{Index: 3, Text: "more"})
	s.Deliver(Entry{Index: 4, Text: "words"})
	s.Deliver(Entry{Index: 0, Text: "hello"})
	s.Deliver(Entry{Index: 1, Text: "please"})

	d := s.Deliver(Entry{Index: 2, Text: "Exit now"})
	if !d.Matched || d.Phrase != "exit" {
		t.Fatalf("delivery = %+v, want match", d)
	}
	if len(d.Appended) != 1 || d.Appended[0].Index != 2 {
		t.Errorf("appended %+v, want only index 2", d.Appended)
	}
	if !s.Sealed() || s.Held() != 0 {
		t.Error("state not sealed")
	}
	if d := s.Deliver(Entry{Index: 5, Text: "late"}); len(d.Appended) != 0 {
		t.Error("sealed state accepted an entry")
	}
	if got := s.Text(); got != "hello please Exit now" {
		t.Errorf("Text = %q", got)
	}
}

func TestStopPhraseAcrossEntries(t *testing.T) {
	phrases, _ := NewPhrases([]string{"stop recording"})
	s := New(phrases)
	s.Deliver(Entry{Index: 0, Text: "please stop"})
	d := s.Deliver(Entry{Index: 1, Text: "Recording."})
	if !d.Matched {
		t.Error("phrase split over two entries not matched")
	}
}

func TestPhrasesMatch(t *testing.T) {
	p, err := NewPhrases([]string{" Stop Recording ", "exit", "EXIT"})
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != 2 {
		t.Errorf("phrases = %v, want deduplicated", p)
	}
	tests := []struct {
		text   string
		phrase string
		ok     bool
	}{
		{"please STOP RECORDING now", "stop recording", true},
		{"exiting the room", "exit", true},
		{"stop, recording", "", false},
		{"nothing here", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		phrase, ok := p.Match(tt.text)
		if ok != tt.ok || phrase != tt.phrase {
			t.Errorf("Match(%q) = %q, %v; want %q, %v", tt.text, phrase, ok, tt.phrase, tt.ok)
		}
	}
}

func TestNewPhrasesRejectsEmpty(t *testing.T) {
	if _, err := NewPhrases(nil); err == nil {
		t.Error("empty set accepted")
	}
	if _, err := NewPhrases([]string{"ok", "   "}); err == nil {
		t.Error("blank phrase accepted")
	}
}
