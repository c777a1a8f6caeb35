package transcriber

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"
)

// FakeReply is one scripted answer.
type FakeReply struct {
	Text  string
	Err   error
	Delay time.Duration
}

// Fake answers from a per-segment script. Segments without a script (or
// whose script is used up) get the default text.
type Fake struct {
	text string

	mu      sync.Mutex
	scripts map[int][]FakeReply
	calls   map[int]int
	seen    map[int][]string
	missing int

	// OnCall runs at the start of every call.
	OnCall func(index int, path string)
}

func NewFake(text string) *Fake {
	return &Fake{
		text:    text,
		scripts: make(map[int][]FakeReply),
		calls:   make(map[int]int),
		seen:    make(map[int][]string),
	}
}

// Script queues replies for segment index, consumed one per call.
func (f *Fake) Script(index int, replies ...FakeReply) *Fake {
	f.mu.Lock()
	f.scripts[index] = append(f.scripts[index], replies...)
	f.mu.Unlock()
	return f
}

// Texts scripts segment i to answer texts[i].
func (f *Fake) Texts(texts ...string) *Fake {
	for i, t := range texts {
		f.Script(i, FakeReply{Text: t})
	}
	return f
}

func (f *Fake) Name() string  { return "fake" }
func (f *Fake) Model() string { return "fake" }

func (f *Fake) Transcribe(ctx context.Context, path string) (*Result, error) {
	index, _ := SegmentFromContext(ctx)

	f.mu.Lock()
	f.calls[index]++
	f.seen[index] = append(f.seen[index], path)
	if _, err := os.Stat(path); err != nil {
		f.missing++
	}
	reply := FakeReply{Text: f.text}
	if queue := f.scripts[index]; len(queue) > 0 {
		reply = queue[0]
		f.scripts[index] = queue[1:]
	}
	onCall := f.OnCall
	f.mu.Unlock()

	if onCall != nil {
		onCall(index, path)
	}
	if reply.Delay > 0 {
		if err := sleep(ctx, reply.Delay); err != nil {
			return nil, &Error{Provider: "fake", Err: err}
		}
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	return &Result{Text: reply.Text, Metrics: &NetworkMetrics{Total: reply.Delay}}, nil
}

// Calls is the number of calls made for segment index.
func (f *Fake) Calls(index int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[index]
}

// Paths lists the files handed over for segment index.
func (f *Fake) Paths(index int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen[index]...)
}

// MissingFiles counts calls whose audio file did not exist.
func (f *Fake) MissingFiles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.missing
}

// RateLimited is a transient provider error like an HTTP 429.
func RateLimited() error {
	return &Error{Provider: "fake", Status: 429, Transient: true, Err: errFakeRateLimit}
}

var errFakeRateLimit = errors.New("rate limit exceeded")
