package session

import (
	"time"

	"scribe/conversation"
	"scribe/segment"
)

// Events receives progress notifications. Methods are called from the
// session's goroutines and must not block for long.
type Events interface {
	StateChanged(from, to State)
	SegmentCaptured(seg segment.Segment)
	EntryAppended(e conversation.Entry)
	Retry(index, attempt int, err error, delay time.Duration)
	SegmentFailed(index int, err error)
	SilenceWarning(silentFor time.Duration)
}

// NopEvents ignores everything. Embed it to implement only some methods.
type NopEvents struct{}

func (NopEvents) StateChanged(State, State)            {}
func (NopEvents) SegmentCaptured(segment.Segment)      {}
func (NopEvents) EntryAppended(conversation.Entry)     {}
func (NopEvents) Retry(int, int, error, time.Duration) {}
func (NopEvents) SegmentFailed(int, error)             {}
func (NopEvents) SilenceWarning(time.Duration)         {}
