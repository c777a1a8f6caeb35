package transcriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"scribe/artifact"
	"scribe/encoder"
	"scribe/segment"
)

// EmptyPolicy decides what happens when a provider returns no text.
type EmptyPolicy int

const (
	EmptyAccept    EmptyPolicy = iota // treat as silence
	EmptyRetryOnce                    // ask once more before accepting
)

func ParseEmptyPolicy(s string) (EmptyPolicy, error) {
	switch s {
	case "", "accept":
		return EmptyAccept, nil
	case "retry":
		return EmptyRetryOnce, nil
	}
	return 0, fmt.Errorf("unknown empty-text policy %q (use accept or retry)", s)
}

func (p EmptyPolicy) String() string {
	if p == EmptyRetryOnce {
		return "retry"
	}
	return "accept"
}

// Outcome describes one segment's transcription.
type Outcome struct {
	Index    int
	Text     string
	Attempts int
	Retries  int
	Duration time.Duration
	Result   *Result // last successful provider result
}

// Client transcribes whole segments: it writes the transient audio file,
// calls the provider with retries and removes the file before returning.
type Client struct {
	Transcriber Transcriber
	Artifacts   *artifact.Manager
	Format      encoder.Format
	Retry       RetryPolicy
	Empty       EmptyPolicy

	// OnRetry is called before each backoff sleep.
	OnRetry func(index, attempt int, err error, delay time.Duration)
}

func (c *Client) Transcribe(ctx context.Context, seg segment.Segment) (Outcome, error) {
	out := Outcome{Index: seg.Index}
	format := c.Format
	if format == "" {
		format = encoder.FormatWAV
	}
	policy := c.Retry
	if policy.MaxAttempts == 0 {
		policy = DefaultRetry
	}

	art, err := c.Artifacts.CreateTransient(seg.Index, format.Ext(), func(w io.WriteSeeker) error {
		return encoder.Write(w, format, seg.Samples, seg.SampleRate, seg.Channels)
	})
	if err != nil {
		return out, err
	}
	defer art.Remove()

	ctx = WithSegment(ctx, seg.Index)
	start := time.Now()
	emptyRetried := false
	for attempt := 1; ; attempt++ {
		out.Attempts = attempt
		res, err := c.Transcriber.Transcribe(ctx, art.Path)
		if err == nil {
			text := strings.TrimSpace(res.Text)
			if text == "" && c.Empty == EmptyRetryOnce && !emptyRetried {
				emptyRetried = true
				continue
			}
			out.Text, out.Result = text, res
			out.Duration = time.Since(start)
			return out, nil
		}

		out.Duration = time.Since(start)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, fmt.Errorf("%w: segment %d: %w", ErrTranscription, seg.Index, ctxErr)
		}
		if !IsTransient(err) {
			return out, fmt.Errorf("%w: segment %d: %w", ErrTranscription, seg.Index, err)
		}
		if attempt >= policy.MaxAttempts {
			return out, fmt.Errorf("%w: segment %d: giving up after %d attempts: %w", ErrTranscription, seg.Index, attempt, err)
		}

		delay := policy.Delay(attempt)
		var pe *Error
		if errors.As(err, &pe) && pe.RetryAfter > delay {
			delay = pe.RetryAfter
			if policy.MaxDelay > 0 {
				delay = min(delay, policy.MaxDelay)
			}
		}
		out.Retries++
		if c.OnRetry != nil {
			c.OnRetry(seg.Index, attempt, err, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return out, fmt.Errorf("%w: segment %d: %w", ErrTranscription, seg.Index, err)
		}
	}
}
