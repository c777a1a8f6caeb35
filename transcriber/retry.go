package transcriber

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy is exponential backoff over a bounded number of attempts.
// MaxAttempts counts the first try.
type RetryPolicy struct {
	Initial     time.Duration
	Factor      float64
	MaxDelay    time.Duration
	MaxAttempts int
}

var DefaultRetry = RetryPolicy{
	Initial:     time.Second,
	Factor:      2,
	MaxDelay:    30 * time.Second,
	MaxAttempts: 5,
}

var retryPresets = map[string]RetryPolicy{
	"simple":   {Initial: time.Second, Factor: 2, MaxDelay: 30 * time.Second, MaxAttempts: 2},
	"medium":   {Initial: 2 * time.Second, Factor: 3, MaxDelay: 30 * time.Second, MaxAttempts: 3},
	"advanced": {Initial: 4 * time.Second, Factor: 4, MaxDelay: 60 * time.Second, MaxAttempts: 4},
	"verbose":  {Initial: 6 * time.Second, Factor: 3, MaxDelay: 2 * time.Minute, MaxAttempts: 6},
}

// RetryPreset returns a named policy: default, simple, medium, advanced
// or verbose.
func RetryPreset(name string) (RetryPolicy, error) {
	if name == "" || name == "default" {
		return DefaultRetry, nil
	}
	p, ok := retryPresets[name]
	if !ok {
		return RetryPolicy{}, fmt.Errorf("unknown retry preset %q (use default, simple, medium, advanced or verbose)", name)
	}
	return p, nil
}

func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.Initial < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	if p.Factor < 1 {
		return fmt.Errorf("retry factor must be at least 1, got %g", p.Factor)
	}
	return nil
}

// Delay is the wait after failed attempt n (1-based).
func (p RetryPolicy) Delay(n int) time.Duration {
	d := float64(p.Initial)
	for i := 1; i < n; i++ {
		d *= p.Factor
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
