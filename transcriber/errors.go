package transcriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"
)

// ErrTranscription marks a segment whose transcription did not succeed.
var ErrTranscription = errors.New("transcription failed")

// Error is a provider failure. Transient errors are worth retrying.
type Error struct {
	Provider   string
	Status     int // HTTP status, 0 for transport failures
	Transient  bool
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s API error %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrTranscription }

// IsTransient reports whether err is a provider error worth retrying.
func IsTransient(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Transient
}

func transientStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooEarly, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	}
	return false
}

func statusError(provider string, resp *TracedResponse) *Error {
	body := string(resp.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return &Error{
		Provider:   provider,
		Status:     resp.StatusCode,
		Transient:  transientStatus(resp.StatusCode),
		RetryAfter: retryAfter(resp.Header),
		Err:        errors.New(body),
	}
}

func transportError(provider string, err error) *Error {
	return &Error{Provider: provider, Transient: transientNet(err), Err: err}
}

func parseError(provider string, err error) *Error {
	return &Error{Provider: provider, Err: fmt.Errorf("response parse error: %w", err)}
}

func transientNet(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var op *net.OpError
	if errors.As(err, &op) {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, context.DeadlineExceeded)
}

func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return max(time.Until(t), 0)
	}
	return 0
}
