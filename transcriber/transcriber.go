// Package transcriber sends recorded audio to a speech-to-text provider.
package transcriber

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type NetworkMetrics struct {
	DNS         time.Duration
	ConnWait    time.Duration
	TCP         time.Duration
	TLS         time.Duration
	ReqHeaders  time.Duration
	ReqBody     time.Duration
	TTFB        time.Duration
	Download    time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}

type Result struct {
	Text         string
	Metrics      *NetworkMetrics
	RateLimit    string // "remaining/limit"
	Confidence   float64
	NoSpeechProb float64
	AvgLogProb   float64
	Duration     float64 // seconds of audio the provider processed
}

// Transcriber turns one audio file into text. Empty text is a valid
// result. Errors should be *Error so callers can tell transient failures
// from permanent ones.
type Transcriber interface {
	Name() string
	Model() string
	Transcribe(ctx context.Context, path string) (*Result, error)
}

type baseTranscriber struct {
	client *TracedClient
	apiURL string
	apiKey string
	model  string
	lang   string
}

func (b *baseTranscriber) SetLanguage(lang string) { b.lang = lang }

func (b *baseTranscriber) Language() string { return b.lang }

func (b *baseTranscriber) SetModel(model string) {
	if model != "" {
		b.model = model
	}
}

func (b *baseTranscriber) Model() string { return b.model }

// Warm opens a connection ahead of the first request.
func (b *baseTranscriber) Warm() time.Duration { return b.client.Warm() }

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".flac":
		return "audio/flac"
	case ".mp3":
		return "audio/mpeg"
	default:
		return "audio/wav"
	}
}

type configurable interface {
	Transcriber
	SetModel(string)
	SetLanguage(string)
}

// New builds a provider by name.
func New(provider, apiKey, model, lang string) (Transcriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s: missing API key", provider)
	}
	var t configurable
	switch provider {
	case "groq":
		t = NewGroq(apiKey)
	case "openai":
		t = NewOpenAI(apiKey)
	case "deepgram":
		t = NewDeepgram(apiKey)
	default:
		return nil, fmt.Errorf("unknown provider %q (use groq, openai or deepgram)", provider)
	}
	t.SetModel(model)
	t.SetLanguage(lang)
	return t, nil
}

// Warm opens a connection to the provider in the background when it
// supports warming.
func Warm(t Transcriber) {
	if w, ok := t.(interface{ Warm() time.Duration }); ok {
		go w.Warm()
	}
}

var providerKeys = []struct{ provider, env string }{
	{"groq", "GROQ_API_KEY"},
	{"openai", "OPENAI_API_KEY"},
	{"deepgram", "DEEPGRAM_API_KEY"},
}

// FromEnv picks provider's key from the environment, or the first provider
// with a key set when provider is empty.
func FromEnv(provider, model, lang string) (Transcriber, error) {
	for _, pk := range providerKeys {
		if provider != "" && provider != pk.provider {
			continue
		}
		if key := os.Getenv(pk.env); key != "" {
			return New(pk.provider, key, model, lang)
		}
		if provider != "" {
			return nil, fmt.Errorf("set %s environment variable", pk.env)
		}
	}
	if provider != "" {
		return nil, fmt.Errorf("unknown provider %q (use groq, openai or deepgram)", provider)
	}
	return nil, fmt.Errorf("set GROQ_API_KEY, OPENAI_API_KEY or DEEPGRAM_API_KEY environment variable")
}

type segmentKey struct{}

// WithSegment tags ctx with the index of the segment being transcribed.
func WithSegment(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, segmentKey{}, index)
}

func SegmentFromContext(ctx context.Context) (int, bool) {
	i, ok := ctx.Value(segmentKey{}).(int)
	return i, ok
}
