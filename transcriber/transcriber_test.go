package transcriber

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNetworkMetricsSum(t *testing.T) {
	m := &NetworkMetrics{
		ConnWait:   10 * time.Millisecond,
		DNS:        20 * time.Millisecond,
		TCP:        30 * time.Millisecond,
		TLS:        40 * time.Millisecond,
		ReqHeaders: 5 * time.Millisecond,
		ReqBody:    15 * time.Millisecond,
		TTFB:       50 * time.Millisecond,
		Download:   25 * time.Millisecond,
	}
	got := m.Sum()
	want := 195 * time.Millisecond
	if got != want {
		t.Errorf("Sum() = %v, want %v", got, want)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	h := http.Header{}
	h.Set("X-Rate-Limit", "100")

	if got := firstNonEmpty(h, "X-Missing", "X-Rate-Limit"); got != "100" {
		t.Errorf("got %q, want %q", got, "100")
	}
	if got := firstNonEmpty(h, "X-A", "X-B"); got != "?" {
		t.Errorf("got %q, want %q", got, "?")
	}
}

func audioFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("RIFF....WAVE"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGroqTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("Authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("multipart: %v", err)
		}
		if r.FormValue("model") != "whisper-large-v3-turbo" || r.FormValue("language") != "de" {
			t.Errorf("fields: model=%q language=%q", r.FormValue("model"), r.FormValue("language"))
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("file: %v", err)
		}
		data, _ := io.ReadAll(f)
		if hdr.Filename != "audio.wav" || string(data) != "RIFF....WAVE" {
			t.Errorf("upload %q = %q", hdr.Filename, data)
		}
		w.Header().Set("x-ratelimit-remaining-requests", "99")
		w.Header().Set("x-ratelimit-limit-requests", "100")
		io.WriteString(w, `{"text":" hallo welt","duration":2.0,"segments":[{"no_speech_prob":0.1,"avg_logprob":-0.2},{"no_speech_prob":0.3,"avg_logprob":-0.4}]}`)
	}))
	defer srv.Close()

	g := NewGroq("key")
	g.apiURL = srv.URL
	g.SetLanguage("de")

	res, err := g.Transcribe(context.Background(), audioFile(t, "seg.wav"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != " hallo welt" || res.RateLimit != "99/100" {
		t.Errorf("result = %+v", res)
	}
	if res.NoSpeechProb != 0.3 || res.AvgLogProb > -0.29 || res.AvgLogProb < -0.31 {
		t.Errorf("probabilities = %v %v", res.NoSpeechProb, res.AvgLogProb)
	}
	if res.Metrics == nil || res.Metrics.Total <= 0 {
		t.Error("missing network metrics")
	}
}

func TestOpenAITranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		if r.FormValue("model") != "gpt-4o-transcribe" {
			t.Errorf("model = %q", r.FormValue("model"))
		}
		if _, ok := r.MultipartForm.Value["language"]; ok {
			t.Error("empty language should not be sent")
		}
		io.WriteString(w, `{"text":"hello"}`)
	}))
	defer srv.Close()

	o := NewOpenAI("key")
	o.apiURL = srv.URL
	o.SetModel("gpt-4o-transcribe")

	res, err := o.Transcribe(context.Background(), audioFile(t, "seg.wav"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "hello" || o.Model() != "gpt-4o-transcribe" {
		t.Errorf("text=%q model=%q", res.Text, o.Model())
	}
}

func TestDeepgramTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "audio/flac" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		if r.URL.Query().Get("model") != "nova-3" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		io.WriteString(w, `{"metadata":{"duration":1.5},"results":{"channels":[{"alternatives":[{"transcript":"stop recording","confidence":0.92}]}]}}`)
	}))
	defer srv.Close()

	d := NewDeepgram("key")
	d.apiURL = srv.URL

	res, err := d.Transcribe(context.Background(), audioFile(t, "seg.flac"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "stop recording" || res.Confidence != 0.92 || res.Duration != 1.5 {
		t.Errorf("result = %+v", res)
	}
}

func TestProviderErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		body      string
		transient bool
	}{
		{429, "slow down", true},
		{503, "unavailable", true},
		{500, "oops", true},
		{408, "timeout", true},
		{400, "bad audio", false},
		{401, "bad key", false},
		{413, "too large", false},
		{200, "{not json", false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			g := NewGroq("key")
			g.apiURL = srv.URL
			_, err := g.Transcribe(context.Background(), audioFile(t, "seg.wav"))
			if err == nil {
				t.Fatal("expected error")
			}
			if IsTransient(err) != tt.transient {
				t.Errorf("IsTransient = %v, want %v (%v)", IsTransient(err), tt.transient, err)
			}
			if !errors.Is(err, ErrTranscription) {
				t.Error("provider error should match ErrTranscription")
			}
		})
	}
}

func TestRetryAfterHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	o := NewOpenAI("key")
	o.apiURL = srv.URL
	_, err := o.Transcribe(context.Background(), audioFile(t, "seg.wav"))
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if pe.RetryAfter != 7*time.Second || pe.Status != 429 {
		t.Errorf("RetryAfter = %v status = %d", pe.RetryAfter, pe.Status)
	}
}

func TestConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g := NewGroq("key")
	g.apiURL = url
	_, err := g.Transcribe(context.Background(), audioFile(t, "seg.wav"))
	if !IsTransient(err) {
		t.Errorf("err = %v, want transient", err)
	}
}

func TestMissingFileIsPermanent(t *testing.T) {
	g := NewGroq("key")
	_, err := g.Transcribe(context.Background(), filepath.Join(t.TempDir(), "gone.wav"))
	if err == nil || IsTransient(err) {
		t.Errorf("err = %v, want permanent error", err)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("DEEPGRAM_API_KEY", "")

	if _, err := FromEnv("", "", ""); err == nil {
		t.Error("expected error with no keys")
	}

	t.Setenv("DEEPGRAM_API_KEY", "dg")
	tr, err := FromEnv("", "", "")
	if err != nil || tr.Name() != "deepgram" {
		t.Fatalf("FromEnv = %v, %v", tr, err)
	}
	if _, err := FromEnv("groq", "", ""); err == nil || !strings.Contains(err.Error(), "GROQ_API_KEY") {
		t.Errorf("err = %v, want hint about GROQ_API_KEY", err)
	}

	t.Setenv("OPENAI_API_KEY", "oa")
	tr, err = FromEnv("openai", "whisper-1", "en")
	if err != nil || tr.Name() != "openai" || tr.Model() != "whisper-1" {
		t.Fatalf("FromEnv(openai) = %v, %v", tr, err)
	}
	if _, err := FromEnv("azure", "", ""); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestContentType(t *testing.T) {
	for path, want := range map[string]string{
		"a.wav":  "audio/wav",
		"a.FLAC": "audio/flac",
		"a.mp3":  "audio/mpeg",
	} {
		if got := contentType(path); got != want {
			t.Errorf("contentType(%q) = %q, want %q", path, got, want)
		}
	}
}
