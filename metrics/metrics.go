// Package metrics exposes session counters to Prometheus. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	Segments        *prometheus.CounterVec
	Requests        prometheus.Counter
	Retries         prometheus.Counter
	Failures        prometheus.Counter
	Duration        prometheus.Histogram
	DroppedSamples  prometheus.Counter
	Sessions        *prometheus.CounterVec
	SessionState    prometheus.Gauge
	TranscriptChars prometheus.Counter
}

// New registers collectors on a private registry, so several sessions in
// one process (or test) never collide.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Segments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_segments_total",
			Help: "Segments cut from the capture stream",
		}, []string{"partial"}),
		Requests: f.NewCounter(prometheus.CounterOpts{
			Name: "scribe_transcription_requests_total",
			Help: "Segments sent for transcription",
		}),
		Retries: f.NewCounter(prometheus.CounterOpts{
			Name: "scribe_transcription_retries_total",
			Help: "Transcription attempts retried after a transient error",
		}),
		Failures: f.NewCounter(prometheus.CounterOpts{
			Name: "scribe_transcription_failures_total",
			Help: "Segments skipped after transcription failed",
		}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_transcription_duration_seconds",
			Help:    "Time to transcribe one segment including retries",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		DroppedSamples: f.NewCounter(prometheus.CounterOpts{
			Name: "scribe_ring_dropped_samples_total",
			Help: "Samples overwritten because the segmenter fell behind",
		}),
		Sessions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_sessions_total",
			Help: "Finished sessions by stop reason",
		}, []string{"reason"}),
		SessionState: f.NewGauge(prometheus.GaugeOpts{
			Name: "scribe_session_state",
			Help: "0 idle, 1 recording, 2 stopping, 3 stopped",
		}),
		TranscriptChars: f.NewCounter(prometheus.CounterOpts{
			Name: "scribe_transcript_chars_total",
			Help: "Characters appended to the transcript",
		}),
	}
}

func (m *Metrics) SegmentCaptured(partial bool) {
	if m == nil {
		return
	}
	m.Segments.WithLabelValues(strconv.FormatBool(partial)).Inc()
}

func (m *Metrics) TranscriptionStarted() {
	if m == nil {
		return
	}
	m.Requests.Inc()
}

func (m *Metrics) TranscriptionRetried() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

func (m *Metrics) TranscriptionFinished(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.Duration.Observe(d.Seconds())
	if failed {
		m.Failures.Inc()
	}
}

func (m *Metrics) EntryAppended(text string) {
	if m == nil {
		return
	}
	m.TranscriptChars.Add(float64(len(text)))
}

func (m *Metrics) Dropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DroppedSamples.Add(float64(n))
}

func (m *Metrics) SetState(state int) {
	if m == nil {
		return
	}
	m.SessionState.Set(float64(state))
}

func (m *Metrics) SessionEnded(reason string) {
	if m == nil {
		return
	}
	m.Sessions.WithLabelValues(reason).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
