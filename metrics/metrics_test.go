package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func TestMetricsExposed(t *testing.T) {
	m := New()
	m.SegmentCaptured(false)
	m.SegmentCaptured(false)
	m.SegmentCaptured(true)
	m.TranscriptionStarted()
	m.TranscriptionRetried()
	m.TranscriptionFinished(300*time.Millisecond, true)
	m.Dropped(128)
	m.SetState(3)
	m.SessionEnded("stop_phrase")

	body := scrape(t, m)
	for _, want := range []string{
		`scribe_segments_total{partial="false"} 2`,
		`scribe_segments_total{partial="true"} 1`,
		`scribe_transcription_retries_total 1`,
		`scribe_transcription_failures_total 1`,
		`scribe_ring_dropped_samples_total 128`,
		`scribe_session_state 3`,
		`scribe_sessions_total{reason="stop_phrase"} 1`,
		`scribe_transcription_duration_seconds_count 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestRegistriesIndependent(t *testing.T) {
	a, b := New(), New()
	a.Dropped(5)
	if strings.Contains(scrape(t, b), "scribe_ring_dropped_samples_total 5") {
		t.Error("metrics leaked between registries")
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.SegmentCaptured(true)
	m.TranscriptionStarted()
	m.TranscriptionRetried()
	m.TranscriptionFinished(time.Second, false)
	m.EntryAppended("x")
	m.Dropped(3)
	m.SetState(1)
	m.SessionEnded("signal")
}
