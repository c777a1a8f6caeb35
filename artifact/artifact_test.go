package artifact

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mewkiz/flac"
)

func writeBytes(b string) func(io.WriteSeeker) error {
	return func(w io.WriteSeeker) error {
		_, err := io.WriteString(w, b)
		return err
	}
}

func TestTransientLifecycle(t *testing.T) {
	m := New(t.TempDir(), "notes")
	if _, err := m.Prepare(); err != nil {
		t.Fatal(err)
	}

	a, err := m.CreateTransient(3, "wav", writeBytes("RIFF"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(a.Path, "-seg000003.wav") || !strings.HasPrefix(filepath.Base(a.Path), ".notes-"+m.Session) {
		t.Errorf("unexpected transient path %s", a.Path)
	}
	if _, err := os.Stat(a.Path); err != nil {
		t.Fatalf("transient not written: %v", err)
	}
	if m.Live() != 1 {
		t.Errorf("Live = %d, want 1", m.Live())
	}

	if err := a.Remove(); err != nil {
		t.Fatal(err)
	}
	if err := a.Remove(); err != nil {
		t.Errorf("second Remove: %v", err)
	}
	if _, err := os.Stat(a.Path); !os.IsNotExist(err) {
		t.Error("transient still on disk")
	}
	if m.Live() != 0 {
		t.Errorf("Live = %d after remove", m.Live())
	}
}

func TestTransientRemoveMissingFile(t *testing.T) {
	m := New(t.TempDir(), "notes")
	m.Prepare()
	a, _ := m.CreateTransient(0, "wav", writeBytes("x"))
	os.Remove(a.Path)
	if err := a.Remove(); err != nil {
		t.Errorf("Remove of missing file: %v", err)
	}
}

func TestTransientWriteFailureCleansUp(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, "notes")
	m.Prepare()
	_, err := m.CreateTransient(1, "wav", func(io.WriteSeeker) error { return errors.New("disk full") })
	if !errors.Is(err, ErrArtifactWrite) {
		t.Fatalf("err = %v, want ErrArtifactWrite", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("partial file left behind: %v", entries)
	}
	if m.Live() != 0 {
		t.Error("failed transient still tracked")
	}
}

func TestTransientPathsUnique(t *testing.T) {
	m := New(t.TempDir(), "notes")
	m.Prepare()

	var wg sync.WaitGroup
	paths := make([]string, 20)
	for i := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := m.CreateTransient(i, "wav", writeBytes("x"))
			if err != nil {
				t.Error(err)
				return
			}
			paths[i] = a.Path
			a.Remove()
		}()
	}
	wg.Wait()
	seen := map[string]bool{}
	for _, p := range paths {
		if seen[p] {
			t.Fatalf("duplicate path %s", p)
		}
		seen[p] = true
	}
}

func TestPurge(t *testing.T) {
	m := New(t.TempDir(), "notes")
	m.Prepare()
	var arts []*Artifact
	for i := range 3 {
		a, _ := m.CreateTransient(i, "wav", writeBytes("x"))
		arts = append(arts, a)
	}
	arts[0].Remove()

	if err := m.Purge(); err != nil {
		t.Fatal(err)
	}
	if err := m.Purge(); err != nil {
		t.Fatalf("second purge: %v", err)
	}
	for _, a := range arts {
		if _, err := os.Stat(a.Path); !os.IsNotExist(err) {
			t.Errorf("%s survived purge", a.Path)
		}
	}
}

func TestPrepareSweepsStaleTransients(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, ".notes-deadbeef-seg000004.wav")
	other := filepath.Join(dir, ".other-deadbeef-seg000004.wav")
	os.WriteFile(stale, []byte("x"), 0o600)
	os.WriteFile(other, []byte("x"), 0o600)
	old := time.Now().Add(-time.Hour)
	os.Chtimes(stale, old, old)
	os.Chtimes(other, old, old)

	n, err := New(dir, "notes").Prepare()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("removed %d stale files, want 1", n)
	}
	if _, err := os.Stat(other); err != nil {
		t.Error("file for another base name was removed")
	}
}

func TestPrepareKeepsFreshFilesOfOtherSessions(t *testing.T) {
	dir := t.TempDir()
	fresh := filepath.Join(dir, ".notes-cafef00d-seg000001.wav")
	old := filepath.Join(dir, ".notes-deadbeef-seg000002.wav")
	os.WriteFile(fresh, []byte("x"), 0o600)
	os.WriteFile(old, []byte("x"), 0o600)
	then := time.Now().Add(-2 * StaleAfter)
	if err := os.Chtimes(old, then, then); err != nil {
		t.Fatal(err)
	}

	n, err := New(dir, "notes").Prepare()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("removed %d files, want 1", n)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("in-flight file of a concurrent session was removed")
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old file survived")
	}
}

func TestPrepareErrors(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	os.WriteFile(blocker, nil, 0o644)

	if _, err := New(filepath.Join(blocker, "sub"), "notes").Prepare(); !errors.Is(err, ErrArtifactWrite) {
		t.Errorf("err = %v, want ErrArtifactWrite", err)
	}
	if _, err := New(dir, "a/b").Prepare(); !errors.Is(err, ErrArtifactWrite) {
		t.Errorf("bad base: err = %v", err)
	}
}

func TestWriteTranscriptRoundTrip(t *testing.T) {
	m := New(t.TempDir(), "notes")
	m.Prepare()
	text := "hello there  general kenobi\nstop recording"

	path, err := m.WriteTranscript(text)
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != text {
		t.Errorf("round trip = %q, want %q", got, text)
	}

	again, err := m.WriteTranscript("something else")
	if err != nil || again != path {
		t.Fatalf("second write: %s %v", again, err)
	}
	got, _ = os.ReadFile(path)
	if string(got) != text {
		t.Error("transcript rewritten by second call")
	}

	entries, _ := os.ReadDir(m.Dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left: %s", e.Name())
		}
	}
}

func TestWriteAudio(t *testing.T) {
	m := New(t.TempDir(), "notes")
	m.Prepare()
	samples := make([]int16, 16000)
	for i := range samples {
		samples[i] = int16(i % 300)
	}
	path, err := m.WriteAudio(samples, 16000, 1)
	if err != nil {
		t.Fatal(err)
	}
	stream, err := flac.ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()
	if stream.Info.SampleRate != 16000 || stream.Info.NChannels != 1 {
		t.Errorf("stream info = %+v", stream.Info)
	}
}

func TestWriteTranscriptFailure(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "missing"), "notes")
	if _, err := m.WriteTranscript("x"); !errors.Is(err, ErrArtifactWrite) {
		t.Errorf("err = %v, want ErrArtifactWrite", err)
	}
}
