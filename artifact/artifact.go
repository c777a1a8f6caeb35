// Package artifact manages the files a session writes: short-lived
// per-segment audio for the transcription call and the final transcript
// and recording.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"scribe/encoder"
)

var ErrArtifactWrite = errors.New("artifact write failed")

// StaleAfter is how old another session's transient file must be before
// Prepare removes it. Younger files may belong to a session still running
// in the same directory.
const StaleAfter = 10 * time.Minute

// Artifact is one file on disk. Transient artifacts are removed by the
// call that created them.
type Artifact struct {
	Path  string
	Final bool

	m    *Manager
	once sync.Once
	err  error
}

// Remove deletes a transient artifact. Only the first call touches the
// filesystem; a file that is already gone is not an error.
func (a *Artifact) Remove() error {
	if a == nil {
		return nil
	}
	a.once.Do(func() {
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			a.err = err
		}
		if a.m != nil {
			a.m.untrack(a)
		}
	})
	return a.err
}

type finalResult struct {
	once sync.Once
	path string
	err  error
}

type Manager struct {
	Dir        string
	Base       string
	Session    string
	StaleAfter time.Duration

	mu   sync.Mutex
	live map[string]*Artifact

	transcript finalResult
	audio      finalResult
}

// New returns a manager with a fresh short session id.
func New(dir, base string) *Manager {
	return &Manager{
		Dir:        dir,
		Base:       base,
		Session:    uuid.NewString()[:8],
		StaleAfter: StaleAfter,
		live:       make(map[string]*Artifact),
	}
}

// Prepare creates the output directory and removes transient files left
// behind by earlier sessions with the same base name, once they are older
// than StaleAfter. It returns the number of stale files removed.
func (m *Manager) Prepare() (int, error) {
	if m.Base == "" || strings.ContainsRune(m.Base, os.PathSeparator) {
		return 0, fmt.Errorf("%w: invalid base name %q", ErrArtifactWrite, m.Base)
	}
	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrArtifactWrite, err)
	}
	stale, _ := filepath.Glob(filepath.Join(m.Dir, "."+m.Base+"-*-seg*"))
	removed := 0
	own := "." + m.Base + "-" + m.Session + "-"
	cutoff := time.Now().Add(-m.StaleAfter)
	for _, p := range stale {
		if strings.HasPrefix(filepath.Base(p), own) {
			continue
		}
		info, err := os.Lstat(p)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if os.Remove(p) == nil {
			removed++
		}
	}
	return removed, nil
}

// TransientPath embeds the segment index so concurrent segments never
// share a file.
func (m *Manager) TransientPath(index int, ext string) string {
	return filepath.Join(m.Dir, fmt.Sprintf(".%s-%s-seg%06d.%s", m.Base, m.Session, index, ext))
}

func (m *Manager) TranscriptPath() string { return filepath.Join(m.Dir, m.Base+".txt") }

func (m *Manager) AudioPath() string { return filepath.Join(m.Dir, m.Base+".flac") }

// CreateTransient writes a per-segment file through write. On failure the
// partial file is removed and the error wraps ErrArtifactWrite.
func (m *Manager) CreateTransient(index int, ext string, write func(w io.WriteSeeker) error) (*Artifact, error) {
	path := m.TransientPath(index, ext)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactWrite, err)
	}
	a := &Artifact{Path: path, m: m}
	m.track(a)

	werr := write(f)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		a.Remove()
		return nil, fmt.Errorf("%w: segment %d: %v", ErrArtifactWrite, index, err)
	}
	return a, nil
}

func (m *Manager) track(a *Artifact) {
	m.mu.Lock()
	if m.live == nil {
		m.live = make(map[string]*Artifact)
	}
	m.live[a.Path] = a
	m.mu.Unlock()
}

func (m *Manager) untrack(a *Artifact) {
	m.mu.Lock()
	delete(m.live, a.Path)
	m.mu.Unlock()
}

// Live is the number of transient artifacts not yet removed.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Purge removes every transient artifact still alive. Normal processing
// never leaves any; this catches abandoned calls during teardown.
func (m *Manager) Purge() error {
	m.mu.Lock()
	alive := make([]*Artifact, 0, len(m.live))
	for _, a := range m.live {
		alive = append(alive, a)
	}
	m.mu.Unlock()

	var errs []error
	for _, a := range alive {
		if err := a.Remove(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteTranscript writes text to <dir>/<base>.txt atomically. Only the
// first call writes; later calls return the first result.
func (m *Manager) WriteTranscript(text string) (string, error) {
	m.transcript.once.Do(func() {
		m.transcript.path, m.transcript.err = m.writeFinal(m.TranscriptPath(), func(f *os.File) error {
			_, err := io.WriteString(f, text)
			return err
		})
	})
	return m.transcript.path, m.transcript.err
}

// WriteAudio writes the full session recording as FLAC. Only the first
// call writes.
func (m *Manager) WriteAudio(samples []int16, sampleRate, channels int) (string, error) {
	m.audio.once.Do(func() {
		m.audio.path, m.audio.err = m.writeFinal(m.AudioPath(), func(f *os.File) error {
			return encoder.Write(f, encoder.FormatFLAC, samples, sampleRate, channels)
		})
	})
	return m.audio.path, m.audio.err
}

func (m *Manager) writeFinal(path string, write func(f *os.File) error) (string, error) {
	tmp, err := os.CreateTemp(m.Dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrArtifactWrite, err)
	}
	werr := write(tmp)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: %s: %v", ErrArtifactWrite, filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: %v", ErrArtifactWrite, err)
	}
	return path, nil
}
