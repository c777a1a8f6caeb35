package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcribeFile *os.File
	logMu          sync.Mutex
	logReady       bool
	pid            int
	dir            string
)

// Metrics describes one finished segment transcription.
type Metrics struct {
	Index      int
	AudioS     float64
	Attempts   int
	DNSMs      float64
	TLSMs      float64
	TTFBMs     float64
	TotalMs    float64
	ConnReused bool
	TLSProto   string
	RateLimit  string
}

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}

	// Priority 2: SCRIBE_LOG_PATH environment variable
	if envPath := os.Getenv("SCRIBE_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	transcribePath := filepath.Join(dir, "transcribe_log.txt")
	transcribeFile, err = os.OpenFile(transcribePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcribeFile != nil {
		transcribeFile.Close()
		transcribeFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func TranscriptionMetrics(m Metrics, provider, model, format string) {
	if !logReady {
		return
	}

	connStatus := "new"
	if m.ConnReused {
		connStatus = "reused"
	}

	ev := diagLog.Info().
		Int("segment", m.Index).
		Str("provider", provider).
		Str("model", model).
		Str("format", format).
		Str("conn", connStatus).
		Int("attempts", m.Attempts)
	if m.TLSProto != "" {
		ev = ev.Str("tls_proto", m.TLSProto)
	}
	if m.RateLimit != "" {
		ev = ev.Str("ratelimit", m.RateLimit)
	}
	ev.Float64("audio_s", m.AudioS).
		Float64("dns_ms", m.DNSMs).
		Float64("tls_ms", m.TLSMs).
		Float64("ttfb_ms", m.TTFBMs).
		Float64("total_ms", m.TotalMs).
		Msg("transcription")
}

// TranscriptionText appends one transcript entry to transcribe_log.txt.
func TranscriptionText(index int, text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	if transcribeFile == nil {
		return
	}
	line := fmt.Sprintf("%s\t[%d]\t#%d\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, index, text)
	transcribeFile.WriteString(line)
}

func Confidence(index int, confidence float64) {
	if !logReady {
		return
	}
	if confidence > 0 {
		diagLog.Info().Int("segment", index).Float64("confidence", confidence).Msg("api_confidence")
	}
}

func Segment(index int, start, length time.Duration, partial, speech bool) {
	if !logReady {
		return
	}
	diagLog.Debug().
		Int("segment", index).
		Dur("start", start).
		Dur("length", length).
		Bool("partial", partial).
		Bool("speech", speech).
		Msg("segment")
}

func Retry(index, attempt int, err error, delay time.Duration) {
	if !logReady {
		return
	}
	diagLog.Warn().
		Int("segment", index).
		Int("attempt", attempt).
		Dur("delay", delay).
		Err(err).
		Msg("transcription_retry")
}

func SessionStart(session, provider, mode, device string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", session).
		Str("provider", provider).
		Str("mode", mode).
		Str("device", device).
		Msg("session_start")
}

func SessionEnd(session, reason string, segments, failed, retries int, elapsed time.Duration) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", session).
		Str("reason", reason).
		Int("segments", segments).
		Int("failed", failed).
		Int("retries", retries).
		Dur("elapsed", elapsed).
		Msg("session_end")
}
