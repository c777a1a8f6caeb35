// Package session runs one recording: capture into a ring buffer, cut
// segments, transcribe them concurrently, append the text in order and stop
// on whichever condition fires first.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"scribe/artifact"
	"scribe/audio"
	"scribe/conversation"
	"scribe/dsp"
	"scribe/log"
	"scribe/metrics"
	"scribe/segment"
	"scribe/transcriber"
)

// Result summarizes a finished session.
type Result struct {
	Session        string
	Reason         StopReason
	Phrase         string
	Transcript     string
	Entries        []conversation.Entry
	Segments       int
	Failed         int
	Retries        int
	Dropped        uint64
	Elapsed        time.Duration
	TranscriptPath string
	AudioPath      string
}

type outcome struct {
	seg     segment.Segment
	out     transcriber.Outcome
	err     error
	skipped bool // no speech, never sent
}

type take struct {
	index   int
	samples []int16 // nil unless audio is saved
}

type Session struct {
	// Optional collaborators, set before Run.
	Events  Events
	Metrics *metrics.Metrics
	Signals []StopSignal

	cfg       Config
	capture   audio.CaptureDevice
	tr        transcriber.Transcriber
	artifacts *artifact.Manager

	state   atomic.Int32
	started atomic.Bool
	done    chan struct{}

	mu         sync.Mutex
	stream     *audio.Stream
	conv       *conversation.State
	reason     StopReason
	phrase     string
	fatal      error
	cancelWork context.CancelFunc
	startedAt  time.Time
	stoppedAt  time.Time
	registered []StopSignal

	stopCh   chan struct{}
	stopOnce sync.Once

	// Segments past cutoff were cut before a stop phrase was heard; they
	// are neither counted, saved nor transcribed.
	takes    []take
	cutoff   int
	inflight map[int]context.CancelFunc

	failed  atomic.Int64
	retries atomic.Int64

	closeOnce sync.Once
	closeErr  error
	result    Result
}

// New prepares a session that owns capture from now on: it is released
// when the session ends, even if Run is never called (see Close).
func New(cfg Config, capture audio.CaptureDevice, tr transcriber.Transcriber) *Session {
	return &Session{
		cfg:       cfg,
		capture:   capture,
		tr:        tr,
		artifacts: artifact.New(cfg.Dir, cfg.Base),
		done:      make(chan struct{}),
		stopCh:    make(chan struct{}),
		cutoff:    math.MaxInt,
		inflight:  make(map[int]context.CancelFunc),
	}
}

func (s *Session) ID() string { return s.artifacts.Session }

func (s *Session) State() State { return State(s.state.Load()) }

// Level is the RMS of the latest captured audio.
func (s *Session) Level() float64 {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		return 0
	}
	return stream.Level()
}

// Elapsed is the time spent recording so far.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.startedAt.IsZero():
		return 0
	case !s.stoppedAt.IsZero():
		return s.stoppedAt.Sub(s.startedAt)
	}
	return time.Since(s.startedAt)
}

// Transcript is the text appended so far.
func (s *Session) Transcript() string {
	s.mu.Lock()
	conv := s.conv
	s.mu.Unlock()
	if conv == nil {
		return ""
	}
	return conv.Text()
}

// Stop ends recording as if the external stop signal fired. Audio already
// buffered is still flushed and transcribed.
func (s *Session) Stop() { s.requestStop(ReasonSignal, "") }

// Close stops the session, waits for Run to finish and tears down. It is
// safe to call any number of times, also without Run. Do not call it from
// an Events method.
func (s *Session) Close() error {
	s.Stop()
	if s.started.Load() {
		<-s.done
	}
	return s.teardown()
}

func (s *Session) events() Events {
	if s.Events == nil {
		return NopEvents{}
	}
	return s.Events
}

func (s *Session) transition(to State) bool {
	for {
		from := State(s.state.Load())
		if to <= from {
			return false
		}
		if s.state.CompareAndSwap(int32(from), int32(to)) {
			s.Metrics.SetState(int(to))
			s.events().StateChanged(from, to)
			return true
		}
	}
}

// requestStop records the first stop reason and halts admission before
// anyone is told about it.
func (s *Session) requestStop(reason StopReason, phrase string) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.reason, s.phrase = reason, phrase
		stream := s.stream
		s.mu.Unlock()
		stream.Halt()
		close(s.stopCh)
	})
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.fatal == nil {
		s.fatal = err
	}
	cancel := s.cancelWork
	s.mu.Unlock()
	log.Errorf("session %s: %v", s.ID(), err)
	if cancel != nil {
		cancel()
	}
	s.requestStop(ReasonError, "")
}

func (s *Session) recoverPanic(where string) {
	if r := recover(); r != nil {
		s.fail(fmt.Errorf("panic in %s: %v\n%s", where, r, debug.Stack()))
	}
}

// Run records until a stop condition fires and returns after teardown.
// Configuration, device and output-directory errors are returned before
// recording starts. A failed segment is never fatal.
func (s *Session) Run(ctx context.Context) (res Result, err error) {
	if !s.started.CompareAndSwap(false, true) || s.State() != Idle {
		return Result{}, errors.New("session already used")
	}
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			s.fail(fmt.Errorf("panic in session: %v\n%s", r, debug.Stack()))
			res, err = s.finish()
		}
	}()

	if err := s.cfg.Validate(); err != nil {
		s.teardown()
		return Result{}, err
	}
	phrases, _ := conversation.NewPhrases(s.cfg.StopPhrases)
	detector, err := s.cfg.detector()
	if err != nil {
		s.teardown()
		return Result{}, configErr("%v", err)
	}
	if stale, err := s.artifacts.Prepare(); err != nil {
		s.teardown()
		return Result{}, err
	} else if stale > 0 {
		log.Warnf("removed %d stale segment files from %s", stale, s.cfg.Dir)
	}

	stream, err := audio.OpenStream(s.capture, audio.StreamConfig{
		SampleRate:  s.cfg.SampleRate,
		Channels:    s.cfg.Channels,
		RingSeconds: s.cfg.ringSeconds(),
		MaxSamples:  s.cfg.maxSamples(),
		OnOverflow:  s.Metrics.Dropped,
	})
	if err != nil {
		s.capture = nil // released by OpenStream
		s.teardown()
		return Result{}, err
	}

	workCtx, cancelWork := context.WithCancel(ctx)
	defer cancelWork()

	s.mu.Lock()
	s.stream = stream
	s.conv = conversation.New(phrases)
	s.cancelWork = cancelWork
	s.mu.Unlock()

	for _, sig := range s.Signals {
		if err := sig.Register(); err != nil {
			s.teardown()
			return Result{}, fmt.Errorf("registering stop signal: %w", err)
		}
		s.mu.Lock()
		s.registered = append(s.registered, sig)
		s.mu.Unlock()
	}

	segmenter, err := s.newSegmenter(stream.Ring(), detector)
	if err != nil {
		s.teardown()
		return Result{}, configErr("%v", err)
	}
	client := &transcriber.Client{
		Transcriber: s.tr,
		Artifacts:   s.artifacts,
		Format:      s.cfg.Format,
		Retry:       s.cfg.Retry,
		Empty:       s.cfg.Empty,
		OnRetry:     s.onRetry,
	}

	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()
	s.transition(Recording)
	log.SessionStart(s.ID(), s.tr.Name(), string(s.cfg.Mode), stream.DeviceName())

	results := make(chan outcome, s.cfg.maxInFlight())
	accDone := make(chan struct{})
	segDone := make(chan struct{})
	go s.accumulate(results, accDone)
	go s.segmentLoop(workCtx, segmenter, client, results, segDone)
	go s.watch(ctx, stream)

	<-s.stopCh
	s.mu.Lock()
	s.stoppedAt = time.Now()
	s.mu.Unlock()
	s.transition(Stopping)
	stream.Halt()

	<-segDone
	<-accDone
	return s.finish()
}

func (s *Session) newSegmenter(src segment.Source, detector segment.Detector) (segment.Segmenter, error) {
	cfg := segment.Config{
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
		Duration:   s.cfg.SegmentDuration,
		SilenceGap: s.cfg.SilenceGap,
		MaxSegment: s.cfg.MaxSegment,
	}
	if s.cfg.Mode == ModeSilence || s.cfg.MaxSilence > 0 {
		cfg.Detector = detector
	}
	if s.cfg.MaxSilence > 0 {
		mon := newSilenceMonitor(s.cfg.MaxSilence)
		cfg.Observer = func(speech bool, d time.Duration) {
			switch mon.Observe(speech, d) {
			case SilenceWarn:
				log.Warnf("no speech for %v", mon.SilentFor())
				s.events().SilenceWarning(mon.SilentFor())
			case SilenceLimit:
				s.requestStop(ReasonSilence, "")
			}
		}
	}
	if s.cfg.Mode == ModeSilence {
		return segment.NewSilence(src, cfg)
	}
	return segment.NewFixed(src, cfg)
}

// watch races the independent stop conditions.
func (s *Session) watch(ctx context.Context, stream *audio.Stream) {
	defer s.recoverPanic("watcher")

	var timer <-chan time.Time
	if s.cfg.MaxDuration > 0 {
		t := time.NewTimer(s.cfg.MaxDuration)
		defer t.Stop()
		timer = t.C
	}
	s.mu.Lock()
	fired := make([]<-chan struct{}, 0, len(s.registered))
	for _, sig := range s.registered {
		fired = append(fired, sig.Fired())
	}
	s.mu.Unlock()
	external := mergeStop(s.stopCh, fired...)

	select {
	case <-s.stopCh:
	case <-timer:
		s.requestStop(ReasonTimeLimit, "")
	case <-stream.LimitReached():
		s.requestStop(ReasonTimeLimit, "")
	case <-external:
		s.requestStop(ReasonSignal, "")
	case <-ctx.Done():
		s.requestStop(ReasonCanceled, "")
	}
}

// segmentLoop drains the ring until it is closed and empty, dispatching
// each segment to a bounded pool of transcription workers.
func (s *Session) segmentLoop(ctx context.Context, sg segment.Segmenter, client *transcriber.Client, results chan<- outcome, done chan<- struct{}) {
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.cfg.maxInFlight())
	defer func() {
		wg.Wait()
		close(results)
		close(done)
	}()
	defer s.recoverPanic("segmenter")

	var hp *dsp.HighPass
	if s.cfg.HighPass > 0 {
		hp = &dsp.HighPass{Cutoff: s.cfg.HighPass}
	}

	for {
		seg, err := sg.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			s.fail(fmt.Errorf("segmenter: %w", err))
			return
		}
		if s.conv.Sealed() || s.pastCutoff(seg.Index) {
			continue
		}

		t := take{index: seg.Index}
		if s.cfg.SaveAudio {
			t.samples = seg.Samples
		}
		s.mu.Lock()
		s.takes = append(s.takes, t)
		s.mu.Unlock()
		s.Metrics.SegmentCaptured(seg.Partial)
		log.Segment(seg.Index, seg.Start, seg.Duration(), seg.Partial, seg.Speech)
		s.events().SegmentCaptured(seg)

		if s.cfg.Mode == ModeSilence && !seg.Speech {
			results <- outcome{seg: seg, skipped: true}
			continue
		}
		if hp != nil {
			seg = hp.Segment(seg)
		}

		sem <- struct{}{}
		segCtx, cancel, ok := s.track(ctx, seg.Index)
		if !ok {
			<-sem
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer s.untrack(seg.Index, cancel)
			defer func() {
				if r := recover(); r != nil {
					err := fmt.Errorf("panic transcribing segment %d: %v", seg.Index, r)
					results <- outcome{seg: seg, err: err}
					s.fail(err)
				}
			}()
			s.Metrics.TranscriptionStarted()
			out, err := client.Transcribe(segCtx, seg)
			s.Metrics.TranscriptionFinished(out.Duration, err != nil)
			results <- outcome{seg: seg, out: out, err: err}
		}()
	}
}

// track gives the worker for index its own context so a stop phrase in
// an earlier segment can cancel it.
func (s *Session) track(ctx context.Context, index int) (context.Context, context.CancelFunc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index > s.cutoff {
		return nil, nil, false
	}
	segCtx, cancel := context.WithCancel(ctx)
	s.inflight[index] = cancel
	return segCtx, cancel, true
}

func (s *Session) untrack(index int, cancel context.CancelFunc) {
	s.mu.Lock()
	delete(s.inflight, index)
	s.mu.Unlock()
	cancel()
}

func (s *Session) pastCutoff(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return index > s.cutoff
}

// cutAfter makes index the last segment of the session and cancels the
// transcription of every later one.
func (s *Session) cutAfter(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index >= s.cutoff {
		return
	}
	s.cutoff = index
	for i, cancel := range s.inflight {
		if i > index {
			cancel()
		}
	}
}

func (s *Session) onRetry(index, attempt int, err error, delay time.Duration) {
	s.retries.Add(1)
	s.Metrics.TranscriptionRetried()
	log.Retry(index, attempt, err, delay)
	s.events().Retry(index, attempt, err, delay)
}

func (s *Session) accumulate(results <-chan outcome, done chan<- struct{}) {
	defer close(done)
	for r := range results {
		s.accept(r)
	}
}

func (s *Session) accept(r outcome) {
	defer s.recoverPanic("accumulator")

	if s.pastCutoff(r.seg.Index) {
		log.Infof("segment %d dropped, cut after the stop phrase", r.seg.Index)
		return
	}
	entry := conversation.Entry{
		Index:      r.seg.Index,
		Text:       r.out.Text,
		CapturedAt: time.Now(),
		Failed:     r.err != nil,
	}
	switch {
	case r.err != nil:
		s.failed.Add(1)
		log.Warnf("segment %d skipped: %v", r.seg.Index, r.err)
		s.events().SegmentFailed(r.seg.Index, r.err)
	case !r.skipped && r.out.Result != nil:
		s.logTranscription(r)
	}

	d := s.conv.Deliver(entry)
	if d.Matched {
		last := d.Appended[len(d.Appended)-1].Index
		log.Infof("stop phrase %q heard in segment %d", d.Phrase, last)
		s.cutAfter(last)
		s.requestStop(ReasonStopPhrase, d.Phrase)
	}
	for _, e := range d.Appended {
		if e.Text != "" {
			log.TranscriptionText(e.Index, e.Text)
			s.Metrics.EntryAppended(e.Text)
		}
		s.events().EntryAppended(e)
	}
}

func (s *Session) logTranscription(r outcome) {
	res := r.out.Result
	m := log.Metrics{
		Index:     r.seg.Index,
		AudioS:    r.seg.Duration().Seconds(),
		Attempts:  r.out.Attempts,
		RateLimit: res.RateLimit,
	}
	if nm := res.Metrics; nm != nil {
		m.DNSMs = float64(nm.DNS.Microseconds()) / 1000
		m.TLSMs = float64(nm.TLS.Microseconds()) / 1000
		m.TTFBMs = float64(nm.TTFB.Microseconds()) / 1000
		m.TotalMs = float64(nm.Total.Microseconds()) / 1000
		m.ConnReused = nm.ConnReused
		m.TLSProto = nm.TLSProtocol
	}
	log.TranscriptionMetrics(m, s.tr.Name(), s.tr.Model(), string(s.cfg.Format))
	log.Confidence(r.seg.Index, res.Confidence)
}

func (s *Session) finish() (Result, error) {
	err := s.teardown()
	s.mu.Lock()
	fatal := s.fatal
	s.mu.Unlock()
	return s.result, errors.Join(fatal, err)
}

// teardown releases everything the session holds. Only the first call
// does any work; later calls return the same error.
func (s *Session) teardown() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		stream, conv := s.stream, s.conv
		registered := s.registered
		s.registered = nil
		var recorded []int16
		segments := 0
		for _, t := range s.takes {
			if t.index > s.cutoff {
				continue
			}
			segments++
			recorded = append(recorded, t.samples...)
		}
		if s.stoppedAt.IsZero() && !s.startedAt.IsZero() {
			s.stoppedAt = time.Now()
		}
		s.mu.Unlock()

		switch {
		case stream != nil:
			stream.Close()
		case s.capture != nil:
			s.capture.Stop()
			s.capture.Close()
		}
		for i := len(registered) - 1; i >= 0; i-- {
			registered[i].Unregister()
		}

		var errs []error
		res := Result{Session: s.ID()}
		if conv != nil {
			res.Transcript = conv.Text()
			res.Entries = conv.Entries()
			path, err := s.artifacts.WriteTranscript(res.Transcript)
			if err != nil {
				errs = append(errs, err)
			}
			res.TranscriptPath = path
			if s.cfg.SaveAudio && len(recorded) > 0 {
				path, err := s.artifacts.WriteAudio(recorded, s.cfg.SampleRate, s.cfg.Channels)
				if err != nil {
					errs = append(errs, err)
				}
				res.AudioPath = path
			}
			if err := s.artifacts.Purge(); err != nil {
				log.Warnf("purging segment files: %v", err)
			}
		}

		s.mu.Lock()
		res.Reason, res.Phrase = s.reason, s.phrase
		if !s.startedAt.IsZero() {
			res.Elapsed = s.stoppedAt.Sub(s.startedAt)
		}
		s.mu.Unlock()
		if stream != nil {
			res.Dropped = stream.Ring().Dropped()
		}
		res.Segments = segments
		res.Failed = int(s.failed.Load())
		res.Retries = int(s.retries.Load())
		s.result = res

		s.transition(Stopping)
		s.transition(Stopped)
		if stream != nil {
			s.Metrics.SessionEnded(string(res.Reason))
			log.SessionEnd(res.Session, string(res.Reason), res.Segments, res.Failed, res.Retries, res.Elapsed)
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
