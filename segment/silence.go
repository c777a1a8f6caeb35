package segment

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Silence grows a candidate segment frame by frame and cuts it once voice
// has been heard and a silence run of SilenceGap follows. MaxSegment bounds
// the candidate when silence never comes.
type Silence struct {
	cfg      Config
	src      Source
	frameLen int
	maxLen   int
	an       analyzer

	next      int
	buf       []int16
	start     uint64
	silentFor time.Duration
	done      bool
}

func NewSilence(src Source, cfg Config) (*Silence, error) {
	if cfg.Detector == nil {
		return nil, fmt.Errorf("silence mode requires a detector")
	}
	frameLen := cfg.samplesFor(cfg.frameDuration())
	if frameLen <= 0 {
		return nil, fmt.Errorf("frame duration %v too short", cfg.frameDuration())
	}
	if cfg.SilenceGap < cfg.frameDuration() {
		return nil, fmt.Errorf("silence gap %v shorter than one frame", cfg.SilenceGap)
	}
	maxLen := cfg.samplesFor(cfg.MaxSegment)
	if maxLen < frameLen {
		return nil, fmt.Errorf("max segment %v shorter than one frame", cfg.MaxSegment)
	}
	return &Silence{cfg: cfg, src: src, frameLen: frameLen, maxLen: maxLen, an: analyzer{cfg: cfg}}, nil
}

func (s *Silence) Next(ctx context.Context) (Segment, error) {
	if s.done {
		return Segment{}, io.EOF
	}
	frameDur := s.cfg.frameDuration()

	for {
		available, closed, err := s.src.WaitFor(ctx, s.frameLen)
		if err != nil {
			return Segment{}, err
		}
		if available < s.frameLen {
			if closed {
				s.done = true
				if available > 0 {
					s.take(available)
				}
				if len(s.buf) == 0 {
					return Segment{}, io.EOF
				}
				return s.emit(true), nil
			}
			continue
		}

		frame := s.take(s.frameLen)
		if s.an.frame(frame) && s.an.voiced {
			s.silentFor = 0
		} else if s.an.speechRun == 0 {
			s.silentFor += frameDur
		}

		if s.an.voiced && s.silentFor >= s.cfg.SilenceGap {
			return s.emit(false), nil
		}
		if len(s.buf) >= s.maxLen {
			return s.emit(false), nil
		}
	}
}

func (s *Silence) take(n int) []int16 {
	samples, start := s.src.Read(n)
	if len(s.buf) == 0 {
		s.start = start
	}
	s.buf = append(s.buf, samples...)
	return samples
}

func (s *Silence) emit(partial bool) Segment {
	seg := Segment{
		Index:      s.next,
		Samples:    s.buf,
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
		Start:      s.cfg.offset(s.start),
		Partial:    partial,
		Speech:     s.an.voiced,
	}
	s.next++
	s.buf = nil
	s.silentFor = 0
	s.an.reset()
	return seg
}
