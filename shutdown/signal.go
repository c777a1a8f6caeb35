// Package shutdown turns interrupt and terminate signals into a session
// stop request.
package shutdown

import (
	"os"
	"os/signal"
	"sync"
)

// Signal fires once on the first SIGINT or SIGTERM after Register. While
// registered, the signals no longer kill the process.
type Signal struct {
	ch       chan os.Signal
	fired    chan struct{}
	quit     chan struct{}
	received os.Signal

	fireOnce sync.Once
	quitOnce sync.Once
}

func NewSignal() *Signal {
	return &Signal{
		ch:    make(chan os.Signal, 1),
		fired: make(chan struct{}),
		quit:  make(chan struct{}),
	}
}

func (s *Signal) Register() error {
	Notify(s.ch)
	go func() {
		select {
		case sig := <-s.ch:
			s.received = sig
			s.fireOnce.Do(func() { close(s.fired) })
		case <-s.quit:
		}
	}()
	return nil
}

func (s *Signal) Unregister() {
	s.quitOnce.Do(func() {
		signal.Stop(s.ch)
		close(s.quit)
	})
}

func (s *Signal) Fired() <-chan struct{} { return s.fired }

// Received is the signal that fired, valid after Fired closes.
func (s *Signal) Received() os.Signal {
	select {
	case <-s.fired:
		return s.received
	default:
		return nil
	}
}
