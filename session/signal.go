package session

import "sync"

// StopSignal is an external stop binding (hotkey, OS signal, UI button).
// It is registered when recording starts and unregistered on every exit
// path.
type StopSignal interface {
	Register() error
	Unregister()
	Fired() <-chan struct{}
}

// ChanSignal adapts a plain channel that closes (or receives) on stop.
type ChanSignal struct {
	C <-chan struct{}
}

func (c ChanSignal) Register() error        { return nil }
func (c ChanSignal) Unregister()            {}
func (c ChanSignal) Fired() <-chan struct{} { return c.C }

// mergeStop returns a channel that closes when any source fires. Helper
// goroutines exit once done closes.
func mergeStop(done <-chan struct{}, sources ...<-chan struct{}) <-chan struct{} {
	out := make(chan struct{})
	var once sync.Once
	for _, s := range sources {
		if s == nil {
			continue
		}
		go func(ch <-chan struct{}) {
			select {
			case <-ch:
				once.Do(func() { close(out) })
			case <-out:
			case <-done:
			}
		}(s)
	}
	return out
}
