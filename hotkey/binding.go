package hotkey

import (
	"context"
	"sync"
)

// Binding turns a Hotkey into a one-shot stop signal for a recording
// session. It fires when a press is released, so a held key does not
// leak a keyup into whatever runs next.
type Binding struct {
	hk Hotkey

	fired    chan struct{}
	quit     chan struct{}
	fireOnce sync.Once
	quitOnce sync.Once
}

func NewBinding(hk Hotkey) *Binding {
	return &Binding{
		hk:    hk,
		fired: make(chan struct{}),
		quit:  make(chan struct{}),
	}
}

func (b *Binding) Register() error {
	if err := b.hk.Register(); err != nil {
		return err
	}
	go b.run()
	return nil
}

func (b *Binding) run() {
	select {
	case <-b.hk.Keydown():
	case <-b.quit:
		return
	}
	select {
	case <-b.hk.Keyup():
	case <-b.quit:
		return
	}
	b.fireOnce.Do(func() { close(b.fired) })
}

// Unregister releases the key. Safe to call more than once.
func (b *Binding) Unregister() {
	b.quitOnce.Do(func() {
		close(b.quit)
		b.hk.Unregister()
	})
}

func (b *Binding) Fired() <-chan struct{} { return b.fired }

// WaitTap blocks until the key is pressed and released once. The key must
// already be registered.
func WaitTap(ctx context.Context, hk Hotkey) error {
	select {
	case <-hk.Keydown():
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-hk.Keyup():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
