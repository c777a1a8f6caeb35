package hotkey

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fired(b *Binding) bool {
	select {
	case <-b.Fired():
		return true
	case <-time.After(200 * time.Millisecond):
		return false
	}
}

func TestBindingFiresOnRelease(t *testing.T) {
	fk := NewFake()
	b := NewBinding(fk)
	if err := b.Register(); err != nil {
		t.Fatal(err)
	}
	defer b.Unregister()

	fk.SimKeydown()
	select {
	case <-b.Fired():
		t.Fatal("fired before the key was released")
	case <-time.After(30 * time.Millisecond):
	}
	fk.SimKeyup()
	if !fired(b) {
		t.Fatal("binding did not fire after release")
	}
}

func TestBindingUnregister(t *testing.T) {
	fk := NewFake()
	b := NewBinding(fk)
	if err := b.Register(); err != nil {
		t.Fatal(err)
	}
	b.Unregister()
	b.Unregister()

	if fk.unregistered != 1 {
		t.Errorf("hotkey unregistered %d times, want 1", fk.unregistered)
	}
	fk.SimTap()
	if fired(b) {
		t.Error("fired after Unregister")
	}
}

func TestBindingRegisterError(t *testing.T) {
	fk := NewFake()
	fk.RegisterErr = errors.New("grabbed by another program")
	if err := NewBinding(fk).Register(); !errors.Is(err, fk.RegisterErr) {
		t.Fatalf("err = %v", err)
	}
}

func TestWaitTap(t *testing.T) {
	fk := NewFake()
	done := make(chan error, 1)
	go func() { done <- WaitTap(context.Background(), fk) }()

	fk.SimTap()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitTap did not return")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := WaitTap(ctx, fk); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
