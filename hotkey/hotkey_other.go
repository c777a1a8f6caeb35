//go:build !linux

package hotkey

import (
	"fmt"
	"sync"

	"golang.design/x/hotkey"
)

var xKeys = map[string]hotkey.Key{
	"space": hotkey.KeySpace, "enter": hotkey.KeyReturn, "tab": hotkey.KeyTab, "esc": hotkey.KeyEscape,
	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3, "4": hotkey.Key4,
	"5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7, "8": hotkey.Key8, "9": hotkey.Key9,
	"a": hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC, "d": hotkey.KeyD, "e": hotkey.KeyE,
	"f": hotkey.KeyF, "g": hotkey.KeyG, "h": hotkey.KeyH, "i": hotkey.KeyI, "j": hotkey.KeyJ,
	"k": hotkey.KeyK, "l": hotkey.KeyL, "m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO,
	"p": hotkey.KeyP, "q": hotkey.KeyQ, "r": hotkey.KeyR, "s": hotkey.KeyS, "t": hotkey.KeyT,
	"u": hotkey.KeyU, "v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX, "y": hotkey.KeyY,
	"z": hotkey.KeyZ,
	"f1": hotkey.KeyF1, "f2": hotkey.KeyF2, "f3": hotkey.KeyF3, "f4": hotkey.KeyF4,
	"f5": hotkey.KeyF5, "f6": hotkey.KeyF6, "f7": hotkey.KeyF7, "f8": hotkey.KeyF8,
	"f9": hotkey.KeyF9, "f10": hotkey.KeyF10, "f11": hotkey.KeyF11, "f12": hotkey.KeyF12,
}

// xHotkey registers the chord with the OS (Cocoa or Win32).
type xHotkey struct {
	key     Key
	hk      *hotkey.Hotkey
	keydown chan struct{}
	keyup   chan struct{}
	quit    chan struct{}
	once    sync.Once
}

func New(key Key) Hotkey {
	return &xHotkey{
		key:     key,
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
		quit:    make(chan struct{}),
	}
}

func (h *xHotkey) Register() error {
	code, ok := xKeys[h.key.Code]
	if !ok {
		return fmt.Errorf("hotkey %s: key not supported", h.key)
	}
	var mods []hotkey.Modifier
	for _, m := range []Mod{ModCtrl, ModShift, ModAlt, ModSuper} {
		if h.key.Mods&m != 0 {
			mods = append(mods, xMods[m])
		}
	}
	h.hk = hotkey.New(mods, code)
	if err := h.hk.Register(); err != nil {
		return err
	}
	go h.forward(h.hk.Keydown(), h.keydown)
	go h.forward(h.hk.Keyup(), h.keyup)
	return nil
}

// forward relays OS events until Unregister. A press nobody has read yet
// absorbs the next one.
func (h *xHotkey) forward(from <-chan hotkey.Event, to chan<- struct{}) {
	for {
		select {
		case <-from:
		case <-h.quit:
			return
		}
		select {
		case to <- struct{}{}:
		default:
		}
	}
}

func (h *xHotkey) Unregister() {
	h.once.Do(func() {
		close(h.quit)
		if h.hk != nil {
			h.hk.Unregister()
		}
	})
}

func (h *xHotkey) Keydown() <-chan struct{} {
	return h.keydown
}

func (h *xHotkey) Keyup() <-chan struct{} {
	return h.keyup
}

func Diagnose(key Key) (string, error) {
	if _, ok := xKeys[key.Code]; !ok {
		return "", fmt.Errorf("hotkey %s: key not supported", key)
	}
	return fmt.Sprintf("hotkey support available (%s)", key), nil
}
