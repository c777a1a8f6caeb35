// Package clipboard copies the finished transcript to the system
// clipboard.
package clipboard

import (
	"errors"
	"strings"

	cb "github.com/atotto/clipboard"
)

var ErrUnsupported = errors.New("no clipboard utility found (install xclip, xsel or wl-clipboard)")

// Available reports whether a clipboard backend can be used.
func Available() error {
	if cb.Unsupported {
		return ErrUnsupported
	}
	return nil
}

func Read() (string, error) {
	if err := Available(); err != nil {
		return "", err
	}
	return cb.ReadAll()
}

// Copy replaces the clipboard contents. Blank text leaves the clipboard
// alone and reports false.
func Copy(text string) (bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return false, nil
	}
	if err := Available(); err != nil {
		return false, err
	}
	if err := cb.WriteAll(text); err != nil {
		return false, err
	}
	return true, nil
}
