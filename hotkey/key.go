package hotkey

import (
	"fmt"
	"strings"
)

// Mod is a set of modifier keys.
type Mod uint8

const (
	ModCtrl Mod = 1 << iota
	ModShift
	ModAlt
	ModSuper
)

var modNames = []struct {
	mod     Mod
	name    string
	aliases []string
}{
	{ModCtrl, "Ctrl", []string{"ctrl", "control"}},
	{ModShift, "Shift", []string{"shift"}},
	{ModAlt, "Alt", []string{"alt", "option", "opt"}},
	{ModSuper, "Super", []string{"super", "cmd", "win", "meta"}},
}

// Key is a chord: every modifier in Mods held, then Code pressed.
// Code is a lower-case key name such as "space", "f9" or "r".
type Key struct {
	Mods Mod
	Code string
}

// DefaultKey is Ctrl+Shift+Space.
func DefaultKey() Key { return Key{Mods: ModCtrl | ModShift, Code: "space"} }

var codeAliases = map[string]string{
	"return": "enter",
	"escape": "esc",
}

// Codes lists the key names a chord can end in.
func Codes() []string {
	codes := []string{"space", "enter", "tab", "esc"}
	for c := 'a'; c <= 'z'; c++ {
		codes = append(codes, string(c))
	}
	for c := '0'; c <= '9'; c++ {
		codes = append(codes, string(c))
	}
	for n := 1; n <= 12; n++ {
		codes = append(codes, fmt.Sprintf("f%d", n))
	}
	return codes
}

func validCode(code string) bool {
	for _, c := range Codes() {
		if c == code {
			return true
		}
	}
	return false
}

// ParseKey reads a chord like "ctrl+shift+space" or "Alt+F9". Case and
// spaces around "+" are ignored. At least one modifier is required so a
// global binding never swallows plain typing.
func ParseKey(spec string) (Key, error) {
	parts := strings.Split(spec, "+")
	for i := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(parts[i]))
	}
	if len(parts) < 2 {
		return Key{}, fmt.Errorf("hotkey %q: need at least one modifier and a key", spec)
	}

	var k Key
	for _, p := range parts[:len(parts)-1] {
		mod, ok := parseMod(p)
		if !ok {
			return Key{}, fmt.Errorf("hotkey %q: unknown modifier %q", spec, p)
		}
		if k.Mods&mod != 0 {
			return Key{}, fmt.Errorf("hotkey %q: %s given twice", spec, p)
		}
		k.Mods |= mod
	}

	code := parts[len(parts)-1]
	if alias, ok := codeAliases[code]; ok {
		code = alias
	}
	if !validCode(code) {
		return Key{}, fmt.Errorf("hotkey %q: unsupported key %q", spec, code)
	}
	k.Code = code
	return k, nil
}

func parseMod(s string) (Mod, bool) {
	for _, m := range modNames {
		for _, a := range m.aliases {
			if a == s {
				return m.mod, true
			}
		}
	}
	return 0, false
}

// String renders the chord for people, e.g. "Ctrl+Shift+Space".
func (k Key) String() string {
	var parts []string
	for _, m := range modNames {
		if k.Mods&m.mod != 0 {
			parts = append(parts, m.name)
		}
	}
	code := k.Code
	switch {
	case code == "":
	case len(code) == 1:
		code = strings.ToUpper(code)
	case code[0] == 'f' && len(code) <= 3:
		code = strings.ToUpper(code)
	default:
		code = strings.ToUpper(code[:1]) + code[1:]
	}
	return strings.Join(append(parts, code), "+")
}

// Set and the String method let a Key act as a flag.Value.
func (k *Key) Set(spec string) error {
	parsed, err := ParseKey(spec)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func (k Key) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Key) UnmarshalText(text []byte) error { return k.Set(string(text)) }
