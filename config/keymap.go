package config

import (
	"fmt"
	"sort"

	"github.com/user-none/emzx/emu"
)

// maxCombo is the most matrix cells one host key may drive.
const maxCombo = 2

// KeyMap maps a host key name to the matrix cells it presses. Keys not in
// the map fall back to the matrix key of the same logical name.
type KeyMap map[string][]emu.KeyCode

// DefaultKeyMap returns the cursor and editing combinations of the
// Spectrum+ keyboard.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		"Left":      {emu.KeyCShift, emu.Key5},
		"Down":      {emu.KeyCShift, emu.Key6},
		"Up":        {emu.KeyCShift, emu.Key7},
		"Right":     {emu.KeyCShift, emu.Key8},
		"Backspace": {emu.KeyCShift, emu.Key0},
		"Edit":      {emu.KeyCShift, emu.Key1},
		"CapsLock":  {emu.KeyCShift, emu.Key2},
		"Graph":     {emu.KeyCShift, emu.Key9},
		"Break":     {emu.KeyCShift, emu.KeySpace},
		"Extend":    {emu.KeyCShift, emu.KeySShift},
	}
}

// Set binds name to one or two logical key names.
func (km KeyMap) Set(name string, codes ...string) error {
	if len(codes) == 0 || len(codes) > maxCombo {
		return fmt.Errorf("%w: key %q maps to %d codes, want 1 or %d", ErrInvalid, name, len(codes), maxCombo)
	}
	out := make([]emu.KeyCode, len(codes))
	for i, c := range codes {
		code, ok := emu.KeyCodeByName(c)
		if !ok {
			return fmt.Errorf("%w: key %q: unknown code %q", ErrInvalid, name, c)
		}
		out[i] = code
	}
	km[name] = out
	return nil
}

// Lookup resolves a host key name to matrix cells.
func (km KeyMap) Lookup(name string) ([]emu.KeyCode, bool) {
	if codes, ok := km[name]; ok {
		return codes, true
	}
	if code, ok := emu.KeyCodeByName(name); ok {
		return []emu.KeyCode{code}, true
	}
	return nil, false
}

// Apply presses or releases every cell mapped to name.
func (km KeyMap) Apply(kb *emu.Keyboard, name string, pressed bool) error {
	codes, ok := km.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: no mapping for key %q", ErrInvalid, name)
	}
	for _, c := range codes {
		kb.SetStatus(c, pressed)
	}
	return nil
}

// Names returns the mapped host key names in sorted order.
func (km KeyMap) Names() []string {
	names := make([]string, 0, len(km))
	for n := range km {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
