package emu

import (
	"fmt"
	"strings"
)

// KeyCode identifies one cell of the Spectrum keyboard matrix. The value
// is line*5 + bit, where line is the half-row selected by a zero bit in the
// high byte of the port address and bit is the data line it pulls low.
type KeyCode uint8

// Keyboard matrix layout, one half-row per line.
const (
	// Line 0, port 0xFEFE
	KeyCShift KeyCode = iota
	KeyZ
	KeyX
	KeyC
	KeyV

	// Line 1, port 0xFDFE
	KeyA
	KeyS
	KeyD
	KeyF
	KeyG

	// Line 2, port 0xFBFE
	KeyQ
	KeyW
	KeyE
	KeyR
	KeyT

	// Line 3, port 0xF7FE
	Key1
	Key2
	Key3
	Key4
	Key5

	// Line 4, port 0xEFFE
	Key0
	Key9
	Key8
	Key7
	Key6

	// Line 5, port 0xDFFE
	KeyP
	KeyO
	KeyI
	KeyU
	KeyY

	// Line 6, port 0xBFFE
	KeyEnter
	KeyL
	KeyK
	KeyJ
	KeyH

	// Line 7, port 0x7FFE
	KeySpace
	KeySShift
	KeyM
	KeyN
	KeyB

	// KeyCount is the number of cells in the matrix.
	KeyCount
)

const (
	keyLines    = 8
	keysPerLine = 5
)

var keyNames = [KeyCount]string{
	"CShift", "Z", "X", "C", "V",
	"A", "S", "D", "F", "G",
	"Q", "W", "E", "R", "T",
	"N1", "N2", "N3", "N4", "N5",
	"N0", "N9", "N8", "N7", "N6",
	"P", "O", "I", "U", "Y",
	"Enter", "L", "K", "J", "H",
	"Space", "SShift", "M", "N", "B",
}

// String returns the logical key name used by key tables.
func (k KeyCode) String() string {
	if k < KeyCount {
		return keyNames[k]
	}
	return fmt.Sprintf("KeyCode(%d)", uint8(k))
}

// Line returns the matrix line (0-7) the key belongs to.
func (k KeyCode) Line() int {
	return int(k) / keysPerLine
}

// Bit returns the data bit (0-4) the key pulls low.
func (k KeyCode) Bit() int {
	return int(k) % keysPerLine
}

// Port returns the canonical port address that selects only the key's line.
func (k KeyCode) Port() uint16 {
	return LinePort(k.Line())
}

// LinePort returns the port whose high byte selects exactly one line.
func LinePort(line int) uint16 {
	return uint16(^(uint8(1) << uint(line)))<<8 | 0xFE
}

// KeyCodeByName looks up a key by its logical name (case-insensitive).
// Single digits are accepted as an alias for the N-prefixed names.
func KeyCodeByName(name string) (KeyCode, bool) {
	if len(name) == 1 && name[0] >= '0' && name[0] <= '9' {
		name = "N" + name
	}
	for i, n := range keyNames {
		if strings.EqualFold(n, name) {
			return KeyCode(i), true
		}
	}
	return 0, false
}

// Keyboard is the 8x5 key matrix. A pressed key pulls its data line low
// whenever its half-row is selected by the address bus.
type Keyboard struct {
	keys [KeyCount]bool
}

// NewKeyboard creates a keyboard with every key released.
func NewKeyboard() *Keyboard {
	return &Keyboard{}
}

// Reset releases every key.
func (kb *Keyboard) Reset() {
	kb.keys = [KeyCount]bool{}
}

// SetStatus presses or releases a single key. Unknown codes are ignored.
func (kb *Keyboard) SetStatus(code KeyCode, pressed bool) {
	if code < KeyCount {
		kb.keys[code] = pressed
	}
}

// GetStatus reports whether the key is currently pressed.
func (kb *Keyboard) GetStatus(code KeyCode) bool {
	if code >= KeyCount {
		return false
	}
	return kb.keys[code]
}

// GetKeyLineStatus returns the active-low line value for a port read.
// Every zero bit in the high byte of port selects a line; a pressed key
// on any selected line clears its bit. Bits 5-7 always read as 1.
func (kb *Keyboard) GetKeyLineStatus(port uint16) byte {
	sel := uint8(port >> 8)
	status := byte(0xFF)
	for line := 0; line < keyLines; line++ {
		if sel&(1<<uint(line)) != 0 {
			continue
		}
		base := line * keysPerLine
		for bit := 0; bit < keysPerLine; bit++ {
			if kb.keys[base+bit] {
				status &^= 1 << uint(bit)
			}
		}
	}
	return status
}
