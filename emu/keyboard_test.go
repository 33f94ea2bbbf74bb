package emu

import "testing"

func TestKeyboard_ResetReleasesEveryKey(t *testing.T) {
	kb := NewKeyboard()
	for code := KeyCode(0); code < KeyCount; code++ {
		kb.SetStatus(code, true)
	}

	kb.Reset()

	for code := KeyCode(0); code < KeyCount; code++ {
		if kb.GetStatus(code) {
			t.Errorf("%s still pressed after reset", code)
		}
	}
	// High byte 0x00 selects every line.
	if got := kb.GetKeyLineStatus(0x00FE); got != 0xFF {
		t.Errorf("expected 0xFF with no keys, got 0x%02X", got)
	}
}

func TestKeyboard_PressedKeyOnlyOnItsLine(t *testing.T) {
	for code := KeyCode(0); code < KeyCount; code++ {
		kb := NewKeyboard()
		kb.SetStatus(code, true)

		for line := 0; line < keyLines; line++ {
			got := kb.GetKeyLineStatus(LinePort(line))
			want := byte(0xFF)
			if line == code.Line() {
				want &^= 1 << uint(code.Bit())
			}
			if got != want {
				t.Errorf("%s: line %d port 0x%04X expected 0x%02X, got 0x%02X",
					code, line, LinePort(line), want, got)
			}
		}
	}
}

func TestKeyboard_LinePorts(t *testing.T) {
	tests := []struct {
		code KeyCode
		port uint16
	}{
		{KeyCShift, 0xFEFE},
		{KeyA, 0xFDFE},
		{KeyQ, 0xFBFE},
		{Key1, 0xF7FE},
		{Key0, 0xEFFE},
		{KeyP, 0xDFFE},
		{KeyEnter, 0xBFFE},
		{KeySpace, 0x7FFE},
		{KeyB, 0x7FFE},
	}
	for _, tt := range tests {
		if got := tt.code.Port(); got != tt.port {
			t.Errorf("%s: expected port 0x%04X, got 0x%04X", tt.code, tt.port, got)
		}
	}
}

func TestKeyboard_CapsShiftCombination(t *testing.T) {
	kb := NewKeyboard()
	for key := KeyCode(keysPerLine); key < KeyCount; key++ {
		kb.SetStatus(KeyCShift, true)
		kb.SetStatus(key, true)

		if got := kb.GetKeyLineStatus(0xFEFE); got != 0xFE {
			t.Errorf("%s: CShift line expected 0xFE, got 0x%02X", key, got)
		}
		want := ^uint8(1 << uint(key.Bit()))
		if got := kb.GetKeyLineStatus(key.Port()); got != want {
			t.Errorf("%s: line %d expected 0x%02X, got 0x%02X", key, key.Line(), want, got)
		}
		// Both lines selected at once merge their results.
		merged := key.Port() & 0xFEFE
		if got := kb.GetKeyLineStatus(merged); got != want&0xFE {
			t.Errorf("%s: merged lines expected 0x%02X, got 0x%02X", key, want&0xFE, got)
		}
		for line := 1; line < keyLines; line++ {
			if line == key.Line() {
				continue
			}
			if got := kb.GetKeyLineStatus(LinePort(line)); got != 0xFF {
				t.Errorf("%s: unrelated line %d expected 0xFF, got 0x%02X", key, line, got)
			}
		}

		kb.SetStatus(KeyCShift, false)
		if got := kb.GetKeyLineStatus(merged); got != want {
			t.Errorf("%s: after CShift release expected 0x%02X, got 0x%02X", key, want, got)
		}
		kb.SetStatus(key, false)
		if got := kb.GetKeyLineStatus(0x00FE); got != 0xFF {
			t.Errorf("%s: after release expected 0xFF, got 0x%02X", key, got)
		}
	}
}

func TestKeyboard_KeyCodeByName(t *testing.T) {
	tests := []struct {
		name string
		code KeyCode
		ok   bool
	}{
		{"CShift", KeyCShift, true},
		{"sshift", KeySShift, true},
		{"N5", Key5, true},
		{"5", Key5, true},
		{"enter", KeyEnter, true},
		{"F1", 0, false},
	}
	for _, tt := range tests {
		code, ok := KeyCodeByName(tt.name)
		if ok != tt.ok || (ok && code != tt.code) {
			t.Errorf("%q: expected (%v, %v), got (%v, %v)", tt.name, tt.code, tt.ok, code, ok)
		}
	}
}

func TestKeyboard_UnknownCodeIgnored(t *testing.T) {
	kb := NewKeyboard()
	kb.SetStatus(KeyCount, true)
	if kb.GetStatus(KeyCount) {
		t.Error("out-of-range key should never report pressed")
	}
}
