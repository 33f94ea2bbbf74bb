package debugger

import (
	"errors"
	"testing"

	"github.com/user-none/emzx/emu"
)

func makeTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(nil)
	t.Cleanup(e.Close)
	return e
}

// makeTestMachine returns a 48K machine that has executed LD A,0x42 and
// sits at PC 0x0002.
func makeTestMachine(t *testing.T) *emu.Machine {
	t.Helper()
	m, err := emu.NewMachine(emu.Spectrum48, emu.WithROM(0, []byte{0x3E, 0x42, 0x00}))
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	m.ExecuteInstruction()
	return m
}

func TestEngine_UnconditionalBreakpoint(t *testing.T) {
	e := makeTestEngine(t)
	m := makeTestMachine(t)

	if e.ShouldBreak(m) {
		t.Error("no breakpoints should never break")
	}
	if _, err := e.Add(0x0002, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !e.ShouldBreak(m) {
		t.Error("expected break at 0x0002")
	}
	if hits := e.List()[0].Hits; hits != 1 {
		t.Errorf("expected 1 hit, got %d", hits)
	}
}

func TestEngine_OtherAddressDoesNotBreak(t *testing.T) {
	e := makeTestEngine(t)
	m := makeTestMachine(t)
	e.Add(0x1234, "")
	if e.ShouldBreak(m) {
		t.Error("breakpoint at another address should not trigger")
	}
}

func TestEngine_LuaConditions(t *testing.T) {
	tests := []struct {
		condition string
		want      bool
	}{
		{"a == 0x42", true},
		{"a == 1", false},
		{"pc == 2 and not iff1", true},
		{"peek(0) == 0x3E", true},
		{"peek(1) ~= 0x42", false},
		{"tact == 7 and frame == 0", true},
		{"im == 0", true},
	}
	for _, tt := range tests {
		e := makeTestEngine(t)
		m := makeTestMachine(t)
		if _, err := e.Add(0x0002, tt.condition); err != nil {
			t.Fatalf("%q: Add: %v", tt.condition, err)
		}
		if got := e.ShouldBreak(m); got != tt.want {
			t.Errorf("%q: expected %v, got %v", tt.condition, tt.want, got)
		}
	}
}

func TestEngine_RegisterGlobals(t *testing.T) {
	// LD BC,1234 / LD HL,5678 / EXX / LD DE,9ABC / LD SP,8000 / LD IX,ABCD
	prog := []byte{
		0x01, 0x34, 0x12,
		0x21, 0x78, 0x56,
		0xD9,
		0x11, 0xBC, 0x9A,
		0x31, 0x00, 0x80,
		0xDD, 0x21, 0xCD, 0xAB,
	}
	m, err := emu.NewMachine(emu.Spectrum48, emu.WithROM(0, prog))
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	for i := 0; i < 6; i++ {
		m.ExecuteInstruction()
	}

	tests := []string{
		"pc == 0x11",
		"bc_ == 0x1234 and hl_ == 0x5678",
		"de == 0x9ABC and d == 0x9A and e == 0xBC",
		"sp == 0x8000",
		"ix == 0xABCD",
		"not iff2 and im == 0",
		"i >= 0 and r >= 0 and iy >= 0 and af_ >= 0",
	}
	for _, cond := range tests {
		e := makeTestEngine(t)
		if _, err := e.Add(0x0011, cond); err != nil {
			t.Fatalf("%q: Add: %v", cond, err)
		}
		if !e.ShouldBreak(m) {
			t.Errorf("%q: expected condition to hold", cond)
		}
	}
}

func TestEngine_InvalidCondition(t *testing.T) {
	e := makeTestEngine(t)
	if _, err := e.Add(0, "a =="); err == nil {
		t.Error("expected a compile error")
	}
	if len(e.List()) != 0 {
		t.Error("a rejected breakpoint should not be stored")
	}
}

func TestEngine_RuntimeErrorBreaks(t *testing.T) {
	e := makeTestEngine(t)
	m := makeTestMachine(t)
	e.Add(0x0002, "nosuchfunc()")
	if !e.ShouldBreak(m) {
		t.Error("a failing condition should trigger the breakpoint")
	}
}

func TestEngine_EnableAndRemove(t *testing.T) {
	e := makeTestEngine(t)
	m := makeTestMachine(t)

	bp, _ := e.Add(0x0002, "")
	if err := e.Enable(bp.ID, false); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if e.ShouldBreak(m) {
		t.Error("disabled breakpoint should not trigger")
	}

	if err := e.Remove(bp.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := e.Remove(bp.ID); !errors.Is(err, ErrNoBreakpoint) {
		t.Errorf("expected ErrNoBreakpoint, got %v", err)
	}
	if err := e.Enable(99, true); !errors.Is(err, ErrNoBreakpoint) {
		t.Errorf("expected ErrNoBreakpoint, got %v", err)
	}
}

func TestEngine_ListOrderedByID(t *testing.T) {
	e := makeTestEngine(t)
	e.Add(0x8000, "")
	e.Add(0x0010, "")
	e.Add(0x8000, "a == 0")

	list := e.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 breakpoints, got %d", len(list))
	}
	for i, bp := range list {
		if bp.ID != i+1 {
			t.Errorf("entry %d: expected id %d, got %d", i, i+1, bp.ID)
		}
	}

	e.Clear()
	if len(e.List()) != 0 {
		t.Error("Clear should remove every breakpoint")
	}
}
