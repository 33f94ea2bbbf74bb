// Package debugger implements the breakpoint engine consulted by the
// controller while a debug session is armed. Breakpoints trigger on the
// program counter and may carry a Lua condition evaluated against the
// machine state.
//
// Conditions see these globals:
//
//	pc, sp, ix, iy   registers
//	af, bc, de, hl   register pairs, with a, f, b, c, d, e, h, l
//	af_ .. hl_       shadow pairs
//	i, r             interrupt vector and refresh
//	iff1, iff2, im   interrupt state
//	frame, tact      completed frames and frame tact
//	peek(addr)       byte at addr in the CPU view
package debugger

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/user-none/emzx/emu"
)

// ErrNoBreakpoint is returned for an unknown breakpoint id.
var ErrNoBreakpoint = errors.New("debugger: no such breakpoint")

// Breakpoint is a snapshot of one breakpoint.
type Breakpoint struct {
	ID        int
	Addr      uint16
	Condition string
	Enabled   bool
	Hits      uint64
}

type breakpoint struct {
	Breakpoint
	fn *lua.LFunction
}

// Engine holds breakpoints and the Lua state used for their conditions.
// It is safe for concurrent use: the controller calls ShouldBreak on its
// execution goroutine while a console edits breakpoints.
type Engine struct {
	mu     sync.Mutex
	L      *lua.LState
	byAddr map[uint16][]*breakpoint
	byID   map[int]*breakpoint
	nextID int
	cur    *emu.Machine
	logger *slog.Logger
}

// New creates an empty engine. Call Close to release the Lua state.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		L:      lua.NewState(lua.Options{SkipOpenLibs: true}),
		byAddr: make(map[uint16][]*breakpoint),
		byID:   make(map[int]*breakpoint),
		nextID: 1,
		logger: logger,
	}
	lua.OpenBase(e.L)
	lua.OpenMath(e.L)
	e.L.SetGlobal("peek", e.L.NewFunction(e.peek))
	return e
}

// Close releases the Lua state.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.L.Close()
}

// Add sets a breakpoint at addr. A non-empty condition is a Lua expression;
// the breakpoint only triggers when it evaluates true.
func (e *Engine) Add(addr uint16, condition string) (Breakpoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	bp := &breakpoint{Breakpoint: Breakpoint{
		ID:        e.nextID,
		Addr:      addr,
		Condition: condition,
		Enabled:   true,
	}}
	if condition != "" {
		fn, err := e.L.LoadString("return (" + condition + ")")
		if err != nil {
			return Breakpoint{}, fmt.Errorf("breakpoint condition %q: %w", condition, err)
		}
		bp.fn = fn
	}

	e.nextID++
	e.byID[bp.ID] = bp
	e.byAddr[addr] = append(e.byAddr[addr], bp)
	return bp.Breakpoint, nil
}

// Remove deletes a breakpoint.
func (e *Engine) Remove(id int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	bp, ok := e.byID[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoBreakpoint, id)
	}
	delete(e.byID, id)

	list := e.byAddr[bp.Addr]
	for i, b := range list {
		if b == bp {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(e.byAddr, bp.Addr)
	} else {
		e.byAddr[bp.Addr] = list
	}
	return nil
}

// Enable turns a breakpoint on or off without removing it.
func (e *Engine) Enable(id int, on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	bp, ok := e.byID[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoBreakpoint, id)
	}
	bp.Enabled = on
	return nil
}

// Clear removes every breakpoint.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	clear(e.byAddr)
	clear(e.byID)
}

// List returns every breakpoint ordered by id.
func (e *Engine) List() []Breakpoint {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Breakpoint, 0, len(e.byID))
	for _, bp := range e.byID {
		out = append(out, bp.Breakpoint)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ShouldBreak reports whether an enabled breakpoint at the current PC
// triggers. A condition that fails to evaluate triggers the breakpoint so
// the failure is noticed.
func (e *Engine) ShouldBreak(m *emu.Machine) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	cpu := m.CPU()
	list := e.byAddr[cpu.PC]
	if len(list) == 0 {
		return false
	}

	hit := false
	for _, bp := range list {
		if !bp.Enabled {
			continue
		}
		if bp.fn != nil && !e.eval(bp, m, cpu) {
			continue
		}
		bp.Hits++
		hit = true
	}
	return hit
}

// eval runs a breakpoint condition with the machine state as globals.
func (e *Engine) eval(bp *breakpoint, m *emu.Machine, cpu emu.CPUState) bool {
	L := e.L
	L.SetGlobal("pc", lua.LNumber(cpu.PC))
	L.SetGlobal("af", lua.LNumber(cpu.AF))
	L.SetGlobal("a", lua.LNumber(cpu.AF>>8))
	L.SetGlobal("f", lua.LNumber(cpu.AF&0xFF))
	L.SetGlobal("bc", lua.LNumber(cpu.BC))
	L.SetGlobal("de", lua.LNumber(cpu.DE))
	L.SetGlobal("hl", lua.LNumber(cpu.HL))
	L.SetGlobal("b", lua.LNumber(cpu.BC>>8))
	L.SetGlobal("c", lua.LNumber(cpu.BC&0xFF))
	L.SetGlobal("d", lua.LNumber(cpu.DE>>8))
	L.SetGlobal("e", lua.LNumber(cpu.DE&0xFF))
	L.SetGlobal("h", lua.LNumber(cpu.HL>>8))
	L.SetGlobal("l", lua.LNumber(cpu.HL&0xFF))
	L.SetGlobal("af_", lua.LNumber(cpu.AF_))
	L.SetGlobal("bc_", lua.LNumber(cpu.BC_))
	L.SetGlobal("de_", lua.LNumber(cpu.DE_))
	L.SetGlobal("hl_", lua.LNumber(cpu.HL_))
	L.SetGlobal("ix", lua.LNumber(cpu.IX))
	L.SetGlobal("iy", lua.LNumber(cpu.IY))
	L.SetGlobal("sp", lua.LNumber(cpu.SP))
	L.SetGlobal("i", lua.LNumber(cpu.I))
	L.SetGlobal("r", lua.LNumber(cpu.R))
	L.SetGlobal("iff1", lua.LBool(cpu.IFF1))
	L.SetGlobal("iff2", lua.LBool(cpu.IFF2))
	L.SetGlobal("im", lua.LNumber(cpu.IM))
	L.SetGlobal("frame", lua.LNumber(m.ULA().Frames()))
	L.SetGlobal("tact", lua.LNumber(cpu.FrameTact))

	e.cur = m
	defer func() { e.cur = nil }()

	L.Push(bp.fn)
	if err := L.PCall(0, 1, nil); err != nil {
		e.logger.Warn("breakpoint condition failed", "id", bp.ID, "condition", bp.Condition, "error", err)
		return true
	}
	v := L.Get(-1)
	L.Pop(1)
	return lua.LVAsBool(v)
}

// peek is the Lua peek(addr) builtin.
func (e *Engine) peek(L *lua.LState) int {
	addr := L.CheckInt(1)
	if e.cur == nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(e.cur.Peek(uint16(addr))))
	return 1
}
