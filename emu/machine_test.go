package emu

import (
	"errors"
	"io"
	"testing"
)

// makeTestMachine builds a machine whose ROM page 0 starts with program.
// The rest of the ROM is zero (NOP).
func makeTestMachine(t *testing.T, id MachineID, program ...byte) *Machine {
	t.Helper()
	m, err := NewMachine(id, WithROM(0, program))
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	return m
}

func TestCreateMachine_IDs(t *testing.T) {
	tests := []struct {
		id   string
		want MachineID
	}{
		{"sp48", Spectrum48},
		{"sp128", Spectrum128},
		{"spp3", SpectrumP3},
	}
	for _, tt := range tests {
		m, err := CreateMachine(tt.id)
		if err != nil {
			t.Fatalf("%s: %v", tt.id, err)
		}
		if m.ID() != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.id, tt.want, m.ID())
		}
	}
}

func TestCreateMachine_Unknown(t *testing.T) {
	_, err := CreateMachine("zx81")
	if !errors.Is(err, ErrUnknownMachine) {
		t.Errorf("expected ErrUnknownMachine, got %v", err)
	}
}

func TestMachine_NOPFrame(t *testing.T) {
	m := makeTestMachine(t, Spectrum48)

	n := 0
	for {
		if c := m.ExecuteInstruction(); c != 4 {
			t.Fatalf("instruction %d: expected 4 tacts, got %d", n, c)
		}
		n++
		if m.FrameEnded() {
			break
		}
	}

	if n != 69888/4 {
		t.Errorf("expected %d NOPs per frame, got %d", 69888/4, n)
	}
	if m.ULA().Frames() != 1 {
		t.Errorf("expected 1 frame, got %d", m.ULA().Frames())
	}
	if m.CPU().FrameTact != 0 {
		t.Errorf("expected frame tact 0, got %d", m.CPU().FrameTact)
	}
	if m.ULA().TotalContentionDelaySinceStart() != 0 {
		t.Error("ROM execution should never be contended")
	}
}

func TestMachine_ContendedReadsAddDelay(t *testing.T) {
	// LD HL,0x4000; loop: LD A,(HL); JR loop
	m := makeTestMachine(t, Spectrum48, 0x21, 0x00, 0x40, 0x7E, 0x18, 0xFD)

	var last uint64
	for i := 0; i < 20000; i++ {
		m.ExecuteInstruction()
		total := m.ULA().TotalContentionDelaySinceStart()
		if total < last {
			t.Fatalf("contention decreased from %d to %d", last, total)
		}
		last = total
	}

	if last == 0 {
		t.Error("expected contention from reads of 0x4000 during the display")
	}
	if m.CPU().TStates != uint64(m.ULA().Frames())*69888+uint64(m.CPU().FrameTact) {
		t.Error("executed tacts should match frames and frame tact")
	}
}

func TestMachine_OutSetsBorderAndBeeper(t *testing.T) {
	// LD A,0x15; OUT (0xFE),A; HALT
	m := makeTestMachine(t, Spectrum48, 0x3E, 0x15, 0xD3, 0xFE, 0x76)
	for i := 0; i < 3; i++ {
		m.ExecuteInstruction()
	}

	if m.ULA().BorderColor() != 5 {
		t.Errorf("expected border 5, got %d", m.ULA().BorderColor())
	}
	if !m.ULA().EarBit() || !m.Beeper().Level() {
		t.Error("expected EAR and beeper level high")
	}
	if m.ULA().MicBit() {
		t.Error("expected MIC low")
	}
	if !m.CPU().Halted {
		t.Error("expected CPU halted")
	}
}

func TestMachine_KeyboardPortRead(t *testing.T) {
	// LD A,0xF7; IN A,(0xFE)
	m := makeTestMachine(t, Spectrum48, 0x3E, 0xF7, 0xDB, 0xFE)
	m.Keyboard().SetStatus(Key1, true)
	m.ExecuteInstruction()
	m.ExecuteInstruction()

	a := uint8(m.CPU().AF >> 8)
	if a != 0xBE {
		t.Errorf("expected 0xBE, got 0x%02X", a)
	}
}

func TestMachine_InterruptAccepted(t *testing.T) {
	// IM 1; EI; HALT
	m := makeTestMachine(t, Spectrum48, 0xED, 0x56, 0xFB, 0x76)

	accepted := false
	for i := 0; i < 10; i++ {
		m.ExecuteInstruction()
		if m.InterruptAccepted() {
			accepted = true
			break
		}
	}
	if !accepted {
		t.Fatal("expected the frame interrupt to be accepted")
	}
	cpu := m.CPU()
	if cpu.PC < 0x0038 || cpu.PC > 0x0039 {
		t.Errorf("expected PC at the IM 1 handler, got 0x%04X", cpu.PC)
	}
	if cpu.IFF1 {
		t.Error("IFF1 should be cleared by the acknowledge")
	}
	if cpu.IM != 1 {
		t.Errorf("expected IM 1, got %d", cpu.IM)
	}
}

func TestMachine_InterruptWindowCloses(t *testing.T) {
	// 10 x NOP; IM 1; EI; JR $
	prog := make([]byte, 10)
	prog = append(prog, 0xED, 0x56, 0xFB, 0x18, 0xFE)
	m := makeTestMachine(t, Spectrum48, prog...)

	for !m.FrameEnded() {
		m.ExecuteInstruction()
		if m.InterruptAccepted() {
			t.Fatalf("interrupt accepted at tact %d, after the INT window", m.CPU().FrameTact)
		}
	}

	accepted := false
	for i := 0; i < 10 && !accepted; i++ {
		m.ExecuteInstruction()
		accepted = m.InterruptAccepted()
	}
	if !accepted {
		t.Error("expected the interrupt at the start of the next frame")
	}
}

func TestMachine_128KPagingPort(t *testing.T) {
	// LD BC,0x7FFD; LD A,0x13; OUT (C),A
	m := makeTestMachine(t, Spectrum128, 0x01, 0xFD, 0x7F, 0x3E, 0x13, 0xED, 0x79)
	for i := 0; i < 3; i++ {
		m.ExecuteInstruction()
	}

	layout := m.MemoryLayout()
	if layout.Slots[3].Index != 3 || !layout.Slots[3].Contended {
		t.Errorf("expected contended bank 3 at 0xC000, got %+v", layout.Slots[3])
	}
	if layout.Slots[0].Kind != BankROM || layout.Slots[0].Index != 1 {
		t.Errorf("expected ROM 1 at 0x0000, got %+v", layout.Slots[0])
	}
}

func TestMachine_IOContentionPatterns(t *testing.T) {
	m := makeTestMachine(t, Spectrum48)
	c := Timing48.FirstContendedTact

	tests := []struct {
		name    string
		port    uint16
		tact    int
		delay   int
		elapsed int
	}{
		{"C:1,C:3", 0x40FE, c, 6, 10},
		{"C:1,C:1,C:1,C:1", 0x40FF, c, 12, 16},
		{"N:1,C:3", 0x00FE, c - 1, 6, 10},
		{"N:4", 0x00FF, c, 0, 4},
	}
	for _, tt := range tests {
		m.bus.begin(tt.tact, 0)
		m.bus.ioCycle(tt.port)
		if m.bus.delay != tt.delay || m.bus.elapsed != tt.elapsed {
			t.Errorf("%s: expected delay %d elapsed %d, got %d %d",
				tt.name, tt.delay, tt.elapsed, m.bus.delay, m.bus.elapsed)
		}
	}
}

func TestMachine_P3HasNoIOContention(t *testing.T) {
	m := makeTestMachine(t, SpectrumP3)
	m.bus.begin(TimingP3.FirstContendedTact+2, 0)
	m.bus.ioCycle(0x40FE)
	if m.bus.delay != 0 || m.bus.elapsed != 4 {
		t.Errorf("expected no delay, got delay %d elapsed %d", m.bus.delay, m.bus.elapsed)
	}
}

func TestMachine_P3DiskPorts(t *testing.T) {
	m := makeTestMachine(t, SpectrumP3)
	if err := m.InsertDisk(makeTestDisk(t, 1)); err != nil {
		t.Fatalf("InsertDisk: %v", err)
	}

	m.bus.Out(0x1FFD, paging1FFDMotor)
	if !m.FDC().Motor() {
		t.Error("expected motor on after 0x1FFD bit 3")
	}
	if got := m.bus.In(0x2FFD); got != 0x80 {
		t.Errorf("expected FDC status 0x80, got 0x%02X", got)
	}

	m.bus.Out(0x3FFD, cmdSenseDrive)
	m.bus.Out(0x3FFD, 0x00)
	if got := m.bus.In(0x3FFD); got != 0x70 {
		t.Errorf("expected ST3 0x70, got 0x%02X", got)
	}
}

func TestMachine_InsertDiskRequiresP3(t *testing.T) {
	m := makeTestMachine(t, Spectrum48)
	if err := m.InsertDisk(nil); err == nil {
		t.Error("expected error inserting a disk into a 48K")
	}
}

func TestMachine_FloatingBusPort(t *testing.T) {
	m := makeTestMachine(t, Spectrum48)
	m.mem.Write(0x4000, 0x5A)

	start := Timing48.FirstContendedTact + Timing48.FloatingBusOffset
	// Port 0x00FF is uncontended and takes the N:4 pattern, so the read
	// happens four tacts after the cursor.
	m.bus.begin(start-4, 0)
	if got := m.bus.In(0x00FF); got != 0x5A {
		t.Errorf("expected floating bus 0x5A, got 0x%02X", got)
	}
	m.bus.begin(0, 0)
	if got := m.bus.In(0x00FF); got != 0xFF {
		t.Errorf("expected idle bus 0xFF, got 0x%02X", got)
	}
}

func TestMachine_ResetKeepsROMClearsRAM(t *testing.T) {
	m := makeTestMachine(t, Spectrum48, 0x3E)
	m.mem.Write(0x8000, 0x99)
	m.ExecuteFrame()

	m.Reset()

	if m.Peek(0x0000) != 0x3E {
		t.Error("reset should keep ROM")
	}
	if m.Peek(0x8000) != 0 {
		t.Error("reset should clear RAM")
	}
	cpu := m.CPU()
	if cpu.PC != 0 || cpu.TStates != 0 || cpu.FrameTact != 0 {
		t.Errorf("expected power-on state, got %+v", cpu)
	}
	if m.ULA().Frames() != 0 {
		t.Error("reset should clear the frame counter")
	}
}

func TestMachine_ReadMemoryWraps(t *testing.T) {
	m := makeTestMachine(t, Spectrum48, 0xAB)
	m.mem.Write(0xFFFF, 0xCD)

	buf := make([]byte, 2)
	m.ReadMemory(0xFFFF, buf)
	if buf[0] != 0xCD || buf[1] != 0xAB {
		t.Errorf("expected [CD AB], got % X", buf)
	}
}

func TestMachine_FlowAt(t *testing.T) {
	m := makeTestMachine(t, Spectrum48, 0xCD, 0x00, 0x80)
	if f := m.FlowAt(0); f.Kind != FlowCall || f.Next(0) != 3 {
		t.Errorf("expected call of length 3, got %+v", f)
	}
}

func TestMachine_Peek(t *testing.T) {
	m := makeTestMachine(t, Spectrum48, 0x3E, 0x42)
	m.mem.Write(0xC000, 0x5A)

	if got := m.Peek(0x0001); got != 0x42 {
		t.Errorf("expected ROM byte 0x42, got 0x%02X", got)
	}
	if got := m.Peek(0xC000); got != 0x5A {
		t.Errorf("expected RAM byte 0x5A, got 0x%02X", got)
	}
	if _, ok := any(m).(io.ByteReader); ok {
		t.Error("Machine should not look like an io.ByteReader")
	}
}
