package emu

import (
	"fmt"

	"github.com/user-none/emzx/disk"
	"github.com/user-none/go-chip-z80"
)

const opDI = 0xF3

// Option configures a Machine at construction.
type Option func(*Machine) error

// WithROM loads a ROM image starting at the given page. Images spanning
// several pages (a 32K 128K ROM, a 64K +3 ROM) fill consecutive pages.
func WithROM(page int, data []byte) Option {
	return func(m *Machine) error {
		return m.mem.LoadROM(page, data)
	}
}

// WithDisk inserts a disk into the +3 drive.
func WithDisk(d *disk.Disk) Option {
	return func(m *Machine) error {
		return m.InsertDisk(d)
	}
}

// WithTape loads tape blocks.
func WithTape(blocks []TapeBlock) Option {
	return func(m *Machine) error {
		m.tape.Load(blocks)
		return nil
	}
}

// Machine is one Spectrum variant: CPU, paged memory and devices, advanced
// one instruction at a time. A Machine is not safe for concurrent use;
// the controller's execution goroutine is its only caller.
type Machine struct {
	id     MachineID
	timing ModelTiming

	cpu      *z80.CPU
	bus      *cpuBus
	mem      *Memory
	screen   *ScreenTiming
	ula      *ULA
	keyboard *Keyboard
	beeper   *Beeper
	tape     *Tape
	fdc      *FDC

	tstates    uint64
	frameEnded bool

	// INT is asserted for timing.InterruptTacts at the start of every
	// frame, or until the CPU acknowledges it.
	intActive   bool
	intAccepted bool
}

// NewMachine builds a machine of the given variant.
func NewMachine(id MachineID, opts ...Option) (*Machine, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMachine, int(id))
	}

	timing := TimingFor(id)
	mem := NewMemory(id)
	screen := NewScreenTiming(timing)

	m := &Machine{
		id:       id,
		timing:   timing,
		mem:      mem,
		screen:   screen,
		ula:      NewULA(screen, mem),
		keyboard: NewKeyboard(),
		beeper:   NewBeeper(timing.ClockHz),
		tape:     NewTape(),
		fdc:      NewFDC(),
	}
	m.bus = &cpuBus{m: m}
	m.cpu = z80.New(m.bus)

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	m.Reset()
	return m, nil
}

// CreateMachine builds a machine from its textual id ("sp48", "sp128",
// "spp3").
func CreateMachine(id string, opts ...Option) (*Machine, error) {
	mid, err := ParseMachineID(id)
	if err != nil {
		return nil, err
	}
	return NewMachine(mid, opts...)
}

// Reset performs a power-on reset. ROM contents, the inserted disk and
// loaded tape survive; the tape is rewound.
func (m *Machine) Reset() {
	m.cpu.Reset()
	m.mem.Reset()
	m.ula.Reset()
	m.keyboard.Reset()
	m.beeper.Reset()
	m.tape.Rewind()
	m.fdc.Reset()
	m.fdc.SetMotor(false)

	m.tstates = 0
	m.frameEnded = false
	m.intAccepted = false
	m.setINT(true)
}

func (m *Machine) setINT(active bool) {
	m.intActive = active
	m.cpu.INT(active, 0xFF)
}

// ExecuteInstruction runs one instruction (or accepts a pending interrupt)
// and returns its cost in T-states, contention included.
func (m *Machine) ExecuteInstruction() int {
	m.frameEnded = false
	m.intAccepted = false

	var prevIFF1 bool
	var op byte
	if m.intActive {
		regs := m.cpu.Registers()
		prevIFF1 = regs.IFF1
		op = m.mem.Read(regs.PC)
	}

	m.bus.begin(m.ula.frameTact, m.tstates)
	cycles := m.cpu.Step()
	delay := m.bus.delay
	total := cycles + delay

	if m.intActive && prevIFF1 && op != opDI && !m.cpu.Registers().IFF1 {
		m.intAccepted = true
		m.setINT(false)
	}

	m.ula.addContention(delay)
	m.tstates += uint64(total)

	if m.ula.advance(total) {
		m.frameEnded = true
		m.beeper.endFrame(m.tstates)
		m.setINT(true)
	} else if m.intActive && m.ula.frameTact >= m.timing.InterruptTacts {
		m.setINT(false)
	}

	return total
}

// ExecuteFrame runs instructions until the current frame completes.
func (m *Machine) ExecuteFrame() {
	for {
		m.ExecuteInstruction()
		if m.frameEnded {
			return
		}
	}
}

// FrameEnded reports whether the last instruction crossed a frame boundary.
func (m *Machine) FrameEnded() bool {
	return m.frameEnded
}

// InterruptAccepted reports whether the last instruction was an interrupt
// acknowledge.
func (m *Machine) InterruptAccepted() bool {
	return m.intAccepted
}

// ID returns the machine variant.
func (m *Machine) ID() MachineID {
	return m.id
}

// Timing returns the variant's timing constants.
func (m *Machine) Timing() ModelTiming {
	return m.timing
}

// CPU returns a snapshot of the processor state.
func (m *Machine) CPU() CPUState {
	regs := m.cpu.Registers()
	return CPUState{
		AF:        regs.AF,
		BC:        regs.BC,
		DE:        regs.DE,
		HL:        regs.HL,
		AF_:       regs.AF_,
		BC_:       regs.BC_,
		DE_:       regs.DE_,
		HL_:       regs.HL_,
		IX:        regs.IX,
		IY:        regs.IY,
		SP:        regs.SP,
		PC:        regs.PC,
		I:         regs.I,
		R:         regs.R,
		IFF1:      regs.IFF1,
		IFF2:      regs.IFF2,
		IM:        regs.IM,
		Halted:    m.cpu.Halted(),
		FrameTact: m.ula.frameTact,
		TStates:   m.tstates,
	}
}

// Keyboard returns the key matrix.
func (m *Machine) Keyboard() *Keyboard {
	return m.keyboard
}

// ULA returns the raster and contention state.
func (m *Machine) ULA() *ULA {
	return m.ula
}

// Beeper returns the EAR audio generator.
func (m *Machine) Beeper() *Beeper {
	return m.beeper
}

// Tape returns the tape player.
func (m *Machine) Tape() *Tape {
	return m.tape
}

// PlayTape starts the tape at the current tact.
func (m *Machine) PlayTape() {
	m.tape.Play(m.tstates)
}

// FDC returns the floppy controller. It exists on every variant but is only
// reachable through ports on the +3.
func (m *Machine) FDC() *FDC {
	return m.fdc
}

// InsertDisk places d in the drive; nil ejects.
func (m *Machine) InsertDisk(d *disk.Disk) error {
	if m.id != SpectrumP3 {
		return fmt.Errorf("%s has no disk drive", m.id)
	}
	m.fdc.InsertDisk(d)
	return nil
}

// ReadMemory copies the CPU view starting at addr into buf, wrapping at
// 0xFFFF. It does not apply contention.
func (m *Machine) ReadMemory(addr uint16, buf []byte) {
	for i := range buf {
		buf[i] = m.mem.Read(addr + uint16(i))
	}
}

// Peek returns the byte at addr in the CPU view.
func (m *Machine) Peek(addr uint16) byte {
	return m.mem.Read(addr)
}

// ReadBank copies from a ROM page or RAM bank regardless of paging.
func (m *Machine) ReadBank(kind BankKind, index int, offset uint16, buf []byte) int {
	return m.mem.ReadBank(kind, index, offset, buf)
}

// MemoryLayout returns the current paging state.
func (m *Machine) MemoryLayout() MemoryLayout {
	return m.mem.Layout()
}

// FlowAt classifies the instruction at pc.
func (m *Machine) FlowAt(pc uint16) Flow {
	return DecodeFlow(m.mem.Read, pc)
}
