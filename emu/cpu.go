package emu

// cpuBus implements z80.Bus for the Spectrum address and port space.
//
// The core reports an instruction's cost only after it completes, so the
// bus keeps its own cursor of elapsed tacts within the instruction. Each
// opcode fetch advances the cursor by 4 and each operand access by 3;
// contention is looked up at the cursor and added to both the cursor and
// the instruction's delay. Internal cycles the core spends between bus
// accesses are not visible here and are not contended.
type cpuBus struct {
	m *Machine

	startTact int    // frame tact at instruction start
	startAbs  uint64 // absolute tact at instruction start
	elapsed   int
	delay     int
}

// begin resets the cursor for a new instruction.
func (b *cpuBus) begin(frameTact int, abs uint64) {
	b.startTact = frameTact
	b.startAbs = abs
	b.elapsed = 0
	b.delay = 0
}

func (b *cpuBus) frameTact() int {
	return b.startTact + b.elapsed
}

func (b *cpuBus) absTact() uint64 {
	return b.startAbs + uint64(b.elapsed)
}

// contend injects the wait states due at the cursor.
func (b *cpuBus) contend() {
	d := b.m.screen.ContentionAt(b.frameTact())
	b.elapsed += d
	b.delay += d
}

// memCycle accounts a memory access of n tacts at addr.
func (b *cpuBus) memCycle(addr uint16, n int) {
	if b.m.mem.Contended(addr) {
		b.contend()
	}
	b.elapsed += n
}

// Fetch reads an opcode byte during an M1 cycle.
func (b *cpuBus) Fetch(addr uint16) uint8 {
	b.memCycle(addr, 4)
	return b.m.mem.Read(addr)
}

func (b *cpuBus) Read(addr uint16) uint8 {
	b.memCycle(addr, 3)
	return b.m.mem.Read(addr)
}

func (b *cpuBus) Write(addr uint16, val uint8) {
	b.memCycle(addr, 3)
	b.m.mem.Write(addr, val)
}

// ioCycle applies the port contention pattern selected by the high byte
// (contended or not) and bit 0 (ULA or not):
//
//	high C, ULA      C:1, C:3
//	high C, not ULA  C:1, C:1, C:1, C:1
//	high N, ULA      N:1, C:3
//	high N, not ULA  N:4
func (b *cpuBus) ioCycle(port uint16) {
	if !b.m.timing.IOContention {
		b.elapsed += 4
		return
	}
	high := b.m.mem.Contended(port)
	ula := port&1 == 0
	switch {
	case high && ula:
		b.contend()
		b.elapsed++
		b.contend()
		b.elapsed += 3
	case high:
		for i := 0; i < 4; i++ {
			b.contend()
			b.elapsed++
		}
	case ula:
		b.elapsed++
		b.contend()
		b.elapsed += 3
	default:
		b.elapsed += 4
	}
}

// In reads from an I/O port.
func (b *cpuBus) In(port uint16) uint8 {
	b.ioCycle(port)
	m := b.m

	if m.id == SpectrumP3 {
		switch port & 0xF002 {
		case 0x2000:
			return m.fdc.ReadStatus()
		case 0x3000:
			return m.fdc.ReadData()
		}
	}

	if port&1 == 0 {
		val := m.keyboard.GetKeyLineStatus(port)&0x1F | 0xA0
		ear := m.ula.earBit
		if m.tape.Playing() {
			ear = m.tape.EarBit(b.absTact())
		}
		if ear {
			val |= 0x40
		}
		return val
	}

	return m.ula.floatingBusAt(b.frameTact())
}

// Out writes to an I/O port.
func (b *cpuBus) Out(port uint16, val uint8) {
	b.ioCycle(port)
	m := b.m

	if port&1 == 0 {
		m.ula.writePort(val)
		if m.ula.earBit != m.beeper.Level() {
			m.beeper.SetLevel(m.ula.earBit, b.absTact())
		}
	}

	switch m.id {
	case Spectrum128:
		if port&0x8002 == 0 {
			m.mem.WritePort7FFD(val)
		}
	case SpectrumP3:
		switch {
		case port&0xC002 == 0x4000:
			m.mem.WritePort7FFD(val)
		case port&0xF002 == 0x1000:
			m.mem.WritePort1FFD(val)
			m.fdc.SetMotor(m.mem.MotorOn())
		case port&0xF002 == 0x3000:
			m.fdc.WriteData(val)
		}
	}
}

// CPUState is a snapshot of the processor registers the machine exposes.
type CPUState struct {
	AF, BC, DE, HL     uint16
	AF_, BC_, DE_, HL_ uint16
	IX, IY             uint16
	SP, PC             uint16
	I, R               uint8
	IFF1, IFF2         bool
	IM                 uint8
	Halted             bool

	// FrameTact is the tact within the current frame.
	FrameTact int
	// TStates counts every tact executed since reset, contention included.
	TStates uint64
}
