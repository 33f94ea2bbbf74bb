package emu

import "fmt"

const (
	pageSize   = 0x4000
	ram48Banks = 3
	ram128Bank = 8
)

// Port 0x7FFD bits.
const (
	paging7FFDBank   = 0x07
	paging7FFDShadow = 0x08
	paging7FFDROM    = 0x10
	paging7FFDLock   = 0x20
)

// Port 0x1FFD bits (+3 only).
const (
	paging1FFDSpecial = 0x01
	paging1FFDConfig  = 0x06
	paging1FFDROMHigh = 0x04
	paging1FFDMotor   = 0x08
)

// specialPaging lists the RAM banks of the four +3 all-RAM configurations.
var specialPaging = [4][4]int{
	{0, 1, 2, 3},
	{4, 5, 6, 7},
	{4, 5, 6, 3},
	{4, 7, 6, 3},
}

// BankKind distinguishes ROM pages from RAM banks in memory queries.
type BankKind int

const (
	BankROM BankKind = iota
	BankRAM
)

// Slot describes what is mapped into one 16K slot of the CPU address space.
type Slot struct {
	Kind      BankKind
	Index     int
	Contended bool
}

// MemoryLayout reports the variant-specific paging state.
type MemoryLayout struct {
	ROMPages    int
	RAMBanks    int
	Slots       [4]Slot
	ScreenBank  int
	SpecialMode bool
	Locked      bool
}

// Memory implements the paged address space of every supported variant.
//
// 48K:
//
//	0x0000-0x3FFF  ROM
//	0x4000-0x7FFF  RAM bank 0 (contended, screen)
//	0x8000-0xFFFF  RAM banks 1-2
//
// 128K / +3:
//
//	0x0000-0x3FFF  ROM page (0x7FFD bit 4, +3 adds 0x1FFD bit 2)
//	0x4000-0x7FFF  RAM bank 5
//	0x8000-0xBFFF  RAM bank 2
//	0xC000-0xFFFF  RAM bank selected by 0x7FFD bits 0-2
type Memory struct {
	id  MachineID
	rom [][]byte
	ram [][]byte

	port7FFD byte
	port1FFD byte

	slots [4]Slot
	pages [4][]byte
}

// NewMemory allocates ROM pages and RAM banks for the variant.
func NewMemory(id MachineID) *Memory {
	m := &Memory{id: id}
	m.rom = make([][]byte, id.ROMPages())
	for i := range m.rom {
		m.rom[i] = make([]byte, pageSize)
	}
	banks := ram48Banks
	if id != Spectrum48 {
		banks = ram128Bank
	}
	m.ram = make([][]byte, banks)
	for i := range m.ram {
		m.ram[i] = make([]byte, pageSize)
	}
	m.remap()
	return m
}

// LoadROM copies an image into consecutive ROM pages starting at page.
// Images longer than the remaining pages are truncated.
func (m *Memory) LoadROM(page int, data []byte) error {
	if page < 0 || page >= len(m.rom) {
		return fmt.Errorf("rom page %d out of range (variant has %d)", page, len(m.rom))
	}
	for p := page; p < len(m.rom) && len(data) > 0; p++ {
		n := copy(m.rom[p], data)
		data = data[n:]
	}
	return nil
}

// Reset clears RAM and paging registers. ROM contents are kept.
func (m *Memory) Reset() {
	for _, bank := range m.ram {
		clear(bank)
	}
	m.port7FFD = 0
	m.port1FFD = 0
	m.remap()
}

// Read returns the byte at addr in the current CPU view.
func (m *Memory) Read(addr uint16) byte {
	return m.pages[addr>>14][addr&0x3FFF]
}

// Write stores val at addr unless the slot holds ROM.
func (m *Memory) Write(addr uint16, val byte) {
	slot := addr >> 14
	if m.slots[slot].Kind == BankROM {
		return
	}
	m.pages[slot][addr&0x3FFF] = val
}

// Contended reports whether accesses to addr are subject to ULA contention.
func (m *Memory) Contended(addr uint16) bool {
	return m.slots[addr>>14].Contended
}

// ScreenBank returns the RAM bank the ULA displays.
func (m *Memory) ScreenBank() int {
	if m.id == Spectrum48 {
		return 0
	}
	if m.port7FFD&paging7FFDShadow != 0 {
		return 7
	}
	return 5
}

// ScreenByte reads an offset within the displayed screen bank.
func (m *Memory) ScreenByte(offset uint16) byte {
	return m.ram[m.ScreenBank()][offset&0x3FFF]
}

// Locked reports whether 0x7FFD paging has been disabled until reset.
func (m *Memory) Locked() bool {
	return m.id != Spectrum48 && m.port7FFD&paging7FFDLock != 0
}

// WritePort7FFD updates 128K paging. Writes are ignored once locked.
func (m *Memory) WritePort7FFD(val byte) {
	if m.id == Spectrum48 || m.Locked() {
		return
	}
	m.port7FFD = val
	m.remap()
}

// WritePort1FFD updates +3 paging. Writes are ignored once locked.
func (m *Memory) WritePort1FFD(val byte) {
	if m.id != SpectrumP3 || m.Locked() {
		return
	}
	m.port1FFD = val
	m.remap()
}

// Port7FFD returns the last value latched by the 128K paging port.
func (m *Memory) Port7FFD() byte {
	return m.port7FFD
}

// Port1FFD returns the last value latched by the +3 paging port.
func (m *Memory) Port1FFD() byte {
	return m.port1FFD
}

// MotorOn reports the +3 disk motor bit.
func (m *Memory) MotorOn() bool {
	return m.id == SpectrumP3 && m.port1FFD&paging1FFDMotor != 0
}

// Layout returns the current paging configuration.
func (m *Memory) Layout() MemoryLayout {
	return MemoryLayout{
		ROMPages:    len(m.rom),
		RAMBanks:    len(m.ram),
		Slots:       m.slots,
		ScreenBank:  m.ScreenBank(),
		SpecialMode: m.id == SpectrumP3 && m.port1FFD&paging1FFDSpecial != 0,
		Locked:      m.Locked(),
	}
}

// ReadBank copies bytes from a ROM page or RAM bank regardless of paging
// and returns the number of bytes copied.
func (m *Memory) ReadBank(kind BankKind, index int, offset uint16, buf []byte) int {
	var src [][]byte
	if kind == BankROM {
		src = m.rom
	} else {
		src = m.ram
	}
	if index < 0 || index >= len(src) || int(offset) >= pageSize {
		return 0
	}
	return copy(buf, src[index][offset:])
}

// bankContended reports whether a RAM bank sits on the contended bus.
func (m *Memory) bankContended(bank int) bool {
	switch m.id {
	case Spectrum48:
		return bank == 0
	case Spectrum128:
		return bank&1 == 1
	default:
		return bank >= 4
	}
}

// remap rebuilds the slot table after a paging change.
func (m *Memory) remap() {
	if m.id == Spectrum48 {
		m.setSlot(0, BankROM, 0)
		for i := 0; i < ram48Banks; i++ {
			m.setSlot(i+1, BankRAM, i)
		}
		return
	}

	if m.id == SpectrumP3 && m.port1FFD&paging1FFDSpecial != 0 {
		cfg := specialPaging[(m.port1FFD&paging1FFDConfig)>>1]
		for i, bank := range cfg {
			m.setSlot(i, BankRAM, bank)
		}
		return
	}

	rom := int(m.port7FFD&paging7FFDROM) >> 4
	if m.id == SpectrumP3 && m.port1FFD&paging1FFDROMHigh != 0 {
		rom |= 2
	}
	m.setSlot(0, BankROM, rom)
	m.setSlot(1, BankRAM, 5)
	m.setSlot(2, BankRAM, 2)
	m.setSlot(3, BankRAM, int(m.port7FFD&paging7FFDBank))
}

func (m *Memory) setSlot(slot int, kind BankKind, index int) {
	if kind == BankROM {
		m.slots[slot] = Slot{Kind: BankROM, Index: index}
		m.pages[slot] = m.rom[index]
		return
	}
	m.slots[slot] = Slot{Kind: BankRAM, Index: index, Contended: m.bankContended(index)}
	m.pages[slot] = m.ram[index]
}
