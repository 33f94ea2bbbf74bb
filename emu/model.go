package emu

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMachine is returned when a machine identifier is not recognized.
var ErrUnknownMachine = errors.New("unknown machine id")

// MachineID selects one of the supported hardware variants.
type MachineID int

const (
	Spectrum48  MachineID = iota // 48K, single ROM, flat RAM
	Spectrum128                  // 128K, two ROMs, 0x7FFD paging
	SpectrumP3                   // +3, four ROMs, 0x1FFD paging, uPD765 FDC
)

// machineIDs maps the external identifier strings to variants.
var machineIDs = map[string]MachineID{
	"sp48":  Spectrum48,
	"sp128": Spectrum128,
	"spp3":  SpectrumP3,
}

// ParseMachineID converts an identifier such as "sp48" into a MachineID.
func ParseMachineID(s string) (MachineID, error) {
	id, ok := machineIDs[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMachine, s)
	}
	return id, nil
}

// String returns the external identifier of the variant.
func (id MachineID) String() string {
	switch id {
	case Spectrum48:
		return "sp48"
	case Spectrum128:
		return "sp128"
	case SpectrumP3:
		return "spp3"
	default:
		return fmt.Sprintf("MachineID(%d)", int(id))
	}
}

// Valid reports whether id names a supported variant.
func (id MachineID) Valid() bool {
	return id >= Spectrum48 && id <= SpectrumP3
}

// MachineIDs returns the identifiers of every supported variant.
func MachineIDs() []MachineID {
	return []MachineID{Spectrum48, Spectrum128, SpectrumP3}
}

// ModelTiming holds the clock and raster constants of a variant.
type ModelTiming struct {
	ClockHz            int // Z80 clock frequency
	TactsPerLine       int
	Lines              int
	FirstDisplayLine   int
	FirstContendedTact int
	FloatingBusOffset  int // tacts between contention start and first fetch
	InterruptTacts     int // length of the INT pulse at frame start
	ContentionPattern  [8]uint8
	IOContention       bool
	FloatingBus        bool
}

// TactsPerFrame returns the length of one frame in T-states.
func (t ModelTiming) TactsPerFrame() int {
	return t.TactsPerLine * t.Lines
}

// 48K: 3.5 MHz, 224 tacts x 312 lines
var Timing48 = ModelTiming{
	ClockHz:            3500000,
	TactsPerLine:       224,
	Lines:              312,
	FirstDisplayLine:   64,
	FirstContendedTact: 14335,
	FloatingBusOffset:  3,
	InterruptTacts:     32,
	ContentionPattern:  [8]uint8{6, 5, 4, 3, 2, 1, 0, 0},
	IOContention:       true,
	FloatingBus:        true,
}

// 128K: 3.5469 MHz, 228 tacts x 311 lines
var Timing128 = ModelTiming{
	ClockHz:            3546900,
	TactsPerLine:       228,
	Lines:              311,
	FirstDisplayLine:   63,
	FirstContendedTact: 14361,
	FloatingBusOffset:  4,
	InterruptTacts:     36,
	ContentionPattern:  [8]uint8{6, 5, 4, 3, 2, 1, 0, 0},
	IOContention:       true,
	FloatingBus:        true,
}

// +3: same raster as the 128K, gate array contention, no I/O contention
// and no floating bus on unattached ports.
var TimingP3 = ModelTiming{
	ClockHz:            3546900,
	TactsPerLine:       228,
	Lines:              311,
	FirstDisplayLine:   63,
	FirstContendedTact: 14361,
	FloatingBusOffset:  4,
	InterruptTacts:     36,
	ContentionPattern:  [8]uint8{1, 0, 7, 6, 5, 4, 3, 2},
}

// TimingFor returns the timing constants of a variant.
func TimingFor(id MachineID) ModelTiming {
	switch id {
	case Spectrum128:
		return Timing128
	case SpectrumP3:
		return TimingP3
	default:
		return Timing48
	}
}

// ROMPages returns the number of 16K ROM pages the variant maps.
func (id MachineID) ROMPages() int {
	switch id {
	case Spectrum128:
		return 2
	case SpectrumP3:
		return 4
	default:
		return 1
	}
}
