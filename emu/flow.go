package emu

// FlowKind classifies an instruction by how it transfers control, which is
// all the stepping commands need to know about it.
type FlowKind int

const (
	FlowNormal FlowKind = iota
	FlowCall            // CALL, CALL cc, RST
	FlowReturn          // RET, RET cc, RETN, RETI
	FlowRepeat          // LDIR and friends, DJNZ
	FlowHalt
)

func (k FlowKind) String() string {
	switch k {
	case FlowCall:
		return "call"
	case FlowReturn:
		return "return"
	case FlowRepeat:
		return "repeat"
	case FlowHalt:
		return "halt"
	default:
		return "normal"
	}
}

// Flow describes the instruction at an address. Length is only filled in
// for non-normal instructions.
type Flow struct {
	Kind   FlowKind
	Length int
}

// Next returns the address following the instruction at pc.
func (f Flow) Next(pc uint16) uint16 {
	return pc + uint16(f.Length)
}

// DecodeFlow classifies the instruction at pc using read to fetch bytes.
func DecodeFlow(read func(uint16) byte, pc uint16) Flow {
	op := read(pc)
	switch {
	case op == 0xCD, op&0xC7 == 0xC4:
		return Flow{Kind: FlowCall, Length: 3}
	case op&0xC7 == 0xC7:
		return Flow{Kind: FlowCall, Length: 1}
	case op == 0xC9, op&0xC7 == 0xC0:
		return Flow{Kind: FlowReturn, Length: 1}
	case op == 0x10:
		return Flow{Kind: FlowRepeat, Length: 2}
	case op == 0x76:
		return Flow{Kind: FlowHalt, Length: 1}
	case op == 0xED:
		ext := read(pc + 1)
		switch {
		case ext&0xC7 == 0x45:
			return Flow{Kind: FlowReturn, Length: 2}
		case ext&0xF4 == 0xB0:
			return Flow{Kind: FlowRepeat, Length: 2}
		}
	}
	return Flow{Kind: FlowNormal}
}
