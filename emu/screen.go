package emu

// RenderPhase is what the ULA is doing at a given frame tact.
type RenderPhase uint8

const (
	PhaseBlank   RenderPhase = iota // vertical sync or horizontal blanking
	PhaseBorder                     // border area is being drawn
	PhaseDisplay                    // paper area is being drawn
)

func (p RenderPhase) String() string {
	switch p {
	case PhaseBlank:
		return "blank"
	case PhaseBorder:
		return "border"
	case PhaseDisplay:
		return "display"
	default:
		return "unknown"
	}
}

// Screen geometry shared by every variant.
const (
	DisplayLines      = 192
	DisplayLineTacts  = 128
	borderRightTacts  = 24
	verticalSyncLines = 8
	screenBitmapSize  = 0x1800
	screenAttrOffset  = 0x1800
)

// RenderingTact is one entry of the rendering tact table.
type RenderingTact struct {
	Phase      RenderPhase
	Contention uint8  // wait states a contended access at this tact incurs
	Fetch      bool   // the ULA is fetching screen memory at this tact
	FetchAddr  uint16 // offset into the screen bank when Fetch is set
}

// ScreenTiming is the per-variant rendering tact table. It is computed
// once from ModelTiming and indexed by frame tact modulo frame length.
type ScreenTiming struct {
	timing ModelTiming
	table  []RenderingTact
}

// NewScreenTiming builds the rendering tact table for the given timing.
func NewScreenTiming(t ModelTiming) *ScreenTiming {
	frame := t.TactsPerFrame()
	st := &ScreenTiming{
		timing: t,
		table:  make([]RenderingTact, frame),
	}
	hblankStart := DisplayLineTacts + borderRightTacts
	hblankEnd := t.TactsPerLine - borderRightTacts
	lastDisplayLine := t.FirstDisplayLine + DisplayLines

	for tact := 0; tact < frame; tact++ {
		entry := &st.table[tact]

		line := tact / t.TactsPerLine
		px := tact % t.TactsPerLine
		switch {
		case line < verticalSyncLines:
			entry.Phase = PhaseBlank
		case px >= hblankStart && px < hblankEnd:
			entry.Phase = PhaseBlank
		case line >= t.FirstDisplayLine && line < lastDisplayLine && px < DisplayLineTacts:
			entry.Phase = PhaseDisplay
		default:
			entry.Phase = PhaseBorder
		}

		if d := tact - t.FirstContendedTact; d >= 0 {
			cline := d / t.TactsPerLine
			cpx := d % t.TactsPerLine
			if cline < DisplayLines && cpx < DisplayLineTacts {
				entry.Contention = t.ContentionPattern[cpx%8]
			}
		}

		if d := tact - t.FirstContendedTact - t.FloatingBusOffset; d >= 0 {
			fline := d / t.TactsPerLine
			fpx := d % t.TactsPerLine
			if fline < DisplayLines && fpx < DisplayLineTacts {
				col := uint16(fpx/8) * 2
				switch fpx % 8 {
				case 0:
					entry.Fetch, entry.FetchAddr = true, bitmapOffset(fline, col)
				case 1:
					entry.Fetch, entry.FetchAddr = true, attrOffset(fline, col)
				case 2:
					entry.Fetch, entry.FetchAddr = true, bitmapOffset(fline, col+1)
				case 3:
					entry.Fetch, entry.FetchAddr = true, attrOffset(fline, col+1)
				}
			}
		}
	}
	return st
}

// Timing returns the constants the table was built from.
func (st *ScreenTiming) Timing() ModelTiming {
	return st.timing
}

// TactsPerFrame returns the table length.
func (st *ScreenTiming) TactsPerFrame() int {
	return len(st.table)
}

// At returns the table entry for a tact, wrapping at the frame length.
func (st *ScreenTiming) At(tact int) RenderingTact {
	n := len(st.table)
	tact %= n
	if tact < 0 {
		tact += n
	}
	return st.table[tact]
}

// ContentionAt returns the wait states for an access at tact.
func (st *ScreenTiming) ContentionAt(tact int) int {
	return int(st.At(tact).Contention)
}

// bitmapOffset returns the screen-bank offset of the bitmap byte for
// display line y and character column x.
func bitmapOffset(y int, x uint16) uint16 {
	yy := uint16(y)
	return (yy&0xC0)<<5 | (yy&0x07)<<8 | (yy&0x38)<<2 | x
}

// attrOffset returns the screen-bank offset of the attribute byte for
// display line y and character column x.
func attrOffset(y int, x uint16) uint16 {
	return screenAttrOffset + uint16(y/8)*32 + x
}
