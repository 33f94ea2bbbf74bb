package emu

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTapeTruncated is returned when a TAP image ends inside a block.
var ErrTapeTruncated = errors.New("tap: truncated block")

// ROM loader pulse lengths in T-states.
const (
	pilotPulseTacts   = 2168
	headerPilotPulses = 8063
	dataPilotPulses   = 3223
	sync1Tacts        = 667
	sync2Tacts        = 735
	bit0Tacts         = 855
	bit1Tacts         = 1710
	blockPauseTacts   = 3500000
)

// TapeBlock is one block of a TAP image: flag byte, payload and checksum.
type TapeBlock struct {
	Data []byte
}

// Flag returns the first byte of the block (0x00 header, 0xFF data).
func (b TapeBlock) Flag() byte {
	if len(b.Data) == 0 {
		return 0
	}
	return b.Data[0]
}

// IsHeader reports whether the block uses the long header pilot tone.
func (b TapeBlock) IsHeader() bool {
	return b.Flag() < 0x80
}

// ChecksumValid reports whether the XOR of all bytes is zero.
func (b TapeBlock) ChecksumValid() bool {
	var x byte
	for _, v := range b.Data {
		x ^= v
	}
	return len(b.Data) > 0 && x == 0
}

// ParseTAP splits a TAP image into blocks. Each block is prefixed by its
// little-endian 16-bit length.
func ParseTAP(raw []byte) ([]TapeBlock, error) {
	var blocks []TapeBlock
	for off := 0; off < len(raw); {
		if off+2 > len(raw) {
			return nil, fmt.Errorf("%w: length prefix at offset %d", ErrTapeTruncated, off)
		}
		n := int(binary.LittleEndian.Uint16(raw[off:]))
		off += 2
		if off+n > len(raw) {
			return nil, fmt.Errorf("%w: block at offset %d needs %d bytes, %d left", ErrTapeTruncated, off-2, n, len(raw)-off)
		}
		data := make([]byte, n)
		copy(data, raw[off:off+n])
		blocks = append(blocks, TapeBlock{Data: data})
		off += n
	}
	return blocks, nil
}

type tapeStage int

const (
	stageIdle tapeStage = iota
	stagePilot
	stageSync1
	stageSync2
	stageData
	stagePause
)

// Tape plays TAP blocks into the EAR input as standard ROM loader pulses.
type Tape struct {
	blocks  []TapeBlock
	block   int
	playing bool
	level   bool

	stage      tapeStage
	pulsesLeft int
	bytePos    int
	bitMask    byte
	half       int

	remaining uint64
	lastTact  uint64
}

// NewTape creates an empty, stopped tape.
func NewTape() *Tape {
	return &Tape{}
}

// Load replaces the tape contents and rewinds.
func (t *Tape) Load(blocks []TapeBlock) {
	t.blocks = blocks
	t.Rewind()
}

// Rewind stops playback and returns to the first block.
func (t *Tape) Rewind() {
	t.playing = false
	t.block = 0
	t.stage = stageIdle
	t.level = false
	t.remaining = 0
}

// Play starts or resumes playback at absolute tact at.
func (t *Tape) Play(at uint64) {
	if t.playing || t.block >= len(t.blocks) {
		return
	}
	t.playing = true
	t.lastTact = at
	if t.stage == stageIdle {
		t.startBlock()
	}
}

// Stop pauses playback, keeping the position.
func (t *Tape) Stop() {
	t.playing = false
}

// Playing reports whether the tape is running.
func (t *Tape) Playing() bool {
	return t.playing
}

// Block returns the index of the block being played.
func (t *Tape) Block() int {
	return t.block
}

// Blocks returns the number of blocks loaded.
func (t *Tape) Blocks() int {
	return len(t.blocks)
}

// EarBit advances playback to absolute tact at and returns the EAR level.
func (t *Tape) EarBit(at uint64) bool {
	t.advanceTo(at)
	return t.level
}

// advanceTo runs the pulse generator up to absolute tact at.
func (t *Tape) advanceTo(at uint64) {
	for t.playing && t.lastTact < at {
		d := at - t.lastTact
		if t.remaining > d {
			t.remaining -= d
			t.lastTact = at
			return
		}
		t.lastTact += t.remaining
		t.remaining = 0
		t.nextPulse()
	}
	if !t.playing && t.lastTact < at {
		t.lastTact = at
	}
}

func (t *Tape) startBlock() {
	t.stage = stagePilot
	t.pulsesLeft = dataPilotPulses
	if t.blocks[t.block].IsHeader() {
		t.pulsesLeft = headerPilotPulses
	}
	t.remaining = 0
}

// nextPulse emits the next edge of the current block.
func (t *Tape) nextPulse() {
	switch t.stage {
	case stagePilot:
		t.level = !t.level
		t.remaining = pilotPulseTacts
		t.pulsesLeft--
		if t.pulsesLeft == 0 {
			t.stage = stageSync1
		}
	case stageSync1:
		t.level = !t.level
		t.remaining = sync1Tacts
		t.stage = stageSync2
	case stageSync2:
		t.level = !t.level
		t.remaining = sync2Tacts
		t.stage = stageData
		t.bytePos = 0
		t.bitMask = 0x80
		t.half = 0
	case stageData:
		data := t.blocks[t.block].Data
		if t.bytePos >= len(data) {
			t.stage = stagePause
			t.level = false
			t.remaining = blockPauseTacts
			return
		}
		t.level = !t.level
		t.remaining = bit0Tacts
		if data[t.bytePos]&t.bitMask != 0 {
			t.remaining = bit1Tacts
		}
		t.half++
		if t.half == 2 {
			t.half = 0
			t.bitMask >>= 1
			if t.bitMask == 0 {
				t.bitMask = 0x80
				t.bytePos++
			}
		}
	case stagePause:
		t.block++
		if t.block >= len(t.blocks) {
			t.playing = false
			t.stage = stageIdle
			return
		}
		t.startBlock()
	default:
		t.playing = false
	}
}
