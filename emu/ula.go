package emu

// ULA tracks the raster position within the frame, the contention
// accumulators and the output latches written through port 0xFE.
type ULA struct {
	screen *ScreenTiming
	mem    *Memory

	frameTact int
	frames    uint64

	totalContention      uint64
	contentionSincePause uint64

	borderColor byte
	earBit      bool
	micBit      bool
}

// NewULA creates a ULA for the given rendering table and memory.
func NewULA(screen *ScreenTiming, mem *Memory) *ULA {
	return &ULA{
		screen: screen,
		mem:    mem,
	}
}

// Reset returns the raster to the start of the frame and clears every
// counter and latch.
func (u *ULA) Reset() {
	u.frameTact = 0
	u.frames = 0
	u.totalContention = 0
	u.contentionSincePause = 0
	u.borderColor = 0
	u.earBit = false
	u.micBit = false
}

// Screen returns the rendering tact table.
func (u *ULA) Screen() *ScreenTiming {
	return u.screen
}

// CurrentFrameTact returns the tact within the current frame.
func (u *ULA) CurrentFrameTact() int {
	return u.frameTact
}

// Frames returns the number of completed frames since reset.
func (u *ULA) Frames() uint64 {
	return u.frames
}

// RasterLine returns the raster line of the current tact.
func (u *ULA) RasterLine() int {
	return u.frameTact / u.screen.timing.TactsPerLine
}

// PixelInLine returns the tact offset within the current raster line.
func (u *ULA) PixelInLine() int {
	return u.frameTact % u.screen.timing.TactsPerLine
}

// RenderingPhase looks up what the ULA is drawing at the current tact.
func (u *ULA) RenderingPhase() RenderPhase {
	return u.screen.At(u.frameTact).Phase
}

// TotalContentionDelaySinceStart returns every wait state injected since
// the machine was reset.
func (u *ULA) TotalContentionDelaySinceStart() uint64 {
	return u.totalContention
}

// ContentionDelaySincePause returns the wait states injected since
// execution last resumed.
func (u *ULA) ContentionDelaySincePause() uint64 {
	return u.contentionSincePause
}

// ResetContentionSincePause clears the since-pause accumulator. Called by
// the controller when execution resumes from Paused.
func (u *ULA) ResetContentionSincePause() {
	u.contentionSincePause = 0
}

// BorderColor returns the border colour latched by the last OUT to 0xFE.
func (u *ULA) BorderColor() byte {
	return u.borderColor
}

// EarBit returns the beeper output latch.
func (u *ULA) EarBit() bool {
	return u.earBit
}

// MicBit returns the tape output latch.
func (u *ULA) MicBit() bool {
	return u.micBit
}

// ReadFloatingBus returns the value left on the data bus by the ULA at
// the current tact.
func (u *ULA) ReadFloatingBus() byte {
	return u.floatingBusAt(u.frameTact)
}

// floatingBusAt returns the byte the ULA is fetching at tact, or 0xFF
// when the bus is idle or the variant has no floating bus.
func (u *ULA) floatingBusAt(tact int) byte {
	if !u.screen.timing.FloatingBus {
		return 0xFF
	}
	entry := u.screen.At(tact)
	if !entry.Fetch {
		return 0xFF
	}
	return u.mem.ScreenByte(entry.FetchAddr)
}

// addContention records injected wait states.
func (u *ULA) addContention(delay int) {
	u.totalContention += uint64(delay)
	u.contentionSincePause += uint64(delay)
}

// writePort latches border, MIC and EAR from an OUT to port 0xFE.
func (u *ULA) writePort(val byte) {
	u.borderColor = val & 0x07
	u.micBit = val&0x08 != 0
	u.earBit = val&0x10 != 0
}

// advance moves the raster forward and reports whether a frame ended.
func (u *ULA) advance(tacts int) bool {
	u.frameTact += tacts
	frame := u.screen.TactsPerFrame()
	if u.frameTact < frame {
		return false
	}
	u.frameTact -= frame
	u.frames++
	return true
}
