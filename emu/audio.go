package emu

import "math"

const (
	// SampleRate is the output rate of the beeper in Hz.
	SampleRate = 48000

	beeperAmplitude = 8192
	lpfCutoffHz     = 8000.0
)

// lpfAlpha is the smoothing factor for the first-order RC low-pass filter.
// Derived from: alpha = dt / (RC + dt) where RC = 1/(2*pi*fc).
var lpfAlpha = 1.0 / (float64(SampleRate)/(2*math.Pi*lpfCutoffHz) + 1)

// Beeper integrates the EAR output level over T-states and resamples it
// to 16-bit stereo PCM. Level changes are timestamped with the absolute
// tact at which the OUT instruction drove the pin, so the waveform keeps
// sub-instruction accuracy.
type Beeper struct {
	clockHz int64

	level    bool
	lastTact uint64

	// Progress through the current output sample, in tact*SampleRate units.
	phase int64
	high  int64

	cur []int16
	out []int16

	filterPrev float64
}

// NewBeeper creates a beeper for a CPU running at clockHz.
func NewBeeper(clockHz int) *Beeper {
	return &Beeper{
		clockHz: int64(clockHz),
		cur:     make([]int16, 0, 2048),
		out:     make([]int16, 0, 2048),
	}
}

// Reset silences the beeper and discards buffered samples.
func (b *Beeper) Reset() {
	b.level = false
	b.lastTact = 0
	b.phase = 0
	b.high = 0
	b.cur = b.cur[:0]
	b.out = b.out[:0]
	b.filterPrev = 0
}

// Level returns the current EAR output level.
func (b *Beeper) Level() bool {
	return b.level
}

// SetLevel changes the EAR level at absolute tact at.
func (b *Beeper) SetLevel(level bool, at uint64) {
	b.advanceTo(at)
	b.level = level
}

// AudioSamples returns the interleaved stereo samples of the last
// completed frame.
func (b *Beeper) AudioSamples() []int16 {
	return b.out
}

// endFrame closes the current frame at absolute tact at and publishes its
// samples through AudioSamples.
func (b *Beeper) endFrame(at uint64) {
	b.advanceTo(at)
	b.out, b.cur = b.cur, b.out[:0]
}

// advanceTo integrates the current level up to absolute tact to.
func (b *Beeper) advanceTo(to uint64) {
	for b.lastTact < to {
		remaining := int64(to - b.lastTact)
		need := (b.clockHz - b.phase + SampleRate - 1) / SampleRate
		if need < 1 {
			need = 1
		}
		step := min(remaining, need)
		units := step * SampleRate

		b.phase += units
		if b.level {
			b.high += units
		}
		b.lastTact += uint64(step)

		if b.phase >= b.clockHz {
			excess := b.phase - b.clockHz
			carry := int64(0)
			if b.level {
				carry = excess
			}
			b.emit(float64(b.high-carry) / float64(b.clockHz))
			b.phase = excess
			b.high = carry
		}
	}
}

// emit low-pass filters one sample and appends it to both channels.
func (b *Beeper) emit(duty float64) {
	b.filterPrev = lpfAlpha*duty*beeperAmplitude + (1-lpfAlpha)*b.filterPrev
	s := int16(math.Round(b.filterPrev))
	b.cur = append(b.cur, s, s)
}
