// Package ui plays the beeper output of a running machine on the host's
// audio device.
package ui

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/user-none/emzx/emu"
)

// ringCapacity holds about 170ms of 48kHz 16-bit stereo.
const ringCapacity = 32768

// playerBufferSize is oto's own read-ahead in bytes.
const playerBufferSize = 19200

var (
	otoCtx     *oto.Context
	otoOnce    sync.Once
	otoInitErr error
)

// audioContext creates the process-wide oto context on first use. oto
// allows only one context per process.
func audioContext() (*oto.Context, error) {
	otoOnce.Do(func() {
		var ready chan struct{}
		otoCtx, ready, otoInitErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   emu.SampleRate,
			ChannelCount: 2,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   50 * time.Millisecond,
		})
		if otoInitErr != nil {
			return
		}
		<-ready
	})
	return otoCtx, otoInitErr
}

// BeeperSink feeds each completed frame's beeper samples to oto.
type BeeperSink struct {
	player  *oto.Player
	ring    *pcmRing
	scratch []byte
}

// NewBeeperSink opens the audio device at the given volume (0 to 1).
func NewBeeperSink(volume float64) (*BeeperSink, error) {
	ctx, err := audioContext()
	if err != nil {
		return nil, fmt.Errorf("audio device unavailable: %w", err)
	}

	ring := newPCMRing(ringCapacity)
	player := ctx.NewPlayer(ring)
	player.SetBufferSize(playerBufferSize)
	player.SetVolume(volume)
	player.Play()

	return &BeeperSink{
		player:  player,
		ring:    ring,
		scratch: make([]byte, 0, 4096),
	}, nil
}

// QueueFrame queues the samples of the machine's last completed frame.
// It has the shape of a controller frame hook.
func (s *BeeperSink) QueueFrame(m *emu.Machine) {
	s.QueueSamples(m.Beeper().AudioSamples())
}

// QueueSamples queues interleaved stereo samples.
func (s *BeeperSink) QueueSamples(samples []int16) {
	if len(samples) == 0 {
		return
	}
	s.scratch = encodeSamples(s.scratch[:0], samples)
	s.ring.Write(s.scratch)
}

// BufferLevel returns the bytes queued ahead of the device, both in the
// ring and inside oto. The controller paces frames against it.
func (s *BeeperSink) BufferLevel() int {
	return s.ring.Buffered() + s.player.BufferedSize()
}

// Dropped returns the bytes discarded because the machine ran ahead.
func (s *BeeperSink) Dropped() uint64 {
	return s.ring.Dropped()
}

// Flush discards queued audio. The runner calls it when the machine
// pauses or stops.
func (s *BeeperSink) Flush() {
	s.ring.Reset()
}

// SetVolume sets the playback volume (0 to 1).
func (s *BeeperSink) SetVolume(v float64) {
	s.player.SetVolume(v)
}

// Close stops playback.
func (s *BeeperSink) Close() {
	s.ring.Close()
	s.player.Close()
}

// encodeSamples appends samples to dst as signed 16-bit little endian.
func encodeSamples(dst []byte, samples []int16) []byte {
	for _, v := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(v))
	}
	return dst
}
