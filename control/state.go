// Package control runs a Machine on a dedicated goroutine and exposes the
// start/pause/stop/step state machine used by front ends and debuggers.
package control

import (
	"fmt"

	"github.com/user-none/emzx/emu"
)

// State is the controller's execution state.
type State int

const (
	Stopped State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Message is published to subscribers by the execution goroutine.
type Message interface {
	message()
}

// StateChanged is published once per accepted transition. Debug steps
// publish Paused to Paused.
type StateChanged struct {
	Old State
	New State
}

// FrameCompleted is published when the machine finishes a frame.
// DidRenderFrame is false when the frame boundary was crossed during a
// debug step rather than while running free.
type FrameCompleted struct {
	DidRenderFrame bool
	Frame          uint64
}

// BreakpointHit is published when DebugSupport pauses execution. It is
// followed by the StateChanged for the pause.
type BreakpointHit struct {
	PC uint16
}

func (StateChanged) message()   {}
func (FrameCompleted) message() {}
func (BreakpointHit) message()  {}

// DebugSupport decides, at each instruction boundary while debugging is
// armed, whether execution should pause before the next instruction.
type DebugSupport interface {
	ShouldBreak(m *emu.Machine) bool
}

// Snapshot is the machine state published between frames for readers
// outside the execution goroutine.
type Snapshot struct {
	State     State
	Debugging bool
	CPU       emu.CPUState

	Frames               uint64
	TotalContention      uint64
	ContentionSincePause uint64
	BorderColor          byte
	Layout               emu.MemoryLayout
}
