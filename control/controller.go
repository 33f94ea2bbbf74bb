package control

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user-none/emzx/emu"
)

// ErrClosed is returned by operations on a closed controller.
var ErrClosed = errors.New("control: controller closed")

// ADT buffer thresholds in bytes.
const (
	adtMinBuffer = 9600
	adtMaxBuffer = 19200
)

const commandQueueSize = 16

type commandKind int

const (
	cmdStart commandKind = iota
	cmdPause
	cmdStop
	cmdRestart
	cmdStartDebug
	cmdStepInto
	cmdStepOver
	cmdStepOut
	cmdDo
)

type command struct {
	kind commandKind
	fn   func(*emu.Machine)
	ack  chan struct{}
}

// Controller owns a Machine and runs it on a dedicated goroutine. All
// operations are posted to that goroutine and take effect at instruction
// boundaries; the goroutine is the only writer of machine state.
type Controller struct {
	machine *emu.Machine

	debug       DebugSupport
	throttle    bool
	bufferLevel func() int
	frameHook   func(*emu.Machine)
	logger      *slog.Logger

	cmds    chan command
	// pending counts commands queued or being queued. Loops that run
	// many instructions yield while it is non-zero.
	pending atomic.Int32
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once

	// Guarded by mu. Written only by the execution goroutine.
	mu        sync.RWMutex
	state     State
	debugging bool
	snapshot  Snapshot
	subs      []chan Message
	handlers  []func(Message)

	// Execution goroutine only.
	skipBreak bool
	lastFrame time.Time
}

// New creates a stopped controller for m and starts its goroutine.
func New(m *emu.Machine, opts ...Option) *Controller {
	c := &Controller{
		machine: m,
		logger:  slog.Default(),
		cmds:    make(chan command, commandQueueSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.publishSnapshot()

	go c.run()
	return c
}

// Close stops the execution goroutine and closes every subscriber
// channel. The machine is left as it was.
func (c *Controller) Close() {
	c.once.Do(func() {
		close(c.quit)
		c.pending.Add(1)
		<-c.done

		c.mu.Lock()
		for _, ch := range c.subs {
			close(ch)
		}
		c.subs = nil
		c.mu.Unlock()
	})
}

// State returns the current execution state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Debugging reports whether breakpoint evaluation is armed.
func (c *Controller) Debugging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.debugging
}

// Snapshot returns the machine state published at the last frame,
// transition or step.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// MinSubscribeBuffer is the smallest channel capacity Subscribe hands out.
const MinSubscribeBuffer = 4

// Subscribe returns a channel receiving messages in order. StateChanged and
// BreakpointHit messages wait for room. FrameCompleted messages are dropped
// once the channel is half full, so frames never hold up a transition.
// buffer is raised to MinSubscribeBuffer. A subscriber that stops reading
// still stalls execution at its next transition.
func (c *Controller) Subscribe(buffer int) <-chan Message {
	if buffer < MinSubscribeBuffer {
		buffer = MinSubscribeBuffer
	}
	ch := make(chan Message, buffer)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()
	return ch
}

// OnMessage registers fn to be called on the execution goroutine for every
// message. fn must not call back into the controller.
func (c *Controller) OnMessage(fn func(Message)) {
	c.mu.Lock()
	c.handlers = append(c.handlers, fn)
	c.mu.Unlock()
}

// Start runs the machine from Stopped, or resumes it from Paused.
func (c *Controller) Start(ctx context.Context) error {
	return c.send(ctx, cmdStart, nil)
}

// Pause suspends execution at the next instruction boundary.
func (c *Controller) Pause(ctx context.Context) error {
	return c.send(ctx, cmdPause, nil)
}

// Stop halts execution and disarms debugging. Machine memory is kept.
func (c *Controller) Stop(ctx context.Context) error {
	return c.send(ctx, cmdStop, nil)
}

// Restart stops, resets the machine and runs it again.
func (c *Controller) Restart(ctx context.Context) error {
	return c.send(ctx, cmdRestart, nil)
}

// StartDebug resets the machine, arms debugging and pauses before the
// first instruction.
func (c *Controller) StartDebug(ctx context.Context) error {
	return c.send(ctx, cmdStartDebug, nil)
}

// StepInto executes one instruction while paused.
func (c *Controller) StepInto(ctx context.Context) error {
	return c.send(ctx, cmdStepInto, nil)
}

// StepOver executes one instruction while paused, running calls, RSTs,
// block repeats and DJNZ loops to completion.
func (c *Controller) StepOver(ctx context.Context) error {
	return c.send(ctx, cmdStepOver, nil)
}

// StepOut runs while paused until the current subroutine returns.
func (c *Controller) StepOut(ctx context.Context) error {
	return c.send(ctx, cmdStepOut, nil)
}

// Do runs fn on the execution goroutine at the next instruction boundary.
func (c *Controller) Do(ctx context.Context, fn func(*emu.Machine)) error {
	return c.send(ctx, cmdDo, fn)
}

func (c *Controller) send(ctx context.Context, kind commandKind, fn func(*emu.Machine)) error {
	cmd := command{kind: kind, fn: fn, ack: make(chan struct{})}

	c.pending.Add(1)
	select {
	case c.cmds <- cmd:
	case <-c.quit:
		c.pending.Add(-1)
		return ErrClosed
	case <-ctx.Done():
		c.pending.Add(-1)
		return ctx.Err()
	}

	select {
	case <-cmd.ack:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the execution goroutine.
func (c *Controller) run() {
	defer close(c.done)

	for {
		if c.state != Running {
			select {
			case <-c.quit:
				return
			case cmd := <-c.cmds:
				c.receive(cmd)
			}
			continue
		}

		if c.yield() {
			select {
			case <-c.quit:
				return
			default:
			}
			c.drain()
			continue
		}

		c.runFrame()
	}
}

// drain handles every queued command without blocking.
func (c *Controller) drain() {
	for {
		select {
		case cmd := <-c.cmds:
			c.receive(cmd)
		default:
			return
		}
	}
}

// receive handles a dequeued command. The pending count drops before the
// handler runs so a step it starts only yields to commands queued after it.
func (c *Controller) receive(cmd command) {
	c.pending.Add(-1)
	c.handle(cmd)
}

func (c *Controller) yield() bool {
	return c.pending.Load() > 0
}

func (c *Controller) handle(cmd command) {
	defer close(cmd.ack)

	m := c.machine
	switch cmd.kind {
	case cmdStart:
		switch c.state {
		case Stopped:
			c.lastFrame = time.Now()
			c.setState(Running)
			c.logger.Info("machine started", "machine", m.ID())
		case Paused:
			m.ULA().ResetContentionSincePause()
			c.skipBreak = true
			c.lastFrame = time.Now()
			c.setState(Running)
		}

	case cmdPause:
		if c.state == Running {
			c.setState(Paused)
		}

	case cmdStop:
		if c.state != Stopped {
			c.stop()
			c.logger.Info("machine stopped", "machine", m.ID())
		}

	case cmdRestart:
		if c.state != Stopped {
			c.stop()
			m.Reset()
			c.lastFrame = time.Now()
			c.setState(Running)
			c.logger.Info("machine restarted", "machine", m.ID())
		}

	case cmdStartDebug:
		if c.state == Stopped {
			m.Reset()
			c.mu.Lock()
			c.debugging = true
			c.mu.Unlock()
			c.skipBreak = false
			c.setState(Paused)
			c.logger.Info("debug session started", "machine", m.ID())
		}

	case cmdStepInto:
		if c.state == Paused {
			c.stepInstruction()
			c.stepped()
		}

	case cmdStepOver:
		if c.state == Paused {
			c.stepOver()
			c.stepped()
		}

	case cmdStepOut:
		if c.state == Paused {
			c.stepOut()
			c.stepped()
		}

	case cmdDo:
		cmd.fn(m)
		c.publishSnapshot()
	}
}

// stop moves to Stopped and clears controller bookkeeping.
func (c *Controller) stop() {
	c.mu.Lock()
	c.debugging = false
	c.mu.Unlock()
	c.skipBreak = false
	c.setState(Stopped)
}

// setState records a transition and publishes it.
func (c *Controller) setState(s State) {
	old := c.state
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.publishSnapshot()
	c.logger.Debug("state changed", "old", old, "new", s)
	c.publish(StateChanged{Old: old, New: s})
}

// stepped publishes the Paused to Paused transition that ends a step.
func (c *Controller) stepped() {
	c.publishSnapshot()
	c.publish(StateChanged{Old: Paused, New: Paused})
}

// runFrame executes instructions until the frame ends, a command is
// pending, or a breakpoint pauses execution.
func (c *Controller) runFrame() {
	m := c.machine
	for {
		if c.yield() {
			return
		}
		if c.shouldBreak() {
			c.publish(BreakpointHit{PC: m.CPU().PC})
			c.setState(Paused)
			return
		}
		c.skipBreak = false

		m.ExecuteInstruction()
		if m.FrameEnded() {
			c.frameCompleted(true)
			c.sleepFrame()
			return
		}
	}
}

func (c *Controller) shouldBreak() bool {
	if c.skipBreak || !c.debugging || c.debug == nil {
		return false
	}
	return c.debug.ShouldBreak(c.machine)
}

// stepInstruction executes one instruction, accounting for a frame it
// may complete.
func (c *Controller) stepInstruction() {
	m := c.machine
	m.ExecuteInstruction()
	if m.FrameEnded() {
		c.frameCompleted(false)
	}
}

// stepOver runs to the instruction following a call, repeat or halt.
func (c *Controller) stepOver() {
	m := c.machine
	pc := m.CPU().PC
	flow := m.FlowAt(pc)
	if flow.Kind == emu.FlowNormal || flow.Kind == emu.FlowReturn {
		c.stepInstruction()
		return
	}

	target := flow.Next(pc)
	c.stepInstruction()
	for m.CPU().PC != target {
		if c.yield() || c.shouldBreak() {
			return
		}
		c.stepInstruction()
	}
}

// stepOut runs until a return leaves the current call depth. Calls and
// interrupts taken on the way deepen the nesting.
func (c *Controller) stepOut() {
	m := c.machine
	depth := 0
	first := true
	for {
		if !first && (c.yield() || c.shouldBreak()) {
			return
		}
		first = false

		pc := m.CPU().PC
		flow := m.FlowAt(pc)
		c.stepInstruction()

		if m.InterruptAccepted() {
			depth++
			continue
		}
		taken := m.CPU().PC != flow.Next(pc)
		switch flow.Kind {
		case emu.FlowCall:
			if taken {
				depth++
			}
		case emu.FlowReturn:
			if taken {
				depth--
				if depth < 0 {
					return
				}
			}
		}
	}
}

// frameCompleted runs the frame hook and publishes the frame.
func (c *Controller) frameCompleted(rendered bool) {
	if c.frameHook != nil {
		c.frameHook(c.machine)
	}
	c.publishSnapshot()
	c.publish(FrameCompleted{DidRenderFrame: rendered, Frame: c.machine.ULA().Frames()})
}

// sleepFrame paces free-running frames. With a buffer level source the
// sleep is adjusted to keep the audio queue between its water marks.
func (c *Controller) sleepFrame() {
	if !c.throttle {
		return
	}
	t := c.machine.Timing()
	frameTime := time.Duration(float64(time.Second) * float64(t.TactsPerFrame()) / float64(t.ClockHz))

	sleepTime := frameTime - time.Since(c.lastFrame)
	if c.bufferLevel != nil {
		level := c.bufferLevel()
		if level < adtMinBuffer {
			sleepTime = time.Duration(float64(sleepTime) * 0.9)
		} else if level > adtMaxBuffer {
			sleepTime = time.Duration(float64(sleepTime) * 1.1)
		}
	}

	if sleepTime > time.Millisecond {
		select {
		case <-time.After(sleepTime):
		case <-c.quit:
		}
	}
	c.lastFrame = time.Now()
}

func (c *Controller) publishSnapshot() {
	m := c.machine
	ula := m.ULA()
	snap := Snapshot{
		CPU:                  m.CPU(),
		Frames:               ula.Frames(),
		TotalContention:      ula.TotalContentionDelaySinceStart(),
		ContentionSincePause: ula.ContentionDelaySincePause(),
		BorderColor:          ula.BorderColor(),
		Layout:               m.MemoryLayout(),
	}
	c.mu.Lock()
	snap.State = c.state
	snap.Debugging = c.debugging
	c.snapshot = snap
	c.mu.Unlock()
}

// publish delivers msg to handlers and subscribers.
func (c *Controller) publish(msg Message) {
	c.mu.RLock()
	subs := c.subs
	handlers := c.handlers
	c.mu.RUnlock()

	for _, fn := range handlers {
		fn(msg)
	}

	_, isFrame := msg.(FrameCompleted)
	for _, ch := range subs {
		if isFrame {
			if len(ch) < cap(ch)/2 {
				ch <- msg
			}
			continue
		}
		select {
		case ch <- msg:
		case <-c.quit:
			return
		}
	}
}
