package control

import (
	"log/slog"

	"github.com/user-none/emzx/emu"
)

// Option configures a Controller.
type Option func(*Controller)

// WithDebugSupport installs the breakpoint collaborator consulted while
// debugging is armed.
func WithDebugSupport(d DebugSupport) Option {
	return func(c *Controller) {
		c.debug = d
	}
}

// WithThrottle paces free-running frames to the machine's frame rate.
func WithThrottle(on bool) Option {
	return func(c *Controller) {
		c.throttle = on
	}
}

// WithBufferLevel supplies the audio sink's queued byte count. When set,
// throttled frames shorten or lengthen their sleep to keep the queue
// between the low and high water marks.
func WithBufferLevel(fn func() int) Option {
	return func(c *Controller) {
		c.bufferLevel = fn
	}
}

// WithFrameHook runs fn on the execution goroutine after every frame.
func WithFrameHook(fn func(*emu.Machine)) Option {
	return func(c *Controller) {
		c.frameHook = fn
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}
