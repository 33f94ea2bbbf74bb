// Package cli runs a machine from the command line: it builds the
// machine from configuration, wires audio and the debugger into the
// controller, and drives the interactive console.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/user-none/emzx/config"
	"github.com/user-none/emzx/control"
	"github.com/user-none/emzx/debugger"
	"github.com/user-none/emzx/emu"
	"github.com/user-none/emzx/media"
	"github.com/user-none/emzx/ui"
)

// messageBuffer is the console's subscription depth.
const messageBuffer = 64

// Runner owns a machine, its controller and the host-side collaborators.
type Runner struct {
	cfg     config.Config
	machine *emu.Machine
	ctrl    *control.Controller
	dbg     *debugger.Engine
	sink    *ui.BeeperSink
	console *Console
	logger  *slog.Logger
}

// NewRunner builds a machine from cfg. Audio initialization failure is
// not fatal; the runner works without sound.
func NewRunner(cfg config.Config, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	id, err := cfg.MachineID()
	if err != nil {
		return nil, err
	}
	keys, err := cfg.KeyMap()
	if err != nil {
		return nil, err
	}

	opts, err := machineOptions(cfg, logger)
	if err != nil {
		return nil, err
	}
	m, err := emu.NewMachine(id, opts...)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:     cfg,
		machine: m,
		dbg:     debugger.New(logger),
		logger:  logger,
	}

	ctrlOpts := []control.Option{
		control.WithDebugSupport(r.dbg),
		control.WithThrottle(cfg.Throttle),
		control.WithLogger(logger),
	}
	if cfg.Audio.Enabled {
		sink, err := ui.NewBeeperSink(cfg.Audio.Volume)
		if err != nil {
			logger.Warn("audio initialization failed", "error", err)
		} else {
			r.sink = sink
			ctrlOpts = append(ctrlOpts,
				control.WithFrameHook(sink.QueueFrame),
				control.WithBufferLevel(sink.BufferLevel),
			)
		}
	}
	r.ctrl = control.New(m, ctrlOpts...)
	if r.sink != nil {
		r.ctrl.OnMessage(flushOnHalt(r.sink))
	}
	r.console = NewConsole(r.ctrl, r.dbg, keys, os.Stdout)

	logger.Info("machine created", "machine", id, "throttle", cfg.Throttle, "audio", r.sink != nil)
	return r, nil
}

type flusher interface {
	Flush()
}

// flushOnHalt returns a message handler that discards queued audio when
// the machine leaves Running, so a resumed machine does not replay stale
// sound.
func flushOnHalt(f flusher) func(control.Message) {
	return func(msg control.Message) {
		sc, ok := msg.(control.StateChanged)
		if !ok || sc.Old == sc.New {
			return
		}
		if sc.New == control.Paused || sc.New == control.Stopped {
			f.Flush()
		}
	}
}

// machineOptions loads the media named by cfg.
func machineOptions(cfg config.Config, logger *slog.Logger) ([]emu.Option, error) {
	var opts []emu.Option
	for page, path := range cfg.ROM {
		img, err := media.Load(path)
		if err != nil {
			return nil, err
		}
		logger.Debug("rom loaded", "page", page, "name", img.Name, "size", len(img.Data), "fingerprint", fmt.Sprintf("%016x", img.Fingerprint()))
		opts = append(opts, emu.WithROM(page, img.Data))
	}
	if len(cfg.ROM) == 0 {
		logger.Warn("no rom configured, rom area reads as zero")
	}

	if cfg.Tape != "" {
		img, err := media.Load(cfg.Tape)
		if err != nil {
			return nil, err
		}
		blocks, err := img.Tape()
		if err != nil {
			return nil, err
		}
		logger.Info("tape loaded", "name", img.Name, "blocks", len(blocks))
		opts = append(opts, emu.WithTape(blocks))
	}

	if cfg.Disk != "" {
		img, err := media.Load(cfg.Disk)
		if err != nil {
			return nil, err
		}
		d, err := img.Disk()
		if err != nil {
			return nil, err
		}
		logger.Info("disk inserted", "name", img.Name, "format", d.Header.Format, "tracks", d.GetTrackCount())
		opts = append(opts, emu.WithDisk(d))
	}
	return opts, nil
}

// Controller returns the runner's controller.
func (r *Runner) Controller() *control.Controller {
	return r.ctrl
}

// Run starts the machine, in debug mode when configured, and serves the
// console while stdin is a terminal. Otherwise it runs until ctx ends.
func (r *Runner) Run(ctx context.Context) error {
	go r.console.Watch(r.ctrl.Subscribe(messageBuffer))

	if r.cfg.Debug {
		if err := r.ctrl.StartDebug(ctx); err != nil {
			return err
		}
		r.console.printRegs()
	} else if err := r.ctrl.Start(ctx); err != nil {
		return err
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		r.logger.Info("stdin is not a terminal, console disabled")
		<-ctx.Done()
		return nil
	}
	return r.console.Run(ctx)
}

// Script runs console commands from in, one per line, without a terminal.
func (r *Runner) Script(ctx context.Context, in io.Reader) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading script: %w", err)
	}
	for n, line := range strings.Split(string(data), "\n") {
		quit, err := r.console.Execute(ctx, line)
		if err != nil {
			return fmt.Errorf("script line %d: %w", n+1, err)
		}
		if quit {
			break
		}
	}
	return nil
}

// Close stops the controller and releases audio and Lua state.
func (r *Runner) Close() {
	r.ctrl.Close()
	if r.sink != nil {
		if dropped := r.sink.Dropped(); dropped > 0 {
			r.logger.Debug("audio overrun", "dropped_bytes", dropped)
		}
		r.sink.Close()
		r.sink = nil
	}
	r.dbg.Close()
}
