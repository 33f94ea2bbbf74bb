package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/peterh/liner"

	"github.com/user-none/emzx/config"
	"github.com/user-none/emzx/control"
	"github.com/user-none/emzx/debugger"
)

// errUsage is returned when a command has the wrong arguments.
var errUsage = errors.New("usage")

type cmd struct {
	Name     string // Command name.
	Min      int    // Shortest accepted abbreviation.
	Usage    string
	Process  func(c *Console, ctx context.Context, args []string) (bool, error)
	Complete []string // Completions for the first argument.
}

// Console is the interactive command interpreter attached to a
// controller. Commands act on the machine through the controller, so
// they are safe while it runs.
type Console struct {
	ctrl   *control.Controller
	dbg    *debugger.Engine
	keys   config.KeyMap
	out    io.Writer
	logger *slog.Logger
}

// NewConsole creates a console writing its output to out.
func NewConsole(ctrl *control.Controller, dbg *debugger.Engine, keys config.KeyMap, out io.Writer) *Console {
	if keys == nil {
		keys = config.DefaultKeyMap()
	}
	return &Console{
		ctrl:   ctrl,
		dbg:    dbg,
		keys:   keys,
		out:    out,
		logger: slog.Default(),
	}
}

// Execute runs one command line. It returns true when the console should
// exit.
func (c *Console) Execute(ctx context.Context, line string) (bool, error) {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	match := matchList(fields[0])
	switch len(match) {
	case 0:
		return false, fmt.Errorf("command not found: %s", fields[0])
	case 1:
	default:
		return false, fmt.Errorf("ambiguous command: %s", fields[0])
	}

	quit, err := match[0].Process(c, ctx, fields[1:])
	if errors.Is(err, errUsage) {
		return quit, fmt.Errorf("usage: %s %s", match[0].Name, match[0].Usage)
	}
	return quit, err
}

// Complete returns line completions for the liner prompt.
func (c *Console) Complete(line string) []string {
	fields := strings.Fields(line)
	trailing := strings.HasSuffix(line, " ")

	if len(fields) == 0 || (len(fields) == 1 && !trailing) {
		prefix := ""
		if len(fields) == 1 {
			prefix = fields[0]
		}
		var names []string
		for _, m := range cmdList {
			if strings.HasPrefix(m.Name, prefix) {
				names = append(names, m.Name+" ")
			}
		}
		slices.Sort(names)
		return names
	}

	match := matchList(fields[0])
	if len(match) != 1 || len(match[0].Complete) == 0 {
		return nil
	}
	if len(fields) > 2 || (len(fields) == 2 && trailing) {
		return nil
	}
	prefix := ""
	if len(fields) == 2 {
		prefix = fields[1]
	}
	var out []string
	for _, opt := range match[0].Complete {
		if strings.HasPrefix(opt, prefix) {
			out = append(out, match[0].Name+" "+opt+" ")
		}
	}
	return out
}

// Run reads commands from the terminal until quit, Ctrl-C or ctx ends.
func (c *Console) Run(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(c.Complete)

	for ctx.Err() == nil {
		text, err := line.Prompt("emzx> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading command: %w", err)
		}
		line.AppendHistory(text)

		quit, err := c.Execute(ctx, text)
		if err != nil {
			fmt.Fprintln(c.out, "Error: "+err.Error())
		}
		if quit {
			return nil
		}
	}
	return nil
}

// Watch prints controller notifications until ch is closed.
func (c *Console) Watch(ch <-chan control.Message) {
	for msg := range ch {
		switch msg := msg.(type) {
		case control.BreakpointHit:
			fmt.Fprintf(c.out, "\nbreakpoint at %04X\n", msg.PC)
		case control.StateChanged:
			c.logger.Debug("machine state changed", "from", msg.Old, "to", msg.New)
		}
	}
}

// matchCommand reports whether command abbreviates m to at least m.Min
// characters.
func matchCommand(m cmd, command string) bool {
	if len(command) > len(m.Name) || len(command) < m.Min {
		return false
	}
	return strings.HasPrefix(m.Name, command)
}

func matchList(command string) []cmd {
	var match []cmd
	for _, m := range cmdList {
		if m.Name == command {
			return []cmd{m}
		}
		if matchCommand(m, command) {
			match = append(match, m)
		}
	}
	return match
}
