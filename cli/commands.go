package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/user-none/emzx/emu"
	"github.com/user-none/emzx/media"
)

// memDumpWidth is the number of bytes per mem output row.
const memDumpWidth = 16

var cmdList []cmd

func init() {
	cmdList = []cmd{
		{Name: "start", Min: 4, Usage: "", Process: cmdStart},
		{Name: "pause", Min: 1, Usage: "", Process: cmdPause},
		{Name: "stop", Min: 3, Usage: "", Process: cmdStop},
		{Name: "restart", Min: 3, Usage: "", Process: cmdRestart},
		{Name: "debug", Min: 1, Usage: "", Process: cmdDebug},
		{Name: "step", Min: 1, Usage: "[count]", Process: cmdStep},
		{Name: "over", Min: 1, Usage: "", Process: cmdOver},
		{Name: "out", Min: 2, Usage: "", Process: cmdOut},
		{Name: "break", Min: 1, Usage: "add <addr> [condition] | del <id> | on <id> | off <id> | list | clear",
			Process: cmdBreak, Complete: []string{"add", "del", "on", "off", "list", "clear"}},
		{Name: "regs", Min: 1, Usage: "", Process: cmdRegs},
		{Name: "mem", Min: 1, Usage: "<addr> [length]", Process: cmdMem},
		{Name: "key", Min: 1, Usage: "<name> down|up", Process: cmdKey},
		{Name: "tape", Min: 1, Usage: "load <path> | play | stop | rewind",
			Process: cmdTape, Complete: []string{"load", "play", "stop", "rewind"}},
		{Name: "disk", Min: 2, Usage: "<path>", Process: cmdDisk},
		{Name: "state", Min: 4, Usage: "", Process: cmdState},
		{Name: "help", Min: 1, Usage: "", Process: cmdHelp},
		{Name: "quit", Min: 1, Usage: "", Process: cmdQuit},
	}
}

func noArgs(args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	return nil
}

// parseAddr accepts decimal, 0x-prefixed, $-prefixed and h-suffixed hex.
func parseAddr(s string) (uint16, error) {
	base := 10
	switch {
	case len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X"):
		s, base = s[2:], 16
	case strings.HasPrefix(s, "$"):
		s, base = s[1:], 16
	case len(s) > 1 && strings.HasSuffix(strings.ToLower(s), "h"):
		s, base = s[:len(s)-1], 16
	}
	v, err := strconv.ParseUint(s, base, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return uint16(v), nil
}

func cmdStart(c *Console, ctx context.Context, args []string) (bool, error) {
	if err := noArgs(args); err != nil {
		return false, err
	}
	return false, c.ctrl.Start(ctx)
}

func cmdPause(c *Console, ctx context.Context, args []string) (bool, error) {
	if err := noArgs(args); err != nil {
		return false, err
	}
	return false, c.ctrl.Pause(ctx)
}

func cmdStop(c *Console, ctx context.Context, args []string) (bool, error) {
	if err := noArgs(args); err != nil {
		return false, err
	}
	return false, c.ctrl.Stop(ctx)
}

func cmdRestart(c *Console, ctx context.Context, args []string) (bool, error) {
	if err := noArgs(args); err != nil {
		return false, err
	}
	return false, c.ctrl.Restart(ctx)
}

func cmdDebug(c *Console, ctx context.Context, args []string) (bool, error) {
	if err := noArgs(args); err != nil {
		return false, err
	}
	if err := c.ctrl.StartDebug(ctx); err != nil {
		return false, err
	}
	return false, c.printRegs()
}

func cmdStep(c *Console, ctx context.Context, args []string) (bool, error) {
	count := 1
	switch len(args) {
	case 0:
	case 1:
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return false, errUsage
		}
		count = n
	default:
		return false, errUsage
	}
	for range count {
		if err := c.ctrl.StepInto(ctx); err != nil {
			return false, err
		}
	}
	return false, c.printRegs()
}

func cmdOver(c *Console, ctx context.Context, args []string) (bool, error) {
	if err := noArgs(args); err != nil {
		return false, err
	}
	if err := c.ctrl.StepOver(ctx); err != nil {
		return false, err
	}
	return false, c.printRegs()
}

func cmdOut(c *Console, ctx context.Context, args []string) (bool, error) {
	if err := noArgs(args); err != nil {
		return false, err
	}
	if err := c.ctrl.StepOut(ctx); err != nil {
		return false, err
	}
	return false, c.printRegs()
}

func cmdBreak(c *Console, ctx context.Context, args []string) (bool, error) {
	if len(args) == 0 {
		return false, errUsage
	}
	switch args[0] {
	case "add":
		if len(args) < 2 {
			return false, errUsage
		}
		addr, err := parseAddr(args[1])
		if err != nil {
			return false, err
		}
		bp, err := c.dbg.Add(addr, strings.Join(args[2:], " "))
		if err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "breakpoint %d at %04X\n", bp.ID, bp.Addr)
	case "del", "on", "off":
		if len(args) != 2 {
			return false, errUsage
		}
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return false, errUsage
		}
		if args[0] == "del" {
			return false, c.dbg.Remove(id)
		}
		return false, c.dbg.Enable(id, args[0] == "on")
	case "list":
		for _, bp := range c.dbg.List() {
			state := "on"
			if !bp.Enabled {
				state = "off"
			}
			fmt.Fprintf(c.out, "%3d  %04X  %-3s  hits=%d  %s\n", bp.ID, bp.Addr, state, bp.Hits, bp.Condition)
		}
	case "clear":
		c.dbg.Clear()
	default:
		return false, errUsage
	}
	return false, nil
}

func cmdRegs(c *Console, ctx context.Context, args []string) (bool, error) {
	if err := noArgs(args); err != nil {
		return false, err
	}
	return false, c.printRegs()
}

func (c *Console) printRegs() error {
	snap := c.ctrl.Snapshot()
	cpu := snap.CPU
	halted := ""
	if cpu.Halted {
		halted = " HALT"
	}
	_, err := fmt.Fprintf(c.out,
		"PC=%04X AF=%04X BC=%04X DE=%04X HL=%04X IX=%04X IY=%04X SP=%04X\n"+
			"     AF'=%04X BC'=%04X DE'=%04X HL'=%04X I=%02X R=%02X\n"+
			"     IFF1=%t IFF2=%t IM=%d tact=%d frame=%d%s\n",
		cpu.PC, cpu.AF, cpu.BC, cpu.DE, cpu.HL, cpu.IX, cpu.IY, cpu.SP,
		cpu.AF_, cpu.BC_, cpu.DE_, cpu.HL_, cpu.I, cpu.R,
		cpu.IFF1, cpu.IFF2, cpu.IM, cpu.FrameTact, snap.Frames, halted)
	return err
}

func cmdMem(c *Console, ctx context.Context, args []string) (bool, error) {
	if len(args) < 1 || len(args) > 2 {
		return false, errUsage
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return false, err
	}
	length := 64
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 || n > 0x10000 {
			return false, errUsage
		}
		length = n
	}

	buf := make([]byte, length)
	if err := c.ctrl.Do(ctx, func(m *emu.Machine) { m.ReadMemory(addr, buf) }); err != nil {
		return false, err
	}
	for off := 0; off < length; off += memDumpWidth {
		row := buf[off:min(off+memDumpWidth, length)]
		fmt.Fprintf(c.out, "%04X  % X\n", addr+uint16(off), row)
	}
	return false, nil
}

func cmdKey(c *Console, ctx context.Context, args []string) (bool, error) {
	if len(args) != 2 || (args[1] != "down" && args[1] != "up") {
		return false, errUsage
	}
	if _, ok := c.keys.Lookup(args[0]); !ok {
		return false, fmt.Errorf("unknown key %q", args[0])
	}
	pressed := args[1] == "down"
	return false, c.ctrl.Do(ctx, func(m *emu.Machine) {
		c.keys.Apply(m.Keyboard(), args[0], pressed)
	})
}

func cmdTape(c *Console, ctx context.Context, args []string) (bool, error) {
	if len(args) == 0 {
		return false, errUsage
	}
	switch args[0] {
	case "load":
		if len(args) != 2 {
			return false, errUsage
		}
		img, err := media.Load(args[1])
		if err != nil {
			return false, err
		}
		blocks, err := img.Tape()
		if err != nil {
			return false, err
		}
		if err := c.ctrl.Do(ctx, func(m *emu.Machine) { m.Tape().Load(blocks) }); err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "%s: %d blocks (%016x)\n", img.Name, len(blocks), img.Fingerprint())
		return false, nil
	case "play":
		return false, c.ctrl.Do(ctx, func(m *emu.Machine) { m.PlayTape() })
	case "stop":
		return false, c.ctrl.Do(ctx, func(m *emu.Machine) { m.Tape().Stop() })
	case "rewind":
		return false, c.ctrl.Do(ctx, func(m *emu.Machine) { m.Tape().Rewind() })
	}
	return false, errUsage
}

func cmdDisk(c *Console, ctx context.Context, args []string) (bool, error) {
	if len(args) != 1 {
		return false, errUsage
	}
	img, err := media.Load(args[0])
	if err != nil {
		return false, err
	}
	d, err := img.Disk()
	if err != nil {
		return false, err
	}
	var insertErr error
	if err := c.ctrl.Do(ctx, func(m *emu.Machine) { insertErr = m.InsertDisk(d) }); err != nil {
		return false, err
	}
	if insertErr != nil {
		return false, insertErr
	}
	fmt.Fprintf(c.out, "%s: %s, %d tracks\n", img.Name, d.Header.Format, d.GetTrackCount())
	return false, nil
}

func cmdState(c *Console, ctx context.Context, args []string) (bool, error) {
	if err := noArgs(args); err != nil {
		return false, err
	}
	snap := c.ctrl.Snapshot()
	fmt.Fprintf(c.out, "state=%s debug=%t frames=%d contention=%d since-pause=%d border=%d\n",
		snap.State, snap.Debugging, snap.Frames, snap.TotalContention, snap.ContentionSincePause, snap.BorderColor)
	for i, s := range snap.Layout.Slots {
		kind := "ROM"
		if s.Kind == emu.BankRAM {
			kind = "RAM"
		}
		contended := ""
		if s.Contended {
			contended = " contended"
		}
		fmt.Fprintf(c.out, "  %04X  %s %d%s\n", i*0x4000, kind, s.Index, contended)
	}
	return false, nil
}

func cmdHelp(c *Console, ctx context.Context, args []string) (bool, error) {
	for _, m := range cmdList {
		fmt.Fprintf(c.out, "  %-8s %s\n", m.Name, m.Usage)
	}
	return false, nil
}

func cmdQuit(c *Console, ctx context.Context, args []string) (bool, error) {
	return true, nil
}
