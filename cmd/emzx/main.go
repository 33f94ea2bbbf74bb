package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/user-none/emzx/cli"
	"github.com/user-none/emzx/config"
	"github.com/user-none/emzx/emu"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	machineFlag := flag.String("machine", "", "machine: "+machineList())
	romFlag := flag.String("rom", "", "comma separated ROM page images, page 0 first")
	tapePath := flag.String("tape", "", "path to a .tap image (may be zipped, gzipped or 7z)")
	diskPath := flag.String("disk", "", "path to a .dsk image (+3 only)")
	debugFlag := flag.Bool("debug", false, "start paused in a debug session")
	noThrottle := flag.Bool("fast", false, "run as fast as possible")
	noAudio := flag.Bool("mute", false, "disable audio output")
	scriptPath := flag.String("script", "", "run console commands from a file instead of a terminal")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fatal(err)
		}
	}

	// Flags override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "machine":
			cfg.Machine = *machineFlag
		case "rom":
			cfg.ROM = strings.Split(*romFlag, ",")
		case "tape":
			cfg.Tape = *tapePath
		case "disk":
			cfg.Disk = *diskPath
		case "debug":
			cfg.Debug = *debugFlag
		case "fast":
			cfg.Throttle = !*noThrottle
		case "mute":
			cfg.Audio.Enabled = !*noAudio
		}
	})

	if err := run(cfg, *scriptPath, logger); err != nil {
		fatal(err)
	}
}

func run(cfg config.Config, scriptPath string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := cli.NewRunner(cfg, logger)
	if err != nil {
		return err
	}
	defer runner.Close()

	if scriptPath == "" {
		return runner.Run(ctx)
	}
	f, err := os.Open(scriptPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return runner.Script(ctx, f)
}

func machineList() string {
	ids := emu.MachineIDs()
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = id.String()
	}
	return strings.Join(names, ", ")
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "emzx:", err)
	os.Exit(1)
}
