// Package config loads emulator settings from a TOML file. Command-line
// flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/user-none/emzx/emu"
)

var (
	// ErrUnknownKey is returned when the file contains settings this
	// version does not understand.
	ErrUnknownKey = errors.New("config: unknown setting")
	// ErrInvalid is returned for a setting with an out-of-range value.
	ErrInvalid = errors.New("config: invalid setting")
)

// Audio configures the beeper sink.
type Audio struct {
	Enabled bool    `toml:"enabled"`
	Volume  float64 `toml:"volume"`
}

// Config is the file layout.
//
//	machine  = "sp128"
//	rom      = ["128-0.rom", "128-1.rom"]
//	tape     = "game.tap.zip"
//	throttle = true
//
//	[audio]
//	enabled = true
//	volume  = 0.8
//
//	[keys]
//	Left = ["CShift", "N5"]
type Config struct {
	Machine  string              `toml:"machine"`
	ROM      []string            `toml:"rom"`
	Tape     string              `toml:"tape"`
	Disk     string              `toml:"disk"`
	Throttle bool                `toml:"throttle"`
	Debug    bool                `toml:"debug"`
	Audio    Audio               `toml:"audio"`
	Keys     map[string][]string `toml:"keys"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Machine:  emu.Spectrum48.String(),
		Throttle: true,
		Audio:    Audio{Enabled: true, Volume: 1.0},
	}
}

// Load reads path over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("loading config %s: %w", path, err)
	}
	if err := checkDecoded(md); err != nil {
		return Config{}, fmt.Errorf("loading config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML text over the defaults.
func Parse(text string) (Config, error) {
	cfg := Default()
	md, err := toml.Decode(text, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := checkDecoded(md); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func checkDecoded(md toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, len(undecoded))
	for i, k := range undecoded {
		keys[i] = k.String()
	}
	return fmt.Errorf("%w: %s", ErrUnknownKey, strings.Join(keys, ", "))
}

// Validate checks every setting that can be checked without touching the
// filesystem.
func (c Config) Validate() error {
	id, err := emu.ParseMachineID(c.Machine)
	if err != nil {
		return err
	}
	if want := id.ROMPages(); len(c.ROM) > want {
		return fmt.Errorf("%w: %s takes %d rom pages, %d given", ErrInvalid, id, want, len(c.ROM))
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 1 {
		return fmt.Errorf("%w: audio volume %g outside 0..1", ErrInvalid, c.Audio.Volume)
	}
	if c.Disk != "" && id != emu.SpectrumP3 {
		return fmt.Errorf("%w: disk requires the +3, machine is %s", ErrInvalid, id)
	}
	_, err = c.KeyMap()
	return err
}

// MachineID returns the configured machine.
func (c Config) MachineID() (emu.MachineID, error) {
	return emu.ParseMachineID(c.Machine)
}

// KeyMap returns the default key table with the file's entries applied.
func (c Config) KeyMap() (KeyMap, error) {
	km := DefaultKeyMap()
	names := make([]string, 0, len(c.Keys))
	for name := range c.Keys {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := km.Set(name, c.Keys[name]...); err != nil {
			return nil, err
		}
	}
	return km, nil
}
