package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the backlightd daemon.
//
// This is intentionally user-facing and stable-ish. Keep defaults and validation
// centralized so the rest of the code can assume a well-formed config.
//
// Design goals:
// - Make config file the primary configuration surface.
// - Keep flags for small overrides and for environments where a file is awkward.
// - Brightness POLICY (profiles, schedules, overrides) lives in the profile
//   store, not here. Config covers the machine-specific plumbing only.
type Config struct {
	// Backlight device configuration
	Backlight BacklightConfig `yaml:"backlight"`

	// Profile store location
	Profiles ProfilesConfig `yaml:"profiles"`

	// Hardware/session monitor configuration
	Monitors MonitorsConfig `yaml:"monitors"`

	// IPC configuration (unix socket control plane)
	IPC IPCConfig `yaml:"ipc"`

	// WebSocket state stream configuration
	Web WebConfig `yaml:"web"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type BacklightConfig struct {
	// Dir is the sysfs directory holding brightness and max_brightness.
	Dir string `yaml:"dir"`
}

type ProfilesConfig struct {
	// Dir is where profile YAML files and active state live.
	Dir string `yaml:"dir"`
}

type MonitorsConfig struct {
	// InputDevices lists evdev nodes to watch for activity. Empty means
	// scan /dev/input/event* at startup.
	InputDevices []string `yaml:"input_devices,omitempty"`

	// PowerSupplyDir is the sysfs power supply root.
	PowerSupplyDir string `yaml:"power_supply_dir"`

	PowerPollMS   int `yaml:"power_poll_ms"`
	VideoPollMS   int `yaml:"video_poll_ms"`
	NetworkPollMS int `yaml:"network_poll_ms"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type WebConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go defaults and current CLI defaults.
func DefaultConfig() Config {
	return Config{
		Backlight: BacklightConfig{
			Dir: "/sys/class/leds/platform::kbd_backlight",
		},
		Profiles: ProfilesConfig{
			Dir: "~/.config/backlightd",
		},
		Monitors: MonitorsConfig{
			PowerSupplyDir: "/sys/class/power_supply",
			PowerPollMS:    defaultPowerPollMS,
			VideoPollMS:    defaultVideoPollMS,
			NetworkPollMS:  defaultNetworkPollMS,
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/backlightd.sock",
		},
		Web: WebConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:3201",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file.
//
// Notes:
//   - The file must be valid YAML.
//   - Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Ensure there's no trailing garbage (only whitespace/comments are allowed after the document).
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies overrides from flags on top of a loaded config.
//
// Flags should pass pointers; each override is only applied if the pointer
// is non-nil. Keeping the override mechanism separate makes it easy to
// evolve flags without proliferating conditionals all over the code.
type FlagOverrides struct {
	BacklightDir *string
	ProfilesDir  *string

	IPCSocketPath *string

	WebEnabled    *bool
	WebListenAddr *string

	LogLevel *string
}

// Apply merges the overrides into cfg. If an override pointer is nil, it is ignored.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.BacklightDir != nil {
		cfg.Backlight.Dir = *o.BacklightDir
	}
	if o.ProfilesDir != nil {
		cfg.Profiles.Dir = *o.ProfilesDir
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.WebEnabled != nil {
		cfg.Web.Enabled = *o.WebEnabled
	}
	if o.WebListenAddr != nil {
		cfg.Web.ListenAddr = *o.WebListenAddr
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	if c.Backlight.Dir == "" {
		return errors.New("backlight.dir must not be empty")
	}
	if c.Profiles.Dir == "" {
		return errors.New("profiles.dir must not be empty")
	}

	for i, dev := range c.Monitors.InputDevices {
		if dev == "" {
			return fmt.Errorf("monitors.input_devices[%d] is empty", i)
		}
	}
	if c.Monitors.PowerSupplyDir == "" {
		return errors.New("monitors.power_supply_dir must not be empty")
	}
	if c.Monitors.PowerPollMS <= 0 {
		return errors.New("monitors.power_poll_ms must be > 0")
	}
	if c.Monitors.VideoPollMS <= 0 {
		return errors.New("monitors.video_poll_ms must be > 0")
	}
	if c.Monitors.NetworkPollMS <= 0 {
		return errors.New("monitors.network_poll_ms must be > 0")
	}

	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	if c.Web.Enabled && c.Web.ListenAddr == "" {
		return errors.New("web.enabled is true but web.listen_addr is empty")
	}

	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// ExpandPath expands a leading "~" in a path using $HOME.
// This is handy for config values like profiles.dir.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
