package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadConfigFile_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
backlight:
  dir: /sys/class/backlight/intel_backlight
ipc:
  socket_path: /run/backlightd.sock
monitors:
  power_poll_ms: 500
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Backlight.Dir != "/sys/class/backlight/intel_backlight" {
		t.Errorf("backlight dir not applied: %q", cfg.Backlight.Dir)
	}
	if cfg.IPC.SocketPath != "/run/backlightd.sock" {
		t.Errorf("socket path not applied: %q", cfg.IPC.SocketPath)
	}
	if cfg.Monitors.PowerPollMS != 500 {
		t.Errorf("power poll not applied: %d", cfg.Monitors.PowerPollMS)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level not applied: %q", cfg.Logging.Level)
	}
	// Untouched fields keep their defaults.
	if cfg.Monitors.VideoPollMS != defaultVideoPollMS {
		t.Errorf("video poll default lost: %d", cfg.Monitors.VideoPollMS)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config invalid: %v", err)
	}
}

func TestLoadConfigFile_RejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("backlihgt:\n  dir: /tmp\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("expected unknown field rejected")
	}
}

func TestFlagOverrides_Apply(t *testing.T) {
	cfg := DefaultConfig()
	sock := "/run/custom.sock"
	level := "debug"
	enabled := true
	addr := "127.0.0.1:9999"

	FlagOverrides{
		IPCSocketPath: &sock,
		LogLevel:      &level,
		WebEnabled:    &enabled,
		WebListenAddr: &addr,
	}.Apply(&cfg)

	if cfg.IPC.SocketPath != sock {
		t.Errorf("socket override not applied: %q", cfg.IPC.SocketPath)
	}
	if cfg.Logging.Level != level {
		t.Errorf("log level override not applied: %q", cfg.Logging.Level)
	}
	if !cfg.Web.Enabled || cfg.Web.ListenAddr != addr {
		t.Errorf("web overrides not applied: %+v", cfg.Web)
	}
}

func TestConfigValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty backlight dir", func(c *Config) { c.Backlight.Dir = "" }},
		{"empty profiles dir", func(c *Config) { c.Profiles.Dir = "" }},
		{"zero power poll", func(c *Config) { c.Monitors.PowerPollMS = 0 }},
		{"negative video poll", func(c *Config) { c.Monitors.VideoPollMS = -1 }},
		{"empty socket", func(c *Config) { c.IPC.SocketPath = "" }},
		{"web enabled without addr", func(c *Config) { c.Web.Enabled = true; c.Web.ListenAddr = "" }},
		{"empty log level", func(c *Config) { c.Logging.Level = "" }},
		{"empty input device", func(c *Config) { c.Monitors.InputDevices = []string{""} }},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestExpandPathExpandsHome(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	cases := []struct {
		in   string
		want string
	}{
		{"~", "/home/tester"},
		{"~/.config/backlightd", "/home/tester/.config/backlightd"},
		{"~/run/ctl.sock", "/home/tester/run/ctl.sock"},
		{"/tmp/ctl.sock", "/tmp/ctl.sock"},
		{"", ""},
	}
	for _, c := range cases {
		if got := ExpandPath(c.in); got != c.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
