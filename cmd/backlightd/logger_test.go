package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"error", slog.LevelError},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"INFO", slog.LevelInfo},
		{"debug", slog.LevelDebug},
	}
	for _, c := range cases {
		got, err := parseLogLevel(c.in)
		if err != nil {
			t.Errorf("parseLogLevel(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}

	if _, err := parseLogLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestComponentLoggerTagsRecords(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	componentLogger(base, "ipc").Info("listening")

	if !strings.Contains(buf.String(), "component=ipc") {
		t.Errorf("record missing component attribute: %q", buf.String())
	}
}
