package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ============================================================================
// Backlight actuator - sysfs brightness writer
// ============================================================================
//
// Wraps a sysfs LED/backlight class directory, e.g.
// /sys/class/leds/platform::kbd_backlight, which exposes:
//   max_brightness   read-only level count
//   brightness       current level, writable by root or the video group
//
// The level count is discovered at startup and never assumed constant across
// machines. Writes are retried a few times because sysfs occasionally returns
// EBUSY right after suspend/resume.
// ============================================================================

// brightnessActuator is the narrow interface the effects layer depends on.
// *Backlight is the production implementation; tests substitute a mock.
type brightnessActuator interface {
	SetLevel(level int) error
	MaxLevel() int
}

type Backlight struct {
	dir    string
	max    int
	logger *slog.Logger
}

// NewBacklight opens the sysfs directory and reads the hardware level count.
// Failure here is fatal to the daemon: without an actuator there is nothing
// to decide for.
func NewBacklight(dir string, logger *slog.Logger) (*Backlight, error) {
	max, err := readSysfsInt(filepath.Join(dir, "max_brightness"))
	if err != nil {
		return nil, fmt.Errorf("read max_brightness: %w", err)
	}
	if max <= 0 {
		return nil, fmt.Errorf("backlight %s reports max_brightness %d", dir, max)
	}

	// Probe writability up-front so permission problems surface at startup
	// instead of on the first decision.
	current, err := readSysfsInt(filepath.Join(dir, "brightness"))
	if err != nil {
		return nil, fmt.Errorf("read brightness: %w", err)
	}

	b := &Backlight{dir: dir, max: max, logger: logger}
	if err := b.SetLevel(current); err != nil {
		return nil, fmt.Errorf("brightness not writable (run as root or join the 'video' group): %w", err)
	}

	return b, nil
}

// MaxLevel returns the hardware's reported level count.
func (b *Backlight) MaxLevel() int { return b.max }

// Level reads the currently applied hardware level.
func (b *Backlight) Level() (int, error) {
	return readSysfsInt(filepath.Join(b.dir, "brightness"))
}

// SetLevel writes the level, clamped to the hardware range, retrying briefly
// on transient failures.
func (b *Backlight) SetLevel(level int) error {
	if level < 0 {
		level = 0
	}
	if level > b.max {
		level = b.max
	}

	path := filepath.Join(b.dir, "brightness")
	data := []byte(strconv.Itoa(level))

	var lastErr error
	for attempt := 0; attempt < brightnessWriteAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(brightnessWriteDelay)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("write %s: %w", path, lastErr)
}

func readSysfsInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return n, nil
}
