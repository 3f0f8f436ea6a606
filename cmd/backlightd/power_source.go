package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ============================================================================
// Power source - AC/battery via /sys/class/power_supply
// ============================================================================
//
// Prefers a Mains supply's "online" flag; falls back to battery "status"
// (Discharging means battery, anything else means externally powered) on
// machines whose ACPI tables don't expose a Mains node.
// ============================================================================

type powerSource struct {
	root string
	poll time.Duration
}

func newPowerSource(root string, poll time.Duration) *powerSource {
	if root == "" {
		root = "/sys/class/power_supply"
	}
	return &powerSource{root: root, poll: poll}
}

func (s *powerSource) Kind() SourceKind { return SourcePower }

func (s *powerSource) Run(ctx context.Context, events chan<- Event) error {
	// First read up-front so the daemon gets an initial power state without
	// waiting a full poll interval.
	state, err := s.read()
	if err != nil {
		return err
	}
	select {
	case events <- PowerStateChanged{State: state}:
	case <-ctx.Done():
		return nil
	}
	last := state

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			state, err := s.read()
			if err != nil {
				return err
			}
			if state == last {
				continue
			}
			last = state
			select {
			case events <- PowerStateChanged{State: state}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (s *powerSource) read() (PowerState, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return PowerUnknown, fmt.Errorf("read %s: %w", s.root, err)
	}

	var batteryStatus string
	for _, e := range entries {
		dir := filepath.Join(s.root, e.Name())
		typ, err := readTrimmed(filepath.Join(dir, "type"))
		if err != nil {
			continue
		}
		switch typ {
		case "Mains":
			online, err := readTrimmed(filepath.Join(dir, "online"))
			if err != nil {
				continue
			}
			if online == "1" {
				return PowerAC, nil
			}
			return PowerBattery, nil
		case "Battery":
			if st, err := readTrimmed(filepath.Join(dir, "status")); err == nil {
				batteryStatus = st
			}
		}
	}

	switch batteryStatus {
	case "":
		// No battery and no mains node: assume a desktop on wall power.
		return PowerAC, nil
	case "Discharging":
		return PowerBattery, nil
	default:
		return PowerAC, nil
	}
}

func readTrimmed(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
