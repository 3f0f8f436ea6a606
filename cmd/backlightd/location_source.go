package main

import (
	"context"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
)

// ============================================================================
// Location source - current WiFi SSID via NetworkManager on the system bus
// ============================================================================
//
// Resolves PrimaryConnection -> SpecificObject (the access point) -> Ssid.
// StateChanged signals trigger immediate re-resolution; a slow poll covers
// missed signals. Wired or absent connectivity reports "no network".
// ============================================================================

const (
	nmService      = "org.freedesktop.NetworkManager"
	nmObjectPath   = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmIface        = "org.freedesktop.NetworkManager"
	nmActiveIface  = "org.freedesktop.NetworkManager.Connection.Active"
	nmAPIface      = "org.freedesktop.NetworkManager.AccessPoint"
	nmStateChanged = "StateChanged"
)

type locationSource struct {
	poll time.Duration

	connect func() (*dbus.Conn, error)
}

func newLocationSource(poll time.Duration) *locationSource {
	return &locationSource{poll: poll, connect: dbus.SystemBus}
}

func (s *locationSource) Kind() SourceKind { return SourceLocation }

func (s *locationSource) Run(ctx context.Context, events chan<- Event) error {
	conn, err := s.connect()
	if err != nil {
		return fmt.Errorf("system bus: %w", err)
	}
	defer conn.Close()

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(nmObjectPath),
		dbus.WithMatchInterface(nmIface),
		dbus.WithMatchMember(nmStateChanged),
	); err != nil {
		return fmt.Errorf("add match: %w", err)
	}

	signals := make(chan *dbus.Signal, dbusSignalsBuffer)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	var last *string
	report := func(ssid string, present bool) error {
		if present && last != nil && *last == ssid {
			return nil
		}
		if !present && last == nil {
			return nil
		}
		if present {
			v := ssid
			last = &v
		} else {
			last = nil
		}
		select {
		case events <- NetworkChanged{SSID: ssid, Present: present}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	probe := func() error {
		ssid, present := currentSSID(conn)
		return report(ssid, present)
	}

	if err := probe(); err != nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-signals:
			if err := probe(); err != nil {
				return nil
			}
		case <-ticker.C:
			if err := probe(); err != nil {
				return nil
			}
		}
	}
}

// currentSSID walks NetworkManager's object graph to the active access
// point's SSID. Any failure along the way means "no wifi network".
func currentSSID(conn *dbus.Conn) (string, bool) {
	nm := conn.Object(nmService, nmObjectPath)

	primary, err := nm.GetProperty(nmIface + ".PrimaryConnection")
	if err != nil {
		return "", false
	}
	primaryPath, ok := primary.Value().(dbus.ObjectPath)
	if !ok || primaryPath == "/" {
		return "", false
	}

	active := conn.Object(nmService, primaryPath)
	connType, err := active.GetProperty(nmActiveIface + ".Type")
	if err != nil {
		return "", false
	}
	if t, ok := connType.Value().(string); !ok || t != "802-11-wireless" {
		return "", false
	}

	specific, err := active.GetProperty(nmActiveIface + ".SpecificObject")
	if err != nil {
		return "", false
	}
	apPath, ok := specific.Value().(dbus.ObjectPath)
	if !ok || apPath == "/" {
		return "", false
	}

	ap := conn.Object(nmService, apPath)
	ssidProp, err := ap.GetProperty(nmAPIface + ".Ssid")
	if err != nil {
		return "", false
	}
	raw, ok := ssidProp.Value().([]byte)
	if !ok || len(raw) == 0 {
		return "", false
	}
	return string(raw), true
}
