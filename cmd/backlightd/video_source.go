package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

// ============================================================================
// Video source - media playback via MPRIS on the session bus
// ============================================================================
//
// Any bus name under org.mpris.MediaPlayer2.* with PlaybackStatus "Playing"
// counts as video playing. PropertiesChanged signals give low latency; a slow
// poll catches players that appear or vanish without signaling.
// ============================================================================

const (
	mprisPrefix       = "org.mpris.MediaPlayer2."
	mprisObjectPath   = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	mprisPlayerIface  = "org.mpris.MediaPlayer2.Player"
	dbusPropsIface    = "org.freedesktop.DBus.Properties"
	dbusPropsGet      = dbusPropsIface + ".Get"
	dbusListNames     = "org.freedesktop.DBus.ListNames"
	dbusSignalsBuffer = 16
)

type videoSource struct {
	poll time.Duration

	// connect is swappable for tests.
	connect func() (*dbus.Conn, error)
}

func newVideoSource(poll time.Duration) *videoSource {
	return &videoSource{poll: poll, connect: dbus.SessionBus}
}

func (s *videoSource) Kind() SourceKind { return SourceVideo }

func (s *videoSource) Run(ctx context.Context, events chan<- Event) error {
	conn, err := s.connect()
	if err != nil {
		return fmt.Errorf("session bus: %w", err)
	}
	defer conn.Close()

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(mprisObjectPath),
		dbus.WithMatchInterface(dbusPropsIface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return fmt.Errorf("add match: %w", err)
	}

	signals := make(chan *dbus.Signal, dbusSignalsBuffer)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	last := false
	report := func(playing bool) error {
		if playing == last {
			return nil
		}
		last = playing
		select {
		case events <- VideoPlaybackChanged{Playing: playing}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Initial probe.
	if playing, err := anyPlayerPlaying(conn); err == nil {
		if err := report(playing); err != nil {
			return nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-signals:
			// A player changed properties; re-probe rather than trusting the
			// signal body, players are sloppy about invalidated properties.
			playing, err := anyPlayerPlaying(conn)
			if err != nil {
				return err
			}
			if err := report(playing); err != nil {
				return nil
			}

		case <-ticker.C:
			playing, err := anyPlayerPlaying(conn)
			if err != nil {
				return err
			}
			if err := report(playing); err != nil {
				return nil
			}
		}
	}
}

// anyPlayerPlaying reports whether any MPRIS player is currently playing.
func anyPlayerPlaying(conn *dbus.Conn) (bool, error) {
	var names []string
	if err := conn.BusObject().Call(dbusListNames, 0).Store(&names); err != nil {
		return false, fmt.Errorf("list names: %w", err)
	}

	for _, name := range names {
		if !strings.HasPrefix(name, mprisPrefix) {
			continue
		}
		obj := conn.Object(name, mprisObjectPath)
		var status dbus.Variant
		if err := obj.Call(dbusPropsGet, 0, mprisPlayerIface, "PlaybackStatus").Store(&status); err != nil {
			// Player vanished between ListNames and Get; ignore it.
			continue
		}
		if str, ok := status.Value().(string); ok && str == "Playing" {
			return true, nil
		}
	}
	return false, nil
}
