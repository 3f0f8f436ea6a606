package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// runStoreWatcher watches the profile directory for external edits and feeds
// reloaded stores into the daemon loop as StoreReloaded events.
//
// Events are debounced: editors and the daemon's own atomic saves produce
// bursts of create/rename/write notifications, and we only want one reload
// per burst. A reload that fails to parse or validate is logged and dropped;
// the daemon keeps running on its last good store.
func runStoreWatcher(ctx context.Context, dir string, maxLevel int, events chan<- Event, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	profilesDir := filepath.Join(dir, "profiles")
	if err := watcher.Add(profilesDir); err != nil {
		return err
	}

	logger.Info("watching profile directory", "dir", profilesDir)

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantStoreChange(ev) {
				continue
			}
			logger.Debug("profile file changed", "file", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(configReloadDebounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(configReloadDebounce)
			}
			timerCh = timer.C

		case <-timerCh:
			timerCh = nil
			reloadStore(ctx, dir, maxLevel, events, logger)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("profile watcher error", "error", err)
		}
	}
}

// relevantStoreChange filters out notifications that must not trigger a
// reload: temp files from atomic writes, and anything that isn't a profile
// YAML file.
func relevantStoreChange(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Base(ev.Name)
	if strings.HasSuffix(name, ".tmp") {
		return false
	}
	if name == "state.yaml" {
		return false
	}
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

func reloadStore(ctx context.Context, dir string, maxLevel int, events chan<- Event, logger *slog.Logger) {
	store, err := LoadStore(dir)
	if err != nil {
		logger.Warn("profile reload failed; keeping current store", "error", err)
		return
	}
	if err := store.Validate(maxLevel); err != nil {
		logger.Warn("reloaded profiles invalid; keeping current store", "error", err)
		return
	}

	select {
	case events <- StoreReloaded{Store: store}:
		logger.Info("profiles reloaded from disk", "profiles", len(store.Profiles))
	case <-ctx.Done():
	}
}
