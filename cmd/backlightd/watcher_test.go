package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func seedStoreDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	s, err := LoadStore(dir)
	if err != nil {
		t.Fatalf("LoadStore: %v", err)
	}
	if err := s.SaveAll(); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	return dir
}

func startWatcher(t *testing.T, dir string) chan Event {
	t.Helper()
	events := make(chan Event, 8)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		if err := runStoreWatcher(ctx, dir, 3, events, testLogger()); err != nil {
			t.Logf("watcher: %v", err)
		}
	}()
	// Give the watcher a moment to install its fsnotify watch.
	time.Sleep(100 * time.Millisecond)
	return events
}

func TestStoreWatcher_ReloadsOnProfileEdit(t *testing.T) {
	dir := seedStoreDir(t)
	events := startWatcher(t, dir)

	profile := `name: evening
idle_timeout_sec: 60
video_detection: false
ac_always_on: false
`
	if err := os.WriteFile(filepath.Join(dir, "profiles", "evening.yaml"), []byte(profile), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	select {
	case ev := <-events:
		sr, ok := ev.(StoreReloaded)
		if !ok {
			t.Fatalf("expected StoreReloaded, got %#v", ev)
		}
		if _, ok := sr.Store.Profiles["evening"]; !ok {
			t.Errorf("reloaded store missing new profile: %v", sr.Store.ProfileNames())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after profile edit")
	}
}

func TestStoreWatcher_IgnoresInvalidEdit(t *testing.T) {
	dir := seedStoreDir(t)
	events := startWatcher(t, dir)

	// Schedule level 9 exceeds the hardware max of 3 the watcher validates
	// against, so no reload may be delivered.
	bad := `name: broken
schedule:
  - hour: 9
    minute: 0
    level: 9
`
	if err := os.WriteFile(filepath.Join(dir, "profiles", "broken.yaml"), []byte(bad), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	select {
	case ev := <-events:
		t.Fatalf("invalid store delivered: %#v", ev)
	case <-time.After(1 * time.Second):
	}
}

func TestStoreWatcher_IgnoresTempFiles(t *testing.T) {
	dir := seedStoreDir(t)
	events := startWatcher(t, dir)

	if err := os.WriteFile(filepath.Join(dir, "profiles", "default.yaml.tmp"), []byte("partial"), 0o644); err != nil {
		t.Fatalf("write temp: %v", err)
	}

	select {
	case ev := <-events:
		t.Fatalf("temp file triggered reload: %#v", ev)
	case <-time.After(700 * time.Millisecond):
	}
}

func TestRelevantStoreChange(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"profiles/home.yaml", true},
		{"profiles/home.yml", true},
		{"profiles/home.yaml.tmp", false},
		{"state.yaml", false},
		{"profiles/.home.yaml.swp", false},
		{"profiles/notes.txt", false},
	}
	for _, c := range cases {
		ev := fsnotify.Event{Name: c.name, Op: fsnotify.Write}
		if got := relevantStoreChange(ev); got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}

	// Chmod alone never triggers a reload.
	ev := fsnotify.Event{Name: "profiles/home.yaml", Op: fsnotify.Chmod}
	if relevantStoreChange(ev) {
		t.Error("chmod treated as relevant")
	}
}
