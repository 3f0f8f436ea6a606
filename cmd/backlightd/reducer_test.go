package main

import (
	"errors"
	"testing"
	"time"
)

// mockActuator is a test double for the sysfs backlight.
type mockActuator struct {
	max      int
	setCalls []int
	failNext error
}

func (m *mockActuator) SetLevel(level int) error {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	m.setCalls = append(m.setCalls, level)
	return nil
}

func (m *mockActuator) MaxLevel() int { return m.max }

func testStore() *Store {
	return &Store{
		Profiles: map[string]Profile{
			"default": {Name: "default", IdleTimeoutSec: 30, VideoDetection: true},
			"home":    {Name: "home", SSIDs: []string{"HomeNet"}},
		},
		Active: ActiveProfileState{ActiveProfile: "default"},
	}
}

func testState() *DaemonState {
	return &DaemonState{
		Store:    testStore(),
		MaxLevel: 3,
	}
}

// drive reduces one event and applies brightness commands against the mock,
// feeding observations back the way the daemon loop does.
func drive(t *testing.T, state *DaemonState, act *mockActuator, ev Event) []Command {
	t.Helper()
	rr := Reduce(state, ev)
	for _, cmd := range rr.Commands {
		if set, ok := cmd.(CmdSetBrightness); ok {
			if err := act.SetLevel(set.Level); err != nil {
				Reduce(state, TimedEvent{Event: BrightnessApplyFailed{Level: set.Level, Err: err, At: time.Now()}, At: time.Now()})
			} else {
				Reduce(state, TimedEvent{Event: BrightnessApplied{Level: set.Level, At: time.Now()}, At: time.Now()})
			}
		}
	}
	return rr.Commands
}

func TestReduce_TickActuatesOnce(t *testing.T) {
	state := testState()
	act := &mockActuator{max: 3}
	now := time.Now()

	drive(t, state, act, Tick{Now: now})
	if len(act.setCalls) != 1 {
		t.Fatalf("expected 1 actuation on first tick, got %d", len(act.setCalls))
	}

	// Further ticks with an unchanged decision must not rewrite the hardware.
	drive(t, state, act, Tick{Now: now.Add(time.Second)})
	drive(t, state, act, Tick{Now: now.Add(2 * time.Second)})
	if len(act.setCalls) != 1 {
		t.Errorf("expected no further actuations, got %d calls", len(act.setCalls))
	}
}

func TestReduce_BatchedEventsCoalesceIntoOneWrite(t *testing.T) {
	state := testState()
	now := time.Now()

	// Two video events reduced back-to-back before any effect runs, the way
	// the daemon loop drains its backlog. Only the second transition changes
	// the level, so exactly one write may be emitted per distinct level.
	var cmds []Command
	rr := Reduce(state, TimedEvent{Event: VideoPlaybackChanged{Playing: true}, At: now})
	cmds = append(cmds, rr.Commands...)
	rr = Reduce(state, TimedEvent{Event: VideoPlaybackChanged{Playing: true}, At: now})
	cmds = append(cmds, rr.Commands...)

	writes := 0
	for _, cmd := range cmds {
		if _, ok := cmd.(CmdSetBrightness); ok {
			writes++
		}
	}
	if writes != 1 {
		t.Errorf("expected 1 brightness write for repeated identical events, got %d", writes)
	}
}

func TestReduce_FailedWriteRetriesNextEvaluation(t *testing.T) {
	state := testState()
	act := &mockActuator{max: 3, failNext: errors.New("ebusy")}
	now := time.Now()

	drive(t, state, act, Tick{Now: now})
	if len(act.setCalls) != 0 {
		t.Fatalf("expected first write to fail, got %d successful calls", len(act.setCalls))
	}

	// The failure reset the requested level, so the next tick retries.
	drive(t, state, act, Tick{Now: now.Add(time.Second)})
	if len(act.setCalls) != 1 {
		t.Errorf("expected retry on next tick, got %d calls", len(act.setCalls))
	}
}

func TestReduce_OverridePersistsAcrossProfileSwitch(t *testing.T) {
	state := testState()
	now := time.Now()

	reply := make(chan ControlResult, 1)
	Reduce(state, TimedEvent{Event: ReqSetManual{Level: 2, Reply: reply}, At: now})
	if state.Store.Active.Override == nil {
		t.Fatal("override not installed")
	}

	reply2 := make(chan ControlResult, 1)
	Reduce(state, TimedEvent{Event: ReqSwitchProfile{Name: "home", Reply: reply2}, At: now})
	if state.Store.Active.ActiveProfile != "home" {
		t.Fatalf("expected active profile home, got %q", state.Store.Active.ActiveProfile)
	}
	if state.Store.Active.Override == nil {
		t.Error("override lost across profile switch")
	}

	dec := Evaluate(state.Signals, state.Store.ActiveProfile(), state.Store.Active.Override, now, state.MaxLevel)
	if dec.Rule != RuleManual || dec.Level != 2 {
		t.Errorf("expected manual decision at level 2 after switch, got %+v", dec)
	}
}

func TestReduce_SwitchProfileUnknownIsNotFound(t *testing.T) {
	state := testState()
	reply := make(chan ControlResult, 1)
	rr := Reduce(state, TimedEvent{Event: ReqSwitchProfile{Name: "nope", Reply: reply}, At: time.Now()})

	res := findReply(t, rr.Commands)
	var nf *NotFoundError
	if !errors.As(res.Err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", res.Err)
	}
	if state.Store.Active.ActiveProfile != "default" {
		t.Errorf("active profile changed on failed switch: %q", state.Store.Active.ActiveProfile)
	}
}

func TestReduce_SetManualOutOfRangeIsValidationError(t *testing.T) {
	state := testState()
	reply := make(chan ControlResult, 1)
	rr := Reduce(state, TimedEvent{Event: ReqSetManual{Level: 99, Reply: reply}, At: time.Now()})

	res := findReply(t, rr.Commands)
	var ve *ValidationError
	if !errors.As(res.Err, &ve) {
		t.Fatalf("expected ValidationError, got %v", res.Err)
	}
	if state.Store.Active.Override != nil {
		t.Error("override installed despite validation failure")
	}
}

func TestReduce_ClearManualIsIdempotent(t *testing.T) {
	state := testState()
	reply := make(chan ControlResult, 1)
	rr := Reduce(state, TimedEvent{Event: ReqClearManual{Reply: reply}, At: time.Now()})

	res := findReply(t, rr.Commands)
	if res.Err != nil {
		t.Errorf("clearing an absent override must succeed, got %v", res.Err)
	}
}

func TestReduce_AddScheduleRejectsDuplicateSlot(t *testing.T) {
	state := testState()
	now := time.Now()

	reply := make(chan ControlResult, 1)
	rr := Reduce(state, TimedEvent{Event: ReqAddSchedule{
		Profile: "default",
		Entry:   ScheduleEntry{Hour: 22, Minute: 0, Level: 1},
		Reply:   reply,
	}, At: now})
	if res := findReply(t, rr.Commands); res.Err != nil {
		t.Fatalf("first add failed: %v", res.Err)
	}

	reply2 := make(chan ControlResult, 1)
	rr = Reduce(state, TimedEvent{Event: ReqAddSchedule{
		Profile: "default",
		Entry:   ScheduleEntry{Hour: 22, Minute: 0, Level: 2},
		Reply:   reply2,
	}, At: now})
	res := findReply(t, rr.Commands)
	var ve *ValidationError
	if !errors.As(res.Err, &ve) {
		t.Fatalf("expected ValidationError for duplicate slot, got %v", res.Err)
	}
	if len(state.Store.Profiles["default"].Schedule) != 1 {
		t.Errorf("schedule mutated by rejected add: %v", state.Store.Profiles["default"].Schedule)
	}
}

func TestReduce_NetworkChangeSwitchesOwnedProfile(t *testing.T) {
	state := testState()
	now := time.Now()

	rr := Reduce(state, TimedEvent{Event: NetworkChanged{SSID: "HomeNet", Present: true}, At: now})
	if state.Store.Active.ActiveProfile != "home" {
		t.Fatalf("expected auto-switch to home, got %q", state.Store.Active.ActiveProfile)
	}

	// The switch must persist active state and resync monitors.
	var saved, synced bool
	for _, cmd := range rr.Commands {
		switch cmd.(type) {
		case CmdSaveActiveState:
			saved = true
		case CmdSyncMonitors:
			synced = true
		}
	}
	if !saved {
		t.Error("auto-switch did not persist active state")
	}
	if !synced {
		t.Error("auto-switch did not resync monitors")
	}

	// The same network again is a no-op switch.
	rr = Reduce(state, TimedEvent{Event: NetworkChanged{SSID: "HomeNet", Present: true}, At: now})
	for _, cmd := range rr.Commands {
		if _, ok := cmd.(CmdSaveActiveState); ok {
			t.Error("redundant save on unchanged network")
		}
	}

	// An unowned network leaves the profile alone.
	Reduce(state, TimedEvent{Event: NetworkChanged{SSID: "CoffeeShop", Present: true}, At: now})
	if state.Store.Active.ActiveProfile != "home" {
		t.Errorf("unowned network changed active profile to %q", state.Store.Active.ActiveProfile)
	}
}

func TestReduce_SourceFailureResetsSignal(t *testing.T) {
	state := testState()
	now := time.Now()

	Reduce(state, TimedEvent{Event: VideoPlaybackChanged{Playing: true}, At: now})
	if !state.Signals.VideoPlaying {
		t.Fatal("video signal not set")
	}

	Reduce(state, TimedEvent{Event: SourceFailed{Kind: SourceVideo}, At: now})
	if state.Signals.VideoPlaying {
		t.Error("video signal not reset after source failure")
	}

	Reduce(state, TimedEvent{Event: PowerStateChanged{State: PowerAC}, At: now})
	Reduce(state, TimedEvent{Event: SourceFailed{Kind: SourcePower}, At: now})
	if state.Signals.Power != PowerUnknown {
		t.Errorf("power signal not reset, got %s", state.Signals.Power)
	}
}

func TestReduce_StatusSnapshot(t *testing.T) {
	state := testState()
	now := time.Now()

	Reduce(state, Tick{Now: now})
	Reduce(state, TimedEvent{Event: PowerStateChanged{State: PowerAC}, At: now})

	reply := make(chan ControlResult, 1)
	rr := Reduce(state, TimedEvent{Event: ReqStatus{Reply: reply}, At: now})
	res := findReply(t, rr.Commands)
	if res.Err != nil {
		t.Fatalf("status failed: %v", res.Err)
	}
	st, ok := res.Data.(StatusInfo)
	if !ok {
		t.Fatalf("expected StatusInfo, got %T", res.Data)
	}
	if st.ActiveProfile != "default" {
		t.Errorf("expected active profile default, got %q", st.ActiveProfile)
	}
	if st.Power != PowerAC {
		t.Errorf("expected power ac, got %s", st.Power)
	}
	if st.MaxLevel != 3 {
		t.Errorf("expected max level 3, got %d", st.MaxLevel)
	}
}

func TestReduce_StoreReloadedKeepsActiveSelection(t *testing.T) {
	state := testState()
	now := time.Now()
	state.Store.Active.ActiveProfile = "home"

	// Reloaded store still contains "home": in-memory selection wins over
	// whatever state.yaml said on disk.
	next := testStore()
	next.Active.ActiveProfile = "default"
	Reduce(state, TimedEvent{Event: StoreReloaded{Store: next}, At: now})
	if state.Store.Active.ActiveProfile != "home" {
		t.Errorf("reload clobbered active selection: %q", state.Store.Active.ActiveProfile)
	}

	// Reloaded store without "home": fall back to the reloaded selection.
	gone := &Store{
		Profiles: map[string]Profile{"default": {Name: "default"}},
		Active:   ActiveProfileState{ActiveProfile: "default"},
	}
	Reduce(state, TimedEvent{Event: StoreReloaded{Store: gone}, At: now})
	if state.Store.Active.ActiveProfile != "default" {
		t.Errorf("expected fallback to default, got %q", state.Store.Active.ActiveProfile)
	}
}

func TestReduce_DecisionChangeBroadcastsOnce(t *testing.T) {
	state := testState()
	now := time.Now()

	rr := Reduce(state, Tick{Now: now})
	if countBroadcasts(rr.Commands, "decision_changed") != 1 {
		t.Fatal("expected decision_changed on first evaluation")
	}

	rr = Reduce(state, Tick{Now: now.Add(time.Second)})
	if countBroadcasts(rr.Commands, "decision_changed") != 0 {
		t.Error("decision_changed re-broadcast without a change")
	}

	rr = Reduce(state, TimedEvent{Event: VideoPlaybackChanged{Playing: true}, At: now.Add(2 * time.Second)})
	if countBroadcasts(rr.Commands, "decision_changed") != 1 {
		t.Error("expected decision_changed after video transition")
	}
}

func TestReduce_SaveAfterReloadPersistsFreshStore(t *testing.T) {
	dir := t.TempDir()
	st, err := LoadStore(dir)
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	if err := st.SaveAll(); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	state := &DaemonState{Store: st, MaxLevel: 3}
	now := time.Now()

	// The watcher hands the daemon a freshly loaded store.
	reloaded, err := LoadStore(dir)
	if err != nil {
		t.Fatalf("reload store: %v", err)
	}
	Reduce(state, TimedEvent{Event: StoreReloaded{Store: reloaded}, At: now})

	reply := make(chan ControlResult, 1)
	rr := Reduce(state, TimedEvent{Event: ReqSetManual{Level: 2, Reply: reply}, At: now})
	if res := findReply(t, rr.Commands); res.Err != nil {
		t.Fatalf("set-manual failed: %v", res.Err)
	}

	// Run the persistence effect exactly as the daemon loop would. The save
	// command must carry the post-reload store, not the one main bound at
	// startup.
	for _, cmd := range rr.Commands {
		if save, ok := cmd.(CmdSaveActiveState); ok {
			if save.Store != reloaded {
				t.Fatal("save command carries a stale store")
			}
			runEffect(effectDeps{}, save, testLogger(), func(Event) {})
		}
	}

	onDisk, err := LoadStore(dir)
	if err != nil {
		t.Fatalf("load persisted store: %v", err)
	}
	if onDisk.Active.Override == nil || onDisk.Active.Override.Level != 2 {
		t.Fatalf("override not persisted after reload: %+v", onDisk.Active)
	}
}

func findReply(t *testing.T, cmds []Command) ControlResult {
	t.Helper()
	for _, cmd := range cmds {
		if r, ok := cmd.(CmdReply); ok {
			return r.Result
		}
	}
	t.Fatal("no CmdReply emitted")
	return ControlResult{}
}

func countBroadcasts(cmds []Command, typ string) int {
	n := 0
	for _, cmd := range cmds {
		if b, ok := cmd.(CmdBroadcast); ok && b.Type == typ {
			n++
		}
	}
	return n
}
