package main

import "time"

// ============================================================================
// Events - inputs to the reducer
// ============================================================================
// Events come from four places:
//   - observation sources (idle/video/power/location/clock adapters)
//   - the daemon loop's tick
//   - the effects layer feeding back actuation/persistence observations
//   - the control plane (IPC/WS), as requests carrying a reply channel
// ============================================================================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// Tick is emitted by the daemon loop at a fixed cadence. Idle elapsed time
// only changes with wall clock, so ticks are what let the idle rule fire
// without any source event arriving.
type Tick struct {
	Now time.Time
}

func (Tick) eventMarker() {}

// ==============================
// Observation source events
// ==============================

// ActivityResumed reports fresh user input; it resets the idle clock.
type ActivityResumed struct {
	At time.Time `json:"at"`
}

func (ActivityResumed) eventMarker() {}

// IdleChanged reports that the idle source observed the user idle for the
// given elapsed duration as of At.
type IdleChanged struct {
	Elapsed time.Duration `json:"elapsed"`
	At      time.Time     `json:"at"`
}

func (IdleChanged) eventMarker() {}

// VideoPlaybackChanged reports a media player starting or stopping playback.
type VideoPlaybackChanged struct {
	Playing bool `json:"playing"`
}

func (VideoPlaybackChanged) eventMarker() {}

// PowerStateChanged reports an AC/battery transition.
type PowerStateChanged struct {
	State PowerState `json:"state"`
}

func (PowerStateChanged) eventMarker() {}

// NetworkChanged reports the current network identity; Present=false means
// not associated.
type NetworkChanged struct {
	SSID    string `json:"ssid"`
	Present bool   `json:"present"`
}

func (NetworkChanged) eventMarker() {}

// SourceFailed is emitted by the supervisor after an adapter exhausted its
// retries. The reducer resets the affected signal to its neutral default.
type SourceFailed struct {
	Kind SourceKind `json:"kind"`
}

func (SourceFailed) eventMarker() {}

// ==============================
// Effects-layer observations
// ==============================

// BrightnessApplied confirms a successful hardware write.
type BrightnessApplied struct {
	Level int
	At    time.Time
}

func (BrightnessApplied) eventMarker() {}

// BrightnessApplyFailed reports a failed hardware write. The level is retried
// on the next evaluation.
type BrightnessApplyFailed struct {
	Level int
	Err   error
	At    time.Time
}

func (BrightnessApplyFailed) eventMarker() {}

// StoreReloaded delivers a freshly loaded and validated store from the config
// watcher. The reducer swaps it in wholesale.
type StoreReloaded struct {
	Store *Store
}

func (StoreReloaded) eventMarker() {}

// ==============================
// Control plane requests
// ==============================

// ControlResult is what the reducer answers a control request with. It is
// delivered to the requester by the effects layer via CmdReply.
type ControlResult struct {
	Err  error
	Data any
}

// ReqStatus asks for a full status snapshot.
type ReqStatus struct {
	Reply chan ControlResult
}

func (ReqStatus) eventMarker() {}

// ReqListProfiles asks for all profile names.
type ReqListProfiles struct {
	Reply chan ControlResult
}

func (ReqListProfiles) eventMarker() {}

// ReqSwitchProfile switches the active profile by name.
type ReqSwitchProfile struct {
	Name  string
	Reply chan ControlResult
}

func (ReqSwitchProfile) eventMarker() {}

// ReqSetManual installs a manual override at the given level.
type ReqSetManual struct {
	Level int
	Reply chan ControlResult
}

func (ReqSetManual) eventMarker() {}

// ReqClearManual removes the manual override.
type ReqClearManual struct {
	Reply chan ControlResult
}

func (ReqClearManual) eventMarker() {}

// ReqAddSchedule adds a schedule entry to a profile.
type ReqAddSchedule struct {
	Profile string
	Entry   ScheduleEntry
	Reply   chan ControlResult
}

func (ReqAddSchedule) eventMarker() {}

// ReqRemoveSchedule removes a schedule entry from a profile.
type ReqRemoveSchedule struct {
	Profile string
	Hour    int
	Minute  int
	Reply   chan ControlResult
}

func (ReqRemoveSchedule) eventMarker() {}

// ReqRefresh forces an immediate re-evaluation.
type ReqRefresh struct {
	Reply chan ControlResult
}

func (ReqRefresh) eventMarker() {}

// StatusInfo is the status payload for the control plane and WS snapshot.
type StatusInfo struct {
	ActiveProfile string          `json:"active_profile"`
	Decision      Decision        `json:"decision"`
	AppliedLevel  int             `json:"applied_level"`
	AppliedKnown  bool            `json:"applied_known"`
	MaxLevel      int             `json:"max_level"`
	Override      *ManualOverride `json:"override,omitempty"`
	IdleElapsedS  int             `json:"idle_elapsed_sec"`
	VideoPlaying  bool            `json:"video_playing"`
	Power         PowerState      `json:"power"`
	SSID          *string         `json:"ssid,omitempty"`
}
