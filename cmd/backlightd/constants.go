package main

import "time"

// Fixed brightness levels used by the rule engine.
const (
	// levelOff is the hardware-off level used by the idle rule and the
	// default rule when a profile has no schedule.
	levelOff = 0

	// videoDimLevel is the fixed low level shown during media playback.
	// It is clamped to the actuator's reported maximum at evaluation time.
	videoDimLevel = 1
)

// Daemon loop and source cadence defaults.
const (
	// evaluationInterval is the daemon loop tick cadence. Idle elapsed time
	// only advances with wall clock, so 1 Hz is enough resolution for the
	// second-granularity idle timeouts profiles use.
	evaluationInterval = time.Second

	defaultPowerPollMS   = 2000
	defaultVideoPollMS   = 5000
	defaultNetworkPollMS = 10000

	// activityThrottle limits how often the idle source reports activity.
	// Input devices can emit hundreds of events per second; one report per
	// throttle window is enough to reset the idle clock.
	activityThrottle = 500 * time.Millisecond
)

// Source supervision defaults.
const (
	sourceMaxRetries     = 5
	sourceInitialBackoff = time.Second
	sourceMaxBackoff     = 30 * time.Second
)

// Actuator write retry policy, matching the hardware's occasional EBUSY on
// sysfs writes right after resume.
const (
	brightnessWriteAttempts = 3
	brightnessWriteDelay    = 50 * time.Millisecond
)

// Config watcher debounce: editors produce bursts of fs events per save.
const configReloadDebounce = 300 * time.Millisecond

// IPC deadlines: how long a request may wait for room in the event queue,
// and for the daemon loop's reply once queued. The queue drains at loop
// speed, so a brief enqueue wait absorbs bursts instead of erroring.
const (
	ipcEnqueueTimeout = 500 * time.Millisecond
	ipcReplyTimeout   = 2 * time.Second
)
