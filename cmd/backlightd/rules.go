package main

import "time"

// ============================================================================
// Rule Engine - pure decision function
// ============================================================================
//
// Evaluate is the single source of truth for "what should the backlight show
// right now". It performs no I/O and mutates nothing, so tests can drive it
// exhaustively with synthetic signal states.
//
// Priority order, first match wins:
//   1. manual override
//   2. video playback (profile opt-in) -> fixed dim level
//   3. AC always-on (profile opt-in)   -> full level
//   4. time schedule (with wrap to the previous day's latest entry)
//   5. idle timeout                    -> off
//   6. default                         -> off
// ============================================================================

// Rule identifies which rule produced a Decision.
type Rule string

const (
	RuleManual   Rule = "manual_override"
	RuleVideo    Rule = "video"
	RuleACPower  Rule = "ac_always_on"
	RuleSchedule Rule = "schedule"
	RuleIdle     Rule = "idle_timeout"
	RuleDefault  Rule = "default"
)

// Decision is the rule engine's output: a target brightness level plus the
// rule that produced it. Ephemeral; recomputed on every evaluation.
type Decision struct {
	Level int  `json:"level"`
	Rule  Rule `json:"rule"`
}

// PowerState is the coarse AC/battery signal.
type PowerState string

const (
	PowerUnknown PowerState = "unknown"
	PowerAC      PowerState = "ac"
	PowerBattery PowerState = "battery"
)

// SignalSnapshot is the consistent read of all signal fields the rule engine
// evaluates against. The daemon loop is the sole writer, so a plain copy of
// its state is already a coherent snapshot.
type SignalSnapshot struct {
	// LastActivityAt is the most recent user activity reported by the idle
	// source. Zero means activity has never been observed (neutral default:
	// never idle).
	LastActivityAt time.Time

	VideoPlaying bool
	Power        PowerState

	// SSID is the current network identity; nil when not associated or when
	// the location source is unavailable.
	SSID *string
}

// IdleElapsed returns how long the user has been idle as of now.
func (s SignalSnapshot) IdleElapsed(now time.Time) time.Duration {
	if s.LastActivityAt.IsZero() {
		return 0
	}
	d := now.Sub(s.LastActivityAt)
	if d < 0 {
		return 0
	}
	return d
}

// Evaluate computes the target brightness level for the given inputs.
// maxLevel is the actuator's reported level count, discovered at startup.
func Evaluate(sig SignalSnapshot, p Profile, override *ManualOverride, now time.Time, maxLevel int) Decision {
	if override != nil {
		return Decision{Level: clampLevel(override.Level, maxLevel), Rule: RuleManual}
	}

	if p.VideoDetection && sig.VideoPlaying {
		return Decision{Level: clampLevel(videoDimLevel, maxLevel), Rule: RuleVideo}
	}

	if p.ACAlwaysOn && sig.Power == PowerAC {
		return Decision{Level: maxLevel, Rule: RuleACPower}
	}

	if entry, ok := scheduleEntryFor(p.Schedule, now); ok {
		return Decision{Level: clampLevel(entry.Level, maxLevel), Rule: RuleSchedule}
	}

	timeout := p.IdleTimeout()
	if timeout > 0 && sig.IdleElapsed(now) >= timeout {
		return Decision{Level: levelOff, Rule: RuleIdle}
	}

	return Decision{Level: levelOff, Rule: RuleDefault}
}

// scheduleEntryFor picks the entry whose (hour, minute) is the latest one not
// after now's time of day. If now precedes every entry, the schedule wraps to
// the latest entry of the previous day. Empty schedules never match.
func scheduleEntryFor(entries []ScheduleEntry, now time.Time) (ScheduleEntry, bool) {
	if len(entries) == 0 {
		return ScheduleEntry{}, false
	}

	nowMin := now.Hour()*60 + now.Minute()

	best := -1
	bestMin := -1
	latest := 0
	latestMin := -1
	for i, e := range entries {
		m := e.Hour*60 + e.Minute
		if m <= nowMin && m > bestMin {
			best = i
			bestMin = m
		}
		if m > latestMin {
			latest = i
			latestMin = m
		}
	}

	if best >= 0 {
		return entries[best], true
	}
	// Before the first entry of the day: carry over yesterday's last entry.
	return entries[latest], true
}

func clampLevel(level, maxLevel int) int {
	if level < 0 {
		return 0
	}
	if maxLevel >= 0 && level > maxLevel {
		return maxLevel
	}
	return level
}
