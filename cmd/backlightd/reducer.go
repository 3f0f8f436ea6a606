package main

import "time"

// This file implements the reducer core:
//
//   - Reduce() computes next state + commands, without performing I/O
//   - the daemon loop executes Commands and feeds observations back as Events
//
// The reducer must be pure: no I/O, no blocking, no mutation outside the
// returned state. All shared mutable state (signals + profile store) lives in
// DaemonState, so one reduction is the single decision critical section:
// adapter events and control-plane mutations are serialized here, and at most
// one evaluation/actuation is in flight at a time.

// TimedEvent wraps an externally produced Event with its arrival time, so
// payload event types stay clean and the reducer never reads the wall clock.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// ReduceResult is the output of Reduce(): next state plus commands to run.
type ReduceResult struct {
	State    *DaemonState
	Commands []Command
}

// Reduce is the pure reducer.
func Reduce(s *DaemonState, e Event) ReduceResult {
	var cmds []Command

	switch ev := e.(type) {
	case Tick:
		cmds = evaluate(s, ev.Now, cmds)

	case TimedEvent:
		cmds = reduceExternal(s, ev.Event, ev.At, cmds)

	default:
		// Bare external event without a timestamp; should not happen, but
		// reducing it against a zero time keeps the signal updates correct.
		cmds = reduceExternal(s, e, time.Time{}, cmds)
	}

	return ReduceResult{State: s, Commands: cmds}
}

func reduceExternal(s *DaemonState, e Event, now time.Time, cmds []Command) []Command {
	switch ev := e.(type) {

	// ---- observation source events ----

	case ActivityResumed:
		at := ev.At
		if at.IsZero() {
			at = now
		}
		s.SetActivity(at)
		cmds = evaluate(s, now, cmds)

	case IdleChanged:
		at := ev.At
		if at.IsZero() {
			at = now
		}
		s.SetIdleBaseline(ev.Elapsed, at)
		cmds = evaluate(s, now, cmds)

	case VideoPlaybackChanged:
		if s.Signals.VideoPlaying != ev.Playing {
			s.SetVideoPlaying(ev.Playing)
			cmds = append(cmds, broadcastSignals(s))
		}
		cmds = evaluate(s, now, cmds)

	case PowerStateChanged:
		if s.Signals.Power != ev.State {
			s.SetPower(ev.State)
			cmds = append(cmds, broadcastSignals(s))
		}
		cmds = evaluate(s, now, cmds)

	case NetworkChanged:
		s.SetNetwork(ev.SSID, ev.Present)
		cmds = append(cmds, broadcastSignals(s))
		// A network that belongs to a profile selects that profile. SSID
		// uniqueness across the store makes this unambiguous.
		if ev.Present {
			if name, ok := s.Store.ProfileForSSID(ev.SSID); ok && name != s.Store.Active.ActiveProfile {
				if err := s.Store.SwitchProfile(name); err == nil {
					cmds = append(cmds,
						CmdSaveActiveState{Store: s.Store},
						CmdSyncMonitors{Params: s.MonitorParams()},
						CmdBroadcast{Type: "profile_changed", Data: profileChangedData{Name: name}},
					)
				}
			}
		}
		cmds = evaluate(s, now, cmds)

	case SourceFailed:
		s.ResetSignal(ev.Kind)
		cmds = evaluate(s, now, cmds)

	case ScheduleTick:
		at := ev.At
		if at.IsZero() {
			at = now
		}
		cmds = evaluate(s, at, cmds)

	// ---- effects-layer observations ----

	case BrightnessApplied:
		s.AppliedLevel = ev.Level
		s.AppliedKnown = true

	case BrightnessApplyFailed:
		// Forget the pending request so the next evaluation retries.
		s.RequestedKnown = false
		s.AppliedKnown = false

	case StoreReloaded:
		next := ev.Store
		// In-memory active state is authoritative over what the watcher read
		// from disk, as long as its profile still exists.
		if _, ok := next.Profiles[s.Store.Active.ActiveProfile]; ok {
			next.Active = s.Store.Active
		} else {
			cmds = append(cmds, CmdBroadcast{Type: "profile_changed", Data: profileChangedData{Name: next.Active.ActiveProfile}})
		}
		s.Store = next
		cmds = append(cmds, CmdSyncMonitors{Params: s.MonitorParams()})
		cmds = evaluate(s, now, cmds)

	// ---- control plane requests ----

	case ReqStatus:
		cmds = append(cmds, CmdReply{Reply: ev.Reply, Result: ControlResult{Data: s.Status(now)}})

	case ReqListProfiles:
		cmds = append(cmds, CmdReply{Reply: ev.Reply, Result: ControlResult{Data: s.Store.ProfileNames()}})

	case ReqSwitchProfile:
		if err := s.Store.SwitchProfile(ev.Name); err != nil {
			cmds = append(cmds, CmdReply{Reply: ev.Reply, Result: ControlResult{Err: err}})
			break
		}
		cmds = append(cmds,
			CmdSaveActiveState{Store: s.Store},
			CmdSyncMonitors{Params: s.MonitorParams()},
			CmdBroadcast{Type: "profile_changed", Data: profileChangedData{Name: ev.Name}},
		)
		cmds = evaluate(s, now, cmds)
		cmds = append(cmds, CmdReply{Reply: ev.Reply, Result: ControlResult{}})

	case ReqSetManual:
		if err := s.Store.SetManualOverride(ev.Level, s.MaxLevel, now); err != nil {
			cmds = append(cmds, CmdReply{Reply: ev.Reply, Result: ControlResult{Err: err}})
			break
		}
		cmds = append(cmds, CmdSaveActiveState{Store: s.Store})
		cmds = evaluate(s, now, cmds)
		cmds = append(cmds, CmdReply{Reply: ev.Reply, Result: ControlResult{}})

	case ReqClearManual:
		s.Store.ClearManualOverride()
		cmds = append(cmds, CmdSaveActiveState{Store: s.Store})
		cmds = evaluate(s, now, cmds)
		cmds = append(cmds, CmdReply{Reply: ev.Reply, Result: ControlResult{}})

	case ReqAddSchedule:
		if err := s.Store.AddScheduleEntry(ev.Profile, ev.Entry, s.MaxLevel); err != nil {
			cmds = append(cmds, CmdReply{Reply: ev.Reply, Result: ControlResult{Err: err}})
			break
		}
		cmds = append(cmds, CmdSaveProfile{Store: s.Store, Name: ev.Profile})
		cmds = evaluate(s, now, cmds)
		cmds = append(cmds, CmdReply{Reply: ev.Reply, Result: ControlResult{}})

	case ReqRemoveSchedule:
		if err := s.Store.RemoveScheduleEntry(ev.Profile, ev.Hour, ev.Minute); err != nil {
			cmds = append(cmds, CmdReply{Reply: ev.Reply, Result: ControlResult{Err: err}})
			break
		}
		cmds = append(cmds, CmdSaveProfile{Store: s.Store, Name: ev.Profile})
		cmds = evaluate(s, now, cmds)
		cmds = append(cmds, CmdReply{Reply: ev.Reply, Result: ControlResult{}})

	case ReqRefresh:
		cmds = evaluate(s, now, cmds)
		cmds = append(cmds, CmdReply{Reply: ev.Reply, Result: ControlResult{}})

	default:
		// Unknown event type: no-op.
	}

	return cmds
}

// evaluate runs the rule engine against the current snapshot and emits an
// actuation command only when the target differs from the last applied level.
// Re-evaluating unchanged inputs is idempotent and issues no second write.
func evaluate(s *DaemonState, now time.Time, cmds []Command) []Command {
	dec := Evaluate(s.Signals, s.Store.ActiveProfile(), s.Store.Active.Override, now, s.MaxLevel)

	if !s.DecisionKnown || dec != s.LastDecision {
		cmds = append(cmds, CmdBroadcast{Type: "decision_changed", Data: dec})
	}
	s.LastDecision = dec
	s.DecisionKnown = true

	if !s.RequestedKnown || dec.Level != s.RequestedLevel {
		cmds = append(cmds, CmdSetBrightness{Level: dec.Level, Rule: dec.Rule})
		s.RequestedLevel = dec.Level
		s.RequestedKnown = true
	}

	return cmds
}

// profileChangedData is the broadcast payload for profile switches.
type profileChangedData struct {
	Name string `json:"name"`
}

// signalsData is the broadcast payload for signal transitions.
type signalsData struct {
	VideoPlaying bool       `json:"video_playing"`
	Power        PowerState `json:"power"`
	SSID         *string    `json:"ssid,omitempty"`
}

func broadcastSignals(s *DaemonState) Command {
	return CmdBroadcast{Type: "signals_changed", Data: signalsData{
		VideoPlaying: s.Signals.VideoPlaying,
		Power:        s.Signals.Power,
		SSID:         s.Signals.SSID,
	}}
}
