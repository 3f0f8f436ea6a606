package main

import "time"

// DaemonState is the top-level, daemon-owned state container.
//
// The daemon loop goroutine is the sole owner: every field is read and
// written only while reducing events, which is what gives the one-evaluation-
// at-a-time critical section and the consistent signal snapshot. Nothing
// outside the reducer path may hold a reference into it.
type DaemonState struct {
	// Signals is the latest observed value per source.
	Signals SignalSnapshot

	// Store holds profiles plus active state. Reducer-owned; the effects
	// layer persists it on CmdSave* commands.
	Store *Store

	// MaxLevel is the actuator's level count, discovered at startup.
	MaxLevel int

	// Requested tracks the last level handed to the actuator, so batched
	// evaluations coalesce into one write per distinct level. Reset to
	// unknown after a failed write so the next evaluation retries.
	RequestedLevel int
	RequestedKnown bool

	// Applied tracks the last level confirmed written to hardware.
	AppliedLevel int
	AppliedKnown bool

	// LastDecision is the most recent rule engine output.
	LastDecision  Decision
	DecisionKnown bool
}

// MonitorParams is the subset of active-profile configuration the observation
// source adapters depend on.
func (s *DaemonState) MonitorParams() MonitorParams {
	p := s.Store.ActiveProfile()
	return MonitorParams{
		IdleTimeout:    p.IdleTimeout(),
		VideoDetection: p.VideoDetection,
		SSIDs:          append([]string(nil), p.SSIDs...),
	}
}

// SetActivity records fresh user activity.
// Called only from the daemon goroutine (single-owner).
func (s *DaemonState) SetActivity(at time.Time) {
	s.Signals.LastActivityAt = at
}

// SetIdleBaseline aligns the idle clock with an explicit elapsed duration
// reported by the idle source.
// Called only from the daemon goroutine (single-owner).
func (s *DaemonState) SetIdleBaseline(elapsed time.Duration, at time.Time) {
	s.Signals.LastActivityAt = at.Add(-elapsed)
}

// SetVideoPlaying records the media playback signal.
// Called only from the daemon goroutine (single-owner).
func (s *DaemonState) SetVideoPlaying(playing bool) {
	s.Signals.VideoPlaying = playing
}

// SetPower records the AC/battery signal.
// Called only from the daemon goroutine (single-owner).
func (s *DaemonState) SetPower(state PowerState) {
	s.Signals.Power = state
}

// SetNetwork records the current network identity.
// Called only from the daemon goroutine (single-owner).
func (s *DaemonState) SetNetwork(ssid string, present bool) {
	if !present {
		s.Signals.SSID = nil
		return
	}
	v := ssid
	s.Signals.SSID = &v
}

// ResetSignal restores a signal's neutral default after its source failed.
// Called only from the daemon goroutine (single-owner).
func (s *DaemonState) ResetSignal(kind SourceKind) {
	switch kind {
	case SourceIdle:
		s.Signals.LastActivityAt = time.Time{}
	case SourceVideo:
		s.Signals.VideoPlaying = false
	case SourcePower:
		s.Signals.Power = PowerUnknown
	case SourceLocation:
		s.Signals.SSID = nil
	}
}

// Status assembles the control-plane status payload.
// Called only from the daemon goroutine (single-owner).
func (s *DaemonState) Status(now time.Time) StatusInfo {
	return StatusInfo{
		ActiveProfile: s.Store.Active.ActiveProfile,
		Decision:      s.LastDecision,
		AppliedLevel:  s.AppliedLevel,
		AppliedKnown:  s.AppliedKnown,
		MaxLevel:      s.MaxLevel,
		Override:      s.Store.Active.Override,
		IdleElapsedS:  int(s.Signals.IdleElapsed(now) / time.Second),
		VideoPlaying:  s.Signals.VideoPlaying,
		Power:         s.Signals.Power,
		SSID:          s.Signals.SSID,
	}
}
