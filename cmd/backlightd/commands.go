package main

import "fmt"

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect requested by the reducer and
// executed by the daemon loop via runEffect.
type Command interface {
	commandMarker()
	String() string
}

// CmdSetBrightness applies a decision to the hardware.
type CmdSetBrightness struct {
	Level int
	Rule  Rule
}

func (CmdSetBrightness) commandMarker() {}
func (c CmdSetBrightness) String() string {
	return fmt.Sprintf("CmdSetBrightness(level=%d rule=%s)", c.Level, c.Rule)
}

// CmdSaveActiveState persists the active profile + override record. The
// store travels in the command so hot-reload swaps never leave the effects
// layer writing through a stale pointer.
type CmdSaveActiveState struct {
	Store *Store
}

func (CmdSaveActiveState) commandMarker() {}
func (CmdSaveActiveState) String() string { return "CmdSaveActiveState()" }

// CmdSaveProfile persists one profile definition.
type CmdSaveProfile struct {
	Store *Store
	Name  string
}

func (CmdSaveProfile) commandMarker() {}
func (c CmdSaveProfile) String() string {
	return fmt.Sprintf("CmdSaveProfile(name=%s)", c.Name)
}

// CmdSyncMonitors hands the supervisor the monitor parameters derived from
// the active profile; the supervisor recreates only adapters whose dependent
// parameters changed.
type CmdSyncMonitors struct {
	Params MonitorParams
}

func (CmdSyncMonitors) commandMarker() {}
func (c CmdSyncMonitors) String() string {
	return fmt.Sprintf("CmdSyncMonitors(%s)", c.Params)
}

// CmdReply delivers a reducer-produced control result to the requester.
// Moving the channel send into the effects layer keeps the reducer pure.
type CmdReply struct {
	Reply  chan ControlResult
	Result ControlResult
}

func (CmdReply) commandMarker() {}
func (c CmdReply) String() string {
	if c.Result.Err != nil {
		return fmt.Sprintf("CmdReply(err=%v)", c.Result.Err)
	}
	return "CmdReply(ok)"
}

// CmdBroadcast fans a state change out to WebSocket clients.
type CmdBroadcast struct {
	Type string
	Data any
}

func (CmdBroadcast) commandMarker() {}
func (c CmdBroadcast) String() string {
	return fmt.Sprintf("CmdBroadcast(type=%s)", c.Type)
}
