package main

import (
	"encoding/json"
	"log/slog"
	"time"
)

// runEffect executes a single reducer-emitted Command against the outside
// world (backlight sysfs, persisted store, supervisor, WS hub) and emits
// observation Events via onEvent.
//
// Design rules:
// - This is the only place side effects happen.
// - It must never call Reduce() directly; it only emits Events to be reduced
//   by the daemon loop.
type effectDeps struct {
	backlight  brightnessActuator
	supervisor *Supervisor
	hub        *Hub
}

func runEffect(deps effectDeps, cmd Command, logger *slog.Logger, onEvent func(Event)) {
	if onEvent == nil {
		return
	}

	now := time.Now()

	switch c := cmd.(type) {
	case CmdSetBrightness:
		if deps.backlight == nil {
			return
		}
		if err := deps.backlight.SetLevel(c.Level); err != nil {
			// Non-fatal: retried on the next evaluation.
			logger.Warn("brightness write failed", "level", c.Level, "rule", c.Rule, "error", err)
			onEvent(BrightnessApplyFailed{Level: c.Level, Err: err, At: now})
			return
		}
		logger.Debug("brightness applied", "level", c.Level, "rule", c.Rule)
		onEvent(BrightnessApplied{Level: c.Level, At: now})

	case CmdSaveActiveState:
		if c.Store == nil {
			return
		}
		if err := c.Store.SaveActiveState(); err != nil {
			// State stays correct in memory; the next successful save
			// reconciles.
			logger.Warn("save active state failed", "error", err)
		}

	case CmdSaveProfile:
		if c.Store == nil {
			return
		}
		if err := c.Store.SaveProfile(c.Name); err != nil {
			logger.Warn("save profile failed", "profile", c.Name, "error", err)
		}

	case CmdSyncMonitors:
		if deps.supervisor == nil {
			return
		}
		deps.supervisor.Apply(c.Params)

	case CmdReply:
		if c.Reply == nil {
			logger.Warn("control reply requested with nil reply channel")
			return
		}
		// Never block the daemon loop on a slow requester.
		select {
		case c.Reply <- c.Result:
		default:
			logger.Warn("control reply channel not ready; dropping reply")
		}

	case CmdBroadcast:
		if deps.hub == nil {
			return
		}
		ts := now.UTC()
		msg, err := json.Marshal(wsEnvelope{Type: c.Type, Ts: &ts, Data: c.Data})
		if err != nil {
			logger.Warn("broadcast marshal failed", "type", c.Type, "error", err)
			return
		}
		deps.hub.BroadcastBytes(msg)

	default:
		logger.Warn("unknown command type", "command", cmd.String())
	}
}
