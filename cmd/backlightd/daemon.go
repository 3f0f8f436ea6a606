package main

import (
	"context"
	"log/slog"
	"time"
)

// ============================================================================
// Central Daemon Loop - Reducer-driven decision path
// ============================================================================
//
// Design rules enforced here:
//   - The reducer performs no I/O and computes: next state + commands.
//   - The daemon loop is the only place that executes side effects.
//   - Effect results are turned into Events and fed back into the reducer.
//   - Explicit event and command queues; no nested/re-entrant execution.
//
// Because all events funnel through this single goroutine, every rule engine
// evaluation sees a consistent snapshot and at most one actuation is in
// flight at a time.
// ============================================================================

// runDaemon is the main daemon loop. It exits when ctx is canceled or the
// events channel is closed.
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	deps effectDeps,
	state *DaemonState,
	logger *slog.Logger,
) {
	if state == nil {
		logger.Error("daemon state is nil")
		return
	}

	ticker := time.NewTicker(evaluationInterval)
	defer ticker.Stop()

	// Explicit queues:
	// - eventQueue holds events awaiting reduction
	// - cmdQueue holds commands awaiting execution
	var eventQueue []Event
	var cmdQueue []Command

	enqueueEvent := func(ev Event) {
		eventQueue = append(eventQueue, ev)
	}
	enqueueCommands := func(cmds []Command) {
		if len(cmds) == 0 {
			return
		}
		cmdQueue = append(cmdQueue, cmds...)
	}

	// Reduce all queued events, enqueuing any resulting commands.
	flushEvents := func() {
		for len(eventQueue) > 0 {
			ev := eventQueue[0]
			eventQueue = eventQueue[1:]

			rr := Reduce(state, ev)
			if rr.State != nil {
				state = rr.State
			}
			enqueueCommands(rr.Commands)
		}
	}

	// Execute all queued commands, reducing observation events promptly so
	// state stays coherent before the next command runs.
	flushCommands := func() {
		for len(cmdQueue) > 0 {
			cmd := cmdQueue[0]
			cmdQueue = cmdQueue[1:]

			runEffect(deps, cmd, logger, func(obs Event) {
				enqueueEvent(obs)
			})

			flushEvents()
		}
	}

	// Initial evaluation so the hardware reflects the persisted state before
	// any source has reported.
	enqueueEvent(Tick{Now: time.Now()})
	flushEvents()
	flushCommands()

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return
			}
			enqueueEvent(TimedEvent{Event: ev, At: time.Now()})
			// Drain any backlog before running effects so redundant queued
			// triggers coalesce into a single actuation of the latest state.
			for drained := false; !drained; {
				select {
				case more, ok := <-events:
					if !ok {
						drained = true
						break
					}
					enqueueEvent(TimedEvent{Event: more, At: time.Now()})
				default:
					drained = true
				}
			}
			flushEvents()
			flushCommands()

		case now := <-ticker.C:
			enqueueEvent(Tick{Now: now})
			flushEvents()
			flushCommands()
		}
	}
}
