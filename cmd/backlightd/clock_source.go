package main

import (
	"context"
	"time"
)

// ScheduleTick is a content-free re-evaluation trigger emitted at minute
// boundaries by the clock source.
type ScheduleTick struct {
	At time.Time
}

func (ScheduleTick) eventMarker() {}

// clockSource emits a ScheduleTick at every minute boundary so schedule
// entries actuate at their exact (hour, minute), independent of when the
// daemon loop's coarser cadence happens to fire.
type clockSource struct{}

func (clockSource) Kind() SourceKind { return SourceClock }

func (clockSource) Run(ctx context.Context, events chan<- Event) error {
	for {
		now := time.Now()
		next := now.Truncate(time.Minute).Add(time.Minute)

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case at := <-timer.C:
			select {
			case events <- ScheduleTick{At: at}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
