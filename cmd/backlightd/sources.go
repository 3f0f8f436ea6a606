package main

import (
	"fmt"
	"time"
)

// newSourceFactory builds the production observation source adapters from
// daemon config plus the per-profile monitor parameters.
func newSourceFactory(cfg Config) sourceFactory {
	return func(kind SourceKind, params MonitorParams) (Source, error) {
		switch kind {
		case SourceIdle:
			return newIdleSource(cfg.Monitors.InputDevices, params.IdleTimeout), nil

		case SourceVideo:
			if !params.VideoDetection {
				return nil, nil
			}
			return newVideoSource(time.Duration(cfg.Monitors.VideoPollMS) * time.Millisecond), nil

		case SourcePower:
			return newPowerSource(cfg.Monitors.PowerSupplyDir, time.Duration(cfg.Monitors.PowerPollMS)*time.Millisecond), nil

		case SourceLocation:
			return newLocationSource(time.Duration(cfg.Monitors.NetworkPollMS) * time.Millisecond), nil

		case SourceClock:
			return clockSource{}, nil

		default:
			return nil, fmt.Errorf("unknown source kind %q", kind)
		}
	}
}
