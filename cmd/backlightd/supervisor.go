package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ============================================================================
// Monitor Supervisor - dependency-keyed adapter registry
// ============================================================================
//
// The supervisor owns the lifecycle of one adapter per observation source
// kind. Each kind declares the subset of monitor parameters it depends on as
// a fingerprint string; Apply() recreates an adapter if and only if its
// fingerprint changed. This is what keeps an unchanged idle timeout from
// tearing down the idle adapter's file descriptors on every profile sync.
//
// Teardown is cancel + wait: the replacement never starts until the old
// adapter's run loop has returned and released its resources.
// ============================================================================

// SourceKind identifies an observation source.
type SourceKind string

const (
	SourceIdle     SourceKind = "idle"
	SourceVideo    SourceKind = "video"
	SourcePower    SourceKind = "power"
	SourceLocation SourceKind = "location"
	SourceClock    SourceKind = "clock"
)

// sourceKinds is the fixed set of kinds the supervisor manages.
var sourceKinds = []SourceKind{SourceIdle, SourceVideo, SourcePower, SourceLocation, SourceClock}

// MonitorParams is the active-profile configuration slice the adapters
// depend on.
type MonitorParams struct {
	IdleTimeout    time.Duration
	VideoDetection bool
	SSIDs          []string
}

func (p MonitorParams) String() string {
	return fmt.Sprintf("idle_timeout=%s video=%v ssids=%d", p.IdleTimeout, p.VideoDetection, len(p.SSIDs))
}

// fingerprint returns the dependency key for one source kind. Kinds with an
// empty dependency set ("" for power and clock) are never recreated.
func (p MonitorParams) fingerprint(kind SourceKind) string {
	switch kind {
	case SourceIdle:
		return p.IdleTimeout.String()
	case SourceVideo:
		return strconv.FormatBool(p.VideoDetection)
	case SourceLocation:
		ssids := append([]string(nil), p.SSIDs...)
		sort.Strings(ssids)
		return strings.Join(ssids, "\x00")
	default:
		return ""
	}
}

// Source is the observation source contract. Run blocks delivering events
// until ctx is canceled (returning nil) or a fatal source error occurs. It
// must release every resource it holds before returning.
type Source interface {
	Kind() SourceKind
	Run(ctx context.Context, events chan<- Event) error
}

// sourceFactory builds a live adapter for a kind. Returning a nil Source
// means the kind is disabled for these params (e.g. video detection off).
type sourceFactory func(kind SourceKind, params MonitorParams) (Source, error)

type adapterHandle struct {
	key    string
	cancel context.CancelFunc
	done   chan struct{}
}

type Supervisor struct {
	logger  *slog.Logger
	events  chan<- Event
	factory sourceFactory

	ctx     context.Context
	running map[SourceKind]*adapterHandle
}

// NewSupervisor creates a supervisor. ctx bounds the lifetime of every
// adapter it starts. Apply and Stop must be called from a single goroutine
// (the daemon's effects path).
func NewSupervisor(ctx context.Context, events chan<- Event, factory sourceFactory, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		logger:  logger,
		events:  events,
		factory: factory,
		ctx:     ctx,
		running: make(map[SourceKind]*adapterHandle),
	}
}

// Apply reconciles running adapters with the given parameters. Only adapters
// whose dependency fingerprint changed are torn down and recreated.
func (s *Supervisor) Apply(params MonitorParams) {
	for _, kind := range sourceKinds {
		key := params.fingerprint(kind)

		if h, ok := s.running[kind]; ok {
			if h.key == key {
				continue
			}
			s.stop(kind, h)
		}

		s.start(kind, key, params)
	}
}

// Stop tears down every running adapter, waiting for each to finish.
func (s *Supervisor) Stop() {
	for kind, h := range s.running {
		s.stop(kind, h)
	}
}

func (s *Supervisor) stop(kind SourceKind, h *adapterHandle) {
	h.cancel()
	<-h.done
	delete(s.running, kind)
	s.logger.Debug("monitor stopped", "kind", kind)
}

func (s *Supervisor) start(kind SourceKind, key string, params MonitorParams) {
	src, err := s.factory(kind, params)
	if err != nil {
		// Source unavailable: run without it, signal stays at its neutral
		// default.
		s.logger.Warn("monitor unavailable", "kind", kind, "error", err)
		// Async: Apply runs on the daemon loop, which also drains the queue.
		go s.deliver(SourceFailed{Kind: kind})
		return
	}
	if src == nil {
		// Disabled for these params.
		s.running[kind] = &adapterHandle{key: key, cancel: func() {}, done: closedChan()}
		go s.deliver(SourceFailed{Kind: kind})
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	s.running[kind] = &adapterHandle{key: key, cancel: cancel, done: done}

	go func() {
		defer close(done)
		s.runWithRetry(ctx, src)
	}()

	s.logger.Debug("monitor started", "kind", kind, "key", key)
}

// runWithRetry runs an adapter, restarting it with backoff on failure. After
// the retry budget is exhausted the signal falls back to its neutral default
// and the adapter stays down until the next recreation.
func (s *Supervisor) runWithRetry(ctx context.Context, src Source) {
	backoff := sourceInitialBackoff

	for attempt := 0; ; attempt++ {
		err := src.Run(ctx, s.events)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			// Source ended without error and without cancellation; treat as
			// exhausted.
			err = fmt.Errorf("source ended unexpectedly")
		}

		if attempt+1 >= sourceMaxRetries {
			s.logger.Warn("monitor failed, giving up", "kind", src.Kind(), "error", err, "attempts", attempt+1)
			s.deliver(SourceFailed{Kind: src.Kind()})
			return
		}

		s.logger.Warn("monitor failed, retrying", "kind", src.Kind(), "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > sourceMaxBackoff {
			backoff = sourceMaxBackoff
		}
	}
}

// deliver blocks until the event is queued or the supervisor's context ends.
// SourceFailed resets a signal to its neutral default and must not be lost to
// a momentarily full queue.
func (s *Supervisor) deliver(ev Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
