package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sys/unix"
)

// ============================================================================
// Idle source - user activity via evdev + epoll
// ============================================================================
//
// Watches the configured /dev/input/event* devices with a single epoll
// goroutine. Any readable event counts as user activity (throttled); once no
// activity has been seen for the profile's idle timeout, one IdleChanged is
// emitted.
//
// EpollWait runs with a short timeout instead of blocking forever so the
// adapter notices context cancellation promptly; the supervisor's teardown
// contract depends on that.
// ============================================================================

type idleSource struct {
	devices []string
	timeout time.Duration
}

func newIdleSource(devices []string, timeout time.Duration) *idleSource {
	return &idleSource{devices: devices, timeout: timeout}
}

func (s *idleSource) Kind() SourceKind { return SourceIdle }

func (s *idleSource) Run(ctx context.Context, events chan<- Event) error {
	devices := s.devices
	if len(devices) == 0 {
		matches, err := filepath.Glob("/dev/input/event*")
		if err != nil || len(matches) == 0 {
			return fmt.Errorf("no input devices found")
		}
		sort.Strings(matches)
		devices = matches
	}

	var files []*os.File
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	for _, dev := range devices {
		f, err := os.Open(dev)
		if err != nil {
			// Some nodes are not readable without the input group; skip them
			// as long as at least one opens.
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return fmt.Errorf("could not open any input device (add user to the 'input' group)")
	}

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	for _, f := range files {
		fd := int(f.Fd())
		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			return fmt.Errorf("epoll_ctl_add fd=%d: %w", fd, err)
		}
	}

	const maxEvents = 32
	epollEvents := make([]unix.EpollEvent, maxEvents)
	// Raw struct input_event is 24 bytes on 64-bit; drain in big chunks, the
	// contents don't matter, only that something arrived.
	buf := make([]byte, 24*64)

	lastActivity := time.Now()
	lastReported := time.Time{}
	idleReported := false

	for {
		if ctx.Err() != nil {
			return nil
		}

		// Short wait so cancellation and the idle threshold are both checked
		// regularly.
		n, err := unix.EpollWait(epfd, epollEvents, 500)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		now := time.Now()

		if n > 0 {
			sawInput := false
			for i := 0; i < n; i++ {
				if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
					return fmt.Errorf("input device error/hangup (fd=%d)", epollEvents[i].Fd)
				}
				if f, ok := fdFile(files, int(epollEvents[i].Fd)); ok {
					if _, err := f.Read(buf); err != nil {
						return fmt.Errorf("read %s: %w", f.Name(), err)
					}
					sawInput = true
				}
			}

			if sawInput {
				lastActivity = now
				idleReported = false
				if now.Sub(lastReported) >= activityThrottle {
					lastReported = now
					select {
					case events <- ActivityResumed{At: now}:
					case <-ctx.Done():
						return nil
					}
				}
			}
			continue
		}

		// Timed out with no input: check the idle threshold.
		if s.timeout > 0 && !idleReported {
			elapsed := now.Sub(lastActivity)
			if elapsed >= s.timeout {
				idleReported = true
				select {
				case events <- IdleChanged{Elapsed: elapsed, At: now}:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func fdFile(files []*os.File, fd int) (*os.File, bool) {
	for _, f := range files {
		if int(f.Fd()) == fd {
			return f, true
		}
	}
	return nil, false
}
