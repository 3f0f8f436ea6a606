package main

import (
	"context"
	"testing"
	"time"
)

// These tests focus on hub behavior (fanout + slow-client disconnection)
// without standing up a real websocket server. Clients are constructed with a
// nil websocket.Conn; the hub guards against nil on eviction.

func newTestHub(t *testing.T, sendBuf, broadcastBuf int) *Hub {
	t.Helper()
	return NewHub(testLogger(), HubConfig{
		SendBuf:      sendBuf,
		BroadcastBuf: broadcastBuf,
	})
}

func newBareClient(hub *Hub, addr string, buf int) *Client {
	return &Client{
		hub:        hub,
		send:       make(chan []byte, buf),
		remoteAddr: addr,
		logger:     testLogger(),
	}
}

func TestHub_BroadcastDeliveredToAllClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 4, 8)

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	c1 := newBareClient(hub, "c1", 4)
	c2 := newBareClient(hub, "c2", 4)

	hub.register <- c1
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[c1]
		return ok
	}, "client1 not registered in time")

	hub.register <- c2
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[c2]
		return ok
	}, "client2 not registered in time")

	msg := []byte(`{"type":"decision_changed","data":{"level":2,"rule":"schedule"}}`)

	// Feed the hub channel directly for deterministic delivery;
	// BroadcastBytes is intentionally lossy under pressure.
	hub.broadcast <- msg

	for _, c := range []*Client{c1, c2} {
		select {
		case got := <-c.send:
			if string(got) != string(msg) {
				t.Fatalf("%s got %q, want %q", c.remoteAddr, string(got), string(msg))
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("timeout waiting for %s to receive broadcast", c.remoteAddr)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for hub to stop")
	}
}

func TestHub_SlowClientDisconnectedOnFullSendBuffer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 1, 8)

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	slow := newBareClient(hub, "slow", 1)
	fast := newBareClient(hub, "fast", 8)

	hub.register <- slow
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[slow]
		return ok
	}, "slow client not registered in time")

	hub.register <- fast
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[fast]
		return ok
	}, "fast client not registered in time")

	// Pre-fill the slow client's buffer to simulate it being stuck.
	slow.send <- []byte(`"already queued"`)

	msg := []byte(`{"type":"profile_changed","data":{"name":"home"}}`)
	hub.broadcast <- msg

	select {
	case got := <-fast.send:
		if string(got) != string(msg) {
			t.Fatalf("fast client got %q, want %q", string(got), string(msg))
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for fast client to receive broadcast")
	}

	// The slow client must be evicted and its send channel closed.
	// Drain the pre-filled message first.
	select {
	case <-slow.send:
	default:
	}

	waitUntil(t, 750*time.Millisecond, func() bool {
		select {
		case _, ok := <-slow.send:
			return !ok
		default:
			return false
		}
	}, "expected slow send channel to be closed")
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}
