package live

import (
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHubRegisterAndIsConnected(t *testing.T) {
	h := NewHub()
	go h.Run()

	c := &Client{UserID: "u1", Send: make(chan []byte, 4)}
	h.Register(c)

	waitFor(t, func() bool { return h.IsConnected("u1") })
	if h.IsConnected("u2") {
		t.Error("expected u2 to have no connection")
	}
}

func TestHubUnregisterRemovesClient(t *testing.T) {
	h := NewHub()
	go h.Run()

	c := &Client{UserID: "u1", Send: make(chan []byte, 4)}
	h.Register(c)
	waitFor(t, func() bool { return h.IsConnected("u1") })

	h.Unregister(c)
	waitFor(t, func() bool { return !h.IsConnected("u1") })
}

func TestHubConnectedCountAcrossMultipleUsers(t *testing.T) {
	h := NewHub()
	go h.Run()

	c1 := &Client{UserID: "u1", Send: make(chan []byte, 4)}
	c2 := &Client{UserID: "u2", Send: make(chan []byte, 4)}
	c3 := &Client{UserID: "u1", Send: make(chan []byte, 4)}
	h.Register(c1)
	h.Register(c2)
	h.Register(c3)

	waitFor(t, func() bool { return h.ConnectedCount() == 3 })
}

func TestHubPublishDeliversToAllConnectionsForUser(t *testing.T) {
	h := NewHub()
	go h.Run()

	c1 := &Client{UserID: "u1", Send: make(chan []byte, 4)}
	c2 := &Client{UserID: "u1", Send: make(chan []byte, 4)}
	h.Register(c1)
	h.Register(c2)
	waitFor(t, func() bool { return h.ConnectedCount() == 2 })

	h.Publish("u1", map[string]string{"hello": "world"})

	select {
	case <-c1.Send:
	case <-time.After(time.Second):
		t.Fatal("expected c1 to receive the published message")
	}
	select {
	case <-c2.Send:
	case <-time.After(time.Second):
		t.Fatal("expected c2 to receive the published message")
	}
}

func TestHubPublishIsNoOpForDisconnectedUser(t *testing.T) {
	h := NewHub()
	go h.Run()

	// Should not panic or block even though nobody is connected.
	h.Publish("nobody", "data")
}
