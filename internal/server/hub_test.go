package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubRegisterUnregister(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	client := &Client{ID: "c1", send: make(chan *Event, 4)}
	h.Register(client)
	waitForCount(t, h, 1)

	h.Unregister(client)
	waitForCount(t, h, 0)

	_, open := <-client.send
	assert.False(t, open, "send channel left open after unregister")
}

func TestHubDropsStalledClient(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	healthy := &Client{ID: "healthy", send: make(chan *Event, 16)}
	stalled := &Client{ID: "stalled", send: make(chan *Event, 1)}
	stalled.send <- NewTaskEvent(nil) // buffer full, next send must not block

	h.Register(healthy)
	h.Register(stalled)
	waitForCount(t, h, 2)

	// Hammer ClientCount while the broadcast path decides to drop the
	// stalled client.
	countDone := make(chan struct{})
	go func() {
		defer close(countDone)
		for i := 0; i < 1000; i++ {
			h.ClientCount()
		}
	}()

	h.Broadcast(NewTaskEvent(nil))
	waitForCount(t, h, 1)
	<-countDone

	select {
	case ev := <-healthy.send:
		assert.Equal(t, EventTypeTask, ev.Type)
	default:
		t.Fatal("healthy client did not receive the broadcast")
	}

	// The stalled client's channel is drained and closed.
	<-stalled.send
	_, open := <-stalled.send
	assert.False(t, open, "stalled client's send channel left open")
}

func waitForCount(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, want, h.ClientCount())
}
