package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedClient makes a hub client that is not backed by a real connection, so
// membership and fan-out can be exercised without a websocket.
func feedClient(h *Hub, buffer int) *Client {
	return &Client{ID: "test", hub: h, send: make(chan []byte, buffer)}
}

func runHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func recv(t *testing.T, c *Client) *Event {
	t.Helper()
	select {
	case data := <-c.send:
		var ev Event
		require.NoError(t, json.Unmarshal(data, &ev))
		return &ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
		return nil
	}
}

func TestPublishReachesEveryListener(t *testing.T) {
	h := runHub(t)

	clients := []*Client{feedClient(h, 4), feedClient(h, 4), feedClient(h, 4)}
	for _, c := range clients {
		h.Register(c)
	}
	require.Eventually(t, func() bool { return h.ClientCount() == 3 },
		2*time.Second, 10*time.Millisecond)

	idx := 2
	h.Publish(&Event{
		Type:               EventDegrade,
		Filename:           "fading.wav",
		SegmentIndex:       &idx,
		PlayCount:          7,
		OverallDegradation: 12.5,
	})

	for _, c := range clients {
		ev := recv(t, c)
		assert.Equal(t, EventDegrade, ev.Type)
		assert.Equal(t, "fading.wav", ev.Filename)
		require.NotNil(t, ev.SegmentIndex)
		assert.Equal(t, 2, *ev.SegmentIndex)
		assert.Equal(t, int64(7), ev.PlayCount)
		assert.NotZero(t, ev.Timestamp)
	}
}

func TestSegmentZeroSurvivesEncoding(t *testing.T) {
	h := runHub(t)
	c := feedClient(h, 4)
	h.Register(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	zero := 0
	h.Publish(&Event{Type: EventDegrade, Filename: "a.wav", SegmentIndex: &zero})

	ev := recv(t, c)
	require.NotNil(t, ev.SegmentIndex, "segment index 0 must not be dropped")
	assert.Equal(t, 0, *ev.SegmentIndex)
}

func TestSlowListenerIsDropped(t *testing.T) {
	h := runHub(t)
	c := feedClient(h, 1)
	h.Register(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	// First event fills the buffer; the second finds it full and evicts.
	h.Publish(&Event{Type: EventStream, Filename: "a.wav"})
	h.Publish(&Event{Type: EventStream, Filename: "b.wav"})

	require.Eventually(t, func() bool { return h.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)

	// The send channel must be closed once the buffered event drains.
	<-c.send
	_, open := <-c.send
	assert.False(t, open)
}

func TestUnregisterTwiceIsHarmless(t *testing.T) {
	h := runHub(t)
	c := feedClient(h, 1)
	h.Register(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	h.Unregister(c)
	h.Unregister(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestStopClosesListeners(t *testing.T) {
	h := NewHub()
	go h.Run()

	c := feedClient(h, 1)
	h.Register(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	h.Stop()
	select {
	case _, open := <-c.send:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("send channel not closed on hub stop")
	}
}
