// Package events fans decay news out to websocket listeners. The feed is
// one-way: the server publishes, clients only listen.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"decayfm/logger"
)

// EventType tags a feed message.
type EventType string

const (
	// EventDegrade is sent after a segment play has been burned in.
	EventDegrade EventType = "degrade"
	// EventStream is sent when a full-file playback starts.
	EventStream EventType = "stream"
	// EventTrackAdded is sent when a new file joins the library.
	EventTrackAdded EventType = "track_added"
)

// Event is one feed message. SegmentIndex is a pointer so index 0 survives
// omitempty; it is only set for degrade events.
type Event struct {
	Type               EventType `json:"type"`
	Filename           string    `json:"filename,omitempty"`
	SegmentIndex       *int      `json:"segment_index,omitempty"`
	PlayCount          int64     `json:"play_count,omitempty"`
	OverallDegradation float64   `json:"overall_degradation,omitempty"`
	TotalStreams       int64     `json:"total_streams,omitempty"`
	Timestamp          int64     `json:"timestamp"`
}

// Hub owns the listener set and serialises membership changes through its
// run loop.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	mu   sync.RWMutex
	done chan struct{}
}

// NewHub builds a hub; call Run in its own goroutine before registering.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run is the hub main loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.dropClient(client)

		case data := <-h.broadcast:
			h.fanOut(data)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop shuts the hub down and closes every client send channel.
func (h *Hub) Stop() {
	close(h.done)
}

// Register adds a listener to the feed.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a listener. Safe to call more than once.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish stamps and broadcasts one event to every listener.
func (h *Hub) Publish(ev *Event) {
	ev.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Warn("failed to encode event", logger.ErrorField(err))
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

// ClientCount reports how many listeners are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	logger.Info("event listener connected",
		logger.String("client", client.ID),
		logger.Int("listeners", len(h.clients)))
}

func (h *Hub) dropClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	logger.Info("event listener disconnected",
		logger.String("client", client.ID),
		logger.Int("listeners", len(h.clients)))
}

func (h *Hub) fanOut(data []byte) {
	h.mu.RLock()
	clientList := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	for _, client := range clientList {
		select {
		case client.send <- data:
		default:
			// Listener cannot keep up; cut it loose rather than block
			// the feed.
			h.dropClient(client)
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[*Client]bool)
}
