// Package follow serves a live view of multiplexed console output over
// HTTP: server-sent events, a WebSocket feed, and a small status page.
package follow

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stream names carried on events.
const (
	StreamOut    = "out"
	StreamErr    = "err"
	StreamStatus = "status"
)

// Event is one fragment of console output on its way to followers.
type Event struct {
	Stream string    `json:"stream"`
	Text   string    `json:"text"`
	Time   time.Time `json:"time"`
}

// Client is a single follower connection.
type Client struct {
	ID     string
	Events chan Event
	Done   chan struct{}
}

// Hub fans console output out to follower connections. Slow followers
// drop events rather than stalling the writer.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// Register creates a client with a fresh ID and adds it to the hub. The
// caller owns the Done channel and must close it when the connection
// ends, after calling Unregister.
func (h *Hub) Register() *Client {
	client := &Client{
		ID:     uuid.NewString(),
		Events: make(chan Event, 256),
		Done:   make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
	slog.Info("follower connected", "clientID", client.ID)
	return client
}

// Unregister removes a client so broadcasts stop reaching it. It does
// not close the Done channel; that stays with the handler that created
// the client.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[clientID]; ok {
		delete(h.clients, clientID)
		slog.Info("follower disconnected", "clientID", clientID)
	}
}

// Broadcast delivers ev to every registered client. A client with a full
// channel misses the event.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Events <- ev:
		case <-client.Done:
			// Connection is going away.
		default:
			slog.Warn("follower channel full, dropping event", "clientID", client.ID)
		}
	}
}

// ClientCount reports how many followers are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// FormatSSE renders ev in Server-Sent Events framing with the stream
// name as the event type.
func FormatSSE(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Stream, data)), nil
}
