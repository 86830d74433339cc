package http

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Client represents a connected SSE subscriber.
type Client struct {
	id   string
	send chan []byte
}

// Hub fans store and connection change events out to every SSE subscriber.
// It implements application.Publisher.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates a new SSE Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

// Register adds a new SSE client.
func (h *Hub) Register(send chan []byte) *Client {
	c := &Client{id: uuid.NewString(), send: send}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c

	log.Debug().Str("client", c.id).Msg("SSE client connected")
	return c
}

// Unregister removes an SSE client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.id)

	log.Debug().Str("client", c.id).Msg("SSE client disconnected")
}

// Publish sends event to every subscriber. Slow subscribers miss the event
// rather than block the publisher.
func (h *Hub) Publish(event string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}

	msg := buildSSEMessage(event, payload)
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			log.Warn().Str("client", c.id).Str("event", event).Msg("SSE client send buffer full, skipping")
		}
	}
}

// ConnectedCount returns the number of connected SSE clients.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// buildSSEMessage formats one event as an SSE frame.
func buildSSEMessage(event string, payload any) []byte {
	b, err := json.Marshal(payload)
	if err != nil {
		b = []byte("null")
	}
	return []byte("event: " + event + "\ndata: " + string(b) + "\n\n")
}
