package realtime

import (
	"context"
	"encoding/json"
	"fmt"
)

// Channel event names shared with the storefront backend.
const (
	EventJoinRoom        = "joinRoom"
	EventNewNotification = "new-notification"
)

// Envelope is the wire format of every real-time frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes data into an envelope for event.
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return Envelope{Event: event, Data: raw}, nil
}

// Conn is one established transport connection.
type Conn interface {
	// Send writes a single envelope.
	Send(ctx context.Context, env Envelope) error
	// Receive blocks until the next inbound envelope or a transport error.
	Receive(ctx context.Context) (Envelope, error)
	// Close tears the connection down. Safe to call more than once.
	Close() error
	// Transport names the underlying transport ("websocket", "polling").
	Transport() string
}

// Dialer establishes transport connections to the configured endpoint.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
	Name() string
}
