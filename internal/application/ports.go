package application

import (
	"context"

	"vn.io.arda/notification-client/internal/domain"
)

// Connection is the real-time channel bound to one viewer at a time.
// The default implementation is realtime.Manager.
type Connection interface {
	// Open replaces any existing connection with one for viewer.
	Open(ctx context.Context, viewer string) error

	// Close tears the connection down. Once it returns no further pushes
	// from the closed connection are delivered.
	Close()

	// State returns the connection state and the last error message.
	State() (domain.ConnState, string)
}

// Publisher fans change events out to local subscribers.
// Implementation lives in transport/http/sse_hub.go.
type Publisher interface {
	Publish(event string, payload any)
}

// Change event names sent through the Publisher.
const (
	EventReset       = "notifications.reset"
	EventReplaced    = "notifications.replaced"
	EventFetchFailed = "notifications.fetch_failed"
	EventPrepended   = "notification.new"
	EventRead        = "notifications.read"
	EventDeleted     = "notification.deleted"
	EventConnection  = "connection"
)

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) {}
