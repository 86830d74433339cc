package realtime

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"vn.io.arda/notification-client/internal/domain"
)

// EventHandler consumes the payload of one inbound event.
type EventHandler func(data json.RawMessage)

// Registry routes inbound envelopes to handlers by event name.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]EventHandler)}
}

// Register binds a handler to an event name.
// Panics on duplicate registration to catch wiring mistakes early.
func (r *Registry) Register(event string, h EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[event]; exists {
		panic("realtime: duplicate handler registered for event: " + event)
	}
	r.handlers[event] = h
}

// Dispatch calls the handler registered for env.Event.
// Returns false when nothing is registered for it.
func (r *Registry) Dispatch(env Envelope) bool {
	r.mu.RLock()
	h, ok := r.handlers[env.Event]
	r.mu.RUnlock()
	if !ok {
		log.Debug().Str("event", env.Event).Msg("realtime: no handler registered")
		return false
	}
	h(env.Data)
	return true
}

// NotificationHandler decodes new-notification payloads and hands them to fn.
// Malformed payloads and records without an id are dropped.
func NotificationHandler(fn func(domain.Notification)) EventHandler {
	return func(data json.RawMessage) {
		var n domain.Notification
		if err := json.Unmarshal(data, &n); err != nil {
			log.Warn().Err(err).Msg("realtime: malformed notification payload")
			return
		}
		if n.ID == "" {
			log.Warn().Msg("realtime: notification payload without id, skipping")
			return
		}
		fn(n)
	}
}
