package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// NotificationType is the category tag shown next to a notification.
type NotificationType string

const (
	TypeOrder   NotificationType = "order"
	TypeSystem  NotificationType = "system"
	TypePromo   NotificationType = "promotion"
	TypeAccount NotificationType = "account"
)

// Scope says whether a notification targets every viewer or a single one.
type Scope string

const (
	// ScopeGlobal notifications are broadcast to all viewers.
	ScopeGlobal Scope = "global"
	// ScopeUser notifications target exactly one viewer.
	ScopeUser Scope = "user"
)

var (
	// ErrNoViewer is returned when no valid viewer identity could be resolved.
	ErrNoViewer = errors.New("no valid viewer identity")
	// ErrNotFound is returned when a notification id is not in the store.
	ErrNotFound = errors.New("notification not found")
)

// Notification is a backend-owned record addressed to the current viewer.
type Notification struct {
	ID        string           `json:"_id"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	Scope     Scope            `json:"scope"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}

// UnmarshalJSON accepts both "_id" and "id" as the identifier field.
func (n *Notification) UnmarshalJSON(data []byte) error {
	type plain Notification
	var aux struct {
		plain
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*n = Notification(aux.plain)
	if n.ID == "" {
		n.ID = aux.AltID
	}
	return nil
}

// Merge folds an incoming copy of the same record into n.
// Read state never goes back from true to false.
func (n Notification) Merge(incoming Notification) Notification {
	wasRead := n.IsRead
	n = incoming
	n.IsRead = wasRead || incoming.IsRead
	return n
}
