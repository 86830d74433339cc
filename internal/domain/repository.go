package domain

import "context"

// Gateway defines the port to the storefront notification REST API.
// The implementation lives in infrastructure/api.
type Gateway interface {
	// ListForViewer fetches every notification the viewer currently has.
	ListForViewer(ctx context.Context, viewerID string) ([]Notification, error)

	// MarkRead flags a single notification as read.
	MarkRead(ctx context.Context, id string) error

	// Delete removes a single notification.
	Delete(ctx context.Context, id string) error
}
