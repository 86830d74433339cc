package messages

import (
	"fmt"

	"vn.io.arda/notification-client/internal/domain"
)

// ─── Notification list builders ──────────────────────────────────────────────

func FetchError(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf(FetchFailed, err.Error())
}

func Badge(unread int) string {
	switch {
	case unread <= 0:
		return ""
	case unread > 99:
		return UnreadBadgeMany
	default:
		return fmt.Sprintf(UnreadBadge, unread)
	}
}

// ─── Connection builders ─────────────────────────────────────────────────────

// ConnectionLabel is the muted indicator shown next to the list header.
// It is empty while connected.
func ConnectionLabel(state domain.ConnState, lastErr string) string {
	switch state {
	case domain.ConnConnected:
		return ""
	case domain.ConnConnecting:
		return Connecting
	}
	if lastErr != "" {
		return fmt.Sprintf(ConnectionFailed, lastErr)
	}
	return Offline
}
