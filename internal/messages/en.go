package messages

// ─── Identity ────────────────────────────────────────────────────────────────

const (
	NoViewer = "No valid user identity. Sign in to see your notifications."
)

// ─── Notification list ───────────────────────────────────────────────────────

const (
	FetchFailed     = "Failed to load notifications: %s"
	RetryAction     = "Try again"
	EmptyList       = "You have no notifications."
	UnreadBadge     = "%d unread"
	UnreadBadgeMany = "99+ unread"
)

// ─── Connection ──────────────────────────────────────────────────────────────

const (
	Offline          = "(offline)"
	Connecting       = "(connecting)"
	ConnectionFailed = "(offline: %s)"
)
