package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"vn.io.arda/notification-client/internal/application"
	"vn.io.arda/notification-client/internal/domain"
	"vn.io.arda/notification-client/internal/messages"
)

// TokenIdentity turns a session token into an identity object accepted by
// Session.SetViewer. It may also install the token as the ambient credential.
type TokenIdentity func(token string) (any, error)

// Handler holds all HTTP handler methods.
type Handler struct {
	session  *application.Session
	hub      *Hub
	identify TokenIdentity
}

// NewHandler creates a new Handler. identify may be nil, in which case
// PUT /viewer only accepts an explicit id.
func NewHandler(session *application.Session, hub *Hub, identify TokenIdentity) *Handler {
	return &Handler{session: session, hub: hub, identify: identify}
}

// --- Notification list ---

// ListNotifications GET /notifications
func (h *Handler) ListNotifications(c echo.Context) error {
	return c.JSON(http.StatusOK, h.session.View())
}

// GetUnreadCount GET /notifications/unread-count
func (h *Handler) GetUnreadCount(c echo.Context) error {
	count := h.session.UnreadCount()
	return c.JSON(http.StatusOK, map[string]any{
		"count": count,
		"badge": messages.Badge(count),
	})
}

// OpenList POST /notifications/open
func (h *Handler) OpenList(c echo.Context) error {
	if h.session.Viewer() == "" {
		return echo.NewHTTPError(http.StatusConflict, messages.NoViewer)
	}
	started := h.session.OpenList()
	return c.JSON(http.StatusOK, map[string]bool{"reconciling": started})
}

// CloseList POST /notifications/close
func (h *Handler) CloseList(c echo.Context) error {
	h.session.CloseList()
	return c.NoContent(http.StatusNoContent)
}

// Retry POST /notifications/retry
func (h *Handler) Retry(c echo.Context) error {
	if err := h.session.Retry(); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, h.session.View())
}

// Delete DELETE /notifications/:id
func (h *Handler) Delete(c echo.Context) error {
	if err := h.session.Delete(c.Param("id")); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Viewer ---

type setViewerRequest struct {
	ID    any    `json:"id"`
	Token string `json:"token"`
}

// SetViewer PUT /viewer
func (h *Handler) SetViewer(c echo.Context) error {
	var req setViewerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	identity := req.ID
	if req.Token != "" {
		if h.identify == nil {
			return echo.NewHTTPError(http.StatusBadRequest, "token identities are not enabled")
		}
		id, err := h.identify(req.Token)
		if err != nil {
			log.Warn().Err(err).Msg("reject session token")
			return echo.NewHTTPError(http.StatusUnprocessableEntity, messages.NoViewer)
		}
		identity = id
	}

	if err := h.session.SetViewer(identity); err != nil {
		if errors.Is(err, domain.ErrNoViewer) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, messages.NoViewer)
		}
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, h.session.View())
}

// ClearViewer DELETE /viewer
func (h *Handler) ClearViewer(c echo.Context) error {
	if err := h.session.SetViewer(nil); err != nil && !errors.Is(err, domain.ErrNoViewer) {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// --- SSE Handler ---

// Stream GET /notifications/stream (SSE)
func (h *Handler) Stream(c echo.Context) error {
	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sendCh := make(chan []byte, 32)
	client := h.hub.Register(sendCh)
	defer h.hub.Unregister(client)

	// The first frame is the full view so subscribers need no separate GET.
	_, _ = w.Write(buildSSEMessage("snapshot", h.session.View()))
	w.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case msg := <-sendCh:
			if _, err := w.Write(msg); err != nil {
				return nil
			}
			w.Flush()

		case <-ctx.Done():
			log.Debug().Str("client", client.id).Msg("SSE stream closed by client")
			return nil
		}
	}
}

// --- Healthcheck ---

// Health GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "ok",
		"viewer":      h.session.Viewer(),
		"connection":  h.session.ConnectionState(),
		"sse_clients": h.hub.ConnectedCount(),
	})
}

// --- Helpers ---

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrNoViewer):
		return echo.NewHTTPError(http.StatusConflict, messages.NoViewer)
	case errors.Is(err, domain.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, application.ErrStale):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadGateway, err.Error())
}
