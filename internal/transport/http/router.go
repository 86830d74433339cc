package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"vn.io.arda/notification-client/internal/transport/mw"
)

// NewRouter sets up all Echo routes and middleware.
func NewRouter(h *Handler, controlToken string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(mw.RequestLogger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	}))

	// Health (no auth required)
	e.GET("/health", h.Health)

	v1 := e.Group("")
	v1.Use(mw.ControlToken(controlToken))

	v1.GET("/notifications", h.ListNotifications)
	v1.GET("/notifications/unread-count", h.GetUnreadCount)
	v1.POST("/notifications/open", h.OpenList)
	v1.POST("/notifications/close", h.CloseList)
	v1.POST("/notifications/retry", h.Retry)
	v1.DELETE("/notifications/:id", h.Delete)

	v1.PUT("/viewer", h.SetViewer)
	v1.DELETE("/viewer", h.ClearViewer)

	// SSE endpoint
	v1.GET("/notifications/stream", h.Stream)

	return e
}
