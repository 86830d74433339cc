package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"vn.io.arda/notification-client/internal/domain"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client implements domain.Gateway against the storefront REST API.
// Requests carry whatever cookies the shared jar holds for the base origin.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client. jar may be nil, in which case no credentials are sent.
func New(baseURL string, jar http.CookieJar, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Jar: jar, Timeout: timeout},
	}
}

// ListForViewer fetches every notification addressed to viewerID.
func (c *Client) ListForViewer(ctx context.Context, viewerID string) ([]domain.Notification, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/notification/user/"+url.PathEscape(viewerID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var items []domain.Notification
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}
	if items == nil {
		items = []domain.Notification{}
	}
	return items, nil
}

// MarkRead flags one notification as read.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.discard(ctx, http.MethodPatch, "/api/notification/"+url.PathEscape(id)+"/read")
}

// Delete removes one notification.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.discard(ctx, http.MethodDelete, "/api/notification/"+url.PathEscape(id))
}

// --- internal helpers ---

func (c *Client) discard(ctx context.Context, method, path string) error {
	resp, err := c.do(ctx, method, path)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// do sends a body-less request and converts non-2xx responses to *StatusError.
func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)

	log.Debug().Str("method", method).Str("path", path).Str("request_id", reqID).Msg("api request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}
