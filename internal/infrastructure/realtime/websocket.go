package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
)

const (
	wsReadLimit    = 64 * 1024
	wsWriteTimeout = 10 * time.Second
)

// WebSocketDialer opens persistent bidirectional connections.
type WebSocketDialer struct {
	url    string
	dialer *websocket.Dialer
}

// NewWebSocketDialer builds a dialer for {origin}{path}/websocket. http(s)
// origins are mapped to ws(s). Cookies from jar ride on the handshake.
func NewWebSocketDialer(origin, path string, jar http.CookieJar) (*WebSocketDialer, error) {
	u, err := url.Parse(strings.TrimRight(origin, "/") + path + "/websocket")
	if err != nil {
		return nil, fmt.Errorf("websocket url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("websocket url: unsupported scheme %q", u.Scheme)
	}

	return &WebSocketDialer{
		url: u.String(),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
			Jar:              jar,
		},
	}, nil
}

func (d *WebSocketDialer) Name() string { return "websocket" }

// Dial performs the websocket handshake.
func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	ws, resp, err := d.dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s: %w (status %d)", d.url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", d.url, err)
	}
	ws.SetReadLimit(wsReadLimit)
	return &wsConn{ws: ws}, nil
}

type wsConn struct {
	ws *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *wsConn) Transport() string { return "websocket" }

func (c *wsConn) Send(_ context.Context, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

// Receive skips frames that are not valid envelopes. Cancelling ctx closes
// the connection.
func (c *wsConn) Receive(ctx context.Context) (Envelope, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		if err := ctx.Err(); err != nil {
			return Envelope{}, err
		}
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Envelope{}, ctxErr
			}
			return Envelope{}, err
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			continue
		}
		return env, nil
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
