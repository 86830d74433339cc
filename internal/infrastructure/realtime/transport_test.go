package realtime_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vn.io.arda/notification-client/internal/domain"
	"vn.io.arda/notification-client/internal/infrastructure/realtime"
)

func jarFor(t *testing.T, origin string) http.CookieJar {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	u, err := url.Parse(origin)
	require.NoError(t, err)
	jar.SetCookies(u, []*http.Cookie{{Name: "token", Value: "session-abc", Path: "/"}})
	return jar
}

func TestWebSocketDialer_RoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	cookie := make(chan string, 1)
	joined := make(chan realtime.Envelope, 1)

	e := echo.New()
	e.GET("/socket/websocket", func(c echo.Context) error {
		if ck, err := c.Cookie("token"); err == nil {
			cookie <- ck.Value
		}
		ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}
		defer ws.Close()

		var env realtime.Envelope
		if err := ws.ReadJSON(&env); err != nil {
			return nil
		}
		joined <- env

		push, _ := realtime.NewEnvelope(realtime.EventNewNotification, domain.Notification{ID: "n2", Title: "Flash sale"})
		_ = ws.WriteMessage(websocket.TextMessage, []byte("garbage"))
		_ = ws.WriteJSON(push)
		_, _, _ = ws.ReadMessage() // hold until the client closes
		return nil
	})
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	d, err := realtime.NewWebSocketDialer(srv.URL, "/socket", jarFor(t, srv.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := d.Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "websocket", conn.Transport())
	assert.Equal(t, "session-abc", <-cookie)

	join, err := realtime.NewEnvelope(realtime.EventJoinRoom, "user123")
	require.NoError(t, err)
	require.NoError(t, conn.Send(ctx, join))
	assert.Equal(t, "user123", joinedAs(t, <-joined))

	env, err := conn.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, realtime.EventNewNotification, env.Event)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
}

func TestNewWebSocketDialer_RejectsScheme(t *testing.T) {
	_, err := realtime.NewWebSocketDialer("ftp://shop.local", "/socket", nil)
	assert.Error(t, err)
}

// pollServer is a minimal polling endpoint: POSTed envelopes are recorded,
// queued envelopes are returned on the next GET.
type pollServer struct {
	mu      sync.Mutex
	posted  []realtime.Envelope
	queued  []realtime.Envelope
	sids    map[string]bool
	waits   []int64
	refuse  bool
	cookies []string
}

func (p *pollServer) routes(e *echo.Echo) {
	e.GET("/socket/poll", func(c echo.Context) error {
		p.mu.Lock()
		if p.refuse {
			p.mu.Unlock()
			return c.NoContent(http.StatusServiceUnavailable)
		}
		p.sids[c.QueryParam("sid")] = true
		w, _ := strconv.ParseInt(c.QueryParam("wait"), 10, 64)
		p.waits = append(p.waits, w)
		if ck, err := c.Cookie("token"); err == nil {
			p.cookies = append(p.cookies, ck.Value)
		}
		out := p.queued
		p.queued = nil
		p.mu.Unlock()

		if len(out) == 0 {
			out = []realtime.Envelope{}
			time.Sleep(time.Duration(w) * time.Millisecond)
		}
		return c.JSON(http.StatusOK, out)
	})
	e.POST("/socket/poll", func(c echo.Context) error {
		var env realtime.Envelope
		if err := json.NewDecoder(c.Request().Body).Decode(&env); err != nil {
			return c.NoContent(http.StatusBadRequest)
		}
		p.mu.Lock()
		p.posted = append(p.posted, env)
		p.mu.Unlock()
		return c.NoContent(http.StatusNoContent)
	})
}

func (p *pollServer) queue(env realtime.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queued = append(p.queued, env)
}

func newPollServer(t *testing.T) (*pollServer, *httptest.Server) {
	t.Helper()
	p := &pollServer{sids: make(map[string]bool)}
	e := echo.New()
	p.routes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return p, srv
}

func TestPollingDialer_RoundTrip(t *testing.T) {
	p, srv := newPollServer(t)
	d, err := realtime.NewPollingDialer(srv.URL, "/socket", jarFor(t, srv.URL), 10*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := d.Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "polling", conn.Transport())

	join, _ := realtime.NewEnvelope(realtime.EventJoinRoom, "user123")
	require.NoError(t, conn.Send(ctx, join))

	p.queue(pushEnvelope(t, domain.Notification{ID: "n2"}))
	env, err := conn.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, realtime.EventNewNotification, env.Event)

	p.mu.Lock()
	defer p.mu.Unlock()
	require.Len(t, p.posted, 1)
	assert.Equal(t, realtime.EventJoinRoom, p.posted[0].Event)
	assert.Len(t, p.sids, 1, "one session id per connection")
	assert.Equal(t, int64(0), p.waits[0], "handshake poll does not wait")
	assert.Contains(t, p.cookies, "session-abc")
}

func TestPollingConn_CloseUnblocksReceive(t *testing.T) {
	_, srv := newPollServer(t)
	d, err := realtime.NewPollingDialer(srv.URL, "/socket", nil, 10*time.Millisecond)
	require.NoError(t, err)

	conn, err := d.Dial(context.Background())
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := conn.Receive(context.Background())
		errc <- err
	}()
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, conn.Close())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, realtime.ErrConnClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not return after Close")
	}
	assert.ErrorIs(t, conn.Send(context.Background(), realtime.Envelope{Event: "x"}), realtime.ErrConnClosed)
}

func TestFallbackDialer(t *testing.T) {
	p, srv := newPollServer(t)

	ws, err := realtime.NewWebSocketDialer(srv.URL, "/socket", nil) // no websocket route: handshake fails
	require.NoError(t, err)
	poll, err := realtime.NewPollingDialer(srv.URL, "/socket", nil, 10*time.Millisecond)
	require.NoError(t, err)

	d := realtime.FallbackDialer{ws, poll}
	assert.Equal(t, "websocket+polling", d.Name())

	conn, err := d.Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "polling", conn.Transport())

	p.mu.Lock()
	p.refuse = true
	p.mu.Unlock()

	_, err = d.Dial(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "websocket dial")
	assert.Contains(t, err.Error(), "polling receive")

	_, err = realtime.FallbackDialer{}.Dial(context.Background())
	assert.Error(t, err)
}

func TestNewDialer(t *testing.T) {
	d, err := realtime.NewDialer([]string{"websocket", "polling"}, "http://shop.local", "/socket", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "websocket+polling", d.Name())

	d, err = realtime.NewDialer([]string{"polling"}, "http://shop.local", "/socket", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "polling", d.Name())

	_, err = realtime.NewDialer([]string{"carrier-pigeon"}, "http://shop.local", "/socket", nil, time.Second)
	assert.Error(t, err)
}

func TestManager_ContextCancelStopsWebSocketDelivery(t *testing.T) {
	upgrader := websocket.Upgrader{}
	joined := make(chan struct{}, 1)
	push := make(chan struct{})
	serverDone := make(chan struct{})

	e := echo.New()
	e.GET("/socket/websocket", func(c echo.Context) error {
		ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}
		defer ws.Close()
		defer close(serverDone)

		var env realtime.Envelope
		if err := ws.ReadJSON(&env); err != nil {
			return nil
		}
		joined <- struct{}{}

		<-push
		late, _ := realtime.NewEnvelope(realtime.EventNewNotification, domain.Notification{ID: "late"})
		_ = ws.WriteJSON(late)
		_, _, _ = ws.ReadMessage()
		return nil
	})
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	d, err := realtime.NewWebSocketDialer(srv.URL, "/socket", nil)
	require.NoError(t, err)

	var mu sync.Mutex
	delivered := 0
	reg := realtime.NewRegistry()
	reg.Register(realtime.EventNewNotification, realtime.NotificationHandler(func(domain.Notification) {
		mu.Lock()
		delivered++
		mu.Unlock()
	}))

	m := realtime.NewManager(d, reg, realtime.ReconnectPolicy{Attempts: 3, Delay: time.Millisecond}, nil)
	t.Cleanup(m.Close)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Open(ctx, "user123"))
	select {
	case <-joined:
	case <-time.After(5 * time.Second):
		t.Fatal("viewer did not join")
	}

	cancel()
	require.Eventually(t, func() bool {
		st, _ := m.State()
		return st == domain.ConnDisconnected
	}, 2*time.Second, 5*time.Millisecond)

	close(push)
	select {
	case <-serverDone:
	case <-time.After(5 * time.Second):
		t.Fatal("server still holds the connection")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, delivered)
}
