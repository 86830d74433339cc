package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrConnClosed is returned by operations on a closed connection.
var ErrConnClosed = errors.New("realtime: connection closed")

// PollingDialer is the request-polling fallback transport. Each connection
// gets a client-generated session id; GET long-polls for envelopes and POST
// sends one.
type PollingDialer struct {
	endpoint string
	wait     time.Duration
	client   *http.Client
}

// NewPollingDialer builds a dialer for {origin}{path}/poll.
func NewPollingDialer(origin, path string, jar http.CookieJar, wait time.Duration) (*PollingDialer, error) {
	endpoint := strings.TrimRight(origin, "/") + path + "/poll"
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("polling url: %w", err)
	}
	return &PollingDialer{
		endpoint: endpoint,
		wait:     wait,
		client:   &http.Client{Jar: jar},
	}, nil
}

func (d *PollingDialer) Name() string { return "polling" }

// Dial opens a polling session with an immediate, non-waiting poll so an
// unreachable endpoint fails here rather than on the first receive.
func (d *PollingDialer) Dial(ctx context.Context) (Conn, error) {
	ctx2, cancel := context.WithCancel(context.Background())
	c := &pollConn{
		dialer: d,
		sid:    uuid.NewString(),
		ctx:    ctx2,
		cancel: cancel,
	}
	envs, err := c.poll(ctx, 0)
	if err != nil {
		cancel()
		return nil, err
	}
	c.buf = envs
	return c, nil
}

type pollConn struct {
	dialer *PollingDialer
	sid    string

	// ctx is cancelled by Close to abort in-flight polls.
	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.Mutex
	buf []Envelope
}

func (c *pollConn) Transport() string { return "polling" }

func (c *pollConn) Send(ctx context.Context, env Envelope) error {
	if c.ctx.Err() != nil {
		return ErrConnClosed
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ctx, stop := mergeCancel(ctx, c.ctx)
	defer stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(-1), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.dialer.client.Do(req)
	if err != nil {
		return fmt.Errorf("polling send %s: %w", env.Event, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("polling send %s: status %d", env.Event, resp.StatusCode)
	}
	return nil
}

func (c *pollConn) Receive(ctx context.Context) (Envelope, error) {
	for {
		c.mu.Lock()
		if len(c.buf) > 0 {
			env := c.buf[0]
			c.buf = c.buf[1:]
			c.mu.Unlock()
			return env, nil
		}
		c.mu.Unlock()

		if c.ctx.Err() != nil {
			return Envelope{}, ErrConnClosed
		}
		envs, err := c.poll(ctx, c.dialer.wait)
		if err != nil {
			if c.ctx.Err() != nil {
				return Envelope{}, ErrConnClosed
			}
			return Envelope{}, err
		}
		c.mu.Lock()
		c.buf = append(c.buf, envs...)
		c.mu.Unlock()
	}
}

func (c *pollConn) Close() error {
	c.cancel()
	return nil
}

func (c *pollConn) poll(ctx context.Context, wait time.Duration) ([]Envelope, error) {
	ctx, stop := mergeCancel(ctx, c.ctx)
	defer stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(wait), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.dialer.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polling receive: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("polling receive: status %d", resp.StatusCode)
	}

	var envs []Envelope
	if err := json.NewDecoder(resp.Body).Decode(&envs); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("polling receive: decode: %w", err)
	}
	out := envs[:0]
	for _, env := range envs {
		if env.Event != "" {
			out = append(out, env)
		}
	}
	return out, nil
}

// url builds the poll endpoint; a negative wait omits the parameter.
func (c *pollConn) url(wait time.Duration) string {
	q := url.Values{"sid": {c.sid}}
	if wait >= 0 {
		q.Set("wait", strconv.FormatInt(wait.Milliseconds(), 10))
	}
	return c.dialer.endpoint + "?" + q.Encode()
}

// mergeCancel returns a context cancelled when either a or b is done.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// FallbackDialer tries each dialer in order and returns the first connection.
type FallbackDialer []Dialer

func (f FallbackDialer) Name() string {
	names := make([]string, len(f))
	for i, d := range f {
		names[i] = d.Name()
	}
	return strings.Join(names, "+")
}

func (f FallbackDialer) Dial(ctx context.Context) (Conn, error) {
	var errs []error
	for _, d := range f {
		conn, err := d.Dial(ctx)
		if err == nil {
			return conn, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return nil, errors.New("realtime: no transports configured")
	}
	return nil, errors.Join(errs...)
}

// NewDialer builds the dialer for the named transports in preference order.
func NewDialer(transports []string, origin, path string, jar http.CookieJar, pollWait time.Duration) (Dialer, error) {
	var chain FallbackDialer
	for _, name := range transports {
		switch name {
		case "websocket":
			d, err := NewWebSocketDialer(origin, path, jar)
			if err != nil {
				return nil, err
			}
			chain = append(chain, d)
		case "polling":
			d, err := NewPollingDialer(origin, path, jar, pollWait)
			if err != nil {
				return nil, err
			}
			chain = append(chain, d)
		default:
			return nil, fmt.Errorf("realtime: unknown transport %q", name)
		}
	}
	if len(chain) == 1 {
		return chain[0], nil
	}
	return chain, nil
}
