package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"vn.io.arda/notification-client/internal/domain"
)

// ReconnectPolicy bounds transport-level reconnection: Attempts retries,
// Delay apart, after which the manager settles in ConnDisconnected.
type ReconnectPolicy struct {
	Attempts int
	Delay    time.Duration
}

// StateFunc observes connection state changes. lastErr is empty when healthy.
type StateFunc func(state domain.ConnState, lastErr string)

// Manager keeps at most one live real-time connection bound to a viewer and
// routes inbound envelopes through its Registry.
type Manager struct {
	dialer   Dialer
	registry *Registry
	policy   ReconnectPolicy
	onState  StateFunc

	mu      sync.Mutex
	state   domain.ConnState
	lastErr string
	active  *binding
}

// binding is one Open call. Everything it does is discarded once it is no
// longer the manager's active binding.
type binding struct {
	viewer string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	conn   Conn // guarded by Manager.mu
}

// NewManager creates a Manager. onState may be nil.
func NewManager(dialer Dialer, registry *Registry, policy ReconnectPolicy, onState StateFunc) *Manager {
	return &Manager{
		dialer:   dialer,
		registry: registry,
		policy:   policy,
		onState:  onState,
		state:    domain.ConnDisconnected,
	}
}

// Open closes any existing connection and starts connecting for viewer in
// the background. The connection lives until Close, the next Open, or ctx
// being cancelled.
func (m *Manager) Open(ctx context.Context, viewer string) error {
	if viewer == "" {
		return domain.ErrNoViewer
	}
	m.Close()

	bctx, cancel := context.WithCancel(ctx)
	b := &binding{viewer: viewer, ctx: bctx, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.active = b
	m.mu.Unlock()

	m.transition(b, domain.ConnConnecting, "", false)
	go m.run(b)
	return nil
}

// Close tears down the active connection. No-op when nothing is open.
func (m *Manager) Close() {
	m.mu.Lock()
	b := m.active
	if b == nil {
		m.mu.Unlock()
		return
	}
	m.active = nil
	conn := b.conn
	m.state = domain.ConnDisconnected
	m.lastErr = ""
	m.mu.Unlock()

	b.cancel()
	if conn != nil {
		_ = conn.Close()
	}
	<-b.done

	log.Info().Str("viewer", b.viewer).Msg("realtime connection closed")
	m.notify(domain.ConnDisconnected, "")
}

// State returns the current connection state and last error message.
func (m *Manager) State() (domain.ConnState, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.lastErr
}

func (m *Manager) run(b *binding) {
	defer close(b.done)

	var bo backoff.BackOff = backoff.NewConstantBackOff(m.policy.Delay)
	bo = backoff.WithContext(backoff.WithMaxRetries(bo, uint64(m.policy.Attempts)), b.ctx)

	for {
		conn, err := m.connect(b)
		if err == nil {
			bo.Reset()
			err = m.pump(b, conn)
			_ = conn.Close()
			m.detach(b, conn)
		}
		if b.ctx.Err() != nil {
			// Cancelled through the Open ctx rather than Close.
			m.transition(b, domain.ConnDisconnected, "", false)
			return
		}

		log.Warn().Err(err).Str("viewer", b.viewer).Msg("realtime connection failed")
		m.transition(b, domain.ConnErrored, err.Error(), true)

		next := bo.NextBackOff()
		if next == backoff.Stop {
			log.Warn().Str("viewer", b.viewer).Int("attempts", m.policy.Attempts).Msg("realtime reconnection gave up")
			m.transition(b, domain.ConnDisconnected, "", true)
			return
		}

		timer := time.NewTimer(next)
		select {
		case <-timer.C:
		case <-b.ctx.Done():
			timer.Stop()
			m.transition(b, domain.ConnDisconnected, "", false)
			return
		}
		m.transition(b, domain.ConnConnecting, "", true)
	}
}

// connect dials, attaches the connection to b and joins the viewer's room.
func (m *Manager) connect(b *binding) (Conn, error) {
	conn, err := m.dialer.Dial(b.ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.active != b {
		m.mu.Unlock()
		_ = conn.Close()
		return nil, context.Canceled
	}
	b.conn = conn
	m.mu.Unlock()

	join, err := NewEnvelope(EventJoinRoom, b.viewer)
	if err == nil {
		err = conn.Send(b.ctx, join)
	}
	if err != nil {
		_ = conn.Close()
		m.detach(b, conn)
		return nil, err
	}

	log.Info().Str("viewer", b.viewer).Str("transport", conn.Transport()).Msg("realtime connected")
	m.transition(b, domain.ConnConnected, "", false)
	return conn, nil
}

// pump dispatches inbound envelopes until the connection fails or b's ctx
// ends. The connection is closed as soon as the ctx ends so blocked reads
// return.
func (m *Manager) pump(b *binding, conn Conn) error {
	stop := context.AfterFunc(b.ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		env, err := conn.Receive(b.ctx)
		if err != nil {
			return fmt.Errorf("connection lost: %w", err)
		}
		if b.ctx.Err() != nil || !m.current(b) {
			return context.Canceled
		}
		m.registry.Dispatch(env)
	}
}

func (m *Manager) current(b *binding) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active == b
}

func (m *Manager) detach(b *binding, conn Conn) {
	m.mu.Lock()
	if b.conn == conn {
		b.conn = nil
	}
	m.mu.Unlock()
}

// transition applies a state change for b if b is still active. keepErr
// keeps the previous error message when msg is empty.
func (m *Manager) transition(b *binding, state domain.ConnState, msg string, keepErr bool) {
	m.mu.Lock()
	if m.active != b {
		m.mu.Unlock()
		return
	}
	m.state = state
	if msg != "" || !keepErr {
		m.lastErr = msg
	}
	lastErr := m.lastErr
	m.mu.Unlock()

	m.notify(state, lastErr)
}

func (m *Manager) notify(state domain.ConnState, lastErr string) {
	if m.onState != nil {
		m.onState(state, lastErr)
	}
}
