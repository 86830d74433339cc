package application

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"vn.io.arda/notification-client/internal/domain"
	"vn.io.arda/notification-client/internal/messages"
)

// Session binds the notification store, the real-time connection and the
// read-state reconciler to the current viewer. It is the mounted instance:
// changing the viewer tears everything down and starts over.
type Session struct {
	store      *Store
	reconciler *Reconciler
	conn       Connection

	// switchMu serializes viewer changes and shutdown.
	switchMu sync.Mutex

	mu       sync.RWMutex
	root     context.Context
	viewer   string
	lifetime context.Context
	cancel   context.CancelFunc
	closed   bool

	bg sync.WaitGroup
}

// View is everything needed to render the notification list.
type View struct {
	Viewer        string                `json:"viewer"`
	Notifications []domain.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
	Badge         string                `json:"badge,omitempty"`
	Connection    domain.ConnState      `json:"connection"`
	Offline       bool                  `json:"offline"`
	OfflineLabel  string                `json:"offline_label,omitempty"`
	FetchError    string                `json:"fetch_error,omitempty"`
	CanRetry      bool                  `json:"can_retry"`
	RetryLabel    string                `json:"retry_label,omitempty"`
	EmptyMessage  string                `json:"empty_message,omitempty"`
	IdentityError string                `json:"identity_error,omitempty"`
	Open          bool                  `json:"open"`
}

// NewSession creates a Session with no viewer bound. ctx bounds the
// lifetime of every viewer binding.
func NewSession(ctx context.Context, store *Store, conn Connection) *Session {
	return &Session{
		store:      store,
		reconciler: NewReconciler(store),
		conn:       conn,
		root:       ctx,
	}
}

// SetViewer binds the session to identity (see domain.ResolveViewer).
//
// On a change the old connection is closed, in-flight work for the old
// viewer is cancelled and the list is emptied before anything for the new
// viewer is requested. An unresolvable identity leaves the session empty and
// disconnected, returns domain.ErrNoViewer and issues no network calls.
func (s *Session) SetViewer(identity any) error {
	viewer, ok := domain.ResolveViewer(identity)

	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	s.mu.RLock()
	unchanged := ok && viewer == s.viewer && s.lifetime != nil
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return errors.New("session closed")
	}
	if unchanged {
		return nil
	}

	s.teardown()

	if !ok {
		log.Warn().Msg("no valid viewer identity, notifications disabled")
		return domain.ErrNoViewer
	}

	lifetime, cancel := context.WithCancel(s.root)
	s.mu.Lock()
	s.viewer = viewer
	s.lifetime = lifetime
	s.cancel = cancel
	s.mu.Unlock()

	s.store.Reset(viewer)
	log.Info().Str("viewer", viewer).Msg("viewer bound")

	if err := s.conn.Open(lifetime, viewer); err != nil {
		log.Error().Err(err).Str("viewer", viewer).Msg("open realtime connection failed")
	}

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		_ = s.store.FetchAll(lifetime, viewer)
	}()
	return nil
}

// teardown empties the store, cancels the current binding and closes the
// connection. Results still in flight land in a dead scope and are dropped;
// once it returns the old connection delivers nothing more. Callers hold
// switchMu.
func (s *Session) teardown() {
	s.mu.Lock()
	cancel := s.cancel
	prev := s.viewer
	s.viewer = ""
	s.lifetime = nil
	s.cancel = nil
	s.mu.Unlock()

	s.store.Reset("")
	if cancel != nil {
		cancel()
	}
	s.conn.Close()
	s.reconciler.Close()
	if prev != "" {
		log.Info().Str("viewer", prev).Msg("viewer unbound")
	}
}

// HandlePush is the new-notification handler. Pushes with no bound viewer
// are dropped.
func (s *Session) HandlePush(n domain.Notification) {
	if s.Viewer() == "" {
		return
	}
	if s.store.Prepend(s.store.Scope(), n) {
		log.Debug().Str("id", n.ID).Str("type", string(n.Type)).Msg("notification pushed")
	}
}

// Retry re-runs the initial fetch for the current viewer.
func (s *Session) Retry() error {
	viewer, ctx := s.binding()
	if viewer == "" {
		return domain.ErrNoViewer
	}
	return s.store.FetchAll(ctx, viewer)
}

// OpenList records the list being opened and reconciles read state in the
// background. Reports whether a reconciliation started.
func (s *Session) OpenList() bool {
	viewer, ctx := s.binding()
	if viewer == "" {
		return false
	}
	return s.reconciler.Open(ctx)
}

// CloseList records the list being closed.
func (s *Session) CloseList() {
	s.reconciler.Close()
}

// Delete removes one notification listed for the viewer. Backend failures
// leave the list unchanged.
func (s *Session) Delete(id string) error {
	viewer, ctx := s.binding()
	if viewer == "" {
		return domain.ErrNoViewer
	}
	if _, ok := s.store.Get(id); !ok {
		return domain.ErrNotFound
	}
	return s.store.DeleteOne(ctx, id)
}

// Viewer returns the bound viewer id, or "" when none.
func (s *Session) Viewer() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewer
}

// UnreadCount is the badge count.
func (s *Session) UnreadCount() int {
	return s.store.UnreadCount()
}

// ConnectionState returns the real-time connection state.
func (s *Session) ConnectionState() domain.ConnState {
	st, _ := s.conn.State()
	return st
}

// View renders the current state.
func (s *Session) View() View {
	viewer := s.Viewer()
	state, lastErr := s.conn.State()
	v := View{
		Viewer:        viewer,
		Notifications: s.store.Snapshot(),
		Unread:        s.store.UnreadCount(),
		Connection:    state,
		Open:          s.reconciler.IsOpen(),
	}
	v.Badge = messages.Badge(v.Unread)
	if viewer == "" {
		v.IdentityError = messages.NoViewer
		return v
	}
	v.Offline = !state.Online()
	v.OfflineLabel = messages.ConnectionLabel(state, lastErr)
	if err := s.store.Err(); err != nil {
		v.FetchError = messages.FetchError(err)
		v.CanRetry = true
		v.RetryLabel = messages.RetryAction
	} else if len(v.Notifications) == 0 {
		v.EmptyMessage = messages.EmptyList
	}
	return v
}

// Wait blocks until background fetches and reconciliations finish.
func (s *Session) Wait() {
	s.bg.Wait()
	s.reconciler.Wait()
}

// Close unmounts the session: the connection is closed, in-flight work is
// cancelled and awaited, and no viewer can be bound afterwards.
func (s *Session) Close() {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.teardown()
	s.Wait()
}

func (s *Session) binding() (string, context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewer, s.lifetime
}
