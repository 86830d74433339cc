package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"vn.io.arda/notification-client/internal/domain"
)

// ErrStale is returned when a result arrives for a viewer binding that has
// since been reset. The result is discarded.
var ErrStale = errors.New("result discarded: viewer changed")

// Scope pins an operation to the store generation it started under.
// Every Reset starts a new generation; work from older scopes is dropped.
type Scope uint64

// Store is the in-memory notification list for the current viewer.
// Records are keyed by id; order holds the ids newest first.
type Store struct {
	gateway domain.Gateway
	pub     Publisher

	mu       sync.RWMutex
	scope    Scope
	viewer   string
	items    map[string]domain.Notification
	order    []string
	fetchErr error
	// pushSeq numbers prepends; pushedAt holds the number of each id's
	// latest prepend so a fetch can tell which pushes it may not know about.
	pushSeq  uint64
	pushedAt map[string]uint64
}

// NewStore creates an empty Store. pub may be nil.
func NewStore(gateway domain.Gateway, pub Publisher) *Store {
	if pub == nil {
		pub = nopPublisher{}
	}
	return &Store{
		gateway: gateway,
		pub:     pub,
		items:    make(map[string]domain.Notification),
		pushedAt: make(map[string]uint64),
	}
}

// Reset empties the store, binds it to viewer ("" for none) and starts a new scope.
func (s *Store) Reset(viewer string) Scope {
	s.mu.Lock()
	s.scope++
	sc := s.scope
	s.viewer = viewer
	s.items = make(map[string]domain.Notification)
	s.order = nil
	s.fetchErr = nil
	s.pushedAt = make(map[string]uint64)
	s.mu.Unlock()

	s.pub.Publish(EventReset, map[string]string{"viewer": viewer})
	return sc
}

// Scope returns the current generation.
func (s *Store) Scope() Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scope
}

// Viewer returns the viewer the store is bound to.
func (s *Store) Viewer() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewer
}

// FetchAll loads the viewer's notifications from the backend.
//
// The response is authoritative for every id it contains. Records pushed
// after the fetch was issued and missing from the response stay in front,
// so a push racing the fetch is not lost. On failure the list is emptied and
// the error kept until the next successful fetch or Reset.
func (s *Store) FetchAll(ctx context.Context, viewer string) error {
	s.mu.Lock()
	if viewer == "" || viewer != s.viewer {
		s.mu.Unlock()
		return domain.ErrNoViewer
	}
	sc := s.scope
	since := s.pushSeq
	s.mu.Unlock()

	items, err := s.gateway.ListForViewer(ctx, viewer)

	s.mu.Lock()
	if s.scope != sc {
		s.mu.Unlock()
		return ErrStale
	}
	if err != nil {
		s.fetchErr = err
		s.items = make(map[string]domain.Notification)
		s.order = nil
		s.mu.Unlock()

		log.Error().Err(err).Str("viewer", viewer).Msg("fetch notifications failed")
		s.pub.Publish(EventFetchFailed, map[string]string{"error": err.Error()})
		return fmt.Errorf("fetch notifications: %w", err)
	}
	s.fetchErr = nil
	s.mergeLocked(items, since)
	count := len(s.order)
	s.mu.Unlock()

	log.Info().Str("viewer", viewer).Int("count", count).Msg("notifications fetched")
	s.pub.Publish(EventReplaced, map[string]int{"count": count})
	return nil
}

// mergeLocked applies a fetch response issued when pushSeq was since.
func (s *Store) mergeLocked(items []domain.Notification, since uint64) {
	next := make(map[string]domain.Notification, len(items))
	order := make([]string, 0, len(items))

	inResponse := make(map[string]struct{}, len(items))
	for _, n := range items {
		inResponse[n.ID] = struct{}{}
	}
	// Pushes the response does not know about yet keep their place in front.
	for _, id := range s.order {
		if seq, ok := s.pushedAt[id]; !ok || seq <= since {
			continue
		}
		if _, ok := inResponse[id]; ok {
			continue
		}
		next[id] = s.items[id]
		order = append(order, id)
	}
	for _, n := range items {
		if n.ID == "" {
			continue
		}
		if _, dup := next[n.ID]; dup {
			continue
		}
		if local, ok := s.items[n.ID]; ok {
			n = local.Merge(n)
		}
		next[n.ID] = n
		order = append(order, n.ID)
	}
	for id := range s.pushedAt {
		if _, ok := next[id]; !ok {
			delete(s.pushedAt, id)
		}
	}
	s.items = next
	s.order = order
}

// Prepend inserts n at the front. A record with the same id is overwritten
// and moved to the front rather than duplicated. Returns false when sc is
// stale or no viewer is bound.
func (s *Store) Prepend(sc Scope, n domain.Notification) bool {
	if n.ID == "" {
		return false
	}
	s.mu.Lock()
	if s.scope != sc || s.viewer == "" {
		s.mu.Unlock()
		return false
	}
	if existing, ok := s.items[n.ID]; ok {
		n = existing.Merge(n)
		s.removeLocked(n.ID)
	}
	s.items[n.ID] = n
	s.order = append([]string{n.ID}, s.order...)
	s.pushSeq++
	s.pushedAt[n.ID] = s.pushSeq
	s.mu.Unlock()

	s.pub.Publish(EventPrepended, n)
	return true
}

// MarkManyRead marks records read on the backend, one PATCH per record in
// parallel, and flips each record locally as its call succeeds. sc is the
// scope the records were read under; local flips are dropped once the store
// has moved on. Failed calls leave their record unread and are only logged.
// Returns how many records were flipped locally.
func (s *Store) MarkManyRead(ctx context.Context, sc Scope, records []domain.Notification) int {
	if len(records) == 0 {
		return 0
	}

	var marked atomic.Int64
	var wg conc.WaitGroup
	for _, rec := range records {
		id := rec.ID
		wg.Go(func() {
			if err := s.gateway.MarkRead(ctx, id); err != nil {
				log.Error().Err(err).Str("id", id).Msg("mark notification read failed")
				return
			}
			if s.markRead(sc, id) {
				marked.Add(1)
			}
		})
	}
	wg.Wait()

	n := int(marked.Load())
	log.Debug().Int("requested", len(records)).Int("marked", n).Msg("read-state reconciliation finished")
	return n
}

func (s *Store) markRead(sc Scope, id string) bool {
	s.mu.Lock()
	if s.scope != sc {
		s.mu.Unlock()
		return false
	}
	n, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	n.IsRead = true
	s.items[id] = n
	s.mu.Unlock()

	s.pub.Publish(EventRead, []string{id})
	return true
}

// DeleteOne deletes a record on the backend and, on success, locally.
// On failure the list is left unchanged.
func (s *Store) DeleteOne(ctx context.Context, id string) error {
	sc := s.Scope()
	if err := s.gateway.Delete(ctx, id); err != nil {
		log.Error().Err(err).Str("id", id).Msg("delete notification failed")
		return fmt.Errorf("delete notification: %w", err)
	}

	s.mu.Lock()
	if s.scope != sc {
		s.mu.Unlock()
		return ErrStale
	}
	_, ok := s.items[id]
	if ok {
		delete(s.items, id)
		delete(s.pushedAt, id)
		s.removeLocked(id)
	}
	s.mu.Unlock()

	if ok {
		s.pub.Publish(EventDeleted, map[string]string{"id": id})
	}
	return nil
}

func (s *Store) removeLocked(id string) {
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// UnreadCount counts unread records on every call.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.items {
		if !n.IsRead {
			count++
		}
	}
	return count
}

// Get returns the record with id.
func (s *Store) Get(id string) (domain.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.items[id]
	return n, ok
}

// Snapshot returns the records newest first.
func (s *Store) Snapshot() []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Notification, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

// Unread returns the unread records newest first, with the scope they were
// read under.
func (s *Store) Unread() ([]domain.Notification, Scope) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Notification
	for _, id := range s.order {
		if n := s.items[id]; !n.IsRead {
			out = append(out, n)
		}
	}
	return out, s.scope
}

// Err returns the error of the last failed fetch, if any.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchErr
}
