package application

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Reconciler decides when read state is pushed to the backend: once per
// closed→open transition of the notification list, for whatever is unread
// at that moment. The list is usable immediately; marking runs in the
// background.
type Reconciler struct {
	store *Store

	mu   sync.Mutex
	open bool
	wg   sync.WaitGroup
}

// NewReconciler creates a Reconciler over store.
func NewReconciler(store *Store) *Reconciler {
	return &Reconciler{store: store}
}

// Open records the open transition. It reports whether a reconciliation was
// started: false when the list was already open or nothing is unread.
func (r *Reconciler) Open(ctx context.Context) bool {
	r.mu.Lock()
	if r.open {
		r.mu.Unlock()
		return false
	}
	r.open = true
	r.mu.Unlock()

	unread, sc := r.store.Unread()
	if len(unread) == 0 {
		return false
	}

	log.Debug().Int("unread", len(unread)).Msg("reconciling read state")
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.store.MarkManyRead(ctx, sc, unread)
	}()
	return true
}

// Close records the open→closed transition.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.open = false
	r.mu.Unlock()
}

// IsOpen reports whether the list is currently open.
func (r *Reconciler) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// Wait blocks until every background reconciliation has finished.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}
