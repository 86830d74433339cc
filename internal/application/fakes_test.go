package application_test

import (
	"context"
	"errors"
	"sync"

	"vn.io.arda/notification-client/internal/domain"
)

// ── fake gateway ──

type fakeGateway struct {
	mu      sync.Mutex
	lists   map[string][]domain.Notification
	listErr error
	markErr map[string]error
	delErr  error
	gate    chan struct{} // when set, ListForViewer blocks until it is closed
	listed  []string
	marked  []string
	deleted []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		lists:   make(map[string][]domain.Notification),
		markErr: make(map[string]error),
	}
}

func (g *fakeGateway) ListForViewer(ctx context.Context, viewerID string) ([]domain.Notification, error) {
	g.mu.Lock()
	g.listed = append(g.listed, viewerID)
	gate := g.gate
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listErr != nil {
		return nil, g.listErr
	}
	return append([]domain.Notification(nil), g.lists[viewerID]...), nil
}

func (g *fakeGateway) MarkRead(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.marked = append(g.marked, id)
	return g.markErr[id]
}

func (g *fakeGateway) Delete(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleted = append(g.deleted, id)
	return g.delErr
}

func (g *fakeGateway) set(viewer string, items ...domain.Notification) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lists[viewer] = items
}

func (g *fakeGateway) block() chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gate = make(chan struct{})
	return g.gate
}

func (g *fakeGateway) failList(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listErr = err
}

func (g *fakeGateway) calls() (listed, marked, deleted []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.listed...),
		append([]string(nil), g.marked...),
		append([]string(nil), g.deleted...)
}

// ── fake connection ──

type fakeConnection struct {
	mu     sync.Mutex
	opened []string
	closes int
	state  domain.ConnState
	err    string
}

func (c *fakeConnection) Open(_ context.Context, viewer string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if viewer == "" {
		return domain.ErrNoViewer
	}
	c.opened = append(c.opened, viewer)
	c.state = domain.ConnConnected
	return nil
}

func (c *fakeConnection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	c.state = domain.ConnDisconnected
}

func (c *fakeConnection) State() (domain.ConnState, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == "" {
		return domain.ConnDisconnected, c.err
	}
	return c.state, c.err
}

func (c *fakeConnection) Opened() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.opened...)
}

func (c *fakeConnection) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// ── publisher recorder ──

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Publish(event string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

var errBackend = errors.New("backend unavailable")

func note(id string, read bool) domain.Notification {
	return domain.Notification{ID: id, Title: "title " + id, Type: domain.TypeOrder, IsRead: read}
}

func ids(list []domain.Notification) []string {
	out := make([]string, 0, len(list))
	for _, n := range list {
		out = append(out, n.ID)
	}
	return out
}
