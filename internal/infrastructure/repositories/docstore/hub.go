package docstore

import (
	"context"
	"sync"
	"sync/atomic"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/ports"
)

// FetchFunc reads the current, query-shaped content a listener is watching.
type FetchFunc func(ctx context.Context) ([]domain.Document, error)

// Hub keeps the live listeners of a store. A write calls Notify for the
// collection it touched; every listener on that collection re-fetches and
// delivers a full snapshot. Pending notifications coalesce, so a slow
// listener skips intermediate states but never sees them out of order.
type Hub struct {
	mu        sync.Mutex
	listeners map[domain.CollectionPath]map[*listener]struct{}
	closed    bool
}

func NewHub() *Hub {
	return &Hub{
		listeners: make(map[domain.CollectionPath]map[*listener]struct{}),
	}
}

type listener struct {
	hub        *Hub
	path       domain.CollectionPath
	fetch      FetchFunc
	onSnapshot ports.SnapshotHandler
	onError    ports.ErrorHandler

	wake      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// Watch registers a listener on path and delivers the first snapshot
// asynchronously. The listener stops when ctx is done, Cancel is called, the
// hub is closed, or fetch fails.
func (h *Hub) Watch(ctx context.Context, path domain.CollectionPath, fetch FetchFunc, onSnapshot ports.SnapshotHandler, onError ports.ErrorHandler) (ports.Subscription, error) {
	if onSnapshot == nil {
		return nil, domain.ErrInvalidArgument
	}

	lctx, cancel := context.WithCancel(ctx)
	l := &listener{
		hub:        h,
		path:       path,
		fetch:      fetch,
		onSnapshot: onSnapshot,
		onError:    onError,
		wake:       make(chan struct{}, 1),
		ctx:        lctx,
		cancel:     cancel,
	}
	l.wake <- struct{}{}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		cancel()
		return nil, domain.ErrSubscriptionClosed
	}
	set, ok := h.listeners[path]
	if !ok {
		set = make(map[*listener]struct{})
		h.listeners[path] = set
	}
	set[l] = struct{}{}
	h.mu.Unlock()

	go l.run()
	return l, nil
}

// WatchDocument adapts Watch to a single document.
func (h *Hub) WatchDocument(ctx context.Context, path domain.DocumentPath, get func(ctx context.Context) (*domain.Document, error), onSnapshot ports.DocumentHandler, onError ports.ErrorHandler) (ports.Subscription, error) {
	if onSnapshot == nil {
		return nil, domain.ErrInvalidArgument
	}
	fetch := func(ctx context.Context) ([]domain.Document, error) {
		doc, err := get(ctx)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, nil
		}
		return []domain.Document{*doc}, nil
	}
	deliver := func(docs []domain.Document) {
		if len(docs) == 0 {
			onSnapshot(nil)
			return
		}
		doc := docs[0]
		onSnapshot(&doc)
	}
	return h.Watch(ctx, path.Collection, fetch, deliver, onError)
}

// Notify wakes every listener on path.
func (h *Hub) Notify(path domain.CollectionPath) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for l := range h.listeners[path] {
		select {
		case l.wake <- struct{}{}:
		default:
		}
	}
}

// Len reports the number of live listeners.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, set := range h.listeners {
		n += len(set)
	}
	return n
}

// Close cancels every listener and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*listener
	for _, set := range h.listeners {
		for l := range set {
			all = append(all, l)
		}
	}
	h.mu.Unlock()

	for _, l := range all {
		l.Cancel()
	}
}

func (h *Hub) remove(l *listener) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.listeners[l.path]; ok {
		delete(set, l)
		if len(set) == 0 {
			delete(h.listeners, l.path)
		}
	}
}

func (l *listener) Cancel() {
	l.cancelled.Store(true)
	l.cancel()
}

func (l *listener) run() {
	defer l.hub.remove(l)
	defer l.cancel()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-l.wake:
		}

		docs, err := l.fetch(l.ctx)
		if l.ctx.Err() != nil || l.cancelled.Load() {
			return
		}
		if err != nil {
			if l.onError != nil {
				l.onError(err)
			}
			return
		}
		l.onSnapshot(docs)
	}
}
