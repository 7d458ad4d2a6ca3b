package services

import (
	"context"
	"fmt"
	"sync"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/ports"

	"go.uber.org/zap"
)

// DirectorySync keeps a live list of every room.
type DirectorySync struct {
	store   ports.DocumentStore
	metrics ports.Metrics
	logger  *zap.SugaredLogger
}

func NewDirectorySync(store ports.DocumentStore, metrics ports.Metrics, logger *zap.SugaredLogger) *DirectorySync {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &DirectorySync{store: store, metrics: metrics, logger: logger}
}

// Directory is a running room list. Each store snapshot replaces the whole
// list; room order is whatever the store delivers.
type Directory struct {
	metrics ports.Metrics
	logger  *zap.SugaredLogger

	emitMu sync.Mutex

	mu      sync.Mutex
	rooms   []domain.Room
	err     error
	stopped bool
	sub     ports.Subscription
}

func (d *DirectorySync) Start(ctx context.Context, onUpdate func([]domain.Room)) (*Directory, error) {
	if onUpdate == nil {
		onUpdate = func([]domain.Room) {}
	}
	dir := &Directory{metrics: d.metrics, logger: d.logger}

	sub, err := d.store.SubscribeCollection(ctx, domain.RoomsCollection, domain.Query{},
		func(docs []domain.Document) {
			rooms := make([]domain.Room, len(docs))
			for i, doc := range docs {
				rooms[i] = roomFromDocument(doc)
			}
			dir.replace(rooms, onUpdate)
		},
		func(err error) {
			dir.logger.Warnw("room directory subscription failed", "error", err)
			dir.metrics.SubscriptionFailed(KindRooms)
			dir.mu.Lock()
			dir.err = err
			dir.mu.Unlock()
		},
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe rooms: %w", err)
	}

	dir.mu.Lock()
	dir.sub = sub
	dir.mu.Unlock()
	d.metrics.SubscriptionOpened(KindRooms)
	return dir, nil
}

func (d *Directory) replace(rooms []domain.Room, onUpdate func([]domain.Room)) {
	d.emitMu.Lock()
	defer d.emitMu.Unlock()

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.rooms = rooms
	d.mu.Unlock()

	onUpdate(copyRooms(rooms))
}

// Rooms returns the last delivered list.
func (d *Directory) Rooms() []domain.Room {
	d.mu.Lock()
	defer d.mu.Unlock()
	return copyRooms(d.rooms)
}

// Err returns the subscription error, if the directory stopped receiving.
func (d *Directory) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Stop cancels the subscription. It is safe to call more than once.
func (d *Directory) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	sub := d.sub
	d.sub = nil
	d.mu.Unlock()

	if sub != nil {
		sub.Cancel()
		d.metrics.SubscriptionClosed(KindRooms)
	}

	d.emitMu.Lock()
	d.emitMu.Unlock()
}

func copyRooms(rooms []domain.Room) []domain.Room {
	out := make([]domain.Room, len(rooms))
	copy(out, rooms)
	return out
}
