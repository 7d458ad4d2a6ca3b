package memory

import (
	"context"
	"sync"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/ports"
	"chatgate/internal/infrastructure/repositories/docstore"

	"github.com/google/uuid"
)

type MemoryDocumentStore struct {
	collections map[domain.CollectionPath][]domain.Document
	index       map[domain.CollectionPath]map[domain.DocumentID]int
	clock       *docstore.Clock
	hub         *docstore.Hub
	mu          sync.RWMutex
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{
		collections: make(map[domain.CollectionPath][]domain.Document),
		index:       make(map[domain.CollectionPath]map[domain.DocumentID]int),
		clock:       docstore.NewClock(),
		hub:         docstore.NewHub(),
	}
}

var _ ports.DocumentStore = (*MemoryDocumentStore)(nil)

func (s *MemoryDocumentStore) Add(ctx context.Context, path domain.CollectionPath, fields domain.Fields) (domain.DocumentID, error) {
	if path == "" {
		return "", domain.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := domain.DocumentID(uuid.New().String())

	s.mu.Lock()
	now := s.clock.Next()
	doc := domain.Document{
		ID:         id,
		Fields:     docstore.ResolveServerTimestamps(fields, now),
		CreateTime: now,
	}
	if _, ok := s.index[path]; !ok {
		s.index[path] = make(map[domain.DocumentID]int)
	}
	s.index[path][id] = len(s.collections[path])
	s.collections[path] = append(s.collections[path], doc)
	s.mu.Unlock()

	s.hub.Notify(path)
	return id, nil
}

func (s *MemoryDocumentStore) Query(ctx context.Context, path domain.CollectionPath, q domain.Query) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	docs := make([]domain.Document, len(s.collections[path]))
	for i, d := range s.collections[path] {
		d.Fields = d.Fields.Clone()
		docs[i] = d
	}
	s.mu.RUnlock()

	return docstore.Apply(docs, q), nil
}

func (s *MemoryDocumentStore) Get(ctx context.Context, path domain.DocumentPath) (*domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[path.Collection][path.ID]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	doc := s.collections[path.Collection][i]
	doc.Fields = doc.Fields.Clone()
	return &doc, nil
}

func (s *MemoryDocumentStore) SubscribeCollection(ctx context.Context, path domain.CollectionPath, q domain.Query, onSnapshot ports.SnapshotHandler, onError ports.ErrorHandler) (ports.Subscription, error) {
	return s.hub.Watch(ctx, path, func(ctx context.Context) ([]domain.Document, error) {
		return s.Query(ctx, path, q)
	}, onSnapshot, onError)
}

func (s *MemoryDocumentStore) SubscribeDocument(ctx context.Context, path domain.DocumentPath, onSnapshot ports.DocumentHandler, onError ports.ErrorHandler) (ports.Subscription, error) {
	return s.hub.WatchDocument(ctx, path, func(ctx context.Context) (*domain.Document, error) {
		doc, err := s.Get(ctx, path)
		if err == domain.ErrDocumentNotFound {
			return nil, nil
		}
		return doc, err
	}, onSnapshot, onError)
}

func (s *MemoryDocumentStore) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryDocumentStore) Close() error {
	s.hub.Close()
	return nil
}
