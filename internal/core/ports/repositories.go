package ports

import (
	"context"

	"chatgate/internal/core/domain"
)

// Subscription is a live listener handle. Cancel is idempotent; once it
// returns no new callback is started.
type Subscription interface {
	Cancel()
}

// SnapshotHandler receives the full, query-shaped content of a collection
// every time it changes.
type SnapshotHandler func(docs []domain.Document)

// DocumentHandler receives a single document, or nil when it does not exist.
type DocumentHandler func(doc *domain.Document)

// ErrorHandler is called at most once; the subscription is dead afterwards.
type ErrorHandler func(err error)

// DocumentStore is the document database the chat core is built on.
type DocumentStore interface {
	SubscribeCollection(ctx context.Context, path domain.CollectionPath, q domain.Query, onSnapshot SnapshotHandler, onError ErrorHandler) (Subscription, error)
	SubscribeDocument(ctx context.Context, path domain.DocumentPath, onSnapshot DocumentHandler, onError ErrorHandler) (Subscription, error)
	Add(ctx context.Context, path domain.CollectionPath, fields domain.Fields) (domain.DocumentID, error)
	Query(ctx context.Context, path domain.CollectionPath, q domain.Query) ([]domain.Document, error)
	Get(ctx context.Context, path domain.DocumentPath) (*domain.Document, error)
	HealthCheck(ctx context.Context) error
	Close() error
}
