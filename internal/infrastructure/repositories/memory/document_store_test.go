package memory

import (
	"context"
	"testing"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/ports"
	"chatgate/internal/infrastructure/repositories/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDocumentStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ports.DocumentStore {
		return NewMemoryDocumentStore()
	})
}

func TestMemoryDocumentStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryDocumentStore()
	defer store.Close()
	ctx := context.Background()

	id, err := store.Add(ctx, domain.RoomsCollection, domain.Fields{"name": "general"})
	require.NoError(t, err)

	doc, err := store.Get(ctx, domain.RoomPath(domain.RoomID(id)))
	require.NoError(t, err)
	doc.Fields["name"] = "changed"

	doc, err = store.Get(ctx, domain.RoomPath(domain.RoomID(id)))
	require.NoError(t, err)
	assert.Equal(t, "general", doc.Fields.GetString("name"))
}

func TestMemoryDocumentStore_ClosedRejectsSubscriptions(t *testing.T) {
	store := NewMemoryDocumentStore()
	require.NoError(t, store.Close())

	_, err := store.SubscribeCollection(context.Background(), domain.RoomsCollection, domain.Query{}, func([]domain.Document) {}, nil)
	assert.ErrorIs(t, err, domain.ErrSubscriptionClosed)
}
