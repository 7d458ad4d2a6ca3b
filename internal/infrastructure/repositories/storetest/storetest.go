// Package storetest holds behaviour checks shared by every DocumentStore
// implementation.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// Run exercises store. newStore must return an empty store; Run closes it.
func Run(t *testing.T, newStore func(t *testing.T) ports.DocumentStore) {
	t.Run("AddAndGet", func(t *testing.T) { testAddAndGet(t, newStore(t)) })
	t.Run("ServerTimestampIsIncreasing", func(t *testing.T) { testServerTimestamp(t, newStore(t)) })
	t.Run("QueryOrdering", func(t *testing.T) { testQueryOrdering(t, newStore(t)) })
	t.Run("SubscribeCollection", func(t *testing.T) { testSubscribeCollection(t, newStore(t)) })
	t.Run("SubscribeDocument", func(t *testing.T) { testSubscribeDocument(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
}

func testAddAndGet(t *testing.T, store ports.DocumentStore) {
	defer store.Close()
	ctx := context.Background()

	id, err := store.Add(ctx, domain.RoomsCollection, domain.Fields{"name": "general"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	doc, err := store.Get(ctx, domain.RoomPath(domain.RoomID(id)))
	require.NoError(t, err)
	assert.Equal(t, id, doc.ID)
	assert.Equal(t, "general", doc.Fields.GetString("name"))
	assert.False(t, doc.CreateTime.IsZero())
}

func testServerTimestamp(t *testing.T, store ports.DocumentStore) {
	defer store.Close()
	ctx := context.Background()
	path := domain.RoomMessagesPath("r1")

	for i := 0; i < 5; i++ {
		_, err := store.Add(ctx, path, domain.Fields{"message": "m", "timestamp": domain.ServerTimestamp})
		require.NoError(t, err)
	}

	docs, err := store.Query(ctx, path, domain.Query{OrderBy: "timestamp"})
	require.NoError(t, err)
	require.Len(t, docs, 5)

	var prev time.Time
	for _, d := range docs {
		ts, ok := d.Fields.GetTime("timestamp")
		require.True(t, ok, "timestamp must be resolved")
		assert.True(t, ts.After(prev))
		prev = ts
	}
}

func testQueryOrdering(t *testing.T, store ports.DocumentStore) {
	defer store.Close()
	ctx := context.Background()
	path := domain.RoomRolesPath("r1")

	for _, role := range []string{"qa", "devops", "main role"} {
		_, err := store.Add(ctx, path, domain.Fields{"role": role})
		require.NoError(t, err)
	}
	_, err := store.Add(ctx, path, domain.Fields{"label": "no role"})
	require.NoError(t, err)

	docs, err := store.Query(ctx, path, domain.Query{OrderBy: "role"})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "devops", docs[0].Fields.GetString("role"))
	assert.Equal(t, "main role", docs[1].Fields.GetString("role"))
	assert.Equal(t, "qa", docs[2].Fields.GetString("role"))

	docs, err = store.Query(ctx, path, domain.Query{OrderBy: "role", Direction: domain.Descending, Limit: 1})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "qa", docs[0].Fields.GetString("role"))

	all, err := store.Query(ctx, path, domain.Query{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

type snapshots struct {
	mu   sync.Mutex
	last []domain.Document
	n    int
}

func (s *snapshots) set(docs []domain.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = docs
	s.n++
}

func (s *snapshots) lastLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.n == 0 {
		return -1
	}
	return len(s.last)
}

func testSubscribeCollection(t *testing.T, store ports.DocumentStore) {
	defer store.Close()
	ctx := context.Background()
	path := domain.RoomMessagesPath("r1")

	snaps := &snapshots{}
	sub, err := store.SubscribeCollection(ctx, path, domain.Query{OrderBy: "timestamp"}, snaps.set, func(err error) {
		t.Errorf("unexpected error: %v", err)
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return snaps.lastLen() == 0 }, waitFor, 10*time.Millisecond)

	_, err = store.Add(ctx, path, domain.Fields{"message": "hi", "timestamp": domain.ServerTimestamp})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return snaps.lastLen() == 1 }, waitFor, 10*time.Millisecond)

	sub.Cancel()
	sub.Cancel()
}

func testSubscribeDocument(t *testing.T, store ports.DocumentStore) {
	defer store.Close()
	ctx := context.Background()

	id, err := store.Add(ctx, domain.RoomsCollection, domain.Fields{"name": "general"})
	require.NoError(t, err)

	got := make(chan *domain.Document, 1)
	sub, err := store.SubscribeDocument(ctx, domain.RoomPath(domain.RoomID(id)), func(doc *domain.Document) {
		select {
		case got <- doc:
		default:
		}
	}, nil)
	require.NoError(t, err)
	defer sub.Cancel()

	select {
	case doc := <-got:
		require.NotNil(t, doc)
		assert.Equal(t, "general", doc.Fields.GetString("name"))
	case <-time.After(waitFor):
		t.Fatal("no document snapshot")
	}
}

func testGetMissing(t *testing.T, store ports.DocumentStore) {
	defer store.Close()

	_, err := store.Get(context.Background(), domain.RoomPath("missing"))
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}
