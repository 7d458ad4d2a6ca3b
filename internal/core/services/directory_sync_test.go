package services

import (
	"context"
	"errors"
	"testing"

	"chatgate/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectorySync_ReplacesListOnEverySnapshot(t *testing.T) {
	store := newFakeStore()
	store.addRoom("r1", "general", domain.DefaultRole)

	var updates [][]domain.Room
	sync := NewDirectorySync(store, nil, nil)
	dir, err := sync.Start(context.Background(), func(rooms []domain.Room) {
		updates = append(updates, rooms)
	})
	require.NoError(t, err)
	defer dir.Stop()

	require.Len(t, updates, 1)
	assert.Equal(t, "general", updates[0][0].Name)

	_, err = store.Add(context.Background(), domain.RoomsCollection, domain.Fields{fieldName: "devops"})
	require.NoError(t, err)

	require.Len(t, updates, 2)
	assert.Len(t, updates[1], 2)
	assert.ElementsMatch(t, []string{"general", "devops"}, []string{updates[1][0].Name, updates[1][1].Name})
	assert.Len(t, dir.Rooms(), 2)
}

func TestDirectorySync_StopIsIdempotent(t *testing.T) {
	store := newFakeStore()
	metrics := newRecordingMetrics()

	calls := 0
	dir, err := NewDirectorySync(store, metrics, nil).Start(context.Background(), func([]domain.Room) { calls++ })
	require.NoError(t, err)

	dir.Stop()
	dir.Stop()

	_, err = store.Add(context.Background(), domain.RoomsCollection, domain.Fields{fieldName: "late"})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, metrics.counts().closed[KindRooms])
}

func TestDirectorySync_ErrorIsRecorded(t *testing.T) {
	store := newFakeStore()
	boom := errors.New("permission denied")
	store.listenErr[domain.RoomsCollection] = boom
	metrics := newRecordingMetrics()

	dir, err := NewDirectorySync(store, metrics, nil).Start(context.Background(), nil)
	require.NoError(t, err)
	defer dir.Stop()

	assert.ErrorIs(t, dir.Err(), boom)
	assert.Empty(t, dir.Rooms())
	assert.Equal(t, 1, metrics.counts().failed[KindRooms])
}

func TestDirectorySync_SubscribeError(t *testing.T) {
	store := newFakeStore()
	store.subscribeErr[domain.RoomsCollection] = errors.New("closed")

	_, err := NewDirectorySync(store, nil, nil).Start(context.Background(), nil)
	assert.Error(t, err)
}
