package services

import (
	"context"
	"fmt"
	"sync"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/ports"
	"chatgate/internal/infrastructure/repositories/docstore"
)

// fakeStore delivers snapshots synchronously on the calling goroutine.
type fakeStore struct {
	mu        sync.Mutex
	docs      map[domain.CollectionPath][]domain.Document
	listeners map[domain.CollectionPath][]*fakeListener
	clock     *docstore.Clock
	seq       int

	subscribeErr map[domain.CollectionPath]error // returned by SubscribeCollection
	listenErr    map[domain.CollectionPath]error // delivered to onError
	addErr       error
}

type fakeListener struct {
	path       domain.CollectionPath
	q          domain.Query
	onSnapshot ports.SnapshotHandler
	onError    ports.ErrorHandler
	cancelled  bool
	store      *fakeStore
}

func (l *fakeListener) Cancel() {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	l.cancelled = true
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:         make(map[domain.CollectionPath][]domain.Document),
		listeners:    make(map[domain.CollectionPath][]*fakeListener),
		clock:        docstore.NewClock(),
		subscribeErr: make(map[domain.CollectionPath]error),
		listenErr:    make(map[domain.CollectionPath]error),
	}
}

func (s *fakeStore) Add(ctx context.Context, path domain.CollectionPath, fields domain.Fields) (domain.DocumentID, error) {
	s.mu.Lock()
	if s.addErr != nil {
		err := s.addErr
		s.mu.Unlock()
		return "", err
	}
	s.seq++
	id := domain.DocumentID(fmt.Sprintf("doc-%d", s.seq))
	now := s.clock.Next()
	s.docs[path] = append(s.docs[path], domain.Document{
		ID:         id,
		Fields:     docstore.ResolveServerTimestamps(fields, now),
		CreateTime: now,
	})
	s.mu.Unlock()

	s.notify(path)
	return id, nil
}

// seed writes without notifying listeners.
func (s *fakeStore) seed(path domain.CollectionPath, id string, fields domain.Fields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Next()
	s.docs[path] = append(s.docs[path], domain.Document{
		ID:         domain.DocumentID(id),
		Fields:     docstore.ResolveServerTimestamps(fields, now),
		CreateTime: now,
	})
}

func (s *fakeStore) notify(path domain.CollectionPath) {
	s.mu.Lock()
	var live []*fakeListener
	for _, l := range s.listeners[path] {
		if !l.cancelled {
			live = append(live, l)
		}
	}
	s.mu.Unlock()

	for _, l := range live {
		s.deliver(l)
	}
}

// fail delivers err to every live listener on path.
func (s *fakeStore) fail(path domain.CollectionPath, err error) {
	s.mu.Lock()
	var live []*fakeListener
	for _, l := range s.listeners[path] {
		if !l.cancelled {
			live = append(live, l)
			l.cancelled = true
		}
	}
	s.mu.Unlock()

	for _, l := range live {
		if l.onError != nil {
			l.onError(err)
		}
	}
}

func (s *fakeStore) deliver(l *fakeListener) {
	s.mu.Lock()
	if l.cancelled {
		s.mu.Unlock()
		return
	}
	docs := docstore.Apply(append([]domain.Document(nil), s.docs[l.path]...), l.q)
	s.mu.Unlock()
	l.onSnapshot(docs)
}

func (s *fakeStore) Query(ctx context.Context, path domain.CollectionPath, q domain.Query) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.listenErr[path]; err != nil {
		return nil, err
	}
	return docstore.Apply(append([]domain.Document(nil), s.docs[path]...), q), nil
}

func (s *fakeStore) Get(ctx context.Context, path domain.DocumentPath) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs[path.Collection] {
		if d.ID == path.ID {
			doc := d
			return &doc, nil
		}
	}
	return nil, domain.ErrDocumentNotFound
}

func (s *fakeStore) SubscribeCollection(ctx context.Context, path domain.CollectionPath, q domain.Query, onSnapshot ports.SnapshotHandler, onError ports.ErrorHandler) (ports.Subscription, error) {
	s.mu.Lock()
	if err := s.subscribeErr[path]; err != nil {
		s.mu.Unlock()
		return nil, err
	}
	l := &fakeListener{path: path, q: q, onSnapshot: onSnapshot, onError: onError, store: s}
	s.listeners[path] = append(s.listeners[path], l)
	listenErr := s.listenErr[path]
	s.mu.Unlock()

	if listenErr != nil {
		s.fail(path, listenErr)
		return l, nil
	}
	s.deliver(l)
	return l, nil
}

func (s *fakeStore) SubscribeDocument(ctx context.Context, path domain.DocumentPath, onSnapshot ports.DocumentHandler, onError ports.ErrorHandler) (ports.Subscription, error) {
	return s.SubscribeCollection(ctx, path.Collection, domain.Query{}, func(docs []domain.Document) {
		for _, d := range docs {
			if d.ID == path.ID {
				doc := d
				onSnapshot(&doc)
				return
			}
		}
		onSnapshot(nil)
	}, onError)
}

func (s *fakeStore) HealthCheck(ctx context.Context) error { return nil }

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) liveListeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ls := range s.listeners {
		for _, l := range ls {
			if !l.cancelled {
				n++
			}
		}
	}
	return n
}

// helpers for building fixtures

func (s *fakeStore) addRoom(id domain.RoomID, name string, roles ...domain.RoleName) {
	s.seed(domain.RoomsCollection, string(id), domain.Fields{fieldName: name, fieldCreatedAt: domain.ServerTimestamp})
	for i, r := range roles {
		s.seed(domain.RoomRolesPath(id), fmt.Sprintf("%s-role-%d", id, i), roleFields(r))
	}
}

func (s *fakeStore) addUserRoles(id domain.UserID, roles ...domain.RoleName) {
	for i, r := range roles {
		s.seed(domain.UserRolesPath(id), fmt.Sprintf("%s-role-%d", id, i), roleFields(r))
	}
}
