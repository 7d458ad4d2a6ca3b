package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/ports"
	"chatgate/internal/infrastructure/distributed"
	"chatgate/internal/infrastructure/repositories/docstore"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultPrefix = "chatgate:"

// nextTimestamp issues microsecond write times from the redis clock that
// strictly increase across every server sharing the instance.
var nextTimestamp = redis.NewScript(`
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000000 + tonumber(t[2])
local last = tonumber(redis.call('GET', KEYS[1]) or '0')
if now <= last then
	now = last + 1
end
redis.call('SET', KEYS[1], string.format('%d', now))
return now
`)

func clockKey(prefix string) string {
	return prefix + "clock"
}

type record struct {
	Fields    domain.Fields `json:"fields"`
	CreatedAt int64         `json:"created_at"`
}

// RedisDocumentStore keeps each collection in one hash of id -> record.
// Writes made by other servers arrive through the event bus.
type RedisDocumentStore struct {
	client *redis.Client
	bus    *distributed.EventBus
	prefix string
	hub    *docstore.Hub
	logger *zap.SugaredLogger
}

var _ ports.DocumentStore = (*RedisDocumentStore)(nil)

// NewRedisDocumentStore builds a store over client. bus may be nil for a
// single-server deployment.
func NewRedisDocumentStore(client *redis.Client, bus *distributed.EventBus, prefix string, logger *zap.SugaredLogger) *RedisDocumentStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RedisDocumentStore{
		client: client,
		bus:    bus,
		prefix: prefix,
		hub:    docstore.NewHub(),
		logger: logger,
	}
}

func (s *RedisDocumentStore) collectionKey(path domain.CollectionPath) string {
	return s.prefix + "doc:" + string(path)
}

// Start relays remote writes to local listeners until ctx is done.
func (s *RedisDocumentStore) Start(ctx context.Context) error {
	if s.bus == nil {
		return nil
	}
	return s.bus.Subscribe(ctx, func(event *distributed.Event) error {
		if event.Type == distributed.EventDocumentAdded && event.Collection != "" {
			s.hub.Notify(event.Collection)
		}
		return nil
	})
}

func (s *RedisDocumentStore) Add(ctx context.Context, path domain.CollectionPath, fields domain.Fields) (domain.DocumentID, error) {
	if path == "" {
		return "", domain.ErrInvalidArgument
	}

	micros, err := nextTimestamp.Run(ctx, s.client, []string{clockKey(s.prefix)}).Int64()
	if err != nil {
		return "", fmt.Errorf("failed to issue timestamp: %w", err)
	}
	now := time.UnixMicro(micros).UTC()

	id := domain.DocumentID(uuid.New().String())
	data, err := json.Marshal(record{
		Fields:    docstore.ResolveServerTimestamps(fields, now),
		CreatedAt: micros,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal document: %w", err)
	}

	if err := s.client.HSet(ctx, s.collectionKey(path), string(id), data).Err(); err != nil {
		return "", fmt.Errorf("failed to store document in Redis: %w", err)
	}

	s.hub.Notify(path)
	if s.bus != nil {
		if err := s.bus.PublishDocumentAdded(ctx, path, id); err != nil {
			s.logger.Warnw("failed to publish document event",
				"collection", path,
				"error", err,
			)
		}
	}

	return id, nil
}

func (s *RedisDocumentStore) Query(ctx context.Context, path domain.CollectionPath, q domain.Query) ([]domain.Document, error) {
	entries, err := s.client.HGetAll(ctx, s.collectionKey(path)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read collection from Redis: %w", err)
	}

	docs := make([]domain.Document, 0, len(entries))
	for id, data := range entries {
		doc, err := decodeRecord(id, data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreateTime.Equal(docs[j].CreateTime) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreateTime.Before(docs[j].CreateTime)
	})

	return docstore.Apply(docs, q), nil
}

func (s *RedisDocumentStore) Get(ctx context.Context, path domain.DocumentPath) (*domain.Document, error) {
	data, err := s.client.HGet(ctx, s.collectionKey(path.Collection), string(path.ID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document from Redis: %w", err)
	}
	return decodeRecord(string(path.ID), data)
}

func decodeRecord(id, data string) (*domain.Document, error) {
	var rec record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document %s: %w", id, err)
	}
	if rec.Fields == nil {
		rec.Fields = domain.Fields{}
	}
	return &domain.Document{
		ID:         domain.DocumentID(id),
		Fields:     rec.Fields,
		CreateTime: time.UnixMicro(rec.CreatedAt).UTC(),
	}, nil
}

func (s *RedisDocumentStore) SubscribeCollection(ctx context.Context, path domain.CollectionPath, q domain.Query, onSnapshot ports.SnapshotHandler, onError ports.ErrorHandler) (ports.Subscription, error) {
	return s.hub.Watch(ctx, path, func(ctx context.Context) ([]domain.Document, error) {
		return s.Query(ctx, path, q)
	}, onSnapshot, onError)
}

func (s *RedisDocumentStore) SubscribeDocument(ctx context.Context, path domain.DocumentPath, onSnapshot ports.DocumentHandler, onError ports.ErrorHandler) (ports.Subscription, error) {
	return s.hub.WatchDocument(ctx, path, func(ctx context.Context) (*domain.Document, error) {
		doc, err := s.Get(ctx, path)
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return nil, nil
		}
		return doc, err
	}, onSnapshot, onError)
}

func (s *RedisDocumentStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close stops local listeners. The client is owned by the caller.
func (s *RedisDocumentStore) Close() error {
	s.hub.Close()
	return nil
}
