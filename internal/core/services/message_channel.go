package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/ports"
	"chatgate/pkg/tracing"
	"chatgate/pkg/validation"

	"go.uber.org/zap"
)

const (
	DefaultAppendTimeout    = 5 * time.Second
	DefaultMaxMessageLength = 4000
)

// MessageChannel reads and writes the messages of a room.
type MessageChannel struct {
	store         ports.DocumentStore
	metrics       ports.Metrics
	logger        *zap.SugaredLogger
	appendTimeout time.Duration
	maxLength     int

	pending sync.WaitGroup
}

func NewMessageChannel(store ports.DocumentStore, metrics ports.Metrics, logger *zap.SugaredLogger, appendTimeout time.Duration, maxLength int) *MessageChannel {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if appendTimeout <= 0 {
		appendTimeout = DefaultAppendTimeout
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxMessageLength
	}
	return &MessageChannel{
		store:         store,
		metrics:       metrics,
		logger:        logger,
		appendTimeout: appendTimeout,
		maxLength:     maxLength,
	}
}

// Subscribe delivers the full transcript of a room, oldest first, on every
// change.
func (c *MessageChannel) Subscribe(ctx context.Context, roomID domain.RoomID, onUpdate func([]domain.Message)) (ports.Subscription, error) {
	if roomID == "" || onUpdate == nil {
		return nil, domain.ErrInvalidArgument
	}
	sub, err := c.store.SubscribeCollection(ctx, domain.RoomMessagesPath(roomID),
		domain.Query{OrderBy: fieldTimestamp, Direction: domain.Ascending},
		func(docs []domain.Document) { onUpdate(messagesFromDocuments(docs)) },
		c.subscriptionFailed(KindMessages, roomID),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe messages: %w", err)
	}
	return c.counted(sub, KindMessages), nil
}

// SubscribeLatest delivers the newest message of a room, or nil while the
// room is empty.
func (c *MessageChannel) SubscribeLatest(ctx context.Context, roomID domain.RoomID, onUpdate func(*domain.Message)) (ports.Subscription, error) {
	if roomID == "" || onUpdate == nil {
		return nil, domain.ErrInvalidArgument
	}
	sub, err := c.store.SubscribeCollection(ctx, domain.RoomMessagesPath(roomID),
		domain.Query{OrderBy: fieldTimestamp, Direction: domain.Descending, Limit: 1},
		func(docs []domain.Document) {
			if len(docs) == 0 {
				onUpdate(nil)
				return
			}
			m := messageFromDocument(docs[0])
			onUpdate(&m)
		},
		c.subscriptionFailed(KindLatestMessage, roomID),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe latest message: %w", err)
	}
	return c.counted(sub, KindLatestMessage), nil
}

// History returns the transcript of a room, oldest first. limit <= 0 returns
// everything.
func (c *MessageChannel) History(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.Message, error) {
	q := domain.Query{OrderBy: fieldTimestamp, Direction: domain.Ascending}
	if limit > 0 {
		q.Direction = domain.Descending
		q.Limit = limit
	}
	docs, err := c.store.Query(ctx, domain.RoomMessagesPath(roomID), q)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	msgs := messagesFromDocuments(docs)
	if limit > 0 {
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}
	return msgs, nil
}

// Append writes a message stamped with the store's server time.
func (c *MessageChannel) Append(ctx context.Context, roomID domain.RoomID, authorName, body string) (domain.DocumentID, error) {
	if err := c.Validate(roomID, body); err != nil {
		return "", err
	}
	return c.write(ctx, roomID, messageFields(authorName, body, false))
}

// Post appends in the background. Failures are logged and counted, never
// retried.
func (c *MessageChannel) Post(roomID domain.RoomID, authorName, body string) {
	if err := c.Validate(roomID, body); err != nil {
		c.logger.Debugw("message rejected", "room_id", roomID, "error", err)
		return
	}

	c.pending.Add(1)
	go func() {
		defer c.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.appendTimeout)
		defer cancel()

		// write already logs and counts the failure
		_, _ = c.write(ctx, roomID, messageFields(authorName, body, false))
	}()
}

// AnnounceVideoEntry posts the system notice that identity joined the
// room's video call.
func (c *MessageChannel) AnnounceVideoEntry(ctx context.Context, roomID domain.RoomID, identity string) error {
	if roomID == "" {
		return domain.ErrInvalidArgument
	}
	body := fmt.Sprintf("%s connected to the video Room. You can join him by clicking the icon", identity)
	_, err := c.write(ctx, roomID, messageFields(identity, body, true))
	return err
}

// Wait blocks until every in-flight Post has finished.
func (c *MessageChannel) Wait() {
	c.pending.Wait()
}

// Validate reports why body would be rejected by Append or dropped by Post.
func (c *MessageChannel) Validate(roomID domain.RoomID, body string) error {
	if roomID == "" {
		return domain.ErrInvalidArgument
	}
	if strings.TrimSpace(body) == "" {
		return domain.ErrMessageEmpty
	}
	if err := validation.ValidateMessageBody(body, c.maxLength); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

func (c *MessageChannel) write(ctx context.Context, roomID domain.RoomID, fields domain.Fields) (domain.DocumentID, error) {
	path := domain.RoomMessagesPath(roomID)
	ctx, span := tracing.TraceStoreOperation(ctx, "add", string(path))
	defer span.End()

	id, err := c.store.Add(ctx, path, fields)
	if err != nil {
		tracing.RecordError(ctx, err)
		c.metrics.MessageAppendFailed()
		c.logger.Warnw("failed to append message",
			"room_id", roomID,
			"error", err,
		)
		return "", fmt.Errorf("append message: %w", err)
	}
	c.metrics.MessageAppended()
	return id, nil
}

func (c *MessageChannel) subscriptionFailed(kind string, roomID domain.RoomID) ports.ErrorHandler {
	return func(err error) {
		c.logger.Warnw("message subscription failed",
			"kind", kind,
			"room_id", roomID,
			"error", err,
		)
		c.metrics.SubscriptionFailed(kind)
	}
}

func (c *MessageChannel) counted(sub ports.Subscription, kind string) ports.Subscription {
	c.metrics.SubscriptionOpened(kind)
	return &countedSubscription{Subscription: sub, kind: kind, metrics: c.metrics}
}

type countedSubscription struct {
	ports.Subscription
	kind    string
	metrics ports.Metrics
	once    sync.Once
}

func (s *countedSubscription) Cancel() {
	s.once.Do(func() {
		s.Subscription.Cancel()
		s.metrics.SubscriptionClosed(s.kind)
	})
}
