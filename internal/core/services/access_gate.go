package services

import (
	"context"
	"fmt"
	"sync"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/ports"

	"go.uber.org/zap"
)

// Subscription kinds reported to metrics.
const (
	KindUserRoles     = "user_roles"
	KindRoomRoles     = "room_roles"
	KindLatestMessage = "latest_message"
	KindRooms         = "rooms"
	KindMessages      = "messages"
	KindRoom          = "room"
)

// GateState is a point-in-time copy of a gate's view of one room.
type GateState struct {
	RoomID    domain.RoomID
	Access    bool
	UserRoles domain.RoleSet
	RoomRoles domain.RoleSet
	Latest    *domain.Message
	Err       error
}

// AccessGate opens gates that decide whether a user may see a room.
type AccessGate struct {
	store   ports.DocumentStore
	metrics ports.Metrics
	logger  *zap.SugaredLogger
}

func NewAccessGate(store ports.DocumentStore, metrics ports.Metrics, logger *zap.SugaredLogger) *AccessGate {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &AccessGate{store: store, metrics: metrics, logger: logger}
}

// Gate watches the user's roles, the room's roles and the room's latest
// message. Access is recomputed from the last known value of both role sets
// on every role snapshot and stays false until both have arrived. A failed
// role subscription denies access for the rest of the gate's life.
//
// onChange is called with serialized, ordered states and never after Close
// returns. It must not call Close itself.
type Gate struct {
	roomID   domain.RoomID
	userID   domain.UserID
	onChange func(GateState)
	metrics  ports.Metrics
	logger   *zap.SugaredLogger

	emitMu sync.Mutex

	mu        sync.Mutex
	userRoles domain.RoleSet
	roomRoles domain.RoleSet
	haveUser  bool
	haveRoom  bool
	latest    *domain.Message
	access    bool
	err       error
	closed    bool
	subs      []ports.Subscription
	kinds     []string
}

func (a *AccessGate) Open(ctx context.Context, roomID domain.RoomID, userID domain.UserID, onChange func(GateState)) (*Gate, error) {
	if roomID == "" || userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if onChange == nil {
		onChange = func(GateState) {}
	}

	g := &Gate{
		roomID:   roomID,
		userID:   userID,
		onChange: onChange,
		metrics:  a.metrics,
		logger:   a.logger.With("room_id", roomID, "user_id", userID),
	}

	userSub, err := a.store.SubscribeCollection(ctx, domain.UserRolesPath(userID), roleQuery,
		g.onUserRoles, g.onRolesError(KindUserRoles))
	if err != nil {
		return nil, fmt.Errorf("subscribe user roles: %w", err)
	}
	g.track(userSub, KindUserRoles)

	roomSub, err := a.store.SubscribeCollection(ctx, domain.RoomRolesPath(roomID), roleQuery,
		g.onRoomRoles, g.onRolesError(KindRoomRoles))
	if err != nil {
		g.Close()
		return nil, fmt.Errorf("subscribe room roles: %w", err)
	}
	g.track(roomSub, KindRoomRoles)

	latestSub, err := a.store.SubscribeCollection(ctx, domain.RoomMessagesPath(roomID),
		domain.Query{OrderBy: fieldTimestamp, Direction: domain.Descending, Limit: 1},
		g.onLatest, g.onLatestError)
	if err != nil {
		g.Close()
		return nil, fmt.Errorf("subscribe latest message: %w", err)
	}
	g.track(latestSub, KindLatestMessage)

	return g, nil
}

func (g *Gate) track(sub ports.Subscription, kind string) {
	g.mu.Lock()
	g.subs = append(g.subs, sub)
	g.kinds = append(g.kinds, kind)
	g.mu.Unlock()
	g.metrics.SubscriptionOpened(kind)
}

// update applies fn to the gate state and emits the result.
func (g *Gate) update(fn func()) {
	g.emitMu.Lock()
	defer g.emitMu.Unlock()

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	fn()
	state := g.stateLocked()
	g.mu.Unlock()

	g.onChange(state)
}

func (g *Gate) onUserRoles(docs []domain.Document) {
	g.update(func() {
		g.userRoles = domain.EffectiveUserRoles(roleSetFromDocuments(docs))
		g.haveUser = true
		g.evaluateLocked()
	})
}

func (g *Gate) onRoomRoles(docs []domain.Document) {
	g.update(func() {
		g.roomRoles = roleSetFromDocuments(docs)
		g.haveRoom = true
		g.evaluateLocked()
	})
}

func (g *Gate) evaluateLocked() {
	if g.err != nil || !g.haveUser || !g.haveRoom {
		g.access = false
		return
	}
	g.access = HasSharedRole(g.userRoles, g.roomRoles)
	g.metrics.AccessEvaluated(g.access)
}

func (g *Gate) onRolesError(kind string) ports.ErrorHandler {
	return func(err error) {
		g.logger.Warnw("role subscription failed, denying access",
			"kind", kind,
			"error", err,
		)
		g.metrics.SubscriptionFailed(kind)
		g.update(func() {
			if g.err == nil {
				g.err = fmt.Errorf("%s: %w", kind, err)
			}
			g.access = false
		})
	}
}

func (g *Gate) onLatest(docs []domain.Document) {
	g.update(func() {
		if len(docs) == 0 {
			g.latest = nil
			return
		}
		m := messageFromDocument(docs[0])
		g.latest = &m
	})
}

func (g *Gate) onLatestError(err error) {
	g.logger.Warnw("latest message subscription failed", "error", err)
	g.metrics.SubscriptionFailed(KindLatestMessage)
}

func (g *Gate) stateLocked() GateState {
	s := GateState{
		RoomID: g.roomID,
		Access: g.access,
		Err:    g.err,
	}
	if g.haveUser {
		s.UserRoles = g.userRoles.Clone()
	}
	if g.haveRoom {
		s.RoomRoles = g.roomRoles.Clone()
	}
	if g.latest != nil {
		m := *g.latest
		s.Latest = &m
	}
	return s
}

func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stateLocked()
}

func (g *Gate) RoomID() domain.RoomID {
	return g.roomID
}

// Close cancels all subscriptions. It is safe to call more than once.
func (g *Gate) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	subs, kinds := g.subs, g.kinds
	g.subs, g.kinds = nil, nil
	g.mu.Unlock()

	for i, sub := range subs {
		sub.Cancel()
		g.metrics.SubscriptionClosed(kinds[i])
	}

	// wait for an in-flight onChange
	g.emitMu.Lock()
	g.emitMu.Unlock()
}
