package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/ports"
	"chatgate/pkg/tracing"
	"chatgate/pkg/validation"

	"go.uber.org/zap"
)

// RoomService answers one-shot room questions and creates rooms.
type RoomService struct {
	store       ports.DocumentStore
	metrics     ports.Metrics
	logger      *zap.SugaredLogger
	requireHeld bool
}

type RoomOption func(*RoomService)

// RequireHeldRoles makes CreateRoom refuse roles the creator does not hold,
// so nobody can create a room they cannot enter.
func RequireHeldRoles() RoomOption {
	return func(s *RoomService) {
		s.requireHeld = true
	}
}

func NewRoomService(store ports.DocumentStore, metrics ports.Metrics, logger *zap.SugaredLogger, opts ...RoomOption) *RoomService {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &RoomService{store: store, metrics: metrics, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRoom writes the room and then one role record per role. Any signed-in
// user may tag a room with any role unless RequireHeldRoles is set.
func (s *RoomService) CreateRoom(ctx context.Context, creator domain.UserID, name string, roles []domain.RoleName) (*domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrRoomNameRequired
	}
	if err := validation.ValidateRoomName(name); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	set := domain.NewRoleSet()
	for _, r := range roles {
		if err := validation.ValidateRoleName(string(r)); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		}
		set.Add(r)
	}
	if set.Len() == 0 {
		return nil, domain.ErrRolesRequired
	}

	if s.requireHeld {
		held, err := s.UserRoles(ctx, creator)
		if err != nil {
			return nil, err
		}
		for _, r := range set.Sorted() {
			if !held.Contains(r) {
				return nil, fmt.Errorf("%w: %q", domain.ErrRoleNotHeld, r)
			}
		}
	}

	ctx, span := tracing.TraceStoreOperation(ctx, "create_room", string(domain.RoomsCollection))
	defer span.End()

	id, err := s.store.Add(ctx, domain.RoomsCollection, domain.Fields{
		fieldName:      name,
		fieldCreatedAt: domain.ServerTimestamp,
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("create room: %w", err)
	}
	roomID := domain.RoomID(id)

	for _, r := range set.Sorted() {
		if _, err := s.store.Add(ctx, domain.RoomRolesPath(roomID), roleFields(r)); err != nil {
			tracing.RecordError(ctx, err)
			s.logger.Errorw("room created without all roles",
				"room_id", roomID,
				"role", r,
				"error", err,
			)
			return nil, fmt.Errorf("tag room with role %q: %w", r, err)
		}
	}

	s.metrics.RoomCreated()
	s.logger.Infow("room created",
		"room_id", roomID,
		"name", name,
		"creator", creator,
		"roles", set.Sorted(),
	)

	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return room, nil
}

// GetRoom loads a room with its roles.
func (s *RoomService) GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	doc, err := s.store.Get(ctx, domain.RoomPath(id))
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}

	room := roomFromDocument(*doc)
	room.Roles, err = s.RoomRoles(ctx, id)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// WatchRoom delivers the room document, without roles, on every change, or
// nil once it no longer exists.
func (s *RoomService) WatchRoom(ctx context.Context, id domain.RoomID, onUpdate func(*domain.Room)) (ports.Subscription, error) {
	if id == "" || onUpdate == nil {
		return nil, domain.ErrInvalidArgument
	}
	sub, err := s.store.SubscribeDocument(ctx, domain.RoomPath(id),
		func(doc *domain.Document) {
			if doc == nil {
				onUpdate(nil)
				return
			}
			room := roomFromDocument(*doc)
			onUpdate(&room)
		},
		func(err error) {
			s.logger.Warnw("room subscription failed", "room_id", id, "error", err)
			s.metrics.SubscriptionFailed(KindRoom)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe room: %w", err)
	}
	s.metrics.SubscriptionOpened(KindRoom)
	return &countedSubscription{Subscription: sub, kind: KindRoom, metrics: s.metrics}, nil
}

// UserRoles returns the user's roles with the default-role fallback applied.
func (s *RoomService) UserRoles(ctx context.Context, id domain.UserID) (domain.RoleSet, error) {
	docs, err := s.store.Query(ctx, domain.UserRolesPath(id), roleQuery)
	if err != nil {
		return nil, fmt.Errorf("query user roles: %w", err)
	}
	return domain.EffectiveUserRoles(roleSetFromDocuments(docs)), nil
}

func (s *RoomService) RoomRoles(ctx context.Context, id domain.RoomID) (domain.RoleSet, error) {
	docs, err := s.store.Query(ctx, domain.RoomRolesPath(id), roleQuery)
	if err != nil {
		return nil, fmt.Errorf("query room roles: %w", err)
	}
	return roleSetFromDocuments(docs), nil
}

// CanAccess reports whether the user shares a role with the room.
func (s *RoomService) CanAccess(ctx context.Context, userID domain.UserID, roomID domain.RoomID) (bool, error) {
	if _, err := s.store.Get(ctx, domain.RoomPath(roomID)); err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return false, domain.ErrRoomNotFound
		}
		return false, fmt.Errorf("get room: %w", err)
	}

	user, err := s.UserRoles(ctx, userID)
	if err != nil {
		return false, err
	}
	room, err := s.RoomRoles(ctx, roomID)
	if err != nil {
		return false, err
	}

	granted := HasSharedRole(user, room)
	s.metrics.AccessEvaluated(granted)
	return granted, nil
}

// ListVisible evaluates every room once and returns those the user may
// enter whose name passes filter.
func (s *RoomService) ListVisible(ctx context.Context, userID domain.UserID, filter string) ([]RoomView, error) {
	user, err := s.UserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}

	docs, err := s.store.Query(ctx, domain.RoomsCollection, domain.Query{})
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}

	views := make([]RoomView, 0, len(docs))
	for _, doc := range docs {
		room := roomFromDocument(doc)
		if !FindPart(filter, room.Name) {
			continue
		}
		room.Roles, err = s.RoomRoles(ctx, room.ID)
		if err != nil {
			return nil, err
		}
		if !HasSharedRole(user, room.Roles) {
			continue
		}

		latest, err := s.store.Query(ctx, domain.RoomMessagesPath(room.ID),
			domain.Query{OrderBy: fieldTimestamp, Direction: domain.Descending, Limit: 1})
		if err != nil {
			return nil, fmt.Errorf("query latest message: %w", err)
		}
		view := RoomView{Room: room, Roles: room.RoleList()}
		if len(latest) > 0 {
			m := messageFromDocument(latest[0])
			view.Latest = &m
		}
		views = append(views, view)
	}
	return views, nil
}

// ListRooms returns every room with its roles, without access checks.
func (s *RoomService) ListRooms(ctx context.Context) ([]domain.Room, error) {
	docs, err := s.store.Query(ctx, domain.RoomsCollection, domain.Query{})
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	rooms := make([]domain.Room, 0, len(docs))
	for _, doc := range docs {
		room := roomFromDocument(doc)
		if room.Roles, err = s.RoomRoles(ctx, room.ID); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// RequireAccess returns domain.ErrAccessDenied unless the user may enter the
// room.
func (s *RoomService) RequireAccess(ctx context.Context, userID domain.UserID, roomID domain.RoomID) error {
	ok, err := s.CanAccess(ctx, userID, roomID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrAccessDenied
	}
	return nil
}
