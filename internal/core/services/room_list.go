package services

import (
	"context"
	"fmt"
	"sync"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/session"

	"go.uber.org/zap"
)

// RoomView is a room the user may enter, with its newest message.
type RoomView struct {
	Room   domain.Room       `json:"room"`
	Roles  []domain.RoleName `json:"roles"`
	Latest *domain.Message   `json:"latest,omitempty"`
}

// RoomList combines the room directory with one access gate per room and the
// session search filter.
type RoomList struct {
	directory *DirectorySync
	gates     *AccessGate
	logger    *zap.SugaredLogger
}

func NewRoomList(directory *DirectorySync, gates *AccessGate, logger *zap.SugaredLogger) *RoomList {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RoomList{directory: directory, gates: gates, logger: logger}
}

// RoomListWatch is a running room list for one user.
type RoomListWatch struct {
	ctx      context.Context
	userID   domain.UserID
	gates    *AccessGate
	logger   *zap.SugaredLogger
	onUpdate func([]RoomView)

	emitMu sync.Mutex

	mu          sync.Mutex
	rooms       []domain.Room
	open        map[domain.RoomID]*Gate
	states      map[domain.RoomID]GateState
	filter      string
	closed      bool
	dir         *Directory
	unsubscribe func()
}

// Watch emits the visible rooms whenever the directory, a gate or the
// session filter changes.
func (l *RoomList) Watch(ctx context.Context, userID domain.UserID, store *session.Store, onUpdate func([]RoomView)) (*RoomListWatch, error) {
	if userID == "" || store == nil || onUpdate == nil {
		return nil, domain.ErrInvalidArgument
	}

	w := &RoomListWatch{
		ctx:      ctx,
		userID:   userID,
		gates:    l.gates,
		logger:   l.logger.With("user_id", userID),
		onUpdate: onUpdate,
		open:     make(map[domain.RoomID]*Gate),
		states:   make(map[domain.RoomID]GateState),
		filter:   store.State().SearchFilter,
	}

	w.unsubscribe = store.Subscribe(func(s session.State) {
		w.mu.Lock()
		changed := w.filter != s.SearchFilter
		w.filter = s.SearchFilter
		w.mu.Unlock()
		if changed {
			w.emit()
		}
	})

	dir, err := l.directory.Start(ctx, w.onRooms)
	if err != nil {
		w.unsubscribe()
		return nil, fmt.Errorf("start room directory: %w", err)
	}

	w.mu.Lock()
	w.dir = dir
	closed := w.closed
	w.mu.Unlock()
	if closed {
		dir.Stop()
	}
	return w, nil
}

func (w *RoomListWatch) onRooms(rooms []domain.Room) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.rooms = rooms
	var toOpen []domain.RoomID
	for _, r := range rooms {
		if _, ok := w.open[r.ID]; !ok {
			toOpen = append(toOpen, r.ID)
			w.open[r.ID] = nil
		}
	}
	w.mu.Unlock()

	for _, id := range toOpen {
		w.openGate(id)
	}
	w.emit()
}

func (w *RoomListWatch) openGate(id domain.RoomID) {
	gate, err := w.gates.Open(w.ctx, id, w.userID, func(s GateState) {
		w.mu.Lock()
		w.states[s.RoomID] = s
		w.mu.Unlock()
		w.emit()
	})
	if err != nil {
		w.logger.Warnw("failed to open room gate", "room_id", id, "error", err)
		w.mu.Lock()
		delete(w.open, id)
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		gate.Close()
		return
	}
	w.open[id] = gate
	w.mu.Unlock()
}

// Visible returns the rooms currently visible to the user.
func (w *RoomListWatch) Visible() []RoomView {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visibleLocked()
}

func (w *RoomListWatch) visibleLocked() []RoomView {
	views := make([]RoomView, 0, len(w.rooms))
	for _, r := range w.rooms {
		s, ok := w.states[r.ID]
		if !ok || !s.Access || !FindPart(w.filter, r.Name) {
			continue
		}
		r.Roles = s.RoomRoles.Clone()
		views = append(views, RoomView{Room: r, Roles: r.RoleList(), Latest: s.Latest})
	}
	return views
}

func (w *RoomListWatch) emit() {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	views := w.visibleLocked()
	w.mu.Unlock()

	w.onUpdate(views)
}

// Close stops the directory and every gate. It is safe to call more than
// once.
func (w *RoomListWatch) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	dir := w.dir
	gates := make([]*Gate, 0, len(w.open))
	for _, g := range w.open {
		if g != nil {
			gates = append(gates, g)
		}
	}
	w.open = nil
	w.mu.Unlock()

	w.unsubscribe()
	if dir != nil {
		dir.Stop()
	}
	for _, g := range gates {
		g.Close()
	}

	w.emitMu.Lock()
	w.emitMu.Unlock()
}
