package signal

import (
	"context"
	"sync"
	"time"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/ports"
	"chatgate/internal/core/services"
	"chatgate/internal/core/session"
	"chatgate/pkg/tracing"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const sendBuffer = 32

// client is one feed connection. Only writePump writes to conn.
type client struct {
	server  *WebSocketServer
	conn    *websocket.Conn
	user    domain.UserIdentity
	session *session.Store
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	send      chan interface{}
	done      chan struct{}
	closeOnce sync.Once
	writerWG  sync.WaitGroup

	mu          sync.Mutex
	roomID      domain.RoomID
	messagesSub ports.Subscription
	roomSub     ports.Subscription
}

func newClient(s *WebSocketServer, conn *websocket.Conn, user domain.UserIdentity) *client {
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		server:  s,
		conn:    conn,
		user:    user,
		session: session.NewStore(),
		limiter: s.newLimiter(),
		ctx:     ctx,
		cancel:  cancel,
		send:    make(chan interface{}, sendBuffer),
		done:    make(chan struct{}),
	}
}

func (c *client) run() {
	c.writerWG.Add(1)
	go c.writePump()

	c.session.Dispatch(session.SetUser(c.user))
	unsubscribe := c.session.Subscribe(func(state session.State) {
		c.enqueue(sessionMessage(state))
	})
	c.enqueue(sessionMessage(c.session.State()))

	var watch *services.RoomListWatch
	if c.server.svc.RoomList != nil {
		var err error
		watch, err = c.server.svc.RoomList.Watch(c.ctx, c.user.ID, c.session, func(views []services.RoomView) {
			c.enqueue(roomsMessage(views))
		})
		if err != nil {
			c.server.logger.Warnw("room list unavailable", "user_id", c.user.ID, "error", err)
			c.enqueue(errorMessage(clientErrorText(err)))
		}
	}

	c.readLoop()

	c.shutdown()
	c.cancel()
	if watch != nil {
		watch.Close()
	}
	c.closeRoomSubscription()
	unsubscribe()
	c.session.Dispatch(session.SignOut())
	c.writerWG.Wait()
}

// shutdown stops the writer, which closes the socket and so ends readLoop.
func (c *client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// enqueue never blocks; a client that cannot keep up is disconnected.
func (c *client) enqueue(msg interface{}) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- msg:
	default:
		c.server.logger.Warnw("feed client too slow, disconnecting", "user_id", c.user.ID)
		c.shutdown()
	}
}

func (c *client) writePump() {
	defer c.writerWG.Done()
	ticker := time.NewTicker(c.server.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.Debugw("feed write failed", "user_id", c.user.ID, "error", err)
				c.shutdown()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		}
	}
}

func (c *client) readLoop() {
	pongWait := c.server.cfg.PongTimeout
	c.conn.SetReadLimit(c.server.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Debugw("feed read failed", "user_id", c.user.ID, "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if !c.limiter.Allow() {
			c.enqueue(errorMessage("rate limit exceeded"))
			continue
		}

		msg, err := decodeClientMessage(data)
		if err != nil || msg.Type == "" {
			c.enqueue(errorMessage("invalid message"))
			continue
		}
		c.handle(msg)
	}
}

func (c *client) handle(msg ClientMessage) {
	ctx, span := tracing.TraceWebSocketMessage(c.ctx, msg.Type, string(c.user.ID))
	defer span.End()

	var err error
	switch msg.Type {
	case TypeSetFilter:
		c.session.Dispatch(session.SetSearchFilter(msg.Filter))
	case TypeOpenRoom:
		err = c.openRoom(ctx, msg.RoomID)
	case TypeCloseRoom:
		c.closeRoomSubscription()
		c.session.Dispatch(session.SetRoomName(""))
	case TypeSendMessage:
		err = c.sendMessage(ctx, c.targetRoom(msg.RoomID), msg.Message)
	case TypeStartVideo:
		err = c.startVideo(ctx, c.targetRoom(msg.RoomID))
	case TypeExitVideo:
		c.server.svc.Video.Exit(c.session, nil)
	default:
		c.enqueue(errorMessage("unknown message type " + msg.Type))
		return
	}

	if err != nil {
		tracing.RecordError(ctx, err)
		c.enqueue(errorMessage(clientErrorText(err)))
	}
}

func (c *client) targetRoom(requested domain.RoomID) domain.RoomID {
	if requested != "" {
		return requested
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *client) openRoom(ctx context.Context, roomID domain.RoomID) error {
	if roomID == "" {
		return domain.ErrInvalidArgument
	}
	if err := c.server.svc.Rooms.RequireAccess(ctx, c.user.ID, roomID); err != nil {
		return err
	}
	room, err := c.server.svc.Rooms.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}

	c.closeRoomSubscription()
	sub, err := c.server.svc.Messages.Subscribe(c.ctx, roomID, func(msgs []domain.Message) {
		c.enqueue(messagesMessage(roomID, msgs))
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.roomID = roomID
	c.messagesSub = sub
	c.mu.Unlock()
	c.session.Dispatch(session.SetRoomName(room.Name))

	roomSub, err := c.server.svc.Rooms.WatchRoom(c.ctx, roomID, func(r *domain.Room) {
		name := ""
		if r != nil {
			name = r.Name
		}
		c.mu.Lock()
		current := c.roomID == roomID
		c.mu.Unlock()
		if current {
			c.session.Dispatch(session.SetRoomName(name))
		}
	})
	if err != nil {
		c.closeRoomSubscription()
		return err
	}

	c.mu.Lock()
	c.roomSub = roomSub
	c.mu.Unlock()
	return nil
}

func (c *client) closeRoomSubscription() {
	c.mu.Lock()
	subs := []ports.Subscription{c.messagesSub, c.roomSub}
	c.messagesSub = nil
	c.roomSub = nil
	c.roomID = ""
	c.mu.Unlock()

	for _, sub := range subs {
		if sub != nil {
			sub.Cancel()
		}
	}
}

func (c *client) sendMessage(ctx context.Context, roomID domain.RoomID, body string) error {
	if roomID == "" {
		return domain.ErrInvalidArgument
	}
	if err := c.server.svc.Messages.Validate(roomID, body); err != nil {
		return err
	}
	if err := c.server.svc.Rooms.RequireAccess(ctx, c.user.ID, roomID); err != nil {
		return err
	}
	c.server.svc.Messages.Post(roomID, c.user.DisplayName, body)
	return nil
}

func (c *client) startVideo(ctx context.Context, roomID domain.RoomID) error {
	if roomID != "" {
		if err := c.server.svc.Rooms.RequireAccess(ctx, c.user.ID, roomID); err != nil {
			return err
		}
	}
	_, err := c.server.svc.Video.Start(ctx, c.session, roomID)
	return err
}
