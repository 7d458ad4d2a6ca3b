package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/services"
	"chatgate/internal/infrastructure/repositories/memory"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type stubTokens struct {
	err error
}

func (s stubTokens) RequestToken(ctx context.Context, identity string) (domain.VideoToken, error) {
	if s.err != nil {
		return domain.VideoToken{}, s.err
	}
	return domain.VideoToken{Identity: identity, Value: "abc"}, nil
}

type feedFixture struct {
	server   *WebSocketServer
	http     *httptest.Server
	auth     services.AuthService
	rooms    *services.RoomService
	messages *services.MessageChannel
	token    string
	user     domain.UserIdentity
}

func newFeedFixture(t *testing.T, tokens stubTokens, cfg Config) *feedFixture {
	t.Helper()
	store := memory.NewMemoryDocumentStore()
	t.Cleanup(func() { _ = store.Close() })

	auth := services.NewAuthService(store, nil, "secret", time.Hour, time.Hour, bcrypt.MinCost)
	rooms := services.NewRoomService(store, nil, nil)
	messages := services.NewMessageChannel(store, nil, nil, time.Second, 200)
	roomList := services.NewRoomList(
		services.NewDirectorySync(store, nil, nil),
		services.NewAccessGate(store, nil, nil),
		nil,
	)

	server := NewWebSocketServer(Services{
		Auth:     auth,
		Rooms:    rooms,
		RoomList: roomList,
		Messages: messages,
		Video:    services.NewVideoService(tokens, messages, nil),
	}, cfg, nil, nil)

	record, err := auth.Register(context.Background(), "alice", "Alice", "secret1")
	require.NoError(t, err)
	pair, err := auth.IssueTokens(record.Identity())
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
		srv.Close()
		messages.Wait()
	})

	return &feedFixture{
		server:   server,
		http:     srv,
		auth:     auth,
		rooms:    rooms,
		messages: messages,
		token:    pair.AccessToken,
		user:     record.Identity(),
	}
}

func (f *feedFixture) url(token string) string {
	u := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func (f *feedFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.url(f.token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Type     string              `json:"type"`
	Rooms    []services.RoomView `json:"rooms"`
	RoomID   domain.RoomID       `json:"room_id"`
	Messages []domain.Message    `json:"messages"`
	State    struct {
		User       *domain.UserIdentity `json:"user"`
		Token      *domain.VideoToken   `json:"token"`
		RoomName   string               `json:"room_name"`
		VideoError string               `json:"video_error"`
	} `json:"state"`
	Message string `json:"message"`
}

// waitFor reads frames until match accepts one.
func waitFor(t *testing.T, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "no matching frame before deadline")
		var f frame
		require.NoError(t, json.Unmarshal(data, &f))
		if match(f) {
			return f
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func TestFeed_RejectsMissingToken(t *testing.T) {
	f := newFeedFixture(t, stubTokens{}, Config{})

	_, resp, err := websocket.DefaultDialer.Dial(f.url(""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(f.url("garbage"), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFeed_SessionAndRooms(t *testing.T) {
	f := newFeedFixture(t, stubTokens{}, Config{})
	ctx := context.Background()

	room, err := f.rooms.CreateRoom(ctx, f.user.ID, "general", []domain.RoleName{domain.DefaultRole})
	require.NoError(t, err)
	_, err = f.rooms.CreateRoom(ctx, "someone", "hidden", []domain.RoleName{domain.DefaultRole})
	require.NoError(t, err)

	conn := f.dial(t)

	session := waitFor(t, conn, func(fr frame) bool { return fr.Type == TypeSession })
	require.NotNil(t, session.State.User)
	assert.Equal(t, "Alice", session.State.User.DisplayName)

	rooms := waitFor(t, conn, func(fr frame) bool { return fr.Type == TypeRooms && len(fr.Rooms) == 2 })
	assert.ElementsMatch(t, []string{"general", "hidden"}, []string{rooms.Rooms[0].Room.Name, rooms.Rooms[1].Room.Name})

	send(t, conn, ClientMessage{Type: TypeSetFilter, Filter: "GEN"})
	filtered := waitFor(t, conn, func(fr frame) bool { return fr.Type == TypeRooms && len(fr.Rooms) == 1 })
	assert.Equal(t, room.ID, filtered.Rooms[0].Room.ID)
}

func TestFeed_OpenRoomAndChat(t *testing.T) {
	f := newFeedFixture(t, stubTokens{}, Config{})
	room, err := f.rooms.CreateRoom(context.Background(), f.user.ID, "general", []domain.RoleName{domain.DefaultRole})
	require.NoError(t, err)

	conn := f.dial(t)

	send(t, conn, ClientMessage{Type: TypeOpenRoom, RoomID: room.ID})
	waitFor(t, conn, func(fr frame) bool { return fr.Type == TypeMessages && fr.RoomID == room.ID })
	waitFor(t, conn, func(fr frame) bool { return fr.Type == TypeSession && fr.State.RoomName == "general" })

	send(t, conn, ClientMessage{Type: TypeSendMessage, Message: "hello"})
	got := waitFor(t, conn, func(fr frame) bool { return fr.Type == TypeMessages && len(fr.Messages) == 1 })
	assert.Equal(t, "hello", got.Messages[0].Body)
	assert.Equal(t, "Alice", got.Messages[0].AuthorName)

	send(t, conn, ClientMessage{Type: TypeSendMessage, Message: "   "})
	errFrame := waitFor(t, conn, func(fr frame) bool { return fr.Type == TypeError })
	assert.Contains(t, errFrame.Message, "empty")

	send(t, conn, ClientMessage{Type: TypeCloseRoom})
	waitFor(t, conn, func(fr frame) bool { return fr.Type == TypeSession && fr.State.RoomName == "" })
}

func TestFeed_OpenRoomDenied(t *testing.T) {
	f := newFeedFixture(t, stubTokens{}, Config{})
	ctx := context.Background()

	require.NoError(t, f.auth.AssignRole(ctx, f.user.ID, "devops"))
	room, err := f.rooms.CreateRoom(ctx, "admin", "ops-only", []domain.RoleName{domain.DefaultRole})
	require.NoError(t, err)

	conn := f.dial(t)

	send(t, conn, ClientMessage{Type: TypeOpenRoom, RoomID: room.ID})
	denied := waitFor(t, conn, func(fr frame) bool { return fr.Type == TypeError })
	assert.Contains(t, denied.Message, "role")

	send(t, conn, ClientMessage{Type: TypeOpenRoom, RoomID: "missing"})
	missing := waitFor(t, conn, func(fr frame) bool { return fr.Type == TypeError })
	assert.Equal(t, "room not found", missing.Message)

	send(t, conn, ClientMessage{Type: "dance"})
	unknown := waitFor(t, conn, func(fr frame) bool { return fr.Type == TypeError })
	assert.Contains(t, unknown.Message, "unknown message type")
}

func TestFeed_Video(t *testing.T) {
	f := newFeedFixture(t, stubTokens{}, Config{})
	room, err := f.rooms.CreateRoom(context.Background(), f.user.ID, "general", []domain.RoleName{domain.DefaultRole})
	require.NoError(t, err)

	conn := f.dial(t)
	send(t, conn, ClientMessage{Type: TypeOpenRoom, RoomID: room.ID})
	waitFor(t, conn, func(fr frame) bool { return fr.Type == TypeSession && fr.State.RoomName == "general" })

	send(t, conn, ClientMessage{Type: TypeStartVideo})
	withToken := waitFor(t, conn, func(fr frame) bool { return fr.Type == TypeSession && fr.State.Token != nil })
	assert.Equal(t, "abc", withToken.State.Token.Value)

	announce := waitFor(t, conn, func(fr frame) bool { return fr.Type == TypeMessages && len(fr.Messages) == 1 })
	assert.True(t, announce.Messages[0].System)
	assert.Contains(t, announce.Messages[0].Body, "Alice connected to the video Room")

	send(t, conn, ClientMessage{Type: TypeExitVideo})
	waitFor(t, conn, func(fr frame) bool { return fr.Type == TypeSession && fr.State.Token == nil })
}

func TestFeed_VideoFailure(t *testing.T) {
	f := newFeedFixture(t, stubTokens{err: domain.ErrTokenRequest}, Config{})
	conn := f.dial(t)

	send(t, conn, ClientMessage{Type: TypeStartVideo})
	failed := waitFor(t, conn, func(fr frame) bool { return fr.Type == TypeSession && fr.State.VideoError != "" })
	assert.Equal(t, "couldn't start video", failed.State.VideoError)

	errFrame := waitFor(t, conn, func(fr frame) bool { return fr.Type == TypeError })
	assert.Equal(t, "couldn't start video", errFrame.Message)
}

func TestFeed_RateLimit(t *testing.T) {
	f := newFeedFixture(t, stubTokens{}, Config{RateLimited: true, MessagesPerSecond: 0.001, Burst: 1})
	conn := f.dial(t)

	send(t, conn, ClientMessage{Type: TypeSetFilter, Filter: "a"})
	send(t, conn, ClientMessage{Type: TypeSetFilter, Filter: "b"})

	limited := waitFor(t, conn, func(fr frame) bool { return fr.Type == TypeError })
	assert.Equal(t, "rate limit exceeded", limited.Message)
}

func TestFeed_MaxConnections(t *testing.T) {
	f := newFeedFixture(t, stubTokens{}, Config{RateLimited: true, MaxConnections: 1, MessagesPerSecond: 100, Burst: 10})

	f.dial(t)
	require.Eventually(t, func() bool { return f.server.Connections() == 1 }, time.Second, 10*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(f.url(f.token), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestFeed_ShutdownClosesConnections(t *testing.T) {
	f := newFeedFixture(t, stubTokens{}, Config{})
	conn := f.dial(t)
	require.Eventually(t, func() bool { return f.server.Connections() == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, f.server.Shutdown(ctx))
	assert.Equal(t, 0, f.server.Connections())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	_, _, err := websocket.DefaultDialer.Dial(f.url(f.token), nil)
	assert.Error(t, err)
}

func TestFeed_ShutdownWaitsForPendingPosts(t *testing.T) {
	f := newFeedFixture(t, stubTokens{}, Config{})
	room, err := f.rooms.CreateRoom(context.Background(), f.user.ID, "general", []domain.RoleName{domain.DefaultRole})
	require.NoError(t, err)

	conn := f.dial(t)
	send(t, conn, ClientMessage{Type: TypeOpenRoom, RoomID: room.ID})
	waitFor(t, conn, func(fr frame) bool { return fr.Type == TypeSession && fr.State.RoomName == "general" })

	for i := 0; i < 20; i++ {
		send(t, conn, ClientMessage{Type: TypeSendMessage, Message: fmt.Sprintf("message %d", i)})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, f.server.Shutdown(ctx))

	// every post a handler accepted was registered before Shutdown returned
	f.messages.Wait()
	settled, err := f.messages.History(context.Background(), room.ID, 50)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(settled), 20)

	time.Sleep(50 * time.Millisecond)
	later, err := f.messages.History(context.Background(), room.ID, 50)
	require.NoError(t, err)
	assert.Len(t, later, len(settled))
}

func TestCheckOrigin(t *testing.T) {
	s := NewWebSocketServer(Services{}, Config{AllowedOrigins: []string{"https://chat.example.com"}}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, s.checkOrigin(req))

	req.Header.Set("Origin", "https://chat.example.com")
	assert.True(t, s.checkOrigin(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, s.checkOrigin(req))
}
