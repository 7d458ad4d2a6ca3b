package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/services"
	"chatgate/internal/core/session"
	"chatgate/internal/infrastructure/middleware"
	"chatgate/pkg/config"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Config struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	RateLimited       bool
	MessagesPerSecond float64
	Burst             int
	MaxConnections    int
	MaxMessageSize    int64
	AllowedOrigins    []string
}

func ConfigFrom(cfg *config.Config) Config {
	ws := cfg.RateLimiting.WebSocket
	return Config{
		PingInterval:      cfg.Signal.PingInterval,
		PongTimeout:       cfg.Signal.PongTimeout,
		WriteTimeout:      cfg.Signal.WriteTimeout,
		RateLimited:       cfg.RateLimiting.Enabled,
		MessagesPerSecond: ws.MessagesPerSecond,
		Burst:             ws.Burst,
		MaxConnections:    ws.MaxConcurrent,
		MaxMessageSize:    ws.MaxMessageSizeBytes,
		AllowedOrigins:    cfg.Auth.AllowedOrigins,
	}
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongTimeout <= c.PingInterval {
		c.PongTimeout = 2 * c.PingInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 << 10
	}
	return c
}

// ConnectionMetrics is implemented by the Prometheus collector.
type ConnectionMetrics interface {
	WebSocketConnected()
	WebSocketDisconnected()
}

// Services are the chat operations a feed connection drives.
type Services struct {
	Auth     services.AuthService
	Rooms    *services.RoomService
	RoomList *services.RoomList
	Messages *services.MessageChannel
	Video    *services.VideoService
}

// WebSocketServer serves /ws. Every connection gets its own session store,
// room list and message subscription.
type WebSocketServer struct {
	svc      Services
	cfg      Config
	upgrader websocket.Upgrader
	metrics  ConnectionMetrics
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	clients map[*client]struct{}
	pending int
	closed  bool

	// running counts handlers from reserve until their client has stopped.
	running sync.WaitGroup
}

func NewWebSocketServer(svc Services, cfg Config, metrics ConnectionMetrics, logger *zap.SugaredLogger) *WebSocketServer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	cfg = cfg.withDefaults()
	s := &WebSocketServer{
		svc:     svc,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// HandleWebSocket authenticates the token query parameter (or bearer
// header), upgrades and runs the connection until either side closes.
func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if !s.reserve() {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	defer s.running.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.release(nil)
		s.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(s, conn, user)
	s.track(c)
	if s.metrics != nil {
		s.metrics.WebSocketConnected()
	}
	s.logger.Infow("feed connected", "user_id", user.ID)

	c.run()

	s.release(c)
	if s.metrics != nil {
		s.metrics.WebSocketDisconnected()
	}
	s.logger.Infow("feed disconnected", "user_id", user.ID)
}

func (s *WebSocketServer) authenticate(r *http.Request) (domain.UserIdentity, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if token == "" {
		return domain.UserIdentity{}, services.ErrInvalidToken
	}

	claims, err := s.svc.Auth.ValidateToken(token)
	if err != nil {
		return domain.UserIdentity{}, err
	}

	user, err := s.svc.Auth.Identity(r.Context(), claims.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.UserIdentity{ID: claims.UserID, DisplayName: claims.Username}, nil
	}
	return user, err
}

// reserve counts an upgrade in progress against MaxConnections.
func (s *WebSocketServer) reserve() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.cfg.RateLimited && s.cfg.MaxConnections > 0 && len(s.clients)+s.pending >= s.cfg.MaxConnections {
		return false
	}
	s.pending++
	s.running.Add(1)
	return true
}

func (s *WebSocketServer) track(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending--
	s.clients[c] = struct{}{}
}

func (s *WebSocketServer) release(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c == nil {
		s.pending--
		return
	}
	delete(s.clients, c)
}

func (s *WebSocketServer) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Shutdown closes every connection, refuses new ones and waits until every
// connection handler has returned or ctx is done. Once it returns nil no
// handler can post another message.
func (s *WebSocketServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.shutdown()
	}

	stopped := make(chan struct{})
	go func() {
		s.running.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for feed connections: %w", ctx.Err())
	}
}

func (s *WebSocketServer) newLimiter() *rate.Limiter {
	if !s.cfg.RateLimited || s.cfg.MessagesPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := s.cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), burst)
}

func clientErrorText(err error) string {
	if errors.Is(err, domain.ErrTokenRequest) {
		return session.VideoStartFailed
	}
	return middleware.ToAppError(err).Message
}
