package http

import (
	"context"
	"net/http"
	"time"

	"chatgate/internal/core/services"
	"chatgate/internal/infrastructure/middleware"
	"chatgate/internal/infrastructure/monitoring"
	"chatgate/pkg/config"
	"chatgate/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterDeps is everything NewRouter mounts. WebSocket, Metrics and
// MetricsHandler are optional.
type RouterDeps struct {
	Config   *config.Config
	Auth     services.AuthService
	Rooms    *services.RoomService
	Messages *services.MessageChannel
	Video    *services.VideoService
	Health   *monitoring.HealthChecker

	WebSocket      http.HandlerFunc
	Metrics        *monitoring.PrometheusCollector
	MetricsHandler http.Handler

	Logger *zap.Logger
}

// NewRouter builds the gin engine serving /api/v1, /ws and the operational
// endpoints.
func NewRouter(deps RouterDeps) *gin.Engine {
	zl := deps.Logger
	if zl == nil {
		zl = zap.NewNop()
	}
	log := zl.Sugar()
	startTime := time.Now()

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.RequestLogMiddleware(logger.NewContextLogger(zl)))
	if deps.Metrics != nil {
		router.Use(deps.Metrics.HTTPMiddleware())
	}
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.CORSMiddleware(deps.Config.Auth.AllowedOrigins))
	router.Use(middleware.NewHTTPRateLimitMiddleware(deps.Config))

	rooms := NewRoomHandler(deps.Rooms)
	messages := NewMessageHandler(deps.Messages)
	video := NewVideoHandler(deps.Video)
	admin := NewAdminHandler(deps.Auth)

	api := router.Group("/api/v1")
	NewAuthHandler(deps.Auth).SetupRoutes(api)

	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware(deps.Auth))
	{
		authed.GET("/rooms", rooms.ListRooms)
		authed.POST("/rooms", rooms.CreateRoom)

		room := authed.Group("/rooms/:id")
		room.Use(middleware.RoomAccessMiddleware(deps.Rooms))
		room.GET("", rooms.GetRoom)
		room.GET("/messages", messages.ListMessages)
		room.POST("/messages", messages.PostMessage)
		room.POST("/video", video.StartVideo)
	}

	adminGroup := api.Group("/admin")
	adminGroup.Use(middleware.AdminTokenMiddleware(deps.Config.Auth.AdminToken))
	adminGroup.POST("/users/:id/roles", admin.AssignRole)

	if deps.WebSocket != nil {
		router.GET("/ws", gin.WrapF(deps.WebSocket))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    monitoring.StatusHealthy,
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		if deps.Health == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		status := deps.Health.CheckAll(ctx)
		code := http.StatusOK
		if status.Status != monitoring.StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	if deps.Config.Monitoring.PrometheusEnabled && deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	return router
}
