package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatgate/internal/core/services"
	httphandlers "chatgate/internal/handlers/http"
	infrabackup "chatgate/internal/infrastructure/backup"
	"chatgate/internal/infrastructure/monitoring"
	"chatgate/internal/infrastructure/repositories"
	wsfeed "chatgate/internal/infrastructure/signal"
	"chatgate/internal/infrastructure/tokenclient"
	"chatgate/pkg/backup"
	"chatgate/pkg/config"
	"chatgate/pkg/logger"
	"chatgate/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func configPath() string {
	if p := os.Getenv("CHATGATE_CONFIG"); p != "" {
		return p
	}
	for _, p := range []string{"configs/config.yaml", "/etc/chatgate/config.yaml", "config.yaml"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return "configs/config.yaml"
}

func main() {
	cfg, err := config.Load(configPath())
	if err != nil {
		logger.New("info", "json").Sugar().Fatalw("failed to load configuration", "error", err)
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "chatgate",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialise tracing", "error", err)
	}

	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	store, startStore, err := repoFactory.CreateDocumentStore()
	if err != nil {
		log.Fatalw("failed to create document store", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if startStore != nil {
		go func() {
			if err := startStore(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Errorw("store relay stopped", "error", err)
			}
		}()
	}

	collector := monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)

	authService := services.NewAuthService(
		store,
		log.Named("auth"),
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
		cfg.Auth.BcryptCost,
		services.WithLoginLocker(repoFactory.CreateLocker()),
	)
	var roomOpts []services.RoomOption
	if cfg.Chat.RequireHeldRoles {
		roomOpts = append(roomOpts, services.RequireHeldRoles())
	}
	roomService := services.NewRoomService(store, collector, log.Named("rooms"), roomOpts...)
	messages := services.NewMessageChannel(store, collector, log.Named("messages"), cfg.Chat.AppendTimeout, cfg.Chat.MaxMessageLength)
	roomList := services.NewRoomList(
		services.NewDirectorySync(store, collector, log.Named("directory")),
		services.NewAccessGate(store, collector, log.Named("gate")),
		log.Named("room_list"),
	)

	tokens, err := tokenclient.New(tokenclient.Config{
		Endpoint:         cfg.Video.TokenEndpoint,
		Timeout:          cfg.Video.TokenTimeout,
		RetryAttempts:    cfg.Video.RetryAttempts,
		BreakerThreshold: cfg.Video.BreakerThreshold,
		BreakerTimeout:   cfg.Video.BreakerTimeout,
	}, collector, log.Named("tokens"))
	if err != nil {
		log.Fatalw("failed to create token client", "error", err)
	}
	videoService := services.NewVideoService(tokens, messages, log.Named("video"))

	wsServer := wsfeed.NewWebSocketServer(wsfeed.Services{
		Auth:     authService,
		Rooms:    roomService,
		RoomList: roomList,
		Messages: messages,
		Video:    videoService,
	}, wsfeed.ConfigFrom(cfg), collector, log.Named("feed"))

	health := monitoring.NewHealthChecker()
	health.AddCheck("store", store.HealthCheck, 30*time.Second, 2*time.Second)
	health.AddCheck("repositories", repoFactory.HealthCheck, 30*time.Second, 2*time.Second)
	health.StartBackgroundChecks(ctx)

	backupDone := make(chan struct{})
	if cfg.Backup.Enabled {
		storage, err := backup.NewFileStorage(cfg.Backup.Dir)
		if err != nil {
			log.Fatalw("failed to open backup directory", "error", err)
		}
		archives := backup.NewService(storage, infrabackup.ArchiveVersion)
		scheduler := infrabackup.NewScheduler(
			infrabackup.NewExporter(store, archives, log.Named("backup")),
			archives,
			infrabackup.Config{Interval: cfg.Backup.Interval, Retain: cfg.Backup.Retain},
			log.Named("backup"),
		)
		go func() {
			defer close(backupDone)
			scheduler.Run(ctx)
		}()
	} else {
		close(backupDone)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httphandlers.NewRouter(httphandlers.RouterDeps{
		Config:         cfg,
		Auth:           authService,
		Rooms:          roomService,
		Messages:       messages,
		Video:          videoService,
		Health:         health,
		WebSocket:      wsServer.HandleWebSocket,
		Metrics:        collector,
		MetricsHandler: promhttp.Handler(),
		Logger:         zapLogger,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting chatgate server",
			"address", cfg.Server.Address,
			"storage", repoFactory.Driver(),
			"tracing", tp.Enabled(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		log.Errorw("server failed", "error", err)
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// websocket connections are hijacked and not covered by srv.Shutdown
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error closing feed connections", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}

	messages.Wait()
	stop()
	<-backupDone

	if err := store.Close(); err != nil {
		log.Errorw("error closing document store", "error", err)
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("error closing repository factory", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error shutting down tracer provider", "error", err)
	}

	log.Info("chatgate server stopped")
}
