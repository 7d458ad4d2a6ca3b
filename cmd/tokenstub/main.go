package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatgate/internal/tokenstub"
	"chatgate/pkg/config"
	"chatgate/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	path := os.Getenv("CHATGATE_CONFIG")
	if path == "" {
		path = "configs/config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.New("info", "json").Sugar().Fatalw("failed to load configuration", "error", err)
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	stub := tokenstub.New(tokenstub.Config{
		Secret:   cfg.TokenStub.Secret,
		Issuer:   cfg.TokenStub.Issuer,
		TokenTTL: cfg.TokenStub.TokenTTL,
	}, log)

	srv := &http.Server{
		Addr:              cfg.TokenStub.Address,
		Handler:           stub.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Infow("starting token stub", "address", cfg.TokenStub.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("token stub failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during token stub shutdown", "error", err)
	}
	log.Info("token stub stopped")
}
