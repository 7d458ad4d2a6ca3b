package backup

import (
	"context"
	"time"

	"chatgate/pkg/backup"

	"go.uber.org/zap"
)

// Scheduler takes a backup every interval and keeps the newest retain
// archives.
type Scheduler struct {
	exporter *Exporter
	archives *backup.Service
	interval time.Duration
	retain   int
	logger   *zap.SugaredLogger
}

type Config struct {
	Interval time.Duration
	Retain   int
}

func NewScheduler(exporter *Exporter, archives *backup.Service, cfg Config, logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		exporter: exporter,
		archives: archives,
		interval: cfg.Interval,
		retain:   cfg.Retain,
		logger:   logger,
	}
}

// Run backs up once immediately and then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runBackup(ctx)
	for {
		select {
		case <-ticker.C:
			s.runBackup(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runBackup(ctx context.Context) {
	if _, _, err := s.exporter.Backup(ctx); err != nil {
		if ctx.Err() == nil {
			s.logger.Errorw("scheduled backup failed", "error", err)
		}
		return
	}

	deleted, err := s.archives.Prune(ctx, s.retain)
	if err != nil {
		s.logger.Warnw("failed to prune old backups", "error", err)
		return
	}
	for _, name := range deleted {
		s.logger.Infow("deleted old backup", "backup_name", name)
	}
}
