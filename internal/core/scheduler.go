package core

// scheduler.go keeps the Index in step with writers that bypass the service,
// such as seed scripts writing straight into the database.

import (
	"context"
	"log/slog"
	"time"
)

// StartReloadScheduler reloads the Index every interval until ctx is done.
// The first reload happens one interval after start, since startup already
// loaded the Index. A failed reload is logged and the Index keeps serving its
// previous content.
func (s *Service) StartReloadScheduler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	slog.Info("reload scheduler started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reload scheduler stopped")
			return
		case <-ticker.C:
			s.runReloadJob(ctx)
		}
	}
}

func (s *Service) runReloadJob(ctx context.Context) {
	start := time.Now()
	stats, err := s.Reload(ctx)
	if err != nil {
		// Reload already logged the failure.
		return
	}
	slog.Debug("scheduled reload completed",
		"names", stats.Names,
		"codes", stats.Codes,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
