package session

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/dmitrymomot/sessionguard/core/logger"
)

// Janitor periodically sweeps expired session records from the store.
type Janitor struct {
	manager  *Manager
	interval time.Duration
	log      *slog.Logger
}

// NewJanitor creates a janitor sweeping at the given interval.
// A nil logger discards output.
func NewJanitor(manager *Manager, interval time.Duration, log *slog.Logger) *Janitor {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{
		manager:  manager,
		interval: interval,
		log:      log,
	}
}

// Run sweeps until ctx is cancelled. Sweep failures are logged and the loop
// continues; a store outage must not kill the janitor.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := j.manager.CleanupExpired(ctx)
			if err != nil {
				j.log.ErrorContext(ctx, "session janitor sweep failed", logger.Error(err))
				continue
			}
			if n > 0 {
				j.log.InfoContext(ctx, "session janitor removed expired sessions",
					logger.Count("count", n))
			}
		}
	}
}
