package application

// retention.go purges old run summaries from the history table.
//
// The job runs once at startup and then every CheckInterval until its
// context is cancelled. A failed purge is logged and retried on the next
// tick; it never stops the server.

import (
	"context"
	"log/slog"
	"time"
)

// RunPurger deletes run summaries that finished before cutoff.
type RunPurger interface {
	PurgeRuns(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionConfig holds configuration for the retention job.
type RetentionConfig struct {
	Retention     time.Duration // How long summaries are kept (default: 90 days)
	CheckInterval time.Duration // How often to run (default: 24h)
}

func (c RetentionConfig) withDefaults() RetentionConfig {
	if c.Retention <= 0 {
		c.Retention = 90 * 24 * time.Hour
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 24 * time.Hour
	}
	return c
}

// StartRetention runs the purge job until ctx is cancelled.
func StartRetention(ctx context.Context, p RunPurger, cfg RetentionConfig) {
	cfg = cfg.withDefaults()
	slog.Info("run retention started",
		"retention", cfg.Retention,
		"check_interval", cfg.CheckInterval,
	)

	purgeRuns(ctx, p, cfg.Retention, time.Now)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("run retention stopped")
			return
		case <-ticker.C:
			purgeRuns(ctx, p, cfg.Retention, time.Now)
		}
	}
}

// purgeRuns performs one purge cycle and returns the number of removed runs.
func purgeRuns(ctx context.Context, p RunPurger, retention time.Duration, now func() time.Time) int64 {
	start := time.Now()
	cutoff := now().Add(-retention)

	purged, err := p.PurgeRuns(ctx, cutoff)
	if err != nil {
		slog.Error("run purge failed", "error", err)
		return 0
	}

	slog.Info("purged old runs",
		"runs_purged", purged,
		"cutoff", cutoff,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return purged
}
