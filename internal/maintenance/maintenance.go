// Package maintenance runs periodic housekeeping: expired block purges and
// idle session eviction.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// BlockPurger deletes blocks that have run out.
type BlockPurger interface {
	DeleteExpiredBlocks(ctx context.Context, now time.Time) (int64, error)
}

// SessionEvictor drops workflow sessions untouched since before.
type SessionEvictor interface {
	DeleteIdle(ctx context.Context, before time.Time) (int, error)
}

// Config controls the sweep.
type Config struct {
	// Schedule is a cron spec or descriptor such as "@every 5m".
	Schedule string
	// SessionIdleTTL evicts sessions idle for longer. Zero disables eviction.
	SessionIdleTTL time.Duration
}

// Worker sweeps on a cron schedule.
type Worker struct {
	blocks   BlockPurger
	sessions SessionEvictor
	cfg      Config
	now      func() time.Time
	cron     *cron.Cron
	logger   *slog.Logger
}

// New creates a worker. sessions may be nil when eviction is disabled.
func New(blocks BlockPurger, sessions SessionEvictor, cfg Config, logger *slog.Logger) (*Worker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid maintenance schedule %q: %w", cfg.Schedule, err)
	}
	return &Worker{
		blocks:   blocks,
		sessions: sessions,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With("module", "maintenance"),
	}, nil
}

// Start schedules the sweep and runs it until ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	w.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))
	if _, err := w.cron.AddFunc(w.cfg.Schedule, func() { w.Sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule maintenance: %w", err)
	}
	w.cron.Start()
	w.logger.Info("Maintenance worker started", "schedule", w.cfg.Schedule, "session_idle_ttl", w.cfg.SessionIdleTTL)

	go func() {
		<-ctx.Done()
		<-w.cron.Stop().Done()
		w.logger.Info("Maintenance worker shutting down", "reason", ctx.Err())
	}()
	return nil
}

// Sweep runs one housekeeping pass.
func (w *Worker) Sweep(ctx context.Context) {
	now := w.now()

	purged, err := w.blocks.DeleteExpiredBlocks(ctx, now)
	if err != nil {
		w.logger.Error("Failed to purge expired blocks", "error", err)
	} else if purged > 0 {
		w.logger.Info("Purged expired blocks", "count", purged)
	}

	if w.sessions == nil || w.cfg.SessionIdleTTL <= 0 {
		return
	}
	evicted, err := w.sessions.DeleteIdle(ctx, now.Add(-w.cfg.SessionIdleTTL))
	if err != nil {
		w.logger.Error("Failed to evict idle sessions", "error", err)
		return
	}
	if evicted > 0 {
		w.logger.Info("Evicted idle sessions", "count", evicted, "idle_ttl", w.cfg.SessionIdleTTL)
	}
}
