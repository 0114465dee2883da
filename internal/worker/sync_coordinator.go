// Package worker runs the background loops of the serve command.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hyperengineering/fitsync/internal/identity"
	fitsync "github.com/hyperengineering/fitsync/internal/sync"
)

// Signaler accepts lifecycle triggers. Implemented by sync.Orchestrator.
type Signaler interface {
	Signal(ctx context.Context, reason fitsync.Reason) (*fitsync.Report, bool, error)
}

// SyncCoordinator sends an interval signal on every tick, the first one
// right away. Signals pass through the orchestrator's throttle like any
// lifecycle event.
type SyncCoordinator struct {
	syncer   Signaler
	interval time.Duration
}

// NewSyncCoordinator creates a coordinator ticking every interval.
func NewSyncCoordinator(s Signaler, interval time.Duration) *SyncCoordinator {
	return &SyncCoordinator{syncer: s, interval: interval}
}

// Run starts the coordinator loop. It returns when ctx is cancelled.
func (c *SyncCoordinator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "sync-coordinator",
		"action", "worker_started",
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "sync-coordinator",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *SyncCoordinator) tick(ctx context.Context) {
	start := time.Now()
	rep, accepted, err := c.syncer.Signal(ctx, fitsync.ReasonInterval)
	switch {
	case errors.Is(err, identity.ErrNotAuthenticated):
		slog.Debug("interval sync skipped, signed out",
			"component", "worker",
			"worker", "sync-coordinator",
			"action", "sync_skipped",
		)
	case err != nil:
		if ctx.Err() != nil {
			return // Graceful shutdown
		}
		slog.Warn("interval sync failed",
			"component", "worker",
			"worker", "sync-coordinator",
			"action", "sync_failed",
			"error", err,
		)
	case !accepted:
		slog.Debug("interval sync throttled",
			"component", "worker",
			"worker", "sync-coordinator",
			"action", "sync_throttled",
		)
	default:
		slog.Info("interval sync completed",
			"component", "worker",
			"worker", "sync-coordinator",
			"action", "sync_completed",
			"cycle_id", rep.CycleID,
			"failed", rep.Failed(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
