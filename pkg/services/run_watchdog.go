package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/atelier-ai/atelier-engine/pkg/apperrors"
	"github.com/atelier-ai/atelier-engine/pkg/database"
	"github.com/atelier-ai/atelier-engine/pkg/repositories"
)

const staleRunReason = "worker heartbeat timeout"

// RunWatchdog periodically fails running runs whose workers stopped
// heartbeating. It scans across all projects, so it acquires its own
// unscoped connection instead of relying on a request's tenant scope.
type RunWatchdog struct {
	db       *database.DB
	runs     repositories.RunRepository
	runSvc   RunService
	timeout  time.Duration
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewRunWatchdog creates a watchdog with the given heartbeat timeout and
// scan interval.
func NewRunWatchdog(db *database.DB, runs repositories.RunRepository, runSvc RunService, timeout, interval time.Duration, logger *zap.Logger) *RunWatchdog {
	return &RunWatchdog{
		db:       db,
		runs:     runs,
		runSvc:   runSvc,
		timeout:  timeout,
		interval: interval,
		logger:   logger.Named("watchdog"),
	}
}

// Start launches the scan loop in a background goroutine.
func (w *RunWatchdog) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.logger.Info("watchdog started",
			zap.Duration("timeout", w.timeout),
			zap.Duration("interval", w.interval))

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.sweep(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the current sweep to finish.
func (w *RunWatchdog) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.logger.Info("watchdog stopped")
}

func (w *RunWatchdog) sweep(ctx context.Context) {
	scope, err := w.db.WithoutTenant(ctx)
	if err != nil {
		w.logger.Error("failed to acquire connection for sweep", zap.Error(err))
		return
	}
	defer scope.Close()
	scopedCtx := database.SetTenantScope(ctx, scope)

	cutoff := time.Now().Add(-w.timeout)
	stale, err := w.runs.ListStaleRunning(scopedCtx, cutoff)
	if err != nil {
		w.logger.Error("failed to list stale runs", zap.Error(err))
		return
	}

	for _, run := range stale {
		if _, err := w.runSvc.Fail(scopedCtx, run.ProjectID, run.ID, staleRunReason); err != nil {
			// A racing completion or failure already finished this run.
			if errors.Is(err, apperrors.ErrInvalidTransition) || errors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			w.logger.Error("failed to fail stale run",
				zap.String("run_id", run.ID.String()),
				zap.Error(err))
			continue
		}
		w.logger.Warn("failed stale run",
			zap.String("project_id", run.ProjectID.String()),
			zap.String("run_id", run.ID.String()),
			zap.Timep("last_heartbeat", run.LastHeartbeat))
	}
}
