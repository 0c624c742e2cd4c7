package background

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredDeleter removes rows whose lifetime has passed and reports how many.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CleanupManager periodically sweeps expired refresh tokens, sessions,
// verification tokens and two-factor codes from the database.
type CleanupManager struct {
	sweeps   map[string]ExpiredDeleter
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager. The sweeps map is keyed
// by a short name used in log lines.
func NewCleanupManager(sweeps map[string]ExpiredDeleter, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		sweeps:   sweeps,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task and blocks until stopped.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup sweeps every registered store. One store failing does not
// prevent the rest from being swept.
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for name, store := range cm.sweeps {
		rowsDeleted, err := store.DeleteExpired(cleanupCtx)
		if err != nil {
			cm.logger.Error("expired row cleanup failed",
				slog.String("store", name),
				slog.Any("error", err))
			continue
		}
		if rowsDeleted > 0 {
			cm.logger.Info("expired row cleanup completed",
				slog.String("store", name),
				slog.Int64("rows_deleted", rowsDeleted))
		}
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
