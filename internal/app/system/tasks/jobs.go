// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"github.com/dalemusser/workshophub/internal/app/reconcile"
	"github.com/dalemusser/workshophub/internal/app/system/workers"
	"go.uber.org/zap"
)

// LeaseCleaner removes expired sync leases.
type LeaseCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// UpcomingSyncer syncs every event that has not ended yet.
type UpcomingSyncer interface {
	SyncUpcoming(ctx context.Context, opts reconcile.Options) error
}

// SyncUpcomingEventsJob runs the throttled membership sync for upcoming events.
func SyncUpcomingEventsJob(engine UpcomingSyncer, interval time.Duration) Job {
	return Job{
		Name:     "sync-upcoming-events",
		Interval: interval,
		Timeout:  30 * time.Minute,
		Run: func(ctx context.Context) error {
			return engine.SyncUpcoming(ctx, reconcile.Options{})
		},
	}
}

// MergeOutboxJob delivers queued legacy person merges.
func MergeOutboxJob(w *workers.MergeOutbox, logger *zap.Logger, interval time.Duration) Job {
	return Job{
		Name:     "merge-outbox",
		Interval: interval,
		Timeout:  10 * time.Minute,
		Run: func(ctx context.Context) error {
			n, err := w.Drain(ctx)
			if n > 0 {
				logger.Info("delivered legacy person merges", zap.Int("count", n))
			}
			return err
		},
	}
}

// SyncLockCleanupJob removes expired sync leases left behind by crashed runs.
// Acquire already ignores expired leases; this only keeps the collection small.
func SyncLockCleanupJob(locks LeaseCleaner, logger *zap.Logger) Job {
	return Job{
		Name:     "sync-lock-cleanup",
		Interval: 1 * time.Hour,
		Run: func(ctx context.Context) error {
			count, err := locks.CleanupExpired(ctx)
			if err != nil {
				return err
			}
			if count > 0 {
				logger.Debug("cleaned up expired sync leases", zap.Int64("count", count))
			}
			return nil
		},
	}
}
