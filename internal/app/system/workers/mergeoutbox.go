// internal/app/system/workers/mergeoutbox.go
package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dalemusser/workshophub/internal/app/legacy"
	"github.com/dalemusser/workshophub/internal/domain/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Defaults applied by NewMergeOutbox for zero config fields.
const (
	DefaultMergeMaxAttempts = 8
	DefaultMergeLeaseTTL    = 2 * time.Minute
	DefaultMergeBaseDelay   = time.Minute
	DefaultMergeMaxDelay    = time.Hour
	DefaultMergeQuickTries  = 3
)

// MergeStore is the outbox the worker drains.
type MergeStore interface {
	Lease(ctx context.Context, owner string, ttl time.Duration) (*models.MergeRequest, error)
	Ack(ctx context.Context, id, owner string) error
	Retry(ctx context.Context, id, owner string, next time.Time, lastErr string) error
	Dead(ctx context.Context, id, owner, lastErr string) error
}

// PersonReplacer merges one legacy person into another.
type PersonReplacer interface {
	ReplacePerson(ctx context.Context, replaceID, withID int64) error
}

// MergeAuditor records delivery outcomes. A nil *auditlog.Logger satisfies it.
type MergeAuditor interface {
	RemoteMergeDelivered(ctx context.Context, replaceID, withID int64, attempts int)
	RemoteMergeDead(ctx context.Context, replaceID, withID int64, attempts int, reason string)
}

// MergeOutboxConfig tunes delivery.
type MergeOutboxConfig struct {
	MaxAttempts int           // leases before a request is parked as dead
	LeaseTTL    time.Duration // how long one delivery may take
	BaseDelay   time.Duration // delay before the second lease
	MaxDelay    time.Duration // cap on the delay between leases
	QuickTries  uint          // in-lease tries for transient failures
	QuickDelay  time.Duration // first delay between in-lease tries
}

// MergeOutbox delivers queued person merges to the legacy system.
type MergeOutbox struct {
	store  MergeStore
	remote PersonReplacer
	audit  MergeAuditor
	log    *zap.Logger
	cfg    MergeOutboxConfig
	owner  string
	now    func() time.Time
}

// NewMergeOutbox creates a merge outbox worker. Each worker leases under
// its own owner id.
func NewMergeOutbox(store MergeStore, remote PersonReplacer, audit MergeAuditor, logger *zap.Logger, cfg MergeOutboxConfig) *MergeOutbox {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMergeMaxAttempts
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultMergeLeaseTTL
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultMergeBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMergeMaxDelay
	}
	if cfg.QuickTries == 0 {
		cfg.QuickTries = DefaultMergeQuickTries
	}
	if cfg.QuickDelay <= 0 {
		cfg.QuickDelay = 500 * time.Millisecond
	}
	return &MergeOutbox{
		store:  store,
		remote: remote,
		audit:  audit,
		log:    logger,
		cfg:    cfg,
		owner:  "merge-outbox-" + uuid.NewString(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Drain delivers due requests until none are left or ctx is done. It
// returns the number of requests delivered.
func (w *MergeOutbox) Drain(ctx context.Context) (int, error) {
	delivered := 0
	for {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		req, err := w.store.Lease(ctx, w.owner, w.cfg.LeaseTTL)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return delivered, nil
		}
		if err != nil {
			return delivered, fmt.Errorf("lease merge request: %w", err)
		}
		ok, err := w.deliver(ctx, req)
		if err != nil {
			return delivered, err
		}
		if ok {
			delivered++
		}
	}
}

// deliver settles one leased request. It reports whether the legacy system
// accepted it; the error is non-nil only when the outcome could not be recorded.
func (w *MergeOutbox) deliver(ctx context.Context, req *models.MergeRequest) (bool, error) {
	log := w.log.With(
		zap.String("merge_id", req.ID),
		zap.Int64("replace_legacy_id", req.ReplaceLegacyID),
		zap.Int64("with_legacy_id", req.WithLegacyID),
		zap.Int("attempt", req.AttemptCount))

	lctx, cancel := context.WithTimeout(ctx, w.cfg.LeaseTTL)
	defer cancel()
	_, sendErr := backoff.Retry(lctx, func() (struct{}, error) {
		err := w.remote.ReplacePerson(lctx, req.ReplaceLegacyID, req.WithLegacyID)
		if err != nil && !transient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(&backoff.ExponentialBackOff{
			InitialInterval:     w.cfg.QuickDelay,
			RandomizationFactor: backoff.DefaultRandomizationFactor,
			Multiplier:          backoff.DefaultMultiplier,
			MaxInterval:         w.cfg.LeaseTTL / 4,
		}),
		backoff.WithMaxTries(w.cfg.QuickTries))

	if sendErr == nil {
		if err := w.store.Ack(ctx, req.ID, w.owner); err != nil {
			return false, fmt.Errorf("ack merge request %s: %w", req.ID, err)
		}
		w.audit.RemoteMergeDelivered(ctx, req.ReplaceLegacyID, req.WithLegacyID, req.AttemptCount)
		log.Info("legacy person merge delivered")
		return true, nil
	}

	if err := ctx.Err(); err != nil {
		// Shutting down; the lease expires and another run picks it up.
		return false, err
	}

	reason := sendErr.Error()
	if !transient(sendErr) || req.AttemptCount >= w.cfg.MaxAttempts {
		if err := w.store.Dead(ctx, req.ID, w.owner, reason); err != nil {
			return false, fmt.Errorf("park merge request %s: %w", req.ID, err)
		}
		w.audit.RemoteMergeDead(ctx, req.ReplaceLegacyID, req.WithLegacyID, req.AttemptCount, reason)
		log.Error("legacy person merge abandoned", zap.Error(sendErr))
		return false, nil
	}

	next := w.now().Add(w.RetryDelay(req.AttemptCount))
	if err := w.store.Retry(ctx, req.ID, w.owner, next, reason); err != nil {
		return false, fmt.Errorf("reschedule merge request %s: %w", req.ID, err)
	}
	log.Warn("legacy person merge failed, will retry", zap.Time("next_attempt_at", next), zap.Error(sendErr))
	return false, nil
}

// RetryDelay is the wait after the given failed lease: BaseDelay doubled
// per prior attempt, capped at MaxDelay.
func (w *MergeOutbox) RetryDelay(attempt int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     w.cfg.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         w.cfg.MaxDelay,
	}
	b.Reset()
	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// transient reports whether a delivery failure may succeed later.
func transient(err error) bool {
	return errors.Is(err, legacy.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}
