// Package reconcile keeps local people and memberships consistent with the
// legacy system: it merges remote snapshots into local records, folds
// duplicate people together, and runs full or single-member syncs.
package reconcile

import (
	"context"
	"time"

	"github.com/dalemusser/workshophub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultThrottle  = 5 * time.Minute
	DefaultLockTTL   = 10 * time.Minute
	DefaultStaffName = "Workshop Staff"
	DefaultSiteName  = "WorkshopHub"
)

// Config tunes the engine.
type Config struct {
	SiteName     string
	StaffEmail   string        // recipient of error reports and merge notices
	LegacyWebURL string        // base URL for deep links into the legacy UI
	StaffName    string        // attribution for invitations issued by lookup
	Throttle     time.Duration // minimum gap between full syncs of one event
	LockTTL      time.Duration // lease length for a sync run
}

// Deps are the engine's collaborators. Tx and Audit may be nil.
type Deps struct {
	People      PersonStore
	Memberships MembershipStore
	Invitations InvitationStore
	Lectures    LectureStore
	Logins      LoginStore
	Events      EventStore
	Merges      MergeQueue
	Locks       SyncLocker
	Remote      Remote
	Notifier    Notifier
	Tx          Transactor
	Audit       Auditor
}

// Engine runs reconciliation against the legacy system.
type Engine struct {
	people      PersonStore
	memberships MembershipStore
	invitations InvitationStore
	lectures    LectureStore
	logins      LoginStore
	events      EventStore
	merges      MergeQueue
	locks       SyncLocker
	remote      Remote
	notifier    Notifier
	tx          Transactor
	audit       Auditor

	cfg Config
	log *zap.Logger
	now func() time.Time
}

// New builds an Engine.
func New(d Deps, cfg Config, logger *zap.Logger) *Engine {
	if cfg.Throttle <= 0 {
		cfg.Throttle = DefaultThrottle
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.StaffName == "" {
		cfg.StaffName = DefaultStaffName
	}
	if cfg.SiteName == "" {
		cfg.SiteName = DefaultSiteName
	}
	if d.Tx == nil {
		d.Tx = directTx{}
	}
	if d.Audit == nil {
		d.Audit = nopAuditor{}
	}
	return &Engine{
		people:      d.People,
		memberships: d.Memberships,
		invitations: d.Invitations,
		lectures:    d.Lectures,
		logins:      d.Logins,
		events:      d.Events,
		merges:      d.Merges,
		locks:       d.Locks,
		remote:      d.Remote,
		notifier:    d.Notifier,
		tx:          d.Tx,
		audit:       d.Audit,
		cfg:         cfg,
		log:         logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type directTx struct{}

func (directTx) Do(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type nopAuditor struct{}

func (nopAuditor) SyncCompleted(context.Context, string, string, int, int, int, int) {}
func (nopAuditor) SyncFailed(context.Context, string, string, string) {}
func (nopAuditor) MembershipCreated(context.Context, string, string, primitive.ObjectID, string) {}
func (nopAuditor) MembershipPruned(context.Context, string, string, primitive.ObjectID, string) {}
func (nopAuditor) EventOverbooked(context.Context, string, string, int, int, map[string]int) {}
func (nopAuditor) InvitationIssued(context.Context, string, primitive.ObjectID) {}
func (nopAuditor) PersonMerged(context.Context, *models.Person, *models.Person) {}
func (nopAuditor) RemoteMergeQueued(context.Context, int64, int64) {}
