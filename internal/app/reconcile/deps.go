package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/workshophub/internal/app/legacy"
	"github.com/dalemusser/workshophub/internal/app/system/mailer"
	"github.com/dalemusser/workshophub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Getters on the stores below return mongo.ErrNoDocuments when nothing matches.

// PersonStore persists people.
type PersonStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Person, error)
	GetByLegacyID(ctx context.Context, legacyID int64) (*models.Person, error)
	GetByEmail(ctx context.Context, email string) (*models.Person, error)
	Create(ctx context.Context, p *models.Person) error
	Update(ctx context.Context, p *models.Person) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// MembershipStore persists memberships.
type MembershipStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Membership, error)
	Get(ctx context.Context, personID, eventID primitive.ObjectID) (*models.Membership, error)
	ListByEvent(ctx context.Context, eventID primitive.ObjectID) ([]models.Membership, error)
	ListByPerson(ctx context.Context, personID primitive.ObjectID) ([]models.Membership, error)
	CountByPerson(ctx context.Context, personID primitive.ObjectID) (int64, error)
	CountByAttendance(ctx context.Context, eventID primitive.ObjectID) (map[string]int, error)
	Create(ctx context.Context, m *models.Membership) error
	Update(ctx context.Context, m *models.Membership) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// InvitationStore persists RSVP invitations.
type InvitationStore interface {
	GetByCode(ctx context.Context, code string) (*models.Invitation, error)
	Create(ctx context.Context, inv *models.Invitation) error
	RepointMembership(ctx context.Context, from, to primitive.ObjectID) (int64, error)
}

// LectureStore persists lectures. UpsertByLegacyID inserts l or replaces
// the content of the lecture with the same legacy_id.
type LectureStore interface {
	UpsertByLegacyID(ctx context.Context, l *models.Lecture) error
	CountByPerson(ctx context.Context, personID primitive.ObjectID) (int64, error)
	Reparent(ctx context.Context, from, to primitive.ObjectID) (int64, error)
}

// LoginStore persists login accounts linked to people.
type LoginStore interface {
	GetByPerson(ctx context.Context, personID primitive.ObjectID) (*models.Login, error)
	GetByEmail(ctx context.Context, email string) (*models.Login, error)
	Update(ctx context.Context, l *models.Login) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// EventStore reads events and records the sync throttle marker.
type EventStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Event, error)
	GetByCode(ctx context.Context, code string) (*models.Event, error)
	ListUpcoming(ctx context.Context, from time.Time) ([]models.Event, error)
	MarkSynced(ctx context.Context, id primitive.ObjectID, at time.Time) error
}

// MergeQueue records legacy-side person merge requests for later delivery.
// Enqueue is idempotent per (replaceID, withID).
type MergeQueue interface {
	Enqueue(ctx context.Context, replaceID, withID int64) error
}

// ErrLocked is returned by SyncLocker.Acquire when another run holds the lease.
var ErrLocked = models.ErrSyncLocked

// SyncLocker hands out per-event exclusive leases.
type SyncLocker interface {
	Acquire(ctx context.Context, eventCode, owner string, ttl time.Duration) error
	Release(ctx context.Context, eventCode, owner string) error
}

// Transactor runs fn atomically where the database allows it.
type Transactor interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier delivers staff emails.
type Notifier interface {
	Send(ctx context.Context, e mailer.Email) error
}

// Remote is the subset of the legacy client the engine talks to.
type Remote interface {
	ListMembers(ctx context.Context, eventCode string) ([]legacy.MemberEntry, []error, error)
	GetMember(ctx context.Context, eventCode string, legacyID int64) (legacy.MemberEntry, error)
	GetPerson(ctx context.Context, legacyID int64) (legacy.Snapshot, error)
	SearchPerson(ctx context.Context, email string) (legacy.Snapshot, error)
	CheckRSVP(ctx context.Context, code string) (legacy.RSVPResult, error)
	GetLectures(ctx context.Context, eventCode string) ([]legacy.Snapshot, error)
	AddPerson(ctx context.Context, person legacy.Snapshot) (int64, error)
	AddMember(ctx context.Context, eventCode string, entry legacy.MemberEntry) error
}

// Auditor records reconciliation audit events.
type Auditor interface {
	SyncCompleted(ctx context.Context, runID, eventCode string, created, updated, pruned, failed int)
	SyncFailed(ctx context.Context, runID, eventCode, reason string)
	MembershipCreated(ctx context.Context, runID, eventCode string, personID primitive.ObjectID, role string)
	MembershipPruned(ctx context.Context, runID, eventCode string, personID primitive.ObjectID, email string)
	EventOverbooked(ctx context.Context, runID, eventCode string, total, max int, counts map[string]int)
	InvitationIssued(ctx context.Context, eventCode string, personID primitive.ObjectID)
	PersonMerged(ctx context.Context, loser, survivor *models.Person)
	RemoteMergeQueued(ctx context.Context, replaceID, withID int64)
}

func isNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
