package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/workshophub/internal/app/system/normalize"
	"github.com/dalemusser/workshophub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

func (f *Fixtures) insert(ctx context.Context, coll string, doc any) {
	f.t.Helper()
	if _, err := f.db.Collection(coll).InsertOne(ctx, doc); err != nil {
		f.t.Fatalf("insert into %s: %v", coll, err)
	}
}

// CreatePerson creates a person with the given name and email. legacyID
// of zero leaves the person unlinked.
func (f *Fixtures) CreatePerson(ctx context.Context, firstname, lastname, email string, legacyID int64) models.Person {
	f.t.Helper()

	now := time.Now().UTC()
	p := models.Person{
		ID:        primitive.NewObjectID(),
		Firstname: firstname,
		Lastname:  lastname,
		Email:     normalize.Email(email),
		CreatedAt: now,
		UpdatedAt: now,
		UpdatedBy: "Test Fixture",
	}
	if legacyID > 0 {
		p.LegacyID = models.LegacyIDPtr(legacyID)
	}
	f.insert(ctx, "people", p)
	return p
}

// CreateEvent creates a physical event starting start and lasting five days.
func (f *Fixtures) CreateEvent(ctx context.Context, code string, start time.Time) models.Event {
	f.t.Helper()

	now := time.Now().UTC()
	ev := models.Event{
		ID:              primitive.NewObjectID(),
		Code:            code,
		Name:            "Workshop " + code,
		TimeZone:        "America/Edmonton",
		StartDate:       start,
		EndDate:         start.AddDate(0, 0, 5),
		EventFormat:     models.FormatPhysical,
		MaxParticipants: 42,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	f.insert(ctx, "events", ev)
	return ev
}

// CreateMembership creates a participant membership with the given attendance.
func (f *Fixtures) CreateMembership(ctx context.Context, eventID, personID primitive.ObjectID, attendance string) models.Membership {
	f.t.Helper()

	now := time.Now().UTC()
	m := models.Membership{
		ID:         primitive.NewObjectID(),
		EventID:    eventID,
		PersonID:   personID,
		Role:       models.RoleParticipant,
		Attendance: attendance,
		CreatedAt:  now,
		UpdatedAt:  now,
		UpdatedBy:  "Test Fixture",
	}
	f.insert(ctx, "memberships", m)
	return m
}

// CreateInvitation creates an invitation for membershipID expiring at expires.
func (f *Fixtures) CreateInvitation(ctx context.Context, code string, membershipID primitive.ObjectID, expires time.Time) models.Invitation {
	f.t.Helper()

	inv := models.Invitation{
		ID:           primitive.NewObjectID(),
		Code:         normalize.InvitationCode(code),
		MembershipID: membershipID,
		Expires:      expires,
		InvitedBy:    "Test Fixture",
		CreatedAt:    time.Now().UTC(),
	}
	f.insert(ctx, "invitations", inv)
	return inv
}

// CreateLecture creates a lecture given by personID at eventID.
func (f *Fixtures) CreateLecture(ctx context.Context, eventID, personID primitive.ObjectID, title string) models.Lecture {
	f.t.Helper()

	now := time.Now().UTC()
	l := models.Lecture{
		ID:        primitive.NewObjectID(),
		EventID:   eventID,
		PersonID:  personID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.insert(ctx, "lectures", l)
	return l
}

// CreateLogin creates a confirmed login for personID.
func (f *Fixtures) CreateLogin(ctx context.Context, personID primitive.ObjectID, email string) models.Login {
	f.t.Helper()

	now := time.Now().UTC()
	l := models.Login{
		ID:          primitive.NewObjectID(),
		PersonID:    personID,
		Email:       normalize.Email(email),
		ConfirmedAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.insert(ctx, "logins", l)
	return l
}
