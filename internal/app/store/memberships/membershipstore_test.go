package membershipstore_test

import (
	"errors"
	"testing"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	membershipstore "github.com/dalemusser/workshophub/internal/app/store/memberships"
	"github.com/dalemusser/workshophub/internal/app/system/indexes"
	"github.com/dalemusser/workshophub/internal/domain/models"
	"github.com/dalemusser/workshophub/internal/testutil"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestStore_CreateAndGet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ev := fixtures.CreateEvent(ctx, "26w5001", time.Now().Add(30*24*time.Hour))
	p := fixtures.CreatePerson(ctx, "Ada", "Lovelace", "ada@example.com", 1)

	m := &models.Membership{
		EventID:    ev.ID,
		PersonID:   p.ID,
		Role:       models.RoleParticipant,
		Attendance: models.AttendanceInvited,
	}
	if err := store.Create(ctx, m); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, p.ID, ev.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != m.ID {
		t.Errorf("Get returned %s, want %s", got.ID.Hex(), m.ID.Hex())
	}

	byID, err := store.GetByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if byID.Attendance != models.AttendanceInvited {
		t.Errorf("Attendance = %q, want %q", byID.Attendance, models.AttendanceInvited)
	}
}

func TestStore_CreateDuplicatePair(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	ev := fixtures.CreateEvent(ctx, "26w5002", time.Now().Add(30*24*time.Hour))
	p := fixtures.CreatePerson(ctx, "Ada", "Lovelace", "ada@example.com", 1)
	fixtures.CreateMembership(ctx, ev.ID, p.ID, models.AttendanceConfirmed)

	err := store.Create(ctx, &models.Membership{EventID: ev.ID, PersonID: p.ID, Role: models.RoleParticipant, Attendance: models.AttendanceInvited})
	if !wafflemongo.IsDup(err) {
		t.Errorf("expected duplicate key error, got %v", err)
	}
}

func TestStore_ListAndCount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	start := time.Now().Add(30 * 24 * time.Hour)
	ev1 := fixtures.CreateEvent(ctx, "26w5003", start)
	ev2 := fixtures.CreateEvent(ctx, "26w5004", start)
	a := fixtures.CreatePerson(ctx, "A", "One", "a@example.com", 1)
	b := fixtures.CreatePerson(ctx, "B", "Two", "b@example.com", 2)
	c := fixtures.CreatePerson(ctx, "C", "Three", "c@example.com", 3)

	fixtures.CreateMembership(ctx, ev1.ID, a.ID, models.AttendanceConfirmed)
	fixtures.CreateMembership(ctx, ev1.ID, b.ID, models.AttendanceConfirmed)
	fixtures.CreateMembership(ctx, ev1.ID, c.ID, models.AttendanceDeclined)
	fixtures.CreateMembership(ctx, ev2.ID, a.ID, models.AttendanceInvited)

	list, err := store.ListByEvent(ctx, ev1.ID)
	if err != nil {
		t.Fatalf("ListByEvent failed: %v", err)
	}
	if len(list) != 3 {
		t.Errorf("ListByEvent returned %d, want 3", len(list))
	}

	mine, err := store.ListByPerson(ctx, a.ID)
	if err != nil {
		t.Fatalf("ListByPerson failed: %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("ListByPerson returned %d, want 2", len(mine))
	}

	n, err := store.CountByPerson(ctx, a.ID)
	if err != nil {
		t.Fatalf("CountByPerson failed: %v", err)
	}
	if n != 2 {
		t.Errorf("CountByPerson = %d, want 2", n)
	}

	counts, err := store.CountByAttendance(ctx, ev1.ID)
	if err != nil {
		t.Fatalf("CountByAttendance failed: %v", err)
	}
	if counts[models.AttendanceConfirmed] != 2 || counts[models.AttendanceDeclined] != 1 {
		t.Errorf("CountByAttendance = %v", counts)
	}
	if _, ok := counts[models.AttendanceInvited]; ok {
		t.Errorf("ev1 has no invited members, got %v", counts)
	}
}

func TestStore_UpdateAndDelete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ev := fixtures.CreateEvent(ctx, "26w5005", time.Now().Add(30*24*time.Hour))
	p := fixtures.CreatePerson(ctx, "Ada", "Lovelace", "ada@example.com", 1)
	m := fixtures.CreateMembership(ctx, ev.ID, p.ID, models.AttendanceInvited)

	m.Attendance = models.AttendanceConfirmed
	m.HasGuest = true
	if err := store.Update(ctx, &m); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, err := store.GetByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Attendance != models.AttendanceConfirmed || !got.HasGuest {
		t.Errorf("update not persisted: %+v", got)
	}

	if err := store.Delete(ctx, m.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.GetByID(ctx, m.ID); !errors.Is(err, mongo.ErrNoDocuments) {
		t.Errorf("expected ErrNoDocuments after delete, got %v", err)
	}
	if err := store.Update(ctx, &m); !errors.Is(err, mongo.ErrNoDocuments) {
		t.Errorf("Update of deleted membership: expected ErrNoDocuments, got %v", err)
	}
}
