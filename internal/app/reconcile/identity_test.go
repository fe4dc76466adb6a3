package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/workshophub/internal/app/legacy"
	"github.com/dalemusser/workshophub/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveIdentity_AdoptsRemoteEmail(t *testing.T) {
	h := newHarness()
	local := h.addPerson(models.Person{Firstname: "A", Lastname: "L", Email: "old@x.com", LegacyID: models.LegacyIDPtr(42), UpdatedAt: t0})
	snap := legacy.ParseSnapshot(map[string]any{"legacy_id": 42, "email": "a@x.com", "updated_at": t1.Format(time.RFC3339)})

	got, err := h.engine.ResolveIdentity(context.Background(), local, snap, ByEmail)
	require.NoError(t, err)
	assert.Equal(t, local.ID, got.ID)
	assert.Equal(t, "a@x.com", got.Email)
	assert.Equal(t, "old@x.com", h.db.people[local.ID].Email, "not saved")
}

func TestResolveIdentity_AdoptsLegacyIDAndQueuesRemoteMerge(t *testing.T) {
	h := newHarness()
	local := h.addPerson(models.Person{Firstname: "A", Lastname: "L", Email: "a@x.com", LegacyID: models.LegacyIDPtr(5)})
	snap := legacy.ParseSnapshot(map[string]any{"legacy_id": 9})

	got, err := h.engine.ResolveIdentity(context.Background(), local, snap, ByLegacyID)
	require.NoError(t, err)
	assert.Equal(t, int64(9), *got.LegacyID)
	assert.Equal(t, [][2]int64{{5, 9}}, h.db.merges)
}

func TestResolveIdentity_UnlinkedAdoptsWithoutRemoteMerge(t *testing.T) {
	h := newHarness()
	local := h.addPerson(models.Person{Firstname: "A", Lastname: "L", Email: "a@x.com"})

	got, err := h.engine.ResolveIdentity(context.Background(), local, legacy.ParseSnapshot(map[string]any{"legacy_id": 9}), ByLegacyID)
	require.NoError(t, err)
	assert.Equal(t, int64(9), *got.LegacyID)
	assert.Empty(t, h.db.merges)
}

func TestResolveIdentity_MergesDuplicateByEmail(t *testing.T) {
	h := newHarness()
	ev := h.addEvent(models.Event{Code: "24w5001", MaxParticipants: 40})
	local := h.addPerson(models.Person{Firstname: "Ada", Lastname: "L", Email: "ada@work.org", LegacyID: models.LegacyIDPtr(1), UpdatedBy: "Ada L"})
	dup := h.addPerson(models.Person{Firstname: "Ada", Lastname: "L", Email: "ada@home.org", LegacyID: models.LegacyIDPtr(2), Biography: "much longer biography text"})
	h.addMembership(models.Membership{EventID: ev.ID, PersonID: dup.ID, Role: models.RoleParticipant, Attendance: models.AttendanceInvited})

	snap := legacy.ParseSnapshot(map[string]any{"email": "ADA@home.org"})
	got, err := h.engine.ResolveIdentity(context.Background(), local, snap, ByEmail)
	require.NoError(t, err)

	assert.Equal(t, local.ID, got.ID, "self-edited record survives")
	assert.Equal(t, "ada@home.org", got.Email)
	_, ok := h.person(dup.ID)
	assert.False(t, ok)
	ms, _ := membershipStore{h.db}.ListByPerson(context.Background(), local.ID)
	assert.Len(t, ms, 1)
	assert.Equal(t, [][2]int64{{2, 1}}, h.db.merges)
}

func TestResolveIdentity_MergesDuplicateByLegacyID(t *testing.T) {
	h := newHarness()
	local := h.addPerson(models.Person{Firstname: "A", Lastname: "L", Email: "a@x.com"})
	other := h.addPerson(models.Person{Firstname: "A", Lastname: "L", Email: "b@x.com", LegacyID: models.LegacyIDPtr(7), City: "Banff"})

	got, err := h.engine.ResolveIdentity(context.Background(), local, legacy.ParseSnapshot(map[string]any{"legacy_id": 7}), ByLegacyID)
	require.NoError(t, err)
	assert.Equal(t, other.ID, got.ID)
	assert.Equal(t, int64(7), *got.LegacyID)
	_, ok := h.person(local.ID)
	assert.False(t, ok)
	assert.Empty(t, h.db.merges, "loser had no legacy record")
}

func TestIdentityField_String(t *testing.T) {
	assert.Equal(t, "legacy_id", ByLegacyID.String())
	assert.Equal(t, "email", ByEmail.String())
}
