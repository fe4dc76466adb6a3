package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/workshophub/internal/app/legacy"
	"github.com/dalemusser/workshophub/internal/app/system/normalize"
	"github.com/dalemusser/workshophub/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func errorSet(t *testing.T, err error) *ErrorSet {
	t.Helper()
	var set *ErrorSet
	require.True(t, errors.As(err, &set), "want *ErrorSet, got %v", err)
	return set
}

func TestLookupInvitation_DeniedByLegacy(t *testing.T) {
	h := newHarness()
	code := normalize.InvitationCode("abc")
	h.remote.rsvp[code] = legacy.RSVPResult{Denied: "Invalid invitation code."}

	inv, err := h.engine.LookupInvitation(context.Background(), "abc")
	assert.Nil(t, inv)
	set := errorSet(t, err)
	assert.Equal(t, []string{"Invalid invitation code."}, set.Messages())
	assert.Empty(t, h.db.invitations)
}

func TestLookupInvitation_IncompleteResponse(t *testing.T) {
	h := newHarness()
	code := normalize.InvitationCode("abc")
	h.remote.rsvp[code] = legacy.RSVPResult{}

	_, err := h.engine.LookupInvitation(context.Background(), "abc")
	set := errorSet(t, err)
	assert.Equal(t, []string{msgNoEvent}, set.Field(FieldEvent))
	assert.Equal(t, []string{msgNoPerson}, set.Field(FieldPerson))
}

func TestLookupInvitation_UnknownCode(t *testing.T) {
	_, err := newHarness().engine.LookupInvitation(context.Background(), "zzz")
	set := errorSet(t, err)
	assert.True(t, set.NotFound)
}

func TestLookupInvitation_UnknownEvent(t *testing.T) {
	h := newHarness()
	code := normalize.InvitationCode("abc")
	h.remote.rsvp[code] = legacy.RSVPResult{EventCode: "99w9999", LegacyID: 1}

	_, err := h.engine.LookupInvitation(context.Background(), "abc")
	set := errorSet(t, err)
	assert.True(t, set.NotFound)
	assert.Len(t, set.Field(FieldEvent), 1)
}

func TestLookupInvitation_FallbackSyncsAndCreates(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	start := testNow.AddDate(0, 1, 0)
	ev := h.addEvent(models.Event{Code: "26w5001", MaxParticipants: 40, Name: "Knots", StartDate: start, EndDate: start.AddDate(0, 0, 5)})
	h.remote.members[ev.Code] = []legacy.MemberEntry{
		entry(ev.Code, personRow(7, "g@x.com", "Gil"), map[string]any{"attendance": "Invited"}),
	}
	code := normalize.InvitationCode("k3y")
	h.remote.rsvp[code] = legacy.RSVPResult{EventCode: ev.Code, LegacyID: 7}

	inv, err := h.engine.LookupInvitation(ctx, " k3y ")
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.Equal(t, code, inv.Code)
	assert.Equal(t, DefaultStaffName, inv.InvitedBy)
	assert.True(t, inv.Expires.Equal(start))
	assert.Equal(t, 1, h.remote.listCalls, "event synced first")

	// A second lookup is served locally.
	again, err := h.engine.LookupInvitation(ctx, "k3y")
	require.NoError(t, err)
	assert.Equal(t, inv.ID, again.ID)
	assert.Equal(t, 1, h.remote.rsvpCalled)
	assert.Len(t, h.db.invitations, 1)
}

func TestLookupInvitation_FallbackHonoursThrottle(t *testing.T) {
	start := testNow.AddDate(0, 1, 0)
	recent := testNow.Add(-time.Minute)
	tests := []struct {
		name      string
		local     bool
		wantLists int
	}{
		{"membership already local", true, 0},
		{"membership missing forces a sync", false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			ev := h.addEvent(models.Event{Code: "26w5001", MaxParticipants: 40, Name: "Knots", StartDate: start, EndDate: start.AddDate(0, 0, 5), SyncTime: &recent})
			h.remote.members[ev.Code] = []legacy.MemberEntry{
				entry(ev.Code, personRow(7, "g@x.com", "Gil"), map[string]any{"attendance": "Invited"}),
			}
			if tt.local {
				p := h.addPerson(models.Person{Firstname: "Gil", Lastname: "Tester", Email: "g@x.com", LegacyID: models.LegacyIDPtr(7)})
				h.addMembership(models.Membership{EventID: ev.ID, PersonID: p.ID, Role: models.RoleParticipant, Attendance: models.AttendanceInvited})
			}
			code := normalize.InvitationCode("k3y")
			h.remote.rsvp[code] = legacy.RSVPResult{EventCode: ev.Code, LegacyID: 7}

			inv, err := h.engine.LookupInvitation(context.Background(), "k3y")
			require.NoError(t, err)
			require.NotNil(t, inv)
			assert.Equal(t, tt.wantLists, h.remote.listCalls)
		})
	}
}

func TestLookupInvitation_NoMembership(t *testing.T) {
	h := newHarness()
	ev := h.addEvent(models.Event{Code: "24w5001", MaxParticipants: 40, StartDate: testNow.AddDate(0, 0, -10), EndDate: testNow.AddDate(0, 0, 5)})
	h.addPerson(models.Person{Firstname: "A", Lastname: "B", Email: "a@x.com", LegacyID: models.LegacyIDPtr(7)})
	code := normalize.InvitationCode("abc")
	h.remote.rsvp[code] = legacy.RSVPResult{EventCode: ev.Code, LegacyID: 7}

	_, err := h.engine.LookupInvitation(context.Background(), "abc")
	set := errorSet(t, err)
	assert.Equal(t, []string{msgNoMembership}, set.Field(FieldMembership))
	assert.Zero(t, h.remote.listCalls, "past events are not synced")
}

func TestLookupInvitation_Validation(t *testing.T) {
	start := testNow.AddDate(0, 0, 7)
	tests := []struct {
		name       string
		attendance string
		expires    time.Time
		end        time.Time
		field      string
		msg        string
	}{
		{"valid", models.AttendanceInvited, start, start.AddDate(0, 0, 3), "", ""},
		{"declined", models.AttendanceDeclined, start, start.AddDate(0, 0, 3), FieldAttendance, msgDeclined},
		{"not yet invited", models.AttendanceNotYetInvited, start, start.AddDate(0, 0, 3), FieldAttendance, msgNotYetInvited},
		{"expired", models.AttendanceInvited, testNow.Add(-time.Hour), start, FieldCode, msgExpired},
		{"event ended", models.AttendanceConfirmed, time.Time{}, testNow.AddDate(0, 0, -2), FieldEvent, "Knots has already ended."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			ev := h.addEvent(models.Event{Code: "24w5001", MaxParticipants: 40, Name: "Knots", StartDate: start, EndDate: tt.end})
			p := h.addPerson(models.Person{Firstname: "A", Lastname: "B", Email: "a@x.com"})
			m := h.addMembership(models.Membership{EventID: ev.ID, PersonID: p.ID, Role: models.RoleParticipant, Attendance: tt.attendance})
			code := normalize.InvitationCode("abc")
			id := primitive.NewObjectID()
			h.db.invitations[id] = models.Invitation{ID: id, Code: code, MembershipID: m.ID, Expires: tt.expires}

			inv, err := h.engine.LookupInvitation(context.Background(), "abc")
			if tt.field == "" {
				require.NoError(t, err)
				assert.Equal(t, id, inv.ID)
				return
			}
			set := errorSet(t, err)
			assert.Equal(t, []string{tt.msg}, set.Field(tt.field))
			assert.Zero(t, h.remote.rsvpCalled)
		})
	}
}

func TestEventEnded_UsesEventTimeZone(t *testing.T) {
	ev := &models.Event{TimeZone: "America/Vancouver", EndDate: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)}
	// 2026-03-10 local ends at 2026-03-11 07:00 UTC (PDT).
	assert.False(t, EventEnded(ev, time.Date(2026, 3, 11, 6, 59, 0, 0, time.UTC)))
	assert.True(t, EventEnded(ev, time.Date(2026, 3, 11, 7, 0, 0, 0, time.UTC)))
	assert.False(t, EventEnded(&models.Event{}, testNow))
}

func TestErrorSet(t *testing.T) {
	var s ErrorSet
	assert.True(t, s.Empty())
	s.Add(FieldCode, "one")
	s.Add(FieldEvent, "two")
	s.Add(FieldCode, "three")
	assert.Equal(t, []string{"one", "three", "two"}, s.Messages())
	assert.Equal(t, "one three two", s.Error())
}
