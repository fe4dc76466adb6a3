package reconcile

import (
	"strings"
	"time"

	"github.com/dalemusser/workshophub/internal/app/legacy"
	"github.com/dalemusser/workshophub/internal/app/system/normalize"
	"github.com/dalemusser/workshophub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ImportAuthor attributes values that arrived from the legacy system
// without an author of their own.
const ImportAuthor = "Legacy Import"

type personField struct {
	key string
	get func(*models.Person) *string
}

// personFields are the non-identity person attributes mirrored by the legacy system.
var personFields = []personField{
	{"salutation", func(p *models.Person) *string { return &p.Salutation }},
	{"firstname", func(p *models.Person) *string { return &p.Firstname }},
	{"lastname", func(p *models.Person) *string { return &p.Lastname }},
	{"affiliation", func(p *models.Person) *string { return &p.Affiliation }},
	{"department", func(p *models.Person) *string { return &p.Department }},
	{"title", func(p *models.Person) *string { return &p.Title }},
	{"academic_status", func(p *models.Person) *string { return &p.AcademicStatus }},
	{"phd_year", func(p *models.Person) *string { return &p.PhdYear }},
	{"url", func(p *models.Person) *string { return &p.URL }},
	{"phone", func(p *models.Person) *string { return &p.Phone }},
	{"gender", func(p *models.Person) *string { return &p.Gender }},
	{"address1", func(p *models.Person) *string { return &p.Address1 }},
	{"address2", func(p *models.Person) *string { return &p.Address2 }},
	{"address3", func(p *models.Person) *string { return &p.Address3 }},
	{"city", func(p *models.Person) *string { return &p.City }},
	{"region", func(p *models.Person) *string { return &p.Region }},
	{"postal_code", func(p *models.Person) *string { return &p.PostalCode }},
	{"country", func(p *models.Person) *string { return &p.Country }},
	{"biography", func(p *models.Person) *string { return &p.Biography }},
	{"research_areas", func(p *models.Person) *string { return &p.ResearchAreas }},
	{"emergency_contact", func(p *models.Person) *string { return &p.EmergencyContact }},
	{"emergency_phone", func(p *models.Person) *string { return &p.EmergencyPhone }},
}

type membershipString struct {
	key string
	get func(*models.Membership) *string
}

var membershipStrings = []membershipString{
	{"role", func(m *models.Membership) *string { return &m.Role }},
	{"attendance", func(m *models.Membership) *string { return &m.Attendance }},
	{"billing", func(m *models.Membership) *string { return &m.Billing }},
	{"room", func(m *models.Membership) *string { return &m.Room }},
	{"special_info", func(m *models.Membership) *string { return &m.SpecialInfo }},
	{"staff_notes", func(m *models.Membership) *string { return &m.StaffNotes }},
	{"num_guests", func(m *models.Membership) *string { return &m.NumGuests }},
}

type membershipBool struct {
	key string
	get func(*models.Membership) *bool
}

var membershipBools = []membershipBool{
	{"share_email", func(m *models.Membership) *bool { return &m.ShareEmail }},
	{"own_accommodation", func(m *models.Membership) *bool { return &m.OwnAccommodation }},
	{"has_guest", func(m *models.Membership) *bool { return &m.HasGuest }},
	{"offsite", func(m *models.Membership) *bool { return &m.Offsite }},
	{"reviewed", func(m *models.Membership) *bool { return &m.Reviewed }},
}

type membershipDate struct {
	key string
	get func(*models.Membership) **time.Time
}

// Date-only fields, read in the event's time zone.
var membershipDates = []membershipDate{
	{"arrival_date", func(m *models.Membership) **time.Time { return &m.ArrivalDate }},
	{"departure_date", func(m *models.Membership) **time.Time { return &m.DepartureDate }},
}

// IsRemoteNewer reports whether snap overrides a local record last changed
// at localAt. A local record with no provenance (zero time) always yields;
// a snapshot without updated_at never overrides one that has it.
func IsRemoteNewer(localAt time.Time, snap legacy.Snapshot) bool {
	if localAt.IsZero() {
		return true
	}
	remoteAt, ok := snap.Time("updated_at")
	return ok && remoteAt.After(localAt)
}

// MergePerson reconciles local against snap and returns the result; local
// is not modified. When snap is newer its non-blank values replace local
// ones. Otherwise only blank local fields are filled in. The identity
// fields legacy_id and email are never touched here; callers resolve them
// first with Engine.ResolveIdentity.
func MergePerson(local models.Person, snap legacy.Snapshot) models.Person {
	out := local
	if IsRemoteNewer(local.UpdatedAt, snap) {
		for _, f := range personFields {
			if v, ok := snap.String(f.key); ok {
				*f.get(&out) = v
			}
		}
		if at, ok := snap.Time("updated_at"); ok {
			out.UpdatedAt = at
		}
		out.UpdatedBy = ImportAuthor
		if by, ok := snap.String("updated_by"); ok {
			out.UpdatedBy = by
		}
		return out
	}

	for _, f := range personFields {
		dst := f.get(&out)
		if strings.TrimSpace(*dst) != "" {
			continue
		}
		if v, ok := snap.String(f.key); ok {
			*dst = v
		}
	}
	return out
}

// PersonFromSnapshot builds a new, unsaved person from a remote record,
// identity fields included.
func PersonFromSnapshot(snap legacy.Snapshot) models.Person {
	p := MergePerson(models.Person{}, snap)
	if id, ok := snap.Int("legacy_id"); ok && id > 0 {
		p.LegacyID = &id
	}
	if email, ok := snap.String("email"); ok {
		p.Email = normalize.Email(email)
	}
	return p
}

// MergeMembership reconciles local against snap and returns the result;
// local is not modified. Dates are read in event's time zone.
//
// invited_on only ever moves forward: it is taken from snap when local is
// blank or earlier, and invited_by travels with it.
func MergeMembership(local models.Membership, snap legacy.Snapshot, event *models.Event) models.Membership {
	out := local
	loc := event.Location()
	newer := IsRemoteNewer(local.UpdatedAt, snap)

	for _, f := range membershipStrings {
		dst := f.get(&out)
		if !newer && strings.TrimSpace(*dst) != "" {
			continue
		}
		if v, ok := snap.String(f.key); ok {
			*dst = v
		}
	}

	for _, f := range membershipDates {
		dst := f.get(&out)
		if !newer && *dst != nil {
			continue
		}
		if t, ok := snap.TimeIn(f.key, loc); ok {
			*dst = &t
		}
	}
	if newer || out.RepliedAt == nil {
		if t, ok := snap.Time("replied_at"); ok {
			out.RepliedAt = &t
		}
	}

	if newer {
		for _, f := range membershipBools {
			if b, ok := snap.Bool(f.key); ok {
				*f.get(&out) = b
			}
		}
	}

	mergeInvitedOn(&out, snap, loc, newer)

	if newer {
		if at, ok := snap.Time("updated_at"); ok {
			out.UpdatedAt = at
		}
		out.UpdatedBy = ImportAuthor
		if by, ok := snap.String("updated_by"); ok {
			out.UpdatedBy = by
		}
	}
	return out
}

func mergeInvitedOn(m *models.Membership, snap legacy.Snapshot, loc *time.Location, newer bool) {
	remote, ok := snap.TimeIn("invited_on", loc)
	if !ok {
		return
	}
	if m.InvitedOn != nil && (!newer || !m.InvitedOn.Before(remote)) {
		return
	}
	m.InvitedOn = &remote
	m.InvitedBy = ImportAuthor
	if by, ok := snap.String("invited_by"); ok {
		m.InvitedBy = by
	}
}

// MembershipFromSnapshot builds a new, unsaved membership of personID in event.
func MembershipFromSnapshot(event *models.Event, personID primitive.ObjectID, snap legacy.Snapshot) models.Membership {
	m := MergeMembership(models.Membership{EventID: event.ID, PersonID: personID}, snap, event)
	if m.Role == "" {
		m.Role = models.RoleParticipant
	}
	if m.Attendance == "" {
		m.Attendance = models.AttendanceNotYetInvited
	}
	return m
}

// normalizeEntry applies the member-row policy rules before merging.
// Backup participants are never treated as invited, whatever the legacy
// row says.
func normalizeEntry(e legacy.MemberEntry) legacy.MemberEntry {
	if role, _ := e.Membership.String("role"); role == models.RoleBackupParticipant {
		e.Membership = e.Membership.With("attendance", models.AttendanceNotYetInvited)
	}
	return e
}

func samePerson(a, b models.Person) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) || !a.CreatedAt.Equal(b.CreatedAt) || !sameID(a.LegacyID, b.LegacyID) {
		return false
	}
	a.UpdatedAt, b.UpdatedAt = time.Time{}, time.Time{}
	a.CreatedAt, b.CreatedAt = time.Time{}, time.Time{}
	a.LegacyID, b.LegacyID = nil, nil
	return a == b
}

func sameMembership(a, b models.Membership) bool {
	for _, pair := range [][2]*time.Time{
		{a.ArrivalDate, b.ArrivalDate},
		{a.DepartureDate, b.DepartureDate},
		{a.RepliedAt, b.RepliedAt},
		{a.InvitedOn, b.InvitedOn},
	} {
		if !sameTime(pair[0], pair[1]) {
			return false
		}
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) || !a.CreatedAt.Equal(b.CreatedAt) {
		return false
	}
	a.ArrivalDate, b.ArrivalDate = nil, nil
	a.DepartureDate, b.DepartureDate = nil, nil
	a.RepliedAt, b.RepliedAt = nil, nil
	a.InvitedOn, b.InvitedOn = nil, nil
	a.UpdatedAt, b.UpdatedAt = time.Time{}, time.Time{}
	a.CreatedAt, b.CreatedAt = time.Time{}, time.Time{}
	return a == b
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
