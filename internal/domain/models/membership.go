// internal/domain/models/membership.go
package models

import (
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Membership roles.
const (
	RoleOrganizer         = "Organizer"
	RoleContactOrganizer  = "Contact Organizer"
	RoleParticipant       = "Participant"
	RoleBackupParticipant = "Backup Participant"
	RoleObserver          = "Observer"
)

// Membership attendance values.
const (
	AttendanceNotYetInvited = "Not Yet Invited"
	AttendanceInvited       = "Invited"
	AttendanceUndecided     = "Undecided"
	AttendanceConfirmed     = "Confirmed"
	AttendanceDeclined      = "Declined"
)

// Roles lists every valid membership role.
var Roles = []string{RoleOrganizer, RoleContactOrganizer, RoleParticipant, RoleBackupParticipant, RoleObserver}

// Attendances lists every valid attendance status.
var Attendances = []string{AttendanceNotYetInvited, AttendanceInvited, AttendanceUndecided, AttendanceConfirmed, AttendanceDeclined}

// Membership joins one Person to one Event.
// Exactly one document per (person_id, event_id).
type Membership struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EventID  primitive.ObjectID `bson:"event_id" json:"event_id"`
	PersonID primitive.ObjectID `bson:"person_id" json:"person_id"`

	Role       string `bson:"role" json:"role"`
	Attendance string `bson:"attendance" json:"attendance"`

	ArrivalDate   *time.Time `bson:"arrival_date,omitempty" json:"arrival_date,omitempty"`
	DepartureDate *time.Time `bson:"departure_date,omitempty" json:"departure_date,omitempty"`
	RepliedAt     *time.Time `bson:"replied_at,omitempty" json:"replied_at,omitempty"`
	InvitedOn     *time.Time `bson:"invited_on,omitempty" json:"invited_on,omitempty"`
	InvitedBy     string     `bson:"invited_by,omitempty" json:"invited_by,omitempty"`

	ShareEmail       bool `bson:"share_email" json:"share_email"`
	OwnAccommodation bool `bson:"own_accommodation" json:"own_accommodation"`
	HasGuest         bool `bson:"has_guest" json:"has_guest"`
	Offsite          bool `bson:"offsite" json:"offsite"`
	Reviewed         bool `bson:"reviewed" json:"reviewed"`

	Billing     string `bson:"billing,omitempty" json:"billing,omitempty"`
	Room        string `bson:"room,omitempty" json:"room,omitempty"`
	SpecialInfo string `bson:"special_info,omitempty" json:"special_info,omitempty"`
	StaffNotes  string `bson:"staff_notes,omitempty" json:"staff_notes,omitempty"`
	NumGuests   string `bson:"num_guests,omitempty" json:"num_guests,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
	UpdatedBy string    `bson:"updated_by" json:"updated_by"`
}

// Kind names the entity class for error reporting.
func (m *Membership) Kind() string { return "Membership" }

// Validate checks role/attendance values and required references.
func (m *Membership) Validate() error {
	var errs []error
	if m.EventID.IsZero() {
		errs = append(errs, errors.New("event can't be blank"))
	}
	if m.PersonID.IsZero() {
		errs = append(errs, errors.New("person can't be blank"))
	}
	if !contains(Roles, m.Role) {
		errs = append(errs, fmt.Errorf("role %q is not a valid role", m.Role))
	}
	if !contains(Attendances, m.Attendance) {
		errs = append(errs, fmt.Errorf("attendance %q is not a valid attendance status", m.Attendance))
	}
	if m.ArrivalDate != nil && m.DepartureDate != nil && m.DepartureDate.Before(*m.ArrivalDate) {
		errs = append(errs, errors.New("departure date must be after arrival date"))
	}
	return errors.Join(errs...)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
