package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/workshophub/internal/app/legacy"
	"github.com/dalemusser/workshophub/internal/app/system/normalize"
	"github.com/dalemusser/workshophub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Fields an ErrorSet message can be attached to.
const (
	FieldCode       = "code"
	FieldEvent      = "event"
	FieldPerson     = "person"
	FieldMembership = "membership"
	FieldAttendance = "attendance"
)

// User-facing lookup messages.
const (
	msgUnavailable   = "Invitations cannot be checked right now. Please try again later."
	msgNotFound      = "Invitation not found."
	msgNoEvent       = "The invitation does not name an event."
	msgNoPerson      = "The invitation does not name a person."
	msgExpired       = "This invitation has expired."
	msgNoMembership  = "You are not registered for this event."
	msgDeclined      = "You have already declined this invitation."
	msgNotYetInvited = "You have not been invited to this event yet."
)

// ErrorSet is the failure of an invitation lookup: human-readable
// messages keyed by field. NotFound marks lookups that name something
// that does not exist.
type ErrorSet struct {
	NotFound bool
	fields   []string
	msgs     map[string][]string
}

// Add attaches msg to field.
func (s *ErrorSet) Add(field, msg string) {
	if s.msgs == nil {
		s.msgs = make(map[string][]string)
	}
	if _, ok := s.msgs[field]; !ok {
		s.fields = append(s.fields, field)
	}
	s.msgs[field] = append(s.msgs[field], msg)
}

// Fields returns the fields that have messages, in the order first added.
func (s *ErrorSet) Fields() []string { return s.fields }

// Field returns the messages for field.
func (s *ErrorSet) Field(field string) []string { return s.msgs[field] }

// Messages returns every message in the order added.
func (s *ErrorSet) Messages() []string {
	var out []string
	for _, f := range s.fields {
		out = append(out, s.msgs[f]...)
	}
	return out
}

// Empty reports whether no message has been added.
func (s *ErrorSet) Empty() bool { return len(s.fields) == 0 }

func (s *ErrorSet) Error() string { return strings.Join(s.Messages(), " ") }

func notFound(field, msg string) *ErrorSet {
	s := &ErrorSet{NotFound: true}
	s.Add(field, msg)
	return s
}

func single(field, msg string) *ErrorSet {
	s := &ErrorSet{}
	s.Add(field, msg)
	return s
}

// LookupInvitation resolves an RSVP code to a usable invitation. A code
// unknown locally is checked with the legacy system, which may lead to a
// full sync of the event and a new local invitation. Every failure is
// returned as an *ErrorSet.
func (e *Engine) LookupInvitation(ctx context.Context, code string) (*models.Invitation, error) {
	code = normalize.InvitationCode(code)

	inv, err := e.invitations.GetByCode(ctx, code)
	switch {
	case err == nil:
	case isNotFound(err):
		var set *ErrorSet
		if inv, set = e.fetchInvitation(ctx, code); set != nil {
			return nil, set
		}
	default:
		e.log.Error("load invitation", zap.Error(err))
		return nil, single(FieldCode, msgUnavailable)
	}

	if set := e.checkInvitation(ctx, inv); set != nil {
		return nil, set
	}
	return inv, nil
}

// fetchInvitation builds a local invitation from the legacy RSVP check.
func (e *Engine) fetchInvitation(ctx context.Context, code string) (*models.Invitation, *ErrorSet) {
	r, err := e.remote.CheckRSVP(ctx, code)
	if errors.Is(err, legacy.ErrNotFound) {
		return nil, notFound(FieldCode, msgNotFound)
	}
	if err != nil {
		e.log.Warn("legacy rsvp check", zap.Error(err))
		return nil, single(FieldCode, msgUnavailable)
	}
	if r.Denied != "" {
		return nil, single(FieldCode, r.Denied)
	}
	set := &ErrorSet{}
	if r.EventCode == "" {
		set.Add(FieldEvent, msgNoEvent)
	}
	if r.LegacyID <= 0 {
		set.Add(FieldPerson, msgNoPerson)
	}
	if !set.Empty() {
		return nil, set
	}

	event, err := e.events.GetByCode(ctx, normalize.EventCode(r.EventCode))
	if isNotFound(err) {
		return nil, notFound(FieldEvent, fmt.Sprintf("Event %s not found.", r.EventCode))
	}
	if err != nil {
		e.log.Error("load event", zap.String("event_code", r.EventCode), zap.Error(err))
		return nil, single(FieldEvent, msgUnavailable)
	}

	if event.StartDate.After(e.now()) {
		e.syncForInvitation(ctx, event, r.LegacyID)
	}

	p, err := e.people.GetByLegacyID(ctx, r.LegacyID)
	if isNotFound(err) {
		return nil, notFound(FieldPerson, msgNoMembership)
	}
	if err != nil {
		e.log.Error("load person", zap.Int64("legacy_id", r.LegacyID), zap.Error(err))
		return nil, single(FieldPerson, msgUnavailable)
	}
	m, err := e.memberships.Get(ctx, p.ID, event.ID)
	if isNotFound(err) {
		return nil, notFound(FieldMembership, msgNoMembership)
	}
	if err != nil {
		e.log.Error("load membership", zap.String("person_id", p.ID.Hex()), zap.Error(err))
		return nil, single(FieldMembership, msgUnavailable)
	}

	inv := &models.Invitation{
		Code:         code,
		MembershipID: m.ID,
		Expires:      event.StartDate,
		InvitedBy:    e.cfg.StaffName,
		CreatedAt:    e.now(),
	}
	err = e.invitations.Create(ctx, inv)
	if wafflemongo.IsDup(err) {
		if inv, err = e.invitations.GetByCode(ctx, code); err == nil {
			return inv, nil
		}
	}
	if err != nil {
		e.log.Error("create invitation", zap.Error(err))
		return nil, single(FieldCode, msgUnavailable)
	}
	e.audit.InvitationIssued(ctx, event.Code, p.ID)
	return inv, nil
}

// syncForInvitation refreshes event before an invitation is issued for
// legacyID. The throttle is honoured; a forced run follows only when the
// throttle skipped the sync and the membership is still missing locally.
func (e *Engine) syncForInvitation(ctx context.Context, event *models.Event, legacyID int64) {
	res, err := e.SyncEvent(ctx, event, Options{})
	if err == nil && res.Skipped && !e.hasMembership(ctx, event.ID, legacyID) {
		_, err = e.SyncEvent(ctx, event, Options{Force: true})
	}
	if err != nil {
		e.log.Warn("sync before invitation", zap.String("event_code", event.Code), zap.Error(err))
	}
}

func (e *Engine) hasMembership(ctx context.Context, eventID primitive.ObjectID, legacyID int64) bool {
	p, err := e.people.GetByLegacyID(ctx, legacyID)
	if err != nil {
		return false
	}
	_, err = e.memberships.Get(ctx, p.ID, eventID)
	return err == nil
}

// checkInvitation returns the reasons inv cannot be used, or nil.
func (e *Engine) checkInvitation(ctx context.Context, inv *models.Invitation) *ErrorSet {
	now := e.now()
	set := &ErrorSet{}
	if inv.IsExpired(now) {
		set.Add(FieldCode, msgExpired)
	}

	m, err := e.memberships.GetByID(ctx, inv.MembershipID)
	if isNotFound(err) {
		return notFound(FieldMembership, msgNoMembership)
	}
	if err != nil {
		e.log.Error("load membership", zap.Error(err))
		return single(FieldMembership, msgUnavailable)
	}
	event, err := e.events.GetByID(ctx, m.EventID)
	if isNotFound(err) {
		return notFound(FieldEvent, msgNotFound)
	}
	if err != nil {
		e.log.Error("load event", zap.Error(err))
		return single(FieldEvent, msgUnavailable)
	}

	if EventEnded(event, now) {
		set.Add(FieldEvent, fmt.Sprintf("%s has already ended.", event.Name))
	}
	switch m.Attendance {
	case models.AttendanceDeclined:
		set.Add(FieldAttendance, msgDeclined)
	case models.AttendanceNotYetInvited:
		set.Add(FieldAttendance, msgNotYetInvited)
	}
	if set.Empty() {
		return nil
	}
	return set
}

// EventEnded reports whether ev's last day is over in its own time zone.
func EventEnded(ev *models.Event, now time.Time) bool {
	if ev.EndDate.IsZero() {
		return false
	}
	loc := ev.Location()
	end := ev.EndDate.In(loc)
	next := time.Date(end.Year(), end.Month(), end.Day()+1, 0, 0, 0, 0, loc)
	return !now.Before(next)
}
