package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/workshophub/internal/app/legacy"
	"github.com/dalemusser/workshophub/internal/domain/models"
	"go.uber.org/zap"
)

// ErrInvalidRecord is returned by PushMember when the local records would
// not survive a round trip through the legacy system.
var ErrInvalidRecord = errors.New("record is invalid")

// Legacy date layouts written by push.
const (
	legacyDate     = "2006-01-02"
	legacyDateTime = "2006-01-02 15:04:05"
)

// PersonSnapshot renders p in the legacy record shape. Blank fields are
// left out so the legacy side keeps what it has.
func PersonSnapshot(p *models.Person) legacy.Snapshot {
	raw := map[string]any{"email": p.Email}
	if p.HasLegacyID() {
		raw["legacy_id"] = *p.LegacyID
	}
	for _, f := range personFields {
		if v := *f.get(p); v != "" {
			raw[f.key] = v
		}
	}
	if !p.UpdatedAt.IsZero() {
		raw["updated_at"] = p.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if p.UpdatedBy != "" {
		raw["updated_by"] = p.UpdatedBy
	}
	return legacy.ParseSnapshot(raw)
}

// MembershipSnapshot renders m in the legacy record shape. Dates are
// written in event's time zone.
func MembershipSnapshot(m *models.Membership, event *models.Event) legacy.Snapshot {
	loc := event.Location()
	raw := map[string]any{}
	for _, f := range membershipStrings {
		if v := *f.get(m); v != "" {
			raw[f.key] = v
		}
	}
	for _, f := range membershipBools {
		raw[f.key] = *f.get(m)
	}
	for _, f := range membershipDates {
		if t := *f.get(m); t != nil {
			raw[f.key] = t.In(loc).Format(legacyDate)
		}
	}
	if m.InvitedOn != nil {
		raw["invited_on"] = m.InvitedOn.In(loc).Format(legacyDateTime)
		if m.InvitedBy != "" {
			raw["invited_by"] = m.InvitedBy
		}
	}
	if m.RepliedAt != nil {
		raw["replied_at"] = m.RepliedAt.UTC().Format(time.RFC3339)
	}
	if !m.UpdatedAt.IsZero() {
		raw["updated_at"] = m.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if m.UpdatedBy != "" {
		raw["updated_by"] = m.UpdatedBy
	}
	return legacy.ParseSnapshot(raw)
}

// PushMember sends the local membership m and its person to the legacy
// system. A person without a legacy_id is linked to the id the legacy
// system stores it under. The pushed person is returned.
func (e *Engine) PushMember(ctx context.Context, m *models.Membership) (*models.Person, error) {
	event, err := e.events.GetByID(ctx, m.EventID)
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	p, err := e.people.GetByID(ctx, m.PersonID)
	if err != nil {
		return nil, fmt.Errorf("load person: %w", err)
	}
	if err := errors.Join(p.Validate(), m.Validate()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	id, err := e.remote.AddPerson(ctx, PersonSnapshot(p))
	if err != nil {
		return nil, fmt.Errorf("push person %s: %w", p.Email, err)
	}
	if !p.HasLegacyID() && id > 0 {
		resolved, err := e.ResolveIdentity(ctx, p, legacy.ParseSnapshot(map[string]any{"legacy_id": id}), ByLegacyID)
		if err != nil {
			return nil, err
		}
		if err := e.people.Update(ctx, resolved); err != nil {
			return nil, fmt.Errorf("link person to legacy_id %d: %w", id, err)
		}
		p = resolved
	}
	if !p.HasLegacyID() {
		return nil, fmt.Errorf("push person %s: legacy system returned no legacy_id", p.Email)
	}

	entry := legacy.MemberEntry{
		EventCode:  event.Code,
		Person:     PersonSnapshot(p),
		Membership: MembershipSnapshot(m, event),
	}
	if err := e.remote.AddMember(ctx, event.Code, entry); err != nil {
		return nil, fmt.Errorf("push membership of %s in %s: %w", p.Email, event.Code, err)
	}
	e.log.Info("pushed membership to legacy system",
		zap.String("event_code", event.Code),
		zap.Int64("legacy_id", *p.LegacyID))
	return p, nil
}
