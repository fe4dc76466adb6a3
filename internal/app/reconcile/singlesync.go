package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/workshophub/internal/app/legacy"
	"github.com/dalemusser/workshophub/internal/domain/models"
	"go.uber.org/zap"
)

// SyncMember reconciles one membership and its person with the legacy
// system without pulling the whole member list. A person with no legacy_id
// is first looked up in the legacy system by email. If the legacy system
// does not know the person or the membership, nothing changes.
func (e *Engine) SyncMember(ctx context.Context, m *models.Membership) error {
	event, err := e.events.GetByID(ctx, m.EventID)
	if err != nil {
		return fmt.Errorf("load event: %w", err)
	}
	p, err := e.people.GetByID(ctx, m.PersonID)
	if err != nil {
		return fmt.Errorf("load person: %w", err)
	}

	report := e.newReport(event)
	defer e.sendReport(ctx, report)

	if !p.HasLegacyID() {
		if p, err = e.linkByEmail(ctx, p, report); err != nil || p == nil {
			return err
		}
	}
	id := *p.LegacyID

	entry, err := e.remote.GetMember(ctx, event.Code, id)
	if errors.Is(err, legacy.ErrNotFound) {
		return nil
	}
	if err != nil {
		return e.connectorFailure(report, fmt.Sprintf("could not fetch member %d of %s", id, event.Code), err)
	}
	snap, err := e.remote.GetPerson(ctx, id)
	switch {
	case err == nil:
		entry.Person = snap
	case !errors.Is(err, legacy.ErrNotFound):
		return e.connectorFailure(report, fmt.Sprintf("could not fetch person %d", id), err)
	}
	entry = normalizeEntry(entry)

	p, _, err = e.reconcilePerson(ctx, p, entry.Person, report)
	if errors.Is(err, errReported) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := e.reconcileMembership(ctx, event, p, entry.Membership, report, ""); err != nil && !errors.Is(err, errReported) {
		return err
	}
	return nil
}

// linkByEmail searches the legacy system for p by email and adopts the
// legacy_id found, merging with any local person that already holds it.
// It returns nil when the legacy system has no such person.
func (e *Engine) linkByEmail(ctx context.Context, p *models.Person, report *ErrorReport) (*models.Person, error) {
	snap, err := e.remote.SearchPerson(ctx, p.Email)
	if errors.Is(err, legacy.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, e.connectorFailure(report, fmt.Sprintf("could not search for %s", p.Email), err)
	}
	if id, ok := snap.Int("legacy_id"); !ok || id <= 0 {
		return nil, nil
	}

	resolved, err := e.ResolveIdentity(ctx, p, snap, ByLegacyID)
	if err != nil {
		return nil, err
	}
	if err := e.people.Update(ctx, resolved); err != nil {
		return nil, fmt.Errorf("link person to legacy_id %d: %w", *resolved.LegacyID, err)
	}
	e.log.Info("linked person to legacy record",
		zap.String("person_id", resolved.ID.Hex()),
		zap.Int64("legacy_id", *resolved.LegacyID))
	return resolved, nil
}

func (e *Engine) connectorFailure(report *ErrorReport, msg string, err error) error {
	report.AddMessage(KindLegacyConnector, fmt.Sprintf("%s: %v", msg, err))
	return fmt.Errorf("%s: %w", msg, err)
}
