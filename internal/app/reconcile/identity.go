package reconcile

import (
	"context"
	"fmt"

	"github.com/dalemusser/workshophub/internal/app/legacy"
	"github.com/dalemusser/workshophub/internal/app/system/normalize"
	"github.com/dalemusser/workshophub/internal/domain/models"
)

// IdentityField selects the identifier ResolveIdentity reconciles.
type IdentityField int

const (
	ByLegacyID IdentityField = iota
	ByEmail
)

func (f IdentityField) String() string {
	if f == ByEmail {
		return "email"
	}
	return "legacy_id"
}

// ResolveIdentity reconciles one identity field of local with snap.
//
// If no other local person holds the remote value, local adopts it. For
// legacy_id this also asks the legacy system to fold local's old record
// into the new one. If another local person already holds the value, the
// two are merged with Replace and the survivor is returned.
//
// The returned person carries the resolved value but is not saved.
func (e *Engine) ResolveIdentity(ctx context.Context, local *models.Person, snap legacy.Snapshot, field IdentityField) (*models.Person, error) {
	if field == ByEmail {
		return e.resolveEmail(ctx, local, snap)
	}
	return e.resolveLegacyID(ctx, local, snap)
}

func (e *Engine) resolveLegacyID(ctx context.Context, local *models.Person, snap legacy.Snapshot) (*models.Person, error) {
	remoteID, ok := snap.Int("legacy_id")
	if !ok || remoteID <= 0 {
		return local, nil
	}
	if local.HasLegacyID() && *local.LegacyID == remoteID {
		return local, nil
	}

	other, err := e.people.GetByLegacyID(ctx, remoteID)
	if isNotFound(err) {
		if local.HasLegacyID() {
			e.replaceRemote(ctx, *local.LegacyID, remoteID)
		}
		out := *local
		out.LegacyID = &remoteID
		return &out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find person by legacy_id %d: %w", remoteID, err)
	}
	if other.ID == local.ID {
		return other, nil
	}

	survivor, err := e.mergeDuplicates(ctx, local, other)
	if err != nil {
		return nil, err
	}
	// The survivor keeps its own legacy record; Replace has already asked the
	// legacy system to fold the loser's record into it.
	if !survivor.HasLegacyID() {
		out := *survivor
		out.LegacyID = &remoteID
		survivor = &out
	}
	return survivor, nil
}

func (e *Engine) resolveEmail(ctx context.Context, local *models.Person, snap legacy.Snapshot) (*models.Person, error) {
	raw, ok := snap.String("email")
	if !ok {
		return local, nil
	}
	email := normalize.Email(raw)
	if normalize.Email(local.Email) == email {
		return local, nil
	}

	other, err := e.people.GetByEmail(ctx, email)
	if isNotFound(err) {
		out := *local
		out.Email = email
		return &out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find person by email: %w", err)
	}
	if other.ID == local.ID {
		return other, nil
	}

	survivor, err := e.mergeDuplicates(ctx, local, other)
	if err != nil {
		return nil, err
	}
	out := *survivor
	out.Email = email
	return &out, nil
}

// mergeDuplicates keeps the better of a and b and folds the other into it.
func (e *Engine) mergeDuplicates(ctx context.Context, a, b *models.Person) (*models.Person, error) {
	survivor, err := e.betterRecord(ctx, a, b)
	if err != nil {
		return nil, fmt.Errorf("compare duplicates: %w", err)
	}
	loser := a
	if survivor == a {
		loser = b
	}
	if err := e.Replace(ctx, loser, survivor); err != nil {
		return nil, err
	}
	return survivor, nil
}
