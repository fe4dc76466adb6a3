package reconcile

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dalemusser/workshophub/internal/app/system/mailer"
	"github.com/dalemusser/workshophub/internal/app/system/normalize"
	"github.com/dalemusser/workshophub/internal/domain/models"
	"go.uber.org/zap"
)

// Replace folds loser into survivor. Memberships, invitations, lectures and
// the login account move to survivor, then loser is deleted. These writes
// share one transaction where the database supports it, and each step is
// safe to repeat, so a failed call can be retried with the same pair.
//
// When both people carry different legacy ids the matching legacy-side
// merge is queued after the local writes commit.
func (e *Engine) Replace(ctx context.Context, loser, survivor *models.Person) error {
	if loser.ID == survivor.ID {
		return nil
	}

	err := e.tx.Do(ctx, func(ctx context.Context) error {
		if err := e.moveMemberships(ctx, loser, survivor); err != nil {
			return err
		}
		if _, err := e.lectures.Reparent(ctx, loser.ID, survivor.ID); err != nil {
			return fmt.Errorf("reparent lectures: %w", err)
		}
		if err := e.moveLogin(ctx, loser, survivor); err != nil {
			return err
		}
		if err := e.people.Delete(ctx, loser.ID); err != nil {
			return fmt.Errorf("delete person: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace person %s with %s: %w", loser.ID.Hex(), survivor.ID.Hex(), err)
	}

	queued := false
	if loser.HasLegacyID() && survivor.HasLegacyID() {
		queued = e.replaceRemote(ctx, *loser.LegacyID, *survivor.LegacyID)
	}

	e.log.Info("merged duplicate person",
		zap.String("loser_id", loser.ID.Hex()),
		zap.String("survivor_id", survivor.ID.Hex()),
		zap.Bool("remote_merge_queued", queued))
	e.audit.PersonMerged(ctx, loser, survivor)
	e.notifyMerge(ctx, loser, survivor, queued)
	return nil
}

func (e *Engine) moveMemberships(ctx context.Context, loser, survivor *models.Person) error {
	ms, err := e.memberships.ListByPerson(ctx, loser.ID)
	if err != nil {
		return fmt.Errorf("list memberships: %w", err)
	}
	for i := range ms {
		m := ms[i]
		existing, err := e.memberships.Get(ctx, survivor.ID, m.EventID)
		switch {
		case err == nil:
			if _, err := e.invitations.RepointMembership(ctx, m.ID, existing.ID); err != nil {
				return fmt.Errorf("repoint invitations: %w", err)
			}
			if err := e.memberships.Delete(ctx, m.ID); err != nil {
				return fmt.Errorf("delete duplicate membership: %w", err)
			}
		case isNotFound(err):
			m.PersonID = survivor.ID
			if err := e.memberships.Update(ctx, &m); err != nil {
				return fmt.Errorf("reparent membership: %w", err)
			}
		default:
			return fmt.Errorf("find survivor membership: %w", err)
		}
	}
	return nil
}

// moveLogin leaves survivor with at most one login, addressed to survivor's
// email and already confirmed.
func (e *Engine) moveLogin(ctx context.Context, loser, survivor *models.Person) error {
	ll, err := e.findLogin(ctx, loser)
	if err != nil {
		return err
	}
	sl, err := e.findLogin(ctx, survivor)
	if err != nil {
		return err
	}

	if ll != nil && sl != nil && ll.ID != sl.ID {
		if err := e.logins.Delete(ctx, ll.ID); err != nil {
			return fmt.Errorf("delete duplicate login: %w", err)
		}
		ll = nil
	}
	l := sl
	if l == nil {
		l = ll
	}
	if l == nil {
		return nil
	}
	return e.relinkLogin(ctx, l, survivor)
}

// findLogin returns p's login by person id, then by email, or nil.
func (e *Engine) findLogin(ctx context.Context, p *models.Person) (*models.Login, error) {
	l, err := e.logins.GetByPerson(ctx, p.ID)
	if err == nil {
		return l, nil
	}
	if !isNotFound(err) {
		return nil, fmt.Errorf("find login: %w", err)
	}
	email := normalize.Email(p.Email)
	if email == "" {
		return nil, nil
	}
	l, err = e.logins.GetByEmail(ctx, email)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find login: %w", err)
	}
	return l, nil
}

// relinkLogin points l at p and p's email. Merges and legacy-driven email
// changes are trusted, so no reconfirmation is asked for.
func (e *Engine) relinkLogin(ctx context.Context, l *models.Login, p *models.Person) error {
	email := normalize.Email(p.Email)
	if l.PersonID == p.ID && l.Email == email && l.UnconfirmedEmail == "" && l.ConfirmedAt != nil {
		return nil
	}
	l.PersonID = p.ID
	l.Email = email
	l.UnconfirmedEmail = ""
	if l.ConfirmedAt == nil {
		now := e.now()
		l.ConfirmedAt = &now
	}
	if err := e.logins.Update(ctx, l); err != nil {
		return fmt.Errorf("relink login: %w", err)
	}
	return nil
}

// syncLoginEmail keeps p's login address in step after an email change.
func (e *Engine) syncLoginEmail(ctx context.Context, p *models.Person) error {
	l, err := e.logins.GetByPerson(ctx, p.ID)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find login: %w", err)
	}
	return e.relinkLogin(ctx, l, p)
}

// replaceRemote queues a legacy-side merge of replaceID into withID and
// reports whether it was queued. Failures are logged, never returned.
func (e *Engine) replaceRemote(ctx context.Context, replaceID, withID int64) bool {
	if replaceID <= 0 || withID <= 0 || replaceID == withID {
		return false
	}
	if err := e.merges.Enqueue(ctx, replaceID, withID); err != nil {
		e.log.Warn("could not queue legacy person merge",
			zap.Int64("replace_legacy_id", replaceID),
			zap.Int64("with_legacy_id", withID),
			zap.Error(err))
		return false
	}
	e.audit.RemoteMergeQueued(ctx, replaceID, withID)
	return true
}

func (e *Engine) notifyMerge(ctx context.Context, loser, survivor *models.Person, queued bool) {
	if e.cfg.StaffEmail == "" || e.notifier == nil {
		return
	}
	msg := mailer.BuildPersonMergeEmail(mailer.PersonMergeData{
		SiteName:         e.cfg.SiteName,
		LoserName:        loser.Name(),
		LoserEmail:       loser.Email,
		LoserLegacyID:    legacyIDString(loser),
		SurvivorName:     survivor.Name(),
		SurvivorEmail:    survivor.Email,
		SurvivorLegacyID: legacyIDString(survivor),
		RemoteQueued:     queued,
	})
	msg.To = e.cfg.StaffEmail
	if err := e.notifier.Send(ctx, msg); err != nil {
		e.log.Warn("could not send merge notice", zap.Error(err))
	}
}

func legacyIDString(p *models.Person) string {
	if !p.HasLegacyID() {
		return ""
	}
	return strconv.FormatInt(*p.LegacyID, 10)
}
