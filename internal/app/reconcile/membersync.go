package reconcile

import (
	"context"
	"errors"
	"fmt"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/workshophub/internal/app/legacy"
	"github.com/dalemusser/workshophub/internal/app/system/normalize"
	"github.com/dalemusser/workshophub/internal/domain/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrEventNotFound is returned when an event code matches no local event.
var ErrEventNotFound = errors.New("event not found")

// errReported marks a record-level failure that is already in the ErrorReport.
var errReported = errors.New("reported")

// Options controls one sync run.
type Options struct {
	Force bool // ignore the throttle window
}

// SyncResult summarizes one sync run.
type SyncResult struct {
	RunID      string
	Skipped    bool
	Created    int
	Updated    int
	Pruned     int
	Failed     int
	Lectures   int
	Overbooked bool
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeCreated
	outcomeUpdated
	outcomeFailed
)

// SyncEvent pulls the legacy member list of event and makes the local
// memberships match it. Records that fail to save are reported to staff
// and skipped; the run still prunes and checks capacity. Only a failure
// to fetch the list is returned as an error, and in that case nothing
// local is changed. After the members, the event's lectures are mirrored.
//
// A run is skipped when event is nil, when the previous run finished
// inside the throttle window (unless opts.Force), or when another run
// holds the event's sync lease.
func (e *Engine) SyncEvent(ctx context.Context, event *models.Event, opts Options) (SyncResult, error) {
	var res SyncResult
	if event == nil {
		res.Skipped = true
		return res, nil
	}
	if !opts.Force && event.SyncTime != nil && e.now().Sub(*event.SyncTime) < e.cfg.Throttle {
		res.Skipped = true
		return res, nil
	}

	res.RunID = uuid.NewString()
	log := e.log.With(zap.String("event_code", event.Code), zap.String("run_id", res.RunID))

	if e.locks != nil {
		err := e.locks.Acquire(ctx, event.Code, res.RunID, e.cfg.LockTTL)
		if errors.Is(err, ErrLocked) {
			log.Info("membership sync already running; skipped")
			res.Skipped = true
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("acquire sync lease for %s: %w", event.Code, err)
		}
		defer func() {
			if err := e.locks.Release(context.WithoutCancel(ctx), event.Code, res.RunID); err != nil {
				log.Warn("release sync lease", zap.Error(err))
			}
		}()
	}

	report := e.newReport(event)

	entries, skipped, err := e.remote.ListMembers(ctx, event.Code)
	if err != nil {
		report.AddMessage(KindLegacyConnector, fmt.Sprintf("could not fetch the member list of %s: %v", event.Code, err))
		e.sendReport(ctx, report)
		e.audit.SyncFailed(ctx, res.RunID, event.Code, err.Error())
		return res, fmt.Errorf("list members of %s: %w", event.Code, err)
	}
	for _, s := range skipped {
		report.AddMessage(KindLegacyConnector, s.Error())
	}
	if len(entries) == 0 {
		report.AddMessage(KindLegacyConnector, fmt.Sprintf("the legacy system returned no members for %s", event.Code))
		e.sendReport(ctx, report)
		e.audit.SyncFailed(ctx, res.RunID, event.Code, "empty member list")
		log.Warn("empty legacy member list; local memberships left unchanged")
		return res, nil
	}

	remoteIDs := make(map[int64]bool, len(entries))
	remoteEmails := make(map[string]bool, len(entries))
	for _, en := range entries {
		if id, ok := en.LegacyID(); ok {
			remoteIDs[id] = true
		}
		if email := normalize.Email(en.Email()); email != "" {
			remoteEmails[email] = true
		}
	}

	for _, en := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		switch e.syncEntry(ctx, event, normalizeEntry(en), report, res.RunID) {
		case outcomeCreated:
			res.Created++
		case outcomeUpdated:
			res.Updated++
		case outcomeFailed:
			res.Failed++
		}
	}

	pruned, err := e.prune(ctx, event, remoteIDs, remoteEmails, report, res.RunID)
	res.Pruned = pruned
	if err != nil {
		e.sendReport(ctx, report)
		return res, err
	}

	res.Lectures = e.syncLectures(ctx, event, report, log)

	now := e.now()
	if err := e.events.MarkSynced(ctx, event.ID, now); err != nil {
		log.Warn("mark event synced", zap.Error(err))
	} else {
		event.SyncTime = &now
	}

	c, err := e.capacity(ctx, event)
	switch {
	case err != nil:
		report.AddMessage(KindEvent, fmt.Sprintf("capacity check failed: %v", err))
	case c.Overbooked():
		res.Overbooked = true
		report.Add(event, c.String())
		e.audit.EventOverbooked(ctx, res.RunID, event.Code, c.Total(), c.Limit, c.Counts)
	}

	e.sendReport(ctx, report)
	e.audit.SyncCompleted(ctx, res.RunID, event.Code, res.Created, res.Updated, res.Pruned, res.Failed)
	log.Info("membership sync finished",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("pruned", res.Pruned),
		zap.Int("failed", res.Failed),
		zap.Int("lectures", res.Lectures))
	return res, nil
}

// SyncEventByCode runs SyncEvent for the event with the given code.
func (e *Engine) SyncEventByCode(ctx context.Context, code string, opts Options) (SyncResult, error) {
	event, err := e.events.GetByCode(ctx, normalize.EventCode(code))
	if isNotFound(err) {
		return SyncResult{}, ErrEventNotFound
	}
	if err != nil {
		return SyncResult{}, fmt.Errorf("load event %s: %w", code, err)
	}
	return e.SyncEvent(ctx, event, opts)
}

// SyncUpcoming syncs every event that has not ended yet. A failing event
// does not stop the others.
func (e *Engine) SyncUpcoming(ctx context.Context, opts Options) error {
	events, err := e.events.ListUpcoming(ctx, e.now())
	if err != nil {
		return fmt.Errorf("list upcoming events: %w", err)
	}
	var errs []error
	for i := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := e.SyncEvent(ctx, &events[i], opts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) syncEntry(ctx context.Context, event *models.Event, entry legacy.MemberEntry, report *ErrorReport, runID string) outcome {
	p, err := e.findLocalPerson(ctx, entry)
	if err != nil {
		e.reportEntry(report, entry, err)
		return outcomeFailed
	}

	personChanged := false
	if p == nil {
		p, err = e.createPerson(ctx, entry, report)
	} else {
		p, personChanged, err = e.reconcilePerson(ctx, p, entry.Person, report)
	}
	if err != nil {
		if !errors.Is(err, errReported) {
			e.reportEntry(report, entry, err)
		}
		return outcomeFailed
	}

	out, err := e.reconcileMembership(ctx, event, p, entry.Membership, report, runID)
	if err != nil {
		return outcomeFailed
	}
	if out == outcomeUnchanged && personChanged {
		return outcomeUpdated
	}
	return out
}

// findLocalPerson finds the person of a remote row by legacy_id, then by
// email. A person found only by email and not yet linked is given the
// row's legacy_id. It returns nil when neither matches.
func (e *Engine) findLocalPerson(ctx context.Context, entry legacy.MemberEntry) (*models.Person, error) {
	id, hasID := entry.LegacyID()
	if hasID {
		p, err := e.people.GetByLegacyID(ctx, id)
		if err == nil {
			return p, nil
		}
		if !isNotFound(err) {
			return nil, fmt.Errorf("find person by legacy_id %d: %w", id, err)
		}
	}

	email := normalize.Email(entry.Email())
	if email == "" {
		return nil, nil
	}
	p, err := e.people.GetByEmail(ctx, email)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find person by email: %w", err)
	}
	if hasID && !p.HasLegacyID() {
		p.LegacyID = &id
		if err := e.people.Update(ctx, p); err != nil {
			return nil, fmt.Errorf("link person to legacy_id %d: %w", id, err)
		}
	}
	return p, nil
}

func (e *Engine) createPerson(ctx context.Context, entry legacy.MemberEntry, report *ErrorReport) (*models.Person, error) {
	p := PersonFromSnapshot(entry.Person)
	if err := p.Validate(); err != nil {
		report.Add(&p, "")
		return nil, errReported
	}
	err := e.people.Create(ctx, &p)
	if wafflemongo.IsDup(err) {
		// Created by someone else since findLocalPerson looked.
		existing, ferr := e.findLocalPerson(ctx, entry)
		if ferr != nil {
			return nil, ferr
		}
		if existing != nil {
			return existing, nil
		}
	}
	if err != nil {
		report.Add(&p, err.Error())
		return nil, errReported
	}
	return &p, nil
}

// reconcilePerson merges snap into p and saves the result when it
// differs. When snap is newer its identity fields are resolved first,
// which may fold p into another person; the returned person is the one
// that now stands for the remote record.
func (e *Engine) reconcilePerson(ctx context.Context, p *models.Person, snap legacy.Snapshot, report *ErrorReport) (*models.Person, bool, error) {
	base := p
	if IsRemoteNewer(p.UpdatedAt, snap) {
		var err error
		if base, err = e.ResolveIdentity(ctx, base, snap, ByLegacyID); err != nil {
			return nil, false, err
		}
		if base, err = e.ResolveIdentity(ctx, base, snap, ByEmail); err != nil {
			return nil, false, err
		}
	}

	merged := MergePerson(*base, snap)
	if base.ID == p.ID && samePerson(merged, *p) {
		return p, false, nil
	}
	if err := merged.Validate(); err != nil {
		report.Add(&merged, "")
		return nil, false, errReported
	}
	if err := e.people.Update(ctx, &merged); err != nil {
		if wafflemongo.IsDup(err) {
			report.Add(&merged, "email or legacy_id is already used by another person")
		} else {
			report.Add(&merged, err.Error())
		}
		return nil, false, errReported
	}
	if merged.Email != p.Email || merged.ID != p.ID {
		if err := e.syncLoginEmail(ctx, &merged); err != nil {
			e.log.Warn("update login email", zap.String("person_id", merged.ID.Hex()), zap.Error(err))
		}
	}
	return &merged, true, nil
}

// reconcileMembership creates or updates p's membership in event from snap.
// Failures are added to report and returned.
func (e *Engine) reconcileMembership(ctx context.Context, event *models.Event, p *models.Person, snap legacy.Snapshot, report *ErrorReport, runID string) (outcome, error) {
	m, err := e.memberships.Get(ctx, p.ID, event.ID)
	if isNotFound(err) {
		nm := MembershipFromSnapshot(event, p.ID, snap)
		if err := nm.Validate(); err != nil {
			report.AddFor(&nm, p.Name(), "")
			return outcomeFailed, errReported
		}
		err := e.memberships.Create(ctx, &nm)
		if wafflemongo.IsDup(err) {
			// Another row of the same list already created it.
			return outcomeUnchanged, nil
		}
		if err != nil {
			report.AddFor(&nm, p.Name(), err.Error())
			return outcomeFailed, errReported
		}
		e.audit.MembershipCreated(ctx, runID, event.Code, p.ID, nm.Role)
		return outcomeCreated, nil
	}
	if err != nil {
		report.AddFor(&models.Membership{PersonID: p.ID, EventID: event.ID}, p.Name(), err.Error())
		return outcomeFailed, errReported
	}

	merged := MergeMembership(*m, snap, event)
	if sameMembership(merged, *m) {
		return outcomeUnchanged, nil
	}
	if err := merged.Validate(); err != nil {
		report.AddFor(&merged, p.Name(), "")
		return outcomeFailed, errReported
	}
	if err := e.memberships.Update(ctx, &merged); err != nil {
		report.AddFor(&merged, p.Name(), err.Error())
		return outcomeFailed, errReported
	}
	return outcomeUpdated, nil
}

// prune deletes memberships of event whose person matches neither a
// legacy_id nor an email of the remote list.
func (e *Engine) prune(ctx context.Context, event *models.Event, ids map[int64]bool, emails map[string]bool, report *ErrorReport, runID string) (int, error) {
	ms, err := e.memberships.ListByEvent(ctx, event.ID)
	if err != nil {
		return 0, fmt.Errorf("list memberships of %s: %w", event.Code, err)
	}
	pruned := 0
	for i := range ms {
		m := &ms[i]
		var email string
		p, err := e.people.GetByID(ctx, m.PersonID)
		switch {
		case err == nil:
			if p.HasLegacyID() && ids[*p.LegacyID] {
				continue
			}
			email = normalize.Email(p.Email)
			if emails[email] {
				continue
			}
		case isNotFound(err):
			// Orphaned; its person is gone.
		default:
			report.AddFor(m, m.PersonID.Hex(), err.Error())
			continue
		}
		if err := e.memberships.Delete(ctx, m.ID); err != nil {
			report.AddFor(m, email, fmt.Sprintf("could not remove stale membership: %v", err))
			continue
		}
		pruned++
		e.audit.MembershipPruned(ctx, runID, event.Code, m.PersonID, email)
	}
	return pruned, nil
}

func (e *Engine) reportEntry(report *ErrorReport, entry legacy.MemberEntry, err error) {
	p := PersonFromSnapshot(entry.Person)
	report.Add(&p, err.Error())
}

func (e *Engine) sendReport(ctx context.Context, report *ErrorReport) {
	if err := report.Send(ctx); err != nil {
		e.log.Warn("send sync error report", zap.String("event_code", report.event.Code), zap.Error(err))
	}
}
