package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dalemusser/workshophub/internal/app/system/mailer"
	"github.com/dalemusser/workshophub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Entity kinds an ErrorReport groups issues by.
const (
	KindPerson          = "Person"
	KindMembership      = "Membership"
	KindEvent           = "Event"
	KindLegacyConnector = "LegacyConnector"
)

// Reportable is a record an ErrorReport can describe.
type Reportable interface {
	Kind() string
	Validate() error
}

// Issue is one reported problem.
type Issue struct {
	Kind     string
	Subject  string
	Message  string
	Person   *models.Person     // set for Person issues
	PersonID primitive.ObjectID // owning person of a Membership issue
}

// ErrorReport collects record-level failures during one sync run and
// mails them to staff at the end. It is not safe for concurrent use.
type ErrorReport struct {
	event    *models.Event
	cfg      Config
	notifier Notifier
	log      *zap.Logger

	issues map[string][]Issue
	seen   map[string]bool
}

func (e *Engine) newReport(event *models.Event) *ErrorReport {
	return &ErrorReport{
		event:    event,
		cfg:      e.cfg,
		notifier: e.notifier,
		log:      e.log,
		issues:   make(map[string][]Issue),
		seen:     make(map[string]bool),
	}
}

// Add records a problem with rec. An empty msg is replaced by rec's own
// validation errors, one issue per error.
func (r *ErrorReport) Add(rec Reportable, msg string) {
	r.AddFor(rec, describe(rec), msg)
}

// AddFor is Add with an explicit subject line.
func (r *ErrorReport) AddFor(rec Reportable, subject, msg string) {
	is := Issue{Kind: rec.Kind(), Subject: subject}
	switch v := rec.(type) {
	case *models.Person:
		is.Person = v
		is.PersonID = v.ID
	case *models.Membership:
		is.PersonID = v.PersonID
	}

	if msg != "" {
		is.Message = msg
		r.push(is)
		return
	}
	for _, m := range validationMessages(rec) {
		is.Message = m
		r.push(is)
	}
}

// AddMessage records a problem not tied to a record, such as a failed
// call to the legacy system.
func (r *ErrorReport) AddMessage(kind, msg string) {
	r.push(Issue{Kind: kind, Message: msg})
}

func (r *ErrorReport) push(is Issue) {
	key := is.Kind + "\x00" + is.Subject + "\x00" + is.Message
	if r.seen[key] {
		return
	}
	r.seen[key] = true
	r.issues[is.Kind] = append(r.issues[is.Kind], is)
}

// IsEmpty reports whether nothing has been recorded.
func (r *ErrorReport) IsEmpty() bool { return r.Len() == 0 }

// Len returns the number of recorded issues.
func (r *ErrorReport) Len() int {
	n := 0
	for _, list := range r.issues {
		n += len(list)
	}
	return n
}

// Issues returns the issues recorded for kind, in insertion order.
func (r *ErrorReport) Issues(kind string) []Issue {
	return r.issues[kind]
}

// Send mails the report to staff: one message per failed person, with a
// link to that person in the legacy UI, then one summary of everything
// else. Membership issues of an already reported person are left out of
// the summary. An empty report sends nothing.
func (r *ErrorReport) Send(ctx context.Context) error {
	if r.IsEmpty() {
		return nil
	}
	if r.cfg.StaffEmail == "" || r.notifier == nil {
		r.log.Warn("sync problems not mailed: no staff email configured",
			zap.String("event_code", r.event.Code),
			zap.Int("issues", r.Len()))
		return nil
	}

	var errs []error
	failed := make(map[primitive.ObjectID]bool)
	for _, group := range r.groupPeople() {
		p := group[0].Person
		if !p.ID.IsZero() {
			failed[p.ID] = true
		}
		msgs := make([]string, len(group))
		for i, is := range group {
			msgs[i] = is.Message
		}
		msg := mailer.BuildPersonSyncFailureEmail(mailer.PersonSyncFailureData{
			SiteName:    r.cfg.SiteName,
			EventCode:   r.event.Code,
			EventName:   r.event.Name,
			PersonName:  p.Name(),
			PersonEmail: p.Email,
			LegacyLink:  r.legacyLink(p),
			Messages:    msgs,
		})
		msg.To = r.cfg.StaffEmail
		if err := r.notifier.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("mail person failure: %w", err))
		}
	}

	var sections []mailer.SyncSection
	addSection := func(title string, list []Issue, skip func(Issue) bool) {
		var items []string
		for _, is := range list {
			if skip != nil && skip(is) {
				continue
			}
			items = append(items, is.line())
		}
		if len(items) > 0 {
			sections = append(sections, mailer.SyncSection{Title: title, Items: items})
		}
	}
	addSection("Memberships", r.issues[KindMembership], func(is Issue) bool { return failed[is.PersonID] })
	addSection("Event", r.issues[KindEvent], nil)
	addSection("Legacy system", r.issues[KindLegacyConnector], nil)

	if len(sections) > 0 {
		msg := mailer.BuildSyncSummaryEmail(mailer.SyncSummaryData{
			SiteName:  r.cfg.SiteName,
			EventCode: r.event.Code,
			EventName: r.event.Name,
			Sections:  sections,
		})
		msg.To = r.cfg.StaffEmail
		if err := r.notifier.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("mail sync summary: %w", err))
		}
	}
	return errors.Join(errs...)
}

// groupPeople groups Person issues by person, keeping first-seen order.
func (r *ErrorReport) groupPeople() [][]Issue {
	var groups [][]Issue
	index := make(map[string]int)
	for _, is := range r.issues[KindPerson] {
		key := is.Subject
		if !is.PersonID.IsZero() {
			key = is.PersonID.Hex()
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], is)
	}
	return groups
}

func (r *ErrorReport) legacyLink(p *models.Person) string {
	if r.cfg.LegacyWebURL == "" || !p.HasLegacyID() {
		return ""
	}
	return fmt.Sprintf("%s/people/%d", strings.TrimRight(r.cfg.LegacyWebURL, "/"), *p.LegacyID)
}

func (is Issue) line() string {
	if is.Subject == "" {
		return is.Message
	}
	return is.Subject + ": " + is.Message
}

func describe(rec Reportable) string {
	switch v := rec.(type) {
	case *models.Person:
		if v.Email == "" {
			return v.Name()
		}
		return fmt.Sprintf("%s <%s>", v.Name(), v.Email)
	case *models.Event:
		return v.Code
	}
	return ""
}

func validationMessages(rec Reportable) []string {
	err := rec.Validate()
	if err == nil {
		return []string{"could not be saved"}
	}
	var out []string
	for _, line := range strings.Split(err.Error(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
