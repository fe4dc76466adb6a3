package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dalemusser/workshophub/internal/app/legacy"
	"github.com/dalemusser/workshophub/internal/app/system/mailer"
	"github.com/dalemusser/workshophub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var errDup = mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key error"}}}

// memDB is an in-memory stand-in for every store the engine uses.
type memDB struct {
	mu          sync.Mutex
	people      map[primitive.ObjectID]models.Person
	memberships map[primitive.ObjectID]models.Membership
	invitations map[primitive.ObjectID]models.Invitation
	lectures    map[primitive.ObjectID]models.Lecture
	logins      map[primitive.ObjectID]models.Login
	events      map[primitive.ObjectID]models.Event

	merges    [][2]int64
	locked    map[string]string
	failSaves map[string]bool // emails whose person saves fail
	writes    int
}

func newMemDB() *memDB {
	return &memDB{
		people:      make(map[primitive.ObjectID]models.Person),
		memberships: make(map[primitive.ObjectID]models.Membership),
		invitations: make(map[primitive.ObjectID]models.Invitation),
		lectures:    make(map[primitive.ObjectID]models.Lecture),
		logins:      make(map[primitive.ObjectID]models.Login),
		events:      make(map[primitive.ObjectID]models.Event),
		locked:      make(map[string]string),
		failSaves:   make(map[string]bool),
	}
}

type personStore struct{ db *memDB }

func (s personStore) GetByID(_ context.Context, id primitive.ObjectID) (*models.Person, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.people[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return &p, nil
}

func (s personStore) GetByLegacyID(_ context.Context, legacyID int64) (*models.Person, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, p := range s.db.people {
		if p.LegacyID != nil && *p.LegacyID == legacyID {
			return &p, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (s personStore) GetByEmail(_ context.Context, email string) (*models.Person, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, p := range s.db.people {
		if p.Email == email {
			return &p, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (s personStore) conflict(p *models.Person) bool {
	for _, o := range s.db.people {
		if o.ID == p.ID {
			continue
		}
		if o.Email == p.Email || sameID(o.LegacyID, p.LegacyID) && p.LegacyID != nil {
			return true
		}
	}
	return false
}

func (s personStore) Create(_ context.Context, p *models.Person) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.failSaves[p.Email] {
		return errors.New("write failed")
	}
	if s.conflict(p) {
		return errDup
	}
	p.ID = primitive.NewObjectID()
	s.db.people[p.ID] = *p
	s.db.writes++
	return nil
}

func (s personStore) Update(_ context.Context, p *models.Person) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.failSaves[p.Email] {
		return errors.New("write failed")
	}
	if _, ok := s.db.people[p.ID]; !ok {
		return mongo.ErrNoDocuments
	}
	if s.conflict(p) {
		return errDup
	}
	s.db.people[p.ID] = *p
	s.db.writes++
	return nil
}

func (s personStore) Delete(_ context.Context, id primitive.ObjectID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	delete(s.db.people, id)
	s.db.writes++
	return nil
}

type membershipStore struct{ db *memDB }

func (s membershipStore) GetByID(_ context.Context, id primitive.ObjectID) (*models.Membership, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	m, ok := s.db.memberships[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return &m, nil
}

func (s membershipStore) Get(_ context.Context, personID, eventID primitive.ObjectID) (*models.Membership, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, m := range s.db.memberships {
		if m.PersonID == personID && m.EventID == eventID {
			return &m, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (s membershipStore) ListByEvent(_ context.Context, eventID primitive.ObjectID) ([]models.Membership, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.Membership
	for _, m := range s.db.memberships {
		if m.EventID == eventID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s membershipStore) ListByPerson(_ context.Context, personID primitive.ObjectID) ([]models.Membership, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.Membership
	for _, m := range s.db.memberships {
		if m.PersonID == personID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s membershipStore) CountByPerson(ctx context.Context, personID primitive.ObjectID) (int64, error) {
	ms, _ := s.ListByPerson(ctx, personID)
	return int64(len(ms)), nil
}

func (s membershipStore) CountByAttendance(ctx context.Context, eventID primitive.ObjectID) (map[string]int, error) {
	ms, _ := s.ListByEvent(ctx, eventID)
	out := make(map[string]int)
	for _, m := range ms {
		out[m.Attendance]++
	}
	return out, nil
}

func (s membershipStore) Create(_ context.Context, m *models.Membership) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, o := range s.db.memberships {
		if o.PersonID == m.PersonID && o.EventID == m.EventID {
			return errDup
		}
	}
	m.ID = primitive.NewObjectID()
	s.db.memberships[m.ID] = *m
	s.db.writes++
	return nil
}

func (s membershipStore) Update(_ context.Context, m *models.Membership) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, o := range s.db.memberships {
		if o.ID != m.ID && o.PersonID == m.PersonID && o.EventID == m.EventID {
			return errDup
		}
	}
	s.db.memberships[m.ID] = *m
	s.db.writes++
	return nil
}

func (s membershipStore) Delete(_ context.Context, id primitive.ObjectID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	delete(s.db.memberships, id)
	s.db.writes++
	return nil
}

type invitationStore struct{ db *memDB }

func (s invitationStore) GetByCode(_ context.Context, code string) (*models.Invitation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, inv := range s.db.invitations {
		if inv.Code == code {
			return &inv, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (s invitationStore) Create(_ context.Context, inv *models.Invitation) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, o := range s.db.invitations {
		if o.Code == inv.Code {
			return errDup
		}
	}
	inv.ID = primitive.NewObjectID()
	s.db.invitations[inv.ID] = *inv
	return nil
}

func (s invitationStore) RepointMembership(_ context.Context, from, to primitive.ObjectID) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for id, inv := range s.db.invitations {
		if inv.MembershipID == from {
			inv.MembershipID = to
			s.db.invitations[id] = inv
			n++
		}
	}
	return n, nil
}

type lectureStore struct{ db *memDB }

func (s lectureStore) UpsertByLegacyID(_ context.Context, l *models.Lecture) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for id, o := range s.db.lectures {
		if sameID(o.LegacyID, l.LegacyID) {
			l.ID, l.CreatedAt = id, o.CreatedAt
			s.db.lectures[id] = *l
			return nil
		}
	}
	l.ID = primitive.NewObjectID()
	s.db.lectures[l.ID] = *l
	return nil
}

func (s lectureStore) CountByPerson(_ context.Context, personID primitive.ObjectID) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for _, l := range s.db.lectures {
		if l.PersonID == personID {
			n++
		}
	}
	return n, nil
}

func (s lectureStore) Reparent(_ context.Context, from, to primitive.ObjectID) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for id, l := range s.db.lectures {
		if l.PersonID == from {
			l.PersonID = to
			s.db.lectures[id] = l
			n++
		}
	}
	return n, nil
}

type loginStore struct{ db *memDB }

func (s loginStore) GetByPerson(_ context.Context, personID primitive.ObjectID) (*models.Login, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, l := range s.db.logins {
		if l.PersonID == personID {
			return &l, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (s loginStore) GetByEmail(_ context.Context, email string) (*models.Login, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, l := range s.db.logins {
		if l.Email == email {
			return &l, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (s loginStore) Update(_ context.Context, l *models.Login) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.logins[l.ID] = *l
	return nil
}

func (s loginStore) Delete(_ context.Context, id primitive.ObjectID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	delete(s.db.logins, id)
	return nil
}

type eventStore struct{ db *memDB }

func (s eventStore) GetByID(_ context.Context, id primitive.ObjectID) (*models.Event, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	ev, ok := s.db.events[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return &ev, nil
}

func (s eventStore) GetByCode(_ context.Context, code string) (*models.Event, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, ev := range s.db.events {
		if ev.Code == code {
			return &ev, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (s eventStore) ListUpcoming(_ context.Context, from time.Time) ([]models.Event, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.Event
	for _, ev := range s.db.events {
		if !ev.EndDate.Before(from) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s eventStore) MarkSynced(_ context.Context, id primitive.ObjectID, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	ev := s.db.events[id]
	ev.SyncTime = &at
	s.db.events[id] = ev
	return nil
}

type mergeQueue struct{ db *memDB }

func (q mergeQueue) Enqueue(_ context.Context, replaceID, withID int64) error {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	for _, m := range q.db.merges {
		if m == [2]int64{replaceID, withID} {
			return nil
		}
	}
	q.db.merges = append(q.db.merges, [2]int64{replaceID, withID})
	return nil
}

type syncLocker struct{ db *memDB }

func (l syncLocker) Acquire(_ context.Context, code, owner string, _ time.Duration) error {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	if _, held := l.db.locked[code]; held {
		return ErrLocked
	}
	l.db.locked[code] = owner
	return nil
}

func (l syncLocker) Release(_ context.Context, code, owner string) error {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	if l.db.locked[code] == owner {
		delete(l.db.locked, code)
	}
	return nil
}

// fakeRemote serves canned legacy responses.
type fakeRemote struct {
	members    map[string][]legacy.MemberEntry
	listErr    error
	people     map[int64]legacy.Snapshot
	byEmail    map[string]legacy.Snapshot
	rsvp       map[string]legacy.RSVPResult
	lectures   map[string][]legacy.Snapshot
	lectureErr error
	pushErr    error
	nextID     int64
	pushed     []legacy.Snapshot
	added      []legacy.MemberEntry
	listCalls  int
	rsvpCalled int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		members:  make(map[string][]legacy.MemberEntry),
		people:   make(map[int64]legacy.Snapshot),
		byEmail:  make(map[string]legacy.Snapshot),
		rsvp:     make(map[string]legacy.RSVPResult),
		lectures: make(map[string][]legacy.Snapshot),
	}
}

func (r *fakeRemote) ListMembers(_ context.Context, code string) ([]legacy.MemberEntry, []error, error) {
	r.listCalls++
	if r.listErr != nil {
		return nil, nil, r.listErr
	}
	return r.members[code], nil, nil
}

func (r *fakeRemote) GetMember(_ context.Context, code string, legacyID int64) (legacy.MemberEntry, error) {
	for _, en := range r.members[code] {
		if id, ok := en.LegacyID(); ok && id == legacyID {
			return en, nil
		}
	}
	return legacy.MemberEntry{}, legacy.ErrNotFound
}

func (r *fakeRemote) GetPerson(_ context.Context, legacyID int64) (legacy.Snapshot, error) {
	s, ok := r.people[legacyID]
	if !ok {
		return legacy.Snapshot{}, legacy.ErrNotFound
	}
	return s, nil
}

func (r *fakeRemote) SearchPerson(_ context.Context, email string) (legacy.Snapshot, error) {
	s, ok := r.byEmail[email]
	if !ok {
		return legacy.Snapshot{}, legacy.ErrNotFound
	}
	return s, nil
}

func (r *fakeRemote) CheckRSVP(_ context.Context, code string) (legacy.RSVPResult, error) {
	r.rsvpCalled++
	res, ok := r.rsvp[code]
	if !ok {
		return legacy.RSVPResult{}, legacy.ErrNotFound
	}
	return res, nil
}

func (r *fakeRemote) GetLectures(_ context.Context, code string) ([]legacy.Snapshot, error) {
	if r.lectureErr != nil {
		return nil, r.lectureErr
	}
	return r.lectures[code], nil
}

// AddPerson records the push and assigns nextID to people without a legacy_id.
func (r *fakeRemote) AddPerson(_ context.Context, person legacy.Snapshot) (int64, error) {
	if r.pushErr != nil {
		return 0, r.pushErr
	}
	r.pushed = append(r.pushed, person)
	if id, ok := person.Int("legacy_id"); ok {
		return id, nil
	}
	return r.nextID, nil
}

func (r *fakeRemote) AddMember(_ context.Context, _ string, entry legacy.MemberEntry) error {
	if r.pushErr != nil {
		return r.pushErr
	}
	r.added = append(r.added, entry)
	return nil
}

type outbox struct {
	mu   sync.Mutex
	sent []mailer.Email
}

func (o *outbox) Send(_ context.Context, e mailer.Email) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, e)
	return nil
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type harness struct {
	db     *memDB
	remote *fakeRemote
	mail   *outbox
	engine *Engine
}

func newHarness() *harness {
	db := newMemDB()
	h := &harness{db: db, remote: newFakeRemote(), mail: &outbox{}}
	h.engine = New(Deps{
		People:      personStore{db},
		Memberships: membershipStore{db},
		Invitations: invitationStore{db},
		Lectures:    lectureStore{db},
		Logins:      loginStore{db},
		Events:      eventStore{db},
		Merges:      mergeQueue{db},
		Locks:       syncLocker{db},
		Remote:      h.remote,
		Notifier:    h.mail,
	}, Config{StaffEmail: "staff@example.org", LegacyWebURL: "https://legacy.example.org"}, zap.NewNop())
	h.engine.now = func() time.Time { return testNow }
	return h
}

func (h *harness) addPerson(p models.Person) *models.Person {
	p.ID = primitive.NewObjectID()
	h.db.people[p.ID] = p
	return &p
}

func (h *harness) addEvent(ev models.Event) *models.Event {
	ev.ID = primitive.NewObjectID()
	h.db.events[ev.ID] = ev
	return &ev
}

func (h *harness) addMembership(m models.Membership) *models.Membership {
	m.ID = primitive.NewObjectID()
	h.db.memberships[m.ID] = m
	return &m
}

func (h *harness) person(id primitive.ObjectID) (models.Person, bool) {
	p, ok := h.db.people[id]
	return p, ok
}

func entry(code string, person, membership map[string]any) legacy.MemberEntry {
	e, err := legacy.ParseMemberEntry(map[string]any{"Workshop": code, "Person": person, "Membership": membership})
	if err != nil {
		panic(err)
	}
	return e
}
