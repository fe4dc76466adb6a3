package workers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/workshophub/internal/app/legacy"
	"github.com/dalemusser/workshophub/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type memOutbox struct {
	mu   sync.Mutex
	reqs []*models.MergeRequest
	now  time.Time
}

func (m *memOutbox) add(replaceID, withID int64) *models.MergeRequest {
	r := &models.MergeRequest{
		ID:              fmt.Sprintf("req-%d-%d", replaceID, withID),
		ReplaceLegacyID: replaceID,
		WithLegacyID:    withID,
		Status:          models.MergeStatusPending,
		NextAttemptAt:   m.now,
	}
	m.reqs = append(m.reqs, r)
	return r
}

func (m *memOutbox) Lease(_ context.Context, owner string, ttl time.Duration) (*models.MergeRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reqs {
		if r.Status == models.MergeStatusPending && !r.NextAttemptAt.After(m.now) {
			r.Status = models.MergeStatusLeased
			r.LeaseOwner = owner
			r.AttemptCount++
			cp := *r
			return &cp, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (m *memOutbox) find(id, owner string) (*models.MergeRequest, error) {
	for _, r := range m.reqs {
		if r.ID == id && r.Status == models.MergeStatusLeased && r.LeaseOwner == owner {
			return r, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (m *memOutbox) Ack(_ context.Context, id, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.find(id, owner)
	if err != nil {
		return err
	}
	r.Status, r.LeaseOwner = models.MergeStatusDone, ""
	return nil
}

func (m *memOutbox) Retry(_ context.Context, id, owner string, next time.Time, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.find(id, owner)
	if err != nil {
		return err
	}
	r.Status, r.LeaseOwner, r.NextAttemptAt, r.LastError = models.MergeStatusPending, "", next, lastErr
	return nil
}

func (m *memOutbox) Dead(_ context.Context, id, owner, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.find(id, owner)
	if err != nil {
		return err
	}
	r.Status, r.LeaseOwner, r.LastError = models.MergeStatusDead, "", lastErr
	return nil
}

type fakeReplacer struct {
	mu    sync.Mutex
	calls int
	errs  []error // returned in order, then nil
}

func (f *fakeReplacer) ReplacePerson(_ context.Context, _, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

type recordingAudit struct {
	delivered, dead int
	reason          string
}

func (a *recordingAudit) RemoteMergeDelivered(context.Context, int64, int64, int) { a.delivered++ }
func (a *recordingAudit) RemoteMergeDead(_ context.Context, _, _ int64, _ int, reason string) {
	a.dead++
	a.reason = reason
}

func newTestWorker(store *memOutbox, remote *fakeReplacer, audit *recordingAudit, maxAttempts int) *MergeOutbox {
	w := NewMergeOutbox(store, remote, audit, zap.NewNop(), MergeOutboxConfig{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Minute,
		MaxDelay:    time.Hour,
		QuickTries:  2,
		QuickDelay:  time.Millisecond,
	})
	w.now = func() time.Time { return store.now }
	return w
}

func unavailable() error { return fmt.Errorf("%w: status 503", legacy.ErrUnavailable) }

func TestMergeOutbox_DeliversDueRequests(t *testing.T) {
	store := &memOutbox{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	store.add(1, 2)
	store.add(3, 4)
	remote := &fakeReplacer{}
	audit := &recordingAudit{}

	n, err := newTestWorker(store, remote, audit, 5).Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if n != 2 {
		t.Errorf("delivered %d, want 2", n)
	}
	for _, r := range store.reqs {
		if r.Status != models.MergeStatusDone {
			t.Errorf("%s: status %q, want done", r.ID, r.Status)
		}
	}
	if audit.delivered != 2 {
		t.Errorf("audit delivered = %d, want 2", audit.delivered)
	}
}

func TestMergeOutbox_QuickRetryWithinLease(t *testing.T) {
	store := &memOutbox{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	store.add(1, 2)
	remote := &fakeReplacer{errs: []error{unavailable()}}

	n, err := newTestWorker(store, remote, &recordingAudit{}, 5).Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if n != 1 || remote.calls != 2 {
		t.Errorf("delivered %d after %d calls, want 1 after 2", n, remote.calls)
	}
	if store.reqs[0].AttemptCount != 1 {
		t.Errorf("AttemptCount = %d, want 1", store.reqs[0].AttemptCount)
	}
}

func TestMergeOutbox_TransientFailureReschedules(t *testing.T) {
	store := &memOutbox{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	req := store.add(1, 2)
	remote := &fakeReplacer{errs: []error{unavailable(), unavailable()}}
	w := newTestWorker(store, remote, &recordingAudit{}, 5)

	n, err := w.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if n != 0 {
		t.Errorf("delivered %d, want 0", n)
	}
	if req.Status != models.MergeStatusPending {
		t.Fatalf("status %q, want pending", req.Status)
	}
	if want := store.now.Add(time.Minute); !req.NextAttemptAt.Equal(want) {
		t.Errorf("NextAttemptAt = %v, want %v", req.NextAttemptAt, want)
	}
	if req.LastError == "" {
		t.Error("expected LastError to be recorded")
	}

	// Not due yet.
	if n, _ := w.Drain(context.Background()); n != 0 || remote.calls != 2 {
		t.Errorf("request retried early: delivered %d, calls %d", n, remote.calls)
	}

	store.now = store.now.Add(2 * time.Minute)
	if n, err := w.Drain(context.Background()); err != nil || n != 1 {
		t.Errorf("Drain after delay = (%d, %v), want (1, nil)", n, err)
	}
}

func TestMergeOutbox_PermanentFailureIsDead(t *testing.T) {
	store := &memOutbox{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	req := store.add(1, 2)
	remote := &fakeReplacer{errs: []error{fmt.Errorf("%w: /people/replace", legacy.ErrNotFound)}}
	audit := &recordingAudit{}

	if _, err := newTestWorker(store, remote, audit, 5).Drain(context.Background()); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if req.Status != models.MergeStatusDead {
		t.Errorf("status %q, want dead", req.Status)
	}
	if remote.calls != 1 {
		t.Errorf("permanent failures should not be retried, got %d calls", remote.calls)
	}
	if audit.dead != 1 || audit.reason == "" {
		t.Errorf("audit dead = %d, reason %q", audit.dead, audit.reason)
	}
}

func TestMergeOutbox_DeadAfterMaxAttempts(t *testing.T) {
	store := &memOutbox{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	req := store.add(1, 2)
	req.AttemptCount = 2 // the next lease is the third and last
	remote := &fakeReplacer{errs: []error{unavailable(), unavailable()}}
	audit := &recordingAudit{}

	if _, err := newTestWorker(store, remote, audit, 3).Drain(context.Background()); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if req.Status != models.MergeStatusDead {
		t.Errorf("status %q, want dead", req.Status)
	}
	if audit.dead != 1 {
		t.Errorf("audit dead = %d, want 1", audit.dead)
	}
}

func TestMergeOutbox_RetryDelay(t *testing.T) {
	w := newTestWorker(&memOutbox{}, &fakeReplacer{}, &recordingAudit{}, 5)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{6, 32 * time.Minute},
		{7, time.Hour},
		{20, time.Hour},
	}
	for _, tt := range tests {
		if got := w.RetryDelay(tt.attempt); got != tt.want {
			t.Errorf("RetryDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestNewMergeOutbox_Defaults(t *testing.T) {
	w := NewMergeOutbox(&memOutbox{}, &fakeReplacer{}, &recordingAudit{}, zap.NewNop(), MergeOutboxConfig{})

	if w.cfg.MaxAttempts != DefaultMergeMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", w.cfg.MaxAttempts, DefaultMergeMaxAttempts)
	}
	if got := w.RetryDelay(1); got != time.Minute {
		t.Errorf("first retry delay = %v, want 1m", got)
	}
	if got := w.RetryDelay(3); got != 4*time.Minute {
		t.Errorf("third retry delay = %v, want 4m", got)
	}
	if got := w.RetryDelay(20); got != time.Hour {
		t.Errorf("capped retry delay = %v, want 1h", got)
	}
}
