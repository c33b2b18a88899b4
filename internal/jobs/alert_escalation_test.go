package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amiga-fleet/amiga-backend/internal/audit"
	"github.com/amiga-fleet/amiga-backend/internal/config"
	"github.com/amiga-fleet/amiga-backend/internal/db/models"
)

type fakeAlertStore struct {
	due     []*models.Alert
	listErr error
	failIDs map[string]bool
	cutoff  time.Time
	updated []*models.Alert
}

func (s *fakeAlertStore) ListDueBefore(_ context.Context, cutoff time.Time) ([]*models.Alert, error) {
	s.cutoff = cutoff
	return s.due, s.listErr
}

func (s *fakeAlertStore) UpdateAlert(_ context.Context, a *models.Alert) error {
	if s.failIDs[a.ID] {
		return errors.New("update failed")
	}
	s.updated = append(s.updated, a)
	return nil
}

type fakeAuditStore struct {
	mu      sync.Mutex
	records []*models.AuditLog
}

func (s *fakeAuditStore) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, log)
	return nil
}

func newTestJob(store AlertStore, auditStore audit.Store) (*AlertEscalationJob, *audit.Recorder) {
	recorder := audit.NewRecorder(auditStore, nil, audit.NewBuilder(audit.NewClassifier("/api")), time.Second)
	job := NewAlertEscalationJob(store, recorder, config.AlertEscalationConfig{Interval: time.Hour, DaysAhead: 3})
	job.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return job, recorder
}

func TestNewAlertEscalationJob_Defaults(t *testing.T) {
	job := NewAlertEscalationJob(&fakeAlertStore{}, nil, config.AlertEscalationConfig{})
	assert.Equal(t, time.Hour, job.interval)
	assert.Equal(t, 7*24*time.Hour, job.window)
}

func TestRunOnce_EscalatesAndRecords(t *testing.T) {
	store := &fakeAlertStore{due: []*models.Alert{
		{ID: "a-1", Title: "ITV B-456-DE", Priority: models.AlertPriorityLow},
		{ID: "a-2", Title: "Seguro 1234-KLM", Priority: models.AlertPriorityHigh},
	}}
	auditStore := &fakeAuditStore{}
	job, recorder := newTestJob(store, auditStore)

	n, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	recorder.Wait()

	assert.Equal(t, 2, n)
	assert.Equal(t, time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC), store.cutoff)
	require.Len(t, store.updated, 2)
	assert.Equal(t, models.AlertPriorityMedium, store.updated[0].Priority)
	assert.Equal(t, models.AlertPriorityUrgent, store.updated[1].Priority)
	assert.Equal(t, models.AlertPriorityLow, store.due[0].Priority, "the listed alert is not mutated")

	require.Len(t, auditStore.records, 2)
	for _, rec := range auditStore.records {
		assert.Equal(t, EscalateAction, rec.Action)
		assert.Equal(t, "alert", rec.EntityType)
		assert.Nil(t, rec.ActorID)
		assert.Equal(t, "system", *rec.ActorName)
		assert.Len(t, rec.Changes, 1)
	}
}

func TestRunOnce_SkipsFailedUpdates(t *testing.T) {
	store := &fakeAlertStore{
		due: []*models.Alert{
			{ID: "a-1", Priority: models.AlertPriorityLow},
			{ID: "a-2", Priority: models.AlertPriorityMedium},
		},
		failIDs: map[string]bool{"a-1": true},
	}
	auditStore := &fakeAuditStore{}
	job, recorder := newTestJob(store, auditStore)

	n, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	recorder.Wait()

	assert.Equal(t, 1, n)
	require.Len(t, auditStore.records, 1)
	assert.Equal(t, "a-2", *auditStore.records[0].EntityID)
}

func TestRunOnce_UrgentIsLeftAlone(t *testing.T) {
	store := &fakeAlertStore{due: []*models.Alert{{ID: "a-1", Priority: models.AlertPriorityUrgent}}}
	job, _ := newTestJob(store, &fakeAuditStore{})

	n, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.updated)
}

func TestRunOnce_ListError(t *testing.T) {
	job, _ := newTestJob(&fakeAlertStore{listErr: errors.New("db down")}, nil)
	_, err := job.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestStart_StopsOnStop(t *testing.T) {
	store := &fakeAlertStore{}
	job, _ := newTestJob(store, nil)

	done := make(chan struct{})
	go func() {
		job.loop(context.Background())
		close(done)
	}()
	job.Stop()
	job.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after Stop")
	}
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	job, _ := newTestJob(&fakeAlertStore{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		job.loop(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after cancellation")
	}
}

type panickingAlertStore struct{ fakeAlertStore }

func (s *panickingAlertStore) ListDueBefore(context.Context, time.Time) ([]*models.Alert, error) {
	panic("boom")
}

func TestRunLogged_RecoversPanic(t *testing.T) {
	job, _ := newTestJob(&panickingAlertStore{}, nil)
	assert.NotPanics(t, func() { job.runLogged(context.Background()) })
}
