package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amiga-fleet/amiga-backend/internal/db/models"
)

type memStore struct {
	mu      sync.Mutex
	records []*models.AuditLog
	err     error
	panics  bool
	ctxErr  error
}

func (s *memStore) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if s.panics {
		panic("driver bug")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxErr = ctx.Err()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, log)
	return nil
}

func (s *memStore) stored() []*models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.AuditLog(nil), s.records...)
}

type memShipper struct {
	mu      sync.Mutex
	entries []*LogEntry
	closed  bool
}

func (m *memShipper) Ship(_ context.Context, e *LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memShipper) Close() error {
	m.closed = true
	return nil
}

func newTestRecorder(store Store, shipper Shipper) *Recorder {
	return NewRecorder(store, shipper, newTestBuilder(), time.Second)
}

func TestRecorder_RecordExchange(t *testing.T) {
	store := &memStore{}
	shipper := &memShipper{}
	r := newTestRecorder(store, shipper)

	r.RecordExchange(&Exchange{Method: "DELETE", Path: "/api/alerts/7", RouteTemplate: "/api/alerts/:id", EntityID: "7", StatusCode: 204})
	r.Wait()

	records := store.stored()
	require.Len(t, records, 1)
	assert.Equal(t, "DELETE_ALERT", records[0].Action)
	assert.NotEmpty(t, records[0].ID)
	assert.False(t, records[0].CreatedAt.IsZero())

	require.Len(t, shipper.entries, 1)
	assert.Equal(t, records[0].ID, shipper.entries[0].ID)
}

func TestRecorder_ConcurrentExchanges(t *testing.T) {
	store := &memStore{}
	r := newTestRecorder(store, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RecordExchange(&Exchange{Method: "GET", Path: "/api/vehicles", StatusCode: 200})
		}()
	}
	wg.Wait()
	r.Wait()

	records := store.stored()
	require.Len(t, records, 50)
	ids := make(map[string]struct{}, len(records))
	for _, rec := range records {
		ids[rec.ID] = struct{}{}
	}
	assert.Len(t, ids, 50)
}

func TestRecorder_StorageFailureIsSwallowed(t *testing.T) {
	store := &memStore{err: errors.New("connection refused")}
	shipper := &memShipper{}
	r := newTestRecorder(store, shipper)

	assert.NotPanics(t, func() {
		r.RecordExchange(&Exchange{Method: "GET", Path: "/api/users", StatusCode: 200})
		r.Wait()
	})
	assert.Empty(t, store.stored())
	assert.Len(t, shipper.entries, 1, "shipping is attempted even when persistence fails")
}

func TestRecorder_StorePanicIsRecovered(t *testing.T) {
	r := newTestRecorder(&memStore{panics: true}, nil)

	done := make(chan struct{})
	go func() {
		r.RecordExchange(&Exchange{Method: "GET", Path: "/api/users", StatusCode: 200})
		r.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after a panicking store")
	}
}

func TestRecorder_NilStore(t *testing.T) {
	shipper := &memShipper{}
	r := newTestRecorder(nil, shipper)
	r.RecordExchange(&Exchange{Method: "GET", Path: "/api/users", StatusCode: 200})
	r.Wait()
	assert.Len(t, shipper.entries, 1)
}

func TestRecorder_LogChanges(t *testing.T) {
	store := &memStore{}
	r := newTestRecorder(store, nil)

	record := r.LogChanges(context.Background(), ChangeSet{
		Actor:      Actor{ID: strPtr("u-1"), Name: strPtr("Laura Gil")},
		EntityType: EntityVehicle,
		EntityID:   "v-1",
		Old:        map[string]interface{}{"status": "active", "mileage": float64(1000)},
		New:        map[string]interface{}{"status": "maintenance", "mileage": float64(1000)},
		Action:     "UPDATE_VEHICLE",
	})
	require.NotNil(t, record)
	assert.Equal(t, map[string]Change{"status": {Old: "active", New: "maintenance"}}, record.Changes)
	assert.NotEmpty(t, record.ID)

	r.Wait()
	records := store.stored()
	require.Len(t, records, 1)
	assert.Equal(t, record.ID, records[0].ID)
	assert.Equal(t, "UPDATE_VEHICLE", records[0].Action)
}

// gatedStore holds every write until release is closed.
type gatedStore struct {
	memStore
	release chan struct{}
}

func (s *gatedStore) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	<-s.release
	return s.memStore.CreateAuditLog(ctx, log)
}

func TestRecorder_LogChanges_ReturnedRecordIsIndependent(t *testing.T) {
	store := &gatedStore{release: make(chan struct{})}
	r := newTestRecorder(store, nil)

	old := map[string]interface{}{"status": "active", "location": map[string]interface{}{"city": "Madrid"}}
	updated := map[string]interface{}{"status": "maintenance", "location": map[string]interface{}{"city": "Toledo"}}
	record := r.LogChanges(context.Background(), ChangeSet{
		EntityType: EntityVehicle,
		EntityID:   "v-1",
		Old:        old,
		New:        updated,
	})
	require.NotNil(t, record)

	record.Changes["status"] = Change{Old: "x", New: "y"}
	delete(record.NewValues, "status")
	record.OldValues["location"].(map[string]interface{})["city"] = "Sevilla"
	updated["location"].(map[string]interface{})["city"] = "Cuenca"
	close(store.release)
	r.Wait()

	records := store.stored()
	require.Len(t, records, 1)
	stored := records[0]
	assert.Equal(t, Change{Old: "active", New: "maintenance"}, stored.Changes["status"])
	assert.Equal(t, "maintenance", stored.NewValues["status"])
	assert.Equal(t, map[string]interface{}{"city": "Madrid"}, stored.OldValues["location"])
	assert.Equal(t, map[string]interface{}{"city": "Toledo"}, stored.NewValues["location"])
}

func TestRecorder_LogChanges_NoDiff(t *testing.T) {
	store := &memStore{}
	r := newTestRecorder(store, nil)

	snapshot := map[string]interface{}{"status": "active"}
	assert.Nil(t, r.LogChanges(context.Background(), ChangeSet{Old: snapshot, New: snapshot}))

	r.Wait()
	assert.Empty(t, store.stored())
}

func TestRecorder_LogChanges_SurvivesCallerCancellation(t *testing.T) {
	store := &memStore{}
	r := newTestRecorder(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	record := r.LogChanges(ctx, ChangeSet{
		Old: map[string]interface{}{"priority": "low"},
		New: map[string]interface{}{"priority": "medium"},
	})
	require.NotNil(t, record)

	r.Wait()
	require.Len(t, store.stored(), 1)
	assert.NoError(t, store.ctxErr)
}

func TestRecorder_Close(t *testing.T) {
	shipper := &memShipper{}
	r := newTestRecorder(&memStore{}, shipper)
	r.RecordExchange(&Exchange{Method: "GET", Path: "/api/alerts", StatusCode: 200})

	require.NoError(t, r.Close())
	assert.True(t, shipper.closed)
	assert.Len(t, shipper.entries, 1)

	assert.NoError(t, newTestRecorder(nil, nil).Close())
}

func TestNewRecorder_DefaultTimeout(t *testing.T) {
	r := NewRecorder(nil, nil, newTestBuilder(), 0)
	assert.Equal(t, DefaultPersistTimeout, r.timeout)
}
