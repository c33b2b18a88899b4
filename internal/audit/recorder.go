// Package audit implements the audit trail of the fleet admin API.
//
// Every request under the audited prefix is observed by the HTTP interceptor
// (internal/middleware/audit.go), which hands a snapshot of the exchange to the Recorder.
// The Recorder classifies it, strips secrets from the request payload, extracts a label
// for the affected entity, and persists one immutable record. Update handlers and
// background jobs use the explicit path instead: they pass before/after snapshots to
// LogChanges, and a record is written only when the Diff is non-empty.
//
// Persistence is best-effort. It runs on a detached goroutine after the response has been
// written, under its own timeout, and failures are logged and counted but never reach the
// caller. Records can additionally be shipped to external destinations (webhook, file,
// Redis stream, object storage archive) through the Shipper interface.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amiga-fleet/amiga-backend/internal/db/models"
	"github.com/amiga-fleet/amiga-backend/internal/safego"
	"github.com/amiga-fleet/amiga-backend/internal/telemetry"
)

// DefaultPersistTimeout bounds a single persistence attempt when none is configured.
const DefaultPersistTimeout = 5 * time.Second

// Store is the storage collaborator that persists audit records.
type Store interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Recorder builds audit records and persists them asynchronously.
type Recorder struct {
	store   Store
	shipper Shipper
	builder *Builder
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewRecorder creates a Recorder. store and shipper may each be nil.
func NewRecorder(store Store, shipper Shipper, builder *Builder, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = DefaultPersistTimeout
	}
	return &Recorder{
		store:   store,
		shipper: shipper,
		builder: builder,
		timeout: timeout,
	}
}

// RecordExchange schedules record construction and persistence for an observed exchange
// and returns immediately.
func (r *Recorder) RecordExchange(ex *Exchange) {
	r.wg.Add(1)
	safego.Go("audit-exchange", func() {
		defer r.wg.Done()
		record := r.builder.FromExchange(ex)
		stamp(record)
		r.persist(context.Background(), "exchange", record)
	})
}

// LogChanges diffs cs.Old against cs.New and, if anything changed, schedules a change
// record for persistence and returns it. It returns nil when there is nothing to record.
// The returned record is the caller's to keep: a deep copy is persisted, so mutating it
// or cs afterwards does not affect what is stored. Cancellation of ctx does not abort
// persistence.
func (r *Recorder) LogChanges(ctx context.Context, cs ChangeSet) *models.AuditLog {
	record := r.builder.FromChanges(cs, Diff(cs.Old, cs.New))
	if record == nil {
		telemetry.AuditRecordsTotal.WithLabelValues("change", "skipped").Inc()
		return nil
	}
	stamp(record)

	parent := context.WithoutCancel(ctx)
	persisted := cloneRecord(record)
	r.wg.Add(1)
	safego.Go("audit-change", func() {
		defer r.wg.Done()
		r.persist(parent, "change", persisted)
	})
	return record
}

// Wait blocks until all scheduled records have been handled.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

// Close waits for in-flight records and releases the shipper.
func (r *Recorder) Close() error {
	r.Wait()
	if r.shipper != nil {
		return r.shipper.Close()
	}
	return nil
}

func (r *Recorder) persist(parent context.Context, path string, record *models.AuditLog) {
	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()

	if r.store != nil {
		start := time.Now()
		err := r.store.CreateAuditLog(ctx, record)
		telemetry.AuditPersistDuration.Observe(time.Since(start).Seconds())

		if err != nil {
			var storageErr *StorageError
			if !errors.As(err, &storageErr) {
				storageErr = &StorageError{RecordID: record.ID, Err: err}
			}
			telemetry.AuditRecordsTotal.WithLabelValues(path, "failed").Inc()
			slog.Error("audit record not persisted",
				"record_id", record.ID,
				"action", record.Action,
				"entity_type", record.EntityType,
				"error", storageErr)
		} else {
			telemetry.AuditRecordsTotal.WithLabelValues(path, "stored").Inc()
		}
	}

	if r.shipper != nil {
		if err := r.shipper.Ship(ctx, NewLogEntry(record)); err != nil {
			slog.Warn("audit record not shipped", "record_id", record.ID, "error", err)
		}
	}
}

func stamp(record *models.AuditLog) {
	record.ID = uuid.New().String()
	record.CreatedAt = time.Now().UTC()
}

// cloneRecord copies record together with its value maps, recursing into nested maps and
// slices as produced by JSON decoding.
func cloneRecord(record *models.AuditLog) *models.AuditLog {
	c := *record
	c.OldValues = cloneMap(record.OldValues)
	c.NewValues = cloneMap(record.NewValues)
	c.Metadata = cloneMap(record.Metadata)
	if record.Changes != nil {
		c.Changes = make(map[string]Change, len(record.Changes))
		for k, ch := range record.Changes {
			c.Changes[k] = Change{Old: cloneValue(ch.Old), New: cloneValue(ch.New), Added: ch.Added, Removed: ch.Removed}
		}
	}
	return &c
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
