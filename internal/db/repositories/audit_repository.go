// audit_repository.go implements AuditRepository, the write-once store behind the audit trail
// plus the filtered read queries used by the audit admin endpoints.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/amiga-fleet/amiga-backend/internal/db/models"
)

// AuditRepository handles audit log database operations. It deliberately has no update or
// delete: audit records are immutable once written.
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters contains filters for querying audit logs
type AuditFilters struct {
	ActorID    *string
	Action     *string
	EntityType *string
	EntityID   *string
	Outcome    *bool
	StartDate  *time.Time
	EndDate    *time.Time
}

const auditColumns = `id, actor_id, actor_name, actor_role, action, entity_type, entity_id, entity_name,
	method, url, client_address, client_agent, outcome, error_message, duration_ms,
	old_values, new_values, changes, metadata, created_at`

// CreateAuditLog inserts a record. ID and CreatedAt are filled in when the caller left them empty.
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}

	oldValues, err := marshalJSONB(log.OldValues)
	if err != nil {
		return fmt.Errorf("failed to encode old values: %w", err)
	}
	newValues, err := marshalJSONB(log.NewValues)
	if err != nil {
		return fmt.Errorf("failed to encode new values: %w", err)
	}
	changes, err := marshalJSONB(log.Changes)
	if err != nil {
		return fmt.Errorf("failed to encode changes: %w", err)
	}
	metadata, err := marshalJSONB(log.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	query := `
		INSERT INTO audit_logs (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	_, err = r.db.ExecContext(ctx, query,
		log.ID,
		log.ActorID,
		log.ActorName,
		log.ActorRole,
		log.Action,
		log.EntityType,
		log.EntityID,
		log.EntityName,
		log.Method,
		log.URL,
		log.ClientAddress,
		log.ClientAgent,
		log.Outcome,
		log.ErrorMessage,
		log.DurationMs,
		oldValues,
		newValues,
		changes,
		metadata,
		log.CreatedAt,
	)
	return err
}

// ListAuditLogs retrieves audit logs with optional filters and pagination, newest first
func (r *AuditRepository) ListAuditLogs(ctx context.Context, filters AuditFilters, limit, offset int) ([]*models.AuditLog, int, error) {
	conds := filters.conditions()
	where := conds.where()

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs`+where, conds.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + auditColumns + ` FROM audit_logs` + where + ` ORDER BY created_at DESC` + conds.page(limit, offset)

	rows, err := r.db.QueryContext(ctx, query, conds.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, 0, err
		}
		logs = append(logs, log)
	}

	return logs, total, rows.Err()
}

// GetAuditLog retrieves a single audit log entry by ID
func (r *AuditRepository) GetAuditLog(ctx context.Context, logID string) (*models.AuditLog, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+auditColumns+` FROM audit_logs WHERE id = $1`, logID)
	log, err := scanAuditLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return log, nil
}

// GetUserActivity returns the most recent records produced by one actor
func (r *AuditRepository) GetUserActivity(ctx context.Context, userID string, limit int) ([]*models.AuditLog, error) {
	logs, _, err := r.ListAuditLogs(ctx, AuditFilters{ActorID: &userID}, limit, 0)
	return logs, err
}

// GetEntityActivity returns the most recent records about one entity
func (r *AuditRepository) GetEntityActivity(ctx context.Context, entityType, entityID string, limit int) ([]*models.AuditLog, error) {
	logs, _, err := r.ListAuditLogs(ctx, AuditFilters{EntityType: &entityType, EntityID: &entityID}, limit, 0)
	return logs, err
}

func (f AuditFilters) conditions() *conditions {
	c := &conditions{}
	if f.ActorID != nil {
		c.add("actor_id = $%d", *f.ActorID)
	}
	if f.Action != nil {
		c.add("action = $%d", *f.Action)
	}
	if f.EntityType != nil {
		c.add("entity_type = $%d", *f.EntityType)
	}
	if f.EntityID != nil {
		c.add("entity_id = $%d", *f.EntityID)
	}
	if f.Outcome != nil {
		c.add("outcome = $%d", *f.Outcome)
	}
	if f.StartDate != nil {
		c.add("created_at >= $%d", *f.StartDate)
	}
	if f.EndDate != nil {
		c.add("created_at <= $%d", *f.EndDate)
	}
	return c
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuditLog(row rowScanner) (*models.AuditLog, error) {
	log := &models.AuditLog{}
	var oldValues, newValues, changes, metadata []byte

	err := row.Scan(
		&log.ID,
		&log.ActorID,
		&log.ActorName,
		&log.ActorRole,
		&log.Action,
		&log.EntityType,
		&log.EntityID,
		&log.EntityName,
		&log.Method,
		&log.URL,
		&log.ClientAddress,
		&log.ClientAgent,
		&log.Outcome,
		&log.ErrorMessage,
		&log.DurationMs,
		&oldValues,
		&newValues,
		&changes,
		&metadata,
		&log.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, col := range []struct {
		raw  []byte
		dest interface{}
	}{
		{oldValues, &log.OldValues},
		{newValues, &log.NewValues},
		{changes, &log.Changes},
		{metadata, &log.Metadata},
	} {
		if col.raw == nil {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dest); err != nil {
			return nil, err
		}
	}

	return log, nil
}

// marshalJSONB encodes m for a JSONB column. Empty maps become an untyped nil so the driver
// sends SQL NULL rather than an empty byte string.
func marshalJSONB[M ~map[string]V, V any](m M) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return b, nil
}
