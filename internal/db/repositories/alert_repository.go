// alert_repository.go implements AlertRepository for compliance alerts, including the
// due-date query that drives priority escalation.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/amiga-fleet/amiga-backend/internal/db/models"
)

// AlertRepository handles alert database operations
type AlertRepository struct {
	db *sqlx.DB
}

// NewAlertRepository creates a new AlertRepository
func NewAlertRepository(db *sqlx.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// AlertFilters narrows ListAlerts
type AlertFilters struct {
	Status     *string
	Priority   *string
	Type       *string
	EntityType *string
	EntityID   *string
	AssignedTo *string
}

func (f AlertFilters) conditions() *conditions {
	c := &conditions{}
	if f.Status != nil {
		c.add("status = $%d", *f.Status)
	}
	if f.Priority != nil {
		c.add("priority = $%d", *f.Priority)
	}
	if f.Type != nil {
		c.add("type = $%d", *f.Type)
	}
	if f.EntityType != nil {
		c.add("entity_type = $%d", *f.EntityType)
	}
	if f.EntityID != nil {
		c.add("entity_id = $%d", *f.EntityID)
	}
	if f.AssignedTo != nil {
		c.add("assigned_to = $%d", *f.AssignedTo)
	}
	return c
}

// CreateAlert inserts an alert, assigning its ID and timestamps
func (r *AlertRepository) CreateAlert(ctx context.Context, a *models.Alert) error {
	a.ID = uuid.New().String()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt

	query := `
		INSERT INTO alerts (
			id, title, description, type, priority, status, entity_type, entity_id,
			due_date, resolved_date, assigned_to, notes, is_active, created_at, updated_at
		) VALUES (
			:id, :title, :description, :type, :priority, :status, :entity_type, :entity_id,
			:due_date, :resolved_date, :assigned_to, :notes, :is_active, :created_at, :updated_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, a)
	return err
}

// GetAlert retrieves an alert by ID
func (r *AlertRepository) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	var a models.Alert
	err := r.db.GetContext(ctx, &a, `SELECT * FROM alerts WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAlerts returns one page of alerts, soonest due first, plus the total match count
func (r *AlertRepository) ListAlerts(ctx context.Context, filters AlertFilters, limit, offset int) ([]*models.Alert, int, error) {
	conds := filters.conditions()
	where := conds.where()

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM alerts`+where, conds.args...); err != nil {
		return nil, 0, err
	}

	alerts := make([]*models.Alert, 0)
	query := `SELECT * FROM alerts` + where + ` ORDER BY due_date ASC NULLS LAST, created_at DESC` + conds.page(limit, offset)
	if err := r.db.SelectContext(ctx, &alerts, query, conds.args...); err != nil {
		return nil, 0, err
	}
	return alerts, total, nil
}

// ListDueBefore returns active pending alerts due on or before the cutoff that can still be
// escalated
func (r *AlertRepository) ListDueBefore(ctx context.Context, cutoff time.Time) ([]*models.Alert, error) {
	alerts := make([]*models.Alert, 0)
	query := `
		SELECT * FROM alerts
		WHERE status = $1 AND is_active = true AND due_date IS NOT NULL AND due_date <= $2 AND priority <> $3
		ORDER BY due_date ASC`
	err := r.db.SelectContext(ctx, &alerts, query, models.AlertStatusPending, cutoff, models.AlertPriorityUrgent)
	return alerts, err
}

// ListUpcoming returns active pending alerts due between from and to inclusive, soonest first
func (r *AlertRepository) ListUpcoming(ctx context.Context, from, to time.Time) ([]*models.Alert, error) {
	alerts := make([]*models.Alert, 0)
	query := `
		SELECT * FROM alerts
		WHERE status = $1 AND is_active = true AND due_date BETWEEN $2 AND $3
		ORDER BY due_date ASC`
	err := r.db.SelectContext(ctx, &alerts, query, models.AlertStatusPending, from, to)
	return alerts, err
}

// UpdateAlert writes every mutable column
func (r *AlertRepository) UpdateAlert(ctx context.Context, a *models.Alert) error {
	a.UpdatedAt = time.Now()

	query := `
		UPDATE alerts SET
			title = :title, description = :description, type = :type, priority = :priority,
			status = :status, entity_type = :entity_type, entity_id = :entity_id,
			due_date = :due_date, resolved_date = :resolved_date, assigned_to = :assigned_to,
			notes = :notes, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, a)
	return err
}

// DeleteAlert removes an alert
func (r *AlertRepository) DeleteAlert(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	return err
}
