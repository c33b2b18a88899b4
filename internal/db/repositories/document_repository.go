// document_repository.go implements DocumentRepository for uploaded document metadata. The
// file bytes live in the configured storage backend under StoragePath.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/amiga-fleet/amiga-backend/internal/db/models"
)

// DocumentRepository handles document database operations
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository creates a new DocumentRepository
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// DocumentFilters narrows ListDocuments
type DocumentFilters struct {
	Type      *string
	Category  *string
	OwnerType *string
	OwnerID   *string
}

func (f DocumentFilters) conditions() *conditions {
	c := &conditions{}
	if f.Type != nil {
		c.add("type = $%d", *f.Type)
	}
	if f.Category != nil {
		c.add("category = $%d", *f.Category)
	}
	if f.OwnerType != nil {
		c.add("owner_type = $%d", *f.OwnerType)
	}
	if f.OwnerID != nil {
		c.add("owner_id = $%d", *f.OwnerID)
	}
	return c
}

// CreateDocument inserts document metadata. The ID is kept when the caller already chose one
// (uploads derive the storage key from it).
func (r *DocumentRepository) CreateDocument(ctx context.Context, d *models.Document) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt

	query := `
		INSERT INTO documents (
			id, name, type, category, original_name, mime_type, size, storage_path, checksum,
			owner_type, owner_id, expiration_date, uploaded_by, is_active, created_at, updated_at
		) VALUES (
			:id, :name, :type, :category, :original_name, :mime_type, :size, :storage_path, :checksum,
			:owner_type, :owner_id, :expiration_date, :uploaded_by, :is_active, :created_at, :updated_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, d)
	return err
}

// GetDocument retrieves document metadata by ID
func (r *DocumentRepository) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var d models.Document
	err := r.db.GetContext(ctx, &d, `SELECT * FROM documents WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDocuments returns one page of documents, newest first, plus the total match count
func (r *DocumentRepository) ListDocuments(ctx context.Context, filters DocumentFilters, limit, offset int) ([]*models.Document, int, error) {
	conds := filters.conditions()
	where := conds.where()

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM documents`+where, conds.args...); err != nil {
		return nil, 0, err
	}

	docs := make([]*models.Document, 0)
	query := `SELECT * FROM documents` + where + ` ORDER BY created_at DESC` + conds.page(limit, offset)
	if err := r.db.SelectContext(ctx, &docs, query, conds.args...); err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// UpdateDocument writes the descriptive columns; file columns are fixed at upload
func (r *DocumentRepository) UpdateDocument(ctx context.Context, d *models.Document) error {
	d.UpdatedAt = time.Now()

	query := `
		UPDATE documents SET
			name = :name, type = :type, category = :category,
			owner_type = :owner_type, owner_id = :owner_id,
			expiration_date = :expiration_date, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, d)
	return err
}

// DeleteDocument removes document metadata
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	return err
}
