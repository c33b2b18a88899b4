// Package repositories implements the data access layer for the fleet backend.
// Each repository type encapsulates all database queries for a domain entity; handlers never
// issue SQL directly. Lookups that find nothing return (nil, nil).
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/amiga-fleet/amiga-backend/internal/db/models"
)

// UserRepository handles staff account database operations
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// UserFilters narrows ListUsers
type UserFilters struct {
	Role     *string
	IsActive *bool
	// Search matches username, email, first or last name (case-insensitive substring)
	Search *string
}

func (f UserFilters) conditions() *conditions {
	c := &conditions{}
	if f.Role != nil {
		c.add("role = $%d", *f.Role)
	}
	if f.IsActive != nil {
		c.add("is_active = $%d", *f.IsActive)
	}
	if f.Search != nil && *f.Search != "" {
		c.add("(username ILIKE $%[1]d OR email ILIKE $%[1]d OR first_name ILIKE $%[1]d OR last_name ILIKE $%[1]d)", "%"+*f.Search+"%")
	}
	return c
}

// CreateUser inserts a user, assigning its ID and timestamps
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	user.ID = uuid.New().String()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	query := `
		INSERT INTO users (
			id, username, email, password_hash, first_name, second_name, last_name, second_last_name,
			role, phone, position, department, hire_date, is_active, created_at, updated_at
		) VALUES (
			:id, :username, :email, :password_hash, :first_name, :second_name, :last_name, :second_last_name,
			:role, :phone, :position, :department, :hire_date, :is_active, :created_at, :updated_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, user)
	return err
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, `SELECT * FROM users WHERE id = $1`, id)
}

// GetUserByUsername retrieves a user by login name
func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, `SELECT * FROM users WHERE username = $1`, username)
}

// GetUserByEmail retrieves a user by email
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `SELECT * FROM users WHERE email = $1`, email)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, query, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns one page of users ordered by last name, plus the total match count
func (r *UserRepository) ListUsers(ctx context.Context, filters UserFilters, limit, offset int) ([]*models.User, int, error) {
	conds := filters.conditions()
	where := conds.where()

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`+where, conds.args...); err != nil {
		return nil, 0, err
	}

	users := make([]*models.User, 0)
	query := `SELECT * FROM users` + where + ` ORDER BY last_name, first_name` + conds.page(limit, offset)
	if err := r.db.SelectContext(ctx, &users, query, conds.args...); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// UpdateUser writes every mutable column. The password hash is only changed through
// UpdatePassword.
func (r *UserRepository) UpdateUser(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()

	query := `
		UPDATE users SET
			username = :username, email = :email,
			first_name = :first_name, second_name = :second_name,
			last_name = :last_name, second_last_name = :second_last_name,
			role = :role, phone = :phone, position = :position, department = :department,
			hire_date = :hire_date, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, user)
	return err
}

// UpdatePassword replaces the stored password hash
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		passwordHash, time.Now(), id)
	return err
}

// UpdateLastLogin stamps a successful login
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, time.Now(), id)
	return err
}

// DeleteUser removes a user
func (r *UserRepository) DeleteUser(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}
