// vehicle_repository.go implements VehicleRepository for the fleet's vehicles and their
// compliance dates.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/amiga-fleet/amiga-backend/internal/db/models"
)

// VehicleRepository handles vehicle database operations
type VehicleRepository struct {
	db *sqlx.DB
}

// NewVehicleRepository creates a new VehicleRepository
func NewVehicleRepository(db *sqlx.DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

// VehicleFilters narrows ListVehicles
type VehicleFilters struct {
	Status      *string
	VehicleType *string
	IsActive    *bool
	// Search matches license plate, brand or model
	Search *string
}

func (f VehicleFilters) conditions() *conditions {
	c := &conditions{}
	if f.Status != nil {
		c.add("status = $%d", *f.Status)
	}
	if f.VehicleType != nil {
		c.add("vehicle_type = $%d", *f.VehicleType)
	}
	if f.IsActive != nil {
		c.add("is_active = $%d", *f.IsActive)
	}
	if f.Search != nil && *f.Search != "" {
		c.add("(license_plate ILIKE $%[1]d OR brand ILIKE $%[1]d OR model ILIKE $%[1]d)", "%"+*f.Search+"%")
	}
	return c
}

// CreateVehicle inserts a vehicle, assigning its ID and timestamps
func (r *VehicleRepository) CreateVehicle(ctx context.Context, v *models.Vehicle) error {
	v.ID = uuid.New().String()
	v.CreatedAt = time.Now()
	v.UpdatedAt = v.CreatedAt

	query := `
		INSERT INTO vehicles (
			id, license_plate, brand, model, year, chassis_number, vehicle_type, fuel_type, mileage, status,
			insurance_expiration, itv_expiration, next_maintenance_date, location, notes, is_active,
			created_at, updated_at
		) VALUES (
			:id, :license_plate, :brand, :model, :year, :chassis_number, :vehicle_type, :fuel_type, :mileage, :status,
			:insurance_expiration, :itv_expiration, :next_maintenance_date, :location, :notes, :is_active,
			:created_at, :updated_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, v)
	return err
}

// GetVehicle retrieves a vehicle by ID
func (r *VehicleRepository) GetVehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	var v models.Vehicle
	err := r.db.GetContext(ctx, &v, `SELECT * FROM vehicles WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVehicles returns one page of vehicles ordered by license plate, plus the total match count
func (r *VehicleRepository) ListVehicles(ctx context.Context, filters VehicleFilters, limit, offset int) ([]*models.Vehicle, int, error) {
	conds := filters.conditions()
	where := conds.where()

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM vehicles`+where, conds.args...); err != nil {
		return nil, 0, err
	}

	vehicles := make([]*models.Vehicle, 0)
	query := `SELECT * FROM vehicles` + where + ` ORDER BY license_plate` + conds.page(limit, offset)
	if err := r.db.SelectContext(ctx, &vehicles, query, conds.args...); err != nil {
		return nil, 0, err
	}
	return vehicles, total, nil
}

// UpdateVehicle writes every mutable column
func (r *VehicleRepository) UpdateVehicle(ctx context.Context, v *models.Vehicle) error {
	v.UpdatedAt = time.Now()

	query := `
		UPDATE vehicles SET
			license_plate = :license_plate, brand = :brand, model = :model, year = :year,
			chassis_number = :chassis_number, vehicle_type = :vehicle_type, fuel_type = :fuel_type,
			mileage = :mileage, status = :status,
			insurance_expiration = :insurance_expiration, itv_expiration = :itv_expiration,
			next_maintenance_date = :next_maintenance_date,
			location = :location, notes = :notes, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, v)
	return err
}

// DeleteVehicle removes a vehicle
func (r *VehicleRepository) DeleteVehicle(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM vehicles WHERE id = $1`, id)
	return err
}
