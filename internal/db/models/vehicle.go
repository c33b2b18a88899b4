// Package models - vehicle.go defines the Vehicle model for fleet units, with the
// inspection, insurance, and maintenance dates that drive compliance alerts.
package models

import "time"

// Vehicle statuses
const (
	VehicleStatusAvailable   = "available"
	VehicleStatusInService   = "in_service"
	VehicleStatusMaintenance = "maintenance"
	VehicleStatusRepair      = "repair"
	VehicleStatusRetired     = "retired"
)

// Vehicle represents an ambulance or support vehicle in the fleet
type Vehicle struct {
	ID                  string     `json:"id" db:"id"`
	LicensePlate        string     `json:"licensePlate" db:"license_plate"`
	Brand               string     `json:"brand" db:"brand"`
	Model               string     `json:"model" db:"model"`
	Year                int        `json:"year" db:"year"`
	ChassisNumber       *string    `json:"chassisNumber,omitempty" db:"chassis_number"`
	VehicleType         string     `json:"vehicleType" db:"vehicle_type"` // ambulancia_tipo_A, vehiculo_soporte, ...
	FuelType            string     `json:"fuelType" db:"fuel_type"`
	Mileage             int        `json:"mileage" db:"mileage"`
	Status              string     `json:"status" db:"status"`
	InsuranceExpiration *time.Time `json:"insuranceExpiration,omitempty" db:"insurance_expiration"`
	ITVExpiration       *time.Time `json:"itvExpiration,omitempty" db:"itv_expiration"`
	NextMaintenanceDate *time.Time `json:"nextMaintenanceDate,omitempty" db:"next_maintenance_date"`
	Location            *string    `json:"location,omitempty" db:"location"`
	Notes               *string    `json:"notes,omitempty" db:"notes"`
	IsActive            bool       `json:"isActive" db:"is_active"`
	CreatedAt           time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time  `json:"updatedAt" db:"updated_at"`
}
