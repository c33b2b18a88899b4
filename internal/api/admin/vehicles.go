// vehicles.go implements fleet vehicle CRUD. Updates go through the audit diff path so
// the trail shows exactly which fields changed.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/amiga-fleet/amiga-backend/internal/audit"
	"github.com/amiga-fleet/amiga-backend/internal/db/models"
	"github.com/amiga-fleet/amiga-backend/internal/db/repositories"
)

// VehicleHandlers handles vehicle endpoints
type VehicleHandlers struct {
	vehicleRepo *repositories.VehicleRepository
	recorder    *audit.Recorder
}

// NewVehicleHandlers creates a new VehicleHandlers instance
func NewVehicleHandlers(db *sqlx.DB, recorder *audit.Recorder) *VehicleHandlers {
	return &VehicleHandlers{
		vehicleRepo: repositories.NewVehicleRepository(db),
		recorder:    recorder,
	}
}

// ListVehiclesHandler lists vehicles
// GET /api/vehicles?status=&vehicleType=&isActive=&search=&page=&limit=
func (h *VehicleHandlers) ListVehiclesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, limit, offset := pagination(c)
		filters := repositories.VehicleFilters{
			Status:      queryPtr(c, "status"),
			VehicleType: queryPtr(c, "vehicleType"),
			IsActive:    queryBool(c, "isActive"),
			Search:      queryPtr(c, "search"),
		}

		vehicles, total, err := h.vehicleRepo.ListVehicles(c.Request.Context(), filters, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list vehicles"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"vehicles":   vehicles,
			"pagination": paginationBody(page, limit, total),
		})
	}
}

// GetVehicleHandler returns one vehicle under the "vehicle" key
// GET /api/vehicles/:id
func (h *VehicleHandlers) GetVehicleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		vehicle, ok := h.loadVehicle(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"vehicle": vehicle})
	}
}

// VehicleRequest is the body of create and update requests. On update, absent fields
// keep their current value.
type VehicleRequest struct {
	LicensePlate        *string    `json:"licensePlate"`
	Brand               *string    `json:"brand"`
	Model               *string    `json:"model"`
	Year                *int       `json:"year"`
	ChassisNumber       *string    `json:"chassisNumber"`
	VehicleType         *string    `json:"vehicleType"`
	FuelType            *string    `json:"fuelType"`
	Mileage             *int       `json:"mileage" binding:"omitempty,min=0"`
	Status              *string    `json:"status"`
	InsuranceExpiration *time.Time `json:"insuranceExpiration"`
	ITVExpiration       *time.Time `json:"itvExpiration"`
	NextMaintenanceDate *time.Time `json:"nextMaintenanceDate"`
	Location            *string    `json:"location"`
	Notes               *string    `json:"notes"`
	IsActive            *bool      `json:"isActive"`
}

func (r *VehicleRequest) apply(v *models.Vehicle) {
	setString(&v.LicensePlate, r.LicensePlate)
	setString(&v.Brand, r.Brand)
	setString(&v.Model, r.Model)
	setString(&v.VehicleType, r.VehicleType)
	setString(&v.FuelType, r.FuelType)
	setString(&v.Status, r.Status)
	if r.Year != nil {
		v.Year = *r.Year
	}
	if r.Mileage != nil {
		v.Mileage = *r.Mileage
	}
	if r.IsActive != nil {
		v.IsActive = *r.IsActive
	}
	setOptional(&v.ChassisNumber, r.ChassisNumber)
	setOptional(&v.Location, r.Location)
	setOptional(&v.Notes, r.Notes)
	if r.InsuranceExpiration != nil {
		v.InsuranceExpiration = r.InsuranceExpiration
	}
	if r.ITVExpiration != nil {
		v.ITVExpiration = r.ITVExpiration
	}
	if r.NextMaintenanceDate != nil {
		v.NextMaintenanceDate = r.NextMaintenanceDate
	}
}

// @Summary      Create vehicle
// @Tags         Vehicles
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  VehicleRequest  true  "Vehicle; licensePlate, brand, model and vehicleType are required"
// @Success      201  {object}  map[string]interface{}  "vehicle: models.Vehicle"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Router       /api/vehicles [post]
// CreateVehicleHandler creates a vehicle
// POST /api/vehicles
func (h *VehicleHandlers) CreateVehicleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VehicleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
		if empty(req.LicensePlate) || empty(req.Brand) || empty(req.Model) || empty(req.VehicleType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "licensePlate, brand, model and vehicleType are required"})
			return
		}

		vehicle := &models.Vehicle{
			Status:   models.VehicleStatusAvailable,
			FuelType: "diesel",
			IsActive: true,
		}
		req.apply(vehicle)

		if err := h.vehicleRepo.CreateVehicle(c.Request.Context(), vehicle); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create vehicle"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"vehicle": vehicle})
	}
}

// UpdateVehicleHandler applies a partial update and records the changed fields
// PUT /api/vehicles/:id
func (h *VehicleHandlers) UpdateVehicleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VehicleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		existing, ok := h.loadVehicle(c)
		if !ok {
			return
		}
		updated := *existing
		req.apply(&updated)

		if err := h.vehicleRepo.UpdateVehicle(c.Request.Context(), &updated); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update vehicle"})
			return
		}

		logChanges(c, h.recorder, audit.ChangeSet{
			EntityType: audit.EntityVehicle,
			EntityID:   updated.ID,
			EntityName: vehicleName(&updated),
			Action:     "UPDATE_VEHICLE",
		}, existing, &updated)

		c.JSON(http.StatusOK, gin.H{"vehicle": updated})
	}
}

// DeleteVehicleHandler deletes a vehicle
// DELETE /api/vehicles/:id
func (h *VehicleHandlers) DeleteVehicleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		vehicle, ok := h.loadVehicle(c)
		if !ok {
			return
		}
		if err := h.vehicleRepo.DeleteVehicle(c.Request.Context(), vehicle.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete vehicle"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Vehicle deleted", "vehicle": vehicle})
	}
}

func (h *VehicleHandlers) loadVehicle(c *gin.Context) (*models.Vehicle, bool) {
	vehicle, err := h.vehicleRepo.GetVehicle(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve vehicle"})
		return nil, false
	}
	if vehicle == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
		return nil, false
	}
	return vehicle, true
}

// vehicleName matches the label the audit extractor derives from responses
func vehicleName(v *models.Vehicle) string {
	name := audit.ExtractEntityName("/vehicles", map[string]interface{}{
		"vehicle": map[string]interface{}{"brand": v.Brand, "model": v.Model, "licensePlate": v.LicensePlate},
	})
	if name == nil {
		return ""
	}
	return *name
}

func empty(s *string) bool { return s == nil || *s == "" }

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// setOptional assigns src to a nullable column; an explicit empty string clears it
func setOptional(dst **string, src *string) {
	if src == nil {
		return
	}
	if *src == "" {
		*dst = nil
		return
	}
	v := *src
	*dst = &v
}
