// alerts.go implements compliance alert endpoints, including the resolve and assign
// workflow transitions, each of which is recorded as a field-level change.
package admin

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/amiga-fleet/amiga-backend/internal/audit"
	"github.com/amiga-fleet/amiga-backend/internal/db/models"
	"github.com/amiga-fleet/amiga-backend/internal/db/repositories"
)

// AlertHandlers handles alert endpoints
type AlertHandlers struct {
	alertRepo *repositories.AlertRepository
	userRepo  *repositories.UserRepository
	recorder  *audit.Recorder
}

// NewAlertHandlers creates a new AlertHandlers instance
func NewAlertHandlers(db *sqlx.DB, recorder *audit.Recorder) *AlertHandlers {
	return &AlertHandlers{
		alertRepo: repositories.NewAlertRepository(db),
		userRepo:  repositories.NewUserRepository(db),
		recorder:  recorder,
	}
}

var (
	validAlertPriorities = map[string]bool{
		models.AlertPriorityLow: true, models.AlertPriorityMedium: true,
		models.AlertPriorityHigh: true, models.AlertPriorityUrgent: true,
	}
	validAlertStatuses = map[string]bool{
		models.AlertStatusPending: true, models.AlertStatusInProgress: true,
		models.AlertStatusResolved: true, models.AlertStatusCancelled: true,
	}
)

// ListAlertsHandler lists alerts, soonest due first
// GET /api/alerts?status=&priority=&type=&entityType=&entityId=&assignedTo=&page=&limit=
func (h *AlertHandlers) ListAlertsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, limit, offset := pagination(c)
		filters := repositories.AlertFilters{
			Status:     queryPtr(c, "status"),
			Priority:   queryPtr(c, "priority"),
			Type:       queryPtr(c, "type"),
			EntityType: queryPtr(c, "entityType"),
			EntityID:   queryPtr(c, "entityId"),
			AssignedTo: queryPtr(c, "assignedTo"),
		}

		alerts, total, err := h.alertRepo.ListAlerts(c.Request.Context(), filters, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list alerts"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"alerts":     alerts,
			"pagination": paginationBody(page, limit, total),
		})
	}
}

// GetAlertHandler returns one alert
// GET /api/alerts/:id
func (h *AlertHandlers) GetAlertHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		alert, ok := h.loadAlert(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"alert": alert})
	}
}

// AlertRequest is the body of create and update requests
type AlertRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Type        *string    `json:"type"`
	Priority    *string    `json:"priority"`
	Status      *string    `json:"status"`
	EntityType  *string    `json:"entityType"`
	EntityID    *string    `json:"entityId"`
	DueDate     *time.Time `json:"dueDate"`
	Notes       *string    `json:"notes"`
	IsActive    *bool      `json:"isActive"`
}

func (r *AlertRequest) validate() string {
	if r.Priority != nil && !validAlertPriorities[*r.Priority] {
		return "Invalid priority"
	}
	if r.Status != nil && !validAlertStatuses[*r.Status] {
		return "Invalid status"
	}
	return ""
}

func (r *AlertRequest) apply(a *models.Alert) {
	setString(&a.Title, r.Title)
	setString(&a.Description, r.Description)
	setString(&a.Type, r.Type)
	setString(&a.Priority, r.Priority)
	setString(&a.Status, r.Status)
	setString(&a.EntityType, r.EntityType)
	setString(&a.EntityID, r.EntityID)
	setOptional(&a.Notes, r.Notes)
	if r.DueDate != nil {
		a.DueDate = r.DueDate
	}
	if r.IsActive != nil {
		a.IsActive = *r.IsActive
	}
}

// CreateAlertHandler creates an alert
// POST /api/alerts
func (h *AlertHandlers) CreateAlertHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AlertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
		if empty(req.Title) || empty(req.Type) || empty(req.EntityType) || empty(req.EntityID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title, type, entityType and entityId are required"})
			return
		}
		if msg := req.validate(); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}

		alert := &models.Alert{
			Priority: models.AlertPriorityMedium,
			Status:   models.AlertStatusPending,
			IsActive: true,
		}
		req.apply(alert)

		if err := h.alertRepo.CreateAlert(c.Request.Context(), alert); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create alert"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"alert": alert})
	}
}

// UpdateAlertHandler applies a partial update
// PUT /api/alerts/:id
func (h *AlertHandlers) UpdateAlertHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AlertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
		if msg := req.validate(); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}

		h.transition(c, "UPDATE_ALERT", func(a *models.Alert) string {
			req.apply(a)
			return ""
		})
	}
}

// ResolveAlertRequest optionally records how the alert was resolved
type ResolveAlertRequest struct {
	Notes *string `json:"notes"`
}

// @Summary      Resolve alert
// @Description  Marks the alert resolved and stamps the resolution date. Recorded as RESOLVE_ALERT.
// @Tags         Alerts
// @Security     Bearer
// @Param        id    path  string               true   "Alert ID"
// @Param        body  body  ResolveAlertRequest  false  "Resolution notes"
// @Success      200  {object}  map[string]interface{}  "alert: models.Alert"
// @Failure      404  {object}  map[string]interface{}  "Alert not found"
// @Failure      409  {object}  map[string]interface{}  "Alert already resolved"
// @Router       /api/alerts/{id}/resolve [put]
// ResolveAlertHandler resolves an alert
// PUT /api/alerts/:id/resolve
func (h *AlertHandlers) ResolveAlertHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ResolveAlertRequest
		// the body is optional
		_ = c.ShouldBindJSON(&req)

		h.transition(c, "RESOLVE_ALERT", func(a *models.Alert) string {
			if !resolve(a, time.Now().UTC()) {
				return "Alert already resolved"
			}
			setOptional(&a.Notes, req.Notes)
			return ""
		})
	}
}

// resolve marks a resolved as of now. It reports false when a was already resolved.
func resolve(a *models.Alert, now time.Time) bool {
	if a.Status == models.AlertStatusResolved {
		return false
	}
	a.Status = models.AlertStatusResolved
	a.ResolvedDate = &now
	return true
}

// BulkResolveRequest lists the alerts to resolve
type BulkResolveRequest struct {
	AlertIDs []string `json:"alertIds"`
}

// BulkResolveHandler resolves several alerts at once. Each alert that actually changes is
// recorded on its own as RESOLVE_ALERT; unknown and already resolved IDs are skipped.
// POST /api/alerts/bulk-resolve
func (h *AlertHandlers) BulkResolveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BulkResolveRequest
		if err := c.ShouldBindJSON(&req); err != nil || len(req.AlertIDs) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "alertIds must be a non-empty array"})
			return
		}
		if len(req.AlertIDs) > maxPageSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("At most %d alerts can be resolved at once", maxPageSize)})
			return
		}

		ctx := c.Request.Context()
		now := time.Now().UTC()
		seen := make(map[string]bool, len(req.AlertIDs))
		resolved := make([]string, 0, len(req.AlertIDs))
		for _, id := range req.AlertIDs {
			if seen[id] {
				continue
			}
			seen[id] = true

			existing, err := h.alertRepo.GetAlert(ctx, id)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve alert", "resolvedCount": len(resolved)})
				return
			}
			if existing == nil {
				continue
			}
			updated := *existing
			if !resolve(&updated, now) {
				continue
			}
			if err := h.alertRepo.UpdateAlert(ctx, &updated); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve alert", "resolvedCount": len(resolved)})
				return
			}
			logChanges(c, h.recorder, audit.ChangeSet{
				EntityType: audit.EntityAlert,
				EntityID:   updated.ID,
				EntityName: updated.Title,
				Action:     "RESOLVE_ALERT",
			}, existing, &updated)
			resolved = append(resolved, updated.ID)
		}

		c.JSON(http.StatusOK, gin.H{
			"message":       fmt.Sprintf("%d alerts resolved", len(resolved)),
			"resolvedCount": len(resolved),
			"resolvedIds":   resolved,
		})
	}
}

const (
	defaultUpcomingDays = 30
	maxUpcomingDays     = 365
)

// UpcomingAlertsHandler lists pending alerts due within the next ?days= days (default 30)
// GET /api/alerts/upcoming?days=
func (h *AlertHandlers) UpcomingAlertsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		days, err := strconv.Atoi(c.Query("days"))
		if err != nil || days < 1 {
			days = defaultUpcomingDays
		}
		if days > maxUpcomingDays {
			days = maxUpcomingDays
		}

		now := time.Now().UTC()
		alerts, err := h.alertRepo.ListUpcoming(c.Request.Context(), now, now.AddDate(0, 0, days))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list upcoming alerts"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"alerts": alerts, "days": days})
	}
}

// AssignAlertRequest names the user who takes the alert
type AssignAlertRequest struct {
	AssignedTo string `json:"assignedTo" binding:"required"`
}

// AssignAlertHandler assigns an alert to a user and moves a pending alert in progress
// PUT /api/alerts/:id/assign
func (h *AlertHandlers) AssignAlertHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AssignAlertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "assignedTo is required"})
			return
		}

		assignee, err := h.userRepo.GetUserByID(c.Request.Context(), req.AssignedTo)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
			return
		}
		if assignee == nil || !assignee.IsActive {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Assignee not found or inactive"})
			return
		}

		h.transition(c, "ASSIGN_ALERT", func(a *models.Alert) string {
			a.AssignedTo = &assignee.ID
			if a.Status == models.AlertStatusPending {
				a.Status = models.AlertStatusInProgress
			}
			return ""
		})
	}
}

// transition loads the :id alert, lets mutate change a copy, persists it and records the
// change under action. A non-empty string from mutate rejects the request with 409.
func (h *AlertHandlers) transition(c *gin.Context, action string, mutate func(*models.Alert) string) {
	existing, ok := h.loadAlert(c)
	if !ok {
		return
	}
	updated := *existing
	if msg := mutate(&updated); msg != "" {
		c.JSON(http.StatusConflict, gin.H{"error": msg})
		return
	}

	if err := h.alertRepo.UpdateAlert(c.Request.Context(), &updated); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update alert"})
		return
	}

	logChanges(c, h.recorder, audit.ChangeSet{
		EntityType: audit.EntityAlert,
		EntityID:   updated.ID,
		EntityName: updated.Title,
		Action:     action,
	}, existing, &updated)

	c.JSON(http.StatusOK, gin.H{"alert": updated})
}

// DeleteAlertHandler deletes an alert
// DELETE /api/alerts/:id
func (h *AlertHandlers) DeleteAlertHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		alert, ok := h.loadAlert(c)
		if !ok {
			return
		}
		if err := h.alertRepo.DeleteAlert(c.Request.Context(), alert.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete alert"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Alert deleted", "alert": alert})
	}
}

func (h *AlertHandlers) loadAlert(c *gin.Context) (*models.Alert, bool) {
	alert, err := h.alertRepo.GetAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve alert"})
		return nil, false
	}
	if alert == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return nil, false
	}
	return alert, true
}
