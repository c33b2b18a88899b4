// audit.go exposes the audit trail read side: filtered listing, single records, and the
// recent activity of a user or an entity.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amiga-fleet/amiga-backend/internal/db/repositories"
)

// defaultAuditPageSize applies to the audit list and the activity views
const defaultAuditPageSize = 50

// AuditHandlers handles audit log endpoints
type AuditHandlers struct {
	auditRepo *repositories.AuditRepository
}

// NewAuditHandlers creates a new AuditHandlers instance
func NewAuditHandlers(auditRepo *repositories.AuditRepository) *AuditHandlers {
	return &AuditHandlers{auditRepo: auditRepo}
}

// @Summary      List audit logs
// @Description  Newest first. Dates accept RFC 3339 or YYYY-MM-DD; a date-only endDate includes that whole day. Restricted to admin and gestor.
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Param        actorId     query  string  false  "Actor user ID"
// @Param        action      query  string  false  "Action, e.g. UPDATE_VEHICLE"
// @Param        entityType  query  string  false  "vehicle, user, document, alert, company or system"
// @Param        entityId    query  string  false  "Entity ID"
// @Param        outcome     query  bool    false  "true for successes, false for failures"
// @Param        startDate   query  string  false  "Lower bound on creation time"
// @Param        endDate     query  string  false  "Upper bound on creation time"
// @Param        page        query  int     false  "Page number (default 1)"
// @Param        limit       query  int     false  "Items per page, max 100 (default 50)"
// @Success      200  {object}  map[string]interface{}  "logs: []models.AuditLog, pagination: map"
// @Failure      400  {object}  map[string]interface{}  "Invalid date"
// @Router       /api/audit/logs [get]
// ListAuditLogsHandler lists audit records
func (h *AuditHandlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, limit, offset := paginationWithDefault(c, defaultAuditPageSize)
		filters := repositories.AuditFilters{
			ActorID:    queryPtr(c, "actorId"),
			Action:     queryPtr(c, "action"),
			EntityType: queryPtr(c, "entityType"),
			EntityID:   queryPtr(c, "entityId"),
			Outcome:    queryBool(c, "outcome"),
		}

		var err error
		if filters.StartDate, err = parseDateParam(c.Query("startDate"), false); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid startDate"})
			return
		}
		if filters.EndDate, err = parseDateParam(c.Query("endDate"), true); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid endDate"})
			return
		}

		logs, total, err := h.auditRepo.ListAuditLogs(c.Request.Context(), filters, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list audit logs"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"logs":       logs,
			"pagination": paginationBody(page, limit, total),
		})
	}
}

// GetAuditLogHandler returns one record
// GET /api/audit/logs/:id
func (h *AuditHandlers) GetAuditLogHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		log, err := h.auditRepo.GetAuditLog(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve audit log"})
			return
		}
		if log == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Audit log not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"log": log})
	}
}

// UserActivityHandler returns the latest records produced by a user
// GET /api/audit/user-activity/:userId?limit=
func (h *AuditHandlers) UserActivityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logs, err := h.auditRepo.GetUserActivity(c.Request.Context(), c.Param("userId"), activityLimit(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user activity"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"logs": logs})
	}
}

// EntityActivityHandler returns the latest records about an entity
// GET /api/audit/entity-activity/:entityType/:entityId?limit=
func (h *AuditHandlers) EntityActivityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logs, err := h.auditRepo.GetEntityActivity(c.Request.Context(), c.Param("entityType"), c.Param("entityId"), activityLimit(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve entity activity"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"logs": logs})
	}
}

func activityLimit(c *gin.Context) int {
	return clampLimit(c.Query("limit"), defaultAuditPageSize)
}

// parseDateParam accepts RFC 3339 or YYYY-MM-DD. With endOfDay, a bare date is moved to
// the last instant of that day.
func parseDateParam(v string, endOfDay bool) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
