// common.go holds request parsing and change logging shared by the admin handlers.
package admin

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/amiga-fleet/amiga-backend/internal/audit"
	"github.com/amiga-fleet/amiga-backend/internal/middleware"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// pagination reads ?page=&limit= with defaults 1 and 20. A limit above 100 is capped at
// 100; a missing or non-positive one falls back to the default.
func pagination(c *gin.Context) (page, limit, offset int) {
	return paginationWithDefault(c, defaultPageSize)
}

func paginationWithDefault(c *gin.Context, defaultLimit int) (page, limit, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit = clampLimit(c.Query("limit"), defaultLimit)
	return page, limit, (page - 1) * limit
}

// clampLimit parses a limit query value into [1, maxPageSize], using def when it is absent
// or invalid
func clampLimit(raw string, def int) int {
	limit, err := strconv.Atoi(raw)
	switch {
	case err != nil || limit < 1:
		return def
	case limit > maxPageSize:
		return maxPageSize
	}
	return limit
}

func paginationBody(page, limit, total int) gin.H {
	return gin.H{"page": page, "limit": limit, "total": total}
}

// queryPtr returns the query parameter, or nil when it is absent or empty
func queryPtr(c *gin.Context, key string) *string {
	if v := c.Query(key); v != "" {
		return &v
	}
	return nil
}

// queryBool parses a boolean query parameter; unparsable values are ignored
func queryBool(c *gin.Context, key string) *bool {
	v, err := strconv.ParseBool(c.Query(key))
	if err != nil {
		return nil
	}
	return &v
}

// timestampFields change on every write and are left out of change records
var timestampFields = []string{"createdAt", "updatedAt"}

// logChanges records the field-level difference between two versions of an entity on
// behalf of the request's actor. Snapshot failures are logged and otherwise ignored.
func logChanges(c *gin.Context, recorder *audit.Recorder, cs audit.ChangeSet, before, after interface{}) {
	if recorder == nil {
		return
	}
	var err error
	if cs.Old, err = audit.Snapshot(before); err == nil {
		cs.New, err = audit.Snapshot(after)
	}
	if err != nil {
		slog.Warn("change not recorded", "entity_type", cs.EntityType, "entity_id", cs.EntityID, "error", err)
		return
	}
	for _, f := range timestampFields {
		delete(cs.Old, f)
		delete(cs.New, f)
	}
	cs.Actor = middleware.ActorFromContext(c)
	recorder.LogChanges(c.Request.Context(), cs)
}
