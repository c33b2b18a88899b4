package admin

import (
	"net/http"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amiga-fleet/amiga-backend/internal/audit"
	"github.com/amiga-fleet/amiga-backend/internal/db/models"
)

var alertCols = []string{
	"id", "title", "description", "type", "priority", "status", "entity_type", "entity_id",
	"due_date", "resolved_date", "assigned_to", "notes", "is_active", "created_at", "updated_at",
}

func alertRows(id, status string) *sqlmock.Rows {
	return sqlmock.NewRows(alertCols).AddRow(
		id, "ITV B-456-DE", "Inspección técnica anual", "itv", models.AlertPriorityHigh, status,
		"vehicle", "v-1", fixedTime, nil, nil, nil, true, fixedTime, fixedTime,
	)
}

var getAlertSQL = regexp.QuoteMeta(`SELECT * FROM alerts WHERE id = $1`)

func alertRouter(t *testing.T, recorder *audit.Recorder) (*gin.Engine, sqlmock.Sqlmock) {
	db, mock := newMockDB(t)
	h := NewAlertHandlers(db, recorder)

	r := gin.New()
	r.Use(actingAs(testAdmin))
	r.GET("/api/alerts", h.ListAlertsHandler())
	r.GET("/api/alerts/:id", h.GetAlertHandler())
	r.POST("/api/alerts", h.CreateAlertHandler())
	r.PUT("/api/alerts/:id", h.UpdateAlertHandler())
	r.PUT("/api/alerts/:id/resolve", h.ResolveAlertHandler())
	r.PUT("/api/alerts/:id/assign", h.AssignAlertHandler())
	r.DELETE("/api/alerts/:id", h.DeleteAlertHandler())
	r.GET("/api/alerts/upcoming", h.UpcomingAlertsHandler())
	r.POST("/api/alerts/bulk-resolve", h.BulkResolveHandler())
	return r, mock
}

func TestListAlerts(t *testing.T) {
	r, mock := alertRouter(t, nil)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM alerts WHERE status = $1`)).
		WithArgs("pending").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM alerts WHERE status = $1`)).
		WillReturnRows(alertRows("a-1", "pending").AddRow(
			"a-2", "Seguro 1234-KLM", "", "insurance", "low", "pending",
			"vehicle", "v-2", nil, nil, nil, nil, true, fixedTime, fixedTime,
		))

	w := serve(r, jsonRequest(t, http.MethodGet, "/api/alerts?status=pending", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decodeBody(t, w)["alerts"], 2)
}

func TestGetAlert(t *testing.T) {
	r, mock := alertRouter(t, nil)
	mock.ExpectQuery(getAlertSQL).WithArgs("a-1").WillReturnRows(alertRows("a-1", "pending"))

	w := serve(r, jsonRequest(t, http.MethodGet, "/api/alerts/a-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ITV B-456-DE", decodeBody(t, w)["alert"].(map[string]interface{})["title"])
}

func TestCreateAlert(t *testing.T) {
	r, mock := alertRouter(t, nil)
	mock.ExpectExec("INSERT INTO alerts").WillReturnResult(sqlmock.NewResult(0, 1))

	w := serve(r, jsonRequest(t, http.MethodPost, "/api/alerts", map[string]interface{}{
		"title":      "Revisión extintor",
		"type":       "maintenance",
		"entityType": "vehicle",
		"entityId":   "v-3",
	}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	alert := decodeBody(t, w)["alert"].(map[string]interface{})
	assert.Equal(t, models.AlertPriorityMedium, alert["priority"])
	assert.Equal(t, models.AlertStatusPending, alert["status"])
}

func TestCreateAlert_Validation(t *testing.T) {
	r, _ := alertRouter(t, nil)

	w := serve(r, jsonRequest(t, http.MethodPost, "/api/alerts", map[string]interface{}{"title": "x"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(r, jsonRequest(t, http.MethodPost, "/api/alerts", map[string]interface{}{
		"title": "x", "type": "itv", "entityType": "vehicle", "entityId": "v-1", "priority": "critical",
	}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid priority", decodeBody(t, w)["error"])
}

func TestUpdateAlert_RecordsChange(t *testing.T) {
	recorder, store := newRecorder()
	r, mock := alertRouter(t, recorder)
	mock.ExpectQuery(getAlertSQL).WithArgs("a-1").WillReturnRows(alertRows("a-1", "pending"))
	mock.ExpectExec("UPDATE alerts SET").WillReturnResult(sqlmock.NewResult(0, 1))

	w := serve(r, jsonRequest(t, http.MethodPut, "/api/alerts/a-1", map[string]interface{}{"priority": "urgent"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	recorder.Wait()

	records := store.stored()
	require.Len(t, records, 1)
	assert.Equal(t, "UPDATE_ALERT", records[0].Action)
	assert.Equal(t, "ITV B-456-DE", *records[0].EntityName)
	assert.Equal(t, map[string]audit.Change{"priority": {Old: "high", New: "urgent"}}, records[0].Changes)
}

func TestUpdateAlert_InvalidStatus(t *testing.T) {
	r, _ := alertRouter(t, nil)
	w := serve(r, jsonRequest(t, http.MethodPut, "/api/alerts/a-1", map[string]interface{}{"status": "done"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResolveAlert(t *testing.T) {
	recorder, store := newRecorder()
	r, mock := alertRouter(t, recorder)
	mock.ExpectQuery(getAlertSQL).WithArgs("a-1").WillReturnRows(alertRows("a-1", "in_progress"))
	mock.ExpectExec("UPDATE alerts SET").WillReturnResult(sqlmock.NewResult(0, 1))

	w := serve(r, jsonRequest(t, http.MethodPut, "/api/alerts/a-1/resolve", map[string]interface{}{"notes": "ITV pasada"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	recorder.Wait()

	alert := decodeBody(t, w)["alert"].(map[string]interface{})
	assert.Equal(t, models.AlertStatusResolved, alert["status"])
	assert.NotEmpty(t, alert["resolvedDate"])

	records := store.stored()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "RESOLVE_ALERT", rec.Action)
	assert.Equal(t, audit.Change{Old: "in_progress", New: "resolved"}, rec.Changes["status"])
	assert.Equal(t, "ITV pasada", rec.Changes["notes"].New)
	assert.True(t, rec.Changes["notes"].Old == nil || audit.IsAbsent(rec.Changes["notes"].Old))
	assert.Contains(t, rec.Changes, "resolvedDate")
}

func TestResolveAlert_AlreadyResolved(t *testing.T) {
	recorder, store := newRecorder()
	r, mock := alertRouter(t, recorder)
	mock.ExpectQuery(getAlertSQL).WithArgs("a-1").WillReturnRows(alertRows("a-1", "resolved"))

	w := serve(r, jsonRequest(t, http.MethodPut, "/api/alerts/a-1/resolve", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	recorder.Wait()
	assert.Empty(t, store.stored())
}

func TestBulkResolve(t *testing.T) {
	recorder, store := newRecorder()
	r, mock := alertRouter(t, recorder)
	mock.ExpectQuery(getAlertSQL).WithArgs("a-1").WillReturnRows(alertRows("a-1", "pending"))
	mock.ExpectExec("UPDATE alerts SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(getAlertSQL).WithArgs("a-2").WillReturnRows(alertRows("a-2", "in_progress"))
	mock.ExpectExec("UPDATE alerts SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(getAlertSQL).WithArgs("a-3").WillReturnRows(alertRows("a-3", "resolved"))
	mock.ExpectQuery(getAlertSQL).WithArgs("a-404").WillReturnRows(sqlmock.NewRows(alertCols))

	w := serve(r, jsonRequest(t, http.MethodPost, "/api/alerts/bulk-resolve", map[string]interface{}{
		"alertIds": []string{"a-1", "a-2", "a-3", "a-404", "a-1"},
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	recorder.Wait()

	body := decodeBody(t, w)
	assert.Equal(t, float64(2), body["resolvedCount"])
	assert.Equal(t, []interface{}{"a-1", "a-2"}, body["resolvedIds"])
	assert.NoError(t, mock.ExpectationsWereMet())

	records := store.stored()
	require.Len(t, records, 2, "one change record per resolved alert")
	ids := map[string]string{}
	for _, rec := range records {
		assert.Equal(t, "RESOLVE_ALERT", rec.Action)
		assert.Equal(t, "alert", rec.EntityType)
		require.NotNil(t, rec.EntityID)
		ids[*rec.EntityID] = rec.Changes["status"].Old.(string)
	}
	assert.Equal(t, map[string]string{"a-1": "pending", "a-2": "in_progress"}, ids)
}

func TestBulkResolve_InvalidBody(t *testing.T) {
	r, _ := alertRouter(t, nil)
	for _, body := range []interface{}{
		map[string]interface{}{},
		map[string]interface{}{"alertIds": []string{}},
		map[string]interface{}{"alertIds": "a-1"},
	} {
		w := serve(r, jsonRequest(t, http.MethodPost, "/api/alerts/bulk-resolve", body))
		assert.Equal(t, http.StatusBadRequest, w.Code, "%v", body)
	}

	tooMany := make([]string, maxPageSize+1)
	for i := range tooMany {
		tooMany[i] = "a"
	}
	w := serve(r, jsonRequest(t, http.MethodPost, "/api/alerts/bulk-resolve", map[string]interface{}{"alertIds": tooMany}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpcomingAlerts(t *testing.T) {
	tests := []struct {
		query    string
		wantDays float64
	}{
		{"", defaultUpcomingDays},
		{"?days=7", 7},
		{"?days=-2", defaultUpcomingDays},
		{"?days=5000", maxUpcomingDays},
	}
	for _, tt := range tests {
		r, mock := alertRouter(t, nil)
		mock.ExpectQuery("SELECT \\* FROM alerts WHERE status = \\$1 AND is_active = true AND due_date BETWEEN").
			WithArgs(models.AlertStatusPending, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(alertRows("a-1", "pending"))

		w := serve(r, jsonRequest(t, http.MethodGet, "/api/alerts/upcoming"+tt.query, nil))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decodeBody(t, w)
		assert.Equal(t, tt.wantDays, body["days"], tt.query)
		assert.Len(t, body["alerts"], 1, tt.query)
	}
}

func TestAssignAlert(t *testing.T) {
	recorder, store := newRecorder()
	r, mock := alertRouter(t, recorder)
	mock.ExpectQuery(byIDSQL).WithArgs("u-7").WillReturnRows(userRows("u-7", "pruiz", "h", models.RoleOperator, true))
	mock.ExpectQuery(getAlertSQL).WithArgs("a-1").WillReturnRows(alertRows("a-1", "pending"))
	mock.ExpectExec("UPDATE alerts SET").WillReturnResult(sqlmock.NewResult(0, 1))

	w := serve(r, jsonRequest(t, http.MethodPut, "/api/alerts/a-1/assign", map[string]interface{}{"assignedTo": "u-7"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	recorder.Wait()

	records := store.stored()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "ASSIGN_ALERT", rec.Action)
	assert.Equal(t, "u-7", rec.Changes["assignedTo"].New)
	assert.Equal(t, audit.Change{Old: "pending", New: "in_progress"}, rec.Changes["status"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignAlert_InactiveAssignee(t *testing.T) {
	r, mock := alertRouter(t, nil)
	mock.ExpectQuery(byIDSQL).WithArgs("u-7").WillReturnRows(userRows("u-7", "pruiz", "h", models.RoleOperator, false))

	w := serve(r, jsonRequest(t, http.MethodPut, "/api/alerts/a-1/assign", map[string]interface{}{"assignedTo": "u-7"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteAlert(t *testing.T) {
	r, mock := alertRouter(t, nil)
	mock.ExpectQuery(getAlertSQL).WithArgs("a-404").WillReturnRows(sqlmock.NewRows(alertCols))

	w := serve(r, jsonRequest(t, http.MethodDelete, "/api/alerts/a-404", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	mock.ExpectQuery(getAlertSQL).WithArgs("a-1").WillReturnRows(alertRows("a-1", "cancelled"))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM alerts WHERE id = $1`)).WillReturnResult(sqlmock.NewResult(0, 1))

	w = serve(r, jsonRequest(t, http.MethodDelete, "/api/alerts/a-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
