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

func userRouter(t *testing.T, recorder *audit.Recorder) (*gin.Engine, sqlmock.Sqlmock) {
	db, mock := newMockDB(t)
	h := NewUserHandlers(testConfig(), db, recorder)

	r := gin.New()
	r.Use(actingAs(testAdmin))
	r.GET("/api/users", h.ListUsersHandler())
	r.GET("/api/users/:id", h.GetUserHandler())
	r.POST("/api/users", h.CreateUserHandler())
	r.PUT("/api/users/:id", h.UpdateUserHandler())
	r.DELETE("/api/users/:id", h.DeleteUserHandler())
	return r, mock
}

func TestListUsers_Filters(t *testing.T) {
	r, mock := userRouter(t, nil)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM users WHERE role = $1 AND is_active = $2`)).
		WithArgs(models.RoleOperator, true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM users WHERE role = $1 AND is_active = $2 ORDER BY last_name, first_name LIMIT $3 OFFSET $4`)).
		WithArgs(models.RoleOperator, true, 20, 20).
		WillReturnRows(userRows("u-7", "pruiz", "hash", models.RoleOperator, true))

	w := serve(r, jsonRequest(t, http.MethodGet, "/api/users?role=operador&isActive=true&page=2", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	users := body["users"].([]interface{})
	require.Len(t, users, 1)
	assert.NotContains(t, users[0], "passwordHash")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUser_NotFound(t *testing.T) {
	r, mock := userRouter(t, nil)
	mock.ExpectQuery(byIDSQL).WithArgs("u-404").WillReturnRows(sqlmock.NewRows(userCols))

	w := serve(r, jsonRequest(t, http.MethodGet, "/api/users/u-404", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateUser(t *testing.T) {
	r, mock := userRouter(t, nil)
	mock.ExpectQuery(byUsernameSQL).WillReturnRows(sqlmock.NewRows(userCols))
	mock.ExpectQuery(byEmailSQL).WillReturnRows(sqlmock.NewRows(userCols))
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(0, 1))

	w := serve(r, jsonRequest(t, http.MethodPost, "/api/users", registerBody(map[string]interface{}{"role": "gestor"})))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, models.RoleGestor, decodeBody(t, w)["user"].(map[string]interface{})["role"])
}

func TestUpdateUser_RecordsChangesWithoutPassword(t *testing.T) {
	recorder, store := newRecorder()
	r, mock := userRouter(t, recorder)
	mock.ExpectQuery(byIDSQL).WithArgs("u-7").WillReturnRows(userRows("u-7", "pruiz", "old-hash", models.RoleViewer, true))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET password_hash = $1`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET").WillReturnResult(sqlmock.NewResult(0, 1))

	w := serve(r, jsonRequest(t, http.MethodPut, "/api/users/u-7", map[string]interface{}{
		"role":     "operador",
		"password": "a-brand-new-secret",
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	recorder.Wait()

	records := store.stored()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "UPDATE_USER", rec.Action)
	assert.Equal(t, "user", rec.EntityType)
	assert.Equal(t, "Pablo Ruiz Sanz", *rec.EntityName)
	assert.Equal(t, map[string]audit.Change{"role": {Old: "visualizador", New: "operador"}}, rec.Changes)
	assert.NotContains(t, rec.OldValues, "password")
	assert.NotContains(t, rec.NewValues, "passwordHash")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateUser_InvalidRole(t *testing.T) {
	r, _ := userRouter(t, nil)
	w := serve(r, jsonRequest(t, http.MethodPut, "/api/users/u-7", map[string]interface{}{"role": "root"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateUser_ShortPassword(t *testing.T) {
	r, mock := userRouter(t, nil)
	mock.ExpectQuery(byIDSQL).WillReturnRows(userRows("u-7", "pruiz", "old-hash", models.RoleViewer, true))

	w := serve(r, jsonRequest(t, http.MethodPut, "/api/users/u-7", map[string]interface{}{"password": "short"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteUser(t *testing.T) {
	t.Run("self", func(t *testing.T) {
		r, _ := userRouter(t, nil)
		w := serve(r, jsonRequest(t, http.MethodDelete, "/api/users/"+testAdmin.ID, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("other", func(t *testing.T) {
		r, mock := userRouter(t, nil)
		mock.ExpectQuery(byIDSQL).WithArgs("u-7").WillReturnRows(userRows("u-7", "pruiz", "hash", models.RoleViewer, true))
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM users WHERE id = $1`)).WithArgs("u-7").WillReturnResult(sqlmock.NewResult(0, 1))

		w := serve(r, jsonRequest(t, http.MethodDelete, "/api/users/u-7", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "pruiz", decodeBody(t, w)["user"].(map[string]interface{})["username"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
