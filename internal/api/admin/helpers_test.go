package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/amiga-fleet/amiga-backend/internal/audit"
	"github.com/amiga-fleet/amiga-backend/internal/db/models"
	"github.com/amiga-fleet/amiga-backend/internal/middleware"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

// memAuditStore collects the records a Recorder persists
type memAuditStore struct {
	mu      sync.Mutex
	records []*models.AuditLog
}

func (s *memAuditStore) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, log)
	return nil
}

func (s *memAuditStore) stored() []*models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.AuditLog(nil), s.records...)
}

func newRecorder() (*audit.Recorder, *memAuditStore) {
	store := &memAuditStore{}
	return audit.NewRecorder(store, nil, audit.NewBuilder(audit.NewClassifier("/api")), time.Second), store
}

var testAdmin = &models.User{
	ID:        "u-admin",
	Username:  "lgil",
	Email:     "laura.gil@amiga.example",
	FirstName: "Laura",
	LastName:  "Gil",
	Role:      models.RoleAdmin,
	IsActive:  true,
}

// actingAs stands in for AuthMiddleware
func actingAs(user *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		if user != nil {
			middleware.SetUser(c, user)
		}
		c.Next()
	}
}

func jsonRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

var fixedTime = time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)
