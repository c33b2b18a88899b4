package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/amiga-fleet/amiga-backend/internal/db/models"
)

// newRoleRouter builds a gin engine where a setup handler sets the role (if non-nil), the
// middleware under test runs, and a final handler returns 200
func newRoleRouter(mid gin.HandlerFunc, role interface{}) *gin.Engine {
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		if role != nil {
			c.Set(ContextUserRole, role)
		}
	}, mid, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func do(r *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	r.ServeHTTP(w, req)
	return w
}

func TestRequireRole(t *testing.T) {
	mid := RequireRole(models.RoleAdmin, models.RoleGestor)

	tests := []struct {
		name string
		role interface{}
		want int
	}{
		{"no role in context", nil, http.StatusUnauthorized},
		{"wrong type in context", 42, http.StatusForbidden},
		{"role not allowed", models.RoleOperator, http.StatusForbidden},
		{"viewer not allowed", models.RoleViewer, http.StatusForbidden},
		{"admin allowed", models.RoleAdmin, http.StatusOK},
		{"gestor allowed", models.RoleGestor, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(newRoleRouter(mid, tt.role)); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRequireRole_NoRolesDeniesEveryone(t *testing.T) {
	if w := do(newRoleRouter(RequireRole(), models.RoleAdmin)); w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}
