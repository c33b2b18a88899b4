package admin

import (
	"os"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestMain(m *testing.M) {
	// GenerateJWT refuses to sign without a secret
	os.Setenv("AMIGA_JWT_SECRET", "test-admin-jwt-secret-that-is-32chars!!")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}
