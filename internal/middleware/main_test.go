package middleware

import (
	"os"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestMain(m *testing.M) {
	// Tokens minted by the auth tests are verified with this secret.
	os.Setenv("AMIGA_JWT_SECRET", "middleware-test-secret-of-32-chars")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}
