// Package middleware provides Gin HTTP middleware for authentication, authorization,
// rate limiting, security headers, request ids, metrics, and the audit interceptor.
//
// Middleware ordering matters and is enforced in router.go:
//
//	RequestID → Security → Metrics → RateLimit → Audit → Auth → RBAC → Handler
//
// The audit interceptor wraps authentication so that rejected logins and 401/403 responses
// are recorded too; it reads the actor after c.Next() returns, by which time Auth has
// populated it.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/amiga-fleet/amiga-backend/internal/auth"
	"github.com/amiga-fleet/amiga-backend/internal/db/models"
	"github.com/amiga-fleet/amiga-backend/internal/db/repositories"
)

// Context keys set by the auth middleware
const (
	ContextUser      = "user"
	ContextUserID    = "user_id"
	ContextUserName  = "user_name"
	ContextUserRole  = "user_role"
	ContextUserEmail = "user_email"
)

// AuthMiddleware requires a valid Bearer JWT for an active user
func AuthMiddleware(userRepo *repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing authorization header",
			})
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header must start with 'Bearer '",
			})
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token is empty",
			})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		user, err := userRepo.GetUserByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load user",
			})
			return
		}
		if user == nil || !user.IsActive {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "User not found or inactive",
			})
			return
		}

		SetUser(c, user)
		c.Next()
	}
}

// OptionalAuthMiddleware populates the user when a valid token is present and never aborts
func OptionalAuthMiddleware(userRepo *repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if !strings.HasPrefix(authHeader, "Bearer ") || token == "" {
			c.Next()
			return
		}

		if claims, err := auth.ValidateJWT(token); err == nil {
			user, err := userRepo.GetUserByID(c.Request.Context(), claims.UserID)
			if err == nil && user != nil && user.IsActive {
				SetUser(c, user)
			}
		}
		c.Next()
	}
}

// SetUser stores user as the request's actor. Login calls it so that its own audit record
// carries the user that just signed in.
func SetUser(c *gin.Context, user *models.User) {
	c.Set(ContextUser, user)
	c.Set(ContextUserID, user.ID)
	c.Set(ContextUserName, user.DisplayName())
	c.Set(ContextUserRole, user.Role)
	c.Set(ContextUserEmail, user.Email)
}

// CurrentUser returns the authenticated user, if any
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(ContextUser); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}
