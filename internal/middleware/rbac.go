// Package middleware (rbac.go) implements role-based authorization.
//
// The role is read from the user loaded by AuthMiddleware on every request rather than from
// the token, so a role change takes effect on the user's next request.

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireRole allows the request only when the authenticated user holds one of roles
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		roleVal, exists := c.Get(ContextUserRole)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		role, ok := roleVal.(string)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Invalid role format",
			})
			return
		}

		if _, ok := allowed[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Insufficient permissions",
				"details": "Role " + role + " may not perform this action",
			})
			return
		}

		c.Next()
	}
}
