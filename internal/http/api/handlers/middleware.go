package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/flexiproxy/flexiproxy/internal/token"
)

// Context keys set by the session middleware.
const (
	ContextUserID = "userID"
	ContextClaims = "sessionClaims"
)

// adminRole is the Extra claim value granting access to admin routes.
const adminRole = "admin"

// SessionAuthMiddleware verifies the bearer session assertion and injects
// the authenticated user ID into the request context.
func SessionAuthMiddleware(fab *token.Fabricator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		assertion := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

		claims, errVerify := fab.VerifySession(assertion)
		if errVerify != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextClaims, claims)
		c.Next()
	}
}

// AdminMiddleware requires an admin role claim on the verified session.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		v, exists := c.Get(ContextClaims)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
			return
		}
		claims, ok := v.(*token.SessionClaims)
		if !ok || claims.Extra["role"] != adminRole {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin required"})
			return
		}
		c.Next()
	}
}

func currentUserID(c *gin.Context) string {
	return strings.TrimSpace(c.GetString(ContextUserID))
}
