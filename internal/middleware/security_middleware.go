package middleware

import (
	"net/http"
	"strings"

	"go-pos-ledger/internal/apperr"
	"go-pos-ledger/internal/auth"

	"github.com/gin-gonic/gin"
)

// Context keys set by AuthMiddleware.
const (
	KeyUserID   = "userID"
	KeyUsername = "username"
	KeyRole     = "role"
)

// TokenValidator is satisfied by *auth.Issuer.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

func deny(c *gin.Context, status int, code apperr.Code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg, "code": code})
}

// AuthMiddleware checks if the user has a valid JWT token
func AuthMiddleware(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Format: "Bearer <token>". EventSource cannot set headers, so the SSE feed may pass ?token=.
		tokenString := ""
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				deny(c, http.StatusUnauthorized, apperr.CodeUnauthorized, "Authorization header must start with Bearer")
				return
			}
		} else {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			deny(c, http.StatusUnauthorized, apperr.CodeUnauthorized, "Authorization header is required")
			return
		}

		claims, err := tokens.ValidateToken(tokenString)
		if err != nil {
			deny(c, http.StatusUnauthorized, apperr.CodeUnauthorized, "Invalid or expired token")
			return
		}

		c.Set(KeyUserID, claims.UserID)
		c.Set(KeyUsername, claims.Username)
		c.Set(KeyRole, claims.Role)
		c.Next()
	}
}

// RequireRole is a secondary guard that checks for specific permissions
func RequireRole(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(KeyRole)
		for _, r := range allowed {
			if role == r {
				c.Next()
				return
			}
		}
		deny(c, http.StatusForbidden, apperr.CodeUnauthorized, "You do not have permission to access this resource")
	}
}

// UserID returns the authenticated user's id, or 0 on public routes.
func UserID(c *gin.Context) uint {
	return c.GetUint(KeyUserID)
}
