package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"support-chat/internal/auth"
)

const principalKey = "principal"

// AuthMiddleware validates the Authorization bearer token.
func AuthMiddleware(verifier auth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		principal, err := verifier.Verify(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		SetPrincipal(c, principal)
		c.Next()
	}
}

// RequireAdmin rejects callers whose token role is not admin.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok || !p.Role.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}
		c.Next()
	}
}

// SetPrincipal stores the caller on the gin context.
func SetPrincipal(c *gin.Context, p auth.Principal) {
	c.Set(principalKey, p)
	c.Set("userID", p.UserID)
}

// GetPrincipal returns the caller stored by AuthMiddleware.
func GetPrincipal(c *gin.Context) (auth.Principal, bool) {
	val, ok := c.Get(principalKey)
	if !ok {
		return auth.Principal{}, false
	}
	p, ok := val.(auth.Principal)
	return p, ok
}
