package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cataloghq/datastore/internal/auth"
)

// BearerToken extracts the bearer token from the Authorization header.
// Returns an empty string when no bearer credentials are present.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// RequireToken creates a middleware rejecting requests whose bearer token
// fails verification.
func RequireToken(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := verifier.Verify(BearerToken(c)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}
		c.Next()
	}
}
