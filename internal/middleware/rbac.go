package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-adp-api/internal/models"
	appErrors "github.com/noah-isme/sma-adp-api/pkg/errors"
	"github.com/noah-isme/sma-adp-api/pkg/response"
)

// RequireAdmin gates admin-only routes (spec §4.8 "role >= admin"): the
// mapping, username-map, audit, artifact-delete, and export endpoints
// under /admin.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrAuthRequired)
			c.Abort()
			return
		}
		claims, ok := claimsValue.(*models.JWTClaims)
		if !ok || !claims.Role.AtLeastAdmin() {
			response.Error(c, appErrors.ErrAuthz)
			c.Abort()
			return
		}
		c.Next()
	}
}
