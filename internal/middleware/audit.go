package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-adp-api/internal/models"
	"github.com/noah-isme/sma-adp-api/internal/repository"
)

// Audit records exactly one audit entry per request, regardless of outcome,
// naming the action after the endpoint it guards.
func Audit(repo *repository.AuditRepository, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		actorType := models.ActorTypeSystem
		var actorID *string
		if claims, ok := c.Get(ContextUserKey); ok {
			if user, ok := claims.(*models.JWTClaims); ok {
				actorType = models.ActorTypeStaff
				id := user.UserID
				actorID = &id
			}
		}
		if value, ok := c.Get(ContextStudentSessionKey); ok {
			if session, ok := value.(*models.StudentSession); ok && session != nil {
				actorType = models.ActorTypeStudent
				id := session.ID
				actorID = &id
			}
		}

		result := "SUCCESS"
		if c.Writer.Status() >= http.StatusBadRequest {
			result = "FAILURE"
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"path":   c.FullPath(),
			"method": c.Request.Method,
			"status": c.Writer.Status(),
		})

		entry := &models.AuditEntry{
			ActorType:      actorType,
			ActorID:        actorID,
			Action:         action,
			Target:         c.FullPath(),
			RequestPayload: payload,
			Result:         result,
			IPAddress:      c.ClientIP(),
			UserAgent:      c.GetHeader("User-Agent"),
		}

		if repo == nil {
			return
		}
		if err := repo.Create(c.Request.Context(), entry); err != nil {
			c.Error(fmt.Errorf("audit write failed: %w", err))
		}
	}
}
