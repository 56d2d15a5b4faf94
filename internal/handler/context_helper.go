package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-adp-api/internal/middleware"
	"github.com/noah-isme/sma-adp-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func studentSessionFromContext(c *gin.Context) *models.StudentSession {
	value, exists := c.Get(middleware.ContextStudentSessionKey)
	if !exists {
		return nil
	}
	session, ok := value.(*models.StudentSession)
	if !ok {
		return nil
	}
	return session
}
