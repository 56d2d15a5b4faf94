package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-adp-api/internal/auth"
	appErrors "github.com/noah-isme/sma-adp-api/pkg/errors"
	"github.com/noah-isme/sma-adp-api/pkg/response"
)

// ContextUserKey is the gin context key storing staff JWT claims.
const ContextUserKey = "currentUser"

// ContextStudentSessionKey is the gin context key storing the authenticated
// student session row, set by StudentSession.
const ContextStudentSessionKey = "currentStudentSession"

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// JWT protects routes by requiring a valid staff access token.
func JWT(staffService *auth.StaffService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			response.Error(c, appErrors.ErrAuthRequired)
			c.Abort()
			return
		}

		claims, err := staffService.ValidateToken(raw)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// OptionalJWT attaches claims when present but does not block the request.
func OptionalJWT(staffService *auth.StaffService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}

		claims, err := staffService.ValidateToken(raw)
		if err != nil {
			c.Next()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// StudentSession protects student-facing routes by requiring a valid,
// unexpired session id in the Authorization header.
func StudentSession(studentService *auth.StudentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			response.Error(c, appErrors.ErrAuthRequired)
			c.Abort()
			return
		}

		session, err := studentService.Authenticate(c.Request.Context(), raw)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextStudentSessionKey, session)
		c.Next()
	}
}
