package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-adp-api/internal/auth"
	"github.com/noah-isme/sma-adp-api/internal/models"
	appErrors "github.com/noah-isme/sma-adp-api/pkg/errors"
	"github.com/noah-isme/sma-adp-api/pkg/response"
)

// AuthHandler exposes staff and student login/logout.
type AuthHandler struct {
	staff    *auth.StaffService
	student  *auth.StudentService
	validate *validator.Validate
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(staff *auth.StaffService, student *auth.StudentService) *AuthHandler {
	return &AuthHandler{staff: staff, student: student, validate: validator.New()}
}

// StaffLogin handles POST /auth/staff/login.
func (h *AuthHandler) StaffLogin(c *gin.Context) {
	var req models.StaffLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}

	resp, err := h.staff.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// StudentLogin handles POST /auth/student/login.
func (h *AuthHandler) StudentLogin(c *gin.Context) {
	var req models.StudentLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}

	resp, err := h.student.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// StudentLogout handles POST /auth/student/logout.
func (h *AuthHandler) StudentLogout(c *gin.Context) {
	session := studentSessionFromContext(c)
	if session == nil {
		response.Error(c, appErrors.ErrAuthRequired)
		return
	}
	if err := h.student.Logout(c.Request.Context(), session.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
