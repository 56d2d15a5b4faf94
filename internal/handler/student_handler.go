package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-adp-api/internal/dto"
	"github.com/noah-isme/sma-adp-api/internal/middleware"
	"github.com/noah-isme/sma-adp-api/internal/models"
	"github.com/noah-isme/sma-adp-api/internal/orchestrator"
	"github.com/noah-isme/sma-adp-api/internal/repository"
	"github.com/noah-isme/sma-adp-api/internal/service"
	"github.com/noah-isme/sma-adp-api/internal/storage"
	appErrors "github.com/noah-isme/sma-adp-api/pkg/errors"
	"github.com/noah-isme/sma-adp-api/pkg/response"
)

const dashboardCacheTTL = 30 * time.Second

func dashboardCacheKey(registerNumber string) string {
	return fmt.Sprintf("dashboard:%s", registerNumber)
}

// StudentHandler exposes the student-facing dashboard and submission
// endpoints. Every route here sits behind the StudentSession middleware.
type StudentHandler struct {
	artifacts    *repository.ArtifactRepository
	content      *storage.ContentStore
	orchestrator *orchestrator.Orchestrator
	cache        *service.CacheService
}

// NewStudentHandler constructs the handler. cache may be nil, in which case
// the dashboard always reads through to the repository.
func NewStudentHandler(artifacts *repository.ArtifactRepository, content *storage.ContentStore, orch *orchestrator.Orchestrator, cache *service.CacheService) *StudentHandler {
	return &StudentHandler{artifacts: artifacts, content: content, orchestrator: orch, cache: cache}
}

// Dashboard handles GET /student/dashboard. Results are cached per register
// number for a short window since the same student tends to poll this
// endpoint repeatedly while waiting on a submission.
func (h *StudentHandler) Dashboard(c *gin.Context) {
	session := studentSessionFromContext(c)
	if session == nil {
		response.Error(c, appErrors.ErrAuthRequired)
		return
	}

	key := dashboardCacheKey(session.RegisterNumber)
	var summaries []dto.ArtifactSummary
	hit, err := h.cache.Get(c.Request.Context(), key, &summaries)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !hit {
		artifacts, err := h.artifacts.ListByRegister(c.Request.Context(), session.RegisterNumber)
		if err != nil {
			response.Error(c, err)
			return
		}
		summaries = make([]dto.ArtifactSummary, len(artifacts))
		for i := range artifacts {
			summaries[i] = dto.FromArtifact(&artifacts[i])
		}
		_ = h.cache.Set(c.Request.Context(), key, summaries, dashboardCacheTTL)
	}

	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, summaries, nil, middleware.ExtractMeta(c))
}

func (h *StudentHandler) loadOwnedArtifact(c *gin.Context) (*models.Artifact, *models.StudentSession, bool) {
	session := studentSessionFromContext(c)
	if session == nil {
		response.Error(c, appErrors.ErrAuthRequired)
		return nil, nil, false
	}

	artifact, err := h.artifacts.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return nil, nil, false
	}

	if artifact.RegisterNumber != session.RegisterNumber {
		response.Error(c, appErrors.ErrAuthz)
		return nil, nil, false
	}

	return artifact, session, true
}

// View handles GET /student/paper/{id}/view.
func (h *StudentHandler) View(c *gin.Context) {
	artifact, _, ok := h.loadOwnedArtifact(c)
	if !ok {
		return
	}

	data, err := h.content.Get(c.Request.Context(), h.artifacts, artifact.ID, artifact.DiskPath)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Data(http.StatusOK, artifact.MimeType, data)
}

// Submit handles POST /student/submit/{id}.
func (h *StudentHandler) Submit(c *gin.Context) {
	artifact, session, ok := h.loadOwnedArtifact(c)
	if !ok {
		return
	}

	submitted, err := h.orchestrator.Submit(c.Request.Context(), artifact.ID, session)
	if err != nil {
		response.Error(c, err)
		return
	}
	_ = h.cache.Invalidate(c.Request.Context(), dashboardCacheKey(session.RegisterNumber))

	submissionID := 0
	if submitted.LMSSubmissionID != nil {
		submissionID = *submitted.LMSSubmissionID
	}
	response.JSON(c, http.StatusOK, dto.SubmitResponse{SubmissionID: submissionID}, nil)
}
