package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-api/internal/dto"
	"github.com/noah-isme/sma-adp-api/internal/models"
	"github.com/noah-isme/sma-adp-api/internal/repository"
	"github.com/noah-isme/sma-adp-api/pkg/export"
	appErrors "github.com/noah-isme/sma-adp-api/pkg/errors"
	"github.com/noah-isme/sma-adp-api/pkg/response"
)

// AdminHandler exposes the management surface: subject mappings, the
// username-to-register map, audit review, artifact correction and the
// tabular export endpoints. Every route here sits behind RequireAdmin.
type AdminHandler struct {
	mappings  *repository.MappingRepository
	artifacts *repository.ArtifactRepository
	audit     *repository.AuditRepository
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(mappings *repository.MappingRepository, artifacts *repository.ArtifactRepository, audit *repository.AuditRepository, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		mappings:  mappings,
		artifacts: artifacts,
		audit:     audit,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		validate:  validator.New(),
		logger:    logger,
	}
}

// ListSubjectMappings handles GET /admin/mappings.
func (h *AdminHandler) ListSubjectMappings(c *gin.Context) {
	mappings, err := h.mappings.ListSubjectMappings(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, mappings, nil)
}

// UpsertSubjectMapping handles PUT /admin/mappings.
func (h *AdminHandler) UpsertSubjectMapping(c *gin.Context) {
	var req dto.SubjectMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}

	mapping := &models.SubjectMapping{
		SubjectCode:        req.SubjectCode,
		ExamType:           req.ExamType,
		MoodleCourseID:     req.MoodleCourseID,
		MoodleAssignmentID: req.MoodleAssignmentID,
		IsActive:           req.IsActive,
	}
	if err := h.mappings.UpsertSubjectMapping(c.Request.Context(), mapping); err != nil {
		response.Error(c, err)
		return
	}

	claims := claimsFromContext(c)
	h.recordAudit(c, claims.UserID, models.AuditActionAdminMappingSet, mapping.SubjectCode+"/"+string(mapping.ExamType))
	response.JSON(c, http.StatusOK, mapping, nil)
}

// DeactivateSubjectMapping handles DELETE /admin/mappings/{id}.
func (h *AdminHandler) DeactivateSubjectMapping(c *gin.Context) {
	id := c.Param("id")
	if err := h.mappings.DeactivateSubjectMapping(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	claims := claimsFromContext(c)
	h.recordAudit(c, claims.UserID, models.AuditActionAdminMappingDrop, id)
	response.NoContent(c)
}

// ListUsernameMaps handles GET /admin/username-map.
func (h *AdminHandler) ListUsernameMaps(c *gin.Context) {
	maps, err := h.mappings.ListUsernameRegisterMaps(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, maps, nil)
}

// UpsertUsernameMap handles PUT /admin/username-map.
func (h *AdminHandler) UpsertUsernameMap(c *gin.Context) {
	var req dto.UsernameRegisterMapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}

	m := &models.UsernameRegisterMap{MoodleUsername: req.MoodleUsername, RegisterNumber: req.RegisterNumber}
	if err := h.mappings.UpsertUsernameRegisterMap(c.Request.Context(), m); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, m, nil)
}

// DeleteUsernameMap handles DELETE /admin/username-map/{username}.
func (h *AdminHandler) DeleteUsernameMap(c *gin.Context) {
	username := c.Param("username")
	if err := h.mappings.DeleteUsernameRegisterMap(c.Request.Context(), username); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListAudit handles GET /admin/audit.
func (h *AdminHandler) ListAudit(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	entries, err := h.audit.ListAll(c.Request.Context(), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// DeleteArtifact handles DELETE /admin/artifacts/{id}: a soft tombstone,
// not the hard delete the purge-artifact CLI performs.
func (h *AdminHandler) DeleteArtifact(c *gin.Context) {
	id := c.Param("id")
	if err := h.artifacts.SoftDelete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	claims := claimsFromContext(c)
	h.recordAudit(c, claims.UserID, models.AuditActionAdminArtifactDel, id)
	response.NoContent(c)
}

func (h *AdminHandler) artifactDataset(c *gin.Context) (export.Dataset, error) {
	page, pageSize := paginationParams(c)
	filter := models.ArtifactFilter{Page: page, PageSize: pageSize}
	if pageSize == 0 || pageSize > 5000 {
		filter.PageSize = 5000
	}
	if status := c.Query("status"); status != "" {
		filter.Status = models.WorkflowStatus(status)
	}

	artifacts, _, err := h.artifacts.List(c.Request.Context(), filter)
	if err != nil {
		return export.Dataset{}, err
	}

	dataset := export.Dataset{
		Headers: []string{"register_number", "subject_code", "exam_type", "status", "uploaded_at", "canonical_filename"},
		Rows:    make([]map[string]string, 0, len(artifacts)),
	}
	for _, a := range artifacts {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"register_number":    a.RegisterNumber,
			"subject_code":       a.SubjectCode,
			"exam_type":          string(a.ExamType),
			"status":             string(a.Status),
			"uploaded_at":        a.UploadedAt.Format("2006-01-02 15:04"),
			"canonical_filename": a.CanonicalFilename,
		})
	}
	return dataset, nil
}

// ExportCSV handles GET /admin/export/csv.
func (h *AdminHandler) ExportCSV(c *gin.Context) {
	dataset, err := h.artifactDataset(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	data, err := h.csv.Render(dataset)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render csv export"))
		return
	}

	claims := claimsFromContext(c)
	h.recordAudit(c, claims.UserID, models.AuditActionAdminExport, "csv")
	c.Header("Content-Disposition", `attachment; filename="artifacts.csv"`)
	c.Data(http.StatusOK, "text/csv", data)
}

// ExportPDF handles GET /admin/export/pdf.
func (h *AdminHandler) ExportPDF(c *gin.Context) {
	dataset, err := h.artifactDataset(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	data, err := h.pdf.Render(dataset, "submitted artifacts")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render pdf export"))
		return
	}

	claims := claimsFromContext(c)
	h.recordAudit(c, claims.UserID, models.AuditActionAdminExport, "pdf")
	c.Header("Content-Disposition", `attachment; filename="artifacts.pdf"`)
	c.Data(http.StatusOK, "application/pdf", data)
}

func (h *AdminHandler) recordAudit(c *gin.Context, actorID, action, target string) {
	entry := &models.AuditEntry{
		ActorType: models.ActorTypeStaff,
		ActorID:   &actorID,
		Action:    action,
		Target:    target,
		Result:    "SUCCESS",
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if err := h.audit.Create(c.Request.Context(), entry); err != nil {
		h.logger.Warn("admin handler: record audit entry failed", zap.Error(err))
	}
}
