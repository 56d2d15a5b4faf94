package handler

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-api/internal/dto"
	"github.com/noah-isme/sma-adp-api/internal/ingestion"
	"github.com/noah-isme/sma-adp-api/internal/models"
	"github.com/noah-isme/sma-adp-api/internal/repository"
	"github.com/noah-isme/sma-adp-api/internal/service"
	appErrors "github.com/noah-isme/sma-adp-api/pkg/errors"
	"github.com/noah-isme/sma-adp-api/pkg/jobs"
	"github.com/noah-isme/sma-adp-api/pkg/response"
)

// UploadHandler exposes the staff-facing ingestion endpoints.
type UploadHandler struct {
	ingestion *ingestion.Service
	artifacts *repository.ArtifactRepository
	cache     *service.CacheService
	maxBytes  int64
	logger    *zap.Logger
}

// NewUploadHandler constructs the handler. cache may be nil, in which case
// a newly ingested artifact simply won't invalidate any dashboard entry.
func NewUploadHandler(svc *ingestion.Service, artifacts *repository.ArtifactRepository, cache *service.CacheService, maxBytes int64, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{ingestion: svc, artifacts: artifacts, cache: cache, maxBytes: maxBytes, logger: logger}
}

func (h *UploadHandler) invalidateDashboard(ctx context.Context, registerNumber string) {
	if h.cache == nil || registerNumber == "" {
		return
	}
	if err := h.cache.Invalidate(ctx, fmt.Sprintf("dashboard:%s", registerNumber)); err != nil {
		h.logger.Warn("upload handler: dashboard cache invalidation failed", zap.String("register_number", registerNumber), zap.Error(err))
	}
}

func (h *UploadHandler) modeFromQuery(c *gin.Context) ingestion.Mode {
	if c.Query("flexible") == "true" {
		return ingestion.ModeFlexible
	}
	return ingestion.ModeStrict
}

func (h *UploadHandler) readFile(c *gin.Context, field string) (string, []byte, error) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		return "", nil, appErrors.Clone(appErrors.ErrValidation, "missing file field")
	}
	if fileHeader.Size > h.maxBytes {
		return "", nil, appErrors.Clone(appErrors.ErrValidation, "file exceeds maximum allowed size")
	}
	f, err := fileHeader.Open()
	if err != nil {
		return "", nil, appErrors.Clone(appErrors.ErrValidation, "could not open uploaded file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", nil, appErrors.Clone(appErrors.ErrValidation, "could not read uploaded file")
	}
	return fileHeader.Filename, data, nil
}

// Single handles POST /upload/single.
func (h *UploadHandler) Single(c *gin.Context) {
	claims := claimsFromContext(c)
	filename, data, err := h.readFile(c, "file")
	if err != nil {
		response.Error(c, err)
		return
	}

	artifact, err := h.ingestion.Ingest(c.Request.Context(), ingestion.UploadParams{
		Filename:    filename,
		Data:        data,
		Mode:        h.modeFromQuery(c),
		ExamType:    c.PostForm("exam_type"),
		StaffID:     claims.UserID,
		AuditAction: models.AuditActionUploadSingle,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	h.invalidateDashboard(c.Request.Context(), artifact.RegisterNumber)

	summary := dto.FromArtifact(artifact)
	response.Created(c, summary)
}

// bulkWorkers bounds how many files within one /upload/bulk request are
// ingested concurrently.
const bulkWorkers = 4

// Bulk handles POST /upload/bulk. Files within a single request are fanned
// out across a small worker pool rather than processed one at a time, since
// a batch can run into the hundreds of scanned pages.
func (h *UploadHandler) Bulk(c *gin.Context) {
	claims := claimsFromContext(c)
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "multipart form required"))
		return
	}

	files := form.File["file[]"]
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "no files provided"))
		return
	}

	results := make([]dto.BulkUploadResult, len(files))
	mode := h.modeFromQuery(c)
	examType := c.PostForm("exam_type")

	var wg sync.WaitGroup
	queue := jobs.NewQueue("bulk-upload", func(ctx context.Context, job jobs.Job) error {
		task := job.Payload.(func(context.Context))
		task(ctx)
		return nil
	}, jobs.QueueConfig{Workers: bulkWorkers, BufferSize: len(files), Logger: h.logger})
	queue.Start(c.Request.Context())
	defer queue.Stop()

	for i, fh := range files {
		i, fh := i, fh
		wg.Add(1)
		task := func(ctx context.Context) {
			defer wg.Done()
			results[i] = h.ingestOne(ctx, fh, mode, examType, claims.UserID)
		}
		if err := queue.Enqueue(jobs.Job{ID: fmt.Sprintf("bulk-%d", i), Type: "ingest", Payload: task}); err != nil {
			wg.Done()
			results[i] = dto.BulkUploadResult{Filename: fh.Filename, Error: "bulk queue unavailable"}
		}
	}
	wg.Wait()

	response.JSON(c, http.StatusOK, results, nil)
}

func (h *UploadHandler) ingestOne(ctx context.Context, fh *multipart.FileHeader, mode ingestion.Mode, examType, staffID string) dto.BulkUploadResult {
	result := dto.BulkUploadResult{Filename: fh.Filename}

	if fh.Size > h.maxBytes {
		result.Error = "file exceeds maximum allowed size"
		return result
	}

	f, openErr := fh.Open()
	if openErr != nil {
		result.Error = "could not open uploaded file"
		return result
	}
	data, readErr := io.ReadAll(f)
	f.Close()
	if readErr != nil {
		result.Error = "could not read uploaded file"
		return result
	}

	artifact, ingestErr := h.ingestion.Ingest(ctx, ingestion.UploadParams{
		Filename: fh.Filename, Data: data, Mode: mode, ExamType: examType, StaffID: staffID,
		AuditAction: models.AuditActionUploadBulk,
	})
	if ingestErr != nil {
		result.Error = ingestErr.Error()
		return result
	}
	h.invalidateDashboard(ctx, artifact.RegisterNumber)

	summary := dto.FromArtifact(artifact)
	result.Artifact = &summary
	return result
}

// ScanUpload handles POST /extract/scan-upload: flexible parsing backed by
// the remote AI extraction service.
func (h *UploadHandler) ScanUpload(c *gin.Context) {
	claims := claimsFromContext(c)
	filename, data, err := h.readFile(c, "file")
	if err != nil {
		response.Error(c, err)
		return
	}

	artifact, err := h.ingestion.Ingest(c.Request.Context(), ingestion.UploadParams{
		Filename:      filename,
		Data:          data,
		Mode:          ingestion.ModeFlexible,
		ExamType:      c.PostForm("exam_type"),
		StaffID:       claims.UserID,
		UseExtraction: true,
		AuditAction:   models.AuditActionScanUpload,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	h.invalidateDashboard(c.Request.Context(), artifact.RegisterNumber)

	response.Created(c, dto.FromArtifact(artifact))
}

func paginationParams(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "50"))
	return
}

// ListAll handles GET /upload/all.
func (h *UploadHandler) ListAll(c *gin.Context) {
	page, pageSize := paginationParams(c)
	filter := models.ArtifactFilter{Page: page, PageSize: pageSize}
	if status := c.Query("status"); status != "" {
		filter.Status = models.WorkflowStatus(status)
	}
	if register := c.Query("register_number"); register != "" {
		filter.RegisterNumber = register
	}

	artifacts, total, err := h.artifacts.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	summaries := make([]dto.ArtifactSummary, len(artifacts))
	for i := range artifacts {
		summaries[i] = dto.FromArtifact(&artifacts[i])
	}
	response.JSON(c, http.StatusOK, summaries, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total})
}

// ListAutoProcessed handles GET /upload/auto-processed.
func (h *UploadHandler) ListAutoProcessed(c *gin.Context) {
	page, pageSize := paginationParams(c)
	auto := true
	filter := models.ArtifactFilter{Page: page, PageSize: pageSize, AutoProcessed: &auto}

	artifacts, total, err := h.artifacts.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	summaries := make([]dto.ArtifactSummary, len(artifacts))
	for i := range artifacts {
		summaries[i] = dto.FromArtifact(&artifacts[i])
	}
	response.JSON(c, http.StatusOK, summaries, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total})
}
