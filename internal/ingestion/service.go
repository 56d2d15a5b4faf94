// Package ingestion wires C1/C2/C3/C4 together for the upload endpoints:
// parse or infer identity, validate content, persist bytes, and run the
// insert protocol (spec §4.1-§4.4).
package ingestion

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-api/internal/extraction"
	"github.com/noah-isme/sma-adp-api/internal/identity"
	"github.com/noah-isme/sma-adp-api/internal/models"
	"github.com/noah-isme/sma-adp-api/internal/repository"
	"github.com/noah-isme/sma-adp-api/internal/storage"
	appErrors "github.com/noah-isme/sma-adp-api/pkg/errors"
)

// Service is C2+C3+C1+C4 orchestrated for a single uploaded file.
type Service struct {
	content     *storage.ContentStore
	artifacts   *repository.ArtifactRepository
	auditRepo   *repository.AuditRepository
	extraction  *extraction.Client
	threshold   float64
	logger      *zap.Logger
}

// New constructs the ingestion service.
func New(content *storage.ContentStore, artifacts *repository.ArtifactRepository, auditRepo *repository.AuditRepository, extractionClient *extraction.Client, confidenceThreshold float64, logger *zap.Logger) *Service {
	return &Service{
		content: content, artifacts: artifacts, auditRepo: auditRepo,
		extraction: extractionClient, threshold: confidenceThreshold, logger: logger,
	}
}

// Mode selects strict filename parsing vs. flexible (AI-assisted) parsing.
type Mode = identity.Mode

const (
	ModeStrict   = identity.ModeStrict
	ModeFlexible = identity.ModeFlexible
)

// UploadParams describes a single file offered to the pipeline.
type UploadParams struct {
	Filename      string
	Data          []byte
	Mode          Mode
	ExamType      string
	StaffID       string
	UseExtraction bool   // true for /extract/scan-upload
	AuditAction   string // names the calling endpoint, per spec §8 property 6
}

// Ingest runs the full pipeline for one file and returns the resulting
// artifact (existing, on an idempotent re-upload, or newly created).
func (s *Service) Ingest(ctx context.Context, p UploadParams) (*models.Artifact, error) {
	parsed, parseErr := identity.ParseFilename(p.Mode, p.Filename, p.ExamType)

	autoProcessed := parsed != nil
	ext := extOf(parsed, p.Filename)
	manualReview := false

	if parsed == nil && p.Mode == ModeStrict {
		return nil, parseErr
	}

	if parsed == nil && p.UseExtraction && s.extraction.Enabled() {
		result, err := s.extraction.Extract(ctx, p.Filename, p.Data)
		outcome := extraction.Classify(result, err, s.threshold)
		switch outcome {
		case extraction.OutcomeConfident:
			register := result.RegisterNumber
			subject, normErr := identity.NormalizeSubjectCode(result.SubjectCode)
			if normErr == nil && identity.ValidateRegisterNumber(register) == nil {
				examType := identity.DefaultExamType
				if p.ExamType != "" {
					examType = models.ExamType(p.ExamType)
				}
				parsed = &identity.Parsed{RegisterNumber: register, SubjectCode: subject, ExamType: examType, Extension: ext}
				autoProcessed = true
			}
		case extraction.OutcomeLowConfidence:
			// Below threshold: the AI's guess is still in hand but
			// unconfirmed. Spec §4.3 stores the artifact anyway, under its
			// original filename, flagged for manual review rather than
			// rejecting the upload outright.
			examType := identity.DefaultExamType
			if p.ExamType != "" {
				examType = models.ExamType(p.ExamType)
			}
			subject := result.SubjectCode
			if normalized, normErr := identity.NormalizeSubjectCode(result.SubjectCode); normErr == nil {
				subject = normalized
			}
			parsed = &identity.Parsed{RegisterNumber: result.RegisterNumber, SubjectCode: subject, ExamType: examType, Extension: ext}
			autoProcessed = false
			manualReview = true
			s.logger.Info("extraction below confidence threshold, storing for manual review",
				zap.String("filename", p.Filename))
		default:
			s.logger.Info("extraction failed to yield any identity",
				zap.String("filename", p.Filename), zap.String("outcome", string(outcome)))
			autoProcessed = false
		}
	}

	if parsed == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "could not determine register number and subject code for this file")
	}

	if err := identity.SniffAndValidate(ext, p.Data); err != nil {
		return nil, err
	}

	contentHash := identity.ContentHash(p.Data)
	fingerprint := identity.Fingerprint(parsed.RegisterNumber, parsed.SubjectCode, parsed.ExamType, contentHash)
	canonicalName := identity.CanonicalFilename(parsed.RegisterNumber, parsed.SubjectCode, parsed.ExamType, ext)
	if manualReview {
		canonicalName = p.Filename
	}

	putResult, err := s.content.Put("."+ext, p.Data)
	if err != nil {
		return nil, fmt.Errorf("persist upload bytes: %w", err)
	}

	artifact := &models.Artifact{
		OriginalFilename:  p.Filename,
		CanonicalFilename: canonicalName,
		RegisterNumber:    parsed.RegisterNumber,
		SubjectCode:       parsed.SubjectCode,
		ExamType:          parsed.ExamType,
		ContentHash:       contentHash,
		ByteLength:        putResult.Size,
		MimeType:          mimeFor(ext),
		DiskPath:          putResult.DiskPath,
		IdempotencyKey:    fingerprint,
		UploadedByStaffID: p.StaffID,
		AutoProcessed:     autoProcessed,
	}

	action := p.AuditAction
	if action == "" {
		action = models.AuditActionUploadSingle
	}
	result, dup, err := s.artifacts.Insert(ctx, artifact, s.auditRepo, action)
	if err != nil {
		s.content.RollbackDisk(putResult.DiskPath)
		return nil, err
	}
	if dup {
		s.content.RollbackDisk(putResult.DiskPath)
		return result, nil
	}

	if err := s.artifacts.WriteBlob(ctx, result.ID, p.Data); err != nil {
		s.content.RollbackDisk(putResult.DiskPath)
		return nil, appErrors.Clone(appErrors.ErrStorageUnavailable, "failed to persist authoritative blob copy")
	}

	return result, nil
}

func extOf(parsed *identity.Parsed, filename string) string {
	if parsed != nil && parsed.Extension != "" {
		return parsed.Extension
	}
	for i := len(filename) - 1; i >= 0; i-- {
		if filename[i] == '.' {
			return toLowerASCII(filename[i+1:])
		}
	}
	return ""
}

func toLowerASCII(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'A' && c <= 'Z' {
			out[i] = c + ('a' - 'A')
		}
	}
	return string(out)
}

func mimeFor(ext string) string {
	switch ext {
	case "pdf":
		return "application/pdf"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
