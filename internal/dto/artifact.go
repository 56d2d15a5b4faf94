package dto

import (
	"time"

	"github.com/noah-isme/sma-adp-api/internal/models"
)

// ArtifactSummary is the client-facing projection of an Artifact returned
// by upload and listing endpoints.
type ArtifactSummary struct {
	ID                string                `json:"id"`
	OriginalFilename  string                `json:"original_filename"`
	CanonicalFilename string                `json:"canonical_filename"`
	RegisterNumber    string                `json:"register_number"`
	SubjectCode       string                `json:"subject_code"`
	ExamType          models.ExamType       `json:"exam_type"`
	AttemptNumber     int                   `json:"attempt_number"`
	Status            models.WorkflowStatus `json:"status"`
	AutoProcessed     bool                  `json:"auto_processed"`
	UploadedAt        time.Time             `json:"uploaded_at"`
}

// FromArtifact projects a full Artifact row into its client-facing summary.
func FromArtifact(a *models.Artifact) ArtifactSummary {
	return ArtifactSummary{
		ID:                a.ID,
		OriginalFilename:  a.OriginalFilename,
		CanonicalFilename: a.CanonicalFilename,
		RegisterNumber:    a.RegisterNumber,
		SubjectCode:       a.SubjectCode,
		ExamType:          a.ExamType,
		AttemptNumber:     a.AttemptNumber,
		Status:            a.Status,
		AutoProcessed:     a.AutoProcessed,
		UploadedAt:        a.UploadedAt,
	}
}

// BulkUploadResult reports the outcome of one file within a bulk upload.
type BulkUploadResult struct {
	Filename string           `json:"filename"`
	Artifact *ArtifactSummary `json:"artifact,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// SubmitResponse is returned by a successful /student/submit/{id}.
type SubmitResponse struct {
	SubmissionID int `json:"submission_id"`
}

// SubjectMappingRequest is the admin payload for creating/updating a mapping.
type SubjectMappingRequest struct {
	SubjectCode        string          `json:"subject_code" validate:"required"`
	ExamType           models.ExamType `json:"exam_type" validate:"required"`
	MoodleCourseID     int             `json:"moodle_course_id" validate:"required"`
	MoodleAssignmentID int             `json:"moodle_assignment_id" validate:"required"`
	IsActive           bool            `json:"is_active"`
}

// UsernameRegisterMapRequest is the admin payload for the username map CRUD.
type UsernameRegisterMapRequest struct {
	MoodleUsername string `json:"moodle_username" validate:"required"`
	RegisterNumber string `json:"register_number" validate:"required,len=12,numeric"`
}
