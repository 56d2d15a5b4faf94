package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// WorkflowStatus is the lifecycle state of an Artifact (spec §3).
type WorkflowStatus string

const (
	StatusPending        WorkflowStatus = "PENDING"
	StatusSubmitting     WorkflowStatus = "SUBMITTING"
	StatusSubmittedToLMS WorkflowStatus = "SUBMITTED_TO_LMS"
	StatusFailed         WorkflowStatus = "FAILED"
	StatusSuperseded     WorkflowStatus = "SUPERSEDED"
)

// ExamType is one of the four recognised examination categories.
type ExamType string

const (
	ExamTypeCIA1 ExamType = "CIA1"
	ExamTypeCIA2 ExamType = "CIA2"
	ExamTypeCIA3 ExamType = "CIA3"
	ExamTypeSEM  ExamType = "SEM"
)

// TransactionStep records one step of the submission orchestration sequence
// against an artifact, in order, for audit and troubleshooting.
type TransactionStep struct {
	Step      string    `json:"step"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TransactionLog is the JSONB-backed append log of orchestration steps for
// a single artifact. It round-trips through Postgres the way
// ReportJobParams does in the teacher's report pipeline.
type TransactionLog struct {
	Steps []TransactionStep `json:"steps"`
}

// Append returns a copy of the log with a new step recorded.
func (t TransactionLog) Append(step, status, detail string) TransactionLog {
	t.Steps = append(t.Steps, TransactionStep{
		Step:      step,
		Status:    status,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
	return t
}

// Value implements driver.Valuer for JSONB storage.
func (t TransactionLog) Value() (driver.Value, error) {
	if t.Steps == nil {
		t.Steps = []TransactionStep{}
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal transaction log: %w", err)
	}
	return data, nil
}

// Scan implements sql.Scanner for JSONB retrieval.
func (t *TransactionLog) Scan(value interface{}) error {
	if value == nil {
		*t = TransactionLog{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for TransactionLog", value)
	}
	if len(data) == 0 {
		*t = TransactionLog{}
		return nil
	}
	if err := json.Unmarshal(data, t); err != nil {
		return fmt.Errorf("unmarshal transaction log: %w", err)
	}
	return nil
}

// Artifact is one scanned answer-paper record (spec §3).
type Artifact struct {
	ID string `db:"id" json:"id"`

	OriginalFilename  string `db:"original_filename" json:"original_filename"`
	CanonicalFilename string `db:"canonical_filename" json:"canonical_filename"`

	RegisterNumber string   `db:"register_number" json:"register_number"`
	SubjectCode    string   `db:"subject_code" json:"subject_code"`
	ExamType       ExamType `db:"exam_type" json:"exam_type"`
	AttemptNumber  int      `db:"attempt_number" json:"attempt_number"`

	ContentHash string `db:"content_hash" json:"content_hash"`
	ByteLength  int64  `db:"byte_length" json:"byte_length"`
	MimeType    string `db:"mime_type" json:"mime_type"`

	DiskPath  string `db:"disk_path" json:"disk_path,omitempty"`
	InlineBlob []byte `db:"inline_blob" json:"-"`

	LMSUserID       *int    `db:"lms_user_id" json:"lms_user_id,omitempty"`
	LMSUsername     *string `db:"lms_username" json:"lms_username,omitempty"`
	LMSCourseID     *int    `db:"lms_course_id" json:"lms_course_id,omitempty"`
	LMSAssignmentID *int    `db:"lms_assignment_id" json:"lms_assignment_id,omitempty"`
	LMSDraftItemID  *int    `db:"lms_draft_item_id" json:"lms_draft_item_id,omitempty"`
	LMSSubmissionID *int    `db:"lms_submission_id" json:"lms_submission_id,omitempty"`

	Status         WorkflowStatus `db:"status" json:"status"`
	IdempotencyKey string         `db:"idempotency_key" json:"idempotency_key"`

	UploadedAt   time.Time  `db:"uploaded_at" json:"uploaded_at"`
	ValidatedAt  *time.Time `db:"validated_at" json:"validated_at,omitempty"`
	SubmittedAt  *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at,omitempty"`

	UploadedByStaffID string `db:"uploaded_by_staff_id" json:"uploaded_by_staff_id"`

	TransactionLog TransactionLog `db:"transaction_log" json:"transaction_log"`
	ErrorMessage   *string        `db:"error_message" json:"error_message,omitempty"`
	RetryCount     int            `db:"retry_count" json:"retry_count"`
	AutoProcessed  bool           `db:"auto_processed" json:"auto_processed"`

	Tombstoned bool `db:"tombstoned" json:"tombstoned"`
}

// Fingerprint returns the idempotency key material: the hex(SHA-256(...))
// computed by internal/identity over register|subject|exam_type|content_hash.
func (a Artifact) Fingerprint() string {
	return a.IdempotencyKey
}

// ArtifactFilter captures filtering criteria for the admin listing.
type ArtifactFilter struct {
	StaffID        string
	RegisterNumber string
	Status         WorkflowStatus
	AutoProcessed  *bool
	Page           int
	PageSize       int
}
