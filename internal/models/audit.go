package models

import "time"

// Audit action names, one per mutating endpoint. Handlers pass the exact
// constant matching their route so the audit trail can be filtered by
// operation without parsing free-text paths.
const (
	AuditActionStaffLogin       = "STAFF_LOGIN"
	AuditActionStudentLogin     = "STUDENT_LOGIN"
	AuditActionStudentLogout    = "STUDENT_LOGOUT"
	AuditActionUploadSingle     = "UPLOAD_SINGLE"
	AuditActionUploadBulk       = "UPLOAD_BULK"
	AuditActionUploadDuplicate  = "UPLOAD_DUP"
	AuditActionScanUpload       = "SCAN_UPLOAD"
	AuditActionSubmit           = "SUBMIT"
	AuditActionRetry            = "RETRY"
	AuditActionSupersede        = "SUPERSEDE"
	AuditActionAdminMappingSet  = "ADMIN_MAPPING_SET"
	AuditActionAdminMappingDrop = "ADMIN_MAPPING_DROP"
	AuditActionAdminExport      = "ADMIN_EXPORT"
	AuditActionAdminArtifactDel = "ADMIN_ARTIFACT_DELETE"
	AuditActionPurge            = "PURGE"
)

// ActorType distinguishes the two principal models: staff bearer tokens and
// student LMS-backed sessions.
type ActorType string

const (
	ActorTypeStaff   ActorType = "STAFF"
	ActorTypeStudent ActorType = "STUDENT"
	ActorTypeSystem  ActorType = "SYSTEM"
)

// AuditEntry is a single audit trail record. Every mutating API call
// produces exactly one entry whose Action names the endpoint, except the
// /admin/username-map upsert and delete, which write no entry.
type AuditEntry struct {
	ID             string    `db:"id" json:"id"`
	ActorType      ActorType `db:"actor_type" json:"actor_type"`
	ActorID        *string   `db:"actor_id" json:"actor_id,omitempty"`
	Action         string    `db:"action" json:"action"`
	Target         string    `db:"target" json:"target,omitempty"`
	RequestPayload []byte    `db:"request_payload" json:"request_payload,omitempty"`
	Result         string    `db:"result" json:"result"`
	IPAddress      string    `db:"ip_address" json:"ip_address"`
	UserAgent      string    `db:"user_agent" json:"user_agent"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
