package models

import "time"

// QueueStatus is the state of a retry queue row.
type QueueStatus string

const (
	QueueStatusPending   QueueStatus = "PENDING"
	QueueStatusAbandoned QueueStatus = "ABANDONED"
	QueueStatusResolved  QueueStatus = "RESOLVED"
)

// SubmissionQueue is a retry entry for a failed submission attempt (spec
// §3/§4.7). The retry worker scans for due, non-exhausted rows.
type SubmissionQueue struct {
	ID            string      `db:"id" json:"id"`
	ArtifactID    string      `db:"artifact_id" json:"artifact_id"`
	SessionID     string      `db:"session_id" json:"session_id"`
	Status        QueueStatus `db:"status" json:"status"`
	RetryCount    int         `db:"retry_count" json:"retry_count"`
	NextAttemptAt time.Time   `db:"next_attempt_at" json:"next_attempt_at"`
	LastError     *string     `db:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

// Due reports whether the row is eligible for the next retry cycle.
func (q SubmissionQueue) Due(now time.Time, maxAttempts int) bool {
	return q.Status == QueueStatusPending && q.RetryCount < maxAttempts && !now.Before(q.NextAttemptAt)
}
