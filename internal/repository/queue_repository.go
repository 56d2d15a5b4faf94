package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-adp-api/internal/models"
)

// QueueRepository persists SubmissionQueue rows, the retry ledger C7's
// background worker drains (spec §4.7, §4.8).
type QueueRepository struct {
	db *sqlx.DB
}

// NewQueueRepository constructs the repository.
func NewQueueRepository(db *sqlx.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Enqueue inserts a retry row for a failed submission, or bumps the
// existing row's retry_count/next_attempt_at if one is already present for
// this artifact.
func (r *QueueRepository) Enqueue(ctx context.Context, artifactID, sessionID string, retryCount int, lastError string) error {
	nextDelay := backoffSeconds(retryCount)
	nextAttempt := time.Now().UTC().Add(time.Duration(nextDelay) * time.Second)

	var existing models.SubmissionQueue
	err := r.db.GetContext(ctx, &existing, `SELECT * FROM submission_queue WHERE artifact_id = $1`, artifactID)
	if errors.Is(err, sql.ErrNoRows) {
		q := models.SubmissionQueue{
			ID:            uuid.NewString(),
			ArtifactID:    artifactID,
			SessionID:     sessionID,
			Status:        models.QueueStatusPending,
			RetryCount:    retryCount,
			NextAttemptAt: nextAttempt,
			LastError:     &lastError,
			CreatedAt:     time.Now().UTC(),
			UpdatedAt:     time.Now().UTC(),
		}
		const insertQ = `INSERT INTO submission_queue (id, artifact_id, session_id, status, retry_count, next_attempt_at, last_error, created_at, updated_at)
			VALUES (:id, :artifact_id, :session_id, :status, :retry_count, :next_attempt_at, :last_error, :created_at, :updated_at)`
		if _, err := r.db.NamedExecContext(ctx, insertQ, &q); err != nil {
			return fmt.Errorf("enqueue submission retry: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up existing queue row: %w", err)
	}

	const updateQ = `UPDATE submission_queue SET status = $1, retry_count = $2, next_attempt_at = $3, last_error = $4, updated_at = $5
		WHERE id = $6`
	if _, err := r.db.ExecContext(ctx, updateQ, models.QueueStatusPending, retryCount, nextAttempt, lastError, time.Now().UTC(), existing.ID); err != nil {
		return fmt.Errorf("update submission retry: %w", err)
	}
	return nil
}

// backoffSeconds implements next_attempt_at = now + min(2^retry_count, 3600)
// per spec §4.8.
func backoffSeconds(retryCount int) int {
	if retryCount > 12 {
		return 3600
	}
	delay := 1 << retryCount
	if delay > 3600 {
		return 3600
	}
	return delay
}

// DueRows returns pending queue rows whose next_attempt_at has elapsed and
// whose retry_count is still under the configured ceiling.
func (r *QueueRepository) DueRows(ctx context.Context, maxAttempts int) ([]models.SubmissionQueue, error) {
	const q = `SELECT * FROM submission_queue WHERE status = $1 AND retry_count < $2 AND next_attempt_at <= $3 ORDER BY next_attempt_at`
	var rows []models.SubmissionQueue
	if err := r.db.SelectContext(ctx, &rows, q, models.QueueStatusPending, maxAttempts, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("scan due submission queue rows: %w", err)
	}
	return rows, nil
}

// MarkResolved sets a queue row's status to RESOLVED; the retry path
// calls it once a retried submission has succeeded.
func (r *QueueRepository) MarkResolved(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE submission_queue SET status = $1, updated_at = $2 WHERE id = $3`, models.QueueStatusResolved, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("mark queue row resolved: %w", err)
	}
	return nil
}

// MarkAbandoned flags a queue row as no longer retryable, e.g. because its
// backing student session is gone.
func (r *QueueRepository) MarkAbandoned(ctx context.Context, id, reason string) error {
	const q = `UPDATE submission_queue SET status = $1, last_error = $2, updated_at = $3 WHERE id = $4`
	if _, err := r.db.ExecContext(ctx, q, models.QueueStatusAbandoned, reason, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("mark queue row abandoned: %w", err)
	}
	return nil
}
