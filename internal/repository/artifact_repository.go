package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-adp-api/internal/models"
	appErrors "github.com/noah-isme/sma-adp-api/pkg/errors"
)

// ArtifactRepository persists Artifact rows and enforces the insert
// protocol and supersession invariants from spec §4.4.
type ArtifactRepository struct {
	db *sqlx.DB
}

// NewArtifactRepository constructs the repository.
func NewArtifactRepository(db *sqlx.DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// fingerprintLockKey derives a stable int64 advisory-lock key from a
// fingerprint, the way the database row lock in §4.4 step 1 is keyed.
func fingerprintLockKey(fingerprint string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(fingerprint))
	return int64(h.Sum64())
}

// Insert runs the full insert protocol: acquire a per-fingerprint advisory
// lock, check idempotency, supersede the prior attempt if any, and insert
// the new row, all within one transaction. action names the calling
// endpoint and becomes the fresh-insert audit entry's Action (spec §8
// property 6); a dedup hit always audits as UPLOAD_DUP regardless of it.
func (r *ArtifactRepository) Insert(ctx context.Context, a *models.Artifact, auditRepo *AuditRepository, action string) (*models.Artifact, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin insert tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", fingerprintLockKey(a.IdempotencyKey)); err != nil {
		return nil, false, fmt.Errorf("acquire fingerprint lock: %w", err)
	}

	if existing, err := r.findByIdempotencyKeyTx(ctx, tx, a.IdempotencyKey); err != nil {
		return nil, false, err
	} else if existing != nil {
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit idempotent read: %w", err)
		}
		if auditRepo != nil {
			_ = auditRepo.Create(ctx, &models.AuditEntry{
				ActorType: models.ActorTypeStaff,
				ActorID:   &a.UploadedByStaffID,
				Action:    models.AuditActionUploadDuplicate,
				Target:    existing.ID,
				Result:    "SUCCESS",
			})
		}
		return existing, true, nil
	}

	prior, err := r.findLatestByTupleTx(ctx, tx, a.RegisterNumber, a.SubjectCode, a.ExamType)
	if err != nil {
		return nil, false, err
	}

	attempt := 1
	if prior != nil && prior.Status != models.StatusSuperseded {
		attempt = prior.AttemptNumber + 1
		if _, err := tx.ExecContext(ctx, `UPDATE artifacts SET status = $1 WHERE id = $2`, models.StatusSuperseded, prior.ID); err != nil {
			return nil, false, fmt.Errorf("supersede prior artifact: %w", err)
		}
	}

	a.ID = uuid.NewString()
	a.AttemptNumber = attempt
	a.Status = models.StatusPending
	if a.UploadedAt.IsZero() {
		a.UploadedAt = time.Now().UTC()
	}

	const insertQuery = `INSERT INTO artifacts
	(id, original_filename, canonical_filename, register_number, subject_code, exam_type, attempt_number,
	 content_hash, byte_length, mime_type, disk_path, inline_blob,
	 status, idempotency_key, uploaded_at, uploaded_by_staff_id, transaction_log, auto_processed, retry_count, tombstoned)
	VALUES (:id, :original_filename, :canonical_filename, :register_number, :subject_code, :exam_type, :attempt_number,
	 :content_hash, :byte_length, :mime_type, :disk_path, :inline_blob,
	 :status, :idempotency_key, :uploaded_at, :uploaded_by_staff_id, :transaction_log, :auto_processed, :retry_count, :tombstoned)`

	if _, err := tx.NamedExecContext(ctx, insertQuery, a); err != nil {
		// Someone raced us past the advisory lock boundary (e.g. a retry
		// within the same fingerprint); fall back to reading the row they
		// committed rather than erroring the caller.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			if err := tx.Rollback(); err != nil {
				return nil, false, fmt.Errorf("rollback after race: %w", err)
			}
			existing, findErr := r.FindByIdempotencyKey(ctx, a.IdempotencyKey)
			if findErr != nil {
				return nil, false, findErr
			}
			if existing == nil {
				return nil, false, appErrors.Clone(appErrors.ErrConflict, "concurrent insert could not be resolved")
			}
			return existing, true, nil
		}
		return nil, false, fmt.Errorf("insert artifact: %w", err)
	}

	if auditRepo != nil {
		_ = auditRepo.CreateTx(ctx, tx, &models.AuditEntry{
			ActorType: models.ActorTypeStaff,
			ActorID:   &a.UploadedByStaffID,
			Action:    action,
			Target:    a.ID,
			Result:    "SUCCESS",
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit insert: %w", err)
	}

	return a, false, nil
}

func (r *ArtifactRepository) findByIdempotencyKeyTx(ctx context.Context, tx *sqlx.Tx, key string) (*models.Artifact, error) {
	var a models.Artifact
	err := tx.GetContext(ctx, &a, `SELECT * FROM artifacts WHERE idempotency_key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by idempotency key: %w", err)
	}
	return &a, nil
}

func (r *ArtifactRepository) findLatestByTupleTx(ctx context.Context, tx *sqlx.Tx, register, subject string, examType models.ExamType) (*models.Artifact, error) {
	var a models.Artifact
	const q = `SELECT * FROM artifacts WHERE register_number = $1 AND subject_code = $2 AND exam_type = $3
		ORDER BY attempt_number DESC LIMIT 1`
	err := tx.GetContext(ctx, &a, q, register, subject, examType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find latest by tuple: %w", err)
	}
	return &a, nil
}

// FindByIdempotencyKey looks up an artifact by its fingerprint.
func (r *ArtifactRepository) FindByIdempotencyKey(ctx context.Context, key string) (*models.Artifact, error) {
	var a models.Artifact
	err := r.db.GetContext(ctx, &a, `SELECT * FROM artifacts WHERE idempotency_key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by idempotency key: %w", err)
	}
	return &a, nil
}

// FindByID loads a single artifact.
func (r *ArtifactRepository) FindByID(ctx context.Context, id string) (*models.Artifact, error) {
	var a models.Artifact
	err := r.db.GetContext(ctx, &a, `SELECT * FROM artifacts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find artifact by id: %w", err)
	}
	return &a, nil
}

// ListByRegister returns all non-tombstoned artifacts for a register
// number, newest first, used by the student dashboard.
func (r *ArtifactRepository) ListByRegister(ctx context.Context, register string) ([]models.Artifact, error) {
	const q = `SELECT * FROM artifacts WHERE register_number = $1 AND tombstoned = false ORDER BY uploaded_at DESC`
	var artifacts []models.Artifact
	if err := r.db.SelectContext(ctx, &artifacts, q, register); err != nil {
		return nil, fmt.Errorf("list by register: %w", err)
	}
	return artifacts, nil
}

// List returns a paginated admin listing matching the given filter.
func (r *ArtifactRepository) List(ctx context.Context, filter models.ArtifactFilter) ([]models.Artifact, int, error) {
	where := "WHERE tombstoned = false"
	args := []interface{}{}
	argN := 1

	add := func(clause string, value interface{}) {
		where += fmt.Sprintf(" AND %s $%d", clause, argN)
		args = append(args, value)
		argN++
	}

	if filter.StaffID != "" {
		add("uploaded_by_staff_id =", filter.StaffID)
	}
	if filter.RegisterNumber != "" {
		add("register_number =", filter.RegisterNumber)
	}
	if filter.Status != "" {
		add("status =", filter.Status)
	}
	if filter.AutoProcessed != nil {
		add("auto_processed =", *filter.AutoProcessed)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT count(*) FROM artifacts "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count artifacts: %w", err)
	}

	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	args = append(args, pageSize, (page-1)*pageSize)
	q := fmt.Sprintf("SELECT * FROM artifacts %s ORDER BY uploaded_at DESC LIMIT $%d OFFSET $%d", where, argN, argN+1)

	var artifacts []models.Artifact
	if err := r.db.SelectContext(ctx, &artifacts, q, args...); err != nil {
		return nil, 0, fmt.Errorf("list artifacts: %w", err)
	}
	return artifacts, total, nil
}

// TryBeginSubmission performs the CAS transition PENDING|FAILED ->
// SUBMITTING (spec §4.7 step 1). Returns false if zero rows matched,
// signalling AlreadyInFlight to the caller.
func (r *ArtifactRepository) TryBeginSubmission(ctx context.Context, id string) (bool, error) {
	const q = `UPDATE artifacts SET status = $1 WHERE id = $2 AND status IN ($3, $4)`
	res, err := r.db.ExecContext(ctx, q, models.StatusSubmitting, id, models.StatusPending, models.StatusFailed)
	if err != nil {
		return false, fmt.Errorf("begin submission CAS: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("begin submission CAS rows affected: %w", err)
	}
	return affected == 1, nil
}

// UpdateLMSBinding persists partial LMS binding fields gathered during the
// orchestration sequence (draft item id, submission id).
func (r *ArtifactRepository) UpdateLMSBinding(ctx context.Context, id string, draftItemID, submissionID *int) error {
	const q = `UPDATE artifacts SET lms_draft_item_id = COALESCE($1, lms_draft_item_id),
		lms_submission_id = COALESCE($2, lms_submission_id) WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, q, draftItemID, submissionID, id); err != nil {
		return fmt.Errorf("update lms binding: %w", err)
	}
	return nil
}

// CompleteSubmission transitions SUBMITTING -> SUBMITTED_TO_LMS. If this
// artifact had already failed at least once, retry_count is bumped by one
// more to count the successful attempt itself (spec §4.8 scenario S6:
// one failed attempt followed by one successful retry ends at
// retry_count=2, not 1).
func (r *ArtifactRepository) CompleteSubmission(ctx context.Context, id string, submissionID int, log models.TransactionLog) error {
	now := time.Now().UTC()
	const q = `UPDATE artifacts SET status = $1, lms_submission_id = $2, completed_at = $3, transaction_log = $4,
		retry_count = CASE WHEN retry_count > 0 THEN retry_count + 1 ELSE retry_count END
		WHERE id = $5 AND status = $6`
	res, err := r.db.ExecContext(ctx, q, models.StatusSubmittedToLMS, submissionID, now, log, id, models.StatusSubmitting)
	if err != nil {
		return fmt.Errorf("complete submission: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("complete submission: artifact %s not in SUBMITTING state", id)
	}
	return nil
}

// FailSubmission transitions SUBMITTING -> FAILED, incrementing retry_count.
func (r *ArtifactRepository) FailSubmission(ctx context.Context, id string, errMsg string, log models.TransactionLog) error {
	const q = `UPDATE artifacts SET status = $1, error_message = $2, transaction_log = $3, retry_count = retry_count + 1
		WHERE id = $4 AND status = $5`
	if _, err := r.db.ExecContext(ctx, q, models.StatusFailed, errMsg, log, id, models.StatusSubmitting); err != nil {
		return fmt.Errorf("fail submission: %w", err)
	}
	return nil
}

// SoftDelete marks a single artifact superseded+tombstoned (admin delete).
func (r *ArtifactRepository) SoftDelete(ctx context.Context, id string) error {
	const q = `UPDATE artifacts SET status = $1, tombstoned = true WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, q, models.StatusSuperseded, id); err != nil {
		return fmt.Errorf("soft delete artifact: %w", err)
	}
	return nil
}

// PurgeAll hard-deletes every artifact row. Used only by the cmd/purge-artifact CLI.
func (r *ArtifactRepository) PurgeAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM artifacts`)
	if err != nil {
		return 0, fmt.Errorf("purge all artifacts: %w", err)
	}
	return res.RowsAffected()
}

// PurgeByID hard-deletes a single artifact row, bypassing tombstoning.
// Used only by the cmd/purge-artifact CLI.
func (r *ArtifactRepository) PurgeByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("purge artifact %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("purge artifact %s rows affected: %w", id, err)
	}
	if affected == 0 {
		return appErrors.ErrNotFound
	}
	return nil
}

// WriteBlob implements storage.BlobStore, persisting the authoritative
// inline copy of an artifact's bytes.
func (r *ArtifactRepository) WriteBlob(ctx context.Context, artifactID string, blob []byte) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE artifacts SET inline_blob = $1 WHERE id = $2`, blob, artifactID); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	return nil
}

// ReadBlob implements storage.BlobStore.
func (r *ArtifactRepository) ReadBlob(ctx context.Context, artifactID string) ([]byte, error) {
	var blob []byte
	if err := r.db.GetContext(ctx, &blob, `SELECT inline_blob FROM artifacts WHERE id = $1`, artifactID); err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return blob, nil
}
