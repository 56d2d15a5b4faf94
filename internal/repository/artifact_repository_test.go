package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-adp-api/internal/models"
	appErrors "github.com/noah-isme/sma-adp-api/pkg/errors"
)

func newArtifactRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestArtifactRepositoryTryBeginSubmissionSucceeds(t *testing.T) {
	db, mock, cleanup := newArtifactRepoMock(t)
	defer cleanup()
	repo := NewArtifactRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE artifacts SET status = $1 WHERE id = $2 AND status IN ($3, $4)")).
		WithArgs(models.StatusSubmitting, "artifact-1", models.StatusPending, models.StatusFailed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	began, err := repo.TryBeginSubmission(context.Background(), "artifact-1")
	require.NoError(t, err)
	assert.True(t, began)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArtifactRepositoryTryBeginSubmissionAlreadyInFlight(t *testing.T) {
	db, mock, cleanup := newArtifactRepoMock(t)
	defer cleanup()
	repo := NewArtifactRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE artifacts SET status = $1 WHERE id = $2 AND status IN ($3, $4)")).
		WithArgs(models.StatusSubmitting, "artifact-1", models.StatusPending, models.StatusFailed).
		WillReturnResult(sqlmock.NewResult(0, 0))

	began, err := repo.TryBeginSubmission(context.Background(), "artifact-1")
	require.NoError(t, err)
	assert.False(t, began)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArtifactRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newArtifactRepoMock(t)
	defer cleanup()
	repo := NewArtifactRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM artifacts WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindByID(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArtifactRepositoryCompleteSubmissionRejectsWrongState(t *testing.T) {
	db, mock, cleanup := newArtifactRepoMock(t)
	defer cleanup()
	repo := NewArtifactRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE artifacts SET status = $1, lms_submission_id = $2, completed_at = $3, transaction_log = $4")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.CompleteSubmission(context.Background(), "artifact-1", 42, models.TransactionLog{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in SUBMITTING state")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArtifactRepositorySoftDelete(t *testing.T) {
	db, mock, cleanup := newArtifactRepoMock(t)
	defer cleanup()
	repo := NewArtifactRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE artifacts SET status = $1, tombstoned = true WHERE id = $2")).
		WithArgs(models.StatusSuperseded, "artifact-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SoftDelete(context.Background(), "artifact-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArtifactRepositoryPurgeByIDNotFound(t *testing.T) {
	db, mock, cleanup := newArtifactRepoMock(t)
	defer cleanup()
	repo := NewArtifactRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM artifacts WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.PurgeByID(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArtifactRepositoryListAppliesFilters(t *testing.T) {
	db, mock, cleanup := newArtifactRepoMock(t)
	defer cleanup()
	repo := NewArtifactRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM artifacts WHERE tombstoned = false AND register_number = $1")).
		WithArgs("123456789012").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	cols := []string{"id", "original_filename", "canonical_filename", "register_number", "subject_code",
		"exam_type", "attempt_number", "content_hash", "byte_length", "mime_type", "disk_path", "inline_blob",
		"lms_user_id", "lms_username", "lms_course_id", "lms_assignment_id", "lms_draft_item_id", "lms_submission_id",
		"status", "idempotency_key", "uploaded_at", "validated_at", "submitted_at", "completed_at",
		"uploaded_by_staff_id", "transaction_log", "error_message", "retry_count", "auto_processed", "tombstoned"}
	rows := sqlmock.NewRows(cols).AddRow(
		"a1", "orig.pdf", "123456789012_MATH_CIA1.pdf", "123456789012", "MATH",
		models.ExamTypeCIA1, 1, "hash", int64(10), "application/pdf", "/tmp/a1.pdf", nil,
		nil, nil, nil, nil, nil, nil,
		models.StatusPending, "fp1", time.Now(), nil, nil, nil,
		"staff-1", []byte(`{"steps":[]}`), nil, 0, true, false)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM artifacts WHERE tombstoned = false AND register_number = $1 ORDER BY uploaded_at DESC LIMIT $2 OFFSET $3")).
		WithArgs("123456789012", 50, 0).
		WillReturnRows(rows)

	list, total, err := repo.List(context.Background(), models.ArtifactFilter{RegisterNumber: "123456789012"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, list, 1)
	assert.Equal(t, "MATH", list[0].SubjectCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}
