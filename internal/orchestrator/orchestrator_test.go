package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-api/internal/auth"
	"github.com/noah-isme/sma-adp-api/internal/lms"
	"github.com/noah-isme/sma-adp-api/internal/models"
	"github.com/noah-isme/sma-adp-api/internal/notify"
	"github.com/noah-isme/sma-adp-api/internal/repository"
	"github.com/noah-isme/sma-adp-api/internal/storage"
	"github.com/noah-isme/sma-adp-api/pkg/config"
	appErrors "github.com/noah-isme/sma-adp-api/pkg/errors"
)

const testArtifactID = "artifact-1"

func artifactColumns() []string {
	return []string{"id", "original_filename", "canonical_filename", "register_number", "subject_code",
		"exam_type", "attempt_number", "content_hash", "byte_length", "mime_type", "disk_path", "inline_blob",
		"lms_user_id", "lms_username", "lms_course_id", "lms_assignment_id", "lms_draft_item_id", "lms_submission_id",
		"status", "idempotency_key", "uploaded_at", "validated_at", "submitted_at", "completed_at",
		"uploaded_by_staff_id", "transaction_log", "error_message", "retry_count", "auto_processed", "tombstoned"}
}

func pendingArtifactRow() *sqlmock.Rows {
	return sqlmock.NewRows(artifactColumns()).AddRow(
		testArtifactID, "scan.pdf", "123456789012_MATH_CIA1.pdf", "123456789012", "MATH",
		models.ExamTypeCIA1, 1, "hash", int64(4), "application/pdf", "", nil,
		nil, nil, nil, nil, nil, nil,
		models.StatusPending, "fp1", time.Now(), nil, nil, nil,
		"staff-1", []byte(`{"steps":[]}`), nil, 0, true, false)
}

func mappingRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "subject_code", "exam_type", "moodle_course_id", "moodle_assignment_id", "is_active", "created_at", "updated_at"}).
		AddRow("m1", "MATH", models.ExamTypeCIA1, 10, 99, true, time.Now(), time.Now())
}

// moodleStub fakes the two Moodle endpoints the orchestrator's happy path
// exercises: draft file upload and the save/submit webservice calls.
func moodleStub(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/webservice/upload.php":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			w.Write([]byte(`[{"itemid": 55}]`))
		case "/webservice/rest/server.php":
			require.NoError(t, r.ParseForm())
			switch r.FormValue("wsfunction") {
			case "mod_assign_save_submission":
				w.Write([]byte(`{}`))
			case "mod_assign_submit_for_grading":
				w.Write([]byte(`{"submissionid": 77}`))
			default:
				w.Write([]byte(`{"exception":"unexpected","errorcode":"unexpected"}`))
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestOrchestrator(t *testing.T, moodleBaseURL string) (*Orchestrator, sqlmock.Sqlmock, *models.StudentSession, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")

	logger := zap.NewNop()
	artifacts := repository.NewArtifactRepository(sqlxDB)
	mappings := repository.NewMappingRepository(sqlxDB)
	sessions := repository.NewSessionRepository(sqlxDB)
	queue := repository.NewQueueRepository(sqlxDB)
	audit := repository.NewAuditRepository(sqlxDB)
	content := storage.NewContentStore(t.TempDir(), sqlxDB, logger)

	lmsClient := lms.NewClient(config.MoodleConfig{
		BaseURL:        moodleBaseURL,
		WSEndpoint:     "/webservice/rest/server.php",
		UploadEndpoint: "/webservice/upload.php",
		TokenEndpoint:  "/login/token.php",
		CallTimeout:    5 * time.Second,
	}, logger)

	key := make([]byte, 32) // AES-256 key, spec §4.5
	sealer, err := auth.NewSealer(key)
	require.NoError(t, err)
	studentAuth := auth.NewStudentService(sessions, mappings, lmsClient, sealer, 4)

	orch := New(artifacts, mappings, sessions, queue, audit, content, lmsClient, studentAuth, &notify.NoopNotifier{Logger: logger}, logger)

	sealedToken, err := sealer.Seal([]byte("student-moodle-token"))
	require.NoError(t, err)
	session := &models.StudentSession{
		ID: "session-1", MoodleUsername: "stud1", RegisterNumber: "123456789012",
		EncryptedLMSToken: sealedToken, CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
	}

	return orch, mock, session, func() { db.Close() }
}

func TestOrchestratorSubmitRejectsRegisterMismatch(t *testing.T) {
	orch, mock, session, cleanup := newTestOrchestrator(t, "")
	defer cleanup()
	session.RegisterNumber = "000000000000"

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM artifacts WHERE id = $1")).
		WithArgs(testArtifactID).
		WillReturnRows(pendingArtifactRow())

	_, err := orch.Submit(context.Background(), testArtifactID, session)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrAuthz)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrchestratorSubmitAlreadyInFlight(t *testing.T) {
	orch, mock, session, cleanup := newTestOrchestrator(t, "")
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM artifacts WHERE id = $1")).
		WithArgs(testArtifactID).
		WillReturnRows(pendingArtifactRow())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM subject_mappings WHERE subject_code = $1 AND exam_type = $2 AND is_active = true")).
		WithArgs("MATH", models.ExamTypeCIA1).
		WillReturnRows(mappingRow())
	mock.ExpectExec(regexp.QuoteMeta("UPDATE artifacts SET status = $1 WHERE id = $2 AND status IN ($3, $4)")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := orch.Submit(context.Background(), testArtifactID, session)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrAlreadyInFlight)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrchestratorSubmitHappyPath(t *testing.T) {
	moodle := moodleStub(t)
	defer moodle.Close()

	orch, mock, session, cleanup := newTestOrchestrator(t, moodle.URL)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM artifacts WHERE id = $1")).
		WithArgs(testArtifactID).
		WillReturnRows(pendingArtifactRow())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM subject_mappings WHERE subject_code = $1 AND exam_type = $2 AND is_active = true")).
		WithArgs("MATH", models.ExamTypeCIA1).
		WillReturnRows(mappingRow())
	mock.ExpectExec(regexp.QuoteMeta("UPDATE artifacts SET status = $1 WHERE id = $2 AND status IN ($3, $4)")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT inline_blob FROM artifacts WHERE id = $1")).
		WithArgs(testArtifactID).
		WillReturnRows(sqlmock.NewRows([]string{"inline_blob"}).AddRow([]byte("scanned bytes")))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE artifacts SET lms_draft_item_id = COALESCE($1, lms_draft_item_id), lms_submission_id = COALESCE($2, lms_submission_id) WHERE id = $3")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE artifacts SET status = $1, lms_submission_id = $2, completed_at = $3, transaction_log = $4")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_entries")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	artifact, err := orch.Submit(context.Background(), testArtifactID, session)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmittedToLMS, artifact.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrchestratorClassifyAndRoutePayloadRejectIsTerminal(t *testing.T) {
	orch, mock, session, cleanup := newTestOrchestrator(t, "")
	defer cleanup()

	artifact := &models.Artifact{ID: testArtifactID, RegisterNumber: session.RegisterNumber, RetryCount: 0}
	log := models.TransactionLog{}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE artifacts SET status = $1, error_message = $2, transaction_log = $3, retry_count = retry_count + 1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_entries")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := orch.classifyAndRoute(context.Background(), artifact, log, session, "UPLOAD_FILE",
		&lms.Error{Kind: lms.FailurePayloadReject, Code: "filesizeexceeded", Message: "too big"})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrUpstreamReject)
	assert.Equal(t, models.StatusFailed, artifact.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrchestratorClassifyAndRouteTransientGoesToRetryQueue(t *testing.T) {
	orch, mock, session, cleanup := newTestOrchestrator(t, "")
	defer cleanup()

	artifact := &models.Artifact{ID: testArtifactID, RegisterNumber: session.RegisterNumber, RetryCount: 0}
	log := models.TransactionLog{}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE artifacts SET status = $1, error_message = $2, transaction_log = $3, retry_count = retry_count + 1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM submission_queue WHERE artifact_id = $1")).
		WithArgs(testArtifactID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO submission_queue")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_entries")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := orch.classifyAndRoute(context.Background(), artifact, log, session, "UPLOAD_FILE",
		&lms.Error{Kind: lms.FailureTransient, Message: "timeout"})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrUpstreamTransient)
	assert.Equal(t, models.StatusFailed, artifact.Status)
	assert.Equal(t, 1, artifact.RetryCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}
