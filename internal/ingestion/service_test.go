package ingestion

import (
	"context"
	"encoding/json"
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

	"github.com/noah-isme/sma-adp-api/internal/extraction"
	"github.com/noah-isme/sma-adp-api/internal/models"
	"github.com/noah-isme/sma-adp-api/internal/repository"
	"github.com/noah-isme/sma-adp-api/internal/storage"
	"github.com/noah-isme/sma-adp-api/pkg/config"
)

func newIngestionServiceMock(t *testing.T) (*Service, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")

	logger := zap.NewNop()
	content := storage.NewContentStore(t.TempDir(), sqlxDB, logger)
	artifacts := repository.NewArtifactRepository(sqlxDB)
	auditRepo := repository.NewAuditRepository(sqlxDB)
	extractionClient := extraction.NewClient(config.ExtractionConfig{}, logger) // no BaseURL: disabled

	svc := New(content, artifacts, auditRepo, extractionClient, 0.8, logger)
	return svc, mock, func() { db.Close() }
}

// newIngestionServiceWithExtraction wires a fake remote extraction
// endpoint instead of leaving the client disabled, so the confidence
// classification branches in Ingest can be exercised directly.
func newIngestionServiceWithExtraction(t *testing.T, result extraction.Result) (*Service, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
	}))

	logger := zap.NewNop()
	content := storage.NewContentStore(t.TempDir(), sqlxDB, logger)
	artifacts := repository.NewArtifactRepository(sqlxDB)
	auditRepo := repository.NewAuditRepository(sqlxDB)
	extractionClient := extraction.NewClient(config.ExtractionConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}, logger)

	svc := New(content, artifacts, auditRepo, extractionClient, 0.8, logger)
	return svc, mock, func() { srv.Close(); db.Close() }
}

var pdfBytes = append([]byte("%PDF-1.4\n"), []byte("minimal test pdf content")...)

func TestIngestServiceStrictModeNewArtifact(t *testing.T) {
	svc, mock, cleanup := newIngestionServiceMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM artifacts WHERE idempotency_key = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM artifacts WHERE register_number = $1 AND subject_code = $2 AND exam_type = $3")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO artifacts")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_entries")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE artifacts SET inline_blob = $1 WHERE id = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	artifact, err := svc.Ingest(context.Background(), UploadParams{
		Filename: "123456789012_MATH_CIA1.pdf",
		Data:     pdfBytes,
		Mode:     ModeStrict,
		StaffID:  "staff-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "123456789012", artifact.RegisterNumber)
	assert.Equal(t, "MATH", artifact.SubjectCode)
	assert.True(t, artifact.AutoProcessed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestServiceStrictModeRejectsMalformedFilename(t *testing.T) {
	svc, _, cleanup := newIngestionServiceMock(t)
	defer cleanup()

	_, err := svc.Ingest(context.Background(), UploadParams{
		Filename: "not-a-valid-name.pdf",
		Data:     pdfBytes,
		Mode:     ModeStrict,
		StaffID:  "staff-1",
	})
	require.Error(t, err)
}

func TestIngestServiceRejectsContentExtensionMismatch(t *testing.T) {
	svc, _, cleanup := newIngestionServiceMock(t)
	defer cleanup()

	_, err := svc.Ingest(context.Background(), UploadParams{
		Filename: "123456789012_MATH_CIA1.pdf",
		Data:     []byte("this is not a pdf"),
		Mode:     ModeStrict,
		StaffID:  "staff-1",
	})
	require.Error(t, err)
}

func TestIngestServiceFlexibleModeWithoutExtractionFailsClosed(t *testing.T) {
	svc, _, cleanup := newIngestionServiceMock(t)
	defer cleanup()

	_, err := svc.Ingest(context.Background(), UploadParams{
		Filename:      "scan_0042.pdf",
		Data:          pdfBytes,
		Mode:          ModeFlexible,
		StaffID:       "staff-1",
		UseExtraction: true, // extraction client has no BaseURL, so it stays disabled
	})
	require.Error(t, err)
}

// A below-threshold extraction result is stored for manual review rather
// than rejected (spec §4.3): original filename stays canonical and
// auto_processed is false.
func TestIngestServiceLowConfidenceExtractionStoresForManualReview(t *testing.T) {
	svc, mock, cleanup := newIngestionServiceWithExtraction(t, extraction.Result{
		RegisterNumber:     "123456789012",
		RegisterConfidence: 0.4,
		SubjectCode:        "MATH",
		SubjectConfidence:  0.4,
	})
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM artifacts WHERE idempotency_key = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM artifacts WHERE register_number = $1 AND subject_code = $2 AND exam_type = $3")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO artifacts")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_entries")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE artifacts SET inline_blob = $1 WHERE id = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	artifact, err := svc.Ingest(context.Background(), UploadParams{
		Filename:      "scan_0042.pdf",
		Data:          pdfBytes,
		Mode:          ModeFlexible,
		StaffID:       "staff-1",
		UseExtraction: true,
		AuditAction:   models.AuditActionScanUpload,
	})
	require.NoError(t, err)
	assert.False(t, artifact.AutoProcessed)
	assert.Equal(t, "scan_0042.pdf", artifact.CanonicalFilename)
	assert.Equal(t, "123456789012", artifact.RegisterNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}
