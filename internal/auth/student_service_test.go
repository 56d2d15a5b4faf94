package auth

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

	"github.com/noah-isme/sma-adp-api/internal/lms"
	"github.com/noah-isme/sma-adp-api/internal/models"
	"github.com/noah-isme/sma-adp-api/internal/repository"
	"github.com/noah-isme/sma-adp-api/pkg/config"
)

func newStudentServiceMock(t *testing.T) (*StudentService, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "moodle-ws-token"})
	}))

	lmsClient := lms.NewClient(config.MoodleConfig{BaseURL: srv.URL, TokenEndpoint: "/login/token.php", CallTimeout: 5 * time.Second}, zap.NewNop())
	sealer, err := NewSealer(make([]byte, 32))
	require.NoError(t, err)

	svc := NewStudentService(
		repository.NewSessionRepository(sqlxDB),
		repository.NewMappingRepository(sqlxDB),
		lmsClient,
		sealer,
		24,
	)
	return svc, mock, func() { srv.Close(); db.Close() }
}

func TestStudentServiceLoginMappedRegisterSucceeds(t *testing.T) {
	svc, mock, cleanup := newStudentServiceMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT register_number FROM username_register_maps WHERE moodle_username = $1")).
		WithArgs("jdoe").
		WillReturnRows(sqlmock.NewRows([]string{"register_number"}).AddRow("212222240047"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO student_sessions")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	resp, err := svc.Login(context.Background(), models.StudentLoginRequest{MoodleUsername: "jdoe", MoodlePassword: "secret"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SessionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// An unmapped Moodle username still logs in, with an empty register number
// rather than a rejected login (spec §9 open-question decision).
func TestStudentServiceLoginUnmappedRegisterStillSucceeds(t *testing.T) {
	svc, mock, cleanup := newStudentServiceMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT register_number FROM username_register_maps WHERE moodle_username = $1")).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"register_number"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO student_sessions")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	resp, err := svc.Login(context.Background(), models.StudentLoginRequest{MoodleUsername: "nobody", MoodlePassword: "secret"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SessionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
