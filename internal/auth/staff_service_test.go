package auth

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
	"github.com/noah-isme/sma-adp-api/internal/repository"
	appErrors "github.com/noah-isme/sma-adp-api/pkg/errors"
)

func newStaffServiceMock(t *testing.T) (*StaffService, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	svc := NewStaffService(repository.NewStaffRepository(sqlxDB), "test-secret", time.Hour)
	return svc, mock, func() { db.Close() }
}

func TestStaffServiceLoginSucceeds(t *testing.T) {
	svc, mock, cleanup := newStaffServiceMock(t)
	defer cleanup()

	hash, err := HashPassword("correct-password")
	require.NoError(t, err)

	cols := []string{"id", "username", "password_hash", "role", "active", "last_login_at", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM staff_users WHERE username = $1")).
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("staff-1", "admin", hash, models.StaffRoleAdmin, true, nil, time.Now(), time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE staff_users SET last_login_at = $1, updated_at = $1 WHERE id = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	resp, err := svc.Login(context.Background(), models.StaffLoginRequest{Username: "admin", Password: "correct-password"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)

	claims, err := svc.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", claims.UserID)
	assert.Equal(t, models.StaffRoleAdmin, claims.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStaffServiceLoginRejectsWrongPassword(t *testing.T) {
	svc, mock, cleanup := newStaffServiceMock(t)
	defer cleanup()

	hash, err := HashPassword("correct-password")
	require.NoError(t, err)

	cols := []string{"id", "username", "password_hash", "role", "active", "last_login_at", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM staff_users WHERE username = $1")).
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("staff-1", "admin", hash, models.StaffRoleAdmin, true, nil, time.Now(), time.Now()))

	_, err = svc.Login(context.Background(), models.StaffLoginRequest{Username: "admin", Password: "wrong"})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrAuthInvalid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStaffServiceLoginRejectsDisabledAccount(t *testing.T) {
	svc, mock, cleanup := newStaffServiceMock(t)
	defer cleanup()

	hash, err := HashPassword("correct-password")
	require.NoError(t, err)

	cols := []string{"id", "username", "password_hash", "role", "active", "last_login_at", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM staff_users WHERE username = $1")).
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("staff-1", "admin", hash, models.StaffRoleAdmin, false, nil, time.Now(), time.Now()))

	_, err = svc.Login(context.Background(), models.StaffLoginRequest{Username: "admin", Password: "correct-password"})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrAuthz)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStaffServiceValidateTokenRejectsGarbage(t *testing.T) {
	svc, _, cleanup := newStaffServiceMock(t)
	defer cleanup()

	_, err := svc.ValidateToken("not-a-jwt")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrAuthInvalid)
}
