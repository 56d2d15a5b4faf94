package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-adp-api/internal/models"
	appErrors "github.com/noah-isme/sma-adp-api/pkg/errors"
)

// SessionRepository persists StudentSession rows (spec §4.5).
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session row. The caller supplies ID (a random
// 128-bit token, per §4.5) since it doubles as the bearer credential.
func (r *SessionRepository) Create(ctx context.Context, s *models.StudentSession) error {
	const q = `INSERT INTO student_sessions (id, moodle_username, register_number, encrypted_lms_token, created_at, expires_at)
		VALUES (:id, :moodle_username, :register_number, :encrypted_lms_token, :created_at, :expires_at)`
	if _, err := r.db.NamedExecContext(ctx, q, s); err != nil {
		return fmt.Errorf("create student session: %w", err)
	}
	return nil
}

// FindByID loads a session by its bearer id, rejecting expired rows.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.StudentSession, error) {
	var s models.StudentSession
	err := r.db.GetContext(ctx, &s, `SELECT * FROM student_sessions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Clone(appErrors.ErrAuthRequired, "session not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find session by id: %w", err)
	}
	if s.Expired() {
		_ = r.Delete(ctx, id)
		return nil, appErrors.Clone(appErrors.ErrAuthInvalid, "session expired")
	}
	return &s, nil
}

// Delete removes a session row, used on logout and on terminal AuthInvalid
// failures from the LMS during submission (§4.7).
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM student_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired purges rows past their expiry.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM student_sessions WHERE expires_at < $1`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}
