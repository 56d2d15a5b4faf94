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
	appErrors "github.com/noah-isme/sma-adp-api/pkg/errors"
)

// StaffRepository persists StaffUser rows.
type StaffRepository struct {
	db *sqlx.DB
}

// NewStaffRepository constructs the repository.
func NewStaffRepository(db *sqlx.DB) *StaffRepository {
	return &StaffRepository{db: db}
}

// FindByUsername looks up a staff account by username for login. It does
// not filter on the active flag; the caller checks it.
func (r *StaffRepository) FindByUsername(ctx context.Context, username string) (*models.StaffUser, error) {
	var u models.StaffUser
	err := r.db.GetContext(ctx, &u, `SELECT * FROM staff_users WHERE username = $1`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Clone(appErrors.ErrAuthInvalid, "invalid credentials")
	}
	if err != nil {
		return nil, fmt.Errorf("find staff by username: %w", err)
	}
	return &u, nil
}

// FindByID loads a staff account by id.
func (r *StaffRepository) FindByID(ctx context.Context, id string) (*models.StaffUser, error) {
	var u models.StaffUser
	err := r.db.GetContext(ctx, &u, `SELECT * FROM staff_users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find staff by id: %w", err)
	}
	return &u, nil
}

// Create inserts a new staff account (used by the admin bootstrap step).
func (r *StaffRepository) Create(ctx context.Context, u *models.StaffUser) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now

	const q = `INSERT INTO staff_users (id, username, password_hash, role, active, created_at, updated_at)
		VALUES (:id, :username, :password_hash, :role, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, q, u); err != nil {
		return fmt.Errorf("create staff user: %w", err)
	}
	return nil
}

// TouchLogin records the last-login timestamp.
func (r *StaffRepository) TouchLogin(ctx context.Context, id string) error {
	now := time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, `UPDATE staff_users SET last_login_at = $1, updated_at = $1 WHERE id = $2`, now, id); err != nil {
		return fmt.Errorf("touch staff login: %w", err)
	}
	return nil
}

// ExistsAny reports whether any staff account exists, used to gate the
// idempotent admin bootstrap step at startup.
func (r *StaffRepository) ExistsAny(ctx context.Context) (bool, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT count(*) FROM staff_users`); err != nil {
		return false, fmt.Errorf("count staff users: %w", err)
	}
	return count > 0, nil
}
