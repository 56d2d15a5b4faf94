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

// MappingRepository persists SubjectMapping and UsernameRegisterMap rows
// (spec §3, §4.6).
type MappingRepository struct {
	db *sqlx.DB
}

// NewMappingRepository constructs the repository.
func NewMappingRepository(db *sqlx.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

// FindSubjectMapping resolves the active Moodle course/assignment bound to
// a (subject_code, exam_type) pair.
func (r *MappingRepository) FindSubjectMapping(ctx context.Context, subjectCode string, examType models.ExamType) (*models.SubjectMapping, error) {
	var m models.SubjectMapping
	const q = `SELECT * FROM subject_mappings WHERE subject_code = $1 AND exam_type = $2 AND is_active = true`
	err := r.db.GetContext(ctx, &m, q, subjectCode, examType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no active subject mapping for this subject and exam type")
	}
	if err != nil {
		return nil, fmt.Errorf("find subject mapping: %w", err)
	}
	return &m, nil
}

// ListSubjectMappings returns every mapping for the admin management view.
func (r *MappingRepository) ListSubjectMappings(ctx context.Context) ([]models.SubjectMapping, error) {
	var mappings []models.SubjectMapping
	if err := r.db.SelectContext(ctx, &mappings, `SELECT * FROM subject_mappings ORDER BY subject_code, exam_type`); err != nil {
		return nil, fmt.Errorf("list subject mappings: %w", err)
	}
	return mappings, nil
}

// UpsertSubjectMapping inserts or replaces the mapping for a tuple.
func (r *MappingRepository) UpsertSubjectMapping(ctx context.Context, m *models.SubjectMapping) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	m.UpdatedAt = now

	const q = `INSERT INTO subject_mappings (id, subject_code, exam_type, moodle_course_id, moodle_assignment_id, is_active, created_at, updated_at)
		VALUES (:id, :subject_code, :exam_type, :moodle_course_id, :moodle_assignment_id, :is_active, :created_at, :updated_at)
		ON CONFLICT (subject_code, exam_type) DO UPDATE SET
			moodle_course_id = EXCLUDED.moodle_course_id,
			moodle_assignment_id = EXCLUDED.moodle_assignment_id,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if _, err := r.db.NamedExecContext(ctx, q, m); err != nil {
		return fmt.Errorf("upsert subject mapping: %w", err)
	}
	return nil
}

// DeactivateSubjectMapping flips is_active off rather than deleting, so
// historical artifacts keep a resolvable binding for audit purposes.
func (r *MappingRepository) DeactivateSubjectMapping(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE subject_mappings SET is_active = false, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("deactivate subject mapping: %w", err)
	}
	return nil
}

// ResolveRegister maps a Moodle username to a register number, the join
// the student-facing endpoints use to avoid trusting client-supplied
// register numbers.
func (r *MappingRepository) ResolveRegister(ctx context.Context, moodleUsername string) (string, error) {
	var register string
	err := r.db.GetContext(ctx, &register, `SELECT register_number FROM username_register_maps WHERE moodle_username = $1`, moodleUsername)
	if errors.Is(err, sql.ErrNoRows) {
		return "", appErrors.Clone(appErrors.ErrNotFound, "no register number mapped for this username")
	}
	if err != nil {
		return "", fmt.Errorf("resolve register: %w", err)
	}
	return register, nil
}

// ListUsernameRegisterMaps returns the full mapping table for admin review.
func (r *MappingRepository) ListUsernameRegisterMaps(ctx context.Context) ([]models.UsernameRegisterMap, error) {
	var maps []models.UsernameRegisterMap
	if err := r.db.SelectContext(ctx, &maps, `SELECT * FROM username_register_maps ORDER BY moodle_username`); err != nil {
		return nil, fmt.Errorf("list username register maps: %w", err)
	}
	return maps, nil
}

// UpsertUsernameRegisterMap inserts or replaces a single mapping row.
func (r *MappingRepository) UpsertUsernameRegisterMap(ctx context.Context, m *models.UsernameRegisterMap) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	const q = `INSERT INTO username_register_maps (moodle_username, register_number, created_at)
		VALUES (:moodle_username, :register_number, :created_at)
		ON CONFLICT (moodle_username) DO UPDATE SET register_number = EXCLUDED.register_number`
	if _, err := r.db.NamedExecContext(ctx, q, m); err != nil {
		return fmt.Errorf("upsert username register map: %w", err)
	}
	return nil
}

// DeleteUsernameRegisterMap removes a single mapping row.
func (r *MappingRepository) DeleteUsernameRegisterMap(ctx context.Context, moodleUsername string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM username_register_maps WHERE moodle_username = $1`, moodleUsername); err != nil {
		return fmt.Errorf("delete username register map: %w", err)
	}
	return nil
}
