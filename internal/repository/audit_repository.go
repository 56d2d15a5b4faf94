package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-adp-api/internal/models"
)

// AuditRepository persists audit trail entries.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts a single audit entry, assigning ID/CreatedAt if unset.
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_entries
	(id, actor_type, actor_id, action, target, request_payload, result, ip_address, user_agent, created_at)
	VALUES (:id, :actor_type, :actor_id, :action, :target, :request_payload, :result, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create audit entry: %w", err)
	}
	return nil
}

// CreateTx inserts an audit entry as part of a caller-managed transaction,
// so the audit row commits atomically with the mutation it records.
func (r *AuditRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_entries
	(id, actor_type, actor_id, action, target, request_payload, result, ip_address, user_agent, created_at)
	VALUES (:id, :actor_type, :actor_id, :action, :target, :request_payload, :result, :ip_address, :user_agent, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create audit entry (tx): %w", err)
	}
	return nil
}

// ListByActor returns recent entries for a given actor, most recent first.
func (r *AuditRepository) ListByActor(ctx context.Context, actorID string, limit int) ([]models.AuditEntry, error) {
	const query = `SELECT * FROM audit_entries WHERE actor_id = $1 ORDER BY created_at DESC LIMIT $2`
	var entries []models.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, actorID, limit); err != nil {
		return nil, fmt.Errorf("list audit entries by actor: %w", err)
	}
	return entries, nil
}

// ListAll returns a page of entries ordered newest-first, for the admin
// audit listing (GET /admin/audit).
func (r *AuditRepository) ListAll(ctx context.Context, limit, offset int) ([]models.AuditEntry, error) {
	const query = `SELECT * FROM audit_entries ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	var entries []models.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, limit, offset); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}
