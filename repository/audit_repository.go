package repository

import (
	"context"
	"database/sql"
	"fmt"

	"civicflow/models"
)

// AuditRepository writes the immutable audit trail
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// CreateAuditLog appends an audit entry. Inside WithinTx it commits or rolls back
// together with the change it describes.
func (r *AuditRepository) CreateAuditLog(ctx context.Context, a *models.AuditLog) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO audit_log (
			entity_type, entity_id, action, actor_role, actor_id,
			old_values, new_values, reason, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.EntityType, a.EntityID, a.Action, a.ActorRole, a.ActorID,
		a.OldValues, a.NewValues, a.Reason, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit ID: %w", err)
	}
	a.AuditID = id
	return nil
}

// ListAuditLogs returns the audit entries for one entity, oldest first
func (r *AuditRepository) ListAuditLogs(ctx context.Context, entityType string, entityID int64) ([]models.AuditLog, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
		SELECT audit_id, entity_type, entity_id, action, actor_role, actor_id,
			old_values, new_values, reason, created_at
		FROM audit_log
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at ASC, audit_id ASC`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var logs []models.AuditLog
	for rows.Next() {
		var a models.AuditLog
		if err := rows.Scan(&a.AuditID, &a.EntityType, &a.EntityID, &a.Action, &a.ActorRole, &a.ActorID,
			&a.OldValues, &a.NewValues, &a.Reason, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log: %w", err)
	}
	return logs, nil
}
