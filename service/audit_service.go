package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"civicflow/models"
)

// AuditService writes the audit trail. It is called inside the caller's unit of
// work, so a failed write fails the operation being audited.
type AuditService struct {
	store AuditStore
	now   func() time.Time
}

// NewAuditService creates a new audit service
func NewAuditService(store AuditStore) *AuditService {
	return &AuditService{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// RecordStateChange records a complaint status change
func (s *AuditService) RecordStateChange(
	ctx context.Context,
	c *models.Complaint,
	from, to models.ComplaintStatus,
	actor models.ActorContext,
	reason string,
) error {
	oldValues := map[string]any{"status": string(from)}
	newValues := map[string]any{
		"status":           string(to),
		"priority":         string(c.Priority),
		"escalation_level": c.EscalationLevel,
		"version":          c.Version,
	}
	return s.RecordGenericAction(ctx, "complaint", c.ComplaintID, "status_change", actor, oldValues, newValues, reason)
}

// RecordGenericAction records any other audited action. oldValues and newValues
// are stored as JSON; nil leaves the column NULL.
func (s *AuditService) RecordGenericAction(
	ctx context.Context,
	entityType string,
	entityID int64,
	action string,
	actor models.ActorContext,
	oldValues, newValues any,
	reason string,
) error {
	oldJSON, err := jsonColumn(oldValues)
	if err != nil {
		return fmt.Errorf("failed to encode audit old values: %w", err)
	}
	newJSON, err := jsonColumn(newValues)
	if err != nil {
		return fmt.Errorf("failed to encode audit new values: %w", err)
	}

	entry := &models.AuditLog{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ActorRole:  actor.Role,
		ActorID:    actorID(actor),
		OldValues:  oldJSON,
		NewValues:  newJSON,
		Reason:     sql.NullString{String: reason, Valid: reason != ""},
		CreatedAt:  s.now(),
	}
	if err := s.store.CreateAuditLog(ctx, entry); err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

func jsonColumn(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// actorID is NULL for the synthetic SYSTEM actor.
func actorID(actor models.ActorContext) sql.NullInt64 {
	if actor.Role == models.RoleSystem && actor.UserID == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: actor.UserID, Valid: true}
}
