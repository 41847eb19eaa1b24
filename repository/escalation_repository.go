package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"civicflow/models"
)

// EscalationRepository handles database operations for escalation events
type EscalationRepository struct {
	db *sql.DB
}

// NewEscalationRepository creates a new escalation repository
func NewEscalationRepository(db *sql.DB) *EscalationRepository {
	return &EscalationRepository{db: db}
}

// CreateEscalationEvent appends an escalation event
func (r *EscalationRepository) CreateEscalationEvent(ctx context.Context, e *models.EscalationEvent) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO escalation_events (
			complaint_id, escalation_level, previous_level, escalated_at,
			escalated_to_role, reason, days_overdue
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ComplaintID, e.EscalationLevel, e.PreviousLevel, e.EscalatedAt,
		e.EscalatedToRole, e.Reason, e.DaysOverdue,
	)
	if err != nil {
		return fmt.Errorf("failed to create escalation event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get escalation event ID: %w", err)
	}
	e.EventID = id
	return nil
}

// ListEscalationEvents returns the escalation events of a complaint, oldest first
func (r *EscalationRepository) ListEscalationEvents(ctx context.Context, complaintID int64) ([]models.EscalationEvent, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
		SELECT event_id, complaint_id, escalation_level, previous_level, escalated_at,
			escalated_to_role, reason, days_overdue
		FROM escalation_events
		WHERE complaint_id = ?
		ORDER BY escalated_at ASC, event_id ASC`, complaintID)
	if err != nil {
		return nil, fmt.Errorf("failed to query escalation events: %w", err)
	}
	defer rows.Close()

	events := []models.EscalationEvent{}
	for rows.Next() {
		var e models.EscalationEvent
		if err := rows.Scan(&e.EventID, &e.ComplaintID, &e.EscalationLevel, &e.PreviousLevel,
			&e.EscalatedAt, &e.EscalatedToRole, &e.Reason, &e.DaysOverdue); err != nil {
			return nil, fmt.Errorf("failed to scan escalation event: %w", err)
		}
		events = append(events, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating escalation events: %w", err)
	}
	return events, nil
}

// CountEscalationEventsSince counts events recorded at or after since
func (r *EscalationRepository) CountEscalationEventsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM escalation_events WHERE escalated_at >= ?`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count escalation events: %w", err)
	}
	return n, nil
}
