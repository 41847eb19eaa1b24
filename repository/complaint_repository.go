package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"civicflow/lifecycle"
	"civicflow/models"

	"github.com/google/uuid"
)

// ComplaintRepository handles database operations for complaints
type ComplaintRepository struct {
	db *sql.DB
}

// NewComplaintRepository creates a new complaint repository
func NewComplaintRepository(db *sql.DB) *ComplaintRepository {
	return &ComplaintRepository{db: db}
}

// GenerateComplaintNumber generates a unique complaint number
// Format: CMP-YYYYMMDD-{8 hex}
func GenerateComplaintNumber(now time.Time) string {
	return fmt.Sprintf("CMP-%s-%s", now.UTC().Format("20060102"), uuid.New().String()[:8])
}

const complaintColumns = `
	complaint_id, complaint_number, citizen_id, title, description,
	category_id, department_id, staff_id, status, priority,
	sla_days_assigned, sla_deadline, escalation_level,
	created_time, start_time, resolved_time, closed_time, updated_time, version`

func scanComplaint(row interface{ Scan(...any) error }) (*models.Complaint, error) {
	var c models.Complaint
	err := row.Scan(
		&c.ComplaintID, &c.ComplaintNumber, &c.CitizenID, &c.Title, &c.Description,
		&c.CategoryID, &c.DepartmentID, &c.StaffID, &c.Status, &c.Priority,
		&c.SLADaysAssigned, &c.SLADeadline, &c.EscalationLevel,
		&c.CreatedTime, &c.StartTime, &c.ResolvedTime, &c.ClosedTime, &c.UpdatedTime, &c.Version,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateComplaint inserts a complaint as filed by intake. Version starts at 1.
func (r *ComplaintRepository) CreateComplaint(ctx context.Context, c *models.Complaint) error {
	if c.ComplaintNumber == "" {
		c.ComplaintNumber = GenerateComplaintNumber(c.CreatedTime)
	}
	c.Version = 1
	result, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO complaints (
			complaint_number, citizen_id, title, description,
			category_id, department_id, staff_id, status, priority,
			sla_days_assigned, sla_deadline, escalation_level,
			created_time, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ComplaintNumber, c.CitizenID, c.Title, c.Description,
		c.CategoryID, c.DepartmentID, c.StaffID, c.Status, c.Priority,
		c.SLADaysAssigned, c.SLADeadline, c.EscalationLevel,
		c.CreatedTime, c.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to create complaint: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get complaint ID: %w", err)
	}
	c.ComplaintID = id
	return nil
}

// GetComplaintByID retrieves a complaint by its ID
func (r *ComplaintRepository) GetComplaintByID(ctx context.Context, complaintID int64) (*models.Complaint, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+complaintColumns+` FROM complaints WHERE complaint_id = ?`, complaintID)
	c, err := scanComplaint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lifecycle.NotFound("complaint", complaintID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get complaint: %w", err)
	}
	return c, nil
}

// GetComplaintByNumber retrieves a complaint by its public number; nil when absent
func (r *ComplaintRepository) GetComplaintByNumber(ctx context.Context, number string) (*models.Complaint, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+complaintColumns+` FROM complaints WHERE complaint_number = ?`, number)
	c, err := scanComplaint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get complaint by number: %w", err)
	}
	return c, nil
}

// UpdateComplaint writes every mutable column, guarded by the version read at load time.
// On success c.Version is advanced; zero matched rows means someone else wrote first.
func (r *ComplaintRepository) UpdateComplaint(ctx context.Context, c *models.Complaint) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE complaints SET
			staff_id = ?, department_id = ?, status = ?, priority = ?,
			sla_days_assigned = ?, sla_deadline = ?, escalation_level = ?,
			start_time = ?, resolved_time = ?, closed_time = ?, updated_time = ?,
			version = version + 1
		WHERE complaint_id = ? AND version = ?`,
		c.StaffID, c.DepartmentID, c.Status, c.Priority,
		c.SLADaysAssigned, c.SLADeadline, c.EscalationLevel,
		c.StartTime, c.ResolvedTime, c.ClosedTime, c.UpdatedTime,
		c.ComplaintID, c.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update complaint: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return lifecycle.ErrConcurrentModification
	}
	c.Version++
	return nil
}

// CreateStatusHistory appends a status change record
func (r *ComplaintRepository) CreateStatusHistory(ctx context.Context, h *models.StatusHistory) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO complaint_status_history (
			complaint_id, old_status, new_status, actor_role, actor_id, reason, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.ComplaintID, h.OldStatus, h.NewStatus, h.ActorRole, h.ActorID, h.Reason, h.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create status history: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get history ID: %w", err)
	}
	h.HistoryID = id
	return nil
}

// GetStatusHistory retrieves the status history for a complaint, oldest first
func (r *ComplaintRepository) GetStatusHistory(ctx context.Context, complaintID int64) ([]models.StatusHistory, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
		SELECT history_id, complaint_id, old_status, new_status, actor_role, actor_id, reason, created_at
		FROM complaint_status_history
		WHERE complaint_id = ?
		ORDER BY created_at ASC, history_id ASC`, complaintID)
	if err != nil {
		return nil, fmt.Errorf("failed to query status history: %w", err)
	}
	defer rows.Close()

	var history []models.StatusHistory
	for rows.Next() {
		var h models.StatusHistory
		if err := rows.Scan(&h.HistoryID, &h.ComplaintID, &h.OldStatus, &h.NewStatus,
			&h.ActorRole, &h.ActorID, &h.Reason, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status history: %w", err)
		}
		history = append(history, h)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status history: %w", err)
	}
	return history, nil
}

// ListOverdue returns active complaints whose SLA deadline passed before now,
// most overdue first, capped at limit.
func (r *ComplaintRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.EscalationCandidate, error) {
	args := make([]any, 0, len(models.ActiveStatuses)+2)
	for _, s := range models.ActiveStatuses {
		args = append(args, string(s))
	}
	args = append(args, now, limit)

	rows, err := conn(ctx, r.db).QueryContext(ctx, `
		SELECT complaint_id, complaint_number, citizen_id, status, priority,
			department_id, staff_id, sla_deadline, escalation_level
		FROM complaints
		WHERE status IN (`+placeholders(len(models.ActiveStatuses))+`)
			AND sla_deadline IS NOT NULL
			AND sla_deadline < ?
		ORDER BY sla_deadline ASC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue complaints: %w", err)
	}
	defer rows.Close()

	var candidates []models.EscalationCandidate
	for rows.Next() {
		var (
			c           models.EscalationCandidate
			dept, staff sql.NullInt64
		)
		if err := rows.Scan(&c.ComplaintID, &c.ComplaintNumber, &c.CitizenID, &c.Status, &c.Priority,
			&dept, &staff, &c.SLADeadline, &c.EscalationLevel); err != nil {
			return nil, fmt.Errorf("failed to scan escalation candidate: %w", err)
		}
		c.DepartmentID = int64Ptr(dept)
		c.StaffID = int64Ptr(staff)
		candidates = append(candidates, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating escalation candidates: %w", err)
	}
	return candidates, nil
}

// AdvanceEscalationLevel raises escalation_level to level only if the complaint is
// still active, still overdue and below level. Returns false when nothing changed,
// which makes overlapping sweeps and racing user transitions harmless.
func (r *ComplaintRepository) AdvanceEscalationLevel(ctx context.Context, complaintID int64, level int, now time.Time) (bool, error) {
	args := []any{level, now, complaintID, level, now}
	for _, s := range models.ActiveStatuses {
		args = append(args, string(s))
	}
	result, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE complaints
		SET escalation_level = ?, updated_time = ?, version = version + 1
		WHERE complaint_id = ?
			AND escalation_level < ?
			AND sla_deadline < ?
			AND status IN (`+placeholders(len(models.ActiveStatuses))+`)`, args...)
	if err != nil {
		return false, fmt.Errorf("failed to advance escalation level: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// EscalationStats counts active and overdue complaints and groups the active ones by level.
func (r *ComplaintRepository) EscalationStats(ctx context.Context, now time.Time) (*models.EscalationStats, error) {
	args := []any{now}
	for _, s := range models.ActiveStatuses {
		args = append(args, string(s))
	}
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
		SELECT escalation_level,
			COUNT(*),
			SUM(CASE WHEN sla_deadline IS NOT NULL AND sla_deadline < ? THEN 1 ELSE 0 END)
		FROM complaints
		WHERE status IN (`+placeholders(len(models.ActiveStatuses))+`)
		GROUP BY escalation_level`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query escalation stats: %w", err)
	}
	defer rows.Close()

	stats := &models.EscalationStats{ByLevel: map[int]int{}, GeneratedAt: now}
	for rows.Next() {
		var level, total, overdue int
		if err := rows.Scan(&level, &total, &overdue); err != nil {
			return nil, fmt.Errorf("failed to scan escalation stats: %w", err)
		}
		stats.ByLevel[level] = total
		stats.ActiveComplaints += total
		stats.OverdueComplaints += overdue
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating escalation stats: %w", err)
	}
	return stats, nil
}
