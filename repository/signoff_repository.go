package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"civicflow/lifecycle"
	"civicflow/models"

	"github.com/go-sql-driver/mysql"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// SignoffRepository handles database operations for citizen signoffs.
// The dispute_approved column stores the dispute outcome: NULL pending, 1 approved, 0 rejected.
type SignoffRepository struct {
	db *sql.DB
}

// NewSignoffRepository creates a new signoff repository
func NewSignoffRepository(db *sql.DB) *SignoffRepository {
	return &SignoffRepository{db: db}
}

const signoffColumns = `
	signoff_id, complaint_id, citizen_id, is_accepted, rating, feedback,
	dispute_reason, counter_proof_ref, dispute_approved, dispute_reviewed_by,
	dispute_reviewed_at, rejection_reason, created_at`

func scanSignoff(row interface{ Scan(...any) error }) (*models.CitizenSignoff, error) {
	var (
		s        models.CitizenSignoff
		approved sql.NullBool
	)
	err := row.Scan(&s.SignoffID, &s.ComplaintID, &s.CitizenID, &s.IsAccepted, &s.Rating, &s.Feedback,
		&s.DisputeReason, &s.CounterProofRef, &approved, &s.DisputeReviewedBy,
		&s.DisputeReviewedAt, &s.RejectionReason, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.DisputeOutcome = models.DisputeOutcomeFromColumns(s.IsAccepted, approved)
	return &s, nil
}

// CreateSignoff inserts a signoff. A second pending dispute for the same complaint
// violates the uq_pending_dispute index and is reported as DuplicateDisputeError.
func (r *SignoffRepository) CreateSignoff(ctx context.Context, s *models.CitizenSignoff) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO citizen_signoffs (
			complaint_id, citizen_id, is_accepted, rating, feedback,
			dispute_reason, counter_proof_ref, dispute_approved, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ComplaintID, s.CitizenID, s.IsAccepted, s.Rating, s.Feedback,
		s.DisputeReason, s.CounterProofRef, s.DisputeOutcome.NullBool(), s.CreatedAt,
	)
	if isDuplicateEntry(err) {
		return &lifecycle.DuplicateDisputeError{ComplaintID: s.ComplaintID}
	}
	if err != nil {
		return fmt.Errorf("failed to create signoff: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get signoff ID: %w", err)
	}
	s.SignoffID = id
	return nil
}

// GetSignoff retrieves a signoff by ID
func (r *SignoffRepository) GetSignoff(ctx context.Context, signoffID int64) (*models.CitizenSignoff, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+signoffColumns+` FROM citizen_signoffs WHERE signoff_id = ?`, signoffID)
	s, err := scanSignoff(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lifecycle.NotFound("signoff", signoffID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signoff: %w", err)
	}
	return s, nil
}

// ListSignoffs returns every signoff of a complaint, oldest first
func (r *SignoffRepository) ListSignoffs(ctx context.Context, complaintID int64) ([]models.CitizenSignoff, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+signoffColumns+` FROM citizen_signoffs WHERE complaint_id = ? ORDER BY created_at ASC, signoff_id ASC`,
		complaintID)
	if err != nil {
		return nil, fmt.Errorf("failed to query signoffs: %w", err)
	}
	defer rows.Close()

	signoffs := []models.CitizenSignoff{}
	for rows.Next() {
		s, err := scanSignoff(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signoff: %w", err)
		}
		signoffs = append(signoffs, *s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signoffs: %w", err)
	}
	return signoffs, nil
}

// FindPendingDispute returns the pending dispute of a complaint, or nil when there is none
func (r *SignoffRepository) FindPendingDispute(ctx context.Context, complaintID int64) (*models.CitizenSignoff, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, `SELECT `+signoffColumns+`
		FROM citizen_signoffs
		WHERE complaint_id = ? AND is_accepted = FALSE AND dispute_approved IS NULL
		LIMIT 1`, complaintID)
	s, err := scanSignoff(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending dispute: %w", err)
	}
	return s, nil
}

// HasAcceptedSignoff reports whether an acceptance row exists for the complaint
func (r *SignoffRepository) HasAcceptedSignoff(ctx context.Context, complaintID int64) (bool, error) {
	var n int
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM citizen_signoffs WHERE complaint_id = ? AND is_accepted = TRUE`, complaintID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check accepted signoff: %w", err)
	}
	return n > 0, nil
}

// RecordDisputeDecision stores the review outcome of a dispute that is still pending.
// If another reviewer decided first, ErrConcurrentModification is returned.
func (r *SignoffRepository) RecordDisputeDecision(ctx context.Context, s *models.CitizenSignoff) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE citizen_signoffs
		SET dispute_approved = ?, dispute_reviewed_by = ?, dispute_reviewed_at = ?, rejection_reason = ?
		WHERE signoff_id = ? AND is_accepted = FALSE AND dispute_approved IS NULL`,
		s.DisputeOutcome.NullBool(), s.DisputeReviewedBy, s.DisputeReviewedAt, s.RejectionReason, s.SignoffID,
	)
	if err != nil {
		return fmt.Errorf("failed to record dispute decision: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return lifecycle.ErrConcurrentModification
	}
	return nil
}

// ListPendingDisputes lists disputes awaiting review, optionally for one department
func (r *SignoffRepository) ListPendingDisputes(ctx context.Context, departmentID *int64) ([]models.PendingDispute, error) {
	query := `
		SELECT s.signoff_id, s.complaint_id, c.complaint_number, s.citizen_id, c.department_id,
			c.priority, s.dispute_reason, s.counter_proof_ref, s.created_at
		FROM citizen_signoffs s
		JOIN complaints c ON c.complaint_id = s.complaint_id
		WHERE s.is_accepted = FALSE AND s.dispute_approved IS NULL`
	var args []any
	if departmentID != nil {
		query += ` AND c.department_id = ?`
		args = append(args, *departmentID)
	}
	query += ` ORDER BY s.created_at ASC`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending disputes: %w", err)
	}
	defer rows.Close()

	disputes := []models.PendingDispute{}
	for rows.Next() {
		var (
			d       models.PendingDispute
			dept    sql.NullInt64
			reason  sql.NullString
			counter sql.NullString
		)
		if err := rows.Scan(&d.SignoffID, &d.ComplaintID, &d.ComplaintNumber, &d.CitizenID, &dept,
			&d.Priority, &reason, &counter, &d.FiledAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending dispute: %w", err)
		}
		d.DepartmentID = int64Ptr(dept)
		d.DisputeReason = reason.String
		if counter.Valid {
			d.CounterProofRef = &counter.String
		}
		disputes = append(disputes, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending disputes: %w", err)
	}
	return disputes, nil
}
