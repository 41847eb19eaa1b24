package repository

import (
	"context"
	"database/sql"
	"fmt"

	"civicflow/models"
)

// RewardRepository writes the citizen points ledger
type RewardRepository struct {
	db *sql.DB
}

// NewRewardRepository creates a new reward repository
func NewRewardRepository(db *sql.DB) *RewardRepository {
	return &RewardRepository{db: db}
}

// AwardPoints appends a ledger entry. (citizen, complaint, reason) is unique, so a
// redelivered award returns false instead of paying twice.
func (r *RewardRepository) AwardPoints(ctx context.Context, e *models.RewardEntry) (bool, error) {
	result, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO citizen_rewards (citizen_id, complaint_id, points, reason, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.CitizenID, e.ComplaintID, e.Points, e.Reason, e.CreatedAt,
	)
	if isDuplicateEntry(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to award points: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to get reward ID: %w", err)
	}
	e.RewardID = id
	return true, nil
}

// TotalPoints sums a citizen's points
func (r *RewardRepository) TotalPoints(ctx context.Context, citizenID int64) (int, error) {
	var total sql.NullInt64
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT SUM(points) FROM citizen_rewards WHERE citizen_id = ?`, citizenID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum reward points: %w", err)
	}
	return int(total.Int64), nil
}
