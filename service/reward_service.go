package service

import (
	"context"
	"fmt"
	"time"

	"civicflow/models"

	"go.uber.org/zap"
)

const rewardReasonClosed = "complaint_closed"

// RewardService credits citizens when their complaint closes.
type RewardService struct {
	store  RewardStore
	points int
	logger *zap.Logger
	now    func() time.Time
}

// NewRewardService creates a reward service awarding points per closed complaint.
func NewRewardService(store RewardStore, points int, logger *zap.Logger) *RewardService {
	return &RewardService{
		store:  store,
		points: points,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// AwardForClosure credits the citizen once per complaint; redelivery is a no-op.
func (s *RewardService) AwardForClosure(ctx context.Context, c *models.Complaint) error {
	if s.points <= 0 {
		return nil
	}
	entry := &models.RewardEntry{
		CitizenID:   c.CitizenID,
		ComplaintID: c.ComplaintID,
		Points:      s.points,
		Reason:      rewardReasonClosed,
		CreatedAt:   s.now(),
	}
	created, err := s.store.AwardPoints(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to award points: %w", err)
	}
	if created {
		s.logger.Info("reward points awarded",
			zap.Int64("citizen_id", c.CitizenID),
			zap.Int64("complaint_id", c.ComplaintID),
			zap.Int("points", s.points))
	}
	return nil
}
