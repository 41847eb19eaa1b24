package service

import (
	"context"
	"database/sql"
	"fmt"

	"civicflow/lifecycle"
	"civicflow/models"

	"go.uber.org/zap"
)

// SignoffService records the citizen's verdict on a resolution. An acceptance closes
// the complaint; a dispute is handed to the dispute workflow.
type SignoffService struct {
	complaints ComplaintStore
	signoffs   SignoffStore
	lifecycle  *LifecycleService
	disputes   *DisputeService
	logger     *zap.Logger
}

// NewSignoffService creates a new signoff service
func NewSignoffService(stores Stores, orchestrator *LifecycleService, disputes *DisputeService, logger *zap.Logger) *SignoffService {
	return &SignoffService{
		complaints: stores.Complaints,
		signoffs:   stores.Signoffs,
		lifecycle:  orchestrator,
		disputes:   disputes,
		logger:     logger,
	}
}

// SubmitSignoff records an acceptance (closing the complaint in the same unit of
// work) or delegates a dispute to DisputeService.SubmitDispute.
func (s *SignoffService) SubmitSignoff(
	ctx context.Context,
	complaintID int64,
	actor models.ActorContext,
	req *models.SubmitSignoffRequest,
) (*models.SignoffResponse, error) {
	if !req.IsAccepted {
		dispute := &models.SubmitDisputeRequest{CounterProofRef: req.CounterProofRef, Feedback: req.Feedback}
		if req.DisputeReason != nil {
			dispute.DisputeReason = *req.DisputeReason
		}
		signoff, err := s.disputes.SubmitDispute(ctx, complaintID, actor, dispute)
		if err != nil {
			return nil, err
		}
		return &models.SignoffResponse{Signoff: signoff, Message: "Dispute submitted for review"}, nil
	}

	if req.Rating == nil || *req.Rating < 1 || *req.Rating > 5 {
		return nil, &lifecycle.ValidationError{Field: "rating", Message: "must be between 1 and 5"}
	}

	var signoff *models.CitizenSignoff
	accept := func(ctx context.Context, c *models.Complaint) error {
		if c.Status != models.StatusResolved {
			return &lifecycle.InvalidStateTransitionError{
				ComplaintID: complaintID,
				From:        c.Status,
				To:          models.StatusClosed,
				Reason:      fmt.Sprintf("only RESOLVED complaints can be signed off, complaint is %s", c.Status),
			}
		}
		if actor.Role != models.RoleCitizen {
			return &lifecycle.ForbiddenError{Role: actor.Role, Rule: "only the citizen can sign off a resolution"}
		}
		if actor.UserID != c.CitizenID {
			return &lifecycle.ComplaintOwnershipError{ComplaintID: complaintID, UserID: actor.UserID}
		}
		pending, err := s.signoffs.FindPendingDispute(ctx, complaintID)
		if err != nil {
			return err
		}
		if pending != nil {
			return &lifecycle.InvalidDisputeStateError{
				ComplaintID: complaintID,
				SignoffID:   pending.SignoffID,
				Reason:      "a dispute is pending review, the resolution cannot be accepted",
			}
		}
		signoff = &models.CitizenSignoff{
			ComplaintID: complaintID,
			CitizenID:   actor.UserID,
			IsAccepted:  true,
			Rating:      sql.NullInt64{Int64: int64(*req.Rating), Valid: true},
			Feedback:    optionalString(req.Feedback),
			CreatedAt:   s.lifecycle.now(),
		}
		return s.signoffs.CreateSignoff(ctx, signoff)
	}

	transition, err := s.lifecycle.transition(ctx, complaintID, models.StatusClosed, actor, "citizen accepted resolution", accept)
	if err != nil {
		return nil, err
	}
	s.logger.Info("resolution accepted",
		zap.Int64("complaint_id", complaintID),
		zap.Int64("signoff_id", signoff.SignoffID),
		zap.Int64("rating", signoff.Rating.Int64))
	return &models.SignoffResponse{
		Signoff:    signoff,
		Transition: transition,
		Message:    "Thank you for your feedback. The complaint is now closed.",
	}, nil
}

// ListSignoffs returns every signoff of a complaint
func (s *SignoffService) ListSignoffs(ctx context.Context, complaintID int64) ([]models.CitizenSignoff, error) {
	if _, err := s.complaints.GetComplaintByID(ctx, complaintID); err != nil {
		return nil, err
	}
	return s.signoffs.ListSignoffs(ctx, complaintID)
}

// HasAcceptedSignoff reports whether the citizen accepted the resolution
func (s *SignoffService) HasAcceptedSignoff(ctx context.Context, complaintID int64) (bool, error) {
	if _, err := s.complaints.GetComplaintByID(ctx, complaintID); err != nil {
		return false, err
	}
	return s.signoffs.HasAcceptedSignoff(ctx, complaintID)
}
