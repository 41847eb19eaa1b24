package service

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"civicflow/lifecycle"
	"civicflow/models"

	"go.uber.org/zap"
)

const (
	// defaultSLADays applies when neither the category nor the complaint carries an SLA.
	defaultSLADays = 7
	// reopenSLAFactor shortens the SLA of a complaint reopened by an approved dispute.
	reopenSLAFactor = 0.75

	ruleDisputeReviewer = "only DEPT_HEAD can approve/reject disputes"
	ruleDisputeFiler    = "only the citizen who filed the complaint can dispute its resolution"
)

// reopenSLADays is max(1, ceil(base * 0.75)).
func reopenSLADays(base int) int {
	return max(1, int(math.Ceil(float64(base)*reopenSLAFactor)))
}

// DisputeService handles citizen disputes of a resolution and their review.
type DisputeService struct {
	tx         TxRunner
	complaints ComplaintStore
	proofs     ProofStore
	signoffs   SignoffStore
	categories CategoryStore
	audit      AuditSink
	effects    effectSender
	telemetry  *Telemetry
	logger     *zap.Logger
	now        func() time.Time
}

// NewDisputeService creates a new dispute service
func NewDisputeService(
	stores Stores,
	audit AuditSink,
	notifier Notifier,
	effects SideEffects,
	telemetry *Telemetry,
	logger *zap.Logger,
) *DisputeService {
	return &DisputeService{
		tx:         stores.Tx,
		complaints: stores.Complaints,
		proofs:     stores.Proofs,
		signoffs:   stores.Signoffs,
		categories: stores.Categories,
		audit:      audit,
		effects:    effectSender{effects: effects, notifier: notifier},
		telemetry:  telemetry,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SubmitDispute records a citizen's dispute of a RESOLVED complaint. The complaint
// stays RESOLVED until a department head reviews the dispute.
func (s *DisputeService) SubmitDispute(
	ctx context.Context,
	complaintID int64,
	actor models.ActorContext,
	req *models.SubmitDisputeRequest,
) (*models.CitizenSignoff, error) {
	reason := strings.TrimSpace(req.DisputeReason)
	if reason == "" {
		return nil, &lifecycle.ValidationError{Field: "dispute_reason", Message: "is required"}
	}

	var (
		signoff   *models.CitizenSignoff
		complaint models.Complaint
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.complaints.GetComplaintByID(ctx, complaintID)
		if err != nil {
			return err
		}
		if c.Status != models.StatusResolved {
			return &lifecycle.InvalidDisputeStateError{
				ComplaintID: complaintID,
				Reason:      fmt.Sprintf("only RESOLVED complaints can be disputed, complaint is %s", c.Status),
			}
		}
		if actor.Role != models.RoleCitizen {
			return &lifecycle.ForbiddenError{Role: actor.Role, Rule: ruleDisputeFiler}
		}
		if actor.UserID != c.CitizenID {
			return &lifecycle.ComplaintOwnershipError{ComplaintID: complaintID, UserID: actor.UserID}
		}

		pending, err := s.signoffs.FindPendingDispute(ctx, complaintID)
		if err != nil {
			return err
		}
		if pending != nil {
			return &lifecycle.DuplicateDisputeError{ComplaintID: complaintID, PendingSignoffID: pending.SignoffID}
		}

		now := s.now()
		signoff = &models.CitizenSignoff{
			ComplaintID:     complaintID,
			CitizenID:       actor.UserID,
			IsAccepted:      false,
			DisputeReason:   sql.NullString{String: reason, Valid: true},
			CounterProofRef: optionalString(req.CounterProofRef),
			Feedback:        optionalString(req.Feedback),
			DisputeOutcome:  models.DisputePending,
			CreatedAt:       now,
		}
		if err := s.signoffs.CreateSignoff(ctx, signoff); err != nil {
			return err
		}

		// Bumping the version makes two racing disputes conflict on the complaint row.
		c.UpdatedTime = sql.NullTime{Time: now, Valid: true}
		if err := s.complaints.UpdateComplaint(ctx, c); err != nil {
			return err
		}
		if err := s.audit.RecordGenericAction(ctx, "signoff", signoff.SignoffID, "dispute_filed", actor,
			nil, map[string]any{"complaint_id": complaintID, "dispute_reason": reason}, reason); err != nil {
			return err
		}
		complaint = *c
		return nil
	})
	if err != nil {
		s.telemetry.denial(ctx, lifecycle.Rule(err))
		return nil, err
	}

	s.telemetry.dispute(ctx, "filed")
	s.logger.Info("dispute filed",
		zap.Int64("complaint_id", complaintID),
		zap.Int64("signoff_id", signoff.SignoffID),
		zap.Int64("citizen_id", actor.UserID))
	s.effects.notify(staffNotice(&complaint, models.NotifyDisputeFiled,
		fmt.Sprintf("Resolution of %s disputed", complaint.ComplaintNumber),
		fmt.Sprintf("The citizen disputed the resolution: %s", reason)))
	return signoff, nil
}

// loadForReview checks the preconditions shared by approve and reject.
func (s *DisputeService) loadForReview(
	ctx context.Context,
	complaintID, signoffID int64,
	actor models.ActorContext,
) (*models.Complaint, *models.CitizenSignoff, error) {
	so, err := s.signoffs.GetSignoff(ctx, signoffID)
	if err != nil {
		return nil, nil, err
	}
	switch {
	case so.ComplaintID != complaintID:
		return nil, nil, &lifecycle.InvalidDisputeStateError{ComplaintID: complaintID, SignoffID: signoffID,
			Reason: "signoff belongs to another complaint"}
	case so.IsAccepted:
		return nil, nil, &lifecycle.InvalidDisputeStateError{ComplaintID: complaintID, SignoffID: signoffID,
			Reason: "signoff is an acceptance, not a dispute"}
	case so.DisputeOutcome != models.DisputePending:
		return nil, nil, &lifecycle.InvalidDisputeStateError{ComplaintID: complaintID, SignoffID: signoffID,
			Reason: fmt.Sprintf("dispute was already %s", strings.ToLower(string(so.DisputeOutcome)))}
	}

	c, err := s.complaints.GetComplaintByID(ctx, complaintID)
	if err != nil {
		return nil, nil, err
	}
	if c.Status != models.StatusResolved {
		return nil, nil, &lifecycle.InvalidDisputeStateError{ComplaintID: complaintID, SignoffID: signoffID,
			Reason: fmt.Sprintf("complaint is %s, disputes are reviewed only while RESOLVED", c.Status)}
	}
	if actor.Role != models.RoleDeptHead {
		return nil, nil, &lifecycle.ForbiddenError{Role: actor.Role, Rule: ruleDisputeReviewer}
	}
	if !lifecycle.SameDepartment(actor.DepartmentID, c.DepartmentPtr()) {
		return nil, nil, &lifecycle.DepartmentMismatchError{
			ComplaintID:         complaintID,
			ActorDepartment:     actor.DepartmentID,
			ComplaintDepartment: c.DepartmentPtr(),
		}
	}
	return c, so, nil
}

// baseSLADays is the category SLA, else the complaint's assigned SLA, else 7.
func (s *DisputeService) baseSLADays(ctx context.Context, c *models.Complaint) (int, error) {
	if c.CategoryID.Valid && s.categories != nil {
		days, ok, err := s.categories.GetCategorySLADays(ctx, c.CategoryID.Int64)
		if err != nil {
			return 0, fmt.Errorf("failed to look up category SLA: %w", err)
		}
		if ok {
			return days, nil
		}
	}
	if c.SLADaysAssigned > 0 {
		return c.SLADaysAssigned, nil
	}
	return defaultSLADays, nil
}

// ApproveDispute upholds a dispute: the complaint reopens IN_PROGRESS one priority
// level higher with a shortened SLA, escalation reset and every proof discarded.
func (s *DisputeService) ApproveDispute(
	ctx context.Context,
	complaintID, signoffID int64,
	actor models.ActorContext,
) (*models.DisputeDecisionResponse, error) {
	var (
		resp      *models.DisputeDecisionResponse
		complaint models.Complaint
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, so, err := s.loadForReview(ctx, complaintID, signoffID, actor)
		if err != nil {
			return err
		}

		base, err := s.baseSLADays(ctx, c)
		if err != nil {
			return err
		}
		now := s.now()
		slaDays := reopenSLADays(base)
		deadline := now.AddDate(0, 0, slaDays)
		prev := *c

		so.DisputeOutcome = models.DisputeApproved
		so.DisputeReviewedBy = sql.NullInt64{Int64: actor.UserID, Valid: true}
		so.DisputeReviewedAt = sql.NullTime{Time: now, Valid: true}
		if err := s.signoffs.RecordDisputeDecision(ctx, so); err != nil {
			return err
		}

		removed, err := s.proofs.DeleteProofsByComplaint(ctx, complaintID)
		if err != nil {
			return err
		}

		c.Status = models.StatusInProgress
		c.Priority = prev.Priority.EscalateOnce()
		c.SLADaysAssigned = slaDays
		c.SLADeadline = sql.NullTime{Time: deadline, Valid: true}
		c.EscalationLevel = 0
		c.ResolvedTime = sql.NullTime{}
		c.UpdatedTime = sql.NullTime{Time: now, Valid: true}
		if err := s.complaints.UpdateComplaint(ctx, c); err != nil {
			return err
		}

		const reason = "dispute approved"
		if err := s.complaints.CreateStatusHistory(ctx, statusHistory(complaintID, prev.Status, c.Status, actor, reason, now)); err != nil {
			return err
		}
		if err := s.audit.RecordStateChange(ctx, c, prev.Status, c.Status, actor, reason); err != nil {
			return err
		}
		if err := s.audit.RecordGenericAction(ctx, "complaint", complaintID, "dispute_approved", actor,
			map[string]any{
				"priority":          prev.Priority,
				"sla_days_assigned": prev.SLADaysAssigned,
				"sla_deadline":      nullTimeValue(prev.SLADeadline),
				"escalation_level":  prev.EscalationLevel,
			},
			map[string]any{
				"priority":          c.Priority,
				"sla_days_assigned": c.SLADaysAssigned,
				"sla_deadline":      deadline,
				"escalation_level":  c.EscalationLevel,
				"signoff_id":        signoffID,
				"proofs_removed":    removed,
			}, reason); err != nil {
			return err
		}

		complaint = *c
		resp = &models.DisputeDecisionResponse{
			ComplaintID:      complaintID,
			SignoffID:        signoffID,
			Outcome:          models.DisputeApproved,
			Status:           c.Status,
			PreviousPriority: prev.Priority,
			Priority:         c.Priority,
			SLADaysAssigned:  slaDays,
			SLADeadline:      &deadline,
			EscalationLevel:  c.EscalationLevel,
			ProofsRemoved:    removed,
			Message:          fmt.Sprintf("Dispute approved; complaint reopened with priority %s and a %d day SLA", c.Priority, slaDays),
		}
		return nil
	})
	if err != nil {
		s.telemetry.denial(ctx, lifecycle.Rule(err))
		return nil, err
	}

	s.telemetry.dispute(ctx, "approved")
	s.logger.Info("dispute approved",
		zap.Int64("complaint_id", complaintID),
		zap.Int64("signoff_id", signoffID),
		zap.String("priority", string(resp.Priority)),
		zap.Int("sla_days", resp.SLADaysAssigned),
		zap.Int("proofs_removed", resp.ProofsRemoved))
	s.effects.notify(citizenNotice(&complaint, models.NotifyDisputeApproved,
		fmt.Sprintf("Dispute on %s approved", complaint.ComplaintNumber),
		"Your dispute was approved and the complaint has been reopened."))
	s.effects.notify(staffNotice(&complaint, models.NotifyReopened,
		fmt.Sprintf("Complaint %s reopened", complaint.ComplaintNumber),
		fmt.Sprintf("Complaint %s was reopened after a dispute. New priority %s, due within %d days. Submit new resolution proof.",
			complaint.ComplaintNumber, complaint.Priority, resp.SLADaysAssigned)))
	return resp, nil
}

// RejectDispute dismisses a dispute. The complaint stays RESOLVED and unchanged.
func (s *DisputeService) RejectDispute(
	ctx context.Context,
	complaintID, signoffID int64,
	rejectionReason string,
	actor models.ActorContext,
) (*models.DisputeDecisionResponse, error) {
	rejectionReason = strings.TrimSpace(rejectionReason)
	if rejectionReason == "" {
		return nil, &lifecycle.ValidationError{Field: "rejection_reason", Message: "is required"}
	}

	var (
		resp      *models.DisputeDecisionResponse
		complaint models.Complaint
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, so, err := s.loadForReview(ctx, complaintID, signoffID, actor)
		if err != nil {
			return err
		}
		now := s.now()
		so.DisputeOutcome = models.DisputeRejected
		so.DisputeReviewedBy = sql.NullInt64{Int64: actor.UserID, Valid: true}
		so.DisputeReviewedAt = sql.NullTime{Time: now, Valid: true}
		so.RejectionReason = sql.NullString{String: rejectionReason, Valid: true}
		if err := s.signoffs.RecordDisputeDecision(ctx, so); err != nil {
			return err
		}
		if err := s.audit.RecordGenericAction(ctx, "signoff", signoffID, "dispute_rejected", actor,
			map[string]any{"dispute_outcome": models.DisputePending},
			map[string]any{"dispute_outcome": models.DisputeRejected, "complaint_id": complaintID},
			rejectionReason); err != nil {
			return err
		}

		complaint = *c
		resp = &models.DisputeDecisionResponse{
			ComplaintID:      complaintID,
			SignoffID:        signoffID,
			Outcome:          models.DisputeRejected,
			Status:           c.Status,
			PreviousPriority: c.Priority,
			Priority:         c.Priority,
			SLADaysAssigned:  c.SLADaysAssigned,
			SLADeadline:      nullTimePtr(c.SLADeadline),
			EscalationLevel:  c.EscalationLevel,
			Message:          "Dispute rejected; complaint remains resolved",
		}
		return nil
	})
	if err != nil {
		s.telemetry.denial(ctx, lifecycle.Rule(err))
		return nil, err
	}

	s.telemetry.dispute(ctx, "rejected")
	s.logger.Info("dispute rejected",
		zap.Int64("complaint_id", complaintID),
		zap.Int64("signoff_id", signoffID))
	s.effects.notify(citizenNotice(&complaint, models.NotifyDisputeRejected,
		fmt.Sprintf("Dispute on %s rejected", complaint.ComplaintNumber),
		fmt.Sprintf("Your dispute was reviewed and rejected: %s", rejectionReason)))
	return resp, nil
}

// PendingDisputes lists disputes awaiting review. Department heads only see their
// own department; higher authorities may filter by departmentID or see all.
func (s *DisputeService) PendingDisputes(
	ctx context.Context,
	actor models.ActorContext,
	departmentID *int64,
) ([]models.PendingDispute, error) {
	switch actor.Role {
	case models.RoleDeptHead:
		if actor.DepartmentID == nil {
			return nil, &lifecycle.DepartmentMismatchError{ActorDepartment: nil, ComplaintDepartment: departmentID}
		}
		if departmentID != nil && *departmentID != *actor.DepartmentID {
			return nil, &lifecycle.DepartmentMismatchError{ActorDepartment: actor.DepartmentID, ComplaintDepartment: departmentID}
		}
		departmentID = actor.DepartmentID
	case models.RoleAdmin, models.RoleMunicipalCommissioner, models.RoleSuperAdmin, models.RoleSystem:
	default:
		return nil, &lifecycle.ForbiddenError{Role: actor.Role, Rule: "only reviewers can list pending disputes"}
	}
	disputes, err := s.signoffs.ListPendingDisputes(ctx, departmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending disputes: %w", err)
	}
	return disputes, nil
}

func optionalString(p *string) sql.NullString {
	if p == nil || strings.TrimSpace(*p) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: strings.TrimSpace(*p), Valid: true}
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTimeValue(t sql.NullTime) any {
	if !t.Valid {
		return nil
	}
	return t.Time
}
