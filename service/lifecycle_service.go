package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"civicflow/lifecycle"
	"civicflow/models"

	"go.uber.org/zap"
)

// DefaultDedupWindow suppresses repeated rating requests and escalation notices.
const DefaultDedupWindow = 24 * time.Hour

// LifecycleService moves complaints between statuses. Each transition loads,
// validates, writes, records history and audits in one unit of work; notifications
// and rewards go to the side-effect channel after commit.
type LifecycleService struct {
	tx          TxRunner
	complaints  ComplaintStore
	categories  CategoryStore
	validator   *lifecycle.Validator
	audit       AuditSink
	rewards     Rewarder
	effects     effectSender
	telemetry   *Telemetry
	logger      *zap.Logger
	dedupWindow time.Duration
	now         func() time.Time
}

// NewLifecycleService creates the lifecycle orchestrator
func NewLifecycleService(
	stores Stores,
	audit AuditSink,
	notifier Notifier,
	rewards Rewarder,
	effects SideEffects,
	telemetry *Telemetry,
	logger *zap.Logger,
) *LifecycleService {
	return &LifecycleService{
		tx:          stores.Tx,
		complaints:  stores.Complaints,
		categories:  stores.Categories,
		validator:   lifecycle.NewValidator(NewGuards(stores.Proofs, stores.Signoffs)),
		audit:       audit,
		rewards:     rewards,
		effects:     effectSender{effects: effects, notifier: notifier},
		telemetry:   telemetry,
		logger:      logger,
		dedupWindow: DefaultDedupWindow,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetDedupWindow changes how long a rating request suppresses the next one.
func (s *LifecycleService) SetDedupWindow(d time.Duration) {
	if d > 0 {
		s.dedupWindow = d
	}
}

// beforeTransition runs inside the unit of work, after the complaint is loaded and
// before it is validated.
type beforeTransition func(ctx context.Context, c *models.Complaint) error

// TransitionState moves a complaint to target on behalf of actor
func (s *LifecycleService) TransitionState(
	ctx context.Context,
	complaintID int64,
	target models.ComplaintStatus,
	actor models.ActorContext,
	reason string,
) (*models.TransitionResponse, error) {
	return s.transition(ctx, complaintID, target, actor, reason, nil)
}

func (s *LifecycleService) transition(
	ctx context.Context,
	complaintID int64,
	target models.ComplaintStatus,
	actor models.ActorContext,
	reason string,
	before beforeTransition,
) (*models.TransitionResponse, error) {
	if !target.Valid() {
		return nil, &lifecycle.ValidationError{Field: "target_state", Message: fmt.Sprintf("unknown status %q", target)}
	}

	var (
		resp  *models.TransitionResponse
		after models.Complaint
		from  models.ComplaintStatus
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.complaints.GetComplaintByID(ctx, complaintID)
		if err != nil {
			return err
		}
		if before != nil {
			if err := before(ctx, c); err != nil {
				return err
			}
		}
		from = c.Status
		if _, err := s.validator.ValidateAndAuthorize(ctx, c.ComplaintID, from, target, actor, c.CitizenID, c.DepartmentPtr()); err != nil {
			return err
		}

		now := s.now()
		applyTransition(c, target, now)
		if err := s.complaints.UpdateComplaint(ctx, c); err != nil {
			return err
		}
		if err := s.complaints.CreateStatusHistory(ctx, statusHistory(c.ComplaintID, from, target, actor, reason, now)); err != nil {
			return err
		}
		if err := s.audit.RecordStateChange(ctx, c, from, target, actor, reason); err != nil {
			return err
		}

		after = *c
		resp = &models.TransitionResponse{
			ComplaintID:     c.ComplaintID,
			ComplaintNumber: c.ComplaintNumber,
			PreviousStatus:  from,
			NewStatus:       target,
			ActorRole:       actor.Role,
			TransitionedAt:  now,
			Message:         transitionMessage(from, target),
		}
		return nil
	})
	if err != nil {
		s.telemetry.denial(ctx, lifecycle.Rule(err))
		s.logger.Info("transition rejected",
			zap.Int64("complaint_id", complaintID),
			zap.String("target", string(target)),
			zap.String("role", string(actor.Role)),
			zap.String("rule", lifecycle.Rule(err)),
			zap.Error(err))
		return nil, err
	}

	s.telemetry.transition(ctx, string(from), string(target), string(actor.Role))
	s.logger.Info("complaint transitioned",
		zap.Int64("complaint_id", after.ComplaintID),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
		zap.String("role", string(actor.Role)),
		zap.Int64("actor_id", actor.UserID))
	s.dispatchTransitionEffects(&after, from, target)
	return resp, nil
}

// applyTransition sets the status and the lifecycle timestamps for entering target.
func applyTransition(c *models.Complaint, target models.ComplaintStatus, now time.Time) {
	c.Status = target
	c.UpdatedTime = sql.NullTime{Time: now, Valid: true}
	switch target {
	case models.StatusInProgress:
		if !c.StartTime.Valid {
			c.StartTime = sql.NullTime{Time: now, Valid: true}
		}
	case models.StatusResolved:
		c.ResolvedTime = sql.NullTime{Time: now, Valid: true}
	case models.StatusClosed:
		c.ClosedTime = sql.NullTime{Time: now, Valid: true}
	}
}

func statusHistory(complaintID int64, from, to models.ComplaintStatus, actor models.ActorContext, reason string, at time.Time) *models.StatusHistory {
	return &models.StatusHistory{
		ComplaintID: complaintID,
		OldStatus:   sql.NullString{String: string(from), Valid: from != ""},
		NewStatus:   to,
		ActorRole:   actor.Role,
		ActorID:     actorID(actor),
		Reason:      sql.NullString{String: reason, Valid: reason != ""},
		CreatedAt:   at,
	}
}

func transitionMessage(from, to models.ComplaintStatus) string {
	switch to {
	case models.StatusInProgress:
		if from == models.StatusHold {
			return "Work on the complaint has resumed"
		}
		return "Work on the complaint has started"
	case models.StatusResolved:
		return "Complaint has been resolved and is awaiting citizen confirmation"
	case models.StatusClosed:
		return "Complaint has been closed"
	case models.StatusCancelled:
		return "Complaint has been cancelled"
	case models.StatusHold:
		return "Complaint has been put on hold"
	}
	return fmt.Sprintf("Complaint moved from %s to %s", from, to)
}

func (s *LifecycleService) dispatchTransitionEffects(c *models.Complaint, from, to models.ComplaintStatus) {
	msg := transitionMessage(from, to)
	s.effects.notify(citizenNotice(c, models.NotifyStatusChanged,
		fmt.Sprintf("Complaint %s: %s", c.ComplaintNumber, to), msg))

	switch to {
	case models.StatusResolved:
		s.effects.notify(citizenNotice(c, models.NotifyResolved,
			fmt.Sprintf("Complaint %s resolved", c.ComplaintNumber),
			"Your complaint has been marked resolved. Please confirm the fix or raise a dispute."))
		s.effects.notifyOnce(citizenNotice(c, models.NotifyRatingRequest,
			fmt.Sprintf("Rate the resolution of %s", c.ComplaintNumber),
			"How satisfied are you with the resolution? Rate it from 1 to 5."),
			fmt.Sprintf("rating_request:%d", c.ComplaintID), s.dedupWindow)
	case models.StatusInProgress:
		if !c.StaffID.Valid {
			break
		}
		subject := fmt.Sprintf("Complaint %s assigned", c.ComplaintNumber)
		body := fmt.Sprintf("Complaint %s (priority %s) is assigned to you.", c.ComplaintNumber, c.Priority)
		if from == models.StatusHold {
			subject = fmt.Sprintf("Complaint %s resumed", c.ComplaintNumber)
			body = fmt.Sprintf("Work on complaint %s (priority %s) has resumed and is assigned to you.", c.ComplaintNumber, c.Priority)
		}
		s.effects.notify(staffNotice(c, models.NotifyAssigned, subject, body))
	case models.StatusClosed:
		if s.rewards != nil && s.effects.effects != nil {
			closed := *c
			s.effects.effects.Dispatch("reward:closure", func(ctx context.Context) error {
				return s.rewards.AwardForClosure(ctx, &closed)
			})
		}
	}
}

// StartWork moves a FILED complaint to IN_PROGRESS
func (s *LifecycleService) StartWork(ctx context.Context, complaintID int64, actor models.ActorContext, reason string) (*models.TransitionResponse, error) {
	return s.TransitionState(ctx, complaintID, models.StatusInProgress, actor, reason)
}

// Resolve moves an IN_PROGRESS complaint to RESOLVED
func (s *LifecycleService) Resolve(ctx context.Context, complaintID int64, actor models.ActorContext, reason string) (*models.TransitionResponse, error) {
	return s.TransitionState(ctx, complaintID, models.StatusResolved, actor, reason)
}

// Close moves a RESOLVED complaint to CLOSED
func (s *LifecycleService) Close(ctx context.Context, complaintID int64, actor models.ActorContext, reason string) (*models.TransitionResponse, error) {
	return s.TransitionState(ctx, complaintID, models.StatusClosed, actor, reason)
}

// Cancel cancels an open complaint
func (s *LifecycleService) Cancel(ctx context.Context, complaintID int64, actor models.ActorContext, reason string) (*models.TransitionResponse, error) {
	return s.TransitionState(ctx, complaintID, models.StatusCancelled, actor, reason)
}

// Hold pauses work on an IN_PROGRESS complaint
func (s *LifecycleService) Hold(ctx context.Context, complaintID int64, actor models.ActorContext, reason string) (*models.TransitionResponse, error) {
	return s.TransitionState(ctx, complaintID, models.StatusHold, actor, reason)
}

// Resume moves a HOLD complaint back to IN_PROGRESS
func (s *LifecycleService) Resume(ctx context.Context, complaintID int64, actor models.ActorContext, reason string) (*models.TransitionResponse, error) {
	return s.TransitionState(ctx, complaintID, models.StatusInProgress, actor, reason)
}

// SystemStart starts work as the SYSTEM actor (automated intake).
func (s *LifecycleService) SystemStart(ctx context.Context, complaintID int64) (*models.TransitionResponse, error) {
	return s.StartWork(ctx, complaintID, models.SystemActor(), "started automatically")
}

// SystemClose closes as the SYSTEM actor; no citizen signoff is required.
func (s *LifecycleService) SystemClose(ctx context.Context, complaintID int64) (*models.TransitionResponse, error) {
	return s.Close(ctx, complaintID, models.SystemActor(), "closed automatically")
}

// AllowedTransitions lists what actor may request next. Guards are not evaluated.
func (s *LifecycleService) AllowedTransitions(ctx context.Context, complaintID int64, actor models.ActorContext) (*models.AllowedTransitionsResponse, error) {
	c, err := s.complaints.GetComplaintByID(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	return &models.AllowedTransitionsResponse{
		ComplaintID:   c.ComplaintID,
		CurrentStatus: c.Status,
		Role:          actor.Role,
		Allowed:       s.validator.AvailableTransitions(c.Status, actor, c.CitizenID, c.DepartmentPtr()),
	}, nil
}

// Timeline returns the status history of a complaint, oldest first
func (s *LifecycleService) Timeline(ctx context.Context, complaintID int64) (*models.StatusTimelineResponse, error) {
	c, err := s.complaints.GetComplaintByID(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	history, err := s.complaints.GetStatusHistory(ctx, complaintID)
	if err != nil {
		return nil, fmt.Errorf("failed to get status history: %w", err)
	}
	if history == nil {
		history = []models.StatusHistory{}
	}
	return &models.StatusTimelineResponse{
		ComplaintID:     c.ComplaintID,
		ComplaintNumber: c.ComplaintNumber,
		Timeline:        history,
	}, nil
}

// FileComplaint records a new FILED complaint as handed over by intake. Category,
// department and priority come from the external classifier; the SLA deadline is
// derived from the category when not supplied.
func (s *LifecycleService) FileComplaint(ctx context.Context, c *models.Complaint) error {
	now := s.now()
	c.Status = models.StatusFiled
	c.CreatedTime = now
	c.EscalationLevel = 0
	if c.Priority == "" {
		c.Priority = models.PriorityMedium
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if c.SLADaysAssigned <= 0 {
			c.SLADaysAssigned = defaultSLADays
			if c.CategoryID.Valid && s.categories != nil {
				days, ok, err := s.categories.GetCategorySLADays(ctx, c.CategoryID.Int64)
				if err != nil {
					return err
				}
				if ok {
					c.SLADaysAssigned = days
				}
			}
		}
		if !c.SLADeadline.Valid {
			c.SLADeadline = sql.NullTime{Time: now.AddDate(0, 0, c.SLADaysAssigned), Valid: true}
		}
		if err := s.complaints.CreateComplaint(ctx, c); err != nil {
			return err
		}
		actor := models.ActorContext{UserID: c.CitizenID, Role: models.RoleCitizen}
		return s.complaints.CreateStatusHistory(ctx, statusHistory(c.ComplaintID, "", models.StatusFiled, actor, "filed", now))
	})
}

// GetComplaint loads a complaint by id
func (s *LifecycleService) GetComplaint(ctx context.Context, complaintID int64) (*models.Complaint, error) {
	return s.complaints.GetComplaintByID(ctx, complaintID)
}

// AuthorizeRead loads a complaint for actor. Citizens may only read their own.
func (s *LifecycleService) AuthorizeRead(ctx context.Context, complaintID int64, actor models.ActorContext) (*models.Complaint, error) {
	c, err := s.complaints.GetComplaintByID(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleCitizen && actor.UserID != c.CitizenID {
		return nil, &lifecycle.ComplaintOwnershipError{ComplaintID: complaintID, UserID: actor.UserID}
	}
	return c, nil
}

// PublicComplaint returns the public view of a complaint, or nil when the number is unknown.
func (s *LifecycleService) PublicComplaint(ctx context.Context, number string) (*models.PublicComplaintView, error) {
	c, err := s.complaints.GetComplaintByNumber(ctx, number)
	if err != nil || c == nil {
		return nil, err
	}
	history, err := s.complaints.GetStatusHistory(ctx, c.ComplaintID)
	if err != nil {
		return nil, fmt.Errorf("failed to get status history: %w", err)
	}
	timeline := make([]models.PublicTimelineEntry, 0, len(history))
	for _, h := range history {
		timeline = append(timeline, models.PublicTimelineEntry{
			CreatedAt: h.CreatedAt,
			OldStatus: models.ComplaintStatus(h.OldStatus.String),
			NewStatus: h.NewStatus,
			ActorRole: h.ActorRole,
		})
	}
	return &models.PublicComplaintView{
		ComplaintNumber: c.ComplaintNumber,
		DepartmentID:    c.DepartmentPtr(),
		CurrentStatus:   c.Status,
		Priority:        c.Priority,
		EscalationLevel: c.EscalationLevel,
		CreatedAt:       c.CreatedTime,
		Timeline:        timeline,
	}, nil
}
