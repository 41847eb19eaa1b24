package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"civicflow/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EscalationConfig bounds a sweep run.
type EscalationConfig struct {
	BatchSize    int
	SweepTimeout time.Duration
	Workers      int
	DedupWindow  time.Duration
}

// DefaultEscalationConfig returns default sweep bounds
func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{
		BatchSize:    500,
		SweepTimeout: 2 * time.Minute,
		Workers:      4,
		DedupWindow:  DefaultDedupWindow,
	}
}

// EscalationService is the SLA-breach sweep. It raises the escalation level of
// overdue active complaints to what the policy requires and notifies the new owner.
// Writes are conditional, so overlapping sweeps and racing transitions are harmless.
type EscalationService struct {
	tx          TxRunner
	complaints  ComplaintStore
	escalations EscalationStore
	policy      *EscalationPolicy
	audit       AuditSink
	effects     effectSender
	telemetry   *Telemetry
	logger      *zap.Logger
	config      EscalationConfig
	now         func() time.Time
}

// NewEscalationService creates a new escalation service
func NewEscalationService(
	stores Stores,
	policy *EscalationPolicy,
	audit AuditSink,
	notifier Notifier,
	effects SideEffects,
	telemetry *Telemetry,
	logger *zap.Logger,
	config EscalationConfig,
) *EscalationService {
	if policy == nil {
		policy = DefaultEscalationPolicy()
	}
	defaults := DefaultEscalationConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.SweepTimeout <= 0 {
		config.SweepTimeout = defaults.SweepTimeout
	}
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.DedupWindow <= 0 {
		config.DedupWindow = defaults.DedupWindow
	}
	return &EscalationService{
		tx:          stores.Tx,
		complaints:  stores.Complaints,
		escalations: stores.Escalations,
		policy:      policy,
		audit:       audit,
		effects:     effectSender{effects: effects, notifier: notifier},
		telemetry:   telemetry,
		logger:      logger,
		config:      config,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Policy returns the active escalation policy
func (s *EscalationService) Policy() *EscalationPolicy {
	return s.policy
}

// daysOverdue is the number of whole days elapsed since deadline.
func daysOverdue(now, deadline time.Time) int {
	if !now.After(deadline) {
		return 0
	}
	return int(now.Sub(deadline) / (24 * time.Hour))
}

// RunSweep escalates every overdue complaint whose level lags the policy. At most
// BatchSize complaints are examined and the run stops at SweepTimeout; anything left
// over is picked up by the next run.
func (s *EscalationService) RunSweep(ctx context.Context) (*models.SweepReport, error) {
	started := s.now()
	ctx, cancel := context.WithTimeout(ctx, s.config.SweepTimeout)
	defer cancel()

	candidates, err := s.complaints.ListOverdue(ctx, started, s.config.BatchSize+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue complaints: %w", err)
	}
	report := &models.SweepReport{StartedAt: started}
	if len(candidates) > s.config.BatchSize {
		candidates = candidates[:s.config.BatchSize]
		report.Truncated = true
	}

	results := make([]models.EscalationResult, len(candidates))
	failed := make([]bool, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)
	for i, cand := range candidates {
		i, cand := i, cand
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = models.EscalationResult{ComplaintID: cand.ComplaintID, Reason: "sweep stopped: " + err.Error(), ProcessedAt: s.now()}
				failed[i] = true
				return nil
			}
			res, err := s.escalate(gctx, cand, started)
			if err != nil {
				s.logger.Warn("escalation failed",
					zap.Int64("complaint_id", cand.ComplaintID), zap.Error(err))
				results[i] = models.EscalationResult{ComplaintID: cand.ComplaintID, Reason: err.Error(), ProcessedAt: s.now()}
				failed[i] = true
				return nil
			}
			results[i] = *res
			return nil
		})
	}
	_ = g.Wait()

	for i, res := range results {
		switch {
		case failed[i]:
			report.Failed++
		case res.Escalated:
			report.Escalated++
		default:
			report.Skipped++
		}
	}
	report.Scanned = len(candidates)
	report.Results = results
	report.FinishedAt = s.now()
	s.telemetry.sweepDuration(ctx, float64(report.FinishedAt.Sub(started).Milliseconds()))
	s.logger.Info("escalation sweep completed",
		zap.Int("scanned", report.Scanned),
		zap.Int("escalated", report.Escalated),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Bool("truncated", report.Truncated),
		zap.Duration("duration", report.FinishedAt.Sub(started)))
	return report, nil
}

// TriggerSweep runs a sweep synchronously and returns how many complaints were escalated.
func (s *EscalationService) TriggerSweep(ctx context.Context) (int, error) {
	report, err := s.RunSweep(ctx)
	if err != nil {
		return 0, err
	}
	return report.Escalated, nil
}

func (s *EscalationService) escalate(ctx context.Context, cand models.EscalationCandidate, now time.Time) (*models.EscalationResult, error) {
	days := daysOverdue(now, cand.SLADeadline)
	step, ok := s.policy.StepFor(days)
	result := &models.EscalationResult{
		ComplaintID:   cand.ComplaintID,
		PreviousLevel: cand.EscalationLevel,
		NewLevel:      cand.EscalationLevel,
		DaysOverdue:   days,
		ProcessedAt:   now,
	}
	if !ok || step.Level <= cand.EscalationLevel {
		result.Reason = fmt.Sprintf("already at level %d", cand.EscalationLevel)
		return result, nil
	}

	var complaint models.Complaint
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.complaints.GetComplaintByID(ctx, cand.ComplaintID)
		if err != nil {
			return err
		}
		result.PreviousLevel = c.EscalationLevel
		result.NewLevel = c.EscalationLevel
		if !slices.Contains(models.ActiveStatuses, c.Status) || c.EscalationLevel >= step.Level {
			result.Reason = fmt.Sprintf("no longer eligible (status %s, level %d)", c.Status, c.EscalationLevel)
			return nil
		}

		advanced, err := s.complaints.AdvanceEscalationLevel(ctx, c.ComplaintID, step.Level, now)
		if err != nil {
			return err
		}
		if !advanced {
			result.Reason = "changed concurrently"
			return nil
		}

		reason := fmt.Sprintf("SLA breached by %d day(s), escalated to %s", days, step.Role)
		event := &models.EscalationEvent{
			ComplaintID:     c.ComplaintID,
			EscalationLevel: step.Level,
			PreviousLevel:   c.EscalationLevel,
			EscalatedAt:     now,
			EscalatedToRole: step.Role,
			Reason:          reason,
			DaysOverdue:     days,
		}
		if err := s.escalations.CreateEscalationEvent(ctx, event); err != nil {
			return err
		}
		if err := s.audit.RecordGenericAction(ctx, "complaint", c.ComplaintID, "escalated", models.SystemActor(),
			map[string]any{"escalation_level": c.EscalationLevel},
			map[string]any{"escalation_level": step.Level, "escalated_to_role": step.Role, "days_overdue": days},
			reason); err != nil {
			return err
		}

		c.EscalationLevel = step.Level
		complaint = *c
		result.Escalated = true
		result.NewLevel = step.Level
		result.TargetRole = step.Role
		result.Reason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !result.Escalated {
		return result, nil
	}

	s.telemetry.escalation(ctx, step.Level)
	s.logger.Info("complaint escalated",
		zap.Int64("complaint_id", complaint.ComplaintID),
		zap.Int("previous_level", result.PreviousLevel),
		zap.Int("level", step.Level),
		zap.String("role", string(step.Role)),
		zap.Int("days_overdue", days))
	s.effects.notifyOnce(&models.NotificationRequest{
		ComplaintID:   complaint.ComplaintID,
		Kind:          models.NotifyEscalated,
		RecipientRole: step.Role,
		Subject:       fmt.Sprintf("Complaint %s escalated to level %d", complaint.ComplaintNumber, step.Level),
		Body: fmt.Sprintf("Complaint %s (priority %s) is %d day(s) past its SLA deadline and now requires %s attention.",
			complaint.ComplaintNumber, complaint.Priority, days, step.Role),
	}, fmt.Sprintf("escalation:%d:L%d", complaint.ComplaintID, step.Level), s.config.DedupWindow)
	return result, nil
}

// Overdue lists overdue active complaints with the level the policy requires
func (s *EscalationService) Overdue(ctx context.Context, limit int) ([]models.OverdueComplaint, error) {
	if limit <= 0 || limit > s.config.BatchSize {
		limit = s.config.BatchSize
	}
	now := s.now()
	candidates, err := s.complaints.ListOverdue(ctx, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue complaints: %w", err)
	}
	out := make([]models.OverdueComplaint, 0, len(candidates))
	for _, c := range candidates {
		days := daysOverdue(now, c.SLADeadline)
		out = append(out, models.OverdueComplaint{
			ComplaintID:     c.ComplaintID,
			ComplaintNumber: c.ComplaintNumber,
			Status:          c.Status,
			Priority:        c.Priority,
			DepartmentID:    c.DepartmentID,
			SLADeadline:     c.SLADeadline,
			DaysOverdue:     days,
			EscalationLevel: c.EscalationLevel,
			RequiredLevel:   s.policy.LevelFor(days),
		})
	}
	return out, nil
}

// Stats aggregates escalation state across active complaints
func (s *EscalationService) Stats(ctx context.Context) (*models.EscalationStats, error) {
	now := s.now()
	stats, err := s.complaints.EscalationStats(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get escalation stats: %w", err)
	}
	events, err := s.escalations.CountEscalationEventsSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to count escalation events: %w", err)
	}
	stats.EventsLast24h = events
	return stats, nil
}

// History returns the escalation events of a complaint
func (s *EscalationService) History(ctx context.Context, complaintID int64) ([]models.EscalationEvent, error) {
	if _, err := s.complaints.GetComplaintByID(ctx, complaintID); err != nil {
		return nil, err
	}
	return s.escalations.ListEscalationEvents(ctx, complaintID)
}
