package service

import (
	"context"
	"time"

	"civicflow/models"
)

// TxRunner runs fn as one unit of work. Stores called with the ctx handed to fn
// take part in it; a nested call joins the outer unit.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ComplaintStore persists complaints, their status history and escalation level.
type ComplaintStore interface {
	CreateComplaint(ctx context.Context, c *models.Complaint) error
	GetComplaintByID(ctx context.Context, complaintID int64) (*models.Complaint, error)
	// GetComplaintByNumber returns nil, nil when no complaint carries the number.
	GetComplaintByNumber(ctx context.Context, number string) (*models.Complaint, error)
	UpdateComplaint(ctx context.Context, c *models.Complaint) error
	CreateStatusHistory(ctx context.Context, h *models.StatusHistory) error
	GetStatusHistory(ctx context.Context, complaintID int64) ([]models.StatusHistory, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.EscalationCandidate, error)
	AdvanceEscalationLevel(ctx context.Context, complaintID int64, level int, now time.Time) (bool, error)
	EscalationStats(ctx context.Context, now time.Time) (*models.EscalationStats, error)
}

// ProofStore persists resolution proofs.
type ProofStore interface {
	CreateProof(ctx context.Context, p *models.ResolutionProof) error
	GetProof(ctx context.Context, proofID int64) (*models.ResolutionProof, error)
	ListProofs(ctx context.Context, complaintID int64) ([]models.ResolutionProof, error)
	CountProofs(ctx context.Context, complaintID int64) (int, error)
	MarkVerified(ctx context.Context, proofID, verifierID int64) error
	DeleteProofsByComplaint(ctx context.Context, complaintID int64) (int, error)
}

// SignoffStore persists citizen acceptances and disputes.
type SignoffStore interface {
	CreateSignoff(ctx context.Context, s *models.CitizenSignoff) error
	GetSignoff(ctx context.Context, signoffID int64) (*models.CitizenSignoff, error)
	ListSignoffs(ctx context.Context, complaintID int64) ([]models.CitizenSignoff, error)
	FindPendingDispute(ctx context.Context, complaintID int64) (*models.CitizenSignoff, error)
	HasAcceptedSignoff(ctx context.Context, complaintID int64) (bool, error)
	RecordDisputeDecision(ctx context.Context, s *models.CitizenSignoff) error
	ListPendingDisputes(ctx context.Context, departmentID *int64) ([]models.PendingDispute, error)
}

// EscalationStore appends escalation events.
type EscalationStore interface {
	CreateEscalationEvent(ctx context.Context, e *models.EscalationEvent) error
	ListEscalationEvents(ctx context.Context, complaintID int64) ([]models.EscalationEvent, error)
	CountEscalationEventsSince(ctx context.Context, since time.Time) (int, error)
}

// AuditStore appends audit entries.
type AuditStore interface {
	CreateAuditLog(ctx context.Context, a *models.AuditLog) error
}

// CategoryStore is the category → SLA days lookup.
type CategoryStore interface {
	GetCategorySLADays(ctx context.Context, categoryID int64) (int, bool, error)
}

// NotificationStore is the notification outbox.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	HasRecentByDedupKey(ctx context.Context, key string, since time.Time) (bool, error)
	GetPendingNotifications(ctx context.Context, now time.Time, limit int) ([]models.Notification, error)
	UpdateNotificationStatus(ctx context.Context, notificationID int64, status models.NotificationStatus, errorMessage *string, at time.Time) error
	ScheduleRetry(ctx context.Context, notificationID int64, nextRetryAt time.Time, errorMessage string) error
}

// RewardStore is the citizen points ledger.
type RewardStore interface {
	AwardPoints(ctx context.Context, e *models.RewardEntry) (bool, error)
}

// Stores bundles every store the services need. Both repository (MySQL) and
// memstore provide all of them.
type Stores struct {
	Tx            TxRunner
	Complaints    ComplaintStore
	Proofs        ProofStore
	Signoffs      SignoffStore
	Escalations   EscalationStore
	Audit         AuditStore
	Categories    CategoryStore
	Notifications NotificationStore
	Rewards       RewardStore
}

// AuditSink records the audit trail. Calls are synchronous and must succeed;
// an error fails the surrounding unit of work.
type AuditSink interface {
	RecordStateChange(ctx context.Context, c *models.Complaint, from, to models.ComplaintStatus, actor models.ActorContext, reason string) error
	RecordGenericAction(ctx context.Context, entityType string, entityID int64, action string, actor models.ActorContext, oldValues, newValues any, reason string) error
}

// Notifier delivers notifications. Failures are never propagated to the transition
// that triggered them.
type Notifier interface {
	Send(ctx context.Context, req *models.NotificationRequest) error
	// SendWithDeduplication skips the send when key was used within window and
	// reports whether a notification was queued.
	SendWithDeduplication(ctx context.Context, req *models.NotificationRequest, key string, window time.Duration) (bool, error)
}

// SideEffects runs work outside the caller's unit of work. Implementations must not
// block the caller and must not report job failures back to it.
type SideEffects interface {
	Dispatch(name string, job func(ctx context.Context) error)
}

// SideEffectsFunc adapts a function to SideEffects.
type SideEffectsFunc func(name string, job func(ctx context.Context) error)

// Dispatch calls f.
func (f SideEffectsFunc) Dispatch(name string, job func(ctx context.Context) error) {
	f(name, job)
}
