package models

import (
	"database/sql"
	"time"
)

// ComplaintStatus represents the possible statuses of a complaint
type ComplaintStatus string

const (
	StatusFiled      ComplaintStatus = "FILED"
	StatusInProgress ComplaintStatus = "IN_PROGRESS"
	StatusResolved   ComplaintStatus = "RESOLVED"
	StatusClosed     ComplaintStatus = "CLOSED"
	StatusCancelled  ComplaintStatus = "CANCELLED"
	StatusHold       ComplaintStatus = "HOLD"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []ComplaintStatus{
	StatusFiled,
	StatusInProgress,
	StatusHold,
	StatusResolved,
	StatusClosed,
	StatusCancelled,
}

// ActiveStatuses are the statuses where work is still owed, i.e. the ones the
// escalation sweep scans. RESOLVED waits on the citizen, not on staff.
var ActiveStatuses = []ComplaintStatus{
	StatusFiled,
	StatusInProgress,
	StatusHold,
}

// Valid reports whether s is a known status.
func (s ComplaintStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Priority represents complaint priority levels. Order matters: LOW < MEDIUM < HIGH < CRITICAL.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

var priorityOrder = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// Rank returns the ordinal of p (0 for LOW); unknown priorities rank as MEDIUM.
func (p Priority) Rank() int {
	for i, known := range priorityOrder {
		if p == known {
			return i
		}
	}
	return 1
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	for _, known := range priorityOrder {
		if p == known {
			return true
		}
	}
	return false
}

// EscalateOnce returns the next priority up, stopping at CRITICAL.
func (p Priority) EscalateOnce() Priority {
	next := p.Rank() + 1
	if next >= len(priorityOrder) {
		return PriorityCritical
	}
	return priorityOrder[next]
}

// Role is the authenticated role of whoever performs an action.
type Role string

const (
	RoleCitizen               Role = "CITIZEN"
	RoleStaff                 Role = "STAFF"
	RoleDeptHead              Role = "DEPT_HEAD"
	RoleAdmin                 Role = "ADMIN"
	RoleMunicipalCommissioner Role = "MUNICIPAL_COMMISSIONER"
	RoleSuperAdmin            Role = "SUPER_ADMIN"
	RoleSystem                Role = "SYSTEM"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCitizen, RoleStaff, RoleDeptHead, RoleAdmin,
		RoleMunicipalCommissioner, RoleSuperAdmin, RoleSystem:
		return true
	}
	return false
}

// ActorContext identifies the caller of a lifecycle operation. Supplied by the
// authentication layer; never persisted.
type ActorContext struct {
	UserID       int64  `json:"user_id"`
	Role         Role   `json:"role"`
	DepartmentID *int64 `json:"department_id,omitempty"`
}

// SystemActor is the synthetic actor used by automated start/close paths and the sweep.
func SystemActor() ActorContext {
	return ActorContext{UserID: 0, Role: RoleSystem}
}

// Complaint represents a complaint entity
type Complaint struct {
	ComplaintID     int64           `db:"complaint_id" json:"complaint_id"`
	ComplaintNumber string          `db:"complaint_number" json:"complaint_number"`
	CitizenID       int64           `db:"citizen_id" json:"citizen_id"`
	Title           string          `db:"title" json:"title"`
	Description     string          `db:"description" json:"description"`
	CategoryID      sql.NullInt64   `db:"category_id" json:"category_id"`
	DepartmentID    sql.NullInt64   `db:"department_id" json:"department_id"`
	StaffID         sql.NullInt64   `db:"staff_id" json:"staff_id"`
	Status          ComplaintStatus `db:"status" json:"status"`
	Priority        Priority        `db:"priority" json:"priority"`
	SLADaysAssigned int             `db:"sla_days_assigned" json:"sla_days_assigned"`
	SLADeadline     sql.NullTime    `db:"sla_deadline" json:"sla_deadline"`
	EscalationLevel int             `db:"escalation_level" json:"escalation_level"`
	CreatedTime     time.Time       `db:"created_time" json:"created_time"`
	StartTime       sql.NullTime    `db:"start_time" json:"start_time"`
	ResolvedTime    sql.NullTime    `db:"resolved_time" json:"resolved_time"`
	ClosedTime      sql.NullTime    `db:"closed_time" json:"closed_time"`
	UpdatedTime     sql.NullTime    `db:"updated_time" json:"updated_time"`
	Version         int64           `db:"version" json:"version"`
}

// DepartmentPtr returns the assigned department or nil.
func (c *Complaint) DepartmentPtr() *int64 {
	if !c.DepartmentID.Valid {
		return nil
	}
	id := c.DepartmentID.Int64
	return &id
}

// ResolutionProof is staff evidence that work on a complaint was done.
type ResolutionProof struct {
	ProofID     int64         `db:"proof_id" json:"proof_id"`
	ComplaintID int64         `db:"complaint_id" json:"complaint_id"`
	StaffID     int64         `db:"staff_id" json:"staff_id"`
	EvidenceRef string        `db:"evidence_ref" json:"evidence_ref"`
	Fingerprint string        `db:"fingerprint" json:"fingerprint"`
	IsVerified  bool          `db:"is_verified" json:"is_verified"`
	VerifiedBy  sql.NullInt64 `db:"verified_by" json:"verified_by"`
	CapturedAt  time.Time     `db:"captured_at" json:"captured_at"`
}

// DisputeOutcome is the review state of a dispute signoff.
type DisputeOutcome string

const (
	DisputeNotApplicable DisputeOutcome = ""
	DisputePending       DisputeOutcome = "PENDING"
	DisputeApproved      DisputeOutcome = "APPROVED"
	DisputeRejected      DisputeOutcome = "REJECTED"
)

// NullBool maps the outcome onto the nullable dispute_approved column
// (NULL = pending, true = approved, false = rejected).
func (o DisputeOutcome) NullBool() sql.NullBool {
	switch o {
	case DisputeApproved:
		return sql.NullBool{Bool: true, Valid: true}
	case DisputeRejected:
		return sql.NullBool{Bool: false, Valid: true}
	}
	return sql.NullBool{}
}

// DisputeOutcomeFromColumns decodes the stored outcome of a signoff row.
func DisputeOutcomeFromColumns(isAccepted bool, approved sql.NullBool) DisputeOutcome {
	if isAccepted {
		return DisputeNotApplicable
	}
	if !approved.Valid {
		return DisputePending
	}
	if approved.Bool {
		return DisputeApproved
	}
	return DisputeRejected
}

// CitizenSignoff is a citizen's verdict on a RESOLVED complaint: acceptance or dispute.
type CitizenSignoff struct {
	SignoffID         int64          `db:"signoff_id" json:"signoff_id"`
	ComplaintID       int64          `db:"complaint_id" json:"complaint_id"`
	CitizenID         int64          `db:"citizen_id" json:"citizen_id"`
	IsAccepted        bool           `db:"is_accepted" json:"is_accepted"`
	Rating            sql.NullInt64  `db:"rating" json:"rating"`
	Feedback          sql.NullString `db:"feedback" json:"feedback"`
	DisputeReason     sql.NullString `db:"dispute_reason" json:"dispute_reason"`
	CounterProofRef   sql.NullString `db:"counter_proof_ref" json:"counter_proof_ref"`
	DisputeOutcome    DisputeOutcome `db:"-" json:"dispute_outcome,omitempty"`
	DisputeReviewedBy sql.NullInt64  `db:"dispute_reviewed_by" json:"dispute_reviewed_by"`
	DisputeReviewedAt sql.NullTime   `db:"dispute_reviewed_at" json:"dispute_reviewed_at"`
	RejectionReason   sql.NullString `db:"rejection_reason" json:"rejection_reason"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
}

// IsPendingDispute reports whether the row is a dispute awaiting review.
func (s *CitizenSignoff) IsPendingDispute() bool {
	return !s.IsAccepted && s.DisputeOutcome == DisputePending
}

// StatusHistory represents a status change record (immutable)
type StatusHistory struct {
	HistoryID   int64           `db:"history_id" json:"history_id"`
	ComplaintID int64           `db:"complaint_id" json:"complaint_id"`
	OldStatus   sql.NullString  `db:"old_status" json:"old_status"`
	NewStatus   ComplaintStatus `db:"new_status" json:"new_status"`
	ActorRole   Role            `db:"actor_role" json:"actor_role"`
	ActorID     sql.NullInt64   `db:"actor_id" json:"actor_id"` // NULL for system
	Reason      sql.NullString  `db:"reason" json:"reason"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// AuditLog represents an audit trail entry (immutable)
type AuditLog struct {
	AuditID    int64          `db:"audit_id" json:"audit_id"`
	EntityType string         `db:"entity_type" json:"entity_type"`
	EntityID   int64          `db:"entity_id" json:"entity_id"`
	Action     string         `db:"action" json:"action"`
	ActorRole  Role           `db:"actor_role" json:"actor_role"`
	ActorID    sql.NullInt64  `db:"actor_id" json:"actor_id"`
	OldValues  sql.NullString `db:"old_values" json:"old_values"` // JSON
	NewValues  sql.NullString `db:"new_values" json:"new_values"` // JSON
	Reason     sql.NullString `db:"reason" json:"reason"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// RewardEntry is one points award in the citizen reward ledger.
type RewardEntry struct {
	RewardID    int64     `db:"reward_id" json:"reward_id"`
	CitizenID   int64     `db:"citizen_id" json:"citizen_id"`
	ComplaintID int64     `db:"complaint_id" json:"complaint_id"`
	Points      int       `db:"points" json:"points"`
	Reason      string    `db:"reason" json:"reason"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Category carries the configured default SLA for complaints of that kind.
type Category struct {
	CategoryID int64  `db:"category_id" json:"category_id"`
	Name       string `db:"name" json:"name"`
	SLADays    int    `db:"sla_days" json:"sla_days"`
}
