package models

import "time"

// TransitionRequest is the body of PUT /complaints/{id}/state and the semantic shortcuts.
type TransitionRequest struct {
	TargetState ComplaintStatus `json:"target_state"`
	Reason      *string         `json:"reason,omitempty"`
}

// TransitionResponse describes a committed status change.
type TransitionResponse struct {
	ComplaintID     int64           `json:"complaint_id"`
	ComplaintNumber string          `json:"complaint_number"`
	PreviousStatus  ComplaintStatus `json:"previous_status"`
	NewStatus       ComplaintStatus `json:"new_status"`
	ActorRole       Role            `json:"actor_role"`
	TransitionedAt  time.Time       `json:"transitioned_at"`
	Message         string          `json:"message"`
}

// AllowedTransitionsResponse lists the next states the caller may request.
type AllowedTransitionsResponse struct {
	ComplaintID   int64             `json:"complaint_id"`
	CurrentStatus ComplaintStatus   `json:"current_status"`
	Role          Role              `json:"role"`
	Allowed       []ComplaintStatus `json:"allowed"`
}

// SubmitDisputeRequest is the body of POST /complaints/{id}/dispute.
type SubmitDisputeRequest struct {
	DisputeReason   string  `json:"dispute_reason"`
	CounterProofRef *string `json:"counter_proof_ref,omitempty"`
	Feedback        *string `json:"feedback,omitempty"`
}

// RejectDisputeRequest is the body of POST .../dispute/{signoffId}/reject.
type RejectDisputeRequest struct {
	RejectionReason string `json:"rejection_reason"`
}

// DisputeDecisionResponse reports the outcome of approving or rejecting a dispute.
type DisputeDecisionResponse struct {
	ComplaintID      int64           `json:"complaint_id"`
	SignoffID        int64           `json:"signoff_id"`
	Outcome          DisputeOutcome  `json:"outcome"`
	Status           ComplaintStatus `json:"status"`
	PreviousPriority Priority        `json:"previous_priority"`
	Priority         Priority        `json:"priority"`
	SLADaysAssigned  int             `json:"sla_days_assigned"`
	SLADeadline      *time.Time      `json:"sla_deadline,omitempty"`
	EscalationLevel  int             `json:"escalation_level"`
	ProofsRemoved    int             `json:"proofs_removed"`
	Message          string          `json:"message"`
}

// PendingDispute is one row of GET /disputes/pending.
type PendingDispute struct {
	SignoffID       int64     `json:"signoff_id"`
	ComplaintID     int64     `json:"complaint_id"`
	ComplaintNumber string    `json:"complaint_number"`
	CitizenID       int64     `json:"citizen_id"`
	DepartmentID    *int64    `json:"department_id,omitempty"`
	Priority        Priority  `json:"priority"`
	DisputeReason   string    `json:"dispute_reason"`
	CounterProofRef *string   `json:"counter_proof_ref,omitempty"`
	FiledAt         time.Time `json:"filed_at"`
}

// SubmitProofRequest is the body of POST /complaints/{id}/resolution-proof.
type SubmitProofRequest struct {
	EvidenceRef string `json:"evidence_ref"`
}

// SubmitSignoffRequest is the body of POST /complaints/{id}/signoff.
type SubmitSignoffRequest struct {
	IsAccepted      bool    `json:"is_accepted"`
	Rating          *int    `json:"rating,omitempty"`
	Feedback        *string `json:"feedback,omitempty"`
	DisputeReason   *string `json:"dispute_reason,omitempty"`
	CounterProofRef *string `json:"counter_proof_ref,omitempty"`
}

// SignoffResponse reports a recorded signoff and, for acceptances, the resulting closure.
type SignoffResponse struct {
	Signoff    *CitizenSignoff     `json:"signoff"`
	Transition *TransitionResponse `json:"transition,omitempty"`
	Message    string              `json:"message"`
}

// ExistsResponse answers the has-proof / has-signoff checks.
type ExistsResponse struct {
	ComplaintID int64 `json:"complaint_id"`
	Exists      bool  `json:"exists"`
}

// StatusTimelineResponse represents the status timeline for a complaint
type StatusTimelineResponse struct {
	ComplaintID     int64           `json:"complaint_id"`
	ComplaintNumber string          `json:"complaint_number"`
	Timeline        []StatusHistory `json:"timeline"`
}

// PublicComplaintView is the unauthenticated view of a complaint. It carries no
// complaint id, citizen id, description or actor ids.
type PublicComplaintView struct {
	ComplaintNumber string                `json:"complaint_number"`
	DepartmentID    *int64                `json:"department_id,omitempty"`
	CurrentStatus   ComplaintStatus       `json:"current_status"`
	Priority        Priority              `json:"priority"`
	EscalationLevel int                   `json:"escalation_level"`
	CreatedAt       time.Time             `json:"created_at"`
	Timeline        []PublicTimelineEntry `json:"timeline"`
}

// PublicTimelineEntry is one status change as shown publicly.
type PublicTimelineEntry struct {
	CreatedAt time.Time       `json:"created_at"`
	OldStatus ComplaintStatus `json:"old_status,omitempty"`
	NewStatus ComplaintStatus `json:"new_status"`
	ActorRole Role            `json:"actor_role"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
	Rule    string `json:"rule,omitempty"`
}

// FileComplaintRequest is the body of POST /complaints, sent by the intake pipeline
// once a complaint has been classified and routed.
type FileComplaintRequest struct {
	CitizenID    int64    `json:"citizen_id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	CategoryID   *int64   `json:"category_id,omitempty"`
	DepartmentID *int64   `json:"department_id,omitempty"`
	StaffID      *int64   `json:"staff_id,omitempty"`
	Priority     Priority `json:"priority,omitempty"`
}
