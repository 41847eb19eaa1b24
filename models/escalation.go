package models

import (
	"time"
)

// EscalationEvent is an append-only record of one sweep escalation.
type EscalationEvent struct {
	EventID         int64     `db:"event_id" json:"event_id"`
	ComplaintID     int64     `db:"complaint_id" json:"complaint_id"`
	EscalationLevel int       `db:"escalation_level" json:"escalation_level"`
	PreviousLevel   int       `db:"previous_level" json:"previous_level"`
	EscalatedAt     time.Time `db:"escalated_at" json:"escalated_at"`
	EscalatedToRole Role      `db:"escalated_to_role" json:"escalated_to_role"`
	Reason          string    `db:"reason" json:"reason"`
	DaysOverdue     int       `db:"days_overdue" json:"days_overdue"`
}

// EscalationCandidate represents an overdue complaint that may need escalation
type EscalationCandidate struct {
	ComplaintID     int64
	ComplaintNumber string
	CitizenID       int64
	Status          ComplaintStatus
	Priority        Priority
	DepartmentID    *int64
	StaffID         *int64
	SLADeadline     time.Time
	EscalationLevel int
}

// EscalationResult represents the result of escalating one complaint
type EscalationResult struct {
	ComplaintID   int64     `json:"complaint_id"`
	Escalated     bool      `json:"escalated"`
	PreviousLevel int       `json:"previous_level"`
	NewLevel      int       `json:"new_level"`
	TargetRole    Role      `json:"target_role,omitempty"`
	DaysOverdue   int       `json:"days_overdue"`
	Reason        string    `json:"reason"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// SweepReport summarizes one escalation sweep run.
type SweepReport struct {
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Scanned    int                `json:"scanned"`
	Escalated  int                `json:"escalated"`
	Skipped    int                `json:"skipped"`
	Failed     int                `json:"failed"`
	Truncated  bool               `json:"truncated"`
	Results    []EscalationResult `json:"results"`
}

// OverdueComplaint is one row of the overdue listing.
type OverdueComplaint struct {
	ComplaintID     int64           `json:"complaint_id"`
	ComplaintNumber string          `json:"complaint_number"`
	Status          ComplaintStatus `json:"status"`
	Priority        Priority        `json:"priority"`
	DepartmentID    *int64          `json:"department_id,omitempty"`
	SLADeadline     time.Time       `json:"sla_deadline"`
	DaysOverdue     int             `json:"days_overdue"`
	EscalationLevel int             `json:"escalation_level"`
	RequiredLevel   int             `json:"required_level"`
}

// EscalationStats aggregates escalation state across active complaints.
type EscalationStats struct {
	ActiveComplaints  int         `json:"active_complaints"`
	OverdueComplaints int         `json:"overdue_complaints"`
	ByLevel           map[int]int `json:"by_level"`
	EventsLast24h     int         `json:"events_last_24h"`
	GeneratedAt       time.Time   `json:"generated_at"`
}
