package models

import (
	"database/sql"
	"time"
)

// NotificationChannel represents the notification channel type
type NotificationChannel string

const (
	ChannelInApp NotificationChannel = "in_app"
	ChannelEmail NotificationChannel = "email"
	ChannelSMS   NotificationChannel = "sms"
)

// NotificationStatus represents the status of a notification
type NotificationStatus string

const (
	NotificationStatusPending  NotificationStatus = "pending"
	NotificationStatusSent     NotificationStatus = "sent"
	NotificationStatusFailed   NotificationStatus = "failed"
	NotificationStatusRetrying NotificationStatus = "retrying"
)

// NotificationKind tags what a notification is about.
type NotificationKind string

const (
	NotifyStatusChanged   NotificationKind = "status_changed"
	NotifyResolved        NotificationKind = "resolved"
	NotifyRatingRequest   NotificationKind = "rating_request"
	NotifyAssigned        NotificationKind = "assigned"
	NotifyDisputeFiled    NotificationKind = "dispute_filed"
	NotifyDisputeApproved NotificationKind = "dispute_approved"
	NotifyDisputeRejected NotificationKind = "dispute_rejected"
	NotifyReopened        NotificationKind = "reopened"
	NotifyEscalated       NotificationKind = "escalated"
)

// Notification represents a notification outbox record
type Notification struct {
	NotificationID int64               `db:"notification_id" json:"notification_id"`
	ComplaintID    int64               `db:"complaint_id" json:"complaint_id"`
	Kind           NotificationKind    `db:"kind" json:"kind"`
	Channel        NotificationChannel `db:"channel" json:"channel"`
	RecipientID    sql.NullInt64       `db:"recipient_id" json:"recipient_id"`
	RecipientRole  Role                `db:"recipient_role" json:"recipient_role"`
	Subject        string              `db:"subject" json:"subject"`
	Body           string              `db:"body" json:"body"`
	DedupKey       sql.NullString      `db:"dedup_key" json:"dedup_key"`
	Status         NotificationStatus  `db:"status" json:"status"`
	RetryCount     int                 `db:"retry_count" json:"retry_count"`
	MaxRetries     int                 `db:"max_retries" json:"max_retries"`
	NextRetryAt    sql.NullTime        `db:"next_retry_at" json:"next_retry_at"`
	SentAt         sql.NullTime        `db:"sent_at" json:"sent_at"`
	ErrorMessage   sql.NullString      `db:"error_message" json:"error_message"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
}

// NotificationRequest represents a request to send a notification.
// RecipientID nil with a RecipientRole addresses whoever holds that role
// for the complaint's department.
type NotificationRequest struct {
	ComplaintID   int64               `json:"complaint_id"`
	Kind          NotificationKind    `json:"kind"`
	Channel       NotificationChannel `json:"channel,omitempty"`
	RecipientID   *int64              `json:"recipient_id,omitempty"`
	RecipientRole Role                `json:"recipient_role"`
	Subject       string              `json:"subject"`
	Body          string              `json:"body"`
}

// NotificationConfig holds configuration for notification system
type NotificationConfig struct {
	DefaultChannel    NotificationChannel
	DefaultMaxRetries int
	InitialRetryDelay time.Duration
	MaxRetryDelay     time.Duration
	BackoffMultiplier float64
	WorkerBatchSize   int
}

// DefaultNotificationConfig returns default notification configuration
func DefaultNotificationConfig() *NotificationConfig {
	return &NotificationConfig{
		DefaultChannel:    ChannelInApp,
		DefaultMaxRetries: 3,
		InitialRetryDelay: 1 * time.Minute,
		MaxRetryDelay:     30 * time.Minute,
		BackoffMultiplier: 2.0,
		WorkerBatchSize:   100,
	}
}
