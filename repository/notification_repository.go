package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"civicflow/models"
)

// NotificationRepository handles database operations for the notification outbox
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `
	notification_id, complaint_id, kind, channel, recipient_id, recipient_role,
	subject, body, dedup_key, status, retry_count, max_retries,
	next_retry_at, sent_at, error_message, created_at`

// CreateNotification creates a new outbox record
func (r *NotificationRepository) CreateNotification(ctx context.Context, n *models.Notification) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO notifications (
			complaint_id, kind, channel, recipient_id, recipient_role,
			subject, body, dedup_key, status, retry_count, max_retries,
			next_retry_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ComplaintID, n.Kind, n.Channel, n.RecipientID, n.RecipientRole,
		n.Subject, n.Body, n.DedupKey, n.Status, n.RetryCount, n.MaxRetries,
		n.NextRetryAt, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get notification ID: %w", err)
	}
	n.NotificationID = id
	return nil
}

// HasRecentByDedupKey reports whether a notification with this key was queued at or after since
func (r *NotificationRepository) HasRecentByDedupKey(ctx context.Context, key string, since time.Time) (bool, error) {
	var n int
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE dedup_key = ? AND created_at >= ?`, key, since).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check notification dedup key: %w", err)
	}
	return n > 0, nil
}

// GetPendingNotifications retrieves pending or retrying notifications that are due
func (r *NotificationRepository) GetPendingNotifications(ctx context.Context, now time.Time, limit int) ([]models.Notification, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `SELECT `+notificationColumns+`
		FROM notifications
		WHERE status IN ('pending', 'retrying')
			AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY created_at ASC, notification_id ASC
		LIMIT ?`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.NotificationID, &n.ComplaintID, &n.Kind, &n.Channel, &n.RecipientID, &n.RecipientRole,
			&n.Subject, &n.Body, &n.DedupKey, &n.Status, &n.RetryCount, &n.MaxRetries,
			&n.NextRetryAt, &n.SentAt, &n.ErrorMessage, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}
	return notifications, nil
}

// ListNotifications returns the outbox rows of a complaint, oldest first
func (r *NotificationRepository) ListNotifications(ctx context.Context, complaintID int64) ([]models.Notification, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `SELECT `+notificationColumns+`
		FROM notifications WHERE complaint_id = ?
		ORDER BY created_at ASC, notification_id ASC`, complaintID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.NotificationID, &n.ComplaintID, &n.Kind, &n.Channel, &n.RecipientID, &n.RecipientRole,
			&n.Subject, &n.Body, &n.DedupKey, &n.Status, &n.RetryCount, &n.MaxRetries,
			&n.NextRetryAt, &n.SentAt, &n.ErrorMessage, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}
	return notifications, nil
}

// UpdateNotificationStatus updates notification status and related fields
func (r *NotificationRepository) UpdateNotificationStatus(
	ctx context.Context,
	notificationID int64,
	status models.NotificationStatus,
	errorMessage *string,
	at time.Time,
) error {
	var (
		query string
		args  []any
	)
	switch status {
	case models.NotificationStatusSent:
		query = `UPDATE notifications SET status = ?, sent_at = ?, error_message = NULL WHERE notification_id = ?`
		args = []any{status, at, notificationID}
	case models.NotificationStatusFailed:
		query = `UPDATE notifications SET status = ?, error_message = ? WHERE notification_id = ?`
		args = []any{status, nullString(errorMessage), notificationID}
	default:
		query = `UPDATE notifications SET status = ? WHERE notification_id = ?`
		args = []any{status, notificationID}
	}

	if _, err := conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}
	return nil
}

// ScheduleRetry schedules a retry for a failed notification
func (r *NotificationRepository) ScheduleRetry(ctx context.Context, notificationID int64, nextRetryAt time.Time, errorMessage string) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE notifications
		SET status = 'retrying',
			retry_count = retry_count + 1,
			next_retry_at = ?,
			error_message = ?
		WHERE notification_id = ?`, nextRetryAt, errorMessage, notificationID)
	if err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
