package service

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"civicflow/models"
	"civicflow/notification"

	"go.uber.org/zap"
)

// NotificationService is the outbox-backed Notifier. Every notification is stored
// first, then delivered; failed deliveries are retried by the notification worker.
type NotificationService struct {
	tx      TxRunner
	repo    NotificationStore
	senders map[models.NotificationChannel]notification.Sender
	config  *models.NotificationConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewNotificationService creates a new notification service
func NewNotificationService(
	tx TxRunner,
	repo NotificationStore,
	senders []notification.Sender,
	config *models.NotificationConfig,
	logger *zap.Logger,
) *NotificationService {
	if config == nil {
		config = models.DefaultNotificationConfig()
	}
	bySender := make(map[models.NotificationChannel]notification.Sender, len(senders))
	for _, s := range senders {
		bySender[s.Channel()] = s
	}
	return &NotificationService{
		tx:      tx,
		repo:    repo,
		senders: bySender,
		config:  config,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Send queues and delivers a notification. Only a queueing failure is returned;
// a failed delivery stays in the outbox for the notification worker.
func (s *NotificationService) Send(ctx context.Context, req *models.NotificationRequest) error {
	n, err := s.queue(ctx, req, "")
	if err != nil {
		return err
	}
	s.deliver(ctx, n)
	return nil
}

// SendWithDeduplication queues and delivers unless key was used within window.
func (s *NotificationService) SendWithDeduplication(
	ctx context.Context,
	req *models.NotificationRequest,
	key string,
	window time.Duration,
) (bool, error) {
	var n *models.Notification
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		seen, err := s.repo.HasRecentByDedupKey(ctx, key, s.now().Add(-window))
		if err != nil {
			return err
		}
		if seen {
			return nil
		}
		n, err = s.queue(ctx, req, key)
		return err
	})
	if err != nil {
		return false, err
	}
	if n == nil {
		s.logger.Debug("notification deduplicated", zap.String("dedup_key", key))
		return false, nil
	}
	s.deliver(ctx, n)
	return true, nil
}

func (s *NotificationService) deliver(ctx context.Context, n *models.Notification) {
	if err := s.ProcessNotification(ctx, n); err != nil {
		s.logger.Warn("notification delivery deferred",
			zap.Int64("notification_id", n.NotificationID),
			zap.String("status", string(n.Status)),
			zap.Error(err))
	}
}

func (s *NotificationService) queue(ctx context.Context, req *models.NotificationRequest, key string) (*models.Notification, error) {
	channel := req.Channel
	if channel == "" {
		channel = s.config.DefaultChannel
	}
	if channel == "" {
		channel = models.ChannelInApp
	}
	n := &models.Notification{
		ComplaintID:   req.ComplaintID,
		Kind:          req.Kind,
		Channel:       channel,
		RecipientRole: req.RecipientRole,
		Subject:       req.Subject,
		Body:          req.Body,
		DedupKey:      sql.NullString{String: key, Valid: key != ""},
		Status:        models.NotificationStatusPending,
		MaxRetries:    s.config.DefaultMaxRetries,
		CreatedAt:     s.now(),
	}
	if req.RecipientID != nil {
		n.RecipientID = sql.NullInt64{Int64: *req.RecipientID, Valid: true}
	}
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to queue notification: %w", err)
	}
	return n, nil
}

// ProcessNotification delivers one outbox row. Called inline after queueing and by the worker.
func (s *NotificationService) ProcessNotification(ctx context.Context, n *models.Notification) error {
	sender, ok := s.senders[n.Channel]
	if !ok {
		msg := fmt.Sprintf("%v: %s", notification.ErrUnsupportedChannel, n.Channel)
		return s.markFailed(ctx, n, msg)
	}
	if err := sender.Validate(n); err != nil {
		return s.markFailed(ctx, n, fmt.Sprintf("validation failed: %v", err))
	}
	if err := sender.Send(ctx, n); err != nil {
		return s.handleNotificationFailure(ctx, n, err.Error())
	}
	if err := s.repo.UpdateNotificationStatus(ctx, n.NotificationID, models.NotificationStatusSent, nil, s.now()); err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}
	n.Status = models.NotificationStatusSent
	return nil
}

func (s *NotificationService) markFailed(ctx context.Context, n *models.Notification, msg string) error {
	if err := s.repo.UpdateNotificationStatus(ctx, n.NotificationID, models.NotificationStatusFailed, &msg, s.now()); err != nil {
		return fmt.Errorf("failed to mark notification as failed: %w", err)
	}
	n.Status = models.NotificationStatusFailed
	return fmt.Errorf("notification %d failed: %s", n.NotificationID, msg)
}

// handleNotificationFailure schedules a retry or gives up once MaxRetries is reached
func (s *NotificationService) handleNotificationFailure(ctx context.Context, n *models.Notification, msg string) error {
	if n.RetryCount >= n.MaxRetries {
		return s.markFailed(ctx, n, "max retries exceeded: "+msg)
	}
	next := s.nextRetryTime(n.RetryCount)
	if err := s.repo.ScheduleRetry(ctx, n.NotificationID, next, msg); err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	n.Status = models.NotificationStatusRetrying
	n.RetryCount++
	return fmt.Errorf("notification %d failed, retry scheduled at %s: %s", n.NotificationID, next.Format(time.RFC3339), msg)
}

// nextRetryTime is min(initialDelay * multiplier^retryCount, maxDelay) from now
func (s *NotificationService) nextRetryTime(retryCount int) time.Time {
	delay := time.Duration(float64(s.config.InitialRetryDelay) * math.Pow(s.config.BackoffMultiplier, float64(retryCount)))
	if delay > s.config.MaxRetryDelay {
		delay = s.config.MaxRetryDelay
	}
	return s.now().Add(delay)
}

// GetPendingNotifications retrieves due notifications (used by the worker)
func (s *NotificationService) GetPendingNotifications(ctx context.Context) ([]models.Notification, error) {
	return s.repo.GetPendingNotifications(ctx, s.now(), s.config.WorkerBatchSize)
}
