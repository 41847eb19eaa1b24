package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"civicflow/models"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Sender is the interface for notification senders
type Sender interface {
	Send(ctx context.Context, notification *models.Notification) error
	Channel() models.NotificationChannel
	Validate(notification *models.Notification) error
}

// InAppSender delivers in-app notifications. The outbox row is the inbox entry,
// so delivery only needs to be logged.
type InAppSender struct {
	logger *zap.Logger
}

// NewInAppSender creates an in-app sender
func NewInAppSender(logger *zap.Logger) *InAppSender {
	return &InAppSender{logger: logger}
}

// Channel returns the in-app channel type
func (s *InAppSender) Channel() models.NotificationChannel {
	return models.ChannelInApp
}

// Validate requires a recipient user or role
func (s *InAppSender) Validate(n *models.Notification) error {
	if !n.RecipientID.Valid && n.RecipientRole == "" {
		return ErrInvalidRecipient
	}
	return nil
}

// Send marks the notification delivered to the recipient's inbox
func (s *InAppSender) Send(ctx context.Context, n *models.Notification) error {
	if err := s.Validate(n); err != nil {
		return err
	}
	s.logger.Info("in-app notification delivered",
		zap.Int64("notification_id", n.NotificationID),
		zap.Int64("complaint_id", n.ComplaintID),
		zap.String("kind", string(n.Kind)),
		zap.String("recipient_role", string(n.RecipientRole)),
		zap.Int64("recipient_id", n.RecipientID.Int64),
	)
	return nil
}

// AddressResolver maps a notification to an email address; "" means unknown.
type AddressResolver func(n *models.Notification) string

// EmailConfig configures EmailSender.
type EmailConfig struct {
	SendGridAPIKey string
	FromEmail      string
	FromName       string
	// ShadowAddress, when set, receives every email regardless of recipient.
	ShadowAddress  string
	MaxElapsedTime time.Duration
}

// EmailSender sends email via SendGrid. Without an API key sends are no-ops.
type EmailSender struct {
	cfg     EmailConfig
	resolve AddressResolver
	client  *http.Client
	logger  *zap.Logger
}

// NewEmailSender creates an email sender. resolve may be nil when only shadow mode is used.
func NewEmailSender(cfg EmailConfig, resolve AddressResolver, logger *zap.Logger) *EmailSender {
	if cfg.MaxElapsedTime <= 0 {
		cfg.MaxElapsedTime = 30 * time.Second
	}
	return &EmailSender{
		cfg:     cfg,
		resolve: resolve,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// Channel returns the email channel type
func (s *EmailSender) Channel() models.NotificationChannel {
	return models.ChannelEmail
}

func (s *EmailSender) address(n *models.Notification) string {
	if s.cfg.ShadowAddress != "" {
		return s.cfg.ShadowAddress
	}
	if s.resolve == nil {
		return ""
	}
	return s.resolve(n)
}

// Validate validates email notification
func (s *EmailSender) Validate(n *models.Notification) error {
	if s.address(n) == "" {
		return ErrInvalidRecipient
	}
	return nil
}

// Send sends an email. Transient SendGrid failures are retried with exponential backoff.
func (s *EmailSender) Send(ctx context.Context, n *models.Notification) error {
	to := s.address(n)
	if to == "" {
		return ErrInvalidRecipient
	}
	if s.cfg.SendGridAPIKey == "" {
		s.logger.Debug("email send skipped, no SendGrid key",
			zap.Int64("notification_id", n.NotificationID), zap.String("to", to))
		return nil
	}
	return s.sendViaSendGrid(ctx, to, n)
}

var sendGridURL = "https://api.sendgrid.com/v3/mail/send"

func (s *EmailSender) sendViaSendGrid(ctx context.Context, to string, n *models.Notification) error {
	body := map[string]any{
		"personalizations": []map[string]any{
			{"to": []map[string]any{{"email": to}}},
		},
		"from":    map[string]string{"email": s.cfg.FromEmail, "name": s.cfg.FromName},
		"subject": n.Subject,
		"content": []map[string]string{{"type": "text/plain", "value": n.Body}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode sendgrid payload: %w", err)
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendGridURL, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+s.cfg.SendGridAPIKey)
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("sendgrid status %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("sendgrid status %d", resp.StatusCode))
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = s.cfg.MaxElapsedTime
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

// SMSSender handles SMS notifications. There is no gateway wired yet; sends are logged.
type SMSSender struct {
	logger *zap.Logger
}

// NewSMSSender creates a new SMS sender
func NewSMSSender(logger *zap.Logger) *SMSSender {
	return &SMSSender{logger: logger}
}

// Channel returns the SMS channel type
func (s *SMSSender) Channel() models.NotificationChannel {
	return models.ChannelSMS
}

// Validate validates SMS notification
func (s *SMSSender) Validate(n *models.Notification) error {
	if !n.RecipientID.Valid {
		return ErrInvalidRecipient
	}
	return nil
}

// Send logs the SMS
func (s *SMSSender) Send(ctx context.Context, n *models.Notification) error {
	if err := s.Validate(n); err != nil {
		return err
	}
	s.logger.Info("sms notification",
		zap.Int64("notification_id", n.NotificationID),
		zap.Int64("recipient_id", n.RecipientID.Int64),
	)
	return nil
}

// Errors
var (
	ErrInvalidRecipient   = &NotificationError{Message: "invalid recipient"}
	ErrUnsupportedChannel = &NotificationError{Message: "unsupported channel"}
)

// NotificationError represents a notification error
type NotificationError struct {
	Message string
	Err     error
}

func (e *NotificationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}
