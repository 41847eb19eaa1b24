package worker

import (
	"context"
	"sync"
	"time"

	"civicflow/models"

	"go.uber.org/zap"
)

// Outbox is the retry side of the notification service. *service.NotificationService satisfies it.
type Outbox interface {
	GetPendingNotifications(ctx context.Context) ([]models.Notification, error)
	ProcessNotification(ctx context.Context, n *models.Notification) error
}

// NotificationWorker is a background worker that redelivers pending and retrying notifications
type NotificationWorker struct {
	outbox   Outbox
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(outbox Outbox, interval time.Duration, logger *zap.Logger) *NotificationWorker {
	return &NotificationWorker{
		outbox:   outbox,
		interval: interval,
		logger:   logger,
	}
}

// Start starts the notification worker
func (w *NotificationWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		w.logger.Warn("notification worker is already running")
		return
	}
	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.logger.Info("notification worker started", zap.Duration("interval", w.interval))

	go w.run(ctx, w.stop, w.done)
}

// Stop stops the notification worker and waits for the current batch
func (w *NotificationWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stop)
	done := w.done
	w.mu.Unlock()

	<-done
	w.logger.Info("notification worker stopped")
}

func (w *NotificationWorker) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.processNotifications(ctx)
	for {
		select {
		case <-ticker.C:
			w.processNotifications(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// processNotifications processes one batch of due notifications
func (w *NotificationWorker) processNotifications(ctx context.Context) {
	start := time.Now()
	notifications, err := w.outbox.GetPendingNotifications(ctx)
	if err != nil {
		w.logger.Error("failed to get pending notifications", zap.Error(err))
		return
	}
	if len(notifications) == 0 {
		return
	}

	var sent, failed, retrying int
	for i := range notifications {
		n := &notifications[i]
		if err := w.outbox.ProcessNotification(ctx, n); err != nil {
			if n.Status == models.NotificationStatusRetrying {
				retrying++
			} else {
				failed++
			}
			w.logger.Debug("notification not delivered",
				zap.Int64("notification_id", n.NotificationID),
				zap.String("status", string(n.Status)),
				zap.Error(err))
			continue
		}
		sent++
	}

	w.logger.Info("notification batch processed",
		zap.Duration("duration", time.Since(start)),
		zap.Int("sent", sent),
		zap.Int("failed", failed),
		zap.Int("retrying", retrying))
}
