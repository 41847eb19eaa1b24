package worker

import (
	"context"
	"sync"
	"time"

	"civicflow/models"

	"go.uber.org/zap"
)

// Sweeper runs one escalation sweep. *service.EscalationService satisfies it.
type Sweeper interface {
	RunSweep(ctx context.Context) (*models.SweepReport, error)
}

// EscalationWorker is a background worker that periodically runs the escalation sweep
type EscalationWorker struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewEscalationWorker creates a new escalation worker
func NewEscalationWorker(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *EscalationWorker {
	return &EscalationWorker{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
	}
}

// Start starts the escalation worker.
// The worker runs in a separate goroutine and sweeps once immediately, then every interval.
func (w *EscalationWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		w.logger.Warn("escalation worker is already running")
		return
	}
	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.logger.Info("escalation worker started", zap.Duration("interval", w.interval))

	go w.run(ctx, w.stop, w.done)
}

// Stop stops the worker and waits for an in-flight sweep to return
func (w *EscalationWorker) Stop() {
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
	w.logger.Info("escalation worker stopped")
}

func (w *EscalationWorker) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ticker.C:
			w.sweep(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sweep is safe to call repeatedly; escalation writes are conditional.
func (w *EscalationWorker) sweep(ctx context.Context) {
	report, err := w.sweeper.RunSweep(ctx)
	if err != nil {
		w.logger.Error("escalation sweep failed", zap.Error(err))
		return
	}
	for _, r := range report.Results {
		if r.Escalated {
			w.logger.Debug("complaint escalated",
				zap.Int64("complaint_id", r.ComplaintID),
				zap.Int("level", r.NewLevel),
				zap.String("reason", r.Reason))
		}
	}
}
