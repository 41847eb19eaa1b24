package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ErrQueueFull is reported when a job is dropped because the queue is saturated.
var ErrQueueFull = errors.New("side-effect queue is full")

// FailureRecorder is told about every job that gave up. *service.Telemetry satisfies it.
type FailureRecorder interface {
	SideEffectFailed(ctx context.Context, name string)
}

// DispatcherConfig holds configuration for the side-effect dispatcher
type DispatcherConfig struct {
	QueueSize      int
	Workers        int
	JobTimeout     time.Duration
	MaxElapsedTime time.Duration
	InitialBackoff time.Duration
}

// DefaultDispatcherConfig returns default dispatcher configuration
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:      1024,
		Workers:        4,
		JobTimeout:     10 * time.Second,
		MaxElapsedTime: 30 * time.Second,
		InitialBackoff: 200 * time.Millisecond,
	}
}

type job struct {
	name string
	fn   func(ctx context.Context) error
}

// Dispatcher runs post-commit side effects (notifications, rewards) on a bounded
// pool. A failing or panicking job is retried with exponential backoff, then
// logged and counted; it never reaches the request that committed the change.
type Dispatcher struct {
	config   DispatcherConfig
	logger   *zap.Logger
	failures FailureRecorder

	queue  chan job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	cancel context.CancelFunc
}

// NewDispatcher creates a dispatcher; call Start before dispatching.
func NewDispatcher(config DispatcherConfig, failures FailureRecorder, logger *zap.Logger) *Dispatcher {
	defaults := DefaultDispatcherConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaults.JobTimeout
	}
	if config.MaxElapsedTime <= 0 {
		config.MaxElapsedTime = defaults.MaxElapsedTime
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	return &Dispatcher{
		config:   config,
		logger:   logger,
		failures: failures,
		queue:    make(chan job, config.QueueSize),
	}
}

// Start launches the worker goroutines. Jobs run under ctx; Stop drains the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.run(ctx)
	}
	d.logger.Info("side-effect dispatcher started",
		zap.Int("workers", d.config.Workers),
		zap.Int("queue_size", d.config.QueueSize))
}

// Dispatch enqueues a job. It never blocks: when the queue is full or the
// dispatcher is stopped the job is dropped and recorded as failed.
func (d *Dispatcher) Dispatch(name string, fn func(ctx context.Context) error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(name, errors.New("dispatcher stopped"))
		return
	}
	select {
	case d.queue <- job{name: name, fn: fn}:
	default:
		d.drop(name, ErrQueueFull)
	}
}

func (d *Dispatcher) drop(name string, reason error) {
	d.logger.Warn("side effect dropped", zap.String("job", name), zap.Error(reason))
	if d.failures != nil {
		d.failures.SideEffectFailed(context.Background(), name)
	}
}

// Stop refuses new jobs, waits for queued ones to finish, then releases the workers.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	if d.cancel != nil {
		d.cancel()
	}
	d.logger.Info("side-effect dispatcher stopped")
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for j := range d.queue {
		d.execute(ctx, j)
	}
}

func (d *Dispatcher) execute(ctx context.Context, j job) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.config.InitialBackoff
	b.MaxElapsedTime = d.config.MaxElapsedTime

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return d.attempt(ctx, j)
	}, backoff.WithContext(b, ctx))
	if err == nil {
		return
	}
	d.logger.Error("side effect failed",
		zap.String("job", j.name),
		zap.Int("attempts", attempts),
		zap.Error(err))
	if d.failures != nil {
		d.failures.SideEffectFailed(ctx, j.name)
	}
}

func (d *Dispatcher) attempt(ctx context.Context, j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = backoff.Permanent(fmt.Errorf("panic in side effect %s: %v", j.name, r))
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, d.config.JobTimeout)
	defer cancel()
	return j.fn(ctx)
}
