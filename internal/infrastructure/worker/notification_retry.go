package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"go.uber.org/zap"
)

// Retrier re-sends one stored notification
type Retrier interface {
	Retry(ctx context.Context, n *entity.Notification) error
}

// RetryConfig tunes the notification retry worker
type RetryConfig struct {
	Interval    time.Duration
	MaxAttempts int
	BatchSize   int
}

// DefaultRetryConfig returns the retry settings used when none are configured
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Interval:    time.Minute,
		MaxAttempts: 5,
		BatchSize:   50,
	}
}

// NotificationRetryWorker periodically re-sends FAILED notifications
// until they succeed or run out of attempts
type NotificationRetryWorker struct {
	notifications port.NotificationRepository
	retrier       Retrier
	cfg           RetryConfig
	logger        *zap.Logger

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewNotificationRetryWorker creates the retry worker
func NewNotificationRetryWorker(
	notifications port.NotificationRepository,
	retrier Retrier,
	cfg RetryConfig,
	logger *zap.Logger,
) *NotificationRetryWorker {
	def := DefaultRetryConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}

	return &NotificationRetryWorker{
		notifications: notifications,
		retrier:       retrier,
		cfg:           cfg,
		logger:        logger,
	}
}

// Name returns the worker name for identification
func (w *NotificationRetryWorker) Name() string {
	return "NotificationRetryWorker"
}

// Start launches the retry loop
func (w *NotificationRetryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("notification retry worker is already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("NotificationRetryWorker started",
		zap.Duration("interval", w.cfg.Interval),
		zap.Int("max_attempts", w.cfg.MaxAttempts),
		zap.Int("batch_size", w.cfg.BatchSize))

	go w.loop(loopCtx, w.done)
	return nil
}

// Stop cancels the loop and waits for the current pass to finish
func (w *NotificationRetryWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	w.cancel()
	done := w.done
	w.mu.Unlock()

	<-done
	w.logger.Info("NotificationRetryWorker stopped")
	return nil
}

func (w *NotificationRetryWorker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce retries one batch and returns how many notifications were attempted
func (w *NotificationRetryWorker) RunOnce(ctx context.Context) int {
	failed, err := w.notifications.ListFailed(ctx, w.cfg.MaxAttempts, w.cfg.BatchSize)
	if err != nil {
		w.logger.Error("Failed to list failed notifications", zap.Error(err))
		return 0
	}

	attempted := 0
	for _, n := range failed {
		if ctx.Err() != nil {
			break
		}
		attempted++
		if err := w.retrier.Retry(ctx, n); err != nil {
			w.logger.Error("Failed to retry notification",
				zap.Int64("notification_id", n.ID),
				zap.Int64("expense_id", n.ExpenseID),
				zap.Error(err))
		}
	}

	if attempted > 0 {
		w.logger.Info("Notification retry pass completed", zap.Int("attempted", attempted))
	}
	return attempted
}
