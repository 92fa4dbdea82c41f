// Package worker runs background jobs alongside the HTTP server.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Worker defines the interface for background workers
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// Manager owns the lifecycle of the registered workers.
// Workers stop in reverse registration order.
type Manager struct {
	workers []Worker
	logger  *zap.Logger

	mu        sync.RWMutex
	isRunning bool
	cancel    context.CancelFunc
	started   []Worker
}

// NewManager creates a new worker manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		workers: make([]Worker, 0),
		logger:  logger,
	}
}

// Register adds a worker to be managed
func (m *Manager) Register(w Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.workers = append(m.workers, w)
	m.logger.Info("Worker registered",
		zap.String("worker_name", w.Name()),
		zap.Int("total_workers", len(m.workers)))
}

// StartAll starts every registered worker. A worker that fails to start is
// logged and skipped; the others keep running.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return fmt.Errorf("workers already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.isRunning = true
	m.started = m.started[:0]

	m.logger.Info("Starting all workers", zap.Int("count", len(m.workers)))

	for _, w := range m.workers {
		if err := w.Start(runCtx); err != nil {
			m.logger.Error("Failed to start worker",
				zap.String("worker_name", w.Name()),
				zap.Error(err))
			continue
		}
		m.started = append(m.started, w)
		m.logger.Info("Worker started", zap.String("worker_name", w.Name()))
	}

	return nil
}

// StopAll cancels the shared context and stops the started workers
func (m *Manager) StopAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isRunning {
		return nil
	}
	m.isRunning = false

	m.logger.Info("Stopping all workers", zap.Int("count", len(m.started)))
	m.cancel()

	var errs []error
	for i := len(m.started) - 1; i >= 0; i-- {
		w := m.started[i]
		if err := w.Stop(); err != nil {
			m.logger.Error("Failed to stop worker",
				zap.String("worker_name", w.Name()),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", w.Name(), err))
			continue
		}
		m.logger.Info("Worker stopped", zap.String("worker_name", w.Name()))
	}

	return errors.Join(errs...)
}

// WorkerCount returns the number of registered workers
func (m *Manager) WorkerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workers)
}

// IsRunning returns whether workers are running
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isRunning
}
