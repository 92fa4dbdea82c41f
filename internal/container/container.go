package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	goredislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/auth"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/internal/infrastructure/worker"
	httpif "github.com/garyjia/expense-approval/internal/interfaces/http"
	"github.com/garyjia/expense-approval/pkg/database"
)

const healthTimeout = 2 * time.Second

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and close in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	sqlDB        *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - Coordination
	locker port.Locker
	redis  goredislib.UniversalClient

	// Application
	domain        *DomainBundle
	dispatcher    dispatcher.Dispatcher
	workflow      workflow.ApprovalWorkflow
	sender        port.NotificationSender
	notifications service.NotificationService

	// Interfaces
	tokens *auth.JWT
	server *httpif.Server

	// Workers
	workers *worker.Manager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Expense        port.ExpenseRepository
	ApprovalRecord port.ApprovalRecordRepository
	Site           port.SiteRepository
	BudgetLedger   port.BudgetLedgerRepository
	User           port.UserRepository
	Notification   port.NotificationRepository
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins background processing.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. Lock backend
// 3. Policy, budget, dispatcher and workflow
// 4. Notification delivery
// 5. Token verifier and HTTP server (not listening yet)
// 6. Workers
// On failure everything already built is closed again.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	steps := []struct {
		name string
		fn   func() error
	}{
		{"database", c.initDatabase},
		{"lock", c.initLock},
		{"workflow", c.initWorkflow},
		{"notifications", c.initNotifications},
		{"http", c.initHTTP},
		{"workers", c.initWorkers},
	}

	for _, step := range steps {
		if err := step.fn(); err != nil {
			c.logger.Error("Container initialization failed", zap.String("step", step.name), zap.Error(err))
			if closeErr := c.teardown(); closeErr != nil {
				c.logger.Error("Cleanup after failed start reported errors", zap.Error(closeErr))
			}
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		c.logger.Info("Component initialized", zap.String("step", step.name))
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	return c.teardown()
}

func (c *Container) teardown() error {
	var errs []error

	// Cancel context to signal all goroutines
	if c.cancel != nil {
		c.cancel()
	}

	// Step 1: Stop workers
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// Step 2: Drain in-flight event handlers before their stores go away
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	// Step 3: Release the redis connection pool
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.logger.Error("Failed to close redis client", zap.Error(err))
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		} else {
			c.logger.Info("Redis client closed")
		}
	}

	// Step 4: Close database
	if c.sqlDB != nil {
		if err := c.sqlDB.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	check := func(name string, initialized bool, probe func() error) {
		if !initialized {
			status.Components[name] = ComponentHealth{Healthy: false, Message: "not initialized"}
			status.Overall = false
			return
		}
		if probe != nil {
			if err := probe(); err != nil {
				status.Components[name] = ComponentHealth{Healthy: false, Message: fmt.Sprintf("ping failed: %v", err)}
				status.Overall = false
				return
			}
		}
		status.Components[name] = ComponentHealth{Healthy: true}
	}

	check("database", c.sqlDB != nil, func() error { return c.sqlDB.PingContext(ctx) })
	if c.config.Lock.Backend == "redis" {
		check("redis", c.redis != nil, func() error { return c.redis.Ping(ctx).Err() })
	}
	check("dispatcher", c.dispatcher != nil, nil)
	check("repositories", c.repositories != nil, nil)

	if c.workers != nil {
		status.Components["workers"] = ComponentHealth{
			Healthy: c.workers.IsRunning(),
			Message: fmt.Sprintf("worker count: %d", c.workers.WorkerCount()),
		}
		if !c.workers.IsRunning() {
			status.Overall = false
		}
	} else {
		status.Components["workers"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	}

	return status
}

// healthError adapts Health to the HTTP readiness probe
func (c *Container) healthError(ctx context.Context) error {
	status := c.Health(ctx)
	if status.Overall {
		return nil
	}
	for name, h := range status.Components {
		if !h.Healthy {
			return fmt.Errorf("%s: %s", name, h.Message)
		}
	}
	return fmt.Errorf("unhealthy")
}

func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.sqlDB = dbBundle.SqlDB
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.sqlDB, c.logger)
	if err != nil {
		return err
	}

	c.repositories = repos
	return nil
}

func (c *Container) initLock() error {
	bundle, err := ProvideLock(c.ctx, &c.config.Lock, &c.config.Redis, c.logger)
	if err != nil {
		return err
	}
	c.locker = bundle.Locker
	c.redis = bundle.Redis
	return nil
}

func (c *Container) initWorkflow() error {
	domain, err := ProvideDomain(c.repositories, c.config.PolicyDefaults, c.logger)
	if err != nil {
		return err
	}
	c.domain = domain

	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	wf, err := ProvideWorkflow(&WorkflowDeps{
		Repos:      c.repositories,
		Domain:     c.domain,
		TxManager:  c.db,
		Locker:     c.locker,
		Dispatcher: c.dispatcher,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.workflow = wf
	return nil
}

func (c *Container) initNotifications() error {
	c.sender = ProvideSender(&c.config.Lark, c.logger)
	c.notifications = ProvideNotificationService(c.repositories, c.sender, c.dispatcher, c.logger)
	return nil
}

func (c *Container) initHTTP() error {
	tokens, err := ProvideTokens(&c.config.Auth)
	if err != nil {
		return err
	}
	c.tokens = tokens

	c.server = ProvideHTTPServer(&c.config.Server, httpif.Dependencies{
		Workflow: c.workflow,
		Policies: c.domain.Policies,
		Budgets:  c.domain.Budget,
		Users:    c.repositories.User,
		Tokens:   c.tokens,
		Health:   c.healthError,
	}, c.logger)
	return nil
}

func (c *Container) initWorkers() error {
	c.workers = ProvideWorkers(c.repositories, c.notifications, &c.config.Notification, c.logger)

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	return nil
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Workflow returns the approval workflow.
func (c *Container) Workflow() workflow.ApprovalWorkflow {
	return c.workflow
}

// Notifications returns the notification service.
func (c *Container) Notifications() service.NotificationService {
	return c.notifications
}

// Tokens returns the bearer token issuer and verifier.
func (c *Container) Tokens() *auth.JWT {
	return c.tokens
}

// HTTPServer returns the HTTP server; the caller starts it.
func (c *Container) HTTPServer() *httpif.Server {
	return c.server
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the small Logger interfaces of the
// application packages.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// dispatcherLoggerAdapter adapts zap.Logger to the dispatcher.Logger interface.
type dispatcherLoggerAdapter struct {
	logger *zap.Logger
}

func (a *dispatcherLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *dispatcherLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
