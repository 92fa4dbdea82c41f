package container

import (
	"context"
	"fmt"

	goredislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/budget"
	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/policy"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/auth"
	infraLark "github.com/garyjia/expense-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/expense-approval/internal/infrastructure/lock"
	"github.com/garyjia/expense-approval/internal/infrastructure/notify"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/internal/infrastructure/worker"
	httpif "github.com/garyjia/expense-approval/internal/interfaces/http"
	"github.com/garyjia/expense-approval/migrations"
	"github.com/garyjia/expense-approval/pkg/database"
)

const memoryPath = ":memory:"

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *database.DB
	TransactionMgr *sqlite.DB
}

// LockBundle holds the locker and, for the redis backend, its client.
type LockBundle struct {
	Locker port.Locker
	Redis  goredislib.UniversalClient
}

// DomainBundle holds the policy and budget services the workflow builds on.
type DomainBundle struct {
	Policies *policy.Store
	Engine   *policy.Engine
	Budget   *budget.Tracker
}

// ProvideDatabase opens the database and applies the embedded migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	var (
		db  *database.DB
		err error
	)
	if cfg.Path == memoryPath {
		db, err = database.OpenMemory(logger)
	} else {
		db, err = database.New(database.Config{
			Path:            cfg.Path,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			BusyTimeout:     cfg.BusyTimeout,
		}, logger)
	}
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).RunMigrations(migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		SqlDB:          db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Expense:        repository.NewExpenseRepository(db.DB, logger),
		ApprovalRecord: repository.NewApprovalRecordRepository(db.DB, logger),
		Site:           repository.NewSiteRepository(db.DB, logger),
		BudgetLedger:   repository.NewBudgetLedgerRepository(db.DB, logger),
		User:           repository.NewUserRepository(db.DB, logger),
		Notification:   repository.NewNotificationRepository(db.DB, logger),
	}, nil
}

// ProvideLock creates the configured locker.
// The redis backend pings the server so a bad address fails startup.
func ProvideLock(ctx context.Context, cfg *LockConfig, redisCfg *RedisConfig, logger *zap.Logger) (*LockBundle, error) {
	if cfg.Backend != "redis" {
		logger.Info("Using in-process expense lock")
		return &LockBundle{Locker: lock.NewLocal()}, nil
	}

	client := goredislib.NewUniversalClient(&goredislib.UniversalOptions{
		Addrs:    redisCfg.Addrs,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	locker, err := lock.NewRedis(client, lock.Options{
		Prefix:     cfg.Prefix,
		Expiry:     cfg.Expiry,
		Tries:      cfg.Tries,
		RetryDelay: cfg.RetryDelay,
	}, &zapLoggerAdapter{logger: logger.Named("lock")})
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("Using redis expense lock", zap.Strings("addrs", redisCfg.Addrs))
	return &LockBundle{Locker: locker, Redis: client}, nil
}

// ProvideDomain creates the policy store, policy engine and budget tracker.
func ProvideDomain(repos *RepositoryBundle, defaults entity.Policy, logger *zap.Logger) (*DomainBundle, error) {
	if repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}

	adapter := &zapLoggerAdapter{logger: logger}
	return &DomainBundle{
		Policies: policy.NewStore(repos.Site, defaults, adapter),
		Engine:   policy.NewEngine(repos.Expense, adapter),
		Budget:   budget.NewTracker(repos.Site, repos.BudgetLedger, adapter),
	}, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&dispatcherLoggerAdapter{logger: logger.Named("dispatcher")}),
	), nil
}

// WorkflowDeps holds dependencies for creating the approval workflow.
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	Domain     *DomainBundle
	TxManager  port.TransactionManager
	Locker     port.Locker
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// ProvideWorkflow creates the approval workflow.
func ProvideWorkflow(deps *WorkflowDeps) (workflow.ApprovalWorkflow, error) {
	if deps == nil || deps.Repos == nil || deps.Domain == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}

	return workflow.NewEngine(
		deps.Repos.Expense,
		deps.Repos.ApprovalRecord,
		deps.Domain.Policies,
		deps.Domain.Engine,
		deps.Domain.Budget,
		deps.TxManager,
		deps.Locker,
		&zapLoggerAdapter{logger: deps.Logger.Named("workflow")},
		workflow.WithDispatcher(deps.Dispatcher),
	), nil
}

// ProvideSender picks Lark delivery when credentials are configured and
// falls back to logging the messages otherwise.
func ProvideSender(cfg *LarkConfig, logger *zap.Logger) port.NotificationSender {
	if cfg.AppID == "" {
		logger.Info("Lark is not configured, notifications go to the log")
		return notify.NewLogSender(logger.Named("notify"))
	}

	sdk := infraLark.NewSDKClient(infraLark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.APITimeout,
	}, logger)

	logger.Info("Lark notifications enabled", zap.String("app_id", sdk.GetAppID()))
	return infraLark.NewMessenger(sdk, logger.Named("lark"))
}

// ProvideNotificationService creates the notification service and subscribes it.
func ProvideNotificationService(
	repos *RepositoryBundle,
	sender port.NotificationSender,
	disp dispatcher.Dispatcher,
	logger *zap.Logger,
) service.NotificationService {
	svc := service.NewNotificationService(
		repos.User,
		repos.Notification,
		sender,
		&zapLoggerAdapter{logger: logger.Named("notification")},
	)
	svc.Register(disp)
	return svc
}

// ProvideWorkers creates the worker manager with the notification retry worker.
func ProvideWorkers(
	repos *RepositoryBundle,
	notifications service.NotificationService,
	cfg *NotificationConfig,
	logger *zap.Logger,
) *worker.Manager {
	manager := worker.NewManager(logger.Named("worker"))
	manager.Register(worker.NewNotificationRetryWorker(
		repos.Notification,
		notifications,
		worker.RetryConfig{
			Interval:    cfg.RetryInterval,
			MaxAttempts: cfg.MaxAttempts,
			BatchSize:   cfg.BatchSize,
		},
		logger.Named("notification_retry"),
	))
	return manager
}

// ProvideTokens creates the bearer token issuer and verifier.
func ProvideTokens(cfg *AuthConfig) (*auth.JWT, error) {
	return auth.NewJWT(cfg.JWTSecret, cfg.Issuer, cfg.TokenTTL)
}

// ProvideHTTPServer creates the HTTP server; it is not started here.
func ProvideHTTPServer(cfg *ServerConfig, deps httpif.Dependencies, logger *zap.Logger) *httpif.Server {
	return httpif.NewServer(httpif.ServerConfig{
		Host:            cfg.Host,
		Port:            cfg.Port,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Mode:            cfg.Mode,
	}, deps, &zapLoggerAdapter{logger: logger.Named("http")})
}
