package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/config"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	infraLark "github.com/garyjia/expense-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/worker"
	"github.com/garyjia/expense-approval/pkg/database"
)

// Isolated check of Lark IM delivery, independent of the HTTP service.
//
//	test-notification -open-id ou_xxx     send one test message
//	test-notification -retry              re-send FAILED notifications once

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	openID := flag.String("open-id", "", "Lark open_id to send a test message to")
	retry := flag.Bool("retry", false, "run one retry pass over failed notifications")
	flag.Parse()

	fmt.Println("=== Lark IM Notification Test ===")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Lark.AppID == "" {
		log.Fatal("lark.app_id is not configured (set LARK_APP_ID)")
	}
	fmt.Printf("App ID: %s\n", mask(cfg.Lark.AppID))

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	messenger := infraLark.NewMessenger(infraLark.NewSDKClient(infraLark.Config{
		AppID:     cfg.Lark.AppID,
		AppSecret: cfg.Lark.AppSecret,
		BaseURL:   cfg.Lark.BaseURL,
		Timeout:   cfg.Lark.APITimeout,
	}, logger), logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch {
	case *retry:
		retryFailed(ctx, cfg, messenger, logger)
	case *openID != "":
		sendTest(ctx, messenger, *openID)
	default:
		flag.Usage()
	}
}

func sendTest(ctx context.Context, messenger *infraLark.Messenger, openID string) {
	fmt.Printf("\nSending test message to %s...\n", openID)

	result, err := messenger.Send(ctx, &entity.NotificationMessage{
		RecipientID: "test",
		Address:     openID,
		Title:       "Expense approval test",
		Body:        "This is a test notification from the expense approval service.\nNo action is needed.",
	})
	switch {
	case err != nil:
		fmt.Printf("✗ Transport error: %v\n", err)
	case !result.Success:
		fmt.Printf("✗ Lark refused the message: %s\n", result.ErrorMessage)
	default:
		fmt.Printf("✓ Message sent! message_id: %s\n", result.MessageID)
	}
}

func retryFailed(ctx context.Context, cfg *config.Config, messenger *infraLark.Messenger, logger *zap.Logger) {
	db, err := database.New(database.Config{
		Path:         cfg.Database.Path,
		MaxOpenConns: 1,
		BusyTimeout:  cfg.Database.BusyTimeout,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	notifications := repository.NewNotificationRepository(db.DB, logger)
	svc := service.NewNotificationService(
		repository.NewUserRepository(db.DB, logger),
		notifications,
		messenger,
		zapAdapter{logger},
	)

	w := worker.NewNotificationRetryWorker(notifications, svc, worker.RetryConfig{
		MaxAttempts: cfg.Notification.MaxAttempts,
		BatchSize:   cfg.Notification.BatchSize,
	}, logger)

	n := w.RunOnce(ctx)
	fmt.Printf("\n✓ Retried %d notification(s)\n", n)
}

type zapAdapter struct{ l *zap.Logger }

func (a zapAdapter) Info(msg string, kv ...interface{})  { a.l.Sugar().Infow(msg, kv...) }
func (a zapAdapter) Error(msg string, kv ...interface{}) { a.l.Sugar().Errorw(msg, kv...) }

func mask(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + "..." + s[len(s)-4:]
}
