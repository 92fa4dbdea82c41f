package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/config"
	"github.com/garyjia/expense-approval/internal/container"
	"github.com/garyjia/expense-approval/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    "expense-approval",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Server exited successfully")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting expense approval service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port),
		zap.String("lock_backend", cfg.Lock.Backend))

	containerCfg, err := cfg.ToContainerConfig()
	if err != nil {
		return fmt.Errorf("build container config: %w", err)
	}

	c, err := container.NewContainer(containerCfg, logger)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}

	// Wait for interrupt signal to gracefully shutdown the server
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("start container: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container shutdown reported errors", zap.Error(err))
		}
	}()

	// Blocks until ctx is cancelled, then drains in-flight requests
	if err := c.HTTPServer().Start(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("Shutting down server...")
	return nil
}
