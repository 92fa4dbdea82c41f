// Command issue-token mints a bearer token for a user, for local testing
// and service-to-service calls.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/config"
	"github.com/garyjia/expense-approval/internal/infrastructure/auth"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/pkg/database"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	userID := flag.String("user", "", "id of the user the token is issued for")
	skipCheck := flag.Bool("skip-check", false, "do not verify that the user exists and is active")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if !*skipCheck {
		if err := checkUser(cfg, *userID); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}

	issuer, err := auth.NewJWT(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create token issuer: %v\n", err)
		os.Exit(1)
	}

	token, err := issuer.Issue(*userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}

func checkUser(cfg *config.Config, userID string) error {
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Path:         cfg.Database.Path,
		MaxOpenConns: 1,
		BusyTimeout:  cfg.Database.BusyTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	user, err := repository.NewUserRepository(db.DB, logger).GetByID(context.Background(), userID)
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("user %q does not exist", userID)
	}
	if !user.IsActive {
		return fmt.Errorf("user %q is inactive", userID)
	}
	return nil
}
