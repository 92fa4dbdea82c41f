// Command seed loads sites and users from a YAML file into the database.
// Existing sites are left alone; users are upserted so roles can be changed
// by re-running the seed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/policy"
	"github.com/garyjia/expense-approval/internal/config"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/migrations"
	"github.com/garyjia/expense-approval/pkg/database"
	"github.com/garyjia/expense-approval/pkg/utils"
)

type seedFile struct {
	Sites []seedSite `mapstructure:"sites"`
	Users []seedUser `mapstructure:"users"`
}

type seedSite struct {
	ID            int64  `mapstructure:"id"`
	Code          string `mapstructure:"code"`
	Name          string `mapstructure:"name"`
	Location      string `mapstructure:"location"`
	MonthlyBudget string `mapstructure:"monthly_budget"`
	YearlyBudget  string `mapstructure:"yearly_budget"`
	// Policy is a JSON policy document; omitted keys use the configured defaults
	Policy string `mapstructure:"policy"`
}

type seedUser struct {
	ID         string `mapstructure:"id"`
	Name       string `mapstructure:"name"`
	Email      string `mapstructure:"email"`
	Role       string `mapstructure:"role"`
	SiteID     int64  `mapstructure:"site_id"`
	LarkOpenID string `mapstructure:"lark_open_id"`
	Inactive   bool   `mapstructure:"inactive"`
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	seedPath := flag.String("file", "configs/seed.yaml", "path to the seed file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: "stdout",
		Format:     "console",
		Service:    "expense-seed",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(context.Background(), cfg, *seedPath, logger); err != nil {
		logger.Error("Seeding failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, seedPath string, logger *zap.Logger) error {
	seed, err := loadSeed(seedPath)
	if err != nil {
		return err
	}

	db, err := database.New(database.Config{
		Path:         cfg.Database.Path,
		MaxOpenConns: 1,
		BusyTimeout:  cfg.Database.BusyTimeout,
	}, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.NewMigrator(db, logger).RunMigrations(migrations.FS); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	sites := repository.NewSiteRepository(db.DB, logger)
	users := repository.NewUserRepository(db.DB, logger)

	for _, s := range seed.Sites {
		site, err := s.toEntity()
		if err != nil {
			return fmt.Errorf("site %q: %w", s.Code, err)
		}
		if site.ID != 0 {
			existing, err := sites.GetByID(ctx, site.ID)
			if err != nil {
				return err
			}
			if existing != nil {
				logger.Info("Site already present, skipping", zap.Int64("site_id", site.ID), zap.String("code", existing.Code))
				continue
			}
		}
		if err := sites.Create(ctx, site); err != nil {
			return fmt.Errorf("create site %q: %w", s.Code, err)
		}
		logger.Info("Site created", zap.Int64("site_id", site.ID), zap.String("code", site.Code))
	}

	for _, u := range seed.Users {
		user, err := u.toEntity()
		if err != nil {
			return fmt.Errorf("user %q: %w", u.ID, err)
		}
		if err := users.Create(ctx, user); err != nil {
			return fmt.Errorf("save user %q: %w", u.ID, err)
		}
		logger.Info("User saved", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	}

	logger.Info("Seeding completed", zap.Int("sites", len(seed.Sites)), zap.Int("users", len(seed.Users)))
	return nil
}

func loadSeed(path string) (*seedFile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed seedFile
	if err := v.Unmarshal(&seed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal seed file: %w", err)
	}
	return &seed, nil
}

func (s seedSite) toEntity() (*entity.Site, error) {
	if strings.TrimSpace(s.Code) == "" || strings.TrimSpace(s.Name) == "" {
		return nil, fmt.Errorf("code and name are required")
	}

	monthly, err := decimal.NewFromString(orZero(s.MonthlyBudget))
	if err != nil {
		return nil, fmt.Errorf("monthly_budget: %w", err)
	}
	yearly, err := decimal.NewFromString(orZero(s.YearlyBudget))
	if err != nil {
		return nil, fmt.Errorf("yearly_budget: %w", err)
	}

	if !entity.AmountInRange(monthly) || !entity.AmountInRange(yearly) {
		return nil, fmt.Errorf("budgets must be between 0 and %s", entity.MaxAmount)
	}

	site := &entity.Site{
		ID:       s.ID,
		Code:     strings.ToUpper(strings.TrimSpace(s.Code)),
		Name:     utils.SanitizeString(s.Name),
		Location: utils.SanitizeString(s.Location),
		Budget:   entity.Budget{Monthly: monthly, Yearly: yearly},
		IsActive: true,
	}

	if doc := strings.TrimSpace(s.Policy); doc != "" {
		// reject bad documents now rather than on first submission
		if _, err := policy.ParsePolicyJSON([]byte(doc)); err != nil {
			return nil, err
		}
		site.RawPolicy = []byte(doc)
	}
	return site, nil
}

func (u seedUser) toEntity() (*entity.User, error) {
	if strings.TrimSpace(u.ID) == "" {
		return nil, fmt.Errorf("id is required")
	}
	role := domainwf.Role(strings.ToLower(strings.TrimSpace(u.Role)))
	if !role.IsValid() {
		return nil, fmt.Errorf("unknown role %q", u.Role)
	}
	if u.Email != "" {
		if err := utils.ValidateEmail(u.Email); err != nil {
			return nil, err
		}
	}
	if u.SiteID <= 0 {
		return nil, fmt.Errorf("site_id is required")
	}

	return &entity.User{
		ID:         strings.TrimSpace(u.ID),
		Name:       utils.SanitizeString(u.Name),
		Email:      strings.TrimSpace(u.Email),
		Role:       role,
		SiteID:     u.SiteID,
		LarkOpenID: strings.TrimSpace(u.LarkOpenID),
		IsActive:   !u.Inactive,
	}, nil
}

func orZero(s string) string {
	if strings.TrimSpace(s) == "" {
		return "0"
	}
	return strings.TrimSpace(s)
}
