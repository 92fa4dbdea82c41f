package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/garyjia/expense-approval/internal/application/policy"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Lock         LockConfig         `mapstructure:"lock"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Lark         LarkConfig         `mapstructure:"lark"`
	Policy       PolicyConfig       `mapstructure:"policy"`
	Notification NotificationConfig `mapstructure:"notification"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Mode            string        `mapstructure:"mode"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// AuthConfig holds bearer token settings
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// LockConfig selects and tunes the per-expense lock
type LockConfig struct {
	// Backend is "local" for a single replica or "redis" for several
	Backend    string        `mapstructure:"backend"`
	Prefix     string        `mapstructure:"prefix"`
	Expiry     time.Duration `mapstructure:"expiry"`
	Tries      int           `mapstructure:"tries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// RedisConfig holds redis connection settings
type RedisConfig struct {
	Addrs    []string `mapstructure:"addrs"`
	Password string   `mapstructure:"password"`
	DB       int      `mapstructure:"db"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	AppID      string        `mapstructure:"app_id"`
	AppSecret  string        `mapstructure:"app_secret"`
	BaseURL    string        `mapstructure:"base_url"`
	APITimeout time.Duration `mapstructure:"api_timeout"`
}

// PolicyConfig is the policy applied to fields a site leaves unset.
// Amounts are strings so YAML floats never touch money.
type PolicyConfig struct {
	DuplicateWindowDays      int               `mapstructure:"duplicate_window_days"`
	DuplicateAmountTolerance string            `mapstructure:"duplicate_amount_tolerance"`
	PerCategoryLimits        map[string]string `mapstructure:"per_category_limits"`
	CashMax                  string            `mapstructure:"cash_max"`
	RequireDirectorAbove     map[string]string `mapstructure:"require_director_above"`
	WeekendDisallow          []string          `mapstructure:"weekend_disallow"`
}

// NotificationConfig tunes the retry worker
type NotificationConfig struct {
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BatchSize     int           `mapstructure:"batch_size"`
}

// Load loads configuration from file and environment variables.
// A .env file in the working directory is read first when present.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.path", "data/expenses.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("auth.issuer", "expense-approval")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("lock.backend", "local")
	v.SetDefault("lock.prefix", "expense-approval:lock:")
	v.SetDefault("lock.expiry", 10*time.Second)
	v.SetDefault("lock.tries", 32)
	v.SetDefault("lock.retry_delay", 100*time.Millisecond)

	v.SetDefault("redis.addrs", []string{"localhost:6379"})

	v.SetDefault("lark.api_timeout", 30*time.Second)

	v.SetDefault("policy.duplicate_window_days", 7)
	v.SetDefault("policy.duplicate_amount_tolerance", "0")
	v.SetDefault("policy.cash_max", "0")

	v.SetDefault("notification.retry_interval", time.Minute)
	v.SetDefault("notification.max_attempts", 5)
	v.SetDefault("notification.batch_size", 50)
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	// Sensitive credentials from environment
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.path", "DATABASE_PATH")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}

	switch c.Lock.Backend {
	case "local":
	case "redis":
		if len(c.Redis.Addrs) == 0 {
			return fmt.Errorf("redis.addrs is required when lock.backend is redis")
		}
		if c.Lock.Expiry <= 0 {
			return fmt.Errorf("lock.expiry must be positive")
		}
		if c.Lock.Tries < 1 {
			return fmt.Errorf("lock.tries must be at least 1")
		}
	default:
		return fmt.Errorf("lock.backend must be local or redis, got %q", c.Lock.Backend)
	}

	if c.Lark.AppID != "" && c.Lark.AppSecret == "" {
		return fmt.Errorf("lark.app_secret is required when lark.app_id is set")
	}

	if _, err := c.Policy.ToPolicy(); err != nil {
		return fmt.Errorf("policy defaults: %w", err)
	}

	return nil
}

// ToPolicy converts the configured defaults to a validated entity.Policy
func (p PolicyConfig) ToPolicy() (entity.Policy, error) {
	out := entity.Policy{
		DuplicateWindowDays: p.DuplicateWindowDays,
		WeekendDisallow:     append([]string(nil), p.WeekendDisallow...),
	}

	var err error
	if out.DuplicateAmountTolerance, err = parseAmount("duplicate_amount_tolerance", p.DuplicateAmountTolerance); err != nil {
		return entity.Policy{}, err
	}
	if out.CashMax, err = parseAmount("cash_max", p.CashMax); err != nil {
		return entity.Policy{}, err
	}
	if out.PerCategoryLimits, err = parseCategoryAmounts("per_category_limits", p.PerCategoryLimits); err != nil {
		return entity.Policy{}, err
	}
	if out.RequireDirectorAbove, err = parseCategoryAmounts("require_director_above", p.RequireDirectorAbove); err != nil {
		return entity.Policy{}, err
	}

	if err := policy.Validate(&out); err != nil {
		return entity.Policy{}, err
	}
	return out, nil
}

func parseAmount(field, s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

// parseCategoryAmounts reads category keys case-insensitively; viper lower-cases map keys
func parseCategoryAmounts(field string, in map[string]string) (map[entity.Category]decimal.Decimal, error) {
	out := make(map[entity.Category]decimal.Decimal, len(in))
	for k, raw := range in {
		c, ok := entity.ParseCategory(k)
		if !ok {
			return nil, fmt.Errorf("%s: unknown category %q", field, k)
		}
		d, err := parseAmount(field+"."+k, raw)
		if err != nil {
			return nil, err
		}
		out[c] = d
	}
	return out, nil
}
