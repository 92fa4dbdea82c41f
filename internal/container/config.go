// Package container provides dependency injection and lifecycle management
// for the expense approval service.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	Database     DatabaseConfig
	Server       ServerConfig
	Auth         AuthConfig
	Lock         LockConfig
	Redis        RedisConfig
	Lark         LarkConfig
	Notification NotificationConfig

	// PolicyDefaults fill whatever a site's stored policy leaves unset
	PolicyDefaults entity.Policy
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file; ":memory:" opens a private in-memory store
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Mode            string
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// LockConfig selects the lock backend.
type LockConfig struct {
	Backend    string
	Prefix     string
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Addrs    []string
	Password string
	DB       int
}

// LarkConfig holds Lark API settings. An empty AppID disables Lark delivery.
type LarkConfig struct {
	AppID      string
	AppSecret  string
	BaseURL    string
	APITimeout time.Duration
}

// NotificationConfig holds retry worker settings.
type NotificationConfig struct {
	RetryInterval time.Duration
	MaxAttempts   int
	BatchSize     int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/expenses.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Mode:            "release",
		},
		Auth: AuthConfig{
			Issuer:   "expense-approval",
			TokenTTL: 24 * time.Hour,
		},
		Lock: LockConfig{
			Backend:    "local",
			Prefix:     "expense-approval:lock:",
			Expiry:     10 * time.Second,
			Tries:      32,
			RetryDelay: 100 * time.Millisecond,
		},
		Redis: RedisConfig{
			Addrs: []string{"localhost:6379"},
		},
		Lark: LarkConfig{
			APITimeout: 30 * time.Second,
		},
		Notification: NotificationConfig{
			RetryInterval: time.Minute,
			MaxAttempts:   5,
			BatchSize:     50,
		},
		PolicyDefaults: entity.Policy{
			DuplicateWindowDays: 7,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Lock.Backend != "local" && c.Lock.Backend != "redis" {
		return fmt.Errorf("unknown lock backend %q", c.Lock.Backend)
	}
	if c.Lock.Backend == "redis" && len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("redis.addrs is required for the redis lock backend")
	}
	return nil
}
