package config

import (
	"github.com/garyjia/expense-approval/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() (*container.Config, error) {
	defaults, err := c.Policy.ToPolicy()
	if err != nil {
		return nil, err
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
		},
		Server: container.ServerConfig{
			Host:            c.Server.Host,
			Port:            c.Server.Port,
			ReadTimeout:     c.Server.ReadTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			ShutdownTimeout: c.Server.ShutdownTimeout,
			Mode:            c.Server.Mode,
		},
		Auth: container.AuthConfig{
			JWTSecret: c.Auth.JWTSecret,
			Issuer:    c.Auth.Issuer,
			TokenTTL:  c.Auth.TokenTTL,
		},
		Lock: container.LockConfig{
			Backend:    c.Lock.Backend,
			Prefix:     c.Lock.Prefix,
			Expiry:     c.Lock.Expiry,
			Tries:      c.Lock.Tries,
			RetryDelay: c.Lock.RetryDelay,
		},
		Redis: container.RedisConfig{
			Addrs:    c.Redis.Addrs,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		},
		Lark: container.LarkConfig{
			AppID:      c.Lark.AppID,
			AppSecret:  c.Lark.AppSecret,
			BaseURL:    c.Lark.BaseURL,
			APITimeout: c.Lark.APITimeout,
		},
		Notification: container.NotificationConfig{
			RetryInterval: c.Notification.RetryInterval,
			MaxAttempts:   c.Notification.MaxAttempts,
			BatchSize:     c.Notification.BatchSize,
		},
		PolicyDefaults: defaults,
	}, nil
}
