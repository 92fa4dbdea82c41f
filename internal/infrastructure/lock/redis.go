package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when the lock could not be acquired within the configured tries
var ErrLockTimeout = errors.New("timed out acquiring lock")

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Options configures the distributed lock
type Options struct {
	// Prefix namespaces keys in redis
	Prefix string
	// Expiry bounds how long a crashed holder can block others
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

// DefaultOptions returns defaults tuned for short approval transactions
func DefaultOptions() Options {
	return Options{
		Prefix:     "expense-approval:lock:",
		Expiry:     10 * time.Second,
		Tries:      32,
		RetryDelay: 100 * time.Millisecond,
	}
}

// Redis serializes callers per key across service replicas using redsync
type Redis struct {
	rs     *redsync.Redsync
	opts   Options
	logger Logger
}

// NewRedis creates a distributed locker on top of a go-redis client
func NewRedis(client goredislib.UniversalClient, opts Options, logger Logger) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if opts.Expiry <= 0 {
		return nil, fmt.Errorf("lock expiry must be greater than 0")
	}
	if opts.Tries < 1 {
		return nil, fmt.Errorf("lock tries must be at least 1")
	}

	pool := goredis.NewPool(client)
	return &Redis{rs: redsync.New(pool), opts: opts, logger: logger}, nil
}

// WithLock runs fn while holding the distributed lock for key.
// The lock is released even if fn panics.
func (r *Redis) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if fn == nil {
		return ErrNilLockFn
	}
	if strings.TrimSpace(key) == "" {
		return ErrEmptyLockKey
	}

	mutex := r.rs.NewMutex(
		r.opts.Prefix+key,
		redsync.WithExpiry(r.opts.Expiry),
		redsync.WithTries(r.opts.Tries),
		redsync.WithRetryDelay(r.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		r.logger.Error("Failed to acquire lock", "lock_key", key, "error", err)
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			return fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		return fmt.Errorf("acquire lock %s: %w", key, err)
	}

	defer func() {
		// release with a fresh context so a cancelled request still unlocks
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if ok, err := mutex.UnlockContext(unlockCtx); !ok || err != nil {
			r.logger.Error("Failed to release lock", "lock_key", key, "unlock_ok", ok, "error", err)
		}
	}()

	return fn(ctx)
}
