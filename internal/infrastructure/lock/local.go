// Package lock provides keyed mutual exclusion for the approval workflow.
package lock

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var (
	// ErrEmptyLockKey is returned when an empty lock key is provided
	ErrEmptyLockKey = errors.New("lock key cannot be empty")
	// ErrNilLockFn is returned when a nil function is passed to WithLock
	ErrNilLockFn = errors.New("lock function is nil")
)

// Local serializes callers per key inside one process
type Local struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	// ch has capacity 1; holding the token means holding the lock
	ch   chan struct{}
	refs int
}

// NewLocal creates an in-process keyed locker
func NewLocal() *Local {
	return &Local{locks: make(map[string]*keyLock)}
}

// WithLock runs fn while holding the lock for key.
// Waiting is abandoned when ctx is done.
func (l *Local) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if fn == nil {
		return ErrNilLockFn
	}
	if strings.TrimSpace(key) == "" {
		return ErrEmptyLockKey
	}

	kl := l.acquireRef(key)
	defer l.releaseRef(key, kl)

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-kl.ch }()

	return fn(ctx)
}

func (l *Local) acquireRef(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *Local) releaseRef(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// size reports how many keys are currently tracked
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
