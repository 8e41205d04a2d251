package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
)

// ErrLockNotObtained is returned when another holder keeps the lock past the wait.
var ErrLockNotObtained = errors.New("lock not obtained")

// Locker hands out distributed mutexes backed by redislock.
type Locker struct {
	c    *Client
	wait time.Duration
}

// NewLocker creates a locker that retries for up to wait before giving up.
func NewLocker(c *Client, wait time.Duration) *Locker {
	if wait <= 0 {
		wait = 10 * time.Second
	}
	return &Locker{c: c, wait: wait}
}

// Lock obtains name for ttl and returns its release function.
func (l *Locker) Lock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := l.c.locker.Obtain(ctx, l.c.lockKey(name), ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), int(l.wait/(100*time.Millisecond))),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%s: %w", name, ErrLockNotObtained)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", name, err)
	}

	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("release lock %s: %w", name, err)
		}
		return nil
	}, nil
}
