package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

// ErrLockHeld is returned when another process holds the lock.
var ErrLockHeld = fmt.Errorf("%w: operation already running", shared.ErrConflict)

// Locker serialises work on a key across processes.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
	logger *slog.Logger
}

// NewLocker builds a Locker backed by rdb. ttl bounds how long a crashed holder blocks others.
func NewLocker(rdb redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{client: redislock.New(rdb), ttl: ttl, wait: 2 * time.Second, logger: logger}
}

// WithLock runs fn while holding key. fn gets a context cancelled once the lock TTL elapses.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	lock, err := l.client.Obtain(waitCtx, "lock:"+key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(100 * time.Millisecond),
	})
	cancel()
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		return ErrLockHeld
	}
	if err != nil {
		return fmt.Errorf("platform/cache: obtain lock %s: %w", key, err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("release lock", slog.String("key", key), slog.Any("error", err))
		}
	}()

	runCtx, stop := context.WithTimeout(ctx, l.ttl)
	defer stop()
	return fn(runCtx)
}
