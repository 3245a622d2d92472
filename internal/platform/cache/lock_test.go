package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	l := NewLocker(rdb, time.Second, nil)
	l.wait = 150 * time.Millisecond
	return l, mr
}

func TestWithLockRunsAndReleases(t *testing.T) {
	l, mr := newTestLocker(t)
	ran := false
	err := l.WithLock(context.Background(), "picking:2025-08-11", func(ctx context.Context) error {
		ran = true
		require.True(t, mr.Exists("lock:picking:2025-08-11"))
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
	require.False(t, mr.Exists("lock:picking:2025-08-11"))
}

func TestWithLockRejectsConcurrentHolder(t *testing.T) {
	l, _ := newTestLocker(t)
	err := l.WithLock(context.Background(), "close:7", func(ctx context.Context) error {
		inner := l.WithLock(ctx, "close:7", func(context.Context) error {
			t.Fatal("nested holder must not run")
			return nil
		})
		require.ErrorIs(t, inner, ErrLockHeld)
		require.ErrorIs(t, inner, shared.ErrConflict)
		return nil
	})
	require.NoError(t, err)
}
