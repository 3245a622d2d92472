package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewFeedsLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	l := NewLocker(client, time.Second, nil)
	err = l.WithLock(context.Background(), "close:9", func(ctx context.Context) error {
		require.True(t, mr.Exists("lock:close:9"))
		return nil
	})
	require.NoError(t, err)
}

func TestNewFailsWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), addr)
	require.Error(t, err)
	require.Contains(t, err.Error(), addr)
}
