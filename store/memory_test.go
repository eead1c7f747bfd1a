package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryKV_SetGet(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	_, ok, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, kv.Set(ctx, "k", "v", time.Minute))
	value, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", value)
}

func TestMemoryKV_SetNX(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	stored, err := kv.SetNX(ctx, "k", "first", time.Minute)
	require.NoError(t, err)
	require.True(t, stored)

	stored, err = kv.SetNX(ctx, "k", "second", time.Minute)
	require.NoError(t, err)
	require.False(t, stored)

	value, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "first", value)
}

func TestMemoryKV_IncrWindow(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	now := time.Unix(1706745600, 0)
	kv.SetClock(func() time.Time { return now })

	for want := int64(1); want <= 3; want++ {
		count, err := kv.Incr(ctx, "ratelimit:buyer", time.Minute)
		require.NoError(t, err)
		require.Equal(t, want, count)
	}

	ttl, err := kv.TTL(ctx, "ratelimit:buyer")
	require.NoError(t, err)
	require.Equal(t, time.Minute, ttl)

	// The window expires, the counter starts over.
	now = now.Add(61 * time.Second)
	count, err := kv.Incr(ctx, "ratelimit:buyer", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestMemoryKV_Expiry(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	now := time.Unix(1706745600, 0)
	kv.SetClock(func() time.Time { return now })

	stored, err := kv.SetNX(ctx, "idempotency:m1", "1", 15*time.Minute)
	require.NoError(t, err)
	require.True(t, stored)

	now = now.Add(16 * time.Minute)
	stored, err = kv.SetNX(ctx, "idempotency:m1", "1", 15*time.Minute)
	require.NoError(t, err)
	require.True(t, stored)
}
