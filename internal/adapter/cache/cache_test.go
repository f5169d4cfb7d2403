package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisCache_Status(t *testing.T) {
	mr, rdb := newRedis(t)
	c := NewRedisCache(rdb, time.Minute)
	ctx := context.Background()

	_, ok, err := c.GetStatus(ctx, "ORD-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetStatus(ctx, "ORD-1", "paid"))
	got, ok, err := c.GetStatus(ctx, "ORD-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "paid", got)

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.GetStatus(ctx, "ORD-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_Unreachable(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()

	_, _, err := NewRedisCache(rdb, time.Minute).GetStatus(context.Background(), "ORD-1")
	assert.Error(t, err)
}

func TestRedisIdempotencyStore_Lock(t *testing.T) {
	mr, rdb := newRedis(t)
	s := NewRedisIdempotencyStore(rdb, time.Hour)
	ctx := context.Background()

	ok, err := s.TryLock(ctx, "notify:customer", "ORD-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TryLock(ctx, "notify:customer", "ORD-1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.TryLock(ctx, "notify:merchant", "ORD-1")
	require.NoError(t, err)
	assert.True(t, ok, "scopes are independent")

	require.NoError(t, s.Unlock(ctx, "notify:customer", "ORD-1"))
	ok, err = s.TryLock(ctx, "notify:customer", "ORD-1")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Hour)
	ok, err = s.TryLock(ctx, "notify:merchant", "ORD-1")
	require.NoError(t, err)
	assert.True(t, ok, "claims expire")
}

func TestRedisIdempotencyStore_RememberRecall(t *testing.T) {
	_, rdb := newRedis(t)
	s := NewRedisIdempotencyStore(rdb, time.Hour)
	ctx := context.Background()

	_, ok, err := s.Recall(ctx, "checkout", "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Remember(ctx, "checkout", "k1", `{"orderId":"ORD-1"}`))
	v, ok, err := s.Recall(ctx, "checkout", "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"orderId":"ORD-1"}`, v)
}
