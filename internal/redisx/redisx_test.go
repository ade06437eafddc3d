package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := New(mr.Addr())
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := Connect(context.Background(), mr.Addr())
	require.NoError(t, err)
	_ = rdb.Close()

	mr.Close()
	_, err = Connect(context.Background(), mr.Addr())
	assert.Error(t, err)
}

func TestStatusCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	c := NewStatusCache(rdb, time.Minute)

	_, ok, err := c.GetStatus(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	v := orders.StatusView{OrderID: 1, UserID: 9, Status: orders.StatusPaid, UpdatedAt: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, c.PutStatus(ctx, v))

	got, ok, err := c.GetStatus(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, v, got)
	assert.Equal(t, time.Minute, mr.TTL("order_status:1"))

	require.NoError(t, c.Delete(ctx, 1))
	_, ok, _ = c.GetStatus(ctx, 1)
	assert.False(t, ok)
}

func TestStatusCachePutIfNewer(t *testing.T) {
	ctx := context.Background()
	_, rdb := newRedis(t)
	c := NewStatusCache(rdb, 0)
	t0 := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	wrote, err := c.PutIfNewer(ctx, orders.StatusView{OrderID: 2, Status: orders.StatusShipped, UpdatedAt: t0.Add(time.Minute)})
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = c.PutIfNewer(ctx, orders.StatusView{OrderID: 2, Status: orders.StatusPaid, UpdatedAt: t0})
	require.NoError(t, err)
	assert.False(t, wrote)

	got, _, _ := c.GetStatus(ctx, 2)
	assert.Equal(t, orders.StatusShipped, got.Status)
}

func TestStatusCacheCorruptValue(t *testing.T) {
	mr, rdb := newRedis(t)
	require.NoError(t, mr.Set("order_status:3", "{not json"))

	_, _, err := NewStatusCache(rdb, 0).GetStatus(context.Background(), 3)
	assert.Error(t, err)
}

func TestDedup(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	d := NewDedup(rdb, "projector")

	seen, err := d.Seen(ctx, "ev-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, d.Mark(ctx, "ev-1"))
	seen, err = d.Seen(ctx, "ev-1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, TTLDedup, mr.TTL("dedup:projector:ev-1"))
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	ctx := context.Background()
	_, rdb := newRedis(t)
	l := NewRateLimiter(rdb, 2, time.Second)
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, remaining, err := l.Allow(ctx, "orders.create", "user:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)

	ok, remaining, err = l.Allow(ctx, "orders.create", "user:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, remaining)

	ok, _, err = l.Allow(ctx, "orders.create", "user:1")
	require.NoError(t, err)
	assert.False(t, ok)

	// other subjects have their own window
	ok, _, err = l.Allow(ctx, "orders.create", "user:2")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(1500 * time.Millisecond)
	ok, _, err = l.Allow(ctx, "orders.create", "user:1")
	require.NoError(t, err)
	assert.True(t, ok, "old entries slide out of the window")
}

func TestRateLimiterRedisDown(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()

	_, _, err := NewRateLimiter(rdb, 1, time.Second).Allow(context.Background(), "r", "s")
	assert.Error(t, err)
}
