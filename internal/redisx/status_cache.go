package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/redis/go-redis/v9"
)

// StatusCache stores orders.StatusView as JSON under KeyOrderStatus.
type StatusCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewStatusCache(rdb redis.Cmdable, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = TTLStatusCache
	}
	return &StatusCache{rdb: rdb, ttl: ttl}
}

func (c *StatusCache) GetStatus(ctx context.Context, orderID int64) (orders.StatusView, bool, error) {
	s, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return orders.StatusView{}, false, nil
	}
	if err != nil {
		return orders.StatusView{}, false, err
	}
	var v orders.StatusView
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return orders.StatusView{}, false, fmt.Errorf("decode cached status: %w", err)
	}
	return v, true, nil
}

func (c *StatusCache) PutStatus(ctx context.Context, v orders.StatusView) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf(KeyOrderStatus, v.OrderID), b, c.ttl).Err()
}

// PutIfNewer writes v unless the cached entry has a later updated_at. It
// reports whether the write happened. Not atomic; good enough for one
// projector consuming a partition in order.
func (c *StatusCache) PutIfNewer(ctx context.Context, v orders.StatusView) (bool, error) {
	cur, ok, err := c.GetStatus(ctx, v.OrderID)
	if err != nil {
		return false, err
	}
	if ok && cur.UpdatedAt.After(v.UpdatedAt) {
		return false, nil
	}
	return true, c.PutStatus(ctx, v)
}

func (c *StatusCache) Delete(ctx context.Context, orderID int64) error {
	return c.rdb.Del(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Err()
}
