package redisx

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Sliding window over a sorted set: drop entries older than the window,
// count the rest, admit and record the request when under the limit.
// Returns the remaining budget, or -1 when the request is rejected.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count < limit then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, window)
  return limit - count - 1
end
return -1
`)

type RateLimiter struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(rdb redis.Scripter, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{rdb: rdb, limit: limit, window: window, now: time.Now}
}

// Allow records one request for subject on route and reports whether it is
// within the limit, plus the remaining budget.
func (l *RateLimiter) Allow(ctx context.Context, route, subject string) (bool, int, error) {
	key := fmt.Sprintf(KeyRateLimit, route, subject)
	now := l.now().UnixMilli()
	res, err := slidingWindow.Run(ctx, l.rdb, []string{key},
		strconv.FormatInt(now, 10),
		strconv.FormatInt(l.window.Milliseconds(), 10),
		strconv.Itoa(l.limit),
		strconv.FormatInt(now, 10)+"-"+uuid.NewString(),
	).Int()
	if err != nil {
		return false, 0, err
	}
	if res < 0 {
		return false, 0, nil
	}
	return true, res, nil
}

func (l *RateLimiter) Limit() int { return l.limit }
