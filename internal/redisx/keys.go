package redisx

import "time"

const (
	// order_status:{order_id} -> {"order_id":..,"user_id":..,"status":"..","updated_at":".."}
	KeyOrderStatus = "order_status:%d"

	// dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// ratelimit:{route}:{subject} -> sorted set of request timestamps
	KeyRateLimit = "ratelimit:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
