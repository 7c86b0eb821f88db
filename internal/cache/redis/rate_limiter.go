package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

// RateLimiter implements domain.RateLimiter with a fixed-window counter:
// one INCR per request on a key that expires with its window.
type RateLimiter struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.Underlying(), now: time.Now}
}

// rateLimitKey buckets key into the window containing now.
func rateLimitKey(key string, window time.Duration, now time.Time) string {
	slot := now.UnixMilli() / window.Milliseconds()
	return "ratelimit:" + key + ":" + strconv.FormatInt(slot, 10)
}

// Allow counts the request and reports whether it is within limit for the
// current window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window < time.Millisecond {
		return true, nil
	}
	k := rateLimitKey(key, window, rl.now())

	pipe := rl.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.PExpire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	return incr.Val() <= int64(limit), nil
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
