package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultLoginLimit  = 10
	defaultLoginWindow = 15 * time.Minute
)

// LoginLimiter is a fixed-window request counter backed by Redis.
// Key format: ratelimit:login:<client_key>
type LoginLimiter struct {
	client redis.Cmdable
	limit  int64
	window time.Duration
}

// NewLoginLimiter creates a limiter allowing limit requests per window.
func NewLoginLimiter(client redis.Cmdable, limit int, window time.Duration) *LoginLimiter {
	if limit <= 0 {
		limit = defaultLoginLimit
	}
	if window <= 0 {
		window = defaultLoginWindow
	}
	return &LoginLimiter{client: client, limit: int64(limit), window: window}
}

// Allow counts one request for key and reports whether it is within the
// limit. When it is not, retryAfter is the remaining window.
func (l *LoginLimiter) Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error) {
	k := l.key(key)

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, l.window)
		ttl = pipe.TTL(ctx, k)
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("rate limit check: %w", err)
	}

	if incr.Val() > l.limit {
		retryAfter = ttl.Val()
		if retryAfter <= 0 {
			retryAfter = l.window
		}
		return false, retryAfter, nil
	}
	return true, 0, nil
}

func (l *LoginLimiter) key(clientKey string) string {
	return fmt.Sprintf("ratelimit:login:%s", clientKey)
}
