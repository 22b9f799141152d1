package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// IncrWithTTL increments key and starts its TTL on the first hit, so a
// window is anchored at its first request.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	var incr *redis.IntCmd
	var left *redis.DurationCmd
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		left = p.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	count := incr.Val()
	// TTL -1 means the key exists without expiry: first hit, or an earlier
	// Expire was lost.
	if ttl > 0 && left.Val() < 0 {
		if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// FixedWindowAllow counts a hit against scope and reports whether it is
// within limit for the current window.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	count, err := c.IncrWithTTL(ctx, c.RateLimitKey(scope), window)
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}

// AcquireCooldown claims scope for window. When it is already held it
// reports false and the time left.
func (c *Client) AcquireCooldown(ctx context.Context, scope string, window time.Duration) (bool, time.Duration, error) {
	if err := c.ready(); err != nil {
		return false, 0, err
	}
	k := c.CooldownKey(scope)
	ok, err := c.rdb.SetNX(ctx, k, "1", window).Result()
	if err != nil || ok {
		return ok, 0, err
	}
	remaining, err := c.rdb.TTL(ctx, k).Result()
	if err != nil {
		return false, 0, err
	}
	return false, max(remaining, 0), nil
}

// ReleaseCooldown frees scope so a failed attempt does not block a retry.
func (c *Client) ReleaseCooldown(ctx context.Context, scope string) error {
	return c.Del(ctx, c.CooldownKey(scope))
}
