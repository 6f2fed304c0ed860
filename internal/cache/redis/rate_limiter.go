package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/solanabot/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

const waitPollInterval = 50 * time.Millisecond

// Limit is a request budget per sliding window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// defaultLimit applies to Wait on keys without a configured Limit.
var defaultLimit = Limit{Requests: 1, Window: time.Second}

// RateLimiter implements domain.RateLimiter with a sliding window kept in a
// sorted set per key and updated by one Lua script. Limits are shared by
// every process using the same Redis, so the external API budgets hold
// across bot instances.
type RateLimiter struct {
	c             *Client
	slidingWindow *redis.Script
	limits        map[string]Limit
}

// NewRateLimiter creates a RateLimiter. limits maps keys such as "rugcheck"
// to the budget Wait enforces for them.
func NewRateLimiter(c *Client, limits map[string]Limit) *RateLimiter {
	return &RateLimiter{
		c:             c,
		slidingWindow: redis.NewScript(slidingWindowLua),
		limits:        limits,
	}
}

// Allow reports whether one more request fits into key's window, counting
// it when it does.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	result, err := rl.slidingWindow.Run(
		ctx,
		rl.c.rdb,
		[]string{rl.c.Key("ratelimit", key)},
		time.Now().UnixMicro(),
		window.Microseconds(),
		limit,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	if len(result) < 2 {
		return false, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", key, len(result))
	}
	return result[0] == 1, nil
}

// Wait blocks until key's configured budget admits a request or ctx ends.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	lim, ok := rl.limits[key]
	if !ok || lim.Requests <= 0 || lim.Window <= 0 {
		lim = defaultLimit
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}

		allowed, err := rl.Allow(ctx, key, lim.Requests, lim.Window)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		timer.Reset(waitPollInterval)
	}
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
