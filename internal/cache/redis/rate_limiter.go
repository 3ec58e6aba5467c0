package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

var slidingWindow = redis.NewScript(slidingWindowLua)

// maxWaitStep caps a single sleep in Wait so other callers draining the
// window are noticed promptly.
const maxWaitStep = time.Second

// RateLimiter is a sliding-window limiter shared by every process on the
// same Redis. It guards the DEX data providers' quotas and the HTTP API.
type RateLimiter struct {
	rdb    *redis.Client
	budget int
	window time.Duration
}

// NewRateLimiter admits one Wait per second per key.
func NewRateLimiter(c *Client) *RateLimiter {
	return NewRateLimiterWithBudget(c, 1, time.Second)
}

// NewRateLimiterWithBudget sets the budget Wait enforces per key.
func NewRateLimiterWithBudget(c *Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{rdb: c.Underlying(), budget: max(limit, 1), window: cmpOr(window, time.Second)}
}

func cmpOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// Reserve counts one request against key when the window has room. When it
// does not, retryAfter is how long until the oldest request ages out.
func (rl *RateLimiter) Reserve(ctx context.Context, key string, limit int, window time.Duration) (ok bool, retryAfter time.Duration, err error) {
	res, err := slidingWindow.Run(ctx, rl.rdb,
		[]string{"ratelimit:" + key},
		time.Now().UnixMicro(), window.Microseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) != 3 {
		return false, 0, fmt.Errorf("redis: rate limit %s: malformed reply %v", key, res)
	}
	return res[0] == 1, time.Duration(res[2]) * time.Microsecond, nil
}

// Allow is Reserve without the retry hint.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	ok, _, err := rl.Reserve(ctx, key, limit, window)
	return ok, err
}

// Wait blocks until key has room under the configured budget.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	for {
		ok, retryAfter, err := rl.Reserve(ctx, key, rl.budget, rl.window)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		timer := time.NewTimer(min(retryAfter, maxWaitStep))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
