package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"bounty-quest/logging"
	"bounty-quest/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// windowLayout buckets requests by minute, e.g. 202603011204.
const windowLayout = "200601021504"

// Counter is the part of the redis client the limiter needs; *redis.Client satisfies it.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter int
	Limit      int
}

// RateLimiter is a fixed one-minute window counter per client kept in Redis.
type RateLimiter struct {
	counter Counter
	limit   int
	clock   clockwork.Clock
}

func NewRateLimiter(counter Counter, perMinute int, clock clockwork.Clock) *RateLimiter {
	return &RateLimiter{counter: counter, limit: perMinute, clock: clock}
}

func (l *RateLimiter) Allow(ctx context.Context, clientID string) (*RateLimitResult, error) {
	now := l.clock.Now().UTC()
	window := now.Truncate(time.Minute)
	key := fmt.Sprintf("rl:%s:%s", clientID, window.Format(windowLayout))

	count, err := l.counter.Incr(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	// first hit in the window sets the expiry so old keys clean themselves up
	if count == 1 {
		if err := l.counter.Expire(ctx, key, 2*time.Minute).Err(); err != nil {
			return nil, err
		}
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	retryAfter := int(window.Add(time.Minute).Sub(now).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}

	return &RateLimitResult{
		Allowed:    count <= int64(l.limit),
		Remaining:  remaining,
		RetryAfter: retryAfter,
		Limit:      l.limit,
	}, nil
}

// RateLimit rejects clients over their per-minute budget with 429. If Redis is unreachable the
// request is let through.
func RateLimit(limiter *RateLimiter, logger logging.Logger) fiber.Handler {
	logger = logger.With("component", "rate_limit")

	return func(c *fiber.Ctx) error {
		result, err := limiter.Allow(c.UserContext(), c.IP())
		if err != nil {
			logger.Warn("rate limiter unavailable", "error", err)
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			metrics.RateLimitedTotal.Inc()
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(result.RetryAfter))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "rate limit exceeded",
				"retry_after": result.RetryAfter,
			})
		}
		return c.Next()
	}
}
