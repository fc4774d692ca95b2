package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"knot/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy decides what happens to a request when Redis cannot be reached.
type FailPolicy int

const (
	FailOpen FailPolicy = iota
	// FailClosed answers 503 instead of letting the request through.
	FailClosed
)

var errNoRedis = errors.New("rate limit store not configured")

// storeTimeout bounds the Redis round trips of one hit, retries included.
const storeTimeout = 100 * time.Millisecond

// rateLimitBypassed reports whether APP_ENV turns limiting off. An unset
// APP_ENV counts as development.
func rateLimitBypassed() bool {
	switch os.Getenv("APP_ENV") {
	case "", "test", "development", "stress":
		return true
	}
	return false
}

// window is one fixed-window counter read.
type window struct {
	count int64
	reset time.Duration
}

// hit increments the counter for key and starts its window on the first hit.
func hit(ctx context.Context, rdb *redis.Client, key string, length time.Duration) (window, error) {
	if rdb == nil {
		return window{}, errNoRedis
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	count, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return window{}, err
	}
	if count == 1 {
		if err := rdb.Expire(ctx, key, length).Err(); err != nil {
			return window{}, err
		}
		return window{count: count, reset: length}, nil
	}
	ttl, err := rdb.PTTL(ctx, key).Result()
	if err != nil {
		return window{}, err
	}
	if ttl < 0 {
		// A previous first hit lost its EXPIRE; restart the window.
		_ = rdb.Expire(ctx, key, length).Err()
		ttl = length
	}
	return window{count: count, reset: ttl}, nil
}

// CheckRateLimit counts one request of id against resource and reports
// whether it is within limit.
func CheckRateLimit(ctx context.Context, rdb *redis.Client, resource, id string, limit int, length time.Duration) (bool, error) {
	if rateLimitBypassed() {
		return true, nil
	}
	w, err := hit(ctx, rdb, rateLimitKey(resource, id), length)
	if err != nil {
		return false, err
	}
	return w.count <= int64(limit), nil
}

func rateLimitKey(resource, id string) string {
	return fmt.Sprintf("rl:%s:%s", resource, id)
}

// RateLimit allows limit requests per window, keyed by the signed-in user or
// else the client IP. name groups routes under one counter; it defaults to
// the request path. Redis failures let the request through.
func RateLimit(rdb *redis.Client, limit int, length time.Duration, name ...string) fiber.Handler {
	return RateLimitWithPolicy(rdb, limit, length, FailOpen, name...)
}

func RateLimitWithPolicy(rdb *redis.Client, limit int, length time.Duration, policy FailPolicy, name ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rateLimitBypassed() {
			return c.Next()
		}

		id := "ip:" + c.IP()
		if uid := UserID(c); uid != "" {
			id = "user:" + uid
		}
		resource := c.Path()
		if len(name) > 0 && name[0] != "" {
			resource = name[0]
		}

		w, err := hit(c.UserContext(), rdb, rateLimitKey(resource, id), length)
		if err != nil {
			Logger.WarnContext(c.UserContext(), "rate limit store unavailable",
				slog.String("resource", resource),
				slog.String("error", err.Error()),
			)
			if policy == FailClosed {
				return models.RespondWithError(c, fiber.StatusServiceUnavailable,
					&models.AppError{Code: models.CodeUnavailable, Message: "Rate limit unavailable"})
			}
			return c.Next()
		}

		remaining := int64(limit) - w.count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if w.count > int64(limit) {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int((w.reset+time.Second-1)/time.Second)))
			return models.RespondWithError(c, fiber.StatusTooManyRequests,
				&models.AppError{Code: models.CodeRateLimited, Message: "Too many requests, try again later"})
		}
		return c.Next()
	}
}
