package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"knot/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by the getters when the key is absent or caching is off.
var ErrMiss = errors.New("cache miss")

// GetJSON decodes the value at key into dest.
func GetJSON(ctx context.Context, key string, dest any) error {
	if client == nil {
		return ErrMiss
	}
	raw, err := client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return err
	}
	return json.Unmarshal(raw, dest)
}

// SetJSON stores value at key as JSON. It is a no-op without a client.
func SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if client == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, raw, ttl).Err()
}

// GetBytes returns the raw value stored at key.
func GetBytes(ctx context.Context, key string) ([]byte, error) {
	if client == nil {
		return nil, ErrMiss
	}
	raw, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return raw, err
}

// SetBytes stores raw bytes at key. It is a no-op without a client.
func SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if client == nil {
		return nil
	}
	return client.Set(ctx, key, value, ttl).Err()
}

// Aside loads dest from key, or calls fetch to fill dest and then caches it.
// Cache read and write failures fall through to fetch and are only logged.
func Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	if client == nil {
		return fetch()
	}

	err := GetJSON(ctx, key, dest)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrMiss) {
		middleware.Logger.WarnContext(ctx, "cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	if err := fetch(); err != nil {
		return err
	}

	if err := SetJSON(ctx, key, dest, ttl); err != nil {
		middleware.Logger.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	return nil
}

// Invalidate removes key. It is a no-op without a client.
func Invalidate(ctx context.Context, keys ...string) {
	if client == nil || len(keys) == 0 {
		return
	}
	if err := client.Del(ctx, keys...).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "cache invalidate failed", slog.Any("keys", keys), slog.String("error", err.Error()))
	}
}

// DeleteMatching removes every key matching pattern using SCAN.
func DeleteMatching(ctx context.Context, pattern string) (int, error) {
	if client == nil {
		return 0, nil
	}

	deleted := 0
	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}
