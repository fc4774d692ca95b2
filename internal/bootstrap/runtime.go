// Package bootstrap wires the process-wide dependencies shared by the server
// and the command-line tools.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"knot/internal/cache"
	"knot/internal/config"
	"knot/internal/database"
	"knot/internal/middleware"
	"knot/internal/storage"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// ApplySchema runs migrations according to DB_SCHEMA_MODE after connecting.
	ApplySchema bool
}

// Runtime holds the connections opened by InitRuntime.
type Runtime struct {
	Config *config.Config
	DB     *gorm.DB
	// Redis is nil when the server is unreachable; caching is then disabled.
	Redis  *redis.Client
	Bucket storage.Bucket
}

// InitRuntime connects to the database, Redis and the object bucket.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: opts.ApplySchema})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt := &Runtime{Config: cfg, DB: db}

	// Init Redis (may result in nil client if unreachable)
	rt.Redis = cache.InitRedis(cfg.RedisURL)

	bucket, err := storage.New(cfg)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("storage init failed: %w", err)
	}
	ensureCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := storage.EnsureBucket(ensureCtx, bucket); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("ensure bucket %s: %w", bucket.Name(), err)
	}
	rt.Bucket = bucket

	return rt, nil
}

// Services builds the service graph on top of the runtime connections.
func (r *Runtime) Services() *Services {
	return NewServices(r.Config, r.DB, r.Bucket)
}

// Close releases Redis and the database pool.
func (r *Runtime) Close() error {
	var errs []error
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		cache.SetClient(nil)
	}
	if r.DB != nil {
		if sqlDB, err := r.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close database: %w", err))
			}
		}
	}
	if len(errs) == 0 {
		middleware.Logger.Info("runtime closed")
	}
	return errors.Join(errs...)
}
