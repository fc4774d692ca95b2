// Package database handles database connections and migrations.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"knot/internal/config"
	"knot/internal/middleware"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	schemaTimeout  = 2 * time.Minute
	connectTries   = 5
	connectBackoff = 500 * time.Millisecond
)

// ConnectOptions tunes what Connect does after the connection is open.
type ConnectOptions struct {
	ApplySchema bool
}

// DSN builds the libpq keyword/value string for dbName on the configured
// server. An empty DBSSLMode means disable.
func DSN(cfg *config.Config, dbName string) string {
	sslMode := cfg.DBSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, dbName, sslMode)
}

// Connect opens the database, configures the pool and applies the schema.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	return ConnectWithOptions(cfg, ConnectOptions{ApplySchema: true})
}

// ConnectWithOptions opens the database and optionally applies the schema.
// The first ping is retried while postgres is still starting.
func ConnectWithOptions(cfg *config.Config, opts ConnectOptions) (*gorm.DB, error) {
	log := middleware.Logger.With(slog.String("host", cfg.DBHost), slog.String("db", cfg.DBName))

	db, err := gorm.Open(postgres.Open(DSN(cfg, cfg.DBName)), &gorm.Config{
		Logger:               NewGormLogger(middleware.Logger),
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := configurePool(db, cfg); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()

	if err := pingWithRetry(ctx, db, connectTries, connectBackoff, log); err != nil {
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	log.Info("database connected")

	if opts.ApplySchema {
		if err := ApplySchema(ctx, db, cfg); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// pingWithRetry pings up to tries times, doubling the wait between attempts.
func pingWithRetry(ctx context.Context, db *gorm.DB, tries int, wait time.Duration, log *slog.Logger) error {
	var err error
	for attempt := 1; attempt <= tries; attempt++ {
		if err = Ping(ctx, db); err == nil {
			return nil
		}
		if attempt == tries {
			break
		}
		log.Warn("database not ready", slog.Int("attempt", attempt), slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}

func configurePool(db *gorm.DB, cfg *config.Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if n := cfg.DBMaxOpenConns; n > 0 {
		sqlDB.SetMaxOpenConns(n)
	}
	if n := cfg.DBMaxIdleConns; n > 0 {
		sqlDB.SetMaxIdleConns(n)
	}
	if m := cfg.DBConnMaxLifetimeMinutes; m > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(m) * time.Minute)
	}
	return nil
}

// Ping checks that the underlying connection is alive.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
