package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"knot/internal/middleware"

	"gorm.io/gorm"
)

// migrationLockKey is the postgres advisory lock held while migrating, so
// replicas starting together apply each script once.
const migrationLockKey int64 = 0x6b6e6f74 // "knot"

// MigrationStore reads and writes the migration_logs bookkeeping.
type MigrationStore interface {
	GetAppliedMigrations(ctx context.Context) ([]int, error)
	ApplyMigration(ctx context.Context, version int, name, sql string) error
	RemoveMigration(ctx context.Context, version int, sql string) error
}

// MigrationLog is one applied migration.
type MigrationLog struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255"`
	AppliedAt time.Time `gorm:"autoCreateTime"`
}

func (MigrationLog) TableName() string {
	return "migration_logs"
}

type migrationStore struct {
	db *gorm.DB
}

func NewMigrationStore(db *gorm.DB) MigrationStore {
	return &migrationStore{db: db}
}

// GetAppliedMigrations returns applied versions in ascending order. A missing
// log table means nothing was applied yet.
func (s *migrationStore) GetAppliedMigrations(ctx context.Context) ([]int, error) {
	var versions []int
	err := s.db.WithContext(ctx).Model(&MigrationLog{}).Order("version ASC").Pluck("version", &versions).Error
	switch {
	case err == nil:
		return versions, nil
	case errors.Is(err, gorm.ErrRecordNotFound), isMissingTableError(err):
		return []int{}, nil
	default:
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
}

func isMissingTableError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no such table") ||
		(strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist"))
}

func (s *migrationStore) ApplyMigration(ctx context.Context, version int, name, sql string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", version, name, err)
		}
		if err := tx.Create(&MigrationLog{Version: version, Name: name}).Error; err != nil {
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
		return nil
	})
}

func (s *migrationStore) RemoveMigration(ctx context.Context, version int, sql string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to run rollback SQL for migration %d: %w", version, err)
		}
		if err := tx.Where("version = ?", version).Delete(&MigrationLog{}).Error; err != nil {
			return fmt.Errorf("failed to remove migration record %d: %w", version, err)
		}
		return nil
	})
}

const ensureMigrationLogTableSQL = `
CREATE TABLE IF NOT EXISTS migration_logs (
	version BIGINT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// RunMigrations applies every embedded migration not yet in migration_logs.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	return withMigrationLock(ctx, db, func(conn *gorm.DB) error {
		return runMigrations(ctx, conn, NewMigrationStore(conn), migrations)
	})
}

// withMigrationLock runs fn on one pinned connection holding the advisory
// lock. Other dialects run fn unlocked.
func withMigrationLock(ctx context.Context, db *gorm.DB, fn func(*gorm.DB) error) error {
	if db.Dialector.Name() != "postgres" {
		return fn(db)
	}
	return db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := conn.Exec("SELECT pg_advisory_lock(?)", migrationLockKey).Error; err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		defer func() {
			if err := conn.Exec("SELECT pg_advisory_unlock(?)", migrationLockKey).Error; err != nil {
				middleware.Logger.WarnContext(ctx, "release migration lock failed", slog.String("error", err.Error()))
			}
		}()
		return fn(conn)
	})
}

func runMigrations(ctx context.Context, db *gorm.DB, store MigrationStore, registered []Migration) error {
	if err := db.WithContext(ctx).Exec(ensureMigrationLogTableSQL).Error; err != nil {
		return fmt.Errorf("failed to ensure migration logs table: %w", err)
	}

	applied, err := store.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}
	if err := validateAppliedVersions(applied, registered); err != nil {
		return err
	}

	pending := pendingMigrations(applied, registered)
	for _, m := range pending {
		log := middleware.Logger.With(slog.String("migration", m.String()))
		start := time.Now()
		if err := store.ApplyMigration(ctx, m.Version, m.Name, m.UpScript); err != nil {
			return err
		}
		log.InfoContext(ctx, "migration applied", slog.Duration("took", time.Since(start)))
	}
	if len(pending) == 0 {
		middleware.Logger.DebugContext(ctx, "schema up to date", slog.Int("applied", len(applied)))
	}
	return nil
}

func pendingMigrations(applied []int, registered []Migration) []Migration {
	var pending []Migration
	for _, m := range registered {
		if !slices.Contains(applied, m.Version) {
			pending = append(pending, m)
		}
	}
	return pending
}

// validateAppliedVersions refuses a database that ran migrations this build
// does not know, e.g. after a downgrade.
func validateAppliedVersions(applied []int, registered []Migration) error {
	var unknown []string
	for _, version := range slices.Sorted(slices.Values(applied)) {
		known := slices.ContainsFunc(registered, func(m Migration) bool { return m.Version == version })
		if !known {
			unknown = append(unknown, fmt.Sprintf("%06d", version))
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("migration_logs contains unknown versions not present in code: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// RollbackMigration reverts version, which must be the newest applied
// migration.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	m := GetMigrationByVersion(version)
	if m == nil {
		return fmt.Errorf("migration version %d not found", version)
	}
	return withMigrationLock(ctx, db, func(conn *gorm.DB) error {
		store := NewMigrationStore(conn)
		applied, err := store.GetAppliedMigrations(ctx)
		if err != nil {
			return err
		}
		if !slices.Contains(applied, version) {
			return fmt.Errorf("migration %d has not been applied", version)
		}
		if latest := slices.Max(applied); latest != version {
			return fmt.Errorf("migration %d is not the latest applied (%06d); roll that back first", version, latest)
		}

		if err := store.RemoveMigration(ctx, version, m.DownScript); err != nil {
			return err
		}
		middleware.Logger.InfoContext(ctx, "migration rolled back", slog.String("migration", m.String()))
		return nil
	})
}
