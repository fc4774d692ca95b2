package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"knot/internal/config"
	"knot/internal/middleware"

	"gorm.io/gorm"
)

// DB_SCHEMA_MODE values.
//
//	sql     embedded SQL migrations only
//	auto    GORM AutoMigrate only; needs an explicit opt-in outside development
//	hybrid  SQL migrations everywhere, AutoMigrate on top outside production
const (
	SchemaModeHybrid = "hybrid"
	SchemaModeSQL    = "sql"
	SchemaModeAuto   = "auto"
)

type SchemaStatus struct {
	Mode               string
	Environment        string
	WillRunSQL         bool
	WillRunAutoMigrate bool
	AppliedVersions    []int
	PendingMigrations  []Migration
	// MissingTables lists persistent model tables not present in the database.
	MissingTables []string
}

type schemaPlan struct {
	mode  string
	sql   bool
	auto  bool
	risky bool // auto in a production-like env, allowed by opt-in
}

func productionLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod", "staging", "stage":
		return true
	}
	return false
}

func planSchema(cfg *config.Config) (schemaPlan, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.DBSchemaMode))
	if mode == "" {
		mode = SchemaModeHybrid
	}
	prod := productionLike(cfg.Env)
	plan := schemaPlan{mode: mode}

	switch mode {
	case SchemaModeSQL:
		plan.sql = true
	case SchemaModeHybrid:
		plan.sql = true
		plan.auto = !prod
	case SchemaModeAuto:
		if prod && !cfg.DBAutoMigrateAllowDestructive {
			return plan, fmt.Errorf("refusing DB_SCHEMA_MODE=auto in %q without DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true", cfg.Env)
		}
		plan.auto = true
		plan.risky = prod
	default:
		return plan, fmt.Errorf("unsupported DB_SCHEMA_MODE %q", mode)
	}
	return plan, nil
}

// AutoMigrate creates or alters the tables of every persistent model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(PersistentModels()...)
}

// ApplySchema brings the schema up to date according to DB_SCHEMA_MODE.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	plan, err := planSchema(cfg)
	if err != nil {
		return err
	}
	log := middleware.Logger.With(slog.String("mode", plan.mode), slog.String("env", cfg.Env))

	if plan.sql {
		if err := RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
	}
	if plan.auto {
		if plan.risky {
			log.WarnContext(ctx, "running AutoMigrate against a production-like database")
		}
		log.InfoContext(ctx, "running AutoMigrate", slog.Int("models", len(PersistentModels())))
		if err := AutoMigrate(db.WithContext(ctx)); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}
	return nil
}

// GetSchemaStatus reports what ApplySchema would do, the pending SQL
// migrations and which model tables do not exist yet.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	plan, err := planSchema(cfg)
	if err != nil {
		return nil, err
	}
	status := &SchemaStatus{
		Mode:               plan.mode,
		Environment:        cfg.Env,
		WillRunSQL:         plan.sql,
		WillRunAutoMigrate: plan.auto,
		MissingTables:      missingTables(db.WithContext(ctx)),
	}
	if !plan.sql {
		return status, nil
	}

	applied, err := NewMigrationStore(db).GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	status.AppliedVersions = applied
	status.PendingMigrations = pendingMigrations(applied, GetMigrations())
	return status, nil
}

func missingTables(db *gorm.DB) []string {
	var missing []string
	migrator := db.Migrator()
	for _, model := range PersistentModels() {
		if migrator.HasTable(model) {
			continue
		}
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			missing = append(missing, fmt.Sprintf("%T", model))
			continue
		}
		missing = append(missing, stmt.Schema.Table)
	}
	return missing
}
