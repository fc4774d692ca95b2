package main

import (
	"fmt"
	"strconv"

	"knot/internal/config"
	"knot/internal/database"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending SQL migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDatabase(func(_ *config.Config, db *gorm.DB) error {
			if err := database.RunMigrations(cmd.Context(), db); err != nil {
				return fmt.Errorf("sql migrations failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sql migrations applied")
			return nil
		})
	},
}

var migrateAutoCmd = &cobra.Command{
	Use:   "auto",
	Short: "Apply the schema with GORM automigrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDatabase(func(cfg *config.Config, db *gorm.DB) error {
			cfg.DBSchemaMode = database.SchemaModeAuto
			if err := database.ApplySchema(cmd.Context(), db, cfg); err != nil {
				return fmt.Errorf("auto schema apply failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "automigrations applied")
			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDatabase(func(cfg *config.Config, db *gorm.DB) error {
			status, err := database.GetSchemaStatus(cmd.Context(), db, cfg)
			if err != nil {
				return fmt.Errorf("schema status failed: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mode=%s env=%s run_sql=%t run_auto=%t applied=%d pending=%d\n",
				status.Mode, status.Environment, status.WillRunSQL, status.WillRunAutoMigrate,
				len(status.AppliedVersions), len(status.PendingMigrations))
			for _, m := range status.PendingMigrations {
				fmt.Fprintf(out, "pending: %06d_%s\n", m.Version, m.Name)
			}
			for _, table := range status.MissingTables {
				fmt.Fprintf(out, "missing table: %s\n", table)
			}
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down <version>",
	Short: "Roll back one migration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := parseVersion(args[0])
		if err != nil {
			return err
		}
		return withDatabase(func(_ *config.Config, db *gorm.DB) error {
			if err := database.RollbackMigration(cmd.Context(), db, version); err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back migration %d\n", version)
			return nil
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateAutoCmd, migrateStatusCmd, migrateDownCmd)
}

func parseVersion(raw string) (int, error) {
	version, err := strconv.Atoi(raw)
	if err != nil || version <= 0 {
		return 0, fmt.Errorf("invalid version %q", raw)
	}
	if database.GetMigrationByVersion(version) == nil {
		return 0, fmt.Errorf("unknown migration version %d", version)
	}
	return version, nil
}

// withDatabase connects without applying the schema.
func withDatabase(fn func(*config.Config, *gorm.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer func() { _ = sqlDB.Close() }()
	}
	return fn(cfg, db)
}
