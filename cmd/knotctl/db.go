package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"knot/internal/database"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Create or reset the database",
}

var dbEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Create the configured database if it does not exist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		admin, err := sql.Open("pgx", database.DSN(cfg, "postgres"))
		if err != nil {
			return fmt.Errorf("open maintenance db: %w", err)
		}
		defer func() { _ = admin.Close() }()

		created, err := ensureDatabase(cmd.Context(), admin, cfg.DBName)
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintf(cmd.OutOrStdout(), "database %s created\n", cfg.DBName)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "database %s already exists\n", cfg.DBName)
		}
		return nil
	},
}

var nukeConfirmed bool

var dbNukeCmd = &cobra.Command{
	Use:   "nuke",
	Short: "Drop every table in the public schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !nukeConfirmed {
			return errors.New("refusing to drop the schema without --yes")
		}
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.IsProduction() {
			return errors.New("refusing to drop the schema in production")
		}
		db, err := sql.Open("pgx", database.DSN(cfg, cfg.DBName))
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer func() { _ = db.Close() }()

		if err := resetSchema(cmd.Context(), db); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema reset")
		return nil
	},
}

func init() {
	dbNukeCmd.Flags().BoolVar(&nukeConfirmed, "yes", false, "confirm dropping all data")
	dbCmd.AddCommand(dbEnsureCmd, dbNukeCmd)
}

// ensureDatabase creates name on the server behind admin unless it exists.
func ensureDatabase(ctx context.Context, admin *sql.DB, name string) (bool, error) {
	if name == "" {
		return false, errors.New("DB_NAME is not set")
	}
	var exists bool
	err := admin.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check database: %w", err)
	}
	if exists {
		return false, nil
	}
	if _, err := admin.ExecContext(ctx, `CREATE DATABASE `+pgx.Identifier{name}.Sanitize()); err != nil {
		return false, fmt.Errorf("create database: %w", err)
	}
	return true, nil
}

func resetSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `DROP SCHEMA public CASCADE; CREATE SCHEMA public;`); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, `GRANT ALL ON SCHEMA public TO public;`); err != nil {
		return fmt.Errorf("grant schema permissions: %w", err)
	}
	return nil
}
