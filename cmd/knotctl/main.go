// Command knotctl runs schema, seeding and maintenance operations against the
// configured database and bucket.
package main

import (
	"context"
	"fmt"
	"os"

	"knot/internal/bootstrap"
	"knot/internal/config"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "knotctl",
	Short: "Operate a Knot deployment",
	Long: `knotctl manages the database and storage behind the Knot API.

Available commands:
  migrate - Apply, roll back or inspect schema migrations
  db      - Create or reset the database
  seed    - Populate the database with demo content
  cleanup - Run or inspect the file deletion sweep`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(migrateCmd, dbCmd, seedCmd, cleanupCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig is swapped out in tests.
var loadConfig = config.LoadConfig

// withRuntime opens the full runtime without touching the schema, runs fn and
// closes everything again.
func withRuntime(ctx context.Context, fn func(*bootstrap.Runtime) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{ApplySchema: false})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()
	return fn(rt)
}
