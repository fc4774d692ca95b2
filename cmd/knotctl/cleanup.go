package main

import (
	"encoding/json"

	"knot/internal/bootstrap"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run or inspect the file deletion sweep",
}

var cleanupSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Retry due file deletions and purge expired sessions once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd.Context(), func(rt *bootstrap.Runtime) error {
			res, err := rt.Services().Maintenance().RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		})
	},
}

var cleanupStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending and dead file deletions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd.Context(), func(rt *bootstrap.Runtime) error {
			status, err := rt.Services().Sweeper.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, status)
		})
	},
}

func init() {
	cleanupCmd.AddCommand(cleanupSweepCmd, cleanupStatusCmd)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
