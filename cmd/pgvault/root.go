package main

import (
	"github.com/spf13/cobra"

	"github.com/tradeops/pgvault/internal/app"
	"github.com/tradeops/pgvault/internal/config"
)

// Version is set at build time.
var Version = "dev"

var configFile string

var rootCmd = &cobra.Command{
	Use:   "pgvault",
	Short: "Backup, restore, and health monitoring for PostgreSQL",
	Long: `pgvault preserves and recovers whole-database state:
  - full logical backups with compression, checksums, and retention
  - WAL archiving and base backups for point-in-time recovery
  - verified restore by name or latest
  - threshold-based health monitoring with alert dispatch

Commands are one-shot and idempotent, intended for an external scheduler;
'pgvault schedule' runs the periodic operations in-process instead.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c",
		"configs/config.yaml", "path to config file")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(archiveWALCmd)
	rootCmd.AddCommand(baseBackupCmd)
	rootCmd.AddCommand(scheduleCmd)
}

// buildApp loads configuration and wires the component graph. Every
// subcommand goes through here so config errors map to one exit code.
func buildApp() (*app.App, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
