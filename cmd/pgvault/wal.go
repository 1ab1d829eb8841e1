package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// archiveWALCmd is the engine's archival hook:
//
//	archive_command = 'pgvault archive-wal %p %f'
//
// It must be safe under concurrent and repeated delivery of the same segment.
var archiveWALCmd = &cobra.Command{
	Use:   "archive-wal <segment-path> <segment-name>",
	Short: "Archive one WAL segment (archive_command hook)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := buildApp()
		if err != nil {
			return err
		}
		defer application.Shutdown()

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		_, err = application.Archiver.ArchiveSegment(ctx, args[0], args[1])
		return err
	},
}

var baseBackupCmd = &cobra.Command{
	Use:   "base-backup <database>",
	Short: "Take a physical base backup for point-in-time recovery",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := buildApp()
		if err != nil {
			return err
		}
		defer application.Shutdown()

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		base, err := application.Archiver.CreateBaseBackup(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("base backup created at %s (start WAL %s)\n", base.Path, base.StartWAL)
		return nil
	},
}
