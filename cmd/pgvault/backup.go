package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup <database>",
	Short: "Create a verified full backup of a database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := buildApp()
		if err != nil {
			return err
		}
		defer application.Shutdown()

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		_, err = application.Backup.Execute(ctx, args[0])
		return err
	},
}
