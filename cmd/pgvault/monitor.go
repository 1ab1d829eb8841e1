package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tradeops/pgvault/internal/domain"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the health check battery against the backup store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := buildApp()
		if err != nil {
			return err
		}
		defer application.Shutdown()

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		verdict := application.Monitor.RunHealthChecks(ctx)
		for _, result := range verdict.Results {
			fmt.Printf("%-20s %-8s %s\n", result.Check, result.Severity, result.Message)
		}

		// Warnings surface through alerting but do not fail the invocation.
		if verdict.Severity() == domain.SeverityCritical {
			return fmt.Errorf("health verdict critical: %d critical check(s)", verdict.Criticals)
		}
		return nil
	},
}
