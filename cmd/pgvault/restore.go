package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tradeops/pgvault/internal/domain"
	"github.com/tradeops/pgvault/internal/usecase"
)

var (
	restoreList          bool
	restoreLatest        bool
	restoreYes           bool
	restoreRequireTables bool
	restoreAt            string
	restoreDataDir       string
)

var restoreCmd = &cobra.Command{
	Use:   "restore [artifact-path] <target-db>",
	Short: "Restore a backup into a target database",
	Long: `Restore a backup into a target database.

  restore --list                    list available backups
  restore --latest <target-db>      restore the newest backup
  restore <artifact> <target-db>    restore a specific artifact
  restore --at <RFC3339> --data-dir <dir>
                                    stage point-in-time recovery

Restoring into an existing database is destructive and asks for
confirmation; --yes skips the prompt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := buildApp()
		if err != nil {
			return err
		}
		defer application.Shutdown()

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		switch {
		case restoreList:
			return listBackups(application.Restore)
		case restoreAt != "":
			return prepareRecovery(ctx, application.Restore)
		case restoreLatest:
			if len(args) != 1 {
				return fmt.Errorf("restore --latest requires exactly one argument: the target database")
			}
			artifact, err := application.Restore.GetLatest()
			if err != nil {
				return err
			}
			return runRestore(ctx, application.Restore, artifact, args[0])
		default:
			if len(args) != 2 {
				return fmt.Errorf("restore requires an artifact path and a target database")
			}
			artifact, err := application.Restore.ArtifactFromPath(args[0])
			if err != nil {
				return err
			}
			return runRestore(ctx, application.Restore, artifact, args[1])
		}
	},
}

func init() {
	restoreCmd.Flags().BoolVar(&restoreList, "list", false, "list available backups")
	restoreCmd.Flags().BoolVar(&restoreLatest, "latest", false, "restore the newest backup")
	restoreCmd.Flags().BoolVarP(&restoreYes, "yes", "y", false, "skip the destructive-restore confirmation")
	restoreCmd.Flags().BoolVar(&restoreRequireTables, "require-tables", false,
		"treat a restored database with zero tables as a failure")
	restoreCmd.Flags().StringVar(&restoreAt, "at", "", "recovery target time (RFC3339) for point-in-time recovery")
	restoreCmd.Flags().StringVar(&restoreDataDir, "data-dir", "", "destination data directory for point-in-time recovery")
}

func listBackups(restore *usecase.Restore) error {
	artifacts, err := restore.ListBackups()
	if err != nil {
		return err
	}
	if len(artifacts) == 0 {
		fmt.Println("no backups found")
		return nil
	}

	for _, artifact := range artifacts {
		fmt.Printf("%s  %s  %s\n",
			artifact.CreatedAt.Format(time.RFC3339),
			humanize.IBytes(uint64(artifact.Size)),
			artifact.Filename)
	}
	return nil
}

func runRestore(ctx context.Context, restore *usecase.Restore, artifact *domain.BackupArtifact, target string) error {
	report, err := restore.Execute(ctx, artifact, target, usecase.RestoreOptions{
		Confirm:       confirmDrop,
		RequireTables: restoreRequireTables,
	})
	if err != nil {
		return err
	}

	fmt.Printf("restored %s into %s in %s: %d table(s), %s\n",
		report.Artifact, report.Target, report.Duration.Round(time.Second),
		report.TableCount, humanize.IBytes(uint64(report.DatabaseSize)))
	return nil
}

func confirmDrop(target string) bool {
	if restoreYes {
		return true
	}

	fmt.Printf("Database %q exists and will be DROPPED. Type 'yes' to continue: ", target)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(line) == "yes"
}

func prepareRecovery(ctx context.Context, restore *usecase.Restore) error {
	if restoreDataDir == "" {
		return fmt.Errorf("%w: --data-dir is required with --at", domain.ErrConfiguration)
	}
	targetTime, err := time.Parse(time.RFC3339, restoreAt)
	if err != nil {
		return fmt.Errorf("%w: invalid --at time: %v", domain.ErrConfiguration, err)
	}

	plan, err := restore.PrepareRecovery(ctx, targetTime, restoreDataDir)
	if err != nil {
		return err
	}

	fmt.Printf("staged recovery to %s in %s\n", plan.TargetTime.Format(time.RFC3339), plan.DataDir)
	fmt.Printf("base backup: %s (start WAL %s), %d segment(s) to replay\n",
		plan.Base.Path, plan.Base.StartWAL, len(plan.Segments))
	fmt.Println("start the engine against this data directory to complete recovery")
	return nil
}
