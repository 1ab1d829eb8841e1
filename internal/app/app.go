package app

import (
	"context"
	"fmt"

	"github.com/tradeops/pgvault/internal/adapter/compressor"
	"github.com/tradeops/pgvault/internal/adapter/database"
	"github.com/tradeops/pgvault/internal/adapter/storage"
	"github.com/tradeops/pgvault/internal/alert"
	"github.com/tradeops/pgvault/internal/config"
	"github.com/tradeops/pgvault/internal/domain"
	"github.com/tradeops/pgvault/internal/infrastructure/logger"
	"github.com/tradeops/pgvault/internal/infrastructure/scheduler"
	"github.com/tradeops/pgvault/internal/usecase"
)

// App wires configuration into the component graph. The CLI builds one App
// per invocation; schedule mode keeps it alive under the cron scheduler.
type App struct {
	Config    *config.Config
	Logger    *logger.Logger
	Store     *storage.ArtifactStore
	Backup    *usecase.FullBackup
	Archiver  *usecase.Archiver
	Restore   *usecase.Restore
	Monitor   *usecase.Monitor
	notifier  *alert.Dispatcher
	scheduler *scheduler.Scheduler
}

func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(logger.Options{
		Level:      cfg.App.LogLevel,
		File:       cfg.App.LogFile,
		MaxSizeMB:  cfg.App.LogMaxSizeMB,
		MaxBackups: cfg.App.LogMaxBackups,
		MaxAgeDays: cfg.App.LogMaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	store, err := storage.NewArtifactStore(cfg.Storage.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	comp, err := compressor.NewGzip(cfg.Backup.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	db, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		return nil, err
	}

	notifier := buildNotifier(cfg, log)
	replicas := buildReplicas(cfg, log)

	cleanup := usecase.NewCleanup(store, replicas, log, cfg.Backup.RetentionDays)

	return &App{
		Config: cfg,
		Logger: log,
		Store:  store,
		Backup: usecase.NewFullBackup(
			db, store, comp, notifier, replicas, cleanup, log,
			cfg.Backup.CompressionLevel,
		),
		Archiver: usecase.NewArchiver(db, store, notifier, log, cfg.Backup.WALRetentionDays),
		Restore:  usecase.NewRestore(db, store, comp, notifier, log),
		Monitor: usecase.NewMonitor(
			store, comp, &cfg.Health, cfg.Backup.WALArchiving, notifier, log,
		),
		notifier:  notifier,
		scheduler: scheduler.New(log),
	}, nil
}

func buildNotifier(cfg *config.Config, log *logger.Logger) *alert.Dispatcher {
	var mirrors []alert.Mirror
	if cfg.Alert.TelegramBotToken != "" {
		telegram, err := alert.NewTelegram(&cfg.Alert)
		if err != nil {
			log.Errorf("failed to initialize telegram mirror: %v", err)
		} else {
			mirrors = append(mirrors, telegram)
			log.Infof("telegram alert mirror enabled")
		}
	}

	return alert.NewDispatcher(&cfg.Alert, log, mirrors...)
}

func buildReplicas(cfg *config.Config, log *logger.Logger) []usecase.ReplicaTarget {
	var replicas []usecase.ReplicaTarget

	for _, targetCfg := range cfg.EnabledReplicationTargets() {
		var target domain.ReplicationTarget
		var err error

		switch targetCfg.Type {
		case "s3":
			target, err = storage.NewS3(&targetCfg)
			if err != nil {
				log.Errorf("failed to initialize S3 replication: %v", err)
				continue
			}
			log.Infof("S3 replication enabled (bucket: %s)", targetCfg.Bucket)

		case "gdrive":
			target, err = storage.NewGDrive(&targetCfg)
			if err != nil {
				log.Errorf("failed to initialize Google Drive replication: %v", err)
				continue
			}
			log.Infof("Google Drive replication enabled")

		default:
			log.Warnf("unknown replication target type: %s", targetCfg.Type)
			continue
		}

		replicas = append(replicas, usecase.ReplicaTarget{
			Name:   targetCfg.Type,
			Target: target,
		})
	}

	return replicas
}

// Run starts schedule mode: full backups, base backups, and health checks on
// their cron cadences, blocking until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	databases := a.Config.Schedule.Databases
	if len(databases) == 0 {
		return fmt.Errorf("%w: schedule.databases is required for schedule mode", domain.ErrConfiguration)
	}

	for _, db := range databases {
		name := db
		if err := a.scheduler.AddJob("backup:"+name, a.Config.Schedule.FullBackup,
			func(ctx context.Context) error {
				_, err := a.Backup.Execute(ctx, name)
				return err
			}); err != nil {
			return fmt.Errorf("failed to schedule backup for %s: %w", name, err)
		}
		a.Logger.Infof("scheduled full backup for %s: %s", name, a.Config.Schedule.FullBackup)
	}

	if a.Config.Backup.WALArchiving {
		primary := databases[0]
		if err := a.scheduler.AddJob("base-backup", a.Config.Schedule.BaseBackup,
			func(ctx context.Context) error {
				_, err := a.Archiver.CreateBaseBackup(ctx, primary)
				return err
			}); err != nil {
			return fmt.Errorf("failed to schedule base backup: %w", err)
		}
		a.Logger.Infof("scheduled base backup: %s", a.Config.Schedule.BaseBackup)
	}

	if err := a.scheduler.AddJob("monitor", a.Config.Schedule.Monitor,
		func(ctx context.Context) error {
			a.Monitor.RunHealthChecks(ctx)
			return nil
		}); err != nil {
		return fmt.Errorf("failed to schedule monitor: %w", err)
	}
	a.Logger.Infof("scheduled health monitor: %s", a.Config.Schedule.Monitor)

	a.scheduler.Start()
	a.Logger.Infof("scheduler started")

	<-ctx.Done()
	return nil
}

func (a *App) Shutdown() {
	a.Logger.Infof("shutting down")
	a.scheduler.Stop()
	a.notifier.Flush()
	a.Logger.Close()
}
