package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tradeops/pgvault/internal/adapter/storage"
	"github.com/tradeops/pgvault/internal/domain"
	"github.com/tradeops/pgvault/internal/infrastructure/lock"
)

// RestoreOptions control the destructive-restore gate and validation policy.
type RestoreOptions struct {
	// Confirm is called before an existing target database is dropped.
	// A nil Confirm (or a false return) refuses the restore; the existing
	// database is left untouched.
	Confirm func(target string) bool
	// RequireTables upgrades the zero-table post-restore result from a
	// warning to a hard verification failure.
	RequireTables bool
}

// Restore locates, verifies, and replays full backups, and prepares
// point-in-time recovery from base backups plus archived WAL.
type Restore struct {
	db         domain.Database
	store      *storage.ArtifactStore
	compressor domain.Compressor
	notifier   domain.Notifier
	logger     Logger
}

func NewRestore(
	db domain.Database,
	store *storage.ArtifactStore,
	compressor domain.Compressor,
	notifier domain.Notifier,
	logger Logger,
) *Restore {
	return &Restore{
		db:         db,
		store:      store,
		compressor: compressor,
		notifier:   notifier,
		logger:     logger,
	}
}

// ListBackups returns all full backups, newest first. Read-only.
func (uc *Restore) ListBackups() ([]domain.BackupArtifact, error) {
	return uc.store.ListArtifacts()
}

// GetLatest returns the newest full backup.
func (uc *Restore) GetLatest() (*domain.BackupArtifact, error) {
	return uc.store.LatestArtifact()
}

// ArtifactFromPath resolves an explicit artifact path to its store entry, so
// explicitly named restores still get checksum verification from metadata.
func (uc *Restore) ArtifactFromPath(path string) (*domain.BackupArtifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: artifact %s: %v", domain.ErrNotFound, path, err)
	}

	filename := filepath.Base(path)
	artifact := &domain.BackupArtifact{
		Filename:  filename,
		FilePath:  path,
		Size:      info.Size(),
		CreatedAt: info.ModTime(),
	}
	if createdAt, err := storage.ParseBackupTime(filename); err == nil {
		artifact.CreatedAt = createdAt
	}
	if meta, err := uc.store.ReadMetadata(filename); err == nil {
		artifact.Metadata = meta
		artifact.Database = meta.Database
		artifact.Checksum = meta.Checksum
	}

	return artifact, nil
}

// Verify checks container-format validity and, when metadata carries a
// checksum, recomputes and compares it. Restoring from a corrupted artifact
// must never proceed.
func (uc *Restore) Verify(artifact *domain.BackupArtifact) error {
	info, err := os.Stat(artifact.FilePath)
	if err != nil {
		return fmt.Errorf("%w: stat artifact: %v", domain.ErrVerification, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: artifact %s is empty", domain.ErrVerification, artifact.Filename)
	}

	if err := uc.compressor.Verify(artifact.FilePath); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrVerification, artifact.Filename, err)
	}

	if artifact.Checksum != "" {
		sum, err := storage.Checksum(artifact.FilePath)
		if err != nil {
			return fmt.Errorf("%w: checksum: %v", domain.ErrVerification, err)
		}
		if sum != artifact.Checksum {
			return fmt.Errorf("%w: checksum mismatch for %s: got %s, recorded %s",
				domain.ErrVerification, artifact.Filename, sum, artifact.Checksum)
		}
	}

	return nil
}

// Execute restores a full backup into targetDatabase. Destructive: an
// existing target is dropped only after explicit confirmation.
func (uc *Restore) Execute(ctx context.Context, artifact *domain.BackupArtifact, targetDatabase string, opts RestoreOptions) (*domain.RestoreReport, error) {
	report, err := uc.run(ctx, artifact, targetDatabase, opts)
	if err != nil {
		uc.notifier.Send(domain.AlertEvent{
			HealthMetric: "restore_failed",
			Operator:     "==",
			Threshold:    1,
			Priority:     domain.PriorityCritical,
		})
		return nil, err
	}

	uc.notifier.Send(domain.AlertEvent{
		HealthMetric: "restore_completed",
		Operator:     "==",
		Threshold:    0,
		Priority:     domain.PriorityInfo,
	})
	return report, nil
}

func (uc *Restore) run(ctx context.Context, artifact *domain.BackupArtifact, targetDatabase string, opts RestoreOptions) (*domain.RestoreReport, error) {
	start := time.Now()

	if err := uc.Verify(artifact); err != nil {
		return nil, err
	}

	dbLock, err := lock.Acquire(uc.store.LockDir(), targetDatabase)
	if err != nil {
		return nil, err
	}
	defer dbLock.Release()

	if err := uc.db.Ping(ctx); err != nil {
		return nil, err
	}

	exists, err := uc.db.DatabaseExists(ctx, targetDatabase)
	if err != nil {
		return nil, err
	}
	if exists {
		if opts.Confirm == nil || !opts.Confirm(targetDatabase) {
			return nil, fmt.Errorf("target database %s exists and restore was not confirmed", targetDatabase)
		}
		uc.logger.Warnf("dropping existing database %s", targetDatabase)
		if err := uc.db.TerminateConnections(ctx, targetDatabase); err != nil {
			return nil, err
		}
		if err := uc.db.DropDatabase(ctx, targetDatabase); err != nil {
			return nil, err
		}
	}

	if err := uc.db.CreateDatabase(ctx, targetDatabase); err != nil {
		return nil, err
	}

	uc.logger.Infof("replaying %s into %s", artifact.Filename, targetDatabase)
	reader, err := uc.compressor.Open(artifact.FilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrVerification, err)
	}

	replayErr := uc.db.Restore(ctx, targetDatabase, reader)
	reader.Close()
	if replayErr != nil {
		// Fail-stop: the target is partial. Say so explicitly rather
		// than presenting a truncated database as restored.
		return nil, fmt.Errorf("restore into %s incomplete, target must not be used: %w",
			targetDatabase, replayErr)
	}

	report, err := uc.validate(ctx, artifact, targetDatabase, start, opts)
	if err != nil {
		return nil, err
	}

	uc.logger.Infof("restore of %s into %s complete in %s, %d table(s)",
		artifact.Filename, targetDatabase, report.Duration.Round(time.Second), report.TableCount)
	return report, nil
}

func (uc *Restore) validate(ctx context.Context, artifact *domain.BackupArtifact, targetDatabase string, start time.Time, opts RestoreOptions) (*domain.RestoreReport, error) {
	exists, err := uc.db.DatabaseExists(ctx, targetDatabase)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: database %s missing after restore", domain.ErrVerification, targetDatabase)
	}

	tableCount, err := uc.db.TableCount(ctx, targetDatabase)
	if err != nil {
		return nil, err
	}
	if tableCount == 0 {
		if opts.RequireTables {
			return nil, fmt.Errorf("%w: restored database %s has no tables", domain.ErrVerification, targetDatabase)
		}
		uc.logger.Warnf("restored database %s has no tables", targetDatabase)
		uc.notifier.Send(domain.AlertEvent{
			HealthMetric: "restore_empty",
			Operator:     "==",
			Threshold:    0,
			Priority:     domain.PriorityWarning,
		})
	}

	size, err := uc.db.DatabaseSize(ctx, targetDatabase)
	if err != nil {
		uc.logger.Warnf("could not read size of %s: %v", targetDatabase, err)
	}

	return &domain.RestoreReport{
		Artifact:     artifact.Filename,
		Target:       targetDatabase,
		Duration:     time.Since(start),
		TableCount:   tableCount,
		DatabaseSize: size,
	}, nil
}

// RecoveryPlan is a staged point-in-time recovery: a restored data directory
// plus the recovery settings the engine needs on next start.
type RecoveryPlan struct {
	Base       *domain.BaseBackup
	DataDir    string
	TargetTime time.Time
	Segments   []string
}

// PrepareRecovery stages point-in-time recovery to targetTime in destDir:
// the nearest preceding base backup is copied in, WAL contiguity from its
// start position is validated, and recovery settings are written. Any gap in
// the archived sequence aborts; recovery from a holed archive would be
// silently incomplete.
func (uc *Restore) PrepareRecovery(ctx context.Context, targetTime time.Time, destDir string) (*RecoveryPlan, error) {
	bases, err := uc.store.ListBaseBackups()
	if err != nil {
		return nil, err
	}

	var base *domain.BaseBackup
	for i := range bases {
		if !bases[i].CreatedAt.After(targetTime) {
			base = &bases[i]
			break
		}
	}
	if base == nil {
		return nil, fmt.Errorf("%w: no base backup precedes %s",
			domain.ErrNotFound, targetTime.Format(time.RFC3339))
	}

	segments, err := uc.walChain(base.StartWAL, targetTime)
	if err != nil {
		return nil, err
	}

	uc.logger.Infof("staging recovery from %s with %d WAL segment(s)", base.Path, len(segments))
	if err := copyTree(base.Path, destDir); err != nil {
		return nil, fmt.Errorf("stage base backup: %w", err)
	}

	conf := fmt.Sprintf(
		"restore_command = 'cp %s/%%f %%p'\nrecovery_target_time = '%s'\nrecovery_target_action = 'promote'\n",
		uc.store.WALDir(), targetTime.Format("2006-01-02 15:04:05 MST"))
	if err := os.WriteFile(filepath.Join(destDir, "postgresql.auto.conf"), []byte(conf), 0600); err != nil {
		return nil, fmt.Errorf("write recovery settings: %w", err)
	}
	if err := os.WriteFile(filepath.Join(destDir, "recovery.signal"), nil, 0600); err != nil {
		return nil, fmt.Errorf("write recovery signal: %w", err)
	}

	return &RecoveryPlan{
		Base:       base,
		DataDir:    destDir,
		TargetTime: targetTime,
		Segments:   segments,
	}, nil
}

// walChain returns the archived segments from startWAL up to targetTime, in
// strict filename order, verifying that each expected successor is present.
func (uc *Restore) walChain(startWAL string, targetTime time.Time) ([]string, error) {
	segments, err := uc.store.ListWALSegments()
	if err != nil {
		return nil, err
	}

	byName := make(map[string]domain.WALSegment, len(segments))
	for _, segment := range segments {
		if domain.IsWALSegmentName(segment.Name) {
			byName[segment.Name] = segment
		}
	}

	first, ok := byName[startWAL]
	if !ok {
		return nil, fmt.Errorf("%w: start segment %s missing from archive",
			domain.ErrIncompleteArchive, startWAL)
	}

	chain := []string{first.Name}
	current := first
	for {
		next, err := domain.NextWALSegmentName(current.Name)
		if err != nil {
			return nil, err
		}

		successor, ok := byName[next]
		if !ok {
			// The chain ends here. It must cover the recovery instant:
			// if any archived segment past the gap was written before
			// targetTime, the archive has a hole in the replay range.
			for name, segment := range byName {
				if name > next && segment.ArchivedAt.Before(targetTime) {
					return nil, fmt.Errorf("%w: segment %s missing (archive continues at %s)",
						domain.ErrIncompleteArchive, next, name)
				}
			}
			return chain, nil
		}

		if successor.ArchivedAt.After(targetTime) {
			return chain, nil
		}
		chain = append(chain, successor.Name)
		current = successor
	}
}

func copyTree(sourceDir, destDir string) error {
	return filepath.WalkDir(sourceDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0700)
		}
		return copyFile(path, target)
	})
}
