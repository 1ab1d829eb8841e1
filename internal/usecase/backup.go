package usecase

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/tradeops/pgvault/internal/adapter/storage"
	"github.com/tradeops/pgvault/internal/domain"
	"github.com/tradeops/pgvault/internal/infrastructure/lock"
)

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// ReplicaTarget pairs an offsite destination with a display name.
type ReplicaTarget struct {
	Name   string
	Target domain.ReplicationTarget
}

// FullBackup drives one full-backup run: dump, compress, checksum, verify,
// persist metadata, apply retention, replicate, alert.
type FullBackup struct {
	db               domain.Database
	store            *storage.ArtifactStore
	compressor       domain.Compressor
	notifier         domain.Notifier
	replicas         []ReplicaTarget
	cleanup          *Cleanup
	logger           Logger
	compressionLevel int
	hostname         string
}

func NewFullBackup(
	db domain.Database,
	store *storage.ArtifactStore,
	compressor domain.Compressor,
	notifier domain.Notifier,
	replicas []ReplicaTarget,
	cleanup *Cleanup,
	logger Logger,
	compressionLevel int,
) *FullBackup {
	hostname, _ := os.Hostname()
	return &FullBackup{
		db:               db,
		store:            store,
		compressor:       compressor,
		notifier:         notifier,
		replicas:         replicas,
		cleanup:          cleanup,
		logger:           logger,
		compressionLevel: compressionLevel,
		hostname:         hostname,
	}
}

// Orphaned temp files older than this are removed at the start of each run.
const orphanAge = 24 * time.Hour

func (uc *FullBackup) Execute(ctx context.Context, database string) (*domain.BackupArtifact, error) {
	runID := uuid.NewString()[:8]
	uc.logger.Infof("[%s] run %s: starting full backup", database, runID)

	artifact, err := uc.run(ctx, database, runID)

	// Retention applies whether or not this run produced a backup. Expired
	// artifacts must not pile up across failed runs; the engine being down
	// is exactly when disk pressure from stale backups hurts.
	if cleanupErr := uc.cleanup.Execute(ctx); cleanupErr != nil {
		uc.logger.Errorf("[%s] retention cleanup failed: %v", database, cleanupErr)
	}

	if err != nil {
		uc.logger.Errorf("[%s] run %s: backup failed: %v", database, runID, err)
		uc.notifier.Send(domain.AlertEvent{
			HealthMetric: "backup_failed",
			Operator:     "==",
			Threshold:    1,
			Priority:     domain.PriorityCritical,
		})
		return nil, err
	}

	uc.notifier.Send(domain.AlertEvent{
		HealthMetric: "backup_completed",
		Operator:     "==",
		Threshold:    0,
		Priority:     domain.PriorityInfo,
	})
	return artifact, nil
}

func (uc *FullBackup) run(ctx context.Context, database, runID string) (*domain.BackupArtifact, error) {
	dbLock, err := lock.Acquire(uc.store.LockDir(), database)
	if err != nil {
		return nil, err
	}
	defer dbLock.Release()

	if removed, err := uc.store.SweepTemp(orphanAge); err != nil {
		uc.logger.Warnf("[%s] temp sweep failed: %v", database, err)
	} else if removed > 0 {
		uc.logger.Infof("[%s] removed %d orphaned temp file(s)", database, removed)
	}

	// Fail fast before doing any work.
	if err := uc.db.Ping(ctx); err != nil {
		return nil, err
	}

	engineVersion, err := uc.db.ServerVersion(ctx)
	if err != nil {
		uc.logger.Warnf("[%s] could not read server version: %v", database, err)
	}
	databaseSize, err := uc.db.DatabaseSize(ctx, database)
	if err != nil {
		uc.logger.Warnf("[%s] could not read database size: %v", database, err)
	}

	start := time.Now()
	filename := uc.store.BackupFilename(database, start)
	tempPath := filepath.Join(uc.store.TempDir(), filename+".tmp")

	// Any exit before the rename below removes the partial file.
	finalized := false
	defer func() {
		if !finalized {
			os.Remove(tempPath)
		}
	}()

	uc.logger.Infof("[%s] run %s: dumping into %s", database, runID, tempPath)
	if err := uc.dumpCompressed(ctx, database, tempPath); err != nil {
		return nil, err
	}

	info, err := os.Stat(tempPath)
	if err != nil {
		return nil, fmt.Errorf("%w: stat backup file: %v", domain.ErrCreation, err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: backup file is empty", domain.ErrVerification)
	}

	if err := uc.compressor.Verify(tempPath); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrVerification, err)
	}

	checksum, err := storage.Checksum(tempPath)
	if err != nil {
		return nil, fmt.Errorf("%w: checksum: %v", domain.ErrCreation, err)
	}

	finalPath := uc.store.ArtifactPath(filename)
	if err := os.Rename(tempPath, finalPath); err != nil {
		return nil, fmt.Errorf("%w: finalize artifact: %v", domain.ErrCreation, err)
	}
	finalized = true

	duration := time.Since(start)
	meta := &domain.BackupMetadata{
		BackupType:       "full",
		Database:         database,
		Timestamp:        start.Format(domain.TimestampLayout),
		Hostname:         uc.hostname,
		EngineVersion:    engineVersion,
		DatabaseSize:     databaseSize,
		BackupSize:       info.Size(),
		CompressionLevel: uc.compressionLevel,
		DurationSeconds:  duration.Seconds(),
		BackupFile:       filename,
		Checksum:         checksum,
	}

	// Metadata goes to disk only after the artifact itself is durable. If the
	// sidecar write fails the artifact is discarded too; no half-registered
	// backups survive.
	if err := uc.store.WriteMetadata(filename, meta); err != nil {
		uc.store.DeleteArtifact(filename)
		return nil, fmt.Errorf("%w: write metadata: %v", domain.ErrCreation, err)
	}

	uc.logger.Infof("[%s] run %s: backup complete in %s, size %s",
		database, runID, duration.Round(time.Second), humanize.IBytes(uint64(info.Size())))

	uc.replicate(ctx, filename)

	return &domain.BackupArtifact{
		Database:  database,
		Filename:  filename,
		FilePath:  finalPath,
		Size:      info.Size(),
		CreatedAt: start,
		Duration:  duration,
		Checksum:  checksum,
		Metadata:  meta,
	}, nil
}

// dumpCompressed streams pg_dump output straight into the gzip sink, never
// buffering the whole dump.
func (uc *FullBackup) dumpCompressed(ctx context.Context, database, destPath string) error {
	pr, pw := io.Pipe()

	dumpErr := make(chan error, 1)
	go func() {
		err := uc.db.Dump(ctx, database, pw)
		pw.CloseWithError(err)
		dumpErr <- err
	}()

	compressErr := uc.compressor.Compress(pr, destPath)
	pr.Close()

	if err := <-dumpErr; err != nil {
		return err
	}
	if compressErr != nil {
		return fmt.Errorf("%w: %v", domain.ErrCreation, compressErr)
	}
	return nil
}

// replicate copies the artifact and its sidecar to every offsite target.
// Best-effort: failures are logged, the run already succeeded locally.
func (uc *FullBackup) replicate(ctx context.Context, filename string) {
	if len(uc.replicas) == 0 {
		return
	}

	metaName := filename[:len(filename)-len(".sql.gz")] + ".meta.json"

	var wg sync.WaitGroup
	for _, replica := range uc.replicas {
		wg.Add(1)
		go func(r ReplicaTarget) {
			defer wg.Done()

			if err := r.Target.Upload(ctx, uc.store.ArtifactPath(filename), filename); err != nil {
				uc.logger.Errorf("replication to %s failed: %v", r.Name, err)
				return
			}
			if err := r.Target.Upload(ctx, uc.store.MetadataPath(filename), metaName); err != nil {
				uc.logger.Errorf("metadata replication to %s failed: %v", r.Name, err)
				return
			}
			uc.logger.Infof("replicated %s to %s", filename, r.Name)
		}(replica)
	}
	wg.Wait()
}
