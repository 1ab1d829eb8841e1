package usecase

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tradeops/pgvault/internal/adapter/storage"
	"github.com/tradeops/pgvault/internal/domain"
)

// Archiver captures the incremental side of the store: WAL segments delivered
// by the engine's archive_command hook and periodic physical base backups.
type Archiver struct {
	db               domain.Database
	store            *storage.ArtifactStore
	notifier         domain.Notifier
	logger           Logger
	walRetentionDays int

	now func() time.Time
}

func NewArchiver(
	db domain.Database,
	store *storage.ArtifactStore,
	notifier domain.Notifier,
	logger Logger,
	walRetentionDays int,
) *Archiver {
	return &Archiver{
		db:               db,
		store:            store,
		notifier:         notifier,
		logger:           logger,
		walRetentionDays: walRetentionDays,
		now:              time.Now,
	}
}

// ArchiveSegment copies one WAL file into the archive. Archive-once: if a
// segment with the same name is already present the call is a no-op success,
// never an overwrite. Safe to call concurrently for the same name; the
// hard-link commit makes exactly one writer win.
func (uc *Archiver) ArchiveSegment(ctx context.Context, segmentPath, name string) (domain.ArchiveResult, error) {
	if exists, err := uc.store.HasWALSegment(name); err != nil {
		return 0, err
	} else if exists {
		uc.logger.Infof("WAL segment %s already archived, skipping", name)
		return domain.ArchiveSkipped, nil
	}

	tempPath := uc.store.WALPath(name + ".tmp." + uuid.NewString()[:8])
	if err := copyFile(segmentPath, tempPath); err != nil {
		return 0, fmt.Errorf("%w: stage WAL segment: %v", domain.ErrCreation, err)
	}
	defer os.Remove(tempPath)

	if err := os.Link(tempPath, uc.store.WALPath(name)); err != nil {
		if os.IsExist(err) {
			// Lost the race to another archiver call; first write stands.
			uc.logger.Infof("WAL segment %s archived concurrently, skipping", name)
			return domain.ArchiveSkipped, nil
		}
		return 0, fmt.Errorf("%w: commit WAL segment: %v", domain.ErrCreation, err)
	}

	uc.logger.Infof("archived WAL segment %s", name)
	return domain.ArchiveAccepted, nil
}

// CreateBaseBackup takes a physical snapshot and records the WAL position
// recovery has to start from, then prunes expired incremental artifacts.
func (uc *Archiver) CreateBaseBackup(ctx context.Context, database string) (*domain.BaseBackup, error) {
	base, err := uc.createBaseBackup(ctx)
	if err != nil {
		uc.logger.Errorf("[%s] base backup failed: %v", database, err)
		uc.notifier.Send(domain.AlertEvent{
			HealthMetric: "base_backup_failed",
			Operator:     "==",
			Threshold:    1,
			Priority:     domain.PriorityCritical,
		})
		return nil, err
	}

	if err := uc.PruneIncremental(ctx); err != nil {
		uc.logger.Errorf("incremental retention failed: %v", err)
	}

	return base, nil
}

func (uc *Archiver) createBaseBackup(ctx context.Context) (*domain.BaseBackup, error) {
	if err := uc.db.Ping(ctx); err != nil {
		return nil, err
	}

	start := uc.now()
	destDir := filepath.Join(uc.store.BaseDir(), start.Format(domain.TimestampLayout))

	finalized := false
	defer func() {
		if !finalized {
			os.RemoveAll(destDir)
		}
	}()

	uc.logger.Infof("creating base backup in %s", destDir)
	if err := uc.db.BaseBackup(ctx, destDir); err != nil {
		return nil, err
	}

	startWAL, err := readStartWAL(filepath.Join(destDir, "backup_label"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCreation, err)
	}

	base := &domain.BaseBackup{
		Path:      destDir,
		CreatedAt: start,
		StartWAL:  startWAL,
	}
	if err := uc.store.WriteBaseBackupRecord(base); err != nil {
		return nil, err
	}
	finalized = true

	uc.logger.Infof("base backup complete, start WAL %s", startWAL)
	return base, nil
}

// PruneIncremental removes base backups and WAL segments past the incremental
// retention window. A WAL segment at or after the oldest retained base
// backup's start position is never pruned regardless of age: deleting it
// would break replay for a base backup we still keep.
func (uc *Archiver) PruneIncremental(ctx context.Context) error {
	cutoff := uc.now().AddDate(0, 0, -uc.walRetentionDays)

	bases, err := uc.store.ListBaseBackups()
	if err != nil {
		return err
	}

	replayFloor := ""
	for _, base := range bases {
		if base.CreatedAt.Before(cutoff) {
			if err := uc.store.DeleteBaseBackup(&base); err != nil {
				uc.logger.Errorf("failed to delete base backup %s: %v", base.Path, err)
			} else {
				uc.logger.Infof("deleted expired base backup %s", base.Path)
			}
			continue
		}
		if replayFloor == "" || base.StartWAL < replayFloor {
			replayFloor = base.StartWAL
		}
	}

	segments, err := uc.store.ListWALSegments()
	if err != nil {
		return err
	}

	deleted := 0
	for _, segment := range segments {
		if !segment.ArchivedAt.Before(cutoff) {
			continue
		}
		if replayFloor != "" && segment.Name >= replayFloor {
			continue
		}
		if err := uc.store.DeleteWALSegment(segment.Name); err != nil {
			uc.logger.Errorf("failed to delete WAL segment %s: %v", segment.Name, err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		uc.logger.Infof("deleted %d expired WAL segment(s)", deleted)
	}
	return nil
}

// readStartWAL extracts the starting segment name from a backup_label file,
// e.g. "START WAL LOCATION: 0/2000028 (file 000000010000000000000002)".
func readStartWAL(labelPath string) (string, error) {
	file, err := os.Open(labelPath)
	if err != nil {
		return "", fmt.Errorf("open backup_label: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "START WAL LOCATION:") {
			continue
		}
		start := strings.Index(line, "(file ")
		end := strings.Index(line, ")")
		if start < 0 || end < start {
			break
		}
		name := strings.TrimSpace(line[start+len("(file ") : end])
		if !domain.IsWALSegmentName(name) {
			return "", fmt.Errorf("malformed segment name in backup_label: %s", name)
		}
		return name, nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read backup_label: %w", err)
	}

	return "", fmt.Errorf("backup_label has no START WAL LOCATION line")
}

func copyFile(sourcePath, destPath string) error {
	source, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	dest, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create dest: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, source); err != nil {
		return fmt.Errorf("failed to copy: %w", err)
	}

	return dest.Sync()
}
