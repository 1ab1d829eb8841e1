package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tradeops/pgvault/internal/domain"
)

// ArtifactStore is the on-disk source of truth. Layout under root:
//
//	full/  compressed dumps plus .meta.json sidecars
//	wal/   archived WAL segments
//	base/  timestamped base-backup directories with base.json records
//	tmp/   in-flight files, swept at the start of each backup run
//	locks/ per-database advisory lock files
type ArtifactStore struct {
	root string
}

const (
	backupSuffix   = ".sql.gz"
	metadataSuffix = ".meta.json"
)

func NewArtifactStore(root string) (*ArtifactStore, error) {
	s := &ArtifactStore{root: root}
	for _, dir := range []string{s.FullDir(), s.WALDir(), s.BaseDir(), s.TempDir(), s.LockDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	return s, nil
}

func (s *ArtifactStore) Root() string    { return s.root }
func (s *ArtifactStore) FullDir() string { return filepath.Join(s.root, "full") }
func (s *ArtifactStore) WALDir() string  { return filepath.Join(s.root, "wal") }
func (s *ArtifactStore) BaseDir() string { return filepath.Join(s.root, "base") }
func (s *ArtifactStore) TempDir() string { return filepath.Join(s.root, "tmp") }
func (s *ArtifactStore) LockDir() string { return filepath.Join(s.root, "locks") }

// BackupFilename builds the canonical artifact name. The embedded timestamp
// makes names sort chronologically and keeps every run's output unique.
func (s *ArtifactStore) BackupFilename(database string, t time.Time) string {
	return fmt.Sprintf("%s_%s%s", database, t.Format(domain.TimestampLayout), backupSuffix)
}

func (s *ArtifactStore) ArtifactPath(filename string) string {
	return filepath.Join(s.FullDir(), filename)
}

func (s *ArtifactStore) MetadataPath(filename string) string {
	return filepath.Join(s.FullDir(), strings.TrimSuffix(filename, backupSuffix)+metadataSuffix)
}

// ParseBackupTime recovers the creation timestamp embedded in an artifact name.
func ParseBackupTime(filename string) (time.Time, error) {
	name := strings.TrimSuffix(filepath.Base(filename), backupSuffix)
	parts := strings.Split(name, "_")
	if len(parts) < 3 {
		return time.Time{}, fmt.Errorf("invalid backup filename: %s", filename)
	}
	return time.Parse(domain.TimestampLayout, parts[len(parts)-2]+"_"+parts[len(parts)-1])
}

// WriteMetadata persists the sidecar record atomically (temp file + rename),
// so a crash never leaves a half-written record next to a durable artifact.
func (s *ArtifactStore) WriteMetadata(filename string, meta *domain.BackupMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	path := s.MetadataPath(filename)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize metadata: %w", err)
	}
	return nil
}

func (s *ArtifactStore) ReadMetadata(filename string) (*domain.BackupMetadata, error) {
	data, err := os.ReadFile(s.MetadataPath(filename))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta domain.BackupMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &meta, nil
}

// ListArtifacts returns all full backups, newest first. A missing sidecar is
// tolerated (Metadata stays nil); the health monitor reports on it separately.
func (s *ArtifactStore) ListArtifacts() ([]domain.BackupArtifact, error) {
	entries, err := os.ReadDir(s.FullDir())
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var artifacts []domain.BackupArtifact
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), backupSuffix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}

		createdAt, err := ParseBackupTime(entry.Name())
		if err != nil {
			createdAt = info.ModTime()
		}

		artifact := domain.BackupArtifact{
			Filename:  entry.Name(),
			FilePath:  s.ArtifactPath(entry.Name()),
			Size:      info.Size(),
			CreatedAt: createdAt,
		}

		if meta, err := s.ReadMetadata(entry.Name()); err == nil {
			artifact.Metadata = meta
			artifact.Database = meta.Database
			artifact.Checksum = meta.Checksum
		}

		artifacts = append(artifacts, artifact)
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].CreatedAt.After(artifacts[j].CreatedAt)
	})

	return artifacts, nil
}

// LatestArtifact returns the newest full backup.
func (s *ArtifactStore) LatestArtifact() (*domain.BackupArtifact, error) {
	artifacts, err := s.ListArtifacts()
	if err != nil {
		return nil, err
	}
	if len(artifacts) == 0 {
		return nil, fmt.Errorf("%w: no backups in %s", domain.ErrNotFound, s.FullDir())
	}
	return &artifacts[0], nil
}

// DeleteArtifact removes a backup and its sidecar in lockstep, so retention
// never leaves orphaned metadata behind.
func (s *ArtifactStore) DeleteArtifact(filename string) error {
	if err := os.Remove(s.ArtifactPath(filename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	if err := os.Remove(s.MetadataPath(filename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}
	return nil
}

// Checksum computes the SHA-256 of the file content at path.
func Checksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *ArtifactStore) WALPath(name string) string {
	return filepath.Join(s.WALDir(), name)
}

func (s *ArtifactStore) HasWALSegment(name string) (bool, error) {
	_, err := os.Stat(s.WALPath(name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat WAL segment: %w", err)
}

// ListWALSegments returns archived segments sorted by name, which for WAL
// filenames equals LSN order.
func (s *ArtifactStore) ListWALSegments() ([]domain.WALSegment, error) {
	entries, err := os.ReadDir(s.WALDir())
	if err != nil {
		return nil, fmt.Errorf("failed to read WAL directory: %w", err)
	}

	var segments []domain.WALSegment
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		segments = append(segments, domain.WALSegment{
			Name:       entry.Name(),
			Size:       info.Size(),
			ArchivedAt: info.ModTime(),
		})
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Name < segments[j].Name
	})

	return segments, nil
}

func (s *ArtifactStore) DeleteWALSegment(name string) error {
	if err := os.Remove(s.WALPath(name)); err != nil {
		return fmt.Errorf("failed to delete WAL segment: %w", err)
	}
	return nil
}

const baseRecordName = "base.json"

// WriteBaseBackupRecord persists the base-backup record inside its directory.
func (s *ArtifactStore) WriteBaseBackupRecord(base *domain.BaseBackup) error {
	data, err := json.MarshalIndent(base, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal base backup record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(base.Path, baseRecordName), data, 0644); err != nil {
		return fmt.Errorf("failed to write base backup record: %w", err)
	}
	return nil
}

// ListBaseBackups returns base backups sorted newest first. Directories
// without a readable record are skipped; they are either in-flight or broken,
// and the health monitor will flag prolonged absence of usable base backups.
func (s *ArtifactStore) ListBaseBackups() ([]domain.BaseBackup, error) {
	entries, err := os.ReadDir(s.BaseDir())
	if err != nil {
		return nil, fmt.Errorf("failed to read base backup directory: %w", err)
	}

	var bases []domain.BaseBackup
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.BaseDir(), entry.Name(), baseRecordName))
		if err != nil {
			continue
		}
		var base domain.BaseBackup
		if err := json.Unmarshal(data, &base); err != nil {
			continue
		}
		bases = append(bases, base)
	}

	sort.Slice(bases, func(i, j int) bool {
		return bases[i].CreatedAt.After(bases[j].CreatedAt)
	})

	return bases, nil
}

func (s *ArtifactStore) DeleteBaseBackup(base *domain.BaseBackup) error {
	if err := os.RemoveAll(base.Path); err != nil {
		return fmt.Errorf("failed to delete base backup: %w", err)
	}
	return nil
}

// SweepTemp removes in-flight files older than maxAge that a killed run left
// behind. Returns the number of files removed.
func (s *ArtifactStore) SweepTemp(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.TempDir())
	if err != nil {
		return 0, fmt.Errorf("failed to read temp directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.TempDir(), entry.Name())); err == nil {
				removed++
			}
		}
	}

	return removed, nil
}
