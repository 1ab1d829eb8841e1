package domain

import "time"

// BackupArtifact is a completed full backup: the compressed dump on disk plus
// the metadata persisted in its sidecar record.
type BackupArtifact struct {
	Database  string
	Filename  string
	FilePath  string
	Size      int64
	CreatedAt time.Time
	Duration  time.Duration
	Checksum  string
	Metadata  *BackupMetadata
}

// BackupMetadata is the sidecar record written next to every full backup.
// The JSON field names are the on-disk schema and must not change.
type BackupMetadata struct {
	BackupType       string  `json:"backup_type"`
	Database         string  `json:"database"`
	Timestamp        string  `json:"timestamp"`
	Hostname         string  `json:"hostname"`
	EngineVersion    string  `json:"engine_version"`
	DatabaseSize     int64   `json:"database_size"`
	BackupSize       int64   `json:"backup_size"`
	CompressionLevel int     `json:"compression_level"`
	DurationSeconds  float64 `json:"duration_seconds"`
	BackupFile       string  `json:"backup_file"`
	Checksum         string  `json:"checksum"`
}

// TimestampLayout is the layout used both inside metadata records and in
// backup filenames. Filenames built from it sort chronologically.
const TimestampLayout = "20060102_150405"

// RestoreReport summarizes a completed restore for audit logging.
type RestoreReport struct {
	Artifact     string
	Target       string
	Duration     time.Duration
	TableCount   int
	DatabaseSize int64
}
