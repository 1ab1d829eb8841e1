package domain

import (
	"fmt"
	"strconv"
	"time"
)

// ArchiveResult reports the outcome of one WAL archival attempt.
type ArchiveResult int

const (
	// ArchiveAccepted means the segment was copied into the archive.
	ArchiveAccepted ArchiveResult = iota
	// ArchiveSkipped means a segment with the same name was already
	// archived; the call is a no-op success (archive-once semantics).
	ArchiveSkipped
)

// WALSegment is one write-ahead-log file present in the archive directory.
// Names are assigned by the engine and sort in LSN order.
type WALSegment struct {
	Name       string
	Size       int64
	ArchivedAt time.Time
}

// BaseBackup is a physical snapshot directory plus the WAL position recovery
// has to start replaying from.
type BaseBackup struct {
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	StartWAL  string    `json:"start_wal"`
}

// A WAL segment name is 24 hex digits: timeline, log, and segment number,
// 8 digits each. With 16 MiB segments there are 0x100 segments per log file
// and the numbering never skips (engine >= 9.3 behavior).
const (
	walNameLen        = 24
	walSegmentsPerLog = 0x100
)

// IsWALSegmentName reports whether name looks like a regular WAL segment.
// Timeline history and backup label files do not match.
func IsWALSegmentName(name string) bool {
	if len(name) != walNameLen {
		return false
	}
	for _, c := range name {
		switch {
		case c >= '0' && c <= '9', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// NextWALSegmentName computes the expected successor of a segment on the
// same timeline.
func NextWALSegmentName(name string) (string, error) {
	if !IsWALSegmentName(name) {
		return "", fmt.Errorf("not a WAL segment name: %s", name)
	}

	timeline := name[:8]
	logNo, err := strconv.ParseUint(name[8:16], 16, 64)
	if err != nil {
		return "", fmt.Errorf("invalid log number in %s: %w", name, err)
	}
	segNo, err := strconv.ParseUint(name[16:24], 16, 64)
	if err != nil {
		return "", fmt.Errorf("invalid segment number in %s: %w", name, err)
	}

	segNo++
	if segNo == walSegmentsPerLog {
		segNo = 0
		logNo++
	}

	return fmt.Sprintf("%s%08X%08X", timeline, logNo, segNo), nil
}
