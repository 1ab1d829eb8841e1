package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/tradeops/pgvault/internal/domain"
)

// DatabaseLock serializes backup and restore runs for one database name via
// an advisory file lock. Two concurrent runs against the same database would
// otherwise race on timestamp-derived artifact names.
type DatabaseLock struct {
	fl *flock.Flock
}

// Acquire takes the lock for the named database, failing fast with ErrLocked
// when another run holds it. Lock files live under dir.
func Acquire(dir, database string) (*DatabaseLock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	fl := flock.New(filepath.Join(dir, database+".lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock for %s: %w", database, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: database %s", domain.ErrLocked, database)
	}

	return &DatabaseLock{fl: fl}, nil
}

func (l *DatabaseLock) Release() error {
	return l.fl.Unlock()
}
