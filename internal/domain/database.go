package domain

import (
	"context"
	"io"
)

// Database is the set of engine primitives the orchestrators depend on. The
// production implementation shells out to the PostgreSQL client tools.
type Database interface {
	Ping(ctx context.Context) error
	ServerVersion(ctx context.Context) (string, error)

	// Dump streams a logical dump of the named database into w.
	Dump(ctx context.Context, database string, w io.Writer) error
	// Restore replays a plain-format dump from r into the named database,
	// stopping on the first error.
	Restore(ctx context.Context, database string, r io.Reader) error

	// BaseBackup takes a physical snapshot of the cluster into destDir.
	BaseBackup(ctx context.Context, destDir string) error

	DatabaseExists(ctx context.Context, database string) (bool, error)
	DatabaseSize(ctx context.Context, database string) (int64, error)
	TableCount(ctx context.Context, database string) (int, error)
	CreateDatabase(ctx context.Context, database string) error
	DropDatabase(ctx context.Context, database string) error
	TerminateConnections(ctx context.Context, database string) error
}
