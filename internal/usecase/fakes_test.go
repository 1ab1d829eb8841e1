package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/tradeops/pgvault/internal/domain"
	"github.com/tradeops/pgvault/internal/infrastructure/lock"
)

func lockForTest(dir, database string) (*lock.DatabaseLock, error) {
	return lock.Acquire(dir, database)
}

type testLogger struct{}

func (testLogger) Infof(string, ...interface{})  {}
func (testLogger) Errorf(string, ...interface{}) {}
func (testLogger) Warnf(string, ...interface{})  {}

type fakeNotifier struct {
	mu     sync.Mutex
	events []domain.AlertEvent
}

func (n *fakeNotifier) Send(event domain.AlertEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *fakeNotifier) priorities() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.events {
		out = append(out, e.Priority)
	}
	return out
}

// fakeDatabase is an in-memory stand-in for the engine primitives.
type fakeDatabase struct {
	pingErr    error
	version    string
	dumpData   []byte
	dumpErr    error
	restoreErr error

	existing    map[string]bool
	tableCounts map[string]int
	sizes       map[string]int64

	dropped    []string
	created    []string
	terminated []string
	restored   []byte
}

func newFakeDatabase() *fakeDatabase {
	return &fakeDatabase{
		version:     "16.3",
		dumpData:    []byte("CREATE TABLE trades (id int);\n"),
		existing:    map[string]bool{},
		tableCounts: map[string]int{},
		sizes:       map[string]int64{},
	}
}

func (f *fakeDatabase) Ping(context.Context) error { return f.pingErr }

func (f *fakeDatabase) ServerVersion(context.Context) (string, error) { return f.version, nil }

func (f *fakeDatabase) Dump(_ context.Context, _ string, w io.Writer) error {
	if f.dumpErr != nil {
		return f.dumpErr
	}
	_, err := w.Write(f.dumpData)
	return err
}

func (f *fakeDatabase) Restore(_ context.Context, database string, r io.Reader) error {
	if f.restoreErr != nil {
		return f.restoreErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	f.restored = buf.Bytes()
	f.existing[database] = true
	return nil
}

func (f *fakeDatabase) BaseBackup(context.Context, string) error {
	return errors.New("not supported by fake")
}

func (f *fakeDatabase) DatabaseExists(_ context.Context, database string) (bool, error) {
	return f.existing[database], nil
}

func (f *fakeDatabase) DatabaseSize(_ context.Context, database string) (int64, error) {
	return f.sizes[database], nil
}

func (f *fakeDatabase) TableCount(_ context.Context, database string) (int, error) {
	return f.tableCounts[database], nil
}

func (f *fakeDatabase) CreateDatabase(_ context.Context, database string) error {
	f.created = append(f.created, database)
	f.existing[database] = true
	return nil
}

func (f *fakeDatabase) DropDatabase(_ context.Context, database string) error {
	f.dropped = append(f.dropped, database)
	delete(f.existing, database)
	return nil
}

func (f *fakeDatabase) TerminateConnections(_ context.Context, database string) error {
	f.terminated = append(f.terminated, database)
	return nil
}
