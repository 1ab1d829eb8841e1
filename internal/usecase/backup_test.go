package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/tradeops/pgvault/internal/adapter/compressor"
	"github.com/tradeops/pgvault/internal/adapter/storage"
	"github.com/tradeops/pgvault/internal/domain"
)

func newBackupFixture(t *testing.T, db *fakeDatabase) (*FullBackup, *storage.ArtifactStore, *fakeNotifier) {
	t.Helper()

	root := t.TempDir()
	store, err := storage.NewArtifactStore(root)
	if err != nil {
		t.Fatal(err)
	}

	comp, err := compressor.NewGzip(6)
	if err != nil {
		t.Fatal(err)
	}

	notifier := &fakeNotifier{}
	cleanup := NewCleanup(store, nil, testLogger{}, 30)
	uc := NewFullBackup(db, store, comp, notifier, nil, cleanup, testLogger{}, 6)
	return uc, store, notifier
}

func TestFullBackup(t *testing.T) {
	Convey("Given a full backup orchestrator", t, func() {
		ctx := context.Background()

		Convey("When the run succeeds", func() {
			db := newFakeDatabase()
			uc, store, notifier := newBackupFixture(t, db)

			artifact, err := uc.Execute(ctx, "trading")

			Convey("It should produce a durable, verified artifact", func() {
				So(err, ShouldBeNil)
				So(artifact, ShouldNotBeNil)

				info, statErr := os.Stat(artifact.FilePath)
				So(statErr, ShouldBeNil)
				So(info.Size(), ShouldBeGreaterThan, 0)

				sum, sumErr := storage.Checksum(artifact.FilePath)
				So(sumErr, ShouldBeNil)
				So(sum, ShouldEqual, artifact.Checksum)
			})

			Convey("It should persist the metadata sidecar", func() {
				So(err, ShouldBeNil)
				meta, metaErr := store.ReadMetadata(artifact.Filename)
				So(metaErr, ShouldBeNil)
				So(meta.BackupType, ShouldEqual, "full")
				So(meta.Database, ShouldEqual, "trading")
				So(meta.EngineVersion, ShouldEqual, "16.3")
				So(meta.CompressionLevel, ShouldEqual, 6)
				So(meta.Checksum, ShouldEqual, artifact.Checksum)
				So(meta.BackupFile, ShouldEqual, artifact.Filename)
			})

			Convey("The artifact should decompress back to the dump content", func() {
				So(err, ShouldBeNil)
				comp, _ := compressor.NewGzip(6)
				destPath := filepath.Join(t.TempDir(), "restored.sql")
				So(comp.Decompress(artifact.FilePath, destPath), ShouldBeNil)
				content, readErr := os.ReadFile(destPath)
				So(readErr, ShouldBeNil)
				So(string(content), ShouldEqual, string(db.dumpData))
			})

			Convey("It should send a success alert", func() {
				So(err, ShouldBeNil)
				So(notifier.priorities(), ShouldContain, domain.PriorityInfo)
			})
		})

		Convey("When the engine is unreachable", func() {
			db := newFakeDatabase()
			db.pingErr = domain.ErrConnection
			uc, store, notifier := newBackupFixture(t, db)

			_, err := uc.Execute(ctx, "trading")

			Convey("It should fail fast with a connection error and a critical alert", func() {
				So(errors.Is(err, domain.ErrConnection), ShouldBeTrue)
				So(notifier.priorities(), ShouldContain, domain.PriorityCritical)

				artifacts, listErr := store.ListArtifacts()
				So(listErr, ShouldBeNil)
				So(len(artifacts), ShouldEqual, 0)
			})
		})

		Convey("When the dump fails mid-stream", func() {
			db := newFakeDatabase()
			db.dumpErr = errors.New("connection reset")
			uc, store, _ := newBackupFixture(t, db)

			_, err := uc.Execute(ctx, "trading")

			Convey("It should clean up all partial state", func() {
				So(err, ShouldNotBeNil)

				artifacts, listErr := store.ListArtifacts()
				So(listErr, ShouldBeNil)
				So(len(artifacts), ShouldEqual, 0)

				entries, readErr := os.ReadDir(store.FullDir())
				So(readErr, ShouldBeNil)
				So(len(entries), ShouldEqual, 0)
			})
		})

		Convey("When the dump fails with an expired backup on disk", func() {
			db := newFakeDatabase()
			db.dumpErr = errors.New("connection reset")
			uc, store, _ := newBackupFixture(t, db)
			writeBackupAt(t, store, "trading", time.Now().AddDate(0, 0, -40))

			_, err := uc.Execute(ctx, "trading")

			Convey("Retention still prunes the expired backup", func() {
				So(err, ShouldNotBeNil)

				artifacts, listErr := store.ListArtifacts()
				So(listErr, ShouldBeNil)
				So(len(artifacts), ShouldEqual, 0)
			})
		})

		Convey("When the engine is unreachable with an expired backup on disk", func() {
			db := newFakeDatabase()
			db.pingErr = domain.ErrConnection
			uc, store, _ := newBackupFixture(t, db)
			writeBackupAt(t, store, "trading", time.Now().AddDate(0, 0, -40))
			fresh := writeBackupAt(t, store, "trading", time.Now().Add(-2*time.Hour))

			_, err := uc.Execute(ctx, "trading")

			Convey("Retention still runs, pruning only the expired backup", func() {
				So(errors.Is(err, domain.ErrConnection), ShouldBeTrue)

				artifacts, listErr := store.ListArtifacts()
				So(listErr, ShouldBeNil)
				So(len(artifacts), ShouldEqual, 1)
				So(artifacts[0].Filename, ShouldEqual, fresh)
			})
		})

		Convey("When a concurrent run holds the database lock", func() {
			db := newFakeDatabase()
			uc, store, _ := newBackupFixture(t, db)

			held, lockErr := lockForTest(store.LockDir(), "trading")
			So(lockErr, ShouldBeNil)
			defer held.Release()

			_, err := uc.Execute(ctx, "trading")

			Convey("It should fail fast with ErrLocked", func() {
				So(errors.Is(err, domain.ErrLocked), ShouldBeTrue)
			})
		})
	})
}
