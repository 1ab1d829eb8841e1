package usecase

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/tradeops/pgvault/internal/adapter/storage"
	"github.com/tradeops/pgvault/internal/domain"
)

func newArchiverFixture(t *testing.T) (*Archiver, *storage.ArtifactStore) {
	t.Helper()

	store, err := storage.NewArtifactStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewArchiver(newFakeDatabase(), store, &fakeNotifier{}, testLogger{}, 7), store
}

func stageSegment(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestArchiveSegment(t *testing.T) {
	Convey("Given a WAL archiver", t, func() {
		ctx := context.Background()
		uc, store := newArchiverFixture(t)
		sourceDir := t.TempDir()

		const segment = "000000010000000000000001"

		Convey("When archiving a new segment", func() {
			path := stageSegment(t, sourceDir, segment, "first content")

			result, err := uc.ArchiveSegment(ctx, path, segment)

			Convey("It should accept and copy the segment", func() {
				So(err, ShouldBeNil)
				So(result, ShouldEqual, domain.ArchiveAccepted)

				content, readErr := os.ReadFile(store.WALPath(segment))
				So(readErr, ShouldBeNil)
				So(string(content), ShouldEqual, "first content")
			})
		})

		Convey("When the same segment name is delivered twice", func() {
			first := stageSegment(t, sourceDir, segment, "first content")
			result1, err1 := uc.ArchiveSegment(ctx, first, segment)

			second := stageSegment(t, sourceDir, "redelivered", "second content")
			result2, err2 := uc.ArchiveSegment(ctx, second, segment)

			Convey("Both calls succeed, one file exists, first content stands", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(result1, ShouldEqual, domain.ArchiveAccepted)
				So(result2, ShouldEqual, domain.ArchiveSkipped)

				segments, listErr := store.ListWALSegments()
				So(listErr, ShouldBeNil)
				So(len(segments), ShouldEqual, 1)

				content, readErr := os.ReadFile(store.WALPath(segment))
				So(readErr, ShouldBeNil)
				So(string(content), ShouldEqual, "first content")
			})
		})

		Convey("When the source file does not exist", func() {
			_, err := uc.ArchiveSegment(ctx, filepath.Join(sourceDir, "missing"), segment)

			Convey("It should return a creation error", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func writeBaseBackup(t *testing.T, store *storage.ArtifactStore, createdAt time.Time, startWAL string) *domain.BaseBackup {
	t.Helper()

	dir := filepath.Join(store.BaseDir(), createdAt.Format(domain.TimestampLayout))
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	base := &domain.BaseBackup{Path: dir, CreatedAt: createdAt, StartWAL: startWAL}
	if err := store.WriteBaseBackupRecord(base); err != nil {
		t.Fatal(err)
	}
	return base
}

func archiveAgedSegment(t *testing.T, store *storage.ArtifactStore, name string, archivedAt time.Time) {
	t.Helper()
	if err := os.WriteFile(store.WALPath(name), []byte("wal"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(store.WALPath(name), archivedAt, archivedAt); err != nil {
		t.Fatal(err)
	}
}

func TestPruneIncremental(t *testing.T) {
	Convey("Given base backups and WAL segments of mixed age", t, func() {
		ctx := context.Background()
		uc, store := newArchiverFixture(t)

		now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
		uc.now = func() time.Time { return now }

		// Expired base backup, and a retained one starting at segment ...10.
		writeBaseBackup(t, store, now.AddDate(0, 0, -10), "000000010000000000000002")
		writeBaseBackup(t, store, now.AddDate(0, 0, -3), "000000010000000000000010")

		old := now.AddDate(0, 0, -10)
		archiveAgedSegment(t, store, "000000010000000000000002", old)
		archiveAgedSegment(t, store, "000000010000000000000010", old)
		archiveAgedSegment(t, store, "000000010000000000000011", old)
		archiveAgedSegment(t, store, "000000010000000000000012", now.Add(-time.Hour))

		So(uc.PruneIncremental(ctx), ShouldBeNil)

		Convey("The expired base backup is removed, the retained one kept", func() {
			bases, err := store.ListBaseBackups()
			So(err, ShouldBeNil)
			So(len(bases), ShouldEqual, 1)
			So(bases[0].StartWAL, ShouldEqual, "000000010000000000000010")
		})

		Convey("Old segments below the replay floor are pruned, the rest kept", func() {
			segments, err := store.ListWALSegments()
			So(err, ShouldBeNil)

			names := map[string]bool{}
			for _, segment := range segments {
				names[segment.Name] = true
			}
			// Below the retained base's start position and expired: gone.
			So(names["000000010000000000000002"], ShouldBeFalse)
			// Expired but still required to replay the retained base: kept.
			So(names["000000010000000000000010"], ShouldBeTrue)
			So(names["000000010000000000000011"], ShouldBeTrue)
			// Fresh: kept.
			So(names["000000010000000000000012"], ShouldBeTrue)
		})
	})
}

func TestReadStartWAL(t *testing.T) {
	Convey("Given a backup_label file", t, func() {
		dir := t.TempDir()
		labelPath := filepath.Join(dir, "backup_label")

		Convey("When the label carries a start location", func() {
			label := "START WAL LOCATION: 0/2000028 (file 000000010000000000000002)\n" +
				"CHECKPOINT LOCATION: 0/2000060\n"
			So(os.WriteFile(labelPath, []byte(label), 0644), ShouldBeNil)

			startWAL, err := readStartWAL(labelPath)

			Convey("It should extract the segment name", func() {
				So(err, ShouldBeNil)
				So(startWAL, ShouldEqual, "000000010000000000000002")
			})
		})

		Convey("When the label has no start location line", func() {
			So(os.WriteFile(labelPath, []byte("LABEL: pgvault_base\n"), 0644), ShouldBeNil)

			_, err := readStartWAL(labelPath)

			Convey("It should fail", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}
