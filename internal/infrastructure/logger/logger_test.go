package logger

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNew(t *testing.T) {
	Convey("Given logger options", t, func() {
		Convey("A console-only logger initializes with defaults", func() {
			log, err := New(Options{})
			So(err, ShouldBeNil)
			So(log, ShouldNotBeNil)
			log.Close()
		})

		Convey("An invalid level is rejected", func() {
			_, err := New(Options{Level: "loud"})
			So(err, ShouldNotBeNil)
		})

		Convey("With a file configured, records land in the file as JSON", func() {
			logFile := filepath.Join(t.TempDir(), "logs", "pgvault.log")
			log, err := New(Options{Level: "debug", File: logFile})
			So(err, ShouldBeNil)

			log.Infof("backup of %s complete", "trading")
			log.Close()

			data, readErr := os.ReadFile(logFile)
			So(readErr, ShouldBeNil)
			So(string(data), ShouldContainSubstring, `"backup of trading complete"`)
			So(string(data), ShouldContainSubstring, `"timestamp"`)
		})

		Convey("Messages below the configured level are dropped", func() {
			logFile := filepath.Join(t.TempDir(), "pgvault.log")
			log, err := New(Options{Level: "warn", File: logFile})
			So(err, ShouldBeNil)

			log.Infof("routine detail")
			log.Warnf("backup is aging")
			log.Close()

			data, readErr := os.ReadFile(logFile)
			So(readErr, ShouldBeNil)
			So(string(data), ShouldNotContainSubstring, "routine detail")
			So(string(data), ShouldContainSubstring, "backup is aging")
		})
	})
}
