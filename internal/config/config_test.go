package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/tradeops/pgvault/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
database:
  username: backup_svc
storage:
  root: /var/lib/pgvault
`

func TestLoad(t *testing.T) {
	Convey("Given a minimal configuration file", t, func() {
		cfg, err := Load(writeConfig(t, minimalConfig))

		Convey("It loads with defaults filled in", func() {
			So(err, ShouldBeNil)
			So(cfg.App.Name, ShouldEqual, "pgvault")
			So(cfg.App.LogMaxSizeMB, ShouldEqual, 50)
			So(cfg.App.LogMaxBackups, ShouldEqual, 5)
			So(cfg.App.LogMaxAgeDays, ShouldEqual, 14)
			So(cfg.Database.Host, ShouldEqual, "localhost")
			So(cfg.Database.Port, ShouldEqual, 5432)
			So(cfg.Backup.RetentionDays, ShouldEqual, 30)
			So(cfg.Backup.WALRetentionDays, ShouldEqual, 7)
			So(cfg.Backup.CompressionLevel, ShouldEqual, 6)
			So(cfg.Health.MaxBackupAgeHours, ShouldEqual, 25)
			So(cfg.Health.WarningMarginHours, ShouldEqual, 2)
			So(cfg.Schedule.FullBackup, ShouldEqual, "0 0 2 * * *")
		})
	})

	Convey("Given a full configuration file", t, func() {
		cfg, err := Load(writeConfig(t, `
database:
  host: db-primary
  port: 5433
  username: backup_svc
  password_file: /run/secrets/pgpass
storage:
  root: /srv/backups
backup:
  retention_days: 14
  compression_level: 9
  wal_archiving: true
alert:
  url: http://alerts.internal/v1/events
  service_name: trading-backups
  channels: [ops, dba]
replication:
  - type: s3
    enabled: true
    region: eu-west-1
    bucket: trading-backups
  - type: gdrive
    enabled: false
    credentials_file: /etc/pgvault/gdrive.json
schedule:
  databases: [trading, settlement]
`))

		Convey("All sections unmarshal", func() {
			So(err, ShouldBeNil)
			So(cfg.Database.PasswordFile, ShouldEqual, "/run/secrets/pgpass")
			So(cfg.Backup.WALArchiving, ShouldBeTrue)
			So(cfg.Alert.Channels, ShouldResemble, []string{"ops", "dba"})
			So(cfg.Schedule.Databases, ShouldResemble, []string{"trading", "settlement"})
		})

		Convey("Only enabled replication targets are returned", func() {
			targets := cfg.EnabledReplicationTargets()
			So(len(targets), ShouldEqual, 1)
			So(targets[0].Type, ShouldEqual, "s3")
		})
	})

	Convey("Given a missing configuration file", t, func() {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))

		Convey("It fails with a configuration error", func() {
			So(errors.Is(err, domain.ErrConfiguration), ShouldBeTrue)
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given invalid configurations", t, func() {
		cases := []struct {
			name    string
			content string
		}{
			{"missing username", `
database:
  host: db-primary
storage:
  root: /srv/backups
`},
			{"missing storage root", `
database:
  username: backup_svc
`},
			{"compression level out of range", minimalConfig + `
backup:
  compression_level: 12
`},
			{"non-positive retention", minimalConfig + `
backup:
  retention_days: 0
`},
			{"s3 target without bucket", minimalConfig + `
replication:
  - type: s3
    enabled: true
`},
			{"unknown replication type", minimalConfig + `
replication:
  - type: ftp
    enabled: true
`},
		}

		for _, tc := range cases {
			Convey("Loading fails for "+tc.name, func() {
				_, err := Load(writeConfig(t, tc.content))
				So(errors.Is(err, domain.ErrConfiguration), ShouldBeTrue)
			})
		}
	})
}
