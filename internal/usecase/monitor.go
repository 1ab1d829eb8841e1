package usecase

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/disk"

	"github.com/tradeops/pgvault/internal/adapter/storage"
	"github.com/tradeops/pgvault/internal/config"
	"github.com/tradeops/pgvault/internal/domain"
)

// Monitor runs the fixed battery of health checks against the artifact
// store. Every check runs even when an earlier one fails, so a single bad
// check never masks the rest.
type Monitor struct {
	store        *storage.ArtifactStore
	compressor   domain.Compressor
	cfg          *config.HealthConfig
	walArchiving bool
	notifier     domain.Notifier
	logger       Logger

	now       func() time.Time
	diskUsage func(path string) (*disk.UsageStat, error)
}

func NewMonitor(
	store *storage.ArtifactStore,
	compressor domain.Compressor,
	cfg *config.HealthConfig,
	walArchiving bool,
	notifier domain.Notifier,
	logger Logger,
) *Monitor {
	return &Monitor{
		store:        store,
		compressor:   compressor,
		cfg:          cfg,
		walArchiving: walArchiving,
		notifier:     notifier,
		logger:       logger,
		now:          time.Now,
		diskUsage:    disk.Usage,
	}
}

const (
	integrityWindow = 7 * 24 * time.Hour
	trendWindow     = 7 * 24 * time.Hour
	countWindow     = 7 * 24 * time.Hour
	expectedWeekly  = 5
	usedWarnMargin  = 10 // percentage points below the disk-usage ceiling
)

// RunHealthChecks executes all checks in order and sends one summary alert
// driven by the aggregated verdict. Critical findings additionally fire
// their own narrower alerts as they occur.
func (uc *Monitor) RunHealthChecks(ctx context.Context) *domain.HealthVerdict {
	verdict := &domain.HealthVerdict{}

	checks := []func() domain.HealthCheckResult{
		uc.checkDirectories,
		uc.checkBackupAge,
		uc.checkIntegrity,
		uc.checkDiskSpace,
		uc.checkSizeTrend,
		uc.checkBackupCount,
		uc.checkWALArchive,
	}

	for _, check := range checks {
		result := check()
		verdict.Add(result)

		switch result.Severity {
		case domain.SeverityCritical:
			uc.logger.Errorf("health check %s: %s", result.Check, result.Message)
			uc.notifier.Send(domain.AlertEvent{
				HealthMetric: result.Check,
				Operator:     "==",
				Threshold:    1,
				Priority:     domain.PriorityCritical,
			})
		case domain.SeverityWarning:
			uc.logger.Warnf("health check %s: %s", result.Check, result.Message)
		default:
			uc.logger.Infof("health check %s: %s", result.Check, result.Message)
		}
	}

	uc.notifier.Send(domain.AlertEvent{
		HealthMetric: "backup_health",
		Operator:     "==",
		Threshold:    float64(verdict.Criticals),
		Priority:     verdict.Severity().String(),
	})

	uc.logger.Infof("health verdict: %s (%d warning(s), %d critical(s))",
		verdict.Severity(), verdict.Warnings, verdict.Criticals)
	return verdict
}

func (uc *Monitor) checkDirectories() domain.HealthCheckResult {
	required := []string{uc.store.FullDir(), uc.store.BaseDir()}
	if uc.walArchiving {
		required = append(required, uc.store.WALDir())
	}

	for _, dir := range required {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return domain.HealthCheckResult{
				Check:    "directory-presence",
				Severity: domain.SeverityCritical,
				Message:  fmt.Sprintf("required directory %s is missing", dir),
			}
		}
	}

	return domain.HealthCheckResult{
		Check:    "directory-presence",
		Severity: domain.SeverityOK,
		Message:  "all artifact directories present",
	}
}

func (uc *Monitor) checkBackupAge() domain.HealthCheckResult {
	latest, err := uc.store.LatestArtifact()
	if err != nil {
		return domain.HealthCheckResult{
			Check:    "backup-age",
			Severity: domain.SeverityCritical,
			Message:  "no full backups found",
		}
	}

	ageHours := uc.now().Sub(latest.CreatedAt).Hours()
	switch {
	case ageHours >= uc.cfg.MaxBackupAgeHours:
		return domain.HealthCheckResult{
			Check:    "backup-age",
			Severity: domain.SeverityCritical,
			Message: fmt.Sprintf("newest backup is %.1fh old, ceiling is %.0fh",
				ageHours, uc.cfg.MaxBackupAgeHours),
		}
	case ageHours >= uc.cfg.MaxBackupAgeHours-uc.cfg.WarningMarginHours:
		return domain.HealthCheckResult{
			Check:    "backup-age",
			Severity: domain.SeverityWarning,
			Message: fmt.Sprintf("newest backup is %.1fh old, within %.0fh of the %.0fh ceiling",
				ageHours, uc.cfg.WarningMarginHours, uc.cfg.MaxBackupAgeHours),
		}
	default:
		return domain.HealthCheckResult{
			Check:    "backup-age",
			Severity: domain.SeverityOK,
			Message:  fmt.Sprintf("newest backup is %.1fh old", ageHours),
		}
	}
}

func (uc *Monitor) checkIntegrity() domain.HealthCheckResult {
	artifacts, err := uc.store.ListArtifacts()
	if err != nil {
		return domain.HealthCheckResult{
			Check:    "integrity",
			Severity: domain.SeverityCritical,
			Message:  fmt.Sprintf("cannot list backups: %v", err),
		}
	}

	cutoff := uc.now().Add(-integrityWindow)
	checked := 0
	for _, artifact := range artifacts {
		if artifact.CreatedAt.Before(cutoff) {
			continue
		}
		checked++

		if err := uc.compressor.Verify(artifact.FilePath); err != nil {
			return domain.HealthCheckResult{
				Check:    "integrity",
				Severity: domain.SeverityCritical,
				Message:  fmt.Sprintf("backup %s failed container check: %v", artifact.Filename, err),
			}
		}

		if artifact.Checksum != "" {
			sum, err := storage.Checksum(artifact.FilePath)
			if err != nil {
				return domain.HealthCheckResult{
					Check:    "integrity",
					Severity: domain.SeverityCritical,
					Message:  fmt.Sprintf("backup %s unreadable: %v", artifact.Filename, err),
				}
			}
			if sum != artifact.Checksum {
				return domain.HealthCheckResult{
					Check:    "integrity",
					Severity: domain.SeverityCritical,
					Message:  fmt.Sprintf("backup %s checksum mismatch", artifact.Filename),
				}
			}
		}
	}

	return domain.HealthCheckResult{
		Check:    "integrity",
		Severity: domain.SeverityOK,
		Message:  fmt.Sprintf("%d recent backup(s) verified", checked),
	}
}

func (uc *Monitor) checkDiskSpace() domain.HealthCheckResult {
	usage, err := uc.diskUsage(uc.store.Root())
	if err != nil {
		return domain.HealthCheckResult{
			Check:    "disk-space",
			Severity: domain.SeverityCritical,
			Message:  fmt.Sprintf("cannot read disk usage: %v", err),
		}
	}

	freeGB := float64(usage.Free) / (1 << 30)
	message := fmt.Sprintf("%s free, %.1f%% used",
		humanize.IBytes(usage.Free), usage.UsedPercent)

	switch {
	case freeGB < uc.cfg.MinFreeDiskGB || usage.UsedPercent > uc.cfg.MaxDiskUsedPercent:
		return domain.HealthCheckResult{
			Check:    "disk-space",
			Severity: domain.SeverityCritical,
			Message:  message,
		}
	// Warning bands derive from the configured limits: double the free-space
	// floor, and usedWarnMargin below the usage ceiling.
	case freeGB < 2*uc.cfg.MinFreeDiskGB || usage.UsedPercent > uc.cfg.MaxDiskUsedPercent-usedWarnMargin:
		return domain.HealthCheckResult{
			Check:    "disk-space",
			Severity: domain.SeverityWarning,
			Message:  message,
		}
	default:
		return domain.HealthCheckResult{
			Check:    "disk-space",
			Severity: domain.SeverityOK,
			Message:  message,
		}
	}
}

func (uc *Monitor) checkSizeTrend() domain.HealthCheckResult {
	artifacts, err := uc.store.ListArtifacts()
	if err != nil || len(artifacts) < 2 {
		return domain.HealthCheckResult{
			Check:    "size-trend",
			Severity: domain.SeverityOK,
			Message:  "not enough backups for trend comparison",
		}
	}

	newest, prior := artifacts[0], artifacts[1]
	if prior.CreatedAt.Before(uc.now().Add(-trendWindow)) || prior.Size == 0 {
		return domain.HealthCheckResult{
			Check:    "size-trend",
			Severity: domain.SeverityOK,
			Message:  "no prior backup within the trend window",
		}
	}

	change := (float64(newest.Size) - float64(prior.Size)) / float64(prior.Size) * 100
	message := fmt.Sprintf("size changed %.1f%% (%s -> %s)",
		change, humanize.IBytes(uint64(prior.Size)), humanize.IBytes(uint64(newest.Size)))

	switch {
	case change < -30:
		// Possible silent data loss.
		return domain.HealthCheckResult{
			Check:    "size-trend",
			Severity: domain.SeverityWarning,
			Message:  message,
		}
	case change > 50:
		return domain.HealthCheckResult{
			Check:    "size-trend",
			Severity: domain.SeverityWarning,
			Message:  message,
		}
	default:
		return domain.HealthCheckResult{
			Check:    "size-trend",
			Severity: domain.SeverityOK,
			Message:  message,
		}
	}
}

func (uc *Monitor) checkBackupCount() domain.HealthCheckResult {
	artifacts, err := uc.store.ListArtifacts()
	if err != nil {
		return domain.HealthCheckResult{
			Check:    "backup-count",
			Severity: domain.SeverityCritical,
			Message:  fmt.Sprintf("cannot list backups: %v", err),
		}
	}

	if len(artifacts) == 0 {
		return domain.HealthCheckResult{
			Check:    "backup-count",
			Severity: domain.SeverityCritical,
			Message:  "no backups exist",
		}
	}

	cutoff := uc.now().Add(-countWindow)
	recent := 0
	for _, artifact := range artifacts {
		if !artifact.CreatedAt.Before(cutoff) {
			recent++
		}
	}

	switch {
	case recent == 0:
		return domain.HealthCheckResult{
			Check:    "backup-count",
			Severity: domain.SeverityCritical,
			Message:  "no backups within the last 7 days",
		}
	case recent < expectedWeekly:
		return domain.HealthCheckResult{
			Check:    "backup-count",
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf("only %d backup(s) in the last 7 days, expected at least %d", recent, expectedWeekly),
		}
	default:
		return domain.HealthCheckResult{
			Check:    "backup-count",
			Severity: domain.SeverityOK,
			Message:  fmt.Sprintf("%d backup(s) in the last 7 days", recent),
		}
	}
}

func (uc *Monitor) checkWALArchive() domain.HealthCheckResult {
	if !uc.walArchiving {
		return domain.HealthCheckResult{
			Check:    "wal-archive-health",
			Severity: domain.SeverityOK,
			Message:  "WAL archiving not configured, check skipped",
		}
	}

	segments, err := uc.store.ListWALSegments()
	if err != nil {
		return domain.HealthCheckResult{
			Check:    "wal-archive-health",
			Severity: domain.SeverityCritical,
			Message:  fmt.Sprintf("cannot list WAL archive: %v", err),
		}
	}

	if len(segments) == 0 {
		return domain.HealthCheckResult{
			Check:    "wal-archive-health",
			Severity: domain.SeverityWarning,
			Message:  "WAL archiving configured but no segments archived",
		}
	}

	return domain.HealthCheckResult{
		Check:    "wal-archive-health",
		Severity: domain.SeverityOK,
		Message:  fmt.Sprintf("%d WAL segment(s) archived", len(segments)),
	}
}
