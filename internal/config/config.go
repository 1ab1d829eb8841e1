package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/tradeops/pgvault/internal/domain"
)

type Config struct {
	App         AppConfig           `mapstructure:"app"`
	Database    DatabaseConfig      `mapstructure:"database"`
	Storage     StorageConfig       `mapstructure:"storage"`
	Backup      BackupConfig        `mapstructure:"backup"`
	Health      HealthConfig        `mapstructure:"health"`
	Alert       AlertConfig         `mapstructure:"alert"`
	Replication []ReplicationTarget `mapstructure:"replication"`
	Schedule    ScheduleConfig      `mapstructure:"schedule"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	// Rotation for the file stream; ignored when log_file is unset.
	LogMaxSizeMB  int `mapstructure:"log_max_size_mb"`
	LogMaxBackups int `mapstructure:"log_max_backups"`
	LogMaxAgeDays int `mapstructure:"log_max_age_days"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	PasswordFile string `mapstructure:"password_file"`
}

type StorageConfig struct {
	Root string `mapstructure:"root"`
}

type BackupConfig struct {
	RetentionDays    int  `mapstructure:"retention_days"`
	WALRetentionDays int  `mapstructure:"wal_retention_days"`
	CompressionLevel int  `mapstructure:"compression_level"`
	WALArchiving     bool `mapstructure:"wal_archiving"`
}

type HealthConfig struct {
	MaxBackupAgeHours  float64 `mapstructure:"max_backup_age_hours"`
	WarningMarginHours float64 `mapstructure:"warning_margin_hours"`
	MinFreeDiskGB      float64 `mapstructure:"min_free_disk_gb"`
	MaxDiskUsedPercent float64 `mapstructure:"max_disk_used_percent"`
}

type AlertConfig struct {
	URL         string   `mapstructure:"url"`
	ServiceName string   `mapstructure:"service_name"`
	Channels    []string `mapstructure:"channels"`

	// Optional Telegram mirror for warning/critical alerts.
	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	TelegramChatID   string `mapstructure:"telegram_chat_id"`
}

type ReplicationTarget struct {
	Type    string `mapstructure:"type"`
	Enabled bool   `mapstructure:"enabled"`

	// Google Drive
	CredentialsFile string `mapstructure:"credentials_file"`
	FolderID        string `mapstructure:"folder_id"`

	// AWS S3
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

type ScheduleConfig struct {
	FullBackup string   `mapstructure:"full_backup"`
	BaseBackup string   `mapstructure:"base_backup"`
	Monitor    string   `mapstructure:"monitor"`
	Databases  []string `mapstructure:"databases"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("PGVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.name", "pgvault")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_max_size_mb", 50)
	v.SetDefault("app.log_max_backups", 5)
	v.SetDefault("app.log_max_age_days", 14)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("backup.retention_days", 30)
	v.SetDefault("backup.wal_retention_days", 7)
	v.SetDefault("backup.compression_level", 6)
	v.SetDefault("health.max_backup_age_hours", 25)
	v.SetDefault("health.warning_margin_hours", 2)
	v.SetDefault("health.min_free_disk_gb", 10)
	v.SetDefault("health.max_disk_used_percent", 90)
	v.SetDefault("schedule.full_backup", "0 0 2 * * *")
	v.SetDefault("schedule.base_backup", "0 0 * * * *")
	v.SetDefault("schedule.monitor", "0 */15 * * * *")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: read config: %v", domain.ErrConfiguration, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config: %v", domain.ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("%w: database.host is required", domain.ErrConfiguration)
	}
	if c.Database.Username == "" {
		return fmt.Errorf("%w: database.username is required", domain.ErrConfiguration)
	}
	if c.Storage.Root == "" {
		return fmt.Errorf("%w: storage.root is required", domain.ErrConfiguration)
	}
	if c.Backup.CompressionLevel < 1 || c.Backup.CompressionLevel > 9 {
		return fmt.Errorf("%w: backup.compression_level must be within 1-9, got %d",
			domain.ErrConfiguration, c.Backup.CompressionLevel)
	}
	if c.Backup.RetentionDays <= 0 {
		return fmt.Errorf("%w: backup.retention_days must be positive", domain.ErrConfiguration)
	}
	if c.Backup.WALRetentionDays <= 0 {
		return fmt.Errorf("%w: backup.wal_retention_days must be positive", domain.ErrConfiguration)
	}
	if c.Health.MaxBackupAgeHours <= 0 {
		return fmt.Errorf("%w: health.max_backup_age_hours must be positive", domain.ErrConfiguration)
	}

	for i, target := range c.Replication {
		if !target.Enabled {
			continue
		}
		switch target.Type {
		case "s3":
			if target.Bucket == "" {
				return fmt.Errorf("%w: replication[%d]: bucket is required for s3", domain.ErrConfiguration, i)
			}
		case "gdrive":
			if target.CredentialsFile == "" {
				return fmt.Errorf("%w: replication[%d]: credentials_file is required for gdrive", domain.ErrConfiguration, i)
			}
		default:
			return fmt.Errorf("%w: replication[%d]: unknown type %q", domain.ErrConfiguration, i, target.Type)
		}
	}

	return nil
}

func (c *Config) EnabledReplicationTargets() []ReplicationTarget {
	var enabled []ReplicationTarget
	for _, target := range c.Replication {
		if target.Enabled {
			enabled = append(enabled, target)
		}
	}
	return enabled
}
