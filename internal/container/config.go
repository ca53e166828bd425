// Package container provides dependency injection and lifecycle management
// for the docflow service.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	Database   DatabaseConfig
	Storage    StorageConfig
	Calendar   CalendarConfig
	Export     ExportConfig
	Visibility VisibilityConfig
	Schedule   ScheduleConfig
	Server     ServerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file, or ":memory:"
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration

	// MigrationsDir overrides the embedded schema when set
	MigrationsDir string
}

// StorageConfig holds signature blob storage settings.
type StorageConfig struct {
	Type           string
	LocalDir       string
	LocalPublicURL string
	S3Endpoint     string
	S3Bucket       string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3PublicURL    string
}

// CalendarConfig holds the holiday file location.
type CalendarConfig struct {
	HolidaysPath string
}

// ExportConfig holds spreadsheet export settings.
type ExportConfig struct {
	Font string
}

// VisibilityConfig lists the roles and job levels treated as admins.
type VisibilityConfig struct {
	AdminRoles     []string
	AdminJobLevels []string
}

// ScheduleConfig holds work-schedule defaults.
type ScheduleConfig struct {
	DefaultNightDutyRequired int
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/docflow.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		Storage: StorageConfig{
			Type:     "local",
			LocalDir: "data/signatures",
		},
		Calendar: CalendarConfig{
			HolidaysPath: "configs/holidays.yaml",
		},
		Visibility: VisibilityConfig{
			AdminRoles: []string{"HR_STAFF", "CENTER_DIRECTOR"},
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Storage.Type == "s3" && c.Storage.S3Bucket == "" {
		return fmt.Errorf("storage.s3_bucket is required for s3 storage")
	}
	if c.Storage.Type != "s3" && c.Storage.LocalDir == "" {
		return fmt.Errorf("storage.local_dir is required")
	}
	if c.Schedule.DefaultNightDutyRequired < 0 {
		return fmt.Errorf("schedule.default_night_duty_required cannot be negative")
	}
	return nil
}
