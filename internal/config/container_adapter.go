package config

import (
	"github.com/garyjia/docflow/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		Storage: container.StorageConfig{
			Type:           c.Storage.Type,
			LocalDir:       c.Storage.LocalDir,
			LocalPublicURL: c.Storage.LocalPublicURL,
			S3Endpoint:     c.Storage.S3Endpoint,
			S3Bucket:       c.Storage.S3Bucket,
			S3Region:       c.Storage.S3Region,
			S3AccessKey:    c.Storage.S3AccessKey,
			S3SecretKey:    c.Storage.S3SecretKey,
			S3PublicURL:    c.Storage.S3PublicURL,
		},
		Calendar: container.CalendarConfig{
			HolidaysPath: c.Calendar.HolidaysPath,
		},
		Export: container.ExportConfig{
			Font: c.Export.Font,
		},
		Visibility: container.VisibilityConfig{
			AdminRoles:     c.Visibility.AdminRoles,
			AdminJobLevels: c.Visibility.AdminJobLevels,
		},
		Schedule: container.ScheduleConfig{
			DefaultNightDutyRequired: c.Schedule.DefaultNightDutyRequired,
		},
		Server: container.ServerConfig{
			Host:            c.Server.Host,
			Port:            c.Server.Port,
			ReadTimeout:     c.Server.ReadTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			ShutdownTimeout: c.Server.ShutdownTimeout,
		},
	}
}
