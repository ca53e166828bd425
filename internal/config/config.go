package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// EnvPrefix namespaces every environment override
const EnvPrefix = "DOCFLOW"

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Calendar   CalendarConfig   `mapstructure:"calendar"`
	Export     ExportConfig     `mapstructure:"export"`
	Visibility VisibilityConfig `mapstructure:"visibility"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Mode            string        `mapstructure:"mode"` // gin mode: debug, release, test
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
	MigrationsDir   string        `mapstructure:"migrations_dir"` // empty uses the embedded schema
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// StorageConfig selects where signature images are kept
type StorageConfig struct {
	Type           string `mapstructure:"type"` // local or s3
	LocalDir       string `mapstructure:"local_dir"`
	LocalPublicURL string `mapstructure:"local_public_url"`
	S3Endpoint     string `mapstructure:"s3_endpoint"`
	S3Bucket       string `mapstructure:"s3_bucket"`
	S3Region       string `mapstructure:"s3_region"`
	S3AccessKey    string `mapstructure:"s3_access_key"`
	S3SecretKey    string `mapstructure:"s3_secret_key"`
	S3PublicURL    string `mapstructure:"s3_public_url"`
}

// CalendarConfig points at the holiday file
type CalendarConfig struct {
	HolidaysPath string `mapstructure:"holidays_path"`
}

// ExportConfig holds spreadsheet export settings
type ExportConfig struct {
	Font string `mapstructure:"font"`
}

// VisibilityConfig lists who sees every document regardless of involvement
type VisibilityConfig struct {
	AdminRoles     []string `mapstructure:"admin_roles"`
	AdminJobLevels []string `mapstructure:"admin_job_levels"`
}

// ScheduleConfig holds work-schedule defaults
type ScheduleConfig struct {
	DefaultNightDutyRequired int `mapstructure:"default_night_duty_required"`
}

// Load reads the YAML file at configPath, then applies a .env file next to the
// working directory and DOCFLOW_* environment variables on top.
// An empty configPath uses defaults and the environment only.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.path", "data/docflow.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)
	v.SetDefault("database.migrations_dir", "")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_dir", "data/signatures")
	v.SetDefault("storage.local_public_url", "")
	v.SetDefault("storage.s3_endpoint", "")
	v.SetDefault("storage.s3_bucket", "")
	v.SetDefault("storage.s3_region", "us-east-1")
	v.SetDefault("storage.s3_access_key", "")
	v.SetDefault("storage.s3_secret_key", "")
	v.SetDefault("storage.s3_public_url", "")

	v.SetDefault("calendar.holidays_path", "configs/holidays.yaml")
	v.SetDefault("export.font", "")

	v.SetDefault("visibility.admin_roles", []string{"HR_STAFF", "CENTER_DIRECTOR"})
	v.SetDefault("visibility.admin_job_levels", []string{})

	v.SetDefault("schedule.default_night_duty_required", 0)
}

// bindEnvVars binds the short names kept for credentials and paths
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("database.path", "DOCFLOW_DB_PATH")
	_ = v.BindEnv("storage.s3_access_key", "DOCFLOW_S3_ACCESS_KEY")
	_ = v.BindEnv("storage.s3_secret_key", "DOCFLOW_S3_SECRET_KEY")
	_ = v.BindEnv("storage.s3_bucket", "DOCFLOW_S3_BUCKET")
	_ = v.BindEnv("storage.s3_endpoint", "DOCFLOW_S3_ENDPOINT")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Storage.Type {
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for local storage")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("storage.s3_bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("storage.type must be local or s3, got %q", c.Storage.Type)
	}

	if c.Schedule.DefaultNightDutyRequired < 0 {
		return fmt.Errorf("schedule.default_night_duty_required cannot be negative")
	}
	return nil
}
