// Package config provides environment-driven configuration for the upload
// analysis service. All settings have defaults except the database DSN;
// Load validates everything on startup so misconfiguration fails fast.
package config

import (
	"fmt"
	"time"
)

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Analysis AnalysisConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to.
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the listen port.
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout bounds request body reads.
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout bounds response writes.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the per-request middleware timeout.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig selects and configures the storage backend.
type DatabaseConfig struct {
	// Kind selects the backend: "postgres", "sqlite", or "mssql".
	Kind string `env:"DB_KIND" default:"sqlite"`

	// DSN is the backend connection string. The sqlite default keeps the
	// service runnable out of the box.
	DSN string `env:"DB_DSN" default:"file:datapeek.db?cache=shared&_fk=1"`
}

// AnalysisConfig carries the engine limits exposed to operators.
type AnalysisConfig struct {
	// MaxFileSize is the upload byte cap.
	MaxFileSize int64 `env:"ANALYSIS_MAX_FILE_SIZE" default:"10485760"`

	// MaxRows caps data rows per file.
	MaxRows int `env:"ANALYSIS_MAX_ROWS" default:"1000000"`

	// MaxColumns caps columns per file.
	MaxColumns int `env:"ANALYSIS_MAX_COLUMNS" default:"100"`

	// PreviewSize is the number of preview rows in a report.
	PreviewSize int `env:"ANALYSIS_PREVIEW_SIZE" default:"5"`
}

// LoggingConfig holds slog settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" default:"info"`
	Format string `env:"LOG_FORMAT" default:"text"`
}

// MetricsConfig configures the optional Datadog metrics backend. When
// disabled the service uses a no-op backend.
type MetricsConfig struct {
	Enabled bool `env:"METRICS_ENABLED" default:"false"`

	// JobName becomes the job tag on every metric.
	JobName string `env:"METRICS_JOB" default:"datapeek"`

	// Tags is a comma-separated list of extra tags (e.g. "env:prod").
	Tags string `env:"METRICS_TAGS" default:""`

	// FlushEvery controls how often buffered metrics are submitted.
	FlushEvery time.Duration `env:"METRICS_FLUSH_EVERY" default:"60s"`
}

// Validate checks cross-field constraints after loading.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Database.Kind {
	case "postgres", "sqlite", "mssql":
	default:
		return fmt.Errorf("unsupported database kind %q", c.Database.Kind)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	if c.Analysis.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive")
	}
	if c.Analysis.MaxRows <= 0 || c.Analysis.MaxColumns <= 0 {
		return fmt.Errorf("row and column limits must be positive")
	}
	if c.Analysis.PreviewSize < 1 {
		return fmt.Errorf("preview size must be at least 1")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.Logging.Format)
	}
	return nil
}
