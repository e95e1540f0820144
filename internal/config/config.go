// Package config provides centralized configuration management for the importer.
// It loads configuration from environment variables with sensible defaults and
// validates all settings before any import starts.
package config

import "time"

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Store    StoreConfig
	Database DatabaseConfig
	Import   ImportConfig
	Metrics  MetricsConfig
	Logging  LoggingConfig
}

// StoreConfig selects where records are written.
type StoreConfig struct {
	// Driver is postgres or sqlite (default: postgres)
	Driver string `env:"STORE_DRIVER" default:"postgres"`

	// DatabaseURL is the PostgreSQL connection string, required for postgres.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// SQLitePath is the database file for the sqlite driver (default: cities.db)
	SQLitePath string `env:"SQLITE_PATH" default:"cities.db"`

	// Table is the target table (default: cities)
	Table string `env:"STORE_TABLE" default:"cities"`

	// CreateTable creates the target table when missing (default: false)
	CreateTable bool `env:"STORE_CREATE_TABLE" default:"false"`
}

// DatabaseConfig holds PostgreSQL pool settings.
type DatabaseConfig struct {
	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 0)
	MinConns int `env:"DB_MIN_CONNS" default:"0"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds import pipeline settings.
type ImportConfig struct {
	// Format is auto or a registered format name (default: auto)
	Format string `env:"IMPORT_FORMAT" default:"auto"`

	// BufferSize is the read buffer ahead of the decompressor (default: 64KiB)
	BufferSize int `env:"IMPORT_BUFFER_SIZE" default:"65536"`

	// LockWait is how long to wait for a running import on the same store;
	// 0 fails at once when the store is busy (default: 30s)
	LockWait time.Duration `env:"IMPORT_LOCK_WAIT" default:"30s"`

	// Timeout bounds a single import; 0 means no limit (default: 0)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"0s"`

	// ProgressInterval throttles progress output (default: 500ms)
	ProgressInterval time.Duration `env:"IMPORT_PROGRESS_INTERVAL" default:"500ms"`

	// LogEvery logs a debug line every N inserted records (default: 1000)
	LogEvery int `env:"IMPORT_LOG_EVERY" default:"1000"`

	// MaxRejections caps rejected rows kept in the result (default: 100)
	MaxRejections int `env:"IMPORT_MAX_REJECTIONS" default:"100"`
}

// MetricsConfig holds the metrics endpoint settings.
type MetricsConfig struct {
	// Addr is the listen address for /metrics and /healthz; empty disables it
	Addr string `env:"METRICS_ADDR"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 5s)
	ShutdownTimeout time.Duration `env:"METRICS_SHUTDOWN_TIMEOUT" default:"5s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}
