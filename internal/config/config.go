// Package config provides centralized configuration management for dynatable.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Import     ImportConfig
	Retry      RetryConfig
	Notify     NotifyConfig
	Jobs       JobsConfig
	Identifier IdentifierConfig
	Rate       RateLimitConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver selects the store: postgres or sqlite (default: postgres)
	Driver string `env:"DB_DRIVER" default:"postgres"`

	// URL is the connection string: a PostgreSQL URL or a SQLite file path / DSN (required).
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds CSV import settings.
type ImportConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 100MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of import jobs running at once (default: 5)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long a queued job waits for a worker slot (default: 5m)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"5m"`

	// BatchSize is the number of rows per INSERT statement (default: 1000)
	BatchSize int `env:"IMPORT_BATCH_SIZE" default:"1000"`

	// Timeout is the maximum duration for a single import (default: 10m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"10m"`

	// UniqueFields lists column names whose values must be unique across imports (default: email)
	UniqueFields []string `env:"IMPORT_UNIQUE_FIELDS" default:"email"`
}

// RetryConfig controls re-running failed import jobs.
type RetryConfig struct {
	// Attempts is the total number of tries per job; 1 disables retry (default: 1)
	Attempts int `env:"IMPORT_RETRY_ATTEMPTS" default:"1"`

	// Delay is the pause between attempts (default: 5s)
	Delay time.Duration `env:"IMPORT_RETRY_DELAY" default:"5s"`

	// OnlyDatabase restricts retries to database failures (default: true)
	OnlyDatabase bool `env:"IMPORT_RETRY_ONLY_DATABASE" default:"true"`
}

// NotifyConfig selects where job outcome notifications go.
type NotifyConfig struct {
	// Sink is log, smtp or both (default: log)
	Sink string `env:"NOTIFY_SINK" default:"log"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" default:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM" default:"noreply@example.com"`
}

// JobsConfig holds import job bookkeeping settings.
type JobsConfig struct {
	// RetentionDays is how long finished job records are kept (default: 30)
	RetentionDays int `env:"JOBS_RETENTION_DAYS" default:"30"`

	// RetentionSchedule is the cron expression for the retention sweep (default: daily at 03:00)
	RetentionSchedule string `env:"JOBS_RETENTION_SCHEDULE" default:"0 3 * * *"`
}

// IdentifierConfig extends the identifier rules.
type IdentifierConfig struct {
	// ReservedWords are additional names rejected as tables or columns
	ReservedWords []string `env:"IDENT_RESERVED_WORDS"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for the upload endpoint (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose forwarding headers are honored
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
