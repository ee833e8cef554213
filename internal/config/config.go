// Package config loads the service configuration from environment variables
// with sensible defaults and validates it on startup to fail fast on
// misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Upload   UploadConfig
	Import   ImportConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envDefault:"3000"`

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`

	// WriteTimeout stays 0 so long imports can finish writing their response
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"0s"`

	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// RequestTimeout applies to read routes only; uploads run to completion
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" envDefault:"60s"`
}

// StoreConfig selects and tunes the policy database.
type StoreConfig struct {
	// Path is a SQLite file path or a postgres:// URL
	Path string `env:"STORE_PATH" envDefault:"insurance_policies.db"`

	// Pool settings, PostgreSQL only. Zero keeps the pgx default.
	MaxConns        int           `env:"DB_MAX_CONNS" envDefault:"0"`
	MinConns        int           `env:"DB_MIN_CONNS" envDefault:"0"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`

	// BusyTimeout is how long SQLite waits on a locked database
	BusyTimeout time.Duration `env:"SQLITE_BUSY_TIMEOUT" envDefault:"5s"`
}

// UploadConfig holds upload staging settings.
type UploadConfig struct {
	Dir         string `env:"UPLOAD_DIR" envDefault:"uploads"`
	MaxFileSize int64  `env:"UPLOAD_MAX_FILE_SIZE" envDefault:"104857600"`

	// KeepStaged leaves staged files on disk after import
	KeepStaged bool `env:"UPLOAD_KEEP_STAGED" envDefault:"false"`
}

// ImportConfig holds import pipeline settings.
type ImportConfig struct {
	// MaxConcurrent bounds simultaneous imports; 1 serializes them
	MaxConcurrent int           `env:"IMPORT_MAX_CONCURRENT" envDefault:"1"`
	MaxWait       time.Duration `env:"IMPORT_MAX_WAIT" envDefault:"30s"`

	// SourceEncoding is the charset of uploaded files: utf-8, windows-1252, iso-8859-1
	SourceEncoding string `env:"IMPORT_SOURCE_ENCODING" envDefault:"utf-8"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" envDefault:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// AllowedOrigins lists CORS origins; "*" allows any
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	EnableCSP bool `env:"SECURITY_ENABLE_CSP" envDefault:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	Path    string `env:"METRICS_PATH" envDefault:"/metrics"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
