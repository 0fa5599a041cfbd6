// Package config provides centralized configuration management for the directory service.
// It loads configuration from environment variables with defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Bulk     BulkConfig
	Cache    CacheConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Backup   BackupConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on; PORT is honoured for hosted platforms (default: 8080)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8080"`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 30s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"30s"`
}

// StoreConfig selects and configures the durable store.
type StoreConfig struct {
	// Driver is one of sqlite, postgres, mongo (default: sqlite)
	Driver string `env:"STORE_DRIVER" default:"sqlite"`

	// Path is the SQLite database file (default: data.db)
	Path string `env:"STORE_PATH" envAlt:"DB_PATH" default:"data.db"`

	// URL is the PostgreSQL connection string, required for the postgres driver
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// MongoURI is the MongoDB connection string, required for the mongo driver
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" default:"idlookup"`

	// Timeout bounds every individual store call (default: 5s)
	Timeout time.Duration `env:"STORE_TIMEOUT" default:"5s"`
}

// BulkConfig holds bulk import settings.
type BulkConfig struct {
	// MaxSamples is how many rejected entries are echoed back (default: 5)
	MaxSamples int `env:"BULK_MAX_SAMPLES" default:"5"`

	// MaxBodySize is the largest accepted bulk payload in bytes (default: 1MB)
	MaxBodySize int64 `env:"BULK_MAX_BODY_SIZE" default:"1048576"`

	// MaxConcurrent is the number of bulk imports allowed at once (default: 2)
	MaxConcurrent int `env:"BULK_MAX_CONCURRENT" default:"2"`

	// MaxWaitTime is how long a bulk import waits for a slot (default: 10s)
	MaxWaitTime time.Duration `env:"BULK_MAX_WAIT_TIME" default:"10s"`
}

// CacheConfig controls the in-memory index.
type CacheConfig struct {
	// ReloadInterval rebuilds the index from the store periodically; 0 disables (default: 0s)
	ReloadInterval time.Duration `env:"CACHE_RELOAD_INTERVAL" default:"0s"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"120"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// APIKeys are the keys that mark a caller as privileged (comma-separated)
	APIKeys []string `env:"ADMIN_API_KEYS"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// BackupConfig holds S3 snapshot settings. Backups are off unless Bucket is set.
type BackupConfig struct {
	Bucket    string        `env:"BACKUP_S3_BUCKET"`
	Region    string        `env:"BACKUP_S3_REGION" default:"us-east-1"`
	Endpoint  string        `env:"BACKUP_S3_ENDPOINT"`
	PathStyle bool          `env:"BACKUP_S3_PATH_STYLE" default:"false"`
	Prefix    string        `env:"BACKUP_S3_PREFIX" default:"snapshots/"`
	Interval  time.Duration `env:"BACKUP_INTERVAL" default:"24h"`

	// Static credentials; when empty the default AWS credential chain is used
	AccessKeyID     string `env:"BACKUP_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"BACKUP_S3_SECRET_ACCESS_KEY"`
}

// Enabled reports whether snapshot backups are configured.
func (c *BackupConfig) Enabled() bool { return c.Bucket != "" }

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
