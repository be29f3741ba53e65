// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Catalog  CatalogConfig
	Import   ImportConfig
	Sync     SyncConfig
	Database DatabaseConfig
	Rate     RateLimitConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// CatalogConfig holds connection settings for the remote catalog service.
type CatalogConfig struct {
	// BaseURL is the root of the catalog API (required)
	// Supports both CATALOG_BASE_URL and CATALOG_URL env vars for compatibility
	BaseURL string `env:"CATALOG_BASE_URL" envAlt:"CATALOG_URL" required:"true"`

	// Token is the static bearer token sent on every request (required)
	Token string `env:"CATALOG_TOKEN" required:"true"`

	// Collection is the catalog collection holding the location records (default: shops)
	Collection string `env:"CATALOG_COLLECTION" default:"shops"`

	// Timeout is the per-request timeout for catalog calls (default: 15s)
	Timeout time.Duration `env:"CATALOG_TIMEOUT" default:"15s"`
}

// ImportConfig holds settings for parsing and validating uploaded files.
type ImportConfig struct {
	// MaxFileSize is the maximum allowed upload size in bytes (default: 20MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"20971520"`

	// ColumnID is the header of the unique identifier column (default: id)
	ColumnID string `env:"IMPORT_COLUMN_ID" default:"id"`

	// ColumnName is the header of the display name column (default: shop_name)
	ColumnName string `env:"IMPORT_COLUMN_NAME" default:"shop_name"`

	// ColumnGrouping is the header of the grouping column (default: shop_malls)
	ColumnGrouping string `env:"IMPORT_COLUMN_GROUPING" default:"shop_malls"`

	// ColumnGeoType is the header of the geometry type column (default: shop_location.type)
	ColumnGeoType string `env:"IMPORT_COLUMN_GEO_TYPE" default:"shop_location.type"`

	// ColumnCoordinates is the header of the coordinate pair column (default: shop_location.coordinates)
	ColumnCoordinates string `env:"IMPORT_COLUMN_COORDINATES" default:"shop_location.coordinates"`

	// ColumnAddress is the header of the address column (default: shop_address)
	ColumnAddress string `env:"IMPORT_COLUMN_ADDRESS" default:"shop_address"`

	// RetainFor is how long finished imports stay queryable (default: 1h)
	RetainFor time.Duration `env:"IMPORT_RETAIN_FOR" default:"1h"`
}

// SyncConfig holds settings for batch sync runs against the catalog.
type SyncConfig struct {
	// ThrottleDelay is the pause between successive record submissions (default: 500ms)
	ThrottleDelay time.Duration `env:"SYNC_THROTTLE_DELAY" default:"500ms"`

	// RunTimeout is the maximum duration for a whole sync run (default: 30m)
	RunTimeout time.Duration `env:"SYNC_RUN_TIMEOUT" default:"30m"`

	// MaxConcurrent is the maximum number of parallel sync runs (default: 1)
	MaxConcurrent int `env:"SYNC_MAX_CONCURRENT" default:"1"`

	// MaxWaitTime is how long a request waits for a run slot (default: 5s)
	MaxWaitTime time.Duration `env:"SYNC_MAX_WAIT_TIME" default:"5s"`
}

// DatabaseConfig holds settings for the optional run history database.
// When URL is empty the application runs without durable run records.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (optional)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ImportLimit is requests per minute for import endpoints (default: 10)
	ImportLimit int `env:"RATE_LIMIT_IMPORT" default:"10"`
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
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
