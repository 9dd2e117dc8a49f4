// Package config provides centralized configuration management for esetl.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Output names accepted by PIPELINE_OUTPUT and the CLI --output flag.
const (
	OutputPostgres = "postgres"
	OutputCSV      = "csv"
	OutputDiscard  = "discard"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Elastic  ElasticConfig
	Database DatabaseConfig
	Pipeline PipelineConfig
	Server   ServerConfig
	Run      RunConfig
	Schedule ScheduleConfig
	Logging  LoggingConfig
}

// ElasticConfig holds search cluster connection and scroll settings.
type ElasticConfig struct {
	// Addresses is a comma-separated list of cluster URLs
	Addresses []string `env:"ES_ADDRESSES" envAlt:"ELASTICSEARCH_URL"`

	// CloudID replaces Addresses for Elastic Cloud deployments
	CloudID string `env:"ES_CLOUD_ID"`

	Username string `env:"ES_USERNAME"`
	Password string `env:"ES_PASSWORD"`
	APIKey   string `env:"ES_API_KEY"`

	// CACert is a path to a PEM bundle used to verify the cluster certificate
	CACert string `env:"ES_CA_CERT"`

	// Index is the index name or pattern searched by default (default: logs-*)
	Index string `env:"ES_INDEX" default:"logs-*"`

	// PageSize is the number of hits per scroll page (default: 5000)
	PageSize int `env:"ES_PAGE_SIZE" default:"5000"`

	// KeepAlive is the scroll liveness requested on every fetch (default: 5m)
	KeepAlive time.Duration `env:"ES_SCROLL_KEEPALIVE" default:"5m"`

	// MaxRetries is the transport retry count for 502/503/504 (default: 3)
	MaxRetries int `env:"ES_MAX_RETRIES" default:"3"`

	TimestampField string `env:"ES_TIMESTAMP_FIELD" default:"ts"`
	SubjectField   string `env:"ES_SUBJECT_FIELD" default:"customer_id"`
	PayloadField   string `env:"ES_PAYLOAD_FIELD" default:"payload"`
}

// DatabaseConfig holds database connection settings.
// Only required when the pipeline writes to PostgreSQL.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string
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

// PipelineConfig holds projection and load settings.
type PipelineConfig struct {
	// Output selects the sink: postgres, csv or discard (default: postgres)
	Output string `env:"PIPELINE_OUTPUT" default:"postgres"`

	// CSVPath is the file written when Output is csv (default: export.csv)
	CSVPath string `env:"PIPELINE_CSV_PATH" default:"export.csv"`

	// BatchSize is the number of records per sink call (default: 1000)
	BatchSize int `env:"PIPELINE_BATCH_SIZE" default:"1000"`

	// Workers bounds parallel projection within a page (default: 4)
	Workers int `env:"PIPELINE_WORKERS" default:"4"`

	// KeepEmpty stores structured records whose fields are all empty
	KeepEmpty bool `env:"PIPELINE_KEEP_EMPTY" default:"false"`

	// ProfilesFile is an optional YAML file of additional extraction profiles
	ProfilesFile string `env:"PIPELINE_PROFILES_FILE"`

	// DrainTimeout bounds the final flush after cancellation (default: 30s)
	DrainTimeout time.Duration `env:"PIPELINE_DRAIN_TIMEOUT" default:"30s"`

	// ReleaseTimeout bounds the scroll release call (default: 10s)
	ReleaseTimeout time.Duration `env:"PIPELINE_RELEASE_TIMEOUT" default:"10s"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for long-polled results)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// APIKeys is a comma-separated list of keys accepted on /api routes.
	// Empty disables authentication.
	APIKeys []string `env:"SERVER_API_KEYS"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// forwarding headers are honored
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// RunConfig holds limits applied to pipeline runs.
type RunConfig struct {
	// MaxConcurrent is the maximum number of simultaneous runs (default: 2)
	MaxConcurrent int `env:"RUN_MAX_CONCURRENT" default:"2"`

	// MaxWaitTime is how long to wait for a run slot (default: 30s)
	MaxWaitTime time.Duration `env:"RUN_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds a single run; 0 disables the limit (default: 2h)
	Timeout time.Duration `env:"RUN_TIMEOUT" default:"2h"`

	// Retention is how long finished runs stay queryable in memory (default: 1h)
	Retention time.Duration `env:"RUN_RETENTION" default:"1h"`
}

// ScheduleConfig holds the optional daily backfill settings.
type ScheduleConfig struct {
	Enabled bool   `env:"SCHEDULE_ENABLED" default:"false"`
	Profile string `env:"SCHEDULE_PROFILE"`

	// Interval is how often the scheduler checks for a missing day (default: 1h)
	Interval time.Duration `env:"SCHEDULE_INTERVAL" default:"1h"`

	// Timezone defines calendar days, e.g. Asia/Jakarta (default: UTC)
	Timezone string `env:"SCHEDULE_TIMEZONE" default:"UTC"`
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

// Location resolves Timezone.
func (c *ScheduleConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// NeedsDatabase reports whether the configured output writes to PostgreSQL.
func (c *Config) NeedsDatabase() bool {
	return c.Pipeline.Output == OutputPostgres
}
