package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Override adjusts a loaded configuration before validation.
// The CLI uses overrides to apply flags on top of the environment.
type Override func(*Config)

// Load reads configuration from environment variables.
// It applies defaults for unset values, then overrides, and validates the result.
// Returns an error if required values are missing or validation fails.
func Load(overrides ...Override) (*Config, error) {
	return LoadFrom(os.LookupEnv, overrides...)
}

// LoadFrom is Load with a custom variable lookup.
func LoadFrom(lookup func(string) (string, bool), overrides ...Override) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), lookup); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	for _, o := range overrides {
		o(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad(overrides ...Override) *Config {
	cfg, err := Load(overrides...)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value, lookup func(string) (string, bool)) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal, lookup); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value := getenv(lookup, envName)
		if value == "" {
			if alt := field.Tag.Get("envAlt"); alt != "" {
				value = getenv(lookup, alt)
			}
		}

		if value == "" {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = field.Tag.Get("default")
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

func getenv(lookup func(string) (string, bool), name string) string {
	v, _ := lookup(name)
	return strings.TrimSpace(v)
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		field.Set(reflect.ValueOf(splitList(value)))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// splitList splits comma-separated values and drops blanks.
func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Elastic
	if len(c.Elastic.Addresses) == 0 && c.Elastic.CloudID == "" {
		errs = append(errs, "ES_ADDRESSES or ES_CLOUD_ID is required")
	}
	if c.Elastic.APIKey != "" && c.Elastic.Username != "" {
		errs = append(errs, "ES_API_KEY and ES_USERNAME are mutually exclusive")
	}
	if c.Elastic.Index == "" {
		errs = append(errs, "ES_INDEX is required")
	}
	if c.Elastic.PageSize <= 0 || c.Elastic.PageSize > 10000 {
		errs = append(errs, fmt.Sprintf("ES_PAGE_SIZE (%d) must be 1-10000", c.Elastic.PageSize))
	}
	if c.Elastic.KeepAlive <= 0 {
		errs = append(errs, "ES_SCROLL_KEEPALIVE must be positive")
	}
	if c.Elastic.MaxRetries < 0 {
		errs = append(errs, "ES_MAX_RETRIES must be non-negative")
	}
	if c.Elastic.TimestampField == "" {
		errs = append(errs, "ES_TIMESTAMP_FIELD is required")
	}

	// Pipeline
	switch c.Pipeline.Output {
	case OutputPostgres, OutputDiscard:
	case OutputCSV:
		if c.Pipeline.CSVPath == "" {
			errs = append(errs, "PIPELINE_CSV_PATH is required when PIPELINE_OUTPUT is csv")
		}
	default:
		errs = append(errs, fmt.Sprintf("PIPELINE_OUTPUT (%q) must be one of: postgres, csv, discard", c.Pipeline.Output))
	}
	if c.Pipeline.BatchSize <= 0 {
		errs = append(errs, "PIPELINE_BATCH_SIZE must be positive")
	}
	if c.Pipeline.Workers <= 0 {
		errs = append(errs, "PIPELINE_WORKERS must be positive")
	}
	if c.Pipeline.DrainTimeout <= 0 {
		errs = append(errs, "PIPELINE_DRAIN_TIMEOUT must be positive")
	}
	if c.Pipeline.ReleaseTimeout <= 0 {
		errs = append(errs, "PIPELINE_RELEASE_TIMEOUT must be positive")
	}

	// Database, only when it is the sink
	if c.NeedsDatabase() {
		if c.Database.URL == "" {
			errs = append(errs, "DATABASE_URL is required when PIPELINE_OUTPUT is postgres")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Database.MaxConns, c.Database.MinConns))
		}
		if c.Database.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 {
			errs = append(errs, "DB_MIN_CONNS must be non-negative")
		}
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Run
	if c.Run.MaxConcurrent <= 0 {
		errs = append(errs, "RUN_MAX_CONCURRENT must be positive")
	}
	if c.Run.MaxWaitTime <= 0 {
		errs = append(errs, "RUN_MAX_WAIT_TIME must be positive")
	}
	if c.Run.Timeout < 0 {
		errs = append(errs, "RUN_TIMEOUT must be non-negative")
	}

	// Schedule
	if c.Schedule.Enabled {
		if c.Schedule.Profile == "" {
			errs = append(errs, "SCHEDULE_PROFILE is required when SCHEDULE_ENABLED is true")
		}
		if c.Schedule.Interval <= 0 {
			errs = append(errs, "SCHEDULE_INTERVAL must be positive")
		}
	}
	if _, err := c.Schedule.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("SCHEDULE_TIMEZONE (%q) is not a known timezone", c.Schedule.Timezone))
	}

	// Logging
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Credentials and the database URL are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Elastic: {Addresses: %v, CloudID: %s, Auth: %s, Index: %q, PageSize: %d, KeepAlive: %s}, ",
		c.Elastic.Addresses, mask(c.Elastic.CloudID), c.authMode(), c.Elastic.Index,
		c.Elastic.PageSize, c.Elastic.KeepAlive)
	fmt.Fprintf(&b, "Database: {URL: %s, MaxConns: %d, MinConns: %d}, ",
		mask(c.Database.URL), c.Database.MaxConns, c.Database.MinConns)
	fmt.Fprintf(&b, "Pipeline: {Output: %q, BatchSize: %d, Workers: %d, KeepEmpty: %v}, ",
		c.Pipeline.Output, c.Pipeline.BatchSize, c.Pipeline.Workers, c.Pipeline.KeepEmpty)
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d, APIKeys: %d}, ",
		c.Server.Host, c.Server.Port, len(c.Server.APIKeys))
	fmt.Fprintf(&b, "Run: {MaxConcurrent: %d, Timeout: %s}, ", c.Run.MaxConcurrent, c.Run.Timeout)
	fmt.Fprintf(&b, "Schedule: {Enabled: %v, Profile: %q, Timezone: %q}, ",
		c.Schedule.Enabled, c.Schedule.Profile, c.Schedule.Timezone)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}

func (c *Config) authMode() string {
	switch {
	case c.Elastic.APIKey != "":
		return "api_key"
	case c.Elastic.Username != "":
		return "basic(" + c.Elastic.Username + ")"
	default:
		return "none"
	}
}

func mask(s string) string {
	if s == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}
