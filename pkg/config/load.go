package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DFAS_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values and validates the result. Environment variables
// are not consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func parse(data []byte) (*Config, error) {
	var cfg Config
	presetBools(&cfg)

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty file decodes to io.EOF and means "all defaults".
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides named DFAS_SECTION_FIELD (for example
// DFAS_STORAGE_SQLITE_PATH). Environment variables take precedence over the
// file.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
//
// A missing file is not an error when path is empty; defaults and the
// environment are used instead.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = NewDefault()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if cfg, err = parse(data); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// envOverride binds one environment variable to a field setter.
type envOverride struct {
	name string
	set  func(cfg *Config, val string) error
}

var envOverrides = []envOverride{
	{"CASE_ID", setString(func(c *Config) *string { return &c.Case.ID })},
	{"CASE_AGENT_ID", setString(func(c *Config) *string { return &c.Case.AgentID })},

	{"SCAN_ROOTS", setList(func(c *Config) *[]string { return &c.Scan.Roots })},
	{"SCAN_EXCLUDES", setList(func(c *Config) *[]string { return &c.Scan.Excludes })},
	{"SCAN_EXTENSIONS", setList(func(c *Config) *[]string { return &c.Scan.Extensions })},
	{"SCAN_MAX_FILE_SIZE", setInt64(func(c *Config) *int64 { return &c.Scan.MaxFileSize })},
	{"SCAN_FOLLOW_SYMLINKS", setBool(func(c *Config) *bool { return &c.Scan.FollowSymlinks })},
	{"SCAN_WATCH_DEBOUNCE", setDuration(func(c *Config) *time.Duration { return &c.Scan.WatchDebounce })},

	{"PROCESSING_WORKERS", setInt(func(c *Config) *int { return &c.Processing.Workers })},
	{"PROCESSING_QUEUE_SIZE", setInt(func(c *Config) *int { return &c.Processing.QueueSize })},

	{"STORAGE_BACKEND", setString(func(c *Config) *string { return &c.Storage.Backend })},
	{"STORAGE_SQLITE_PATH", setString(func(c *Config) *string { return &c.Storage.SQLite.Path })},
	{"STORAGE_SQLITE_DRIVER", setString(func(c *Config) *string { return &c.Storage.SQLite.Driver })},
	{"STORAGE_SQLITE_BUSY_TIMEOUT", setDuration(func(c *Config) *time.Duration { return &c.Storage.SQLite.BusyTimeout })},
	{"STORAGE_POSTGRES_DSN", setString(func(c *Config) *string { return &c.Storage.Postgres.DSN })},

	{"PACKAGING_OUTPUT_DIR", setString(func(c *Config) *string { return &c.Packaging.OutputDir })},
	{"PACKAGING_REQUIRE_NON_EMPTY", setBool(func(c *Config) *bool { return &c.Packaging.RequireNonEmpty })},
	{"PACKAGING_UPLOAD_S3_BUCKET", setString(func(c *Config) *string { return &c.Packaging.Upload.S3.Bucket })},
	{"PACKAGING_UPLOAD_S3_PREFIX", setString(func(c *Config) *string { return &c.Packaging.Upload.S3.Prefix })},
	{"PACKAGING_UPLOAD_S3_REGION", setString(func(c *Config) *string { return &c.Packaging.Upload.S3.Region })},
	{"PACKAGING_UPLOAD_S3_ENDPOINT", setString(func(c *Config) *string { return &c.Packaging.Upload.S3.Endpoint })},

	{"CUSTODY_STREAM_KAFKA_BROKERS", setList(func(c *Config) *[]string { return &c.CustodyStream.Kafka.Brokers })},
	{"CUSTODY_STREAM_KAFKA_TOPIC", setString(func(c *Config) *string { return &c.CustodyStream.Kafka.Topic })},

	{"VERIFY_SCHEDULE", setString(func(c *Config) *string { return &c.Verify.Schedule })},

	{"TELEMETRY_LOGGING_LEVEL", setString(func(c *Config) *string { return &c.Telemetry.Logging.Level })},
	{"TELEMETRY_LOGGING_FORMAT", setString(func(c *Config) *string { return &c.Telemetry.Logging.Format })},
	{"TELEMETRY_METRICS_ENABLED", setBool(func(c *Config) *bool { return &c.Telemetry.Metrics.Enabled })},
	{"TELEMETRY_METRICS_LISTEN_ADDRESS", setString(func(c *Config) *string { return &c.Telemetry.Metrics.ListenAddress })},
	{"TELEMETRY_METRICS_TEXTFILE_PATH", setString(func(c *Config) *string { return &c.Telemetry.Metrics.TextfilePath })},
	{"TELEMETRY_TRACING_ENABLED", setBool(func(c *Config) *bool { return &c.Telemetry.Tracing.Enabled })},
	{"TELEMETRY_TRACING_ENDPOINT", setString(func(c *Config) *string { return &c.Telemetry.Tracing.Endpoint })},
	{"TELEMETRY_TRACING_SAMPLE_RATIO", setFloat(func(c *Config) *float64 { return &c.Telemetry.Tracing.SampleRatio })},
}

// applyEnvOverrides applies DFAS_* environment variables. A value that
// cannot be parsed for its field is an error.
func applyEnvOverrides(cfg *Config) error {
	var errs []FieldError
	for _, o := range envOverrides {
		val, ok := os.LookupEnv(EnvPrefix + o.name)
		if !ok || val == "" {
			continue
		}
		if err := o.set(cfg, val); err != nil {
			errs = append(errs, FieldError{Field: EnvPrefix + o.name, Message: err.Error()})
		}
	}
	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func setString(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		*field(cfg) = val
		return nil
	}
}

// setList splits a comma-separated value.
func setList(field func(*Config) *[]string) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		var items []string
		for _, item := range strings.Split(val, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		*field(cfg) = items
		return nil
	}
}

func setBool(field func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}
}

func setInt(field func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		i, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		*field(cfg) = i
		return nil
	}
}

func setInt64(field func(*Config) *int64) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return err
		}
		*field(cfg) = i
		return nil
	}
}

func setFloat(field func(*Config) *float64) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return err
		}
		*field(cfg) = f
		return nil
	}
}

func setDuration(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		d, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*field(cfg) = d
		return nil
	}
}
