package config

import (
	"time"

	"dfas-hq/dfas/pkg/identity"
)

// Config is the root configuration for dfas.
type Config struct {
	// Case identifies the case under collection and the collecting agent.
	Case CaseConfig `yaml:"case"`

	// Scan configures discovery.
	Scan ScanConfig `yaml:"scan"`

	// Processing configures the worker pool and signature rules.
	Processing ProcessingConfig `yaml:"processing"`

	// Storage configures the evidence store backend.
	Storage StorageConfig `yaml:"storage"`

	// Packaging configures exports, sealed packages and their upload.
	Packaging PackagingConfig `yaml:"packaging"`

	// CustodyStream publishes committed custody entries to external systems.
	CustodyStream CustodyStreamConfig `yaml:"custody_stream"`

	// Verify configures scheduled integrity verification.
	Verify VerifyConfig `yaml:"verify"`

	// Telemetry configures logging, metrics and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// CaseConfig identifies the case and the agent collecting it.
type CaseConfig struct {
	// ID is the case identifier. It may be supplied on the command line
	// instead.
	ID string `yaml:"id"`

	// AgentID is recorded as CollectedBy and as the custody actor.
	// Default: the host name
	AgentID string `yaml:"agent_id"`
}

// ScanConfig configures which files discovery accepts.
type ScanConfig struct {
	// Roots are the directories or files to scan.
	Roots []string `yaml:"roots"`

	// Excludes are path prefixes that are never collected.
	Excludes []string `yaml:"excludes"`

	// Extensions is the allow-list of file extensions. Empty accepts all.
	Extensions []string `yaml:"extensions"`

	// MaxFileSize is the size ceiling in bytes. 0 disables it.
	MaxFileSize int64 `yaml:"max_file_size"`

	// FollowSymlinks descends into symlinked directories.
	FollowSymlinks bool `yaml:"follow_symlinks"`

	// WatchDebounce is the quiet period before a changed file is collected
	// in watch mode.
	// Default: 500ms
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// ProcessingConfig configures the processing engine.
type ProcessingConfig struct {
	// Workers is the number of processing goroutines. 0 uses one per CPU.
	Workers int `yaml:"workers"`

	// QueueSize bounds the discovery queue.
	// Default: 1024
	QueueSize int `yaml:"queue_size"`

	// MaxScanBytes bounds how much content signature rules inspect.
	// Default: 1MiB
	MaxScanBytes int `yaml:"max_scan_bytes"`

	// DisableDefaultRules drops the built-in signature rules.
	DisableDefaultRules bool `yaml:"disable_default_rules"`

	// Rules are additional signature rules.
	Rules []identity.Rule `yaml:"rules"`
}

// StorageConfig configures the evidence store.
type StorageConfig struct {
	// Backend is "sqlite", "postgres" or "memory".
	// Default: sqlite
	Backend string `yaml:"backend"`

	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file.
	// Default: data/evidence.db
	Path string `yaml:"path"`

	// Driver is "sqlite3" (mattn/go-sqlite3, cgo) or "sqlite" (modernc.org/sqlite).
	// Default: sqlite3
	Driver string `yaml:"driver"`

	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	WALMode      bool          `yaml:"wal_mode"`
	BusyTimeout  time.Duration `yaml:"busy_timeout"`
}

// PostgresConfig configures the PostgreSQL backend.
type PostgresConfig struct {
	// DSN is a lib/pq connection string or URL.
	DSN string `yaml:"dsn"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// PackagingConfig configures exports and sealed packages.
type PackagingConfig struct {
	// OutputDir receives exports and packages.
	// Default: packages
	OutputDir string `yaml:"output_dir"`

	// RequireNonEmpty makes exporting or packaging an empty case an error.
	RequireNonEmpty bool `yaml:"require_non_empty"`

	// Upload configures where sealed packages are copied.
	Upload UploadConfig `yaml:"upload"`
}

// UploadConfig configures package upload.
type UploadConfig struct {
	S3 S3Config `yaml:"s3"`
}

// S3Config configures the S3 upload target. Upload is enabled when Bucket
// is set. Credentials come from the default AWS credential chain.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// Enabled reports whether an upload target is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// CustodyStreamConfig configures custody event publishing.
type CustodyStreamConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

// KafkaConfig configures the Kafka custody stream. It is enabled when
// Brokers is non-empty.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	MaxAttempts  int           `yaml:"max_attempts"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Enabled reports whether a Kafka stream is configured.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// VerifyConfig configures scheduled integrity verification.
type VerifyConfig struct {
	// Schedule is a standard five-field cron expression.
	// Default: "0 2 * * *"
	Schedule string `yaml:"schedule"`

	// Cases restricts scheduled verification. Empty verifies every case.
	Cases []string `yaml:"cases"`
}

// TelemetryConfig configures observability.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `yaml:"level"`

	// Format is "json" or "text".
	Format string `yaml:"format"`

	AddSource bool `yaml:"add_source"`

	// Redact masks credentials in log fields.
	Redact bool `yaml:"redact"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Namespace prefixes every metric name.
	// Default: dfas
	Namespace string `yaml:"namespace"`

	// ListenAddress serves /metrics while a long-running command (collect
	// --watch, verify --schedule) is active. Empty disables the endpoint.
	ListenAddress string `yaml:"listen_address"`

	// Path is the HTTP path of the metrics endpoint.
	// Default: /metrics
	Path string `yaml:"path"`

	// TextfilePath receives a node-exporter textfile snapshot when a
	// command finishes. Empty disables it.
	TextfilePath string `yaml:"textfile_path"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address (host:port).
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// SampleRatio is the fraction of root spans sampled.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName is reported as service.name.
	// Default: dfas
	ServiceName string `yaml:"service_name"`
}
