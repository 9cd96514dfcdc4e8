package config

import (
	"os"
	"time"

	"dfas-hq/dfas/pkg/identity"
)

// Default values for configuration fields.
const (
	// Scan defaults
	DefaultWatchDebounce = 500 * time.Millisecond

	// Processing defaults
	DefaultQueueSize    = 1024
	DefaultMaxScanBytes = identity.DefaultMaxScanBytes

	// Storage defaults
	DefaultStorageBackend       = "sqlite"
	DefaultSQLitePath           = "data/evidence.db"
	DefaultSQLiteDriver         = "sqlite3"
	DefaultSQLiteMaxOpenConns   = 10
	DefaultSQLiteMaxIdleConns   = 5
	DefaultSQLiteBusyTimeout    = 5 * time.Second
	DefaultPostgresMaxOpenConns = 25
	DefaultPostgresMaxIdleConns = 5
	DefaultPostgresConnLifetime = 5 * time.Minute

	// Packaging defaults
	DefaultOutputDir = "packages"

	// Custody stream defaults
	DefaultKafkaTopic        = "dfas.custody"
	DefaultKafkaMaxAttempts  = 3
	DefaultKafkaWriteTimeout = 10 * time.Second

	// Verify defaults
	DefaultVerifySchedule = "0 2 * * *"

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsNamespace   = "dfas"
	DefaultMetricsPath        = "/metrics"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingService     = "dfas"
)

// DefaultAgentID returns the host name, or "dfas-agent" when it cannot be
// determined.
func DefaultAgentID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "dfas-agent"
	}
	return host
}

// NewDefault returns a configuration with every default applied and no
// roots. It is used when no configuration file exists.
func NewDefault() *Config {
	cfg := &Config{}
	presetBools(cfg)
	ApplyDefaults(cfg)
	return cfg
}

// presetBools sets boolean fields that default to true. It runs before YAML
// decoding so an explicit false in the file still wins.
func presetBools(cfg *Config) {
	cfg.Storage.SQLite.WALMode = true
	cfg.Telemetry.Metrics.Enabled = true
}

// ApplyDefaults fills zero-valued fields with their defaults. Boolean
// defaults are handled by presetBools.
func ApplyDefaults(cfg *Config) {
	applyCaseDefaults(&cfg.Case)
	applyScanDefaults(&cfg.Scan)
	applyProcessingDefaults(&cfg.Processing)
	applyStorageDefaults(&cfg.Storage)
	applyPackagingDefaults(&cfg.Packaging)
	applyCustodyStreamDefaults(&cfg.CustodyStream)
	applyVerifyDefaults(&cfg.Verify)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyCaseDefaults(cfg *CaseConfig) {
	if cfg.AgentID == "" {
		cfg.AgentID = DefaultAgentID()
	}
}

func applyScanDefaults(cfg *ScanConfig) {
	if cfg.WatchDebounce == 0 {
		cfg.WatchDebounce = DefaultWatchDebounce
	}
}

func applyProcessingDefaults(cfg *ProcessingConfig) {
	if cfg.QueueSize == 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.MaxScanBytes == 0 {
		cfg.MaxScanBytes = DefaultMaxScanBytes
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Backend == "" {
		cfg.Backend = DefaultStorageBackend
	}

	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = DefaultSQLitePath
	}
	if cfg.SQLite.Driver == "" {
		cfg.SQLite.Driver = DefaultSQLiteDriver
	}
	if cfg.SQLite.MaxOpenConns == 0 {
		cfg.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if cfg.SQLite.MaxIdleConns == 0 {
		cfg.SQLite.MaxIdleConns = DefaultSQLiteMaxIdleConns
	}
	if cfg.SQLite.BusyTimeout == 0 {
		cfg.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}

	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = DefaultPostgresMaxOpenConns
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = DefaultPostgresMaxIdleConns
	}
	if cfg.Postgres.ConnMaxLifetime == 0 {
		cfg.Postgres.ConnMaxLifetime = DefaultPostgresConnLifetime
	}
}

func applyPackagingDefaults(cfg *PackagingConfig) {
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
}

func applyCustodyStreamDefaults(cfg *CustodyStreamConfig) {
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = DefaultKafkaTopic
	}
	if cfg.Kafka.MaxAttempts == 0 {
		cfg.Kafka.MaxAttempts = DefaultKafkaMaxAttempts
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = DefaultKafkaWriteTimeout
	}
}

func applyVerifyDefaults(cfg *VerifyConfig) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultVerifySchedule
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultTracingService
	}
}
