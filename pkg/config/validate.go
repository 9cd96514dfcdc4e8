package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"dfas-hq/dfas/pkg/identity"
	"dfas-hq/dfas/pkg/telemetry/logging"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "scan.max_file_size").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration. All field errors are
// collected and returned together as a ValidationError.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateCase(&cfg.Case)...)
	errs = append(errs, validateScan(&cfg.Scan)...)
	errs = append(errs, validateProcessing(&cfg.Processing)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validatePackaging(&cfg.Packaging)...)
	errs = append(errs, validateCustodyStream(&cfg.CustodyStream)...)
	errs = append(errs, validateVerify(&cfg.Verify)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateCase(cfg *CaseConfig) []FieldError {
	var errs []FieldError

	if strings.TrimSpace(cfg.AgentID) == "" {
		errs = append(errs, FieldError{Field: "case.agent_id", Message: "agent id is required"})
	}
	if strings.ContainsAny(cfg.ID, "/\\") {
		errs = append(errs, FieldError{Field: "case.id", Message: "case id must not contain path separators"})
	}

	return errs
}

func validateScan(cfg *ScanConfig) []FieldError {
	var errs []FieldError

	for i, root := range cfg.Roots {
		if strings.TrimSpace(root) == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("scan.roots[%d]", i),
				Message: "root must not be empty",
			})
		}
	}
	if cfg.MaxFileSize < 0 {
		errs = append(errs, FieldError{Field: "scan.max_file_size", Message: "max file size must be non-negative"})
	}
	if cfg.WatchDebounce < 0 {
		errs = append(errs, FieldError{Field: "scan.watch_debounce", Message: "watch debounce must be non-negative"})
	}

	return errs
}

func validateProcessing(cfg *ProcessingConfig) []FieldError {
	var errs []FieldError

	if cfg.Workers < 0 {
		errs = append(errs, FieldError{Field: "processing.workers", Message: "workers must be non-negative"})
	}
	if cfg.QueueSize < 0 {
		errs = append(errs, FieldError{Field: "processing.queue_size", Message: "queue size must be non-negative"})
	}
	if cfg.MaxScanBytes < 0 {
		errs = append(errs, FieldError{Field: "processing.max_scan_bytes", Message: "max scan bytes must be non-negative"})
	}
	if _, err := cfg.RuleSet(); err != nil {
		errs = append(errs, FieldError{Field: "processing.rules", Message: err.Error()})
	}

	return errs
}

// RuleSet compiles the configured signature rules, including the built-in
// rules unless they are disabled.
func (cfg *ProcessingConfig) RuleSet() (*identity.RuleSet, error) {
	var rules []identity.Rule
	if !cfg.DisableDefaultRules {
		rules = append(rules, identity.DefaultRules()...)
	}
	rules = append(rules, cfg.Rules...)
	return identity.CompileRules(rules, cfg.MaxScanBytes)
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "storage.sqlite.path", Message: "database path is required"})
		}
		if cfg.SQLite.Driver != "sqlite3" && cfg.SQLite.Driver != "sqlite" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.driver",
				Message: fmt.Sprintf("unknown driver %q (want sqlite3 or sqlite)", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.MaxOpenConns < 0 {
			errs = append(errs, FieldError{Field: "storage.sqlite.max_open_conns", Message: "must be non-negative"})
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			errs = append(errs, FieldError{Field: "storage.postgres.dsn", Message: "dsn is required"})
		}
		if cfg.Postgres.MaxOpenConns < 0 {
			errs = append(errs, FieldError{Field: "storage.postgres.max_open_conns", Message: "must be non-negative"})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("unknown backend %q (want sqlite, postgres or memory)", cfg.Backend),
		})
	}

	return errs
}

func validatePackaging(cfg *PackagingConfig) []FieldError {
	var errs []FieldError

	if cfg.OutputDir == "" {
		errs = append(errs, FieldError{Field: "packaging.output_dir", Message: "output directory is required"})
	}
	if s3 := cfg.Upload.S3; s3.Enabled() && strings.Contains(s3.Bucket, "/") {
		errs = append(errs, FieldError{Field: "packaging.upload.s3.bucket", Message: "bucket name must not contain '/'"})
	}

	return errs
}

func validateCustodyStream(cfg *CustodyStreamConfig) []FieldError {
	var errs []FieldError

	if !cfg.Kafka.Enabled() {
		return nil
	}
	for i, broker := range cfg.Kafka.Brokers {
		if strings.TrimSpace(broker) == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("custody_stream.kafka.brokers[%d]", i),
				Message: "broker address must not be empty",
			})
		}
	}
	if cfg.Kafka.Topic == "" {
		errs = append(errs, FieldError{Field: "custody_stream.kafka.topic", Message: "topic is required"})
	}
	if cfg.Kafka.MaxAttempts < 1 {
		errs = append(errs, FieldError{Field: "custody_stream.kafka.max_attempts", Message: "max attempts must be at least 1"})
	}

	return errs
}

func validateVerify(cfg *VerifyConfig) []FieldError {
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return []FieldError{{
			Field:   "verify.schedule",
			Message: fmt.Sprintf("invalid cron expression: %v", err),
		}}
	}
	return nil
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, FieldError{Field: "telemetry.logging.level", Message: err.Error()})
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("unknown format %q (want json or text)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.ListenAddress != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "path must start with '/'"})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required when tracing is enabled"})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "sample ratio must be between 0 and 1"})
	}

	return errs
}
