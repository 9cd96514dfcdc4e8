// Package config provides configuration management for dfas.
//
// Configuration is read from a YAML file, completed with defaults, overridden
// from the environment and validated:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("dfas.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention DFAS_SECTION_FIELD:
//
//   - DFAS_CASE_ID overrides case.id
//   - DFAS_SCAN_ROOTS overrides scan.roots (comma-separated)
//   - DFAS_STORAGE_POSTGRES_DSN overrides storage.postgres.dsn
//   - DFAS_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// Unknown keys in the file are rejected.
//
// # Validation
//
// All field errors are collected into one ValidationError:
//
//	configuration validation failed with 2 errors:
//	  - storage.postgres.dsn: dsn is required
//	  - verify.schedule: invalid cron expression: ...
//
// # Example Configuration
//
//	case:
//	  id: "2026-017"
//	  agent_id: "examiner-3"
//
//	scan:
//	  roots: ["/mnt/evidence/laptop"]
//	  excludes: ["/mnt/evidence/laptop/Windows"]
//	  extensions: [".docx", ".pdf", ".jpg"]
//	  max_file_size: 104857600
//
//	processing:
//	  workers: 8
//	  rules:
//	    - name: project-codename
//	      pattern: "(?i)bluebird"
//
//	storage:
//	  backend: sqlite
//	  sqlite:
//	    path: "cases/evidence.db"
//
//	packaging:
//	  output_dir: "cases/packages"
//	  upload:
//	    s3:
//	      bucket: "evidence-archive"
//	      prefix: "dfas"
//
//	custody_stream:
//	  kafka:
//	    brokers: ["kafka-1:9092"]
//
//	telemetry:
//	  logging:
//	    level: info
//	    format: json
//
// # Global configuration
//
// Each CLI command calls ReloadConfig and reads GetConfig afterwards.
// Library packages take explicit configuration structs instead.
package config
