package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"dfas-hq/dfas/pkg/evidence"
)

// PostgresConfig contains configuration for the PostgreSQL storage backend.
type PostgresConfig struct {
	// DSN is a lib/pq connection string or URL.
	DSN string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 20
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// ConnMaxLifetime bounds how long a connection is reused.
	// Default: 30 minutes
	ConnMaxLifetime time.Duration
}

// DefaultPostgresConfig returns the default PostgreSQL configuration.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// PostgresStorage implements evidence.Store using PostgreSQL.
type PostgresStorage struct {
	*sqlStore
}

// NewPostgresStorage connects to PostgreSQL and migrates the schema.
func NewPostgresStorage(config *PostgresConfig) (*PostgresStorage, error) {
	if config == nil || config.DSN == "" {
		return nil, evidence.NewStorageError("postgres", "open", errors.New("dsn is required"))
	}

	db, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, evidence.NewStorageError("postgres", "open", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	s, err := NewPostgresStorageFromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStorageFromDB wraps an open database handle and migrates the
// schema. The store takes ownership of db.
func NewPostgresStorageFromDB(db *sql.DB) (*PostgresStorage, error) {
	s := &PostgresStorage{
		sqlStore: &sqlStore{
			db: db,
			dialect: dialect{
				backend:           "postgres",
				numbered:          true,
				isUniqueViolation: isPostgresUniqueViolation,
			},
			logger: slog.Default().With("component", "evidence.storage.postgres"),
		},
	}

	if err := s.initialize(); err != nil {
		return nil, err
	}

	s.logger.Info("PostgreSQL storage initialized")
	return s, nil
}

func (s *PostgresStorage) initialize() error {
	if _, err := s.db.Exec(PostgresSchema); err != nil {
		return evidence.NewStorageError("postgres", "create_schema", err)
	}

	if _, err := s.db.Exec(PostgresInsertSchemaVersion, SchemaVersion); err != nil {
		return evidence.NewStorageError("postgres", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return evidence.NewStorageError("postgres", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return evidence.NewStorageError("postgres", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// Close releases the connection pool.
func (s *PostgresStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return evidence.NewStorageError("postgres", "close", err)
	}
	s.logger.Info("PostgreSQL storage closed")
	return nil
}

// unique_violation
const pqUniqueViolation = "23505"

func isPostgresUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}
