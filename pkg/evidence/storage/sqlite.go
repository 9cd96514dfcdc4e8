package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"dfas-hq/dfas/pkg/evidence"
)

// SQLite driver names accepted in SQLiteConfig.Driver.
const (
	// DriverCGO is github.com/mattn/go-sqlite3.
	DriverCGO = "sqlite3"

	// DriverPureGo is modernc.org/sqlite, for builds without cgo.
	DriverPureGo = "sqlite"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver selects the database/sql driver ("sqlite3" or "sqlite").
	// Default: "sqlite3"
	Driver string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/evidence.db",
		Driver:       DriverCGO,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements evidence.Store using SQLite.
type SQLiteStorage struct {
	*sqlStore
	config *SQLiteConfig
}

// NewSQLiteStorage creates a new SQLite storage backend.
// It initializes the database schema and enables WAL mode if configured.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Driver == "" {
		config.Driver = DriverCGO
	}
	if config.Driver != DriverCGO && config.Driver != DriverPureGo {
		return nil, evidence.NewStorageError("sqlite", "open", fmt.Errorf("unknown driver %q", config.Driver))
	}

	logger := slog.Default().With("component", "evidence.storage.sqlite")

	// Open database connection
	db, err := sql.Open(config.Driver, sqliteDSN(config))
	if err != nil {
		return nil, evidence.NewStorageError("sqlite", "open", err)
	}

	// Configure connection pool
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}

	s := &SQLiteStorage{
		sqlStore: &sqlStore{
			db: db,
			dialect: dialect{
				backend:           "sqlite",
				isUniqueViolation: isSQLiteUniqueViolation,
			},
			logger:  logger,
			writeMu: &sync.Mutex{},
		},
		config: config,
	}

	// Initialize database
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

// sqliteDSN builds the connection string. Pragmas go in the DSN so that every
// pooled connection gets them, not just the first.
func sqliteDSN(config *SQLiteConfig) string {
	busyMs := config.BusyTimeout.Milliseconds()
	params := url.Values{}

	switch config.Driver {
	case DriverPureGo:
		params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyMs))
		params.Add("_pragma", "foreign_keys(1)")
		if config.WALMode {
			params.Add("_pragma", "journal_mode(WAL)")
		}
	default:
		params.Set("_busy_timeout", fmt.Sprint(busyMs))
		params.Set("_foreign_keys", "1")
		if config.WALMode {
			params.Set("_journal_mode", "WAL")
		}
	}
	params.Set("_txlock", "immediate")

	return "file:" + config.Path + "?" + params.Encode()
}

// initialize sets up the database schema and checks its version.
func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		var mode string
		if err := s.db.QueryRow("PRAGMA journal_mode;").Scan(&mode); err != nil {
			return evidence.NewStorageError("sqlite", "enable_wal", err)
		}
		s.logger.Debug("journal mode", "mode", mode)
	}

	// Create schema
	if _, err := s.db.Exec(Schema); err != nil {
		return evidence.NewStorageError("sqlite", "create_schema", err)
	}
	s.logger.Debug("database schema created")

	// Insert schema version
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return evidence.NewStorageError("sqlite", "insert_schema_version", err)
	}

	// Verify schema version
	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return evidence.NewStorageError("sqlite", "get_schema_version", err)
	}

	if version != SchemaVersion {
		return evidence.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	s.logger.Debug("schema version verified", "version", version)

	return nil
}

// Close releases resources held by the storage backend.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return evidence.NewStorageError("sqlite", "close", err)
	}

	s.logger.Info("SQLite storage closed")
	return nil
}

// isSQLiteUniqueViolation recognizes constraint failures from either driver.
func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	// modernc.org/sqlite reports the extended result text.
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
