package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dfas-hq/dfas/pkg/evidence"
)

// createTempDB creates a temporary SQLite database for testing.
func createTempDB(t *testing.T, driver string) (*SQLiteStorage, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	config := &SQLiteConfig{
		Path:         dbPath,
		Driver:       driver,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}

	store, err := NewSQLiteStorage(config)
	if err != nil {
		t.Fatalf("Failed to create SQLite storage: %v", err)
	}

	return store, dbPath
}

func TestSQLiteStorage(t *testing.T) {
	for _, driver := range []string{DriverCGO, DriverPureGo} {
		t.Run(driver, func(t *testing.T) {
			runStoreSuite(t, func(t *testing.T) evidence.Store {
				store, _ := createTempDB(t, driver)
				t.Cleanup(func() { store.Close() })
				return store
			})
		})
	}
}

// TestSQLiteStorage_Initialize tests database initialization.
func TestSQLiteStorage_Initialize(t *testing.T) {
	store, dbPath := createTempDB(t, DriverCGO)
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}

	var mode string
	if err := store.db.QueryRow("PRAGMA journal_mode;").Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode error = %v", err)
	}
	if !strings.EqualFold(mode, "wal") {
		t.Errorf("journal_mode = %s, want wal", mode)
	}
}

func TestSQLiteStorage_Reopen(t *testing.T) {
	ctx := context.Background()
	store, dbPath := createTempDB(t, DriverCGO)

	if err := store.InsertEvidence(ctx, testRecord("case-1", "rec-1")); err != nil {
		t.Fatalf("InsertEvidence() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// A second driver opens the same file.
	reopened, err := NewSQLiteStorage(&SQLiteConfig{
		Path:        dbPath,
		Driver:      DriverPureGo,
		WALMode:     true,
		BusyTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewSQLiteStorage() reopen error = %v", err)
	}
	defer reopened.Close()

	count, err := reopened.CountRecords(ctx, "case-1")
	if err != nil || count != 1 {
		t.Errorf("CountRecords() after reopen = %d, %v; want 1, nil", count, err)
	}
}

func TestSQLiteStorage_AppendOnly(t *testing.T) {
	ctx := context.Background()
	store, _ := createTempDB(t, DriverCGO)
	defer store.Close()

	if err := store.InsertEvidence(ctx, testRecord("case-1", "rec-1")); err != nil {
		t.Fatalf("InsertEvidence() error = %v", err)
	}

	statements := []string{
		`UPDATE evidence_records SET sha256 = 'x' WHERE id = 'rec-1'`,
		`DELETE FROM evidence_records WHERE id = 'rec-1'`,
		`UPDATE chain_of_custody SET actor = 'mallory'`,
		`DELETE FROM chain_of_custody`,
	}
	for _, stmt := range statements {
		if _, err := store.db.Exec(stmt); err == nil {
			t.Errorf("%q succeeded, want append-only rejection", stmt)
		}
	}

	entries, _ := store.QueryCustody(ctx, "case-1", "")
	if len(entries) != 1 || entries[0].Actor != "agent-7" {
		t.Errorf("custody changed: %+v", entries)
	}
}

func TestSQLiteStorage_UnknownDriver(t *testing.T) {
	_, err := NewSQLiteStorage(&SQLiteConfig{
		Path:   filepath.Join(t.TempDir(), "x.db"),
		Driver: "oracle",
	})
	if err == nil {
		t.Fatal("NewSQLiteStorage() with unknown driver should fail")
	}
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		driver string
		want   []string
	}{
		{DriverCGO, []string{"_busy_timeout=2000", "_foreign_keys=1", "_journal_mode=WAL", "_txlock=immediate"}},
		{DriverPureGo, []string{"busy_timeout%282000%29", "foreign_keys%281%29", "journal_mode%28WAL%29", "_txlock=immediate"}},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			dsn := sqliteDSN(&SQLiteConfig{
				Path:        "/data/e.db",
				Driver:      tt.driver,
				WALMode:     true,
				BusyTimeout: 2 * time.Second,
			})
			if !strings.HasPrefix(dsn, "file:/data/e.db?") {
				t.Errorf("dsn = %s, want file: prefix", dsn)
			}
			for _, part := range tt.want {
				if !strings.Contains(dsn, part) {
					t.Errorf("dsn %s missing %s", dsn, part)
				}
			}
		})
	}
}
