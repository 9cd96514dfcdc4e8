// Package storage provides evidence.Store backends.
//
// # Storage Backends
//
//   - SQLite: embedded database for single-node collection. Two drivers are
//     supported: github.com/mattn/go-sqlite3 ("sqlite3", cgo) and
//     modernc.org/sqlite ("sqlite", pure Go).
//   - PostgreSQL: shared store for several collection agents (github.com/lib/pq)
//   - Memory: in-memory store for tests and dry runs
//
// SQLite and PostgreSQL share one database/sql implementation; they differ in
// schema dialect, placeholders and how unique violations are recognized.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
//	    Path:        "data/evidence.db",
//	    WALMode:     true,
//	    BusyTimeout: 5 * time.Second,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	// Record and evidence_collected entry in one transaction
//	err = store.InsertEvidence(ctx, record)
//	if errors.Is(err, evidence.ErrDuplicateRecord) {
//	    // already collected
//	}
//
//	records, err := store.QueryRecords(ctx, "case-001")
//
// # Transactions
//
// InsertEvidence creates the case row if needed, checks it is not sealed,
// inserts the record and appends its custody entry in a single transaction.
// Custody sequence numbers are assigned by the database and are strictly
// increasing. Triggers reject UPDATE and DELETE on records and custody rows.
//
// SQLite allows one writer at a time. Writers are serialized in-process and
// transactions begin IMMEDIATE, so concurrent workers queue instead of failing
// with SQLITE_BUSY.
//
// # Custody Sinks
//
// Sinks registered with AddSink receive each custody entry after its
// transaction commits. Sink failures are logged and never undo the write.
//
// # Schema Migration
//
// The schema is created on first use. The version is tracked in the
// schema_version table.
package storage
