package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"dfas-hq/dfas/pkg/evidence"
)

// dialect captures the differences between the SQL backends.
type dialect struct {
	// backend is the label used in StorageError.
	backend string

	// numbered placeholders ($1, $2) instead of "?".
	numbered bool

	// isUniqueViolation classifies constraint errors from the driver.
	isUniqueViolation func(error) bool
}

// sqlStore implements evidence.Store on database/sql. SQLite and PostgreSQL
// embed it and only differ in schema, DSN and error classification.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger

	// writeMu serializes writers when the backend allows a single writer.
	writeMu *sync.Mutex

	sinksMu sync.RWMutex
	sinks   []evidence.CustodySink
}

const recordColumns = `id, case_id, source_path, relative_path, size,
	created_time, modified_time, accessed_time, owner, media_type, extension,
	sha256, tags, collected_by, collected_at, notes`

const custodyColumns = `seq, case_id, record_id, action, actor, timestamp, digest, details`

// AddSink registers a sink that receives every committed custody entry.
func (s *sqlStore) AddSink(sink evidence.CustodySink) {
	s.sinksMu.Lock()
	defer s.sinksMu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// InsertEvidence persists a record and its evidence_collected custody entry in
// a single transaction.
func (s *sqlStore) InsertEvidence(ctx context.Context, record *evidence.EvidenceRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	tags := record.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return evidence.NewStorageError(s.dialect.backend, "insert_evidence", err)
	}

	entry := evidence.CollectedEntry(record)

	s.lockWrites()
	err = s.withTx(ctx, "insert_evidence", func(tx *sql.Tx) error {
		if err := s.ensureCase(ctx, tx, record.CaseID, record.CollectedAt); err != nil {
			return err
		}

		var status string
		if err := tx.QueryRowContext(ctx, s.q(`SELECT status FROM cases WHERE id = ?`), record.CaseID).Scan(&status); err != nil {
			return err
		}
		if status == evidence.CaseSealed {
			return evidence.ErrCaseSealed
		}

		var existing int
		if err := tx.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM evidence_records WHERE id = ?`), record.ID).Scan(&existing); err != nil {
			return err
		}
		if existing > 0 {
			return evidence.NewDuplicateError(record.CaseID, record.ID)
		}

		_, err := tx.ExecContext(ctx, s.q(`INSERT INTO evidence_records (`+recordColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			record.ID, record.CaseID, record.SourcePath, record.RelativePath, record.Size,
			formatTime(record.CreatedTime), formatTime(record.ModifiedTime), formatTime(record.AccessedTime),
			record.Owner, record.MediaType, record.Extension,
			record.SHA256, string(tagsJSON), record.CollectedBy, formatTime(record.CollectedAt), record.Notes,
		)
		if err != nil {
			if s.dialect.isUniqueViolation(err) {
				return evidence.NewDuplicateError(record.CaseID, record.ID)
			}
			return err
		}

		seq, err := s.insertCustody(ctx, tx, entry)
		if err != nil {
			return err
		}
		entry.Sequence = seq
		return nil
	})
	s.unlockWrites()

	if err != nil {
		return err
	}

	s.publish(ctx, entry)
	return nil
}

// AppendCustody appends one custody entry. The case is created if this is the
// first thing recorded for it (e.g. a collection failure).
func (s *sqlStore) AppendCustody(ctx context.Context, entry *evidence.CustodyEntry) (int64, error) {
	if err := entry.Validate(); err != nil {
		return 0, err
	}
	if entry.Action == evidence.ActionEvidenceCollected {
		return 0, &evidence.ValidationError{Field: "action", Message: "evidence_collected is written only with its record"}
	}

	s.lockWrites()
	err := s.withTx(ctx, "append_custody", func(tx *sql.Tx) error {
		if err := s.ensureCase(ctx, tx, entry.CaseID, entry.Timestamp); err != nil {
			return err
		}
		seq, err := s.insertCustody(ctx, tx, entry)
		if err != nil {
			return err
		}
		entry.Sequence = seq
		return nil
	})
	s.unlockWrites()

	if err != nil {
		return 0, err
	}

	s.publish(ctx, entry)
	return entry.Sequence, nil
}

// QueryRecords returns all records of a case ordered by record ID.
func (s *sqlStore) QueryRecords(ctx context.Context, caseID string) ([]*evidence.EvidenceRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+recordColumns+` FROM evidence_records WHERE case_id = ? ORDER BY id`), caseID)
	if err != nil {
		return nil, evidence.NewStorageError(s.dialect.backend, "query_records", err)
	}
	defer rows.Close()

	records := []*evidence.EvidenceRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, evidence.NewStorageError(s.dialect.backend, "scan", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, evidence.NewStorageError(s.dialect.backend, "query_records", err)
	}

	return records, nil
}

// QueryRecordsStream streams the records of a case ordered by record ID.
// The channels will be closed when the query completes or errors.
func (s *sqlStore) QueryRecordsStream(ctx context.Context, caseID string) (<-chan *evidence.EvidenceRecord, <-chan error, error) {
	recordsCh := make(chan *evidence.EvidenceRecord, 100)
	errCh := make(chan error, 1)

	query := s.q(`SELECT ` + recordColumns + ` FROM evidence_records WHERE case_id = ? ORDER BY id`)

	go func() {
		defer close(recordsCh)
		defer close(errCh)

		rows, err := s.db.QueryContext(ctx, query, caseID)
		if err != nil {
			errCh <- evidence.NewStorageError(s.dialect.backend, "query_stream", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			record, err := scanRecord(rows)
			if err != nil {
				errCh <- evidence.NewStorageError(s.dialect.backend, "scan", err)
				return
			}

			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case recordsCh <- record:
			}
		}

		if err := rows.Err(); err != nil {
			errCh <- evidence.NewStorageError(s.dialect.backend, "query_stream", err)
		}
	}()

	return recordsCh, errCh, nil
}

// QueryCustody returns custody entries of a case in insertion order.
func (s *sqlStore) QueryCustody(ctx context.Context, caseID, action string) ([]*evidence.CustodyEntry, error) {
	query := `SELECT ` + custodyColumns + ` FROM chain_of_custody WHERE case_id = ?`
	args := []interface{}{caseID}
	if action != "" {
		query += ` AND action = ?`
		args = append(args, action)
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, evidence.NewStorageError(s.dialect.backend, "query_custody", err)
	}
	defer rows.Close()

	entries := []*evidence.CustodyEntry{}
	for rows.Next() {
		var entry evidence.CustodyEntry
		var recordID, digest, details sql.NullString
		var ts string
		if err := rows.Scan(&entry.Sequence, &entry.CaseID, &recordID, &entry.Action, &entry.Actor, &ts, &digest, &details); err != nil {
			return nil, evidence.NewStorageError(s.dialect.backend, "scan", err)
		}
		entry.RecordID = recordID.String
		entry.Digest = digest.String
		entry.Details = details.String
		if entry.Timestamp, err = parseTime(ts); err != nil {
			return nil, evidence.NewStorageError(s.dialect.backend, "scan", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, evidence.NewStorageError(s.dialect.backend, "query_custody", err)
	}

	return entries, nil
}

// CountRecords returns the number of records in a case.
func (s *sqlStore) CountRecords(ctx context.Context, caseID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM evidence_records WHERE case_id = ?`), caseID).Scan(&count)
	if err != nil {
		return 0, evidence.NewStorageError(s.dialect.backend, "count", err)
	}
	return count, nil
}

// GetCase returns the case or nil if it does not exist.
func (s *sqlStore) GetCase(ctx context.Context, caseID string) (*evidence.Case, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT id, created_at, status, scan_config FROM cases WHERE id = ?`), caseID)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, evidence.NewStorageError(s.dialect.backend, "get_case", err)
	}
	return c, nil
}

// ListCases returns every case ordered by ID.
func (s *sqlStore) ListCases(ctx context.Context) ([]*evidence.Case, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, created_at, status, scan_config FROM cases ORDER BY id`)
	if err != nil {
		return nil, evidence.NewStorageError(s.dialect.backend, "list_cases", err)
	}
	defer rows.Close()

	cases := []*evidence.Case{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, evidence.NewStorageError(s.dialect.backend, "scan", err)
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, evidence.NewStorageError(s.dialect.backend, "list_cases", err)
	}
	return cases, nil
}

// RecordScan stores the scan configuration snapshot for a case.
func (s *sqlStore) RecordScan(ctx context.Context, caseID string, scan *evidence.ScanConfig) error {
	data, err := json.Marshal(scan)
	if err != nil {
		return evidence.NewStorageError(s.dialect.backend, "record_scan", err)
	}

	s.lockWrites()
	defer s.unlockWrites()

	return s.withTx(ctx, "record_scan", func(tx *sql.Tx) error {
		if err := s.ensureCase(ctx, tx, caseID, time.Now()); err != nil {
			return err
		}

		var status string
		if err := tx.QueryRowContext(ctx, s.q(`SELECT status FROM cases WHERE id = ?`), caseID).Scan(&status); err != nil {
			return err
		}
		if status == evidence.CaseSealed {
			return evidence.ErrCaseSealed
		}

		_, err := tx.ExecContext(ctx, s.q(`UPDATE cases SET scan_config = ? WHERE id = ?`), string(data), caseID)
		return err
	})
}

// SealCase marks the case sealed. Nothing is deleted.
func (s *sqlStore) SealCase(ctx context.Context, caseID string) error {
	s.lockWrites()
	defer s.unlockWrites()

	return s.withTx(ctx, "seal_case", func(tx *sql.Tx) error {
		if err := s.ensureCase(ctx, tx, caseID, time.Now()); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, s.q(`UPDATE cases SET status = ? WHERE id = ?`), evidence.CaseSealed, caseID)
		return err
	})
}

// ensureCase creates the case row on first use.
func (s *sqlStore) ensureCase(ctx context.Context, tx *sql.Tx, caseID string, createdAt time.Time) error {
	_, err := tx.ExecContext(ctx, s.q(`INSERT INTO cases (id, created_at, status) VALUES (?, ?, ?)
		ON CONFLICT (id) DO NOTHING`), caseID, formatTime(createdAt), evidence.CaseCollecting)
	return err
}

// insertCustody appends a custody row inside tx and returns its sequence.
func (s *sqlStore) insertCustody(ctx context.Context, tx *sql.Tx, entry *evidence.CustodyEntry) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx, s.q(`INSERT INTO chain_of_custody (case_id, record_id, action, actor, timestamp, digest, details)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING seq`),
		entry.CaseID, nullString(entry.RecordID), entry.Action, entry.Actor,
		formatTime(entry.Timestamp), nullString(entry.Digest), nullString(entry.Details),
	).Scan(&seq)
	return seq, err
}

// withTx runs fn in a transaction scoped to a single record or entry.
func (s *sqlStore) withTx(ctx context.Context, operation string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return evidence.NewStorageError(s.dialect.backend, operation, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("transaction rollback failed", "operation", operation, "error", rbErr)
		}
		return evidence.NewStorageError(s.dialect.backend, operation, err)
	}

	if err := tx.Commit(); err != nil {
		return evidence.NewStorageError(s.dialect.backend, operation, err)
	}
	return nil
}

// publish hands a committed entry to every sink.
func (s *sqlStore) publish(ctx context.Context, entry *evidence.CustodyEntry) {
	s.sinksMu.RLock()
	sinks := s.sinks
	s.sinksMu.RUnlock()

	for _, sink := range sinks {
		if err := sink.Publish(ctx, entry); err != nil {
			s.logger.Warn("custody sink publish failed",
				"case_id", entry.CaseID,
				"sequence", entry.Sequence,
				"action", entry.Action,
				"error", err,
			)
		}
	}
}

func (s *sqlStore) lockWrites() {
	if s.writeMu != nil {
		s.writeMu.Lock()
	}
}

func (s *sqlStore) unlockWrites() {
	if s.writeMu != nil {
		s.writeMu.Unlock()
	}
}

// q rewrites "?" placeholders for backends with numbered parameters.
func (s *sqlStore) q(query string) string {
	if !s.dialect.numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord scans a row selected with recordColumns.
func scanRecord(row rowScanner) (*evidence.EvidenceRecord, error) {
	var record evidence.EvidenceRecord
	var created, modified, accessed, collected, tags string
	var owner, extension, notes sql.NullString

	err := row.Scan(
		&record.ID, &record.CaseID, &record.SourcePath, &record.RelativePath, &record.Size,
		&created, &modified, &accessed, &owner, &record.MediaType, &extension,
		&record.SHA256, &tags, &record.CollectedBy, &collected, &notes,
	)
	if err != nil {
		return nil, err
	}

	record.Owner = owner.String
	record.Extension = extension.String
	record.Notes = notes.String

	for _, f := range []struct {
		dst *time.Time
		src string
	}{
		{&record.CreatedTime, created},
		{&record.ModifiedTime, modified},
		{&record.AccessedTime, accessed},
		{&record.CollectedAt, collected},
	} {
		if *f.dst, err = parseTime(f.src); err != nil {
			return nil, err
		}
	}

	record.Tags = []string{}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &record.Tags); err != nil {
			return nil, err
		}
	}

	return &record, nil
}

// scanCase scans a row of id, created_at, status, scan_config.
func scanCase(row rowScanner) (*evidence.Case, error) {
	var c evidence.Case
	var created string
	var scan sql.NullString

	if err := row.Scan(&c.ID, &created, &c.Status, &scan); err != nil {
		return nil, err
	}

	var err error
	if c.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}

	if scan.Valid && scan.String != "" {
		c.Scan = &evidence.ScanConfig{}
		if err := json.Unmarshal([]byte(scan.String), c.Scan); err != nil {
			return nil, err
		}
	}

	return &c, nil
}

// Timestamps are stored as RFC 3339 text so every backend round-trips them
// identically.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
