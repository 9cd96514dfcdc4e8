package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the evidence database schema.
// Timestamps are RFC 3339 text. Records and custody rows are append-only and
// the triggers enforce it.
const Schema = `
-- Cases
CREATE TABLE IF NOT EXISTS cases (
    id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'collecting',
    scan_config TEXT
);

-- Evidence records
CREATE TABLE IF NOT EXISTS evidence_records (
    id TEXT PRIMARY KEY,
    case_id TEXT NOT NULL REFERENCES cases(id),
    source_path TEXT NOT NULL,
    relative_path TEXT NOT NULL,
    size INTEGER NOT NULL,

    -- Filesystem timestamps
    created_time TEXT NOT NULL,
    modified_time TEXT NOT NULL,
    accessed_time TEXT NOT NULL,

    owner TEXT,
    media_type TEXT NOT NULL,
    extension TEXT,
    sha256 TEXT NOT NULL,
    tags TEXT NOT NULL,

    -- Provenance
    collected_by TEXT NOT NULL,
    collected_at TEXT NOT NULL,
    notes TEXT,

    UNIQUE (case_id, id)
);

-- Chain of custody
CREATE TABLE IF NOT EXISTS chain_of_custody (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    case_id TEXT NOT NULL REFERENCES cases(id),
    record_id TEXT REFERENCES evidence_records(id),
    action TEXT NOT NULL,
    actor TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    digest TEXT,
    details TEXT
);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE TRIGGER IF NOT EXISTS evidence_records_no_update
BEFORE UPDATE ON evidence_records
BEGIN
    SELECT RAISE(ABORT, 'evidence_records is append-only');
END;

CREATE TRIGGER IF NOT EXISTS evidence_records_no_delete
BEFORE DELETE ON evidence_records
BEGIN
    SELECT RAISE(ABORT, 'evidence_records is append-only');
END;

CREATE TRIGGER IF NOT EXISTS chain_of_custody_no_update
BEFORE UPDATE ON chain_of_custody
BEGIN
    SELECT RAISE(ABORT, 'chain_of_custody is append-only');
END;

CREATE TRIGGER IF NOT EXISTS chain_of_custody_no_delete
BEFORE DELETE ON chain_of_custody
BEGIN
    SELECT RAISE(ABORT, 'chain_of_custody is append-only');
END;

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_evidence_records_case ON evidence_records(case_id, id);
CREATE INDEX IF NOT EXISTS idx_evidence_records_sha256 ON evidence_records(sha256);
CREATE INDEX IF NOT EXISTS idx_custody_case ON chain_of_custody(case_id, seq);
CREATE INDEX IF NOT EXISTS idx_custody_action ON chain_of_custody(case_id, action);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
