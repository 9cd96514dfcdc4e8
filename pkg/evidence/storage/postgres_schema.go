package storage

// PostgresSchema is Schema in the PostgreSQL dialect. Column types and names
// match the SQLite schema so both backends export identical data.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS cases (
    id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'collecting',
    scan_config TEXT
);

CREATE TABLE IF NOT EXISTS evidence_records (
    id TEXT PRIMARY KEY,
    case_id TEXT NOT NULL REFERENCES cases(id),
    source_path TEXT NOT NULL,
    relative_path TEXT NOT NULL,
    size BIGINT NOT NULL,
    created_time TEXT NOT NULL,
    modified_time TEXT NOT NULL,
    accessed_time TEXT NOT NULL,
    owner TEXT,
    media_type TEXT NOT NULL,
    extension TEXT,
    sha256 CHAR(64) NOT NULL,
    tags TEXT NOT NULL,
    collected_by TEXT NOT NULL,
    collected_at TEXT NOT NULL,
    notes TEXT,
    UNIQUE (case_id, id)
);

CREATE TABLE IF NOT EXISTS chain_of_custody (
    seq BIGSERIAL PRIMARY KEY,
    case_id TEXT NOT NULL REFERENCES cases(id),
    record_id TEXT REFERENCES evidence_records(id),
    action TEXT NOT NULL,
    actor TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    digest TEXT,
    details TEXT
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL
);

CREATE OR REPLACE FUNCTION dfas_reject_mutation() RETURNS trigger AS $$
BEGIN
    RAISE EXCEPTION '% is append-only', TG_TABLE_NAME;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS evidence_records_append_only ON evidence_records;
CREATE TRIGGER evidence_records_append_only
    BEFORE UPDATE OR DELETE ON evidence_records
    FOR EACH ROW EXECUTE FUNCTION dfas_reject_mutation();

DROP TRIGGER IF EXISTS chain_of_custody_append_only ON chain_of_custody;
CREATE TRIGGER chain_of_custody_append_only
    BEFORE UPDATE OR DELETE ON chain_of_custody
    FOR EACH ROW EXECUTE FUNCTION dfas_reject_mutation();

CREATE INDEX IF NOT EXISTS idx_evidence_records_case ON evidence_records(case_id, id);
CREATE INDEX IF NOT EXISTS idx_evidence_records_sha256 ON evidence_records(sha256);
CREATE INDEX IF NOT EXISTS idx_custody_case ON chain_of_custody(case_id, seq);
CREATE INDEX IF NOT EXISTS idx_custody_action ON chain_of_custody(case_id, action);
`

// PostgresInsertSchemaVersion records the schema version.
const PostgresInsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES ($1, NOW())
ON CONFLICT (version) DO NOTHING
`
