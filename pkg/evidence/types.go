package evidence

import (
	"context"
	"io"
	"time"
)

// Custody actions recorded in the chain of custody.
const (
	ActionEvidenceCollected = "evidence_collected"
	ActionCollectionFailed  = "collection_failed"
	ActionExportCreated     = "export_created"
	ActionPackageCreated    = "package_created"
	ActionPackageUploaded   = "package_uploaded"
	ActionIntegrityVerified = "integrity_verified"
	ActionIntegrityFailed   = "integrity_failed"
)

// Case lifecycle states.
const (
	CaseCollecting = "collecting"
	CaseSealed     = "sealed"
)

// DigestLength is the length of a hex-encoded SHA-256 digest.
const DigestLength = 64

// EvidenceRecord is the durable description of one collected file. Records are
// immutable once written: a correction is a new record plus a custody entry.
type EvidenceRecord struct {
	// Identity
	ID           string `json:"id"`            // Unique within the case
	CaseID       string `json:"case_id"`       // Owning case
	SourcePath   string `json:"source_path"`   // Absolute path at collection time
	RelativePath string `json:"relative_path"` // Path relative to the scan root

	// Content facts
	Size         int64     `json:"size"`          // Bytes
	CreatedTime  time.Time `json:"created_time"`  // Birth time, or inode change time where unavailable
	ModifiedTime time.Time `json:"modified_time"` // Last content modification
	AccessedTime time.Time `json:"accessed_time"` // Last access
	Owner        string    `json:"owner"`         // Owning principal name
	MediaType    string    `json:"media_type"`    // Content-sniffed media type
	Extension    string    `json:"extension"`     // Lower-case, with leading dot
	SHA256       string    `json:"sha256"`        // Hex-encoded content digest

	// Classification
	Tags []string `json:"tags"` // Signature-rule hits, sorted

	// Provenance
	CollectedBy string    `json:"collected_by"` // Collecting agent identifier
	CollectedAt time.Time `json:"collected_at"` // When the record was built
	Notes       string    `json:"notes"`        // Free text
}

// CustodyEntry is one append-only row of the chain of custody.
type CustodyEntry struct {
	// Sequence is assigned by the store and strictly increases per store.
	Sequence int64 `json:"sequence"`

	CaseID    string    `json:"case_id"`
	RecordID  string    `json:"record_id,omitempty"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`

	// Digest is the evidentiary digest of the artifact the action produced,
	// e.g. the sealed archive for package_created.
	Digest string `json:"digest,omitempty"`

	// Details carries context such as the source path or failure cause.
	Details string `json:"details,omitempty"`
}

// ScanConfig is the discovery policy snapshot stored with a case.
type ScanConfig struct {
	Roots       []string `json:"roots"`
	Excludes    []string `json:"excludes"`
	Extensions  []string `json:"extensions"`
	MaxFileSize int64    `json:"max_file_size"`
}

// Case is the logical grouping of records and custody entries.
type Case struct {
	ID        string      `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	Status    string      `json:"status"`
	Scan      *ScanConfig `json:"scan,omitempty"`
}

// Store defines the interface for evidence store backends.
// Implementations must be safe for concurrent use by multiple processing
// workers; every write is scoped to one transaction.
type Store interface {
	// InsertEvidence persists one record and, in the same transaction, its
	// evidence_collected custody entry. The case is created if absent.
	// Returns ErrDuplicateRecord if (case, id) already exists and
	// ErrCaseSealed if the case has been sealed.
	InsertEvidence(ctx context.Context, record *EvidenceRecord) error

	// AppendCustody appends one custody entry and returns its sequence.
	// evidence_collected entries are rejected; only InsertEvidence writes them.
	AppendCustody(ctx context.Context, entry *CustodyEntry) (int64, error)

	// QueryRecords returns all records for a case ordered by record ID.
	// Returns an empty slice for an unknown case.
	QueryRecords(ctx context.Context, caseID string) ([]*EvidenceRecord, error)

	// QueryRecordsStream returns the records of a case over a channel.
	//
	// Returns:
	//   - recordsCh: Channel of evidence records (buffered)
	//   - errCh: Channel for errors (buffered, max 1 error)
	//   - error: Immediate error
	//
	// Callers should read from both channels until they are closed.
	QueryRecordsStream(ctx context.Context, caseID string) (<-chan *EvidenceRecord, <-chan error, error)

	// QueryCustody returns custody entries for a case in insertion order.
	// An empty action matches every entry.
	QueryCustody(ctx context.Context, caseID, action string) ([]*CustodyEntry, error)

	// CountRecords returns the number of records in a case.
	CountRecords(ctx context.Context, caseID string) (int64, error)

	// GetCase returns the case, or nil if it does not exist.
	GetCase(ctx context.Context, caseID string) (*Case, error)

	// ListCases returns every known case ordered by ID.
	ListCases(ctx context.Context) ([]*Case, error)

	// RecordScan stores the scan configuration snapshot, creating the case if
	// needed. A sealed case keeps its snapshot; ErrCaseSealed is returned.
	RecordScan(ctx context.Context, caseID string, scan *ScanConfig) error

	// SealCase marks the case sealed. Sealing never deletes anything.
	SealCase(ctx context.Context, caseID string) error

	// Close releases any resources held by the store.
	Close() error
}

// CustodySink receives custody entries after they are durably committed.
// Sinks are best effort; a sink failure never rolls back a committed entry.
type CustodySink interface {
	Publish(ctx context.Context, entry *CustodyEntry) error
}

// Exporter defines the interface for exporting evidence records to various formats.
type Exporter interface {
	// Export writes evidence records to the provided writer in the exporter's format.
	Export(ctx context.Context, records []*EvidenceRecord, w io.Writer) error

	// ExportStream writes records as they arrive on recordsCh until it is
	// closed. Used with Store.QueryRecordsStream for case-sized exports.
	ExportStream(ctx context.Context, recordsCh <-chan *EvidenceRecord, w io.Writer) error
}
