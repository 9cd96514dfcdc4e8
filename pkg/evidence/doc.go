// Package evidence defines the evidence model shared by the collection
// pipeline: evidence records, the chain of custody, cases, and the Store
// interface that owns all durable state.
//
// # Architecture
//
// The evidence pipeline consists of four stages:
//
//  1. Discovery - Walks scan roots and applies the discovery policy
//  2. Processing - Computes digest, media type and metadata per file
//  3. Store - Persists records and custody entries (SQLite, PostgreSQL)
//  4. Packaging - Exports a case and seals it into a hash-anchored archive
//
// # Evidence Records
//
// Each evidence record captures:
//   - Identity (case, record id, absolute and relative path)
//   - Content facts (size, timestamps, owner, media type, extension)
//   - SHA-256 digest of the full file content
//   - Signature-rule tags
//   - Provenance (collecting agent, collection time, notes)
//
// Records are immutable. A correction is a new record plus a custody entry.
//
// # Chain of Custody
//
// Every state-changing action appends exactly one CustodyEntry. Store
// implementations write a record and its evidence_collected entry in one
// transaction, so no record can exist without its custody entry:
//
//	Discovery → bounded queue → Processing
//	     ↓
//	Store.InsertEvidence (single transaction)
//	     ├─ evidence_records row
//	     └─ chain_of_custody row (evidence_collected)
//
// Packaging appends package_created with the digest of the sealed archive
// before it reports success.
//
// # Errors
//
// The error taxonomy is expressed as sentinels (ErrUnreadablePath,
// ErrDuplicateRecord, ErrEmptyCase, ErrPackaging) wrapped by typed errors
// carrying the path, case and action involved. Use errors.Is and errors.As.
//
// # Thread Safety
//
// Store implementations are safe for concurrent use. Packaging must only run
// once processing for the case has completed; this ordering is the caller's
// responsibility.
package evidence
