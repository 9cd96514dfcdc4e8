package evidence

import (
	"errors"
	"fmt"
)

// Error taxonomy. Use errors.Is against these; the typed errors below wrap them
// with the context needed to write a custody entry describing the failure.
var (
	// ErrUnreadablePath means a file vanished or could not be opened or read.
	// Recoverable: the file is skipped and a collection_failed entry written.
	ErrUnreadablePath = errors.New("unreadable path")

	// ErrDuplicateRecord means (case, record id) already exists.
	ErrDuplicateRecord = errors.New("duplicate evidence record")

	// ErrEmptyCase means non-empty output was required for a case with no records.
	ErrEmptyCase = errors.New("case has no evidence records")

	// ErrPackaging means a packaging attempt could not seal the case.
	ErrPackaging = errors.New("packaging failed")

	// ErrInvalidRecord means a record or custody entry failed validation.
	ErrInvalidRecord = errors.New("invalid evidence record")

	// ErrCaseSealed means a write targeted a case that packaging has sealed.
	ErrCaseSealed = errors.New("case is sealed")

	// ErrUnknownCase means an operation that requires an existing case was
	// given an ID the store has never seen.
	ErrUnknownCase = errors.New("unknown case")
)

// StorageError represents an error from the storage backend.
type StorageError struct {
	Backend   string // Storage backend type ("sqlite", "postgres", "memory")
	Operation string // Operation that failed ("insert", "query", etc.)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// PathError describes a per-file failure during extraction or verification.
type PathError struct {
	Path   string // File that failed
	CaseID string // Case being collected, if known
	Action string // What was being attempted ("open", "read", "stat")
	Cause  error  // Underlying error
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("%v [path=%s, action=%s]: %v", ErrUnreadablePath, e.Path, e.Action, e.Cause)
}

// Unwrap returns both the sentinel and the underlying cause.
func (e *PathError) Unwrap() []error {
	return []error{ErrUnreadablePath, e.Cause}
}

// NewPathError creates a new PathError.
func NewPathError(path, caseID, action string, cause error) *PathError {
	return &PathError{
		Path:   path,
		CaseID: caseID,
		Action: action,
		Cause:  cause,
	}
}

// DuplicateError identifies the colliding record.
type DuplicateError struct {
	CaseID   string
	RecordID string
}

// Error implements the error interface.
func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%v [case_id=%s, record_id=%s]", ErrDuplicateRecord, e.CaseID, e.RecordID)
}

// Unwrap returns ErrDuplicateRecord.
func (e *DuplicateError) Unwrap() error {
	return ErrDuplicateRecord
}

// NewDuplicateError creates a new DuplicateError.
func NewDuplicateError(caseID, recordID string) *DuplicateError {
	return &DuplicateError{CaseID: caseID, RecordID: recordID}
}

// PackagingError represents a failed packaging attempt. Case data is untouched.
type PackagingError struct {
	CaseID string // Case being packaged
	Path   string // Offending source file, if any
	Cause  error  // Underlying error
}

// Error implements the error interface.
func (e *PackagingError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%v [case_id=%s, path=%s]: %v", ErrPackaging, e.CaseID, e.Path, e.Cause)
	}
	return fmt.Sprintf("%v [case_id=%s]: %v", ErrPackaging, e.CaseID, e.Cause)
}

// Unwrap returns both the sentinel and the underlying cause.
func (e *PackagingError) Unwrap() []error {
	return []error{ErrPackaging, e.Cause}
}

// NewPackagingError creates a new PackagingError.
func NewPackagingError(caseID, path string, cause error) *PackagingError {
	return &PackagingError{
		CaseID: caseID,
		Path:   path,
		Cause:  cause,
	}
}

// ExportError represents an error during evidence export.
type ExportError struct {
	Format      string // Export format ("json", "csv")
	RecordCount int    // Number of records being exported
	Cause       error  // Underlying error
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [format=%s, record_count=%d]: %v", e.Format, e.RecordCount, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ExportError) Unwrap() error {
	return e.Cause
}

// NewExportError creates a new ExportError.
func NewExportError(format string, recordCount int, cause error) *ExportError {
	return &ExportError{
		Format:      format,
		RecordCount: recordCount,
		Cause:       cause,
	}
}

// ValidationError lists the problems found in a record or custody entry.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s %s", ErrInvalidRecord, e.Field, e.Message)
}

// Unwrap returns ErrInvalidRecord.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidRecord
}
