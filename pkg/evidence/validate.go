package evidence

import (
	"path/filepath"
)

// Validate checks that a record carries every required field in its fixed
// form. It is called by every store before anything is written.
func (r *EvidenceRecord) Validate() error {
	switch {
	case r == nil:
		return &ValidationError{Field: "record", Message: "is nil"}
	case r.ID == "":
		return &ValidationError{Field: "id", Message: "is required"}
	case r.CaseID == "":
		return &ValidationError{Field: "case_id", Message: "is required"}
	case !filepath.IsAbs(r.SourcePath):
		return &ValidationError{Field: "source_path", Message: "must be absolute"}
	case r.Size < 0:
		return &ValidationError{Field: "size", Message: "must be >= 0"}
	case !IsDigest(r.SHA256):
		return &ValidationError{Field: "sha256", Message: "must be 64 lowercase hex characters"}
	case r.CollectedBy == "":
		return &ValidationError{Field: "collected_by", Message: "is required"}
	case r.CollectedAt.IsZero():
		return &ValidationError{Field: "collected_at", Message: "is required"}
	}
	return nil
}

// Validate checks the required fields of a custody entry.
func (e *CustodyEntry) Validate() error {
	switch {
	case e == nil:
		return &ValidationError{Field: "entry", Message: "is nil"}
	case e.CaseID == "":
		return &ValidationError{Field: "case_id", Message: "is required"}
	case e.Action == "":
		return &ValidationError{Field: "action", Message: "is required"}
	case e.Actor == "":
		return &ValidationError{Field: "actor", Message: "is required"}
	case e.Timestamp.IsZero():
		return &ValidationError{Field: "timestamp", Message: "is required"}
	case e.Digest != "" && !IsDigest(e.Digest):
		return &ValidationError{Field: "digest", Message: "must be 64 lowercase hex characters"}
	}
	return nil
}

// IsDigest reports whether s is a hex-encoded SHA-256 digest.
func IsDigest(s string) bool {
	if len(s) != DigestLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// CollectedEntry builds the evidence_collected custody entry for a record.
func CollectedEntry(r *EvidenceRecord) *CustodyEntry {
	return &CustodyEntry{
		CaseID:    r.CaseID,
		RecordID:  r.ID,
		Action:    ActionEvidenceCollected,
		Actor:     r.CollectedBy,
		Timestamp: r.CollectedAt,
		Digest:    r.SHA256,
		Details:   r.SourcePath,
	}
}
