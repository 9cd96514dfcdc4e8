package evidence

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validRecord() *EvidenceRecord {
	return &EvidenceRecord{
		ID:          "rec-1",
		CaseID:      "case-1",
		SourcePath:  "/evidence/a.txt",
		Size:        10,
		SHA256:      strings.Repeat("ab", 32),
		Tags:        []string{},
		CollectedBy: "agent-1",
		CollectedAt: time.Now().UTC(),
	}
}

func TestEvidenceRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *EvidenceRecord)
		field   string
		wantErr bool
	}{
		{name: "valid record", mutate: func(r *EvidenceRecord) {}},
		{name: "missing id", mutate: func(r *EvidenceRecord) { r.ID = "" }, field: "id", wantErr: true},
		{name: "missing case", mutate: func(r *EvidenceRecord) { r.CaseID = "" }, field: "case_id", wantErr: true},
		{name: "relative path", mutate: func(r *EvidenceRecord) { r.SourcePath = "a.txt" }, field: "source_path", wantErr: true},
		{name: "negative size", mutate: func(r *EvidenceRecord) { r.Size = -1 }, field: "size", wantErr: true},
		{name: "short digest", mutate: func(r *EvidenceRecord) { r.SHA256 = "abc123" }, field: "sha256", wantErr: true},
		{name: "uppercase digest", mutate: func(r *EvidenceRecord) { r.SHA256 = strings.Repeat("AB", 32) }, field: "sha256", wantErr: true},
		{name: "missing agent", mutate: func(r *EvidenceRecord) { r.CollectedBy = "" }, field: "collected_by", wantErr: true},
		{name: "missing collection time", mutate: func(r *EvidenceRecord) { r.CollectedAt = time.Time{} }, field: "collected_at", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecord()
			tt.mutate(r)

			err := r.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			if !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("Validate() error should wrap ErrInvalidRecord, got %v", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error type = %T, want *ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("ValidationError.Field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestCustodyEntry_Validate(t *testing.T) {
	entry := &CustodyEntry{
		CaseID:    "case-1",
		Action:    ActionPackageCreated,
		Actor:     "agent-1",
		Timestamp: time.Now(),
	}
	if err := entry.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	entry.Digest = "not-a-digest"
	if err := entry.Validate(); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Validate() with bad digest error = %v, want ErrInvalidRecord", err)
	}

	entry.Digest = ""
	entry.Actor = ""
	if err := entry.Validate(); err == nil {
		t.Error("Validate() should reject an entry without actor")
	}
}

func TestCollectedEntry(t *testing.T) {
	r := validRecord()
	entry := CollectedEntry(r)

	if entry.Action != ActionEvidenceCollected {
		t.Errorf("Action = %q, want %q", entry.Action, ActionEvidenceCollected)
	}
	if entry.RecordID != r.ID || entry.CaseID != r.CaseID {
		t.Errorf("entry subject = %s/%s, want %s/%s", entry.CaseID, entry.RecordID, r.CaseID, r.ID)
	}
	if entry.Digest != r.SHA256 {
		t.Errorf("Digest = %q, want %q", entry.Digest, r.SHA256)
	}
	if err := entry.Validate(); err != nil {
		t.Errorf("CollectedEntry() produced invalid entry: %v", err)
	}
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("no such file")
	pathErr := NewPathError("/x", "case-1", "open", cause)
	if !errors.Is(pathErr, ErrUnreadablePath) {
		t.Error("PathError should match ErrUnreadablePath")
	}
	if !errors.Is(pathErr, cause) {
		t.Error("PathError should match its cause")
	}

	pkgErr := NewPackagingError("case-1", "/x", cause)
	if !errors.Is(pkgErr, ErrPackaging) {
		t.Error("PackagingError should match ErrPackaging")
	}

	dupErr := NewDuplicateError("case-1", "rec-1")
	if !errors.Is(dupErr, ErrDuplicateRecord) {
		t.Error("DuplicateError should match ErrDuplicateRecord")
	}

	storeErr := NewStorageError("sqlite", "insert", dupErr)
	if !errors.Is(storeErr, ErrDuplicateRecord) {
		t.Error("StorageError should unwrap to ErrDuplicateRecord")
	}
	if got := storeErr.Error(); !strings.Contains(got, "backend=sqlite") {
		t.Errorf("StorageError.Error() = %q, want backend context", got)
	}
}
