package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"dfas-hq/dfas/pkg/evidence"
)

// storeFactory returns an empty store that is closed when the test ends.
type storeFactory func(t *testing.T) evidence.Store

// sinkAdder is implemented by every backend in this package.
type sinkAdder interface {
	AddSink(sink evidence.CustodySink)
}

type recordingSink struct {
	mu      sync.Mutex
	entries []*evidence.CustodyEntry
	err     error
}

func (s *recordingSink) Publish(ctx context.Context, entry *evidence.CustodyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return s.err
}

func (s *recordingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func testRecord(caseID, id string) *evidence.EvidenceRecord {
	now := time.Now().UTC()
	return &evidence.EvidenceRecord{
		ID:           id,
		CaseID:       caseID,
		SourcePath:   "/evidence/" + id + ".txt",
		RelativePath: id + ".txt",
		Size:         42,
		CreatedTime:  now.Add(-time.Hour),
		ModifiedTime: now.Add(-time.Minute),
		AccessedTime: now,
		Owner:        "analyst",
		MediaType:    "text/plain; charset=utf-8",
		Extension:    ".txt",
		SHA256:       strings.Repeat("0f", 32),
		Tags:         []string{"email-address"},
		CollectedBy:  "agent-7",
		CollectedAt:  now,
		Notes:        "initial sweep",
	}
}

// runStoreSuite exercises the behavior every backend must share.
func runStoreSuite(t *testing.T, newStore storeFactory) {
	ctx := context.Background()

	t.Run("InsertAndQuery", func(t *testing.T) {
		store := newStore(t)
		want := testRecord("case-1", "rec-b")

		if err := store.InsertEvidence(ctx, want); err != nil {
			t.Fatalf("InsertEvidence() error = %v", err)
		}
		if err := store.InsertEvidence(ctx, testRecord("case-1", "rec-a")); err != nil {
			t.Fatalf("InsertEvidence() error = %v", err)
		}

		records, err := store.QueryRecords(ctx, "case-1")
		if err != nil {
			t.Fatalf("QueryRecords() error = %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("QueryRecords() returned %d records, want 2", len(records))
		}
		if records[0].ID != "rec-a" || records[1].ID != "rec-b" {
			t.Errorf("records not ordered by id: %s, %s", records[0].ID, records[1].ID)
		}

		got := records[1]
		if got.SourcePath != want.SourcePath || got.RelativePath != want.RelativePath {
			t.Errorf("paths = %s/%s, want %s/%s", got.SourcePath, got.RelativePath, want.SourcePath, want.RelativePath)
		}
		if got.SHA256 != want.SHA256 || got.Size != want.Size {
			t.Errorf("digest/size = %s/%d, want %s/%d", got.SHA256, got.Size, want.SHA256, want.Size)
		}
		if !got.CollectedAt.Equal(want.CollectedAt) || !got.ModifiedTime.Equal(want.ModifiedTime) {
			t.Errorf("timestamps not preserved: collected %v vs %v", got.CollectedAt, want.CollectedAt)
		}
		if len(got.Tags) != 1 || got.Tags[0] != "email-address" {
			t.Errorf("Tags = %v, want [email-address]", got.Tags)
		}
		if got.Owner != want.Owner || got.Notes != want.Notes || got.MediaType != want.MediaType {
			t.Errorf("metadata not preserved: %+v", got)
		}

		count, err := store.CountRecords(ctx, "case-1")
		if err != nil || count != 2 {
			t.Errorf("CountRecords() = %d, %v; want 2, nil", count, err)
		}
	})

	t.Run("CollectedEntryPerRecord", func(t *testing.T) {
		store := newStore(t)
		for i := 0; i < 3; i++ {
			if err := store.InsertEvidence(ctx, testRecord("case-1", fmt.Sprintf("rec-%d", i))); err != nil {
				t.Fatalf("InsertEvidence() error = %v", err)
			}
		}

		entries, err := store.QueryCustody(ctx, "case-1", evidence.ActionEvidenceCollected)
		if err != nil {
			t.Fatalf("QueryCustody() error = %v", err)
		}
		if len(entries) != 3 {
			t.Fatalf("evidence_collected entries = %d, want 3", len(entries))
		}
		for i, entry := range entries {
			if entry.RecordID != fmt.Sprintf("rec-%d", i) {
				t.Errorf("entry %d RecordID = %s", i, entry.RecordID)
			}
			if entry.Digest != strings.Repeat("0f", 32) {
				t.Errorf("entry %d Digest = %s", i, entry.Digest)
			}
			if entry.Actor != "agent-7" {
				t.Errorf("entry %d Actor = %s, want agent-7", i, entry.Actor)
			}
		}
	})

	t.Run("DuplicateRecord", func(t *testing.T) {
		store := newStore(t)
		record := testRecord("case-1", "rec-1")
		if err := store.InsertEvidence(ctx, record); err != nil {
			t.Fatalf("InsertEvidence() error = %v", err)
		}

		err := store.InsertEvidence(ctx, record)
		if !errors.Is(err, evidence.ErrDuplicateRecord) {
			t.Fatalf("second InsertEvidence() error = %v, want ErrDuplicateRecord", err)
		}

		entries, _ := store.QueryCustody(ctx, "case-1", "")
		if len(entries) != 1 {
			t.Errorf("custody entries after duplicate = %d, want 1", len(entries))
		}
	})

	t.Run("InvalidRecord", func(t *testing.T) {
		store := newStore(t)
		record := testRecord("case-1", "rec-1")
		record.SHA256 = "nope"

		if err := store.InsertEvidence(ctx, record); !errors.Is(err, evidence.ErrInvalidRecord) {
			t.Fatalf("InsertEvidence() error = %v, want ErrInvalidRecord", err)
		}
		if c, _ := store.GetCase(ctx, "case-1"); c != nil {
			t.Error("invalid record should not create the case")
		}
	})

	t.Run("CustodyOrder", func(t *testing.T) {
		store := newStore(t)
		now := time.Now().UTC()

		failed := &evidence.CustodyEntry{
			CaseID:    "case-1",
			Action:    evidence.ActionCollectionFailed,
			Actor:     "agent-7",
			Timestamp: now,
			Details:   "/evidence/gone.txt: no such file or directory",
		}
		seq1, err := store.AppendCustody(ctx, failed)
		if err != nil {
			t.Fatalf("AppendCustody() error = %v", err)
		}
		if failed.Sequence != seq1 {
			t.Errorf("entry.Sequence = %d, want %d", failed.Sequence, seq1)
		}

		if err := store.InsertEvidence(ctx, testRecord("case-1", "rec-1")); err != nil {
			t.Fatalf("InsertEvidence() error = %v", err)
		}

		seq3, err := store.AppendCustody(ctx, &evidence.CustodyEntry{
			CaseID:    "case-1",
			Action:    evidence.ActionExportCreated,
			Actor:     "agent-7",
			Timestamp: now,
			Digest:    strings.Repeat("ab", 32),
		})
		if err != nil {
			t.Fatalf("AppendCustody() error = %v", err)
		}
		if seq3 <= seq1 {
			t.Errorf("sequence not increasing: %d then %d", seq1, seq3)
		}

		entries, err := store.QueryCustody(ctx, "case-1", "")
		if err != nil {
			t.Fatalf("QueryCustody() error = %v", err)
		}
		wantActions := []string{
			evidence.ActionCollectionFailed,
			evidence.ActionEvidenceCollected,
			evidence.ActionExportCreated,
		}
		if len(entries) != len(wantActions) {
			t.Fatalf("custody entries = %d, want %d", len(entries), len(wantActions))
		}
		for i, entry := range entries {
			if entry.Action != wantActions[i] {
				t.Errorf("entry %d action = %s, want %s", i, entry.Action, wantActions[i])
			}
			if i > 0 && entry.Sequence <= entries[i-1].Sequence {
				t.Errorf("entry %d sequence %d not after %d", i, entry.Sequence, entries[i-1].Sequence)
			}
		}
		if entries[0].RecordID != "" {
			t.Errorf("collection_failed RecordID = %q, want empty", entries[0].RecordID)
		}
	})

	t.Run("AppendCustodyRejectsCollected", func(t *testing.T) {
		store := newStore(t)
		_, err := store.AppendCustody(ctx, &evidence.CustodyEntry{
			CaseID:    "case-1",
			RecordID:  "rec-1",
			Action:    evidence.ActionEvidenceCollected,
			Actor:     "agent-7",
			Timestamp: time.Now(),
		})
		if !errors.Is(err, evidence.ErrInvalidRecord) {
			t.Fatalf("AppendCustody(evidence_collected) error = %v, want ErrInvalidRecord", err)
		}
	})

	t.Run("UnknownCase", func(t *testing.T) {
		store := newStore(t)

		records, err := store.QueryRecords(ctx, "missing")
		if err != nil {
			t.Fatalf("QueryRecords() error = %v", err)
		}
		if records == nil || len(records) != 0 {
			t.Errorf("QueryRecords() = %v, want empty non-nil slice", records)
		}

		c, err := store.GetCase(ctx, "missing")
		if err != nil || c != nil {
			t.Errorf("GetCase() = %v, %v; want nil, nil", c, err)
		}
	})

	t.Run("CaseLifecycle", func(t *testing.T) {
		store := newStore(t)
		scan := &evidence.ScanConfig{
			Roots:       []string{"/evidence"},
			Excludes:    []string{"/evidence/tmp"},
			Extensions:  []string{".txt", ".pdf"},
			MaxFileSize: 100 << 20,
		}
		if err := store.RecordScan(ctx, "case-2", scan); err != nil {
			t.Fatalf("RecordScan() error = %v", err)
		}
		if err := store.InsertEvidence(ctx, testRecord("case-1", "rec-1")); err != nil {
			t.Fatalf("InsertEvidence() error = %v", err)
		}

		c, err := store.GetCase(ctx, "case-2")
		if err != nil {
			t.Fatalf("GetCase() error = %v", err)
		}
		if c.Status != evidence.CaseCollecting {
			t.Errorf("Status = %s, want %s", c.Status, evidence.CaseCollecting)
		}
		if c.Scan == nil || c.Scan.MaxFileSize != scan.MaxFileSize || len(c.Scan.Extensions) != 2 {
			t.Errorf("Scan = %+v, want %+v", c.Scan, scan)
		}

		cases, err := store.ListCases(ctx)
		if err != nil {
			t.Fatalf("ListCases() error = %v", err)
		}
		if len(cases) != 2 || cases[0].ID != "case-1" || cases[1].ID != "case-2" {
			t.Errorf("ListCases() = %v", cases)
		}

		if err := store.SealCase(ctx, "case-1"); err != nil {
			t.Fatalf("SealCase() error = %v", err)
		}
		err = store.InsertEvidence(ctx, testRecord("case-1", "rec-2"))
		if !errors.Is(err, evidence.ErrCaseSealed) {
			t.Fatalf("InsertEvidence() into sealed case error = %v, want ErrCaseSealed", err)
		}

		// Sealing is non-destructive.
		count, _ := store.CountRecords(ctx, "case-1")
		if count != 1 {
			t.Errorf("CountRecords() after seal = %d, want 1", count)
		}
		if _, err := store.AppendCustody(ctx, &evidence.CustodyEntry{
			CaseID:    "case-1",
			Action:    evidence.ActionIntegrityVerified,
			Actor:     "verifier",
			Timestamp: time.Now(),
		}); err != nil {
			t.Errorf("AppendCustody() on sealed case error = %v", err)
		}

		if err := store.SealCase(ctx, "case-2"); err != nil {
			t.Fatalf("SealCase() error = %v", err)
		}
		err = store.RecordScan(ctx, "case-2", &evidence.ScanConfig{Roots: []string{"/elsewhere"}, MaxFileSize: 1})
		if !errors.Is(err, evidence.ErrCaseSealed) {
			t.Errorf("RecordScan() on sealed case error = %v, want ErrCaseSealed", err)
		}
		c, _ = store.GetCase(ctx, "case-2")
		if c.Scan == nil || c.Scan.MaxFileSize != scan.MaxFileSize || len(c.Scan.Roots) != len(scan.Roots) {
			t.Errorf("sealed case Scan = %+v, want unchanged %+v", c.Scan, scan)
		}
	})

	t.Run("ConcurrentInserts", func(t *testing.T) {
		store := newStore(t)
		const workers, perWorker = 8, 25

		var wg sync.WaitGroup
		errs := make(chan error, workers*perWorker)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					if err := store.InsertEvidence(ctx, testRecord("case-1", fmt.Sprintf("rec-%02d-%02d", w, i))); err != nil {
						errs <- err
					}
				}
			}(w)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			t.Errorf("concurrent InsertEvidence() error = %v", err)
		}

		count, _ := store.CountRecords(ctx, "case-1")
		entries, _ := store.QueryCustody(ctx, "case-1", evidence.ActionEvidenceCollected)
		if count != workers*perWorker || int64(len(entries)) != count {
			t.Errorf("records = %d, evidence_collected = %d, want %d each", count, len(entries), workers*perWorker)
		}
	})

	t.Run("Stream", func(t *testing.T) {
		store := newStore(t)
		for i := 0; i < 5; i++ {
			if err := store.InsertEvidence(ctx, testRecord("case-1", fmt.Sprintf("rec-%d", i))); err != nil {
				t.Fatalf("InsertEvidence() error = %v", err)
			}
		}

		recordsCh, errCh, err := store.QueryRecordsStream(ctx, "case-1")
		if err != nil {
			t.Fatalf("QueryRecordsStream() error = %v", err)
		}

		var ids []string
		for record := range recordsCh {
			ids = append(ids, record.ID)
		}
		if err := <-errCh; err != nil {
			t.Fatalf("stream error = %v", err)
		}
		if len(ids) != 5 || ids[0] != "rec-0" || ids[4] != "rec-4" {
			t.Errorf("streamed ids = %v", ids)
		}
	})

	t.Run("Sinks", func(t *testing.T) {
		store := newStore(t)
		adder, ok := store.(sinkAdder)
		if !ok {
			t.Fatalf("%T does not support sinks", store)
		}

		ok1 := &recordingSink{}
		broken := &recordingSink{err: errors.New("broker unavailable")}
		adder.AddSink(ok1)
		adder.AddSink(broken)

		if err := store.InsertEvidence(ctx, testRecord("case-1", "rec-1")); err != nil {
			t.Fatalf("InsertEvidence() with failing sink error = %v", err)
		}
		if _, err := store.AppendCustody(ctx, &evidence.CustodyEntry{
			CaseID:    "case-1",
			Action:    evidence.ActionPackageCreated,
			Actor:     "agent-7",
			Timestamp: time.Now(),
		}); err != nil {
			t.Fatalf("AppendCustody() error = %v", err)
		}

		if ok1.len() != 2 || broken.len() != 2 {
			t.Errorf("sink deliveries = %d/%d, want 2/2", ok1.len(), broken.len())
		}
		if ok1.entries[0].Sequence == 0 {
			t.Error("published entry should carry its committed sequence")
		}
	})
}

func TestMemoryStorage(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) evidence.Store {
		store := NewMemoryStorage()
		t.Cleanup(func() { store.Close() })
		return store
	})
}
