package storage

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"dfas-hq/dfas/pkg/evidence"
)

// MemoryStorage implements evidence.Store in memory.
// This implementation is intended for testing and dry runs only.
type MemoryStorage struct {
	mu      sync.RWMutex
	cases   map[string]*evidence.Case
	records map[string]*evidence.EvidenceRecord // by record ID
	custody []*evidence.CustodyEntry
	seq     int64
	sinks   []evidence.CustodySink
	logger  *slog.Logger
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		cases:   make(map[string]*evidence.Case),
		records: make(map[string]*evidence.EvidenceRecord),
		logger:  slog.Default().With("component", "evidence.storage.memory"),
	}
}

// AddSink registers a sink that receives every committed custody entry.
func (s *MemoryStorage) AddSink(sink evidence.CustodySink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// InsertEvidence stores a record and its evidence_collected entry atomically.
func (s *MemoryStorage) InsertEvidence(ctx context.Context, record *evidence.EvidenceRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	c := s.ensureCase(record.CaseID, record.CollectedAt)
	if c.Status == evidence.CaseSealed {
		s.mu.Unlock()
		return evidence.NewStorageError("memory", "insert_evidence", evidence.ErrCaseSealed)
	}
	if _, exists := s.records[record.ID]; exists {
		s.mu.Unlock()
		return evidence.NewStorageError("memory", "insert_evidence", evidence.NewDuplicateError(record.CaseID, record.ID))
	}

	s.records[record.ID] = copyRecord(record)
	entry := s.appendLocked(evidence.CollectedEntry(record))
	sinks := s.sinks
	s.mu.Unlock()

	s.publish(ctx, sinks, entry)
	return nil
}

// AppendCustody appends an entry and returns its sequence number.
func (s *MemoryStorage) AppendCustody(ctx context.Context, entry *evidence.CustodyEntry) (int64, error) {
	if err := entry.Validate(); err != nil {
		return 0, err
	}
	if entry.Action == evidence.ActionEvidenceCollected {
		return 0, &evidence.ValidationError{Field: "action", Message: "evidence_collected is written only with its record"}
	}

	s.mu.Lock()
	s.ensureCase(entry.CaseID, entry.Timestamp)
	stored := s.appendLocked(entry)
	entry.Sequence = stored.Sequence
	sinks := s.sinks
	s.mu.Unlock()

	s.publish(ctx, sinks, stored)
	return stored.Sequence, nil
}

// QueryRecords returns the records of a case ordered by ID.
func (s *MemoryStorage) QueryRecords(ctx context.Context, caseID string) ([]*evidence.EvidenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := []*evidence.EvidenceRecord{}
	for _, record := range s.records {
		if record.CaseID == caseID {
			results = append(results, copyRecord(record))
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].ID < results[j].ID
	})

	return results, nil
}

// QueryRecordsStream returns a channel of records for a case.
// The channels will be closed when the query completes or errors.
func (s *MemoryStorage) QueryRecordsStream(ctx context.Context, caseID string) (<-chan *evidence.EvidenceRecord, <-chan error, error) {
	records, err := s.QueryRecords(ctx, caseID)
	if err != nil {
		return nil, nil, err
	}

	recordsCh := make(chan *evidence.EvidenceRecord, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(recordsCh)
		defer close(errCh)

		for _, record := range records {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case recordsCh <- record:
			}
		}
	}()

	return recordsCh, errCh, nil
}

// QueryCustody returns custody entries of a case in insertion order.
func (s *MemoryStorage) QueryCustody(ctx context.Context, caseID, action string) ([]*evidence.CustodyEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := []*evidence.CustodyEntry{}
	for _, entry := range s.custody {
		if entry.CaseID != caseID {
			continue
		}
		if action != "" && entry.Action != action {
			continue
		}
		entryCopy := *entry
		results = append(results, &entryCopy)
	}
	return results, nil
}

// CountRecords returns the number of records in a case.
func (s *MemoryStorage) CountRecords(ctx context.Context, caseID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, record := range s.records {
		if record.CaseID == caseID {
			count++
		}
	}
	return count, nil
}

// GetCase returns the case or nil if it does not exist.
func (s *MemoryStorage) GetCase(ctx context.Context, caseID string) (*evidence.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cases[caseID]
	if !ok {
		return nil, nil
	}
	return copyCase(c), nil
}

// ListCases returns every case ordered by ID.
func (s *MemoryStorage) ListCases(ctx context.Context) ([]*evidence.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cases := make([]*evidence.Case, 0, len(s.cases))
	for _, c := range s.cases {
		cases = append(cases, copyCase(c))
	}
	sort.Slice(cases, func(i, j int) bool {
		return cases[i].ID < cases[j].ID
	})
	return cases, nil
}

// RecordScan stores the scan configuration snapshot for a case.
func (s *MemoryStorage) RecordScan(ctx context.Context, caseID string, scan *evidence.ScanConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.ensureCase(caseID, time.Now())
	if c.Status == evidence.CaseSealed {
		return evidence.NewStorageError("memory", "record_scan", evidence.ErrCaseSealed)
	}
	c.Scan = copyScan(scan)
	return nil
}

// SealCase marks the case sealed.
func (s *MemoryStorage) SealCase(ctx context.Context, caseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureCase(caseID, time.Now()).Status = evidence.CaseSealed
	return nil
}

// Close releases resources held by the storage backend.
func (s *MemoryStorage) Close() error {
	return nil
}

func (s *MemoryStorage) ensureCase(caseID string, createdAt time.Time) *evidence.Case {
	c, ok := s.cases[caseID]
	if !ok {
		c = &evidence.Case{
			ID:        caseID,
			CreatedAt: createdAt.UTC(),
			Status:    evidence.CaseCollecting,
		}
		s.cases[caseID] = c
	}
	return c
}

// appendLocked stores a copy of entry with the next sequence number.
func (s *MemoryStorage) appendLocked(entry *evidence.CustodyEntry) *evidence.CustodyEntry {
	s.seq++
	stored := *entry
	stored.Sequence = s.seq
	s.custody = append(s.custody, &stored)

	out := stored
	return &out
}

func (s *MemoryStorage) publish(ctx context.Context, sinks []evidence.CustodySink, entry *evidence.CustodyEntry) {
	for _, sink := range sinks {
		if err := sink.Publish(ctx, entry); err != nil {
			s.logger.Warn("custody sink publish failed",
				"case_id", entry.CaseID,
				"sequence", entry.Sequence,
				"error", err,
			)
		}
	}
}

func copyRecord(r *evidence.EvidenceRecord) *evidence.EvidenceRecord {
	c := *r
	c.Tags = append([]string{}, r.Tags...)
	return &c
}

func copyCase(c *evidence.Case) *evidence.Case {
	out := *c
	out.Scan = copyScan(c.Scan)
	return &out
}

func copyScan(scan *evidence.ScanConfig) *evidence.ScanConfig {
	if scan == nil {
		return nil
	}
	return &evidence.ScanConfig{
		Roots:       append([]string(nil), scan.Roots...),
		Excludes:    append([]string(nil), scan.Excludes...),
		Extensions:  append([]string(nil), scan.Extensions...),
		MaxFileSize: scan.MaxFileSize,
	}
}
