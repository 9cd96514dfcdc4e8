package identity

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"dfas-hq/dfas/pkg/evidence"
)

// sniffBytes is how much of the file head mimetype inspects.
const sniffBytes = 3072

// recordNamespace scopes deterministic record identifiers.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:dfas:evidence-record"))

// RecordID returns the deterministic identifier of a record: the same case,
// path and content always map to the same ID, so re-running a collection is
// idempotent while changed content yields a new record.
func RecordID(caseID, sourcePath, digest string) string {
	name := caseID + "|" + sourcePath + "|" + digest
	return uuid.NewSHA1(recordNamespace, []byte(name)).String()
}

// Extractor builds evidence records for one case.
type Extractor struct {
	// CaseID is stamped on every record.
	CaseID string

	// AgentID identifies the collecting agent.
	AgentID string

	// Rules tags records with signature-rule hits. Nil disables tagging.
	Rules *RuleSet

	// Now returns the collection time. Defaults to time.Now.
	Now func() time.Time

	logger *slog.Logger
}

// NewExtractor creates an extractor for caseID.
func NewExtractor(caseID, agentID string, rules *RuleSet) *Extractor {
	return &Extractor{
		CaseID:  caseID,
		AgentID: agentID,
		Rules:   rules,
		Now:     time.Now,
		logger:  slog.Default().With("component", "identity.extractor"),
	}
}

// ExtractMetadata reads the file at path once and returns its complete
// evidence record. root is the scan root that found the file; the record's
// RelativePath is computed against it.
func (e *Extractor) ExtractMetadata(ctx context.Context, path, root string) (*evidence.EvidenceRecord, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, evidence.NewPathError(path, e.CaseID, "resolve", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, evidence.NewPathError(absPath, e.CaseID, "stat", err)
	}
	if !info.Mode().IsRegular() {
		return nil, evidence.NewPathError(absPath, e.CaseID, "stat", errNotRegular)
	}

	st, err := platformStat(absPath, info)
	if err != nil {
		return nil, evidence.NewPathError(absPath, e.CaseID, "stat", err)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, evidence.NewPathError(absPath, e.CaseID, "open", err)
	}
	defer f.Close()

	headLimit := sniffBytes
	if n := e.Rules.MaxScanBytes(); n > headLimit {
		headLimit = n
	}
	head := newHeadBuffer(headLimit)

	digest, size, err := hashTo(ctx, f, head)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, evidence.NewPathError(absPath, e.CaseID, "read", err)
	}

	ext := NormalizeExtension(filepath.Ext(absPath))
	now := e.Now
	if now == nil {
		now = time.Now
	}

	record := &evidence.EvidenceRecord{
		ID:           RecordID(e.CaseID, absPath, digest),
		CaseID:       e.CaseID,
		SourcePath:   absPath,
		RelativePath: relativePath(root, absPath),
		Size:         size,
		CreatedTime:  st.Created,
		ModifiedTime: info.ModTime().UTC(),
		AccessedTime: st.Accessed,
		Owner:        ownerName(st),
		MediaType:    classifyBytes(head.Bytes()),
		Extension:    ext,
		SHA256:       digest,
		Tags:         e.Rules.Match(ext, head.Bytes()),
		CollectedBy:  e.AgentID,
		CollectedAt:  now().UTC(),
	}

	if err := record.Validate(); err != nil {
		return nil, err
	}

	e.logger.Debug("metadata extracted",
		"path", absPath,
		"size", size,
		"media_type", record.MediaType,
		"tags", len(record.Tags),
	)

	return record, nil
}

// relativePath returns path relative to root in slash form, or the base name
// when path is not under root.
func relativePath(root, path string) string {
	if root != "" {
		if absRoot, err := filepath.Abs(root); err == nil {
			if rel, err := filepath.Rel(absRoot, path); err == nil && rel != "." && rel != ".." && !startsWithParent(rel) {
				return filepath.ToSlash(rel)
			}
		}
	}
	return filepath.Base(path)
}

func startsWithParent(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
