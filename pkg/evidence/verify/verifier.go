package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"dfas-hq/dfas/pkg/evidence"
	"dfas-hq/dfas/pkg/identity"
)

var tracer = otel.Tracer("dfas-hq/dfas/pkg/evidence/verify")

// Failure describes one record whose source no longer matches.
type Failure struct {
	RecordID string `json:"record_id"`
	Path     string `json:"path"`
	Reason   string `json:"reason"`
}

// Result summarizes one verification pass over a case.
type Result struct {
	CaseID   string    `json:"case_id"`
	Checked  int       `json:"checked"`
	Verified int       `json:"verified"`
	Failures []Failure `json:"failures"`
}

// OK reports whether every record was verified.
func (r *Result) OK() bool {
	return len(r.Failures) == 0
}

// Verifier re-hashes the sources of collected records.
type Verifier struct {
	store   evidence.Store
	agentID string
	now     func() time.Time
	logger  *slog.Logger
}

// NewVerifier creates a verifier that records its findings as agentID.
func NewVerifier(store evidence.Store, agentID string) *Verifier {
	return &Verifier{
		store:   store,
		agentID: agentID,
		now:     time.Now,
		logger:  slog.Default().With("component", "evidence.verify"),
	}
}

// VerifyCase re-hashes the source of every record in the case and appends an
// integrity_verified or integrity_failed custody entry per record. A source
// that vanished or changed is a finding, not an error; errors are reserved
// for store failures and cancellation.
func (v *Verifier) VerifyCase(ctx context.Context, caseID string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "verify.case", trace.WithAttributes(
		attribute.String("case.id", caseID),
	))
	defer span.End()

	records, err := v.store.QueryRecords(ctx, caseID)
	if err != nil {
		return nil, err
	}

	result := &Result{CaseID: caseID, Failures: []Failure{}}
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		digest, reason := v.check(ctx, record)
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Checked++

		entry := &evidence.CustodyEntry{
			CaseID:    caseID,
			RecordID:  record.ID,
			Actor:     v.agentID,
			Timestamp: v.now().UTC(),
		}
		if reason == "" {
			result.Verified++
			entry.Action = evidence.ActionIntegrityVerified
			entry.Digest = digest
			entry.Details = record.SourcePath
		} else {
			result.Failures = append(result.Failures, Failure{
				RecordID: record.ID,
				Path:     record.SourcePath,
				Reason:   reason,
			})
			entry.Action = evidence.ActionIntegrityFailed
			entry.Digest = digest
			entry.Details = fmt.Sprintf("%s: %s", record.SourcePath, reason)
			v.logger.Warn("integrity check failed",
				"case_id", caseID,
				"record_id", record.ID,
				"path", record.SourcePath,
				"reason", reason,
			)
		}

		if _, err := v.store.AppendCustody(ctx, entry); err != nil {
			return result, fmt.Errorf("record integrity custody: %w", err)
		}
	}

	span.SetAttributes(
		attribute.Int("verify.checked", result.Checked),
		attribute.Int("verify.failed", len(result.Failures)),
	)
	v.logger.Info("case verified",
		"case_id", caseID,
		"checked", result.Checked,
		"verified", result.Verified,
		"failed", len(result.Failures),
	)
	return result, nil
}

// check returns the current digest of the record's source and a failure
// reason, empty when the source still matches.
func (v *Verifier) check(ctx context.Context, record *evidence.EvidenceRecord) (string, string) {
	digest, err := identity.ComputeDigest(ctx, record.SourcePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", "source missing"
		}
		return "", err.Error()
	}
	if digest != record.SHA256 {
		return digest, fmt.Sprintf("digest %s, recorded %s", digest, record.SHA256)
	}
	return digest, ""
}
