package packaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"dfas-hq/dfas/pkg/evidence"
	"dfas-hq/dfas/pkg/evidence/export"
	"dfas-hq/dfas/pkg/identity"
)

// Verification is the outcome of checking a sealed package.
type Verification struct {
	CaseID   string   `json:"case_id"`
	Path     string   `json:"path"`
	SHA256   string   `json:"sha256"`
	Sequence int64    `json:"sequence"` // matching package_created entry, 0 if none
	Members  int      `json:"members"`
	Problems []string `json:"problems"`
}

// OK reports whether the archive is anchored in the custody log and every
// member matches its recorded digest.
func (v *Verification) OK() bool {
	return v.Sequence != 0 && len(v.Problems) == 0
}

// VerifyPackage recomputes the digest of the archive at path, matches it to a
// package_created custody entry and re-hashes every evidence member against
// the records in evidence.json. The outcome is appended to the chain of
// custody as integrity_verified or integrity_failed.
//
// An error is returned only when the archive cannot be read at all.
func (p *Packager) VerifyPackage(ctx context.Context, path string) (*Verification, error) {
	ctx, span := tracer.Start(ctx, "packaging.verify", trace.WithAttributes(
		attribute.String("package.path", path),
	))
	defer span.End()

	digest, err := identity.ComputeDigest(ctx, path)
	if err != nil {
		return nil, err
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open package %s: %w", path, err)
	}
	defer zr.Close()

	members := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		members[f.Name] = f
	}

	var manifest Manifest
	if err := decodeMember(members, ManifestName, &manifest); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	v := &Verification{
		CaseID:   manifest.CaseID,
		Path:     path,
		SHA256:   digest,
		Members:  len(zr.File),
		Problems: []string{},
	}

	created, err := p.store.QueryCustody(ctx, manifest.CaseID, evidence.ActionPackageCreated)
	if err != nil {
		return nil, err
	}
	for _, entry := range created {
		if entry.Digest == digest {
			v.Sequence = entry.Sequence
			break
		}
	}
	if v.Sequence == 0 {
		v.Problems = append(v.Problems, fmt.Sprintf("archive digest %s is not recorded by any package_created entry", digest))
	}

	for _, file := range manifest.Exports {
		v.check(ctx, members, file.Name, file.SHA256)
	}

	jsonMember, ok := members[JSONName]
	if !ok {
		v.Problems = append(v.Problems, "missing member "+JSONName)
	} else {
		rc, err := jsonMember.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", JSONName, err)
		}
		records, err := export.DecodeJSON(rc)
		rc.Close()
		if err != nil {
			v.Problems = append(v.Problems, fmt.Sprintf("%s: %v", JSONName, err))
		}
		for _, record := range records {
			v.check(ctx, members, memberName(record), record.SHA256)
		}
	}

	action := evidence.ActionIntegrityVerified
	if !v.OK() {
		action = evidence.ActionIntegrityFailed
	}
	if _, err := p.store.AppendCustody(ctx, &evidence.CustodyEntry{
		CaseID:    manifest.CaseID,
		Action:    action,
		Actor:     p.config.AgentID,
		Timestamp: p.config.Now().UTC(),
		Digest:    digest,
		Details:   verificationDetails(v),
	}); err != nil {
		return nil, fmt.Errorf("record verification custody: %w", err)
	}

	span.SetAttributes(attribute.Bool("package.verified", v.OK()))
	p.logger.Info("package verified",
		"case_id", v.CaseID,
		"path", path,
		"ok", v.OK(),
		"problems", len(v.Problems),
	)
	return v, nil
}

// check re-hashes one member against want.
func (v *Verification) check(ctx context.Context, members map[string]*zip.File, name, want string) {
	f, ok := members[name]
	if !ok {
		v.Problems = append(v.Problems, "missing member "+name)
		return
	}
	rc, err := f.Open()
	if err != nil {
		v.Problems = append(v.Problems, fmt.Sprintf("%s: %v", name, err))
		return
	}
	defer rc.Close()

	got, _, err := identity.HashReader(ctx, rc)
	if err != nil {
		v.Problems = append(v.Problems, fmt.Sprintf("%s: %v", name, err))
		return
	}
	if got != want {
		v.Problems = append(v.Problems, fmt.Sprintf("%s: digest %s, want %s", name, got, want))
	}
}

func decodeMember(members map[string]*zip.File, name string, v any) error {
	f, ok := members[name]
	if !ok {
		return fmt.Errorf("missing member %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func verificationDetails(v *Verification) string {
	if len(v.Problems) == 0 {
		return "package=" + v.Path
	}
	return fmt.Sprintf("package=%s problems=%d: %s", v.Path, len(v.Problems), strings.Join(v.Problems, "; "))
}
