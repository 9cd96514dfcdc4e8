package packaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dfas-hq/dfas/pkg/evidence"
	"dfas-hq/dfas/pkg/evidence/export"
	"dfas-hq/dfas/pkg/identity"
)

var tracer = otel.Tracer("dfas-hq/dfas/pkg/packaging")

var (
	errDigestMismatch = errors.New("source content no longer matches its record")
	errSizeMismatch   = errors.New("source size no longer matches its record")
	errNoUploader     = errors.New("no uploader configured")
)

// Uploader ships a sealed package to remote storage and returns its location.
type Uploader interface {
	Upload(ctx context.Context, path, key string) (string, error)
}

// Metrics receives packaging outcomes. metrics.Collector implements it.
type Metrics interface {
	RecordPackage(bytes int64, duration time.Duration)
}

// Config configures a Packager.
type Config struct {
	// OutputDir receives exports and packages. Created if missing.
	OutputDir string

	// AgentID is the actor of every custody entry the packager writes.
	AgentID string

	// RequireNonEmpty makes exports and packages of an empty case fail
	// with evidence.ErrEmptyCase.
	RequireNonEmpty bool

	// Uploader is optional; see Packager.Upload.
	Uploader Uploader

	// Metrics is optional.
	Metrics Metrics

	// Now defaults to time.Now.
	Now func() time.Time
}

// Package describes a sealed archive.
type Package struct {
	CaseID    string    `json:"case_id"`
	Number    int       `json:"number"`
	Path      string    `json:"path"`
	SHA256    string    `json:"sha256"`
	Size      int64     `json:"size"`
	Records   int       `json:"records"`
	Sequence  int64     `json:"sequence"` // custody sequence of package_created
	CreatedAt time.Time `json:"created_at"`
}

// ExportFile describes an export written to the output directory.
type ExportFile struct {
	Format   string `json:"format"`
	Path     string `json:"path"`
	SHA256   string `json:"sha256"`
	Records  int    `json:"records"`
	Sequence int64  `json:"sequence"` // custody sequence of export_created
}

// Packager exports and seals cases.
//
// Packaging must only run once processing for the case has completed. A
// sealed case rejects further inserts, so a collection still in flight
// stops with evidence.ErrCaseSealed rather than racing the archive.
type Packager struct {
	store  evidence.Store
	config Config
	logger *slog.Logger
}

// NewPackager creates a packager over store.
func NewPackager(store evidence.Store, cfg Config) (*Packager, error) {
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("packaging: output directory is required")
	}
	if cfg.AgentID == "" {
		return nil, fmt.Errorf("packaging: agent id is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Packager{
		store:  store,
		config: cfg,
		logger: slog.Default().With("component", "packaging"),
	}, nil
}

// ExportCSV writes <case>_evidence.csv to the output directory and records an
// export_created custody entry carrying the file digest.
func (p *Packager) ExportCSV(ctx context.Context, caseID string) (*ExportFile, error) {
	exporter := export.NewCSVExporter(true)
	exporter.RequireNonEmpty = p.config.RequireNonEmpty
	return p.exportFile(ctx, caseID, "csv", exporter)
}

// ExportJSON writes <case>_evidence.json to the output directory and records
// an export_created custody entry carrying the file digest.
func (p *Packager) ExportJSON(ctx context.Context, caseID string) (*ExportFile, error) {
	exporter := export.NewJSONExporter(true)
	exporter.RequireNonEmpty = p.config.RequireNonEmpty
	return p.exportFile(ctx, caseID, "json", exporter)
}

func (p *Packager) exportFile(ctx context.Context, caseID, format string, exporter evidence.Exporter) (*ExportFile, error) {
	ctx, span := tracer.Start(ctx, "packaging.export", trace.WithAttributes(
		attribute.String("case.id", caseID),
		attribute.String("export.format", format),
	))
	defer span.End()

	if err := os.MkdirAll(p.config.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(p.config.OutputDir, fmt.Sprintf("%s_evidence.%s", fileSafe(caseID), format))

	records, err := p.streamExport(ctx, caseID, path, exporter)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// The recorded digest is taken from the file as it sits on disk.
	digest, err := identity.ComputeDigest(ctx, path)
	if err != nil {
		return nil, err
	}

	seq, err := p.store.AppendCustody(ctx, &evidence.CustodyEntry{
		CaseID:    caseID,
		Action:    evidence.ActionExportCreated,
		Actor:     p.config.AgentID,
		Timestamp: p.config.Now().UTC(),
		Digest:    digest,
		Details:   fmt.Sprintf("format=%s path=%s records=%d", format, path, records),
	})
	if err != nil {
		return nil, fmt.Errorf("record export custody: %w", err)
	}

	p.logger.Info("export created",
		"case_id", caseID,
		"format", format,
		"path", path,
		"records", records,
	)

	return &ExportFile{
		Format:   format,
		Path:     path,
		SHA256:   digest,
		Records:  records,
		Sequence: seq,
	}, nil
}

// CreatePackage bundles the case's exports, custody log and evidence content
// into <case>_package_<NNN>.zip. Every source file is re-hashed while it is
// copied and must still match its record. The package_created custody entry
// is durable before CreatePackage returns, after which the case is sealed.
//
// A failed attempt leaves no archive behind and never touches case data.
func (p *Packager) CreatePackage(ctx context.Context, caseID string) (*Package, error) {
	ctx, span := tracer.Start(ctx, "packaging.create", trace.WithAttributes(
		attribute.String("case.id", caseID),
	))
	defer span.End()

	start := time.Now()
	pkg, err := p.createPackage(ctx, caseID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error("packaging failed", "case_id", caseID, "error", err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("package.sha256", pkg.SHA256),
		attribute.Int64("package.size", pkg.Size),
	)
	if m := p.config.Metrics; m != nil {
		m.RecordPackage(pkg.Size, time.Since(start))
	}

	p.logger.Info("package sealed",
		"case_id", caseID,
		"path", pkg.Path,
		"sha256", pkg.SHA256,
		"records", pkg.Records,
		"sequence", pkg.Sequence,
	)
	return pkg, nil
}

func (p *Packager) createPackage(ctx context.Context, caseID string) (*Package, error) {
	c, err := p.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, evidence.NewPackagingError(caseID, "", err)
	}
	if c == nil {
		return nil, evidence.NewPackagingError(caseID, "", evidence.ErrUnknownCase)
	}
	records, err := p.store.QueryRecords(ctx, caseID)
	if err != nil {
		return nil, evidence.NewPackagingError(caseID, "", err)
	}
	if len(records) == 0 && p.config.RequireNonEmpty {
		return nil, evidence.NewPackagingError(caseID, "", evidence.ErrEmptyCase)
	}
	custody, err := p.store.QueryCustody(ctx, caseID, "")
	if err != nil {
		return nil, evidence.NewPackagingError(caseID, "", err)
	}

	if err := os.MkdirAll(p.config.OutputDir, 0o755); err != nil {
		return nil, evidence.NewPackagingError(caseID, "", err)
	}

	number := 1
	for _, entry := range custody {
		if entry.Action == evidence.ActionPackageCreated {
			number++
		}
	}
	finalPath, number, err := p.nextPackagePath(caseID, number)
	if err != nil {
		return nil, evidence.NewPackagingError(caseID, "", err)
	}

	tmp, err := os.CreateTemp(p.config.OutputDir, "."+fileSafe(caseID)+"_package_*.tmp")
	if err != nil {
		return nil, evidence.NewPackagingError(caseID, "", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	now := p.config.Now().UTC()
	manifest := &Manifest{
		CaseID:        caseID,
		PackageNumber: number,
		CreatedAt:     now,
		CreatedBy:     p.config.AgentID,
		RecordCount:   len(records),
		CustodyCount:  len(custody),
		Scan:          c.Scan,
		Exports:       []ManifestFile{},
		Evidence:      []ManifestFile{},
	}

	if err := p.writeArchive(ctx, tmp, manifest, records, custody); err != nil {
		return nil, err
	}
	if err := tmp.Sync(); err != nil {
		return nil, evidence.NewPackagingError(caseID, "", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, evidence.NewPackagingError(caseID, "", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return nil, evidence.NewPackagingError(caseID, "", err)
	}
	committed = true
	syncDir(p.config.OutputDir)

	// The recorded digest is taken from the file as it sits on disk.
	digest, err := identity.ComputeDigest(ctx, finalPath)
	if err != nil {
		return nil, evidence.NewPackagingError(caseID, finalPath, err)
	}
	info, err := os.Stat(finalPath)
	if err != nil {
		return nil, evidence.NewPackagingError(caseID, finalPath, err)
	}

	seq, err := p.store.AppendCustody(ctx, &evidence.CustodyEntry{
		CaseID:    caseID,
		Action:    evidence.ActionPackageCreated,
		Actor:     p.config.AgentID,
		Timestamp: p.config.Now().UTC(),
		Digest:    digest,
		Details:   fmt.Sprintf("path=%s records=%d", finalPath, len(records)),
	})
	if err != nil {
		// An archive without its package_created entry is unanchored.
		if rmErr := os.Remove(finalPath); rmErr != nil {
			p.logger.Warn("failed to remove unrecorded package", "path", finalPath, "error", rmErr)
		}
		return nil, evidence.NewPackagingError(caseID, finalPath, fmt.Errorf("record package custody: %w", err))
	}

	if err := p.store.SealCase(ctx, caseID); err != nil {
		return nil, evidence.NewPackagingError(caseID, finalPath, fmt.Errorf("seal case: %w", err))
	}

	return &Package{
		CaseID:    caseID,
		Number:    number,
		Path:      finalPath,
		SHA256:    digest,
		Size:      info.Size(),
		Records:   len(records),
		Sequence:  seq,
		CreatedAt: now,
	}, nil
}

// nextPackagePath returns the first unused package path at or after number.
// Existing packages are never overwritten.
func (p *Packager) nextPackagePath(caseID string, number int) (string, int, error) {
	for ; ; number++ {
		path := filepath.Join(p.config.OutputDir, fmt.Sprintf("%s_package_%03d.zip", fileSafe(caseID), number))
		_, err := os.Lstat(path)
		if errors.Is(err, os.ErrNotExist) {
			return path, number, nil
		}
		if err != nil {
			return "", 0, err
		}
	}
}

func (p *Packager) writeArchive(ctx context.Context, w io.Writer, manifest *Manifest, records []*evidence.EvidenceRecord, custody []*evidence.CustodyEntry) error {
	caseID := manifest.CaseID
	zw := zip.NewWriter(w)

	var csvBuf, jsonBuf, custodyBuf bytes.Buffer
	if err := export.NewCSVExporter(true).Export(ctx, records, &csvBuf); err != nil {
		return evidence.NewPackagingError(caseID, "", err)
	}
	if err := export.NewJSONExporter(true).Export(ctx, records, &jsonBuf); err != nil {
		return evidence.NewPackagingError(caseID, "", err)
	}
	if err := export.WriteCustody(custody, &custodyBuf); err != nil {
		return evidence.NewPackagingError(caseID, "", err)
	}

	// Evidence content first so the manifest can carry the verified digests.
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return evidence.NewPackagingError(caseID, "", err)
		}
		file, err := copyEvidence(ctx, zw, record)
		if err != nil {
			return err
		}
		manifest.Evidence = append(manifest.Evidence, file)
	}

	for _, member := range []struct {
		name string
		data []byte
	}{
		{CSVName, csvBuf.Bytes()},
		{JSONName, jsonBuf.Bytes()},
		{CustodyName, custodyBuf.Bytes()},
	} {
		digest, err := writeMember(zw, member.name, manifest.CreatedAt, member.data)
		if err != nil {
			return evidence.NewPackagingError(caseID, "", err)
		}
		manifest.Exports = append(manifest.Exports, ManifestFile{
			Name:   member.name,
			Size:   int64(len(member.data)),
			SHA256: digest,
		})
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return evidence.NewPackagingError(caseID, "", err)
	}
	if _, err := writeMember(zw, ManifestName, manifest.CreatedAt, data); err != nil {
		return evidence.NewPackagingError(caseID, "", err)
	}

	if err := zw.Close(); err != nil {
		return evidence.NewPackagingError(caseID, "", err)
	}
	return nil
}

// copyEvidence streams one source file into the archive, hashing it on the
// way. The copy is rejected unless size and digest still match the record.
func copyEvidence(ctx context.Context, zw *zip.Writer, record *evidence.EvidenceRecord) (ManifestFile, error) {
	name := memberName(record)

	f, err := os.Open(record.SourcePath)
	if err != nil {
		return ManifestFile{}, evidence.NewPackagingError(record.CaseID, record.SourcePath, err)
	}
	defer f.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: record.ModifiedTime,
	})
	if err != nil {
		return ManifestFile{}, evidence.NewPackagingError(record.CaseID, record.SourcePath, err)
	}

	digest, size, err := identity.HashReader(ctx, io.TeeReader(f, w))
	if err != nil {
		return ManifestFile{}, evidence.NewPackagingError(record.CaseID, record.SourcePath, err)
	}
	if size != record.Size {
		return ManifestFile{}, evidence.NewPackagingError(record.CaseID, record.SourcePath,
			fmt.Errorf("%w: recorded %d bytes, found %d", errSizeMismatch, record.Size, size))
	}
	if digest != record.SHA256 {
		return ManifestFile{}, evidence.NewPackagingError(record.CaseID, record.SourcePath,
			fmt.Errorf("%w: recorded %s, found %s", errDigestMismatch, record.SHA256, digest))
	}

	return ManifestFile{
		Name:     name,
		RecordID: record.ID,
		Size:     size,
		SHA256:   digest,
	}, nil
}

func writeMember(zw *zip.Writer, name string, modified time.Time, data []byte) (string, error) {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return "", err
	}
	if _, err := w.Write(data); err != nil {
		return "", err
	}
	return identity.HashBytes(data), nil
}

// Upload ships a sealed package with the configured Uploader and records a
// package_uploaded custody entry carrying the remote location.
func (p *Packager) Upload(ctx context.Context, pkg *Package) (string, error) {
	if p.config.Uploader == nil {
		return "", errNoUploader
	}

	ctx, span := tracer.Start(ctx, "packaging.upload", trace.WithAttributes(
		attribute.String("case.id", pkg.CaseID),
	))
	defer span.End()

	key := fileSafe(pkg.CaseID) + "/" + filepath.Base(pkg.Path)
	location, err := p.config.Uploader.Upload(ctx, pkg.Path, key)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("upload package %s: %w", pkg.Path, err)
	}

	if _, err := p.store.AppendCustody(ctx, &evidence.CustodyEntry{
		CaseID:    pkg.CaseID,
		Action:    evidence.ActionPackageUploaded,
		Actor:     p.config.AgentID,
		Timestamp: p.config.Now().UTC(),
		Digest:    pkg.SHA256,
		Details:   "location=" + location,
	}); err != nil {
		return "", fmt.Errorf("record upload custody: %w", err)
	}

	p.logger.Info("package uploaded", "case_id", pkg.CaseID, "location", location)
	return location, nil
}

// streamExport streams the case's records from the store through exporter
// into a temp file next to path and renames it into place. It returns the
// number of records written.
func (p *Packager) streamExport(ctx context.Context, caseID, path string, exporter evidence.Exporter) (int, error) {
	// Cancelling on return releases the store's producer if the exporter
	// stops early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	recordsCh, errCh, err := p.store.QueryRecordsStream(ctx, caseID)
	if err != nil {
		return 0, err
	}

	count := 0
	counted := make(chan *evidence.EvidenceRecord)
	go func() {
		defer close(counted)
		for record := range recordsCh {
			select {
			case counted <- record:
				count++
			case <-ctx.Done():
				return
			}
		}
	}()

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := exporter.ExportStream(ctx, counted, tmp); err != nil {
		return 0, err
	}
	// counted is closed once ExportStream returns cleanly, so count is final
	// and the producer has finished.
	if err := <-errCh; err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err := tmp.Sync(); err != nil {
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, err
	}
	committed = true
	syncDir(filepath.Dir(path))
	return count, nil
}

// syncDir flushes a directory entry after a rename. Not every platform
// supports it, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}
