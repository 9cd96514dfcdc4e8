package packaging

import (
	"path"
	"path/filepath"
	"strings"
	"time"

	"dfas-hq/dfas/pkg/evidence"
)

// Archive member names.
const (
	ManifestName = "manifest.json"
	CSVName      = "evidence.csv"
	JSONName     = "evidence.json"
	CustodyName  = "custody.json"
	EvidenceDir  = "evidence"
)

// Manifest describes the contents of a sealed package. It is the last member
// written to every archive, after the digests it lists are known.
type Manifest struct {
	CaseID        string               `json:"case_id"`
	PackageNumber int                  `json:"package_number"`
	CreatedAt     time.Time            `json:"created_at"`
	CreatedBy     string               `json:"created_by"`
	Scan          *evidence.ScanConfig `json:"scan,omitempty"`
	RecordCount   int                  `json:"record_count"`
	CustodyCount  int                  `json:"custody_count"`
	Exports       []ManifestFile       `json:"exports"`
	Evidence      []ManifestFile       `json:"evidence"`
}

// ManifestFile is one archive member with its digest.
type ManifestFile struct {
	Name     string `json:"name"`
	RecordID string `json:"record_id,omitempty"`
	Size     int64  `json:"size"`
	SHA256   string `json:"sha256"`
}

// memberName returns the archive path of a record's content:
// evidence/<record id>/<relative path>.
func memberName(r *evidence.EvidenceRecord) string {
	rel := r.RelativePath
	if rel == "" {
		rel = filepath.Base(r.SourcePath)
	}
	// Clean against a virtual root so the member can never escape its
	// record directory.
	rel = strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(rel)), "/")
	return path.Join(EvidenceDir, r.ID, rel)
}

// fileSafe makes a case ID usable as a file name component.
func fileSafe(caseID string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ';':
			return '_'
		}
		return r
	}, caseID)
}
