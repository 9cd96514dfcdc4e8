package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"dfas-hq/dfas/pkg/cli"
	"dfas-hq/dfas/pkg/evidence"
)

// testEnv writes a config using the pure-Go SQLite driver and a scan root
// with n files, and points the global flags at it.
func testEnv(t *testing.T, n int) (root, outDir string) {
	t.Helper()
	dir := t.TempDir()
	root = filepath.Join(dir, "root")
	outDir = filepath.Join(dir, "packages")

	for i := 0; i < n; i++ {
		path := filepath.Join(root, "docs", fmt.Sprintf("note-%d.txt", i))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(fmt.Sprintf("note %d", i)), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := fmt.Sprintf(`case:
  id: case-cli
  agent_id: tester
scan:
  roots: [%q]
storage:
  backend: sqlite
  sqlite:
    path: %q
    driver: sqlite
packaging:
  output_dir: %q
telemetry:
  logging:
    level: error
`, root, filepath.Join(dir, "db", "evidence.db"), outDir)

	cfgPath := filepath.Join(dir, "dfas.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	oldCfg, oldFormat := cfgFile, outputFormat
	t.Cleanup(func() {
		cfgFile, outputFormat = oldCfg, oldFormat
		collectFlags = struct {
			caseID         string
			agentID        string
			extensions     []string
			excludes       []string
			maxSize        int64
			workers        int
			watch          bool
			followSymlinks bool
			noProgress     bool
		}{maxSize: -1}
	})
	cfgFile = cfgPath
	outputFormat = "json"
	collectFlags.maxSize = -1
	collectFlags.noProgress = true
	return root, outDir
}

func run(t *testing.T, fn func(*cobra.Command, []string) error, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	err := fn(cmd, args)
	return out.String(), err
}

func TestCollectPackageVerify(t *testing.T) {
	testEnv(t, 3)

	out, err := run(t, runCollect)
	if err != nil {
		t.Fatalf("collect error = %v", err)
	}
	var summary collectSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode collect output: %v\n%s", err, out)
	}
	if summary.Collected != 3 || summary.Failed != 0 {
		t.Errorf("collected = %d, failed = %d, want 3, 0", summary.Collected, summary.Failed)
	}

	out, err = run(t, runCollect)
	if err != nil {
		t.Fatalf("second collect error = %v", err)
	}
	summary = collectSummary{}
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatal(err)
	}
	if summary.Collected != 0 || summary.AlreadyCollected != 3 {
		t.Errorf("second run collected = %d, already = %d, want 0, 3", summary.Collected, summary.AlreadyCollected)
	}

	out, err = run(t, runRecords)
	if err != nil {
		t.Fatalf("records error = %v", err)
	}
	var records []*evidence.EvidenceRecord
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}

	out, err = run(t, runPackage)
	if err != nil {
		t.Fatalf("package error = %v", err)
	}
	var pkg packageResult
	if err := json.Unmarshal([]byte(out), &pkg); err != nil {
		t.Fatal(err)
	}
	if pkg.Package == nil || pkg.Records != 3 {
		t.Fatalf("package = %+v, want 3 records", pkg.Package)
	}
	if !strings.HasSuffix(pkg.Path, "case-cli_package_001.zip") {
		t.Errorf("package path = %s", pkg.Path)
	}

	verifyFlags.packagePath = pkg.Path
	t.Cleanup(func() { verifyFlags.packagePath = "" })
	out, err = run(t, runVerify)
	if err != nil {
		t.Fatalf("verify error = %v\n%s", err, out)
	}

	custodyFlags.action = evidence.ActionPackageCreated
	t.Cleanup(func() { custodyFlags.action = "" })
	out, err = run(t, runCustody)
	if err != nil {
		t.Fatalf("custody error = %v", err)
	}
	var entries []*evidence.CustodyEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Digest != pkg.SHA256 {
		t.Errorf("package_created entries = %+v, want one with digest %s", entries, pkg.SHA256)
	}
}

func TestVerifyCase_DetectsModifiedSource(t *testing.T) {
	root, _ := testEnv(t, 2)

	if _, err := run(t, runCollect); err != nil {
		t.Fatalf("collect error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "docs", "note-0.txt"), []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := run(t, runVerify)
	if !errors.Is(err, cli.ErrIncomplete) {
		t.Fatalf("verify error = %v, want ErrIncomplete", err)
	}
	if code := cli.ExitCode(err); code != cli.ExitIncomplete {
		t.Errorf("ExitCode() = %d, want %d", code, cli.ExitIncomplete)
	}
}

func TestExport_UnknownType(t *testing.T) {
	testEnv(t, 0)
	exportFlags.format = "xml"
	t.Cleanup(func() { exportFlags.format = "both" })

	_, err := run(t, runExport)
	if code := cli.ExitCode(err); code != cli.ExitConfig {
		t.Errorf("ExitCode(%v) = %d, want %d", err, code, cli.ExitConfig)
	}
}

func TestExport_Both(t *testing.T) {
	_, outDir := testEnv(t, 1)
	if _, err := run(t, runCollect); err != nil {
		t.Fatalf("collect error = %v", err)
	}

	out, err := run(t, runExport)
	if err != nil {
		t.Fatalf("export error = %v", err)
	}
	var files exportList
	if err := json.Unmarshal([]byte(out), &files); err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("exports = %d, want 2", len(files))
	}
	for _, f := range files {
		if filepath.Dir(f.Path) != outDir {
			t.Errorf("export %s not in %s", f.Path, outDir)
		}
		if f.Records != 1 {
			t.Errorf("%s records = %d, want 1", f.Format, f.Records)
		}
	}
}

func TestCases_Empty(t *testing.T) {
	testEnv(t, 1)

	out, err := run(t, runCases)
	if err != nil {
		t.Fatalf("cases error = %v", err)
	}
	if strings.TrimSpace(out) != "[]" && strings.TrimSpace(out) != "null" {
		t.Errorf("cases on empty store = %q", out)
	}
}
