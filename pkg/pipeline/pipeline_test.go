package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dfas-hq/dfas/pkg/evidence"
	"dfas-hq/dfas/pkg/evidence/storage"
)

func writeTree(t *testing.T, names ...string) string {
	t.Helper()
	root := t.TempDir()
	for i, name := range names {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(fmt.Sprintf("file %d", i)), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func testConfig(root string) Config {
	return Config{
		CaseID:  "case-1",
		AgentID: "agent-1",
		Scan: evidence.ScanConfig{
			Roots:      []string{root},
			Extensions: []string{".txt", ".pdf", ".docx", ".jpg"},
		},
		Workers:   2,
		QueueSize: 1,
	}
}

func TestCollect(t *testing.T) {
	ctx := context.Background()
	root := writeTree(t, "a.txt", "b.pdf", "c.docx", "d.jpg", "e.exe")
	store := storage.NewMemoryStorage()

	p, err := New(store, testConfig(root))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	report, err := p.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if report.Discovery.Accepted != 4 {
		t.Errorf("Accepted = %d, want 4", report.Discovery.Accepted)
	}
	if report.Processing.Collected != 4 {
		t.Errorf("Collected = %d, want 4", report.Processing.Collected)
	}

	records, _ := store.QueryRecords(ctx, "case-1")
	for _, r := range records {
		if r.Extension == ".exe" {
			t.Errorf("excluded extension collected: %s", r.SourcePath)
		}
	}
	collected, _ := store.QueryCustody(ctx, "case-1", evidence.ActionEvidenceCollected)
	if len(records) != 4 || len(collected) != 4 {
		t.Errorf("records = %d, evidence_collected = %d, want 4 and 4", len(records), len(collected))
	}

	c, _ := store.GetCase(ctx, "case-1")
	if c == nil || c.Scan == nil || len(c.Scan.Extensions) != 4 {
		t.Errorf("case scan snapshot = %+v", c)
	}
}

func TestCollect_Rerun(t *testing.T) {
	ctx := context.Background()
	root := writeTree(t, "a.txt", "sub/b.txt", "sub/deeper/c.txt")
	store := storage.NewMemoryStorage()

	p, err := New(store, testConfig(root))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := p.Collect(ctx); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	report, err := p.Collect(ctx)
	if err != nil {
		t.Fatalf("second Collect() error = %v", err)
	}
	if report.Processing.AlreadyCollected != 3 || report.Processing.Collected != 0 {
		t.Errorf("second run stats = %+v, want 3 already collected", report.Processing)
	}
	if n, _ := store.CountRecords(ctx, "case-1"); n != 3 {
		t.Errorf("CountRecords() = %d, want 3", n)
	}
}

func TestCollect_SealedCase(t *testing.T) {
	ctx := context.Background()
	root := writeTree(t, "a.txt", "b.txt", "c.txt", "d.txt")
	store := storage.NewMemoryStorage()
	sealed := &evidence.ScanConfig{Roots: []string{"/mnt/original"}, MaxFileSize: 100}
	if err := store.RecordScan(ctx, "case-1", sealed); err != nil {
		t.Fatal(err)
	}
	if err := store.SealCase(ctx, "case-1"); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(root)
	cfg.Scan.MaxFileSize = 999
	p, err := New(store, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := p.Collect(ctx); !errors.Is(err, evidence.ErrCaseSealed) {
		t.Errorf("Collect() error = %v, want ErrCaseSealed", err)
	}

	c, _ := store.GetCase(ctx, "case-1")
	if c.Scan == nil || c.Scan.MaxFileSize != 100 || len(c.Scan.Roots) != 1 || c.Scan.Roots[0] != "/mnt/original" {
		t.Errorf("sealed case scan snapshot = %+v, want unchanged", c.Scan)
	}
	if n, _ := store.CountRecords(ctx, "case-1"); n != 0 {
		t.Errorf("CountRecords() = %d, want 0", n)
	}
}

func TestCollect_Cancelled(t *testing.T) {
	root := writeTree(t, "a.txt", "b.txt")
	p, err := New(storage.NewMemoryStorage(), testConfig(root))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := p.Collect(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Collect() error = %v, want context.Canceled", err)
	}
	if report != nil && report.Processing.Collected != 0 {
		t.Errorf("Collected = %d after cancellation before start", report.Processing.Collected)
	}
}

func TestNew_Validation(t *testing.T) {
	store := storage.NewMemoryStorage()
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing case", func(c *Config) { c.CaseID = "" }},
		{"missing agent", func(c *Config) { c.AgentID = "" }},
		{"missing roots", func(c *Config) { c.Scan.Roots = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t.TempDir())
			tt.mutate(&cfg)
			if _, err := New(store, cfg); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestWatch_ReportCountsWatchedFiles(t *testing.T) {
	root := writeTree(t, "a.txt")
	store := storage.NewMemoryStorage()

	cfg := testConfig(root)
	cfg.WatchDebounce = 50 * time.Millisecond
	p, err := New(store, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		report *Report
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		report, err := p.Watch(ctx)
		done <- outcome{report, err}
	}()

	waitForRecords := func(want int64) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for {
			if n, _ := store.CountRecords(context.Background(), "case-1"); n == want {
				return
			}
			if time.Now().After(deadline) {
				t.Fatalf("records did not reach %d", want)
			}
			time.Sleep(20 * time.Millisecond)
		}
	}

	waitForRecords(1)
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(root, "b.txt"), []byte("watched"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitForRecords(2)

	cancel()
	got := <-done
	if got.err != nil {
		t.Fatalf("Watch() error = %v", got.err)
	}
	if got.report.Discovery.Accepted != 2 {
		t.Errorf("Accepted = %d, want 2", got.report.Discovery.Accepted)
	}
	if got.report.Processing.Collected != 2 {
		t.Errorf("Collected = %d, want 2", got.report.Processing.Collected)
	}
}
