package discovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

func touch(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
}

// drain runs Discover with a channel large enough to never block.
func drain(t *testing.T, e *Engine) (Result, []Candidate) {
	t.Helper()
	out := make(chan Candidate, 1024)
	res, err := e.Discover(context.Background(), out)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	close(out)

	var got []Candidate
	for c := range out {
		got = append(got, c)
	}
	if int64(len(got)) != res.Accepted {
		t.Fatalf("Accepted = %d but queue holds %d", res.Accepted, len(got))
	}
	return res, got
}

func names(cands []Candidate) []string {
	var out []string
	for _, c := range cands {
		out = append(out, filepath.Base(c.Path))
	}
	sort.Strings(out)
	return out
}

type countingMetrics struct {
	mu         sync.Mutex
	discovered int
	rejected   map[string]int
}

func (m *countingMetrics) RecordDiscovered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discovered++
}

func (m *countingMetrics) RecordRejected(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rejected == nil {
		m.rejected = make(map[string]int)
	}
	m.rejected[reason]++
}

func TestPolicy_Evaluate(t *testing.T) {
	p := NewPolicy([]string{"/data/tmp"}, []string{".TXT", "pdf"}, 100)

	tests := []struct {
		name       string
		path       string
		size       int64
		want       RejectReason
		wantSizeFn bool
	}{
		{"accepted", "/data/a.txt", 10, "", true},
		{"upper-case extension", "/data/A.PDF", 10, "", true},
		{"excluded prefix", "/data/tmp/a.txt", 10, RejectExcluded, false},
		{"excluded exact", "/data/tmp", 10, RejectExcluded, false},
		{"prefix is component aware", "/data/tmpfile.txt", 10, "", true},
		{"extension not allowed", "/data/a.exe", 10, RejectExtension, false},
		{"no extension", "/data/README", 10, RejectExtension, false},
		{"too large", "/data/big.txt", 101, RejectSize, true},
		{"exactly at ceiling", "/data/edge.txt", 100, "", true},
		{"exclusion wins over size", "/data/tmp/big.txt", 1 << 30, RejectExcluded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			got, err := p.Evaluate(tt.path, func() (int64, error) {
				called = true
				return tt.size, nil
			})
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %q, want %q", got, tt.want)
			}
			if called != tt.wantSizeFn {
				t.Errorf("size evaluated = %v, want %v", called, tt.wantSizeFn)
			}
		})
	}
}

func TestPolicy_EmptyAllowListAndNoCeiling(t *testing.T) {
	p := NewPolicy(nil, nil, 0)
	reason, err := p.Evaluate("/x/anything.bin", func() (int64, error) {
		return 0, errors.New("size should not be needed")
	})
	if err != nil || reason != "" {
		t.Errorf("Evaluate() = %q, %v; want accepted", reason, err)
	}
}

func TestDiscover_ExtensionScenario(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.txt", "b.pdf", "c.docx", "d.jpg", "e.exe"} {
		touch(t, filepath.Join(root, name), 16)
	}

	metrics := &countingMetrics{}
	e, err := NewEngine(Config{
		Roots:   []string{root},
		Policy:  NewPolicy(nil, []string{".txt", ".pdf", ".docx", ".jpg"}, 0),
		Metrics: metrics,
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	res, got := drain(t, e)
	if res.Accepted != 4 {
		t.Errorf("Accepted = %d, want 4", res.Accepted)
	}
	for _, c := range got {
		if strings.HasSuffix(c.Path, ".exe") {
			t.Errorf("%s should have been rejected", c.Path)
		}
		if c.Root != root {
			t.Errorf("Candidate.Root = %s, want %s", c.Root, root)
		}
	}
	if res.Rejected[RejectExtension] != 1 {
		t.Errorf("Rejected[extension] = %d, want 1", res.Rejected[RejectExtension])
	}
	if metrics.discovered != 4 || metrics.rejected["extension"] != 1 {
		t.Errorf("metrics = %d discovered, %v rejected", metrics.discovered, metrics.rejected)
	}
}

func TestDiscover_SizeCeiling(t *testing.T) {
	root := t.TempDir()

	// Sparse: no 150MB actually written.
	big := filepath.Join(root, "disk.txt")
	f, err := os.Create(big)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(150 << 20); err != nil {
		f.Close()
		t.Fatal(err)
	}
	f.Close()
	touch(t, filepath.Join(root, "small.txt"), 1024)

	e, err := NewEngine(Config{
		Roots:  []string{root},
		Policy: NewPolicy(nil, []string{".txt"}, 100<<20),
	})
	if err != nil {
		t.Fatal(err)
	}

	res, got := drain(t, e)
	if res.Accepted != 1 || names(got)[0] != "small.txt" {
		t.Errorf("accepted %v, want only small.txt", names(got))
	}
	if res.Rejected[RejectSize] != 1 {
		t.Errorf("Rejected[size] = %d, want 1", res.Rejected[RejectSize])
	}
}

// TestDiscover_AcceptsExactlyPolicyMatches checks that a file is discovered
// iff it is outside excluded prefixes, has an allowed extension and fits the
// ceiling.
func TestDiscover_AcceptsExactlyPolicyMatches(t *testing.T) {
	root := t.TempDir()
	excluded := filepath.Join(root, "cache")
	allowed := map[string]bool{".txt": true, ".log": true}
	const ceiling = 600

	type file struct {
		path string
		size int
	}
	var files []file
	exts := []string{".txt", ".log", ".bin", ""}
	dirs := []string{"", "sub", "sub/deep", "cache", "cache/inner", "cached"}
	for i := 0; i < 48; i++ {
		dir := dirs[i%len(dirs)]
		ext := exts[(i/len(dirs))%len(exts)]
		path := filepath.Join(root, dir, fmt.Sprintf("f%02d%s", i, ext))
		size := (i * 37) % 1000
		touch(t, path, size)
		files = append(files, file{path, size})
	}

	e, err := NewEngine(Config{
		Roots:  []string{root},
		Policy: NewPolicy([]string{excluded}, []string{"txt", "LOG"}, ceiling),
	})
	if err != nil {
		t.Fatal(err)
	}
	_, got := drain(t, e)

	discovered := make(map[string]bool)
	for _, c := range got {
		discovered[c.Path] = true
	}

	for _, f := range files {
		underExcluded := strings.HasPrefix(f.path, excluded+string(filepath.Separator))
		want := !underExcluded && allowed[filepath.Ext(f.path)] && f.size <= ceiling
		if discovered[f.path] != want {
			t.Errorf("%s (size %d): discovered = %v, want %v", f.path, f.size, discovered[f.path], want)
		}
	}
}

func TestDiscover_BoundedQueue(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		touch(t, filepath.Join(root, fmt.Sprintf("d%d", i%5), fmt.Sprintf("%d.txt", i)), 1)
	}

	e, err := NewEngine(Config{Roots: []string{root}})
	if err != nil {
		t.Fatal(err)
	}

	out := make(chan Candidate, 2)
	received := make(chan int)
	go func() {
		n := 0
		for range out {
			n++
		}
		received <- n
	}()

	res, err := e.Discover(context.Background(), out)
	close(out)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if n := <-received; int64(n) != res.Accepted || n != 50 {
		t.Errorf("consumer received %d, Accepted = %d, want 50", n, res.Accepted)
	}
}

func TestDiscover_Cancelled(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 5; i++ {
		touch(t, filepath.Join(root, fmt.Sprintf("%d.txt", i)), 1)
	}
	e, err := NewEngine(Config{Roots: []string{root}})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Candidate) // nobody reads

	done := make(chan struct{})
	var res Result
	var derr error
	go func() {
		res, derr = e.Discover(ctx, out)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Discover() did not return after cancellation")
	}

	if !errors.Is(derr, context.Canceled) {
		t.Errorf("Discover() error = %v, want context.Canceled", derr)
	}
	if res.Accepted != 0 {
		t.Errorf("Accepted = %d with no consumer, want 0", res.Accepted)
	}
}

func TestDiscover_ExcludedDirectoryPruned(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "keep.txt"), 1)
	touch(t, filepath.Join(root, "node_modules", "a", "b.txt"), 1)

	e, err := NewEngine(Config{
		Roots:  []string{root},
		Policy: NewPolicy([]string{filepath.Join(root, "node_modules")}, nil, 0),
	})
	if err != nil {
		t.Fatal(err)
	}

	res, got := drain(t, e)
	if len(got) != 1 || res.ExcludedDirs != 1 {
		t.Errorf("got %v, ExcludedDirs = %d; want keep.txt and 1 pruned dir", names(got), res.ExcludedDirs)
	}
}

func TestDiscover_SymlinkCycle(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "sub", "a.txt"), 1)
	if err := os.Symlink(root, filepath.Join(root, "sub", "loop")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	e, err := NewEngine(Config{Roots: []string{root}, FollowSymlinks: true})
	if err != nil {
		t.Fatal(err)
	}

	res, got := drain(t, e)
	if res.Accepted != 1 {
		t.Errorf("Accepted = %d (%v), want 1", res.Accepted, names(got))
	}

	foundCycle := false
	for _, w := range res.Warnings {
		if errors.Is(w.Err, errSymlinkCycle) {
			foundCycle = true
		}
	}
	if !foundCycle {
		t.Errorf("Warnings = %v, want a symlink cycle", res.Warnings)
	}
}

func TestDiscover_SymlinksIgnoredByDefault(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(t.TempDir(), "outside.txt")
	touch(t, target, 1)
	if err := os.Symlink(target, filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	e, _ := NewEngine(Config{Roots: []string{root}})
	res, _ := drain(t, e)
	if res.Accepted != 0 {
		t.Errorf("Accepted = %d, want symlink skipped", res.Accepted)
	}

	follow, _ := NewEngine(Config{Roots: []string{root}, FollowSymlinks: true})
	res, got := drain(t, follow)
	if res.Accepted != 1 || got[0].Path != filepath.Join(root, "link.txt") {
		t.Errorf("following symlinks got %v", got)
	}
}

func TestDiscover_PermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	root := t.TempDir()
	touch(t, filepath.Join(root, "ok.txt"), 1)
	locked := filepath.Join(root, "locked")
	touch(t, filepath.Join(locked, "secret.txt"), 1)
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	e, _ := NewEngine(Config{Roots: []string{root}})
	res, got := drain(t, e)

	if len(got) != 1 || filepath.Base(got[0].Path) != "ok.txt" {
		t.Errorf("got %v, want only ok.txt", names(got))
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a warning for the unreadable subtree")
	}
}

func TestDiscover_MissingRootWarns(t *testing.T) {
	e, err := NewEngine(Config{Roots: []string{filepath.Join(t.TempDir(), "absent")}})
	if err != nil {
		t.Fatal(err)
	}
	res, _ := drain(t, e)
	if len(res.Warnings) != 1 {
		t.Errorf("Warnings = %v, want 1", res.Warnings)
	}
}

func TestNewEngine_RequiresRoots(t *testing.T) {
	if _, err := NewEngine(Config{}); err == nil {
		t.Error("NewEngine() without roots should fail")
	}
}

func TestWatch_EmitsNewFiles(t *testing.T) {
	root := t.TempDir()
	e, err := NewEngine(Config{
		Roots:            []string{root},
		Policy:           NewPolicy(nil, []string{".txt"}, 0),
		DebounceInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan Candidate, 8)
	watchErr := make(chan error, 1)
	go func() {
		_, err := e.Watch(ctx, out)
		watchErr <- err
	}()

	// Give the watcher time to register the root.
	time.Sleep(200 * time.Millisecond)
	touch(t, filepath.Join(root, "ignored.bin"), 1)
	touch(t, filepath.Join(root, "new.txt"), 1)

	select {
	case c := <-out:
		if filepath.Base(c.Path) != "new.txt" || c.Root != root {
			t.Errorf("Watch() emitted %+v", c)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch() did not emit the new file")
	}

	cancel()
	if err := <-watchErr; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}

func TestWatch_NewDirectoryWithFiles(t *testing.T) {
	root := t.TempDir()
	e, err := NewEngine(Config{
		Roots:            []string{root},
		Policy:           NewPolicy(nil, []string{".txt"}, 0),
		DebounceInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Build the tree outside the root so its files exist before the
	// directory shows up under the watch.
	staging := filepath.Join(t.TempDir(), "incoming")
	touch(t, filepath.Join(staging, "a.txt"), 1)
	touch(t, filepath.Join(staging, "deep", "b.txt"), 1)
	touch(t, filepath.Join(staging, "c.bin"), 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		res Result
		err error
	}
	out := make(chan Candidate, 8)
	done := make(chan outcome, 1)
	go func() {
		res, err := e.Watch(ctx, out)
		done <- outcome{res, err}
	}()

	time.Sleep(200 * time.Millisecond)
	if err := os.Rename(staging, filepath.Join(root, "incoming")); err != nil {
		t.Fatal(err)
	}

	seen := map[string]bool{}
	for len(seen) < 2 {
		select {
		case c := <-out:
			seen[filepath.Base(c.Path)] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("Watch() emitted %v, want a.txt and b.txt", seen)
		}
	}
	if !seen["a.txt"] || !seen["b.txt"] {
		t.Errorf("Watch() emitted %v, want a.txt and b.txt", seen)
	}

	// Let the rejected file settle before stopping.
	time.Sleep(300 * time.Millisecond)
	cancel()
	got := <-done
	if got.err != nil {
		t.Fatalf("Watch() error = %v", got.err)
	}
	if got.res.Accepted != int64(len(seen)) {
		t.Errorf("Accepted = %d, want %d", got.res.Accepted, len(seen))
	}
	if got.res.Rejected[RejectExtension] != 1 {
		t.Errorf("Rejected[extension] = %d, want 1", got.res.Rejected[RejectExtension])
	}
}

func TestResult_Add(t *testing.T) {
	r := Result{Accepted: 2, Rejected: map[RejectReason]int64{RejectSize: 1}}
	r.Add(Result{
		Accepted:     3,
		Rejected:     map[RejectReason]int64{RejectSize: 2, RejectExtension: 1},
		ExcludedDirs: 1,
		Warnings:     []Warning{{Path: "/x"}},
	})
	if r.Accepted != 5 || r.Rejected[RejectSize] != 3 || r.Rejected[RejectExtension] != 1 {
		t.Errorf("Add() = %+v", r)
	}
	if r.ExcludedDirs != 1 || len(r.Warnings) != 1 {
		t.Errorf("Add() = %+v", r)
	}
}
