package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("dfas-hq/dfas/pkg/discovery")

// Candidate is an accepted file handed to processing.
type Candidate struct {
	// Path is the absolute path of the file.
	Path string

	// Root is the absolute scan root the file was found under.
	Root string
}

// Metrics receives discovery counts. metrics.Collector implements it.
type Metrics interface {
	RecordDiscovered()
	RecordRejected(reason string)
}

// Config configures an Engine.
type Config struct {
	// Roots are the directories (or single files) to scan.
	Roots []string

	// Policy filters files. Nil accepts everything.
	Policy *Policy

	// FollowSymlinks descends into symlinked directories and collects
	// symlinked files. Cycles are detected by resolved path.
	FollowSymlinks bool

	// DebounceInterval is the quiet period Watch waits after the last write
	// to a file before emitting it. Default: 500ms
	DebounceInterval time.Duration

	// Metrics is optional.
	Metrics Metrics
}

// Warning is a recoverable problem encountered while walking.
type Warning struct {
	Path string
	Err  error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %v", w.Path, w.Err)
}

// Result summarizes a discovery pass.
type Result struct {
	// Accepted is the number of candidates pushed to the queue.
	Accepted int64

	// Rejected counts rejected files by reason.
	Rejected map[RejectReason]int64

	// ExcludedDirs counts directories pruned by an exclusion prefix.
	ExcludedDirs int64

	// Warnings lists skipped subtrees, unreadable entries and symlink cycles.
	Warnings []Warning
}

// Add folds other into r.
func (r *Result) Add(other Result) {
	r.Accepted += other.Accepted
	r.ExcludedDirs += other.ExcludedDirs
	if r.Rejected == nil {
		r.Rejected = make(map[RejectReason]int64)
	}
	for reason, n := range other.Rejected {
		r.Rejected[reason] += n
	}
	r.Warnings = append(r.Warnings, other.Warnings...)
}

var errSymlinkCycle = errors.New("symlink cycle")

// Engine walks scan roots and emits files that pass the policy.
type Engine struct {
	roots  []string
	config Config
	policy *Policy
	logger *slog.Logger
}

// NewEngine validates cfg and creates an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if len(cfg.Roots) == 0 {
		return nil, errors.New("discovery: at least one root is required")
	}

	roots := make([]string, 0, len(cfg.Roots))
	for _, root := range cfg.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("discovery: root %q: %w", root, err)
		}
		roots = append(roots, abs)
	}

	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = 500 * time.Millisecond
	}

	policy := cfg.Policy
	if policy == nil {
		policy = NewPolicy(nil, nil, 0)
	}

	return &Engine{
		roots:  roots,
		config: cfg,
		policy: policy,
		logger: slog.Default().With("component", "discovery"),
	}, nil
}

// Roots returns the absolute scan roots.
func (e *Engine) Roots() []string {
	return append([]string(nil), e.roots...)
}

// Discover walks every root and pushes each accepted file onto out, one at a
// time, blocking while out is full. It does not close out. On return
// Result.Accepted equals the number of values sent. If ctx is cancelled the
// partial result is returned with ctx.Err().
func (e *Engine) Discover(ctx context.Context, out chan<- Candidate) (Result, error) {
	ctx, span := tracer.Start(ctx, "discovery.discover")
	defer span.End()

	w := &walk{
		engine:  e,
		out:     out,
		visited: make(map[string]bool),
		result:  Result{Rejected: make(map[RejectReason]int64)},
	}

	start := time.Now()
	for _, root := range e.roots {
		if err := w.walkRoot(ctx, root); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return w.result, err
		}
	}

	span.SetAttributes(
		attribute.Int64("discovery.accepted", w.result.Accepted),
		attribute.Int("discovery.warnings", len(w.result.Warnings)),
	)

	e.logger.Info("discovery completed",
		"roots", len(e.roots),
		"accepted", w.result.Accepted,
		"rejected_excluded", w.result.Rejected[RejectExcluded],
		"rejected_extension", w.result.Rejected[RejectExtension],
		"rejected_size", w.result.Rejected[RejectSize],
		"warnings", len(w.result.Warnings),
		"duration", time.Since(start),
	)

	return w.result, nil
}

// walk is the state of one Discover pass.
type walk struct {
	engine  *Engine
	out     chan<- Candidate
	visited map[string]bool // resolved directories, when following symlinks
	result  Result
}

func (w *walk) walkRoot(ctx context.Context, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		w.warn(root, err)
		return nil
	}
	if !info.IsDir() {
		return w.consider(ctx, root, root, func() (int64, error) { return info.Size(), nil })
	}
	return w.walkDir(ctx, root, root, root)
}

// walkDir walks dir, reporting paths as if dir were located at display.
// They differ once a symlinked directory or root has been resolved.
func (w *walk) walkDir(ctx context.Context, root, dir, display string) error {
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		w.warn(display, err)
		return nil
	}
	if w.engine.config.FollowSymlinks {
		if w.visited[real] {
			w.warn(display, errSymlinkCycle)
			return nil
		}
		w.visited[real] = true
	}

	return filepath.WalkDir(real, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		shown := display + strings.TrimPrefix(path, real)

		if err != nil {
			// Unreadable directory or entry: skip it and keep walking.
			w.warn(shown, err)
			if d != nil && d.IsDir() && path != real {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path == real {
				return nil
			}
			if w.engine.policy.Excluded(shown) {
				w.result.ExcludedDirs++
				return fs.SkipDir
			}
			if w.engine.config.FollowSymlinks {
				if real, err := filepath.EvalSymlinks(path); err == nil {
					if w.visited[real] {
						w.warn(shown, errSymlinkCycle)
						return fs.SkipDir
					}
					w.visited[real] = true
				}
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return w.symlink(ctx, root, path, shown)
		}

		if !d.Type().IsRegular() {
			return nil
		}

		return w.consider(ctx, root, shown, func() (int64, error) {
			info, err := d.Info()
			if err != nil {
				return 0, err
			}
			return info.Size(), nil
		})
	})
}

// symlink handles a symlink entry found while walking.
func (w *walk) symlink(ctx context.Context, root, path, shown string) error {
	if !w.engine.config.FollowSymlinks {
		w.engine.logger.Debug("skipping symlink", "path", shown)
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		w.warn(shown, err)
		return nil
	}

	if info.IsDir() {
		if w.engine.policy.Excluded(shown) {
			w.result.ExcludedDirs++
			return nil
		}
		return w.walkDir(ctx, root, path, shown)
	}

	if !info.Mode().IsRegular() {
		return nil
	}
	return w.consider(ctx, root, shown, func() (int64, error) { return info.Size(), nil })
}

// consider applies the policy to one file and pushes it if accepted.
func (w *walk) consider(ctx context.Context, root, path string, size func() (int64, error)) error {
	reason, err := w.engine.policy.Evaluate(path, size)
	if err != nil {
		w.warn(path, err)
		return nil
	}

	if reason != "" {
		w.result.Rejected[reason]++
		if m := w.engine.config.Metrics; m != nil {
			m.RecordRejected(string(reason))
		}
		return nil
	}

	select {
	case w.out <- Candidate{Path: path, Root: root}:
		w.result.Accepted++
		if m := w.engine.config.Metrics; m != nil {
			m.RecordDiscovered()
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *walk) warn(path string, err error) {
	w.result.Warnings = append(w.result.Warnings, Warning{Path: path, Err: err})
	w.engine.logger.Warn("skipping path", "path", path, "error", err)
}
