package discovery

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch keeps discovering after an initial pass: files created or written
// under the roots are pushed onto out once they have been quiet for
// DebounceInterval and pass the policy. Files already present in a newly
// created directory are picked up as well. It blocks until ctx is cancelled
// and does not close out. Watch does not perform the initial scan; call
// Discover first.
//
// The returned Result counts what Watch itself pushed and rejected, so
// Result.Accepted equals the number of values it sent.
func (e *Engine) Watch(ctx context.Context, out chan<- Candidate) (Result, error) {
	res := Result{Rejected: make(map[RejectReason]int64)}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return res, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	d := newDebouncer(e.config.DebounceInterval)
	defer d.stop()

	for _, root := range e.roots {
		info, err := os.Stat(root)
		if err != nil {
			e.logger.Warn("cannot watch root", "path", root, "error", err)
			res.Warnings = append(res.Warnings, Warning{Path: root, Err: err})
			continue
		}
		if !info.IsDir() {
			continue
		}
		// Existing files were seen by Discover.
		e.addWatches(watcher, root, nil)
	}

	e.logger.Info("watching for new evidence",
		"roots", len(e.roots),
		"debounce_ms", e.config.DebounceInterval.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("watch stopped", "accepted", res.Accepted)
			return res, nil

		case event, ok := <-watcher.Events:
			if !ok {
				return res, fmt.Errorf("watcher events channel closed")
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			info, err := os.Stat(event.Name)
			if err != nil {
				continue
			}
			if info.IsDir() {
				if event.Op&fsnotify.Create != 0 && !e.policy.Excluded(event.Name) {
					// Files can land in the directory before it is watched.
					e.addWatches(watcher, event.Name, d.trigger)
				}
				continue
			}
			d.trigger(event.Name)

		case path := <-d.ready:
			if err := e.emit(ctx, path, out, &res); err != nil {
				return res, nil
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return res, fmt.Errorf("watcher errors channel closed")
			}
			e.logger.Error("file watcher error", "error", err)
		}
	}
}

// emit evaluates a settled file and pushes it if accepted, counting the
// outcome in res.
func (e *Engine) emit(ctx context.Context, path string, out chan<- Candidate, res *Result) error {
	root := e.rootOf(path)
	if root == "" {
		return nil
	}

	reason, err := e.policy.Evaluate(path, func() (int64, error) {
		info, err := os.Stat(path)
		if err != nil {
			return 0, err
		}
		if !info.Mode().IsRegular() {
			return 0, fmt.Errorf("not a regular file")
		}
		return info.Size(), nil
	})
	if err != nil {
		e.logger.Debug("watched file unavailable", "path", path, "error", err)
		return nil
	}
	if reason != "" {
		res.Rejected[reason]++
		if m := e.config.Metrics; m != nil {
			m.RecordRejected(string(reason))
		}
		return nil
	}

	select {
	case out <- Candidate{Path: path, Root: root}:
		res.Accepted++
		if m := e.config.Metrics; m != nil {
			m.RecordDiscovered()
		}
		e.logger.Debug("watched file queued", "path", path)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// rootOf returns the longest root containing path.
func (e *Engine) rootOf(path string) string {
	best := ""
	for _, root := range e.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == ".." || filepath.IsAbs(rel) || (len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)) {
			continue
		}
		if len(root) > len(best) {
			best = root
		}
	}
	return best
}

// addWatches watches dir and every non-excluded directory below it. When
// onFile is set it is called for every non-directory entry found.
func (e *Engine) addWatches(watcher *fsnotify.Watcher, dir string, onFile func(path string)) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			e.logger.Warn("cannot watch directory", "path", path, "error", err)
			if d != nil && d.IsDir() && path != dir {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			if onFile != nil {
				onFile(path)
			}
			return nil
		}
		if path != dir && e.policy.Excluded(path) {
			return fs.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			e.logger.Warn("cannot watch directory", "path", path, "error", err)
			return nil
		}
		e.logger.Debug("watching directory", "path", path)
		return nil
	})
}

// debouncer delays each path until no event has been seen for interval.
type debouncer struct {
	interval time.Duration
	ready    chan string
	done     chan struct{}

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{
		interval: interval,
		ready:    make(chan string, 64),
		done:     make(chan struct{}),
		timers:   make(map[string]*time.Timer),
	}
}

func (d *debouncer) trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if t, ok := d.timers[path]; ok {
		t.Stop()
	}
	d.timers[path] = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		if d.stopped {
			d.mu.Unlock()
			return
		}
		delete(d.timers, path)
		d.mu.Unlock()

		select {
		case d.ready <- path:
		case <-d.done:
		}
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	close(d.done)
	for path, t := range d.timers {
		t.Stop()
		delete(d.timers, path)
	}
}
