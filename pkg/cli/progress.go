package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Progress renders a running count of a collection to a terminal. It
// implements pipeline.Metrics so it can be passed alongside the metrics
// collector. The total is unknown while discovery is still walking, so
// Progress shows counts rather than a percentage.
type Progress struct {
	discovered atomic.Int64
	rejected   atomic.Int64
	collected  atomic.Int64
	already    atomic.Int64
	failed     atomic.Int64
	bytes      atomic.Int64
	queue      atomic.Int64

	mu       sync.Mutex
	writer   io.Writer
	started  time.Time
	interval time.Duration
	last     time.Time
}

// NewProgress creates a progress reporter that writes to w, at most once per
// interval. If w is nil, it defaults to os.Stderr.
func NewProgress(w io.Writer, interval time.Duration) *Progress {
	if w == nil {
		w = os.Stderr
	}
	return &Progress{writer: w, started: time.Now(), interval: interval}
}

// RecordDiscovered counts a queued file.
func (p *Progress) RecordDiscovered() {
	p.discovered.Add(1)
	p.render(false)
}

// RecordRejected counts a file the policy rejected.
func (p *Progress) RecordRejected(_ string) {
	p.rejected.Add(1)
}

// RecordCollected counts a new record.
func (p *Progress) RecordCollected(bytes int64, _ time.Duration) {
	p.collected.Add(1)
	p.bytes.Add(bytes)
	p.render(false)
}

// RecordAlreadyCollected counts an unchanged file.
func (p *Progress) RecordAlreadyCollected() {
	p.already.Add(1)
	p.render(false)
}

// RecordFailed counts a file that could not be collected.
func (p *Progress) RecordFailed() {
	p.failed.Add(1)
	p.render(false)
}

// SetQueueDepth records the queue length.
func (p *Progress) SetQueueDepth(n int) {
	p.queue.Store(int64(n))
}

// Finish renders the final counts and ends the line.
func (p *Progress) Finish() {
	p.render(true)
	p.mu.Lock()
	fmt.Fprintln(p.writer)
	p.mu.Unlock()
}

// Line returns the current progress line.
func (p *Progress) Line() string {
	elapsed := time.Since(p.started).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(p.bytes.Load()) / elapsed / (1 << 20)
	}
	return fmt.Sprintf("discovered %d  collected %d  unchanged %d  failed %d  queued %d  %.1f MiB/s",
		p.discovered.Load(), p.collected.Load(), p.already.Load(), p.failed.Load(), p.queue.Load(), rate)
}

func (p *Progress) render(force bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if !force && now.Sub(p.last) < p.interval {
		return
	}
	p.last = now
	fmt.Fprintf(p.writer, "\r%s", p.Line())
}
