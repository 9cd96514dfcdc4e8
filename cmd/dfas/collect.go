package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"dfas-hq/dfas/pkg/cli"
	"dfas-hq/dfas/pkg/evidence"
	"dfas-hq/dfas/pkg/pipeline"
	"dfas-hq/dfas/pkg/telemetry/logging"
)

var collectFlags struct {
	caseID         string
	agentID        string
	extensions     []string
	excludes       []string
	maxSize        int64
	workers        int
	watch          bool
	followSymlinks bool
	noProgress     bool
}

var collectCmd = &cobra.Command{
	Use:   "collect [root...]",
	Short: "Collect evidence from the scan roots into a case",
	Long: `Walk the scan roots, hash and classify every file the scan policy accepts
and record it in the case with an evidence_collected custody entry.

Roots given as arguments replace scan.roots from the configuration. Re-running
a collection is safe: unchanged files are reported as already collected and
modified files become new records.

Files that cannot be read are recorded as collection_failed and the command
exits with status 4.

Examples:
  # Collect two directories
  dfas collect --case 2026-017 /mnt/laptop/Users /mnt/usb

  # Only documents under 100MB
  dfas collect --case 2026-017 --ext .pdf --ext .docx --max-size 104857600 /mnt/share

  # Keep collecting changes until interrupted
  dfas collect --case 2026-017 --watch /mnt/share`,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().StringVar(&collectFlags.caseID, "case", "", "case id (overrides case.id)")
	collectCmd.Flags().StringVar(&collectFlags.agentID, "agent", "", "collecting agent (overrides case.agent_id)")
	collectCmd.Flags().StringSliceVar(&collectFlags.extensions, "ext", nil, "extension allow-list (overrides scan.extensions)")
	collectCmd.Flags().StringSliceVar(&collectFlags.excludes, "exclude", nil, "excluded path prefix (adds to scan.excludes)")
	collectCmd.Flags().Int64Var(&collectFlags.maxSize, "max-size", -1, "size ceiling in bytes, 0 for none (overrides scan.max_file_size)")
	collectCmd.Flags().IntVarP(&collectFlags.workers, "workers", "w", 0, "processing workers (overrides processing.workers)")
	collectCmd.Flags().BoolVar(&collectFlags.watch, "watch", false, "keep collecting created and modified files until interrupted")
	collectCmd.Flags().BoolVar(&collectFlags.followSymlinks, "follow-symlinks", false, "descend into symlinked directories")
	collectCmd.Flags().BoolVar(&collectFlags.noProgress, "no-progress", false, "do not render progress")
}

func runCollect(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	caseID, err := a.caseID(collectFlags.caseID)
	if err != nil {
		return err
	}
	agentID := a.cfg.Case.AgentID
	if collectFlags.agentID != "" {
		agentID = collectFlags.agentID
	}

	scan := evidence.ScanConfig{
		Roots:       a.cfg.Scan.Roots,
		Excludes:    append(append([]string{}, a.cfg.Scan.Excludes...), collectFlags.excludes...),
		Extensions:  a.cfg.Scan.Extensions,
		MaxFileSize: a.cfg.Scan.MaxFileSize,
	}
	if len(args) > 0 {
		scan.Roots = args
	}
	if len(scan.Roots) == 0 {
		return cli.NewConfigError("scan.roots", "no roots to scan (arguments or scan.roots)")
	}
	if collectFlags.extensions != nil {
		scan.Extensions = collectFlags.extensions
	}
	if collectFlags.maxSize >= 0 {
		scan.MaxFileSize = collectFlags.maxSize
	}

	workers := a.cfg.Processing.Workers
	if collectFlags.workers > 0 {
		workers = collectFlags.workers
	}

	rules, err := a.cfg.Processing.RuleSet()
	if err != nil {
		return cli.NewConfigError("processing.rules", err.Error())
	}

	var m pipeline.Metrics = a.collector
	var progress *cli.Progress
	if !collectFlags.noProgress && isTerminal(os.Stderr) {
		progress = cli.NewProgress(os.Stderr, 200*time.Millisecond)
		m = teeMetrics{a.collector, progress}
	}

	p, err := pipeline.New(a.store, pipeline.Config{
		CaseID:         caseID,
		AgentID:        agentID,
		Scan:           scan,
		FollowSymlinks: collectFlags.followSymlinks || a.cfg.Scan.FollowSymlinks,
		WatchDebounce:  a.cfg.Scan.WatchDebounce,
		Workers:        workers,
		QueueSize:      a.cfg.Processing.QueueSize,
		Rules:          rules,
		Metrics:        m,
	})
	if err != nil {
		return cli.NewConfigError("scan", err.Error())
	}

	ctx = logging.WithAgentID(logging.WithCaseID(ctx, caseID), agentID)
	a.logger.InfoContext(ctx, "collection started", "roots", scan.Roots, "watch", collectFlags.watch)

	var report *pipeline.Report
	if collectFlags.watch {
		a.serveMetrics(ctx)
		report, err = p.Watch(ctx)
	} else {
		report, err = p.Collect(ctx)
	}
	if progress != nil {
		progress.Finish()
	}
	if report != nil {
		if perr := printResult(cmd, newCollectSummary(report)); perr != nil {
			return perr
		}
	}
	if err != nil {
		return cli.NewCommandError("collect", err)
	}
	if report.Processing.Failed > 0 {
		return fmt.Errorf("%d files could not be collected: %w", report.Processing.Failed, cli.ErrIncomplete)
	}
	return nil
}

// teeMetrics fans pipeline metrics out to the collector and the progress
// line.
type teeMetrics []pipeline.Metrics

func (t teeMetrics) RecordDiscovered() {
	for _, m := range t {
		m.RecordDiscovered()
	}
}

func (t teeMetrics) RecordRejected(reason string) {
	for _, m := range t {
		m.RecordRejected(reason)
	}
}

func (t teeMetrics) RecordCollected(bytes int64, d time.Duration) {
	for _, m := range t {
		m.RecordCollected(bytes, d)
	}
}

func (t teeMetrics) RecordAlreadyCollected() {
	for _, m := range t {
		m.RecordAlreadyCollected()
	}
}

func (t teeMetrics) RecordFailed() {
	for _, m := range t {
		m.RecordFailed()
	}
}

func (t teeMetrics) SetQueueDepth(n int) {
	for _, m := range t {
		m.SetQueueDepth(n)
	}
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// collectSummary is the printable outcome of a collection.
type collectSummary struct {
	CaseID           string           `json:"case_id"`
	Accepted         int64            `json:"accepted"`
	Rejected         map[string]int64 `json:"rejected"`
	ExcludedDirs     int64            `json:"excluded_dirs"`
	Warnings         []string         `json:"warnings"`
	Processed        int64            `json:"processed"`
	Collected        int64            `json:"collected"`
	AlreadyCollected int64            `json:"already_collected"`
	Failed           int64            `json:"failed"`
	BytesHashed      int64            `json:"bytes_hashed"`
	Duration         string           `json:"duration"`
}

func newCollectSummary(r *pipeline.Report) collectSummary {
	s := collectSummary{
		CaseID:           r.CaseID,
		Accepted:         r.Discovery.Accepted,
		Rejected:         make(map[string]int64, len(r.Discovery.Rejected)),
		ExcludedDirs:     r.Discovery.ExcludedDirs,
		Warnings:         make([]string, 0, len(r.Discovery.Warnings)),
		Processed:        r.Processing.Processed,
		Collected:        r.Processing.Collected,
		AlreadyCollected: r.Processing.AlreadyCollected,
		Failed:           r.Processing.Failed,
		BytesHashed:      r.Processing.BytesHashed,
		Duration:         r.Duration.Round(time.Millisecond).String(),
	}
	for reason, n := range r.Discovery.Rejected {
		s.Rejected[string(reason)] = n
	}
	for _, w := range r.Discovery.Warnings {
		s.Warnings = append(s.Warnings, w.String())
	}
	return s
}

func (s collectSummary) Table() cli.Table {
	t := cli.Table{Headers: []string{"FIELD", "VALUE"}}
	add := func(k string, v any) {
		t.Rows = append(t.Rows, []string{k, fmt.Sprint(v)})
	}
	add("case", s.CaseID)
	add("accepted", s.Accepted)
	reasons := make([]string, 0, len(s.Rejected))
	for reason := range s.Rejected {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		add("rejected ("+reason+")", s.Rejected[reason])
	}
	add("excluded dirs", s.ExcludedDirs)
	add("collected", s.Collected)
	add("already collected", s.AlreadyCollected)
	add("failed", s.Failed)
	add("bytes hashed", s.BytesHashed)
	add("duration", s.Duration)
	for _, w := range s.Warnings {
		add("warning", w)
	}
	return t
}
