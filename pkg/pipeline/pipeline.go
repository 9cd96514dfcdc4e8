package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"dfas-hq/dfas/pkg/discovery"
	"dfas-hq/dfas/pkg/evidence"
	"dfas-hq/dfas/pkg/identity"
	"dfas-hq/dfas/pkg/processing"
)

var tracer = otel.Tracer("dfas-hq/dfas/pkg/pipeline")

// DefaultQueueSize bounds the hand-off queue between discovery and
// processing.
const DefaultQueueSize = 1024

// Metrics is satisfied by metrics.Collector.
type Metrics interface {
	discovery.Metrics
	processing.Metrics
}

// Config configures a collection run.
type Config struct {
	CaseID  string
	AgentID string

	// Scan is the discovery policy. It is stored with the case before
	// collection starts.
	Scan evidence.ScanConfig

	FollowSymlinks bool

	// WatchDebounce is the quiet period Watch waits before collecting a
	// changed file.
	// Default: 500ms
	WatchDebounce time.Duration

	// Workers is the number of processing goroutines.
	// Default: runtime.NumCPU()
	Workers int

	// QueueSize is the capacity of the discovery queue.
	// Default: 1024
	QueueSize int

	// Rules tags records with signature hits. Nil disables tagging.
	Rules *identity.RuleSet

	// Metrics is optional.
	Metrics Metrics
}

// Report is the outcome of a collection run.
type Report struct {
	CaseID     string           `json:"case_id"`
	Discovery  discovery.Result `json:"discovery"`
	Processing processing.Stats `json:"processing"`
	Duration   time.Duration    `json:"duration"`
}

// Pipeline runs discovery and processing concurrently over one bounded
// queue. Packaging is a separate step that must only start once Collect has
// returned.
type Pipeline struct {
	store     evidence.Store
	config    Config
	engine    *discovery.Engine
	processor *processing.Processor
	logger    *slog.Logger
}

// New creates a pipeline writing to store.
func New(store evidence.Store, cfg Config) (*Pipeline, error) {
	if cfg.CaseID == "" {
		return nil, errors.New("pipeline: case id is required")
	}
	if cfg.AgentID == "" {
		return nil, errors.New("pipeline: agent id is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	dcfg := discovery.Config{
		Roots:            cfg.Scan.Roots,
		Policy:           discovery.NewPolicy(cfg.Scan.Excludes, cfg.Scan.Extensions, cfg.Scan.MaxFileSize),
		FollowSymlinks:   cfg.FollowSymlinks,
		DebounceInterval: cfg.WatchDebounce,
	}
	pcfg := processing.Config{
		CaseID:  cfg.CaseID,
		AgentID: cfg.AgentID,
		Workers: cfg.Workers,
	}
	if cfg.Metrics != nil {
		dcfg.Metrics = cfg.Metrics
		pcfg.Metrics = cfg.Metrics
	}

	engine, err := discovery.NewEngine(dcfg)
	if err != nil {
		return nil, err
	}
	extractor := identity.NewExtractor(cfg.CaseID, cfg.AgentID, cfg.Rules)

	return &Pipeline{
		store:     store,
		config:    cfg,
		engine:    engine,
		processor: processing.NewProcessor(store, extractor, pcfg),
		logger:    slog.Default().With("component", "pipeline", "case_id", cfg.CaseID),
	}, nil
}

// Collect runs one discovery pass and processes every accepted file. The
// queue is closed when discovery finishes, and Collect returns once
// processing has drained it. On cancellation the partial report is returned
// with ctx.Err(); committed records stay committed.
func (p *Pipeline) Collect(ctx context.Context) (*Report, error) {
	return p.run(ctx, "pipeline.collect", func(ctx context.Context, queue chan<- discovery.Candidate) (discovery.Result, error) {
		return p.engine.Discover(ctx, queue)
	})
}

// Watch runs an initial discovery pass and then keeps feeding files that are
// created or modified under the roots until ctx is cancelled.
func (p *Pipeline) Watch(ctx context.Context) (*Report, error) {
	report, err := p.run(ctx, "pipeline.watch", func(ctx context.Context, queue chan<- discovery.Candidate) (discovery.Result, error) {
		res, err := p.engine.Discover(ctx, queue)
		if err != nil {
			return res, err
		}
		p.logger.Info("initial scan complete, watching for changes", "accepted", res.Accepted)
		watched, err := p.engine.Watch(ctx, queue)
		res.Add(watched)
		return res, err
	})
	if errors.Is(err, context.Canceled) {
		// Cancellation is how watch mode ends.
		return report, nil
	}
	return report, err
}

type producer func(ctx context.Context, queue chan<- discovery.Candidate) (discovery.Result, error)

func (p *Pipeline) run(ctx context.Context, name string, produce producer) (*Report, error) {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("case.id", p.config.CaseID),
	))
	defer span.End()

	start := time.Now()
	scan := p.config.Scan
	scan.Roots = p.engine.Roots()
	if err := p.store.RecordScan(ctx, p.config.CaseID, &scan); err != nil {
		return nil, fmt.Errorf("record scan configuration: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan discovery.Candidate, p.config.QueueSize)
	type discoveryOutcome struct {
		result discovery.Result
		err    error
	}
	done := make(chan discoveryOutcome, 1)

	go func() {
		defer close(queue)
		res, err := produce(runCtx, queue)
		done <- discoveryOutcome{result: res, err: err}
	}()

	stats, procErr := p.processor.Run(runCtx, queue)

	// Processing stops early only on a fatal error or cancellation; unblock
	// the producer either way.
	cancel()
	outcome := <-done

	report := &Report{
		CaseID:     p.config.CaseID,
		Discovery:  outcome.result,
		Processing: stats,
		Duration:   time.Since(start),
	}

	for _, w := range outcome.result.Warnings {
		p.logger.Warn("discovery warning", "path", w.Path, "error", w.Err)
	}
	p.logger.Info("collection finished",
		"accepted", outcome.result.Accepted,
		"collected", stats.Collected,
		"already_collected", stats.AlreadyCollected,
		"failed", stats.Failed,
		"duration", report.Duration,
	)

	switch {
	case procErr != nil && !errors.Is(procErr, context.Canceled):
		span.RecordError(procErr)
		return report, procErr
	case ctx.Err() != nil:
		return report, ctx.Err()
	case outcome.err != nil && !errors.Is(outcome.err, context.Canceled):
		span.RecordError(outcome.err)
		return report, outcome.err
	}
	return report, nil
}
