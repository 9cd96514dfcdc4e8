package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dfas-hq/dfas/pkg/discovery"
	"dfas-hq/dfas/pkg/evidence"
)

var tracer = otel.Tracer("dfas-hq/dfas/pkg/processing")

// Extractor builds an evidence record for one file. identity.Extractor
// implements it.
type Extractor interface {
	ExtractMetadata(ctx context.Context, path, root string) (*evidence.EvidenceRecord, error)
}

// Metrics receives per-file outcomes. metrics.Collector implements it.
type Metrics interface {
	RecordCollected(bytes int64, hashDuration time.Duration)
	RecordAlreadyCollected()
	RecordFailed()
	SetQueueDepth(depth int)
}

// Config configures a Processor.
type Config struct {
	// CaseID is the case being collected.
	CaseID string

	// AgentID is the actor of collection_failed entries.
	AgentID string

	// Workers is the number of concurrent consumers.
	// Default: runtime.NumCPU()
	Workers int

	// Metrics is optional.
	Metrics Metrics
}

// Stats counts per-file outcomes of a run.
type Stats struct {
	Processed        int64
	Collected        int64
	AlreadyCollected int64
	Failed           int64
	BytesHashed      int64
}

// Processor turns candidates into committed evidence records.
type Processor struct {
	store     evidence.Store
	extractor Extractor
	config    Config
	logger    *slog.Logger
}

// NewProcessor creates a processor writing to store.
func NewProcessor(store evidence.Store, extractor Extractor, cfg Config) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Processor{
		store:     store,
		extractor: extractor,
		config:    cfg,
		logger:    slog.Default().With("component", "processing", "case_id", cfg.CaseID),
	}
}

// counters is the shared, atomically updated form of Stats.
type counters struct {
	processed, collected, already, failed, bytes atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Processed:        c.processed.Load(),
		Collected:        c.collected.Load(),
		AlreadyCollected: c.already.Load(),
		Failed:           c.failed.Load(),
		BytesHashed:      c.bytes.Load(),
	}
}

// Run consumes in until it is closed and drained, or until ctx is cancelled
// or the case turns out to be sealed.
func (p *Processor) Run(parent context.Context, in <-chan discovery.Candidate) (Stats, error) {
	ctx, span := tracer.Start(parent, "processing.run")
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		c        counters
		wg       sync.WaitGroup
		fatalMu  sync.Mutex
		fatalErr error
	)

	start := time.Now()
	for i := 0; i < p.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.worker(ctx, in, &c); err != nil {
				fatalMu.Lock()
				if fatalErr == nil {
					fatalErr = err
				}
				fatalMu.Unlock()
				cancel()
			}
		}()
	}
	wg.Wait()

	stats := c.snapshot()
	span.SetAttributes(
		attribute.Int64("processing.collected", stats.Collected),
		attribute.Int64("processing.already_collected", stats.AlreadyCollected),
		attribute.Int64("processing.failed", stats.Failed),
	)

	p.logger.Info("processing completed",
		"workers", p.config.Workers,
		"processed", stats.Processed,
		"collected", stats.Collected,
		"already_collected", stats.AlreadyCollected,
		"failed", stats.Failed,
		"bytes_hashed", stats.BytesHashed,
		"duration", time.Since(start),
	)

	if fatalErr != nil {
		span.RecordError(fatalErr)
		span.SetStatus(codes.Error, fatalErr.Error())
		return stats, fatalErr
	}
	if err := parent.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

// worker processes candidates until the queue is closed or ctx is done.
func (p *Processor) worker(ctx context.Context, in <-chan discovery.Candidate, c *counters) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case cand, ok := <-in:
			if !ok {
				return nil
			}
			if m := p.config.Metrics; m != nil {
				m.SetQueueDepth(len(in))
			}
			if err := p.processFile(ctx, cand, c); err != nil {
				return err
			}
		}
	}
}

// processFile handles one candidate. Only errors that must stop the whole
// run are returned.
func (p *Processor) processFile(ctx context.Context, cand discovery.Candidate, c *counters) error {
	ctx, span := tracer.Start(ctx, "processing.file",
		trace.WithAttributes(attribute.String("file.path", cand.Path)),
	)
	defer span.End()

	start := time.Now()
	record, err := p.extractor.ExtractMetadata(ctx, cand.Path, cand.Root)
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled mid-file: not a collection failure.
			return nil
		}
		c.processed.Add(1)
		span.RecordError(err)
		p.fail(ctx, cand.Path, "extract", err, c)
		return nil
	}
	hashDuration := time.Since(start)

	c.processed.Add(1)
	c.bytes.Add(record.Size)

	err = p.store.InsertEvidence(ctx, record)
	switch {
	case err == nil:
		c.collected.Add(1)
		if m := p.config.Metrics; m != nil {
			m.RecordCollected(record.Size, hashDuration)
		}
		p.logger.Debug("evidence collected",
			"record_id", record.ID,
			"path", record.SourcePath,
			"sha256", record.SHA256,
		)
		return nil

	case errors.Is(err, evidence.ErrDuplicateRecord):
		c.already.Add(1)
		if m := p.config.Metrics; m != nil {
			m.RecordAlreadyCollected()
		}
		p.logger.Debug("evidence already collected", "record_id", record.ID, "path", record.SourcePath)
		return nil

	case errors.Is(err, evidence.ErrCaseSealed):
		span.RecordError(err)
		return err

	default:
		if ctx.Err() != nil {
			return nil
		}
		span.RecordError(err)
		p.fail(ctx, cand.Path, "store", err, c)
		return nil
	}
}

// fail counts a failed file and appends its collection_failed entry.
func (p *Processor) fail(ctx context.Context, path, stage string, cause error, c *counters) {
	c.failed.Add(1)
	if m := p.config.Metrics; m != nil {
		m.RecordFailed()
	}

	p.logger.Warn("evidence collection failed",
		"path", path,
		"stage", stage,
		"error", cause,
	)

	entry := &evidence.CustodyEntry{
		CaseID:    p.config.CaseID,
		Action:    evidence.ActionCollectionFailed,
		Actor:     p.config.AgentID,
		Timestamp: time.Now().UTC(),
		Details:   fmt.Sprintf("%s: %s: %v", path, stage, cause),
	}
	if _, err := p.store.AppendCustody(ctx, entry); err != nil {
		p.logger.Error("failed to record collection failure",
			"path", path,
			"error", err,
		)
	}
}
