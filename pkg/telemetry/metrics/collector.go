package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"dfas-hq/dfas/pkg/config"
	"dfas-hq/dfas/pkg/evidence"
)

// Collector owns every dfas metric. It implements the Metrics interfaces of
// the discovery, processing, packaging and pipeline packages, and
// evidence.CustodySink so it can count committed custody entries.
//
// A disabled collector accepts every call and records nothing.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	discovery  *DiscoveryMetrics
	processing *ProcessingMetrics
	packaging  *PackagingMetrics
}

// NewCollector creates a collector registered with registry. If registry is
// nil a private registry is created.
//
// Example:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	pipeline.New(store, pipeline.Config{Metrics: collector, ...})
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}

	return &Collector{
		config:     cfg,
		registry:   registry,
		discovery:  NewDiscoveryMetrics(cfg, registry),
		processing: NewProcessingMetrics(cfg, registry),
		packaging:  NewPackagingMetrics(cfg, registry),
	}
}

// RecordDiscovered counts a file accepted by the discovery policy.
func (c *Collector) RecordDiscovered() {
	if !c.config.Enabled {
		return
	}
	c.discovery.discovered.Inc()
}

// RecordRejected counts a file rejected by the discovery policy.
//
// Parameters:
//   - reason: "excluded", "extension" or "size"
func (c *Collector) RecordRejected(reason string) {
	if !c.config.Enabled {
		return
	}
	c.discovery.rejected.WithLabelValues(reason).Inc()
}

// RecordCollected records a newly inserted evidence record.
//
// Parameters:
//   - bytes: size of the hashed content
//   - d: time spent extracting identity and metadata
func (c *Collector) RecordCollected(bytes int64, d time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.processing.files.WithLabelValues(OutcomeCollected).Inc()
	c.processing.bytesHashed.Add(float64(bytes))
	c.processing.extractDuration.Observe(d.Seconds())
}

// RecordAlreadyCollected counts a file whose record already existed.
func (c *Collector) RecordAlreadyCollected() {
	if !c.config.Enabled {
		return
	}
	c.processing.files.WithLabelValues(OutcomeAlreadyCollected).Inc()
}

// RecordFailed counts a file that could not be collected.
func (c *Collector) RecordFailed() {
	if !c.config.Enabled {
		return
	}
	c.processing.files.WithLabelValues(OutcomeFailed).Inc()
}

// SetQueueDepth reports the number of paths waiting in the discovery queue.
func (c *Collector) SetQueueDepth(n int) {
	if !c.config.Enabled {
		return
	}
	c.processing.queueDepth.Set(float64(n))
}

// RecordPackage records a sealed package.
func (c *Collector) RecordPackage(bytes int64, d time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.packaging.packages.Inc()
	c.packaging.packageBytes.Add(float64(bytes))
	c.packaging.packageDuration.Observe(d.Seconds())
}

// Publish counts a committed custody entry by action. It never fails.
func (c *Collector) Publish(_ context.Context, entry *evidence.CustodyEntry) error {
	if !c.config.Enabled {
		return nil
	}
	c.packaging.custody.WithLabelValues(entry.Action).Inc()
	return nil
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
