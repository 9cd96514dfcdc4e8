package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"dfas-hq/dfas/pkg/config"
)

// Processing outcome label values.
const (
	OutcomeCollected        = "collected"
	OutcomeAlreadyCollected = "already_collected"
	OutcomeFailed           = "failed"
)

// DiscoveryMetrics tracks the discovery engine.
//
// Metrics:
//   - dfas_discovery_files_accepted_total
//   - dfas_discovery_files_rejected_total{reason}
type DiscoveryMetrics struct {
	discovered prometheus.Counter
	rejected   *prometheus.CounterVec
}

// NewDiscoveryMetrics creates and registers discovery metrics.
func NewDiscoveryMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *DiscoveryMetrics {
	dm := &DiscoveryMetrics{
		discovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "discovery",
			Name:      "files_accepted_total",
			Help:      "Files accepted by the discovery policy and queued for processing",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "discovery",
			Name:      "files_rejected_total",
			Help:      "Files rejected by the discovery policy",
		}, []string{"reason"}),
	}

	registry.MustRegister(dm.discovered, dm.rejected)
	return dm
}

// ProcessingMetrics tracks the processing engine.
//
// Metrics:
//   - dfas_processing_files_total{outcome}
//   - dfas_processing_bytes_hashed_total
//   - dfas_processing_extract_duration_seconds
//   - dfas_processing_queue_depth
type ProcessingMetrics struct {
	files           *prometheus.CounterVec
	bytesHashed     prometheus.Counter
	extractDuration prometheus.Histogram
	queueDepth      prometheus.Gauge
}

// NewProcessingMetrics creates and registers processing metrics.
func NewProcessingMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ProcessingMetrics {
	pm := &ProcessingMetrics{
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "processing",
			Name:      "files_total",
			Help:      "Files processed by outcome",
		}, []string{"outcome"}),
		bytesHashed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "processing",
			Name:      "bytes_hashed_total",
			Help:      "Bytes of evidence content hashed",
		}),
		// 1ms for small files up to several minutes for disk-sized ones.
		extractDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "processing",
			Name:      "extract_duration_seconds",
			Help:      "Time to hash and extract metadata for one file",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: "processing",
			Name:      "queue_depth",
			Help:      "Paths waiting in the discovery queue",
		}),
	}

	registry.MustRegister(pm.files, pm.bytesHashed, pm.extractDuration, pm.queueDepth)
	return pm
}
