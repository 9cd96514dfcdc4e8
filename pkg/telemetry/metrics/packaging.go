package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"dfas-hq/dfas/pkg/config"
)

// PackagingMetrics tracks sealed packages and the custody log.
//
// Metrics:
//   - dfas_packaging_packages_total
//   - dfas_packaging_bytes_total
//   - dfas_packaging_duration_seconds
//   - dfas_custody_entries_total{action}
type PackagingMetrics struct {
	packages        prometheus.Counter
	packageBytes    prometheus.Counter
	packageDuration prometheus.Histogram
	custody         *prometheus.CounterVec
}

// NewPackagingMetrics creates and registers packaging and custody metrics.
func NewPackagingMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *PackagingMetrics {
	pm := &PackagingMetrics{
		packages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "packaging",
			Name:      "packages_total",
			Help:      "Sealed packages created",
		}),
		packageBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "packaging",
			Name:      "bytes_total",
			Help:      "Bytes written to sealed packages",
		}),
		packageDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "packaging",
			Name:      "duration_seconds",
			Help:      "Time to build and seal one package",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 1800},
		}),
		custody: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "custody",
			Name:      "entries_total",
			Help:      "Committed chain of custody entries by action",
		}, []string{"action"}),
	}

	registry.MustRegister(pm.packages, pm.packageBytes, pm.packageDuration, pm.custody)
	return pm
}
