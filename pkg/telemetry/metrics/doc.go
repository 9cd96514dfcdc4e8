// Package metrics provides Prometheus metrics for dfas.
//
// A Collector owns a private registry with discovery, processing, packaging
// and custody metrics. It is passed to the engines as their optional Metrics
// dependency and attached to the evidence store as a custody sink:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	store.AddSink(collector)
//
// Short-lived commands write a node_exporter textfile snapshot with
// WriteTextfile when they finish. Long-running commands serve Handler over
// HTTP.
package metrics
