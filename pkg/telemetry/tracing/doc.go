// Package tracing configures OpenTelemetry tracing for dfas.
//
// New installs the global tracer provider. The evidence packages create
// their spans through otel.Tracer, so a run is traced end to end once the
// CLI has called New:
//
//	collect
//	└── pipeline.collect
//	    ├── discovery.discover
//	    └── processing.run
//	        └── processing.file (one per path)
//	package
//	└── packaging.create
//
// Spans are exported over OTLP gRPC. When tracing is disabled a noop
// provider is installed and span creation costs almost nothing.
//
// Configuration:
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    endpoint: "otel-collector:4317"
//	    insecure: true
//	    sample_ratio: 0.1
package tracing
