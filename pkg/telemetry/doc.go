// Package telemetry groups the observability packages used by dfas.
//
//   - logging: slog setup, context fields and credential redaction
//   - metrics: Prometheus collector, HTTP handler and textfile snapshots
//   - tracing: OpenTelemetry tracer provider with OTLP gRPC export
//
// The CLI configures all three from the telemetry section of the
// configuration before running a command.
package telemetry
