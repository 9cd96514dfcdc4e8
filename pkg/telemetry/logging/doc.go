// Package logging configures structured logging for dfas.
//
// New builds a log/slog logger with JSON or text output:
//
//	logger, err := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	    Redact: true,
//	})
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger)
//
// Components derive their loggers from slog.Default() with a "component"
// attribute.
//
// # Context Fields
//
// Case, record and agent identifiers stored with WithCaseID, WithRecordID and
// WithAgentID are added to every record logged through a *Context method,
// together with the trace and span IDs of the active OpenTelemetry span.
//
// # Redaction
//
// With Redact enabled, attributes named like credentials are masked and
// passwords embedded in DSNs and URLs are replaced with ***.
package logging
