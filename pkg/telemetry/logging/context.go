package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Context keys for common log fields.
type contextKey string

const (
	// CaseIDKey is the context key for case identifiers.
	CaseIDKey contextKey = "case_id"

	// RecordIDKey is the context key for evidence record identifiers.
	RecordIDKey contextKey = "record_id"

	// AgentIDKey is the context key for the collecting agent.
	AgentIDKey contextKey = "agent_id"
)

// WithCaseID adds a case ID to the context.
func WithCaseID(ctx context.Context, caseID string) context.Context {
	return context.WithValue(ctx, CaseIDKey, caseID)
}

// GetCaseID retrieves the case ID from the context.
func GetCaseID(ctx context.Context) string {
	if caseID, ok := ctx.Value(CaseIDKey).(string); ok {
		return caseID
	}
	return ""
}

// WithRecordID adds a record ID to the context.
func WithRecordID(ctx context.Context, recordID string) context.Context {
	return context.WithValue(ctx, RecordIDKey, recordID)
}

// GetRecordID retrieves the record ID from the context.
func GetRecordID(ctx context.Context) string {
	if recordID, ok := ctx.Value(RecordIDKey).(string); ok {
		return recordID
	}
	return ""
}

// WithAgentID adds the collecting agent to the context.
func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, AgentIDKey, agentID)
}

// GetAgentID retrieves the collecting agent from the context.
func GetAgentID(ctx context.Context) string {
	if agentID, ok := ctx.Value(AgentIDKey).(string); ok {
		return agentID
	}
	return ""
}

// extractContextFields extracts common fields from context for logging.
func extractContextFields(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr

	if caseID := GetCaseID(ctx); caseID != "" {
		attrs = append(attrs, slog.String("case_id", caseID))
	}
	if recordID := GetRecordID(ctx); recordID != "" {
		attrs = append(attrs, slog.String("record_id", recordID))
	}
	if agentID := GetAgentID(ctx); agentID != "" {
		attrs = append(attrs, slog.String("agent_id", agentID))
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	return attrs
}

// contextHandler adds context fields to every record.
type contextHandler struct {
	slog.Handler
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		r.AddAttrs(extractContextFields(ctx)...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithGroup(name)}
}
