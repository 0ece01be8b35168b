package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordProcessor does nothing.
func (NoopMetrics) RecordProcessor(_ context.Context, _ string, _ time.Duration, _ error) {}

// RecordDispatch does nothing.
func (NoopMetrics) RecordDispatch(_ context.Context, _ string, _ int, _ time.Duration, _ error) {}

// RecordShortCircuit does nothing.
func (NoopMetrics) RecordShortCircuit(_ context.Context, _, _ string) {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartDispatchSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartDispatchSpan(ctx context.Context, _, _ string, _ int) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartProcessorSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartProcessorSpan(ctx context.Context, _ string, _ int) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
