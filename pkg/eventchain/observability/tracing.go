package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer uses the global OTel tracer provider.
var tracer = otel.Tracer("eventchain")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartDispatchSpan starts a span covering one event's whole chain.
	StartDispatchSpan(ctx context.Context, eventID, eventType string, depth int) (context.Context, trace.Span)

	// StartProcessorSpan starts a child span for one processor.
	StartProcessorSpan(ctx context.Context, processor string, order int) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartDispatchSpan starts a span covering one event's whole chain.
func (m *otelSpanManager) StartDispatchSpan(ctx context.Context, eventID, eventType string, depth int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "eventchain.dispatch",
		trace.WithAttributes(
			attribute.String("event.id", eventID),
			attribute.String("event.type", eventType),
			attribute.Int("event.depth", depth),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartProcessorSpan starts a child span for one processor.
func (m *otelSpanManager) StartProcessorSpan(ctx context.Context, processor string, order int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "eventchain.processor."+processor,
		trace.WithAttributes(
			attribute.String("processor.name", processor),
			attribute.Int("processor.order", order),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
