package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	ecerrors "github.com/randalmurphal/eventchain/pkg/eventchain/errors"
)

// MetricsRecorder records dispatch metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordProcessor records one processor invocation.
	RecordProcessor(ctx context.Context, processor string, duration time.Duration, err error)

	// RecordDispatch records a finished chain for an event type.
	RecordDispatch(ctx context.Context, eventType string, executed int, duration time.Duration, err error)

	// RecordShortCircuit records a processor that completed the event early.
	RecordShortCircuit(ctx context.Context, eventType, processor string)
}

type otelMetrics struct {
	processorRuns    metric.Int64Counter
	processorLatency metric.Float64Histogram
	processorErrors  metric.Int64Counter
	dispatches       metric.Int64Counter
	dispatchLatency  metric.Float64Histogram
	chainLength      metric.Int64Histogram
	shortCircuits    metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("eventchain")

	processorRuns, err := meter.Int64Counter("eventchain.processor.executions",
		metric.WithDescription("Number of processor invocations"),
	)
	if err != nil {
		return nil, err
	}

	processorLatency, err := meter.Float64Histogram("eventchain.processor.latency_ms",
		metric.WithDescription("Processor latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	processorErrors, err := meter.Int64Counter("eventchain.processor.errors",
		metric.WithDescription("Number of failed processor invocations"),
	)
	if err != nil {
		return nil, err
	}

	dispatches, err := meter.Int64Counter("eventchain.dispatch.count",
		metric.WithDescription("Number of dispatched events"),
	)
	if err != nil {
		return nil, err
	}

	dispatchLatency, err := meter.Float64Histogram("eventchain.dispatch.latency_ms",
		metric.WithDescription("Whole-chain latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	chainLength, err := meter.Int64Histogram("eventchain.dispatch.processors",
		metric.WithDescription("Processors executed per dispatch"),
	)
	if err != nil {
		return nil, err
	}

	shortCircuits, err := meter.Int64Counter("eventchain.dispatch.short_circuits",
		metric.WithDescription("Number of chains stopped by a completed event"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		processorRuns:    processorRuns,
		processorLatency: processorLatency,
		processorErrors:  processorErrors,
		dispatches:       dispatches,
		dispatchLatency:  dispatchLatency,
		chainLength:      chainLength,
		shortCircuits:    shortCircuits,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordProcessor records one processor invocation.
func (m *otelMetrics) RecordProcessor(ctx context.Context, processor string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("processor", processor),
	}

	m.processorRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.processorLatency.Record(ctx, float64(duration.Microseconds())/1000, metric.WithAttributes(attrs...))

	if err != nil {
		attrs = append(attrs, attribute.String("error.category", ecerrors.Categorize(err).String()))
		m.processorErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordDispatch records a finished chain.
func (m *otelMetrics) RecordDispatch(ctx context.Context, eventType string, executed int, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("event_type", eventType),
		attribute.Bool("success", err == nil),
	}
	m.dispatches.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.dispatchLatency.Record(ctx, float64(duration.Microseconds())/1000, metric.WithAttributes(attrs...))
	m.chainLength.Record(ctx, int64(executed), metric.WithAttributes(attrs...))
}

// RecordShortCircuit records a processor that completed the event early.
func (m *otelMetrics) RecordShortCircuit(ctx context.Context, eventType, processor string) {
	m.shortCircuits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("processor", processor),
	))
}
