package eventchain

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/eventchain/pkg/eventchain/config"
	"github.com/randalmurphal/eventchain/pkg/eventchain/observability"
)

// DefaultMaxDepth bounds nested dispatches of child events.
const DefaultMaxDepth = config.DefaultMaxDepth

// Service runs the ordered processor chain for one event at a time.
// It holds no per-dispatch state and is safe for concurrent use.
type Service struct {
	registry      *Registry
	logger        *slog.Logger
	metrics       observability.MetricsRecorder
	spans         observability.SpanManager
	maxDepth      int
	recoverPanics bool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger. Nil disables logging.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics recorder (default: no-op).
func WithMetrics(m observability.MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithSpans sets the span manager (default: no-op).
func WithSpans(sm observability.SpanManager) ServiceOption {
	return func(s *Service) {
		if sm != nil {
			s.spans = sm
		}
	}
}

// WithMaxDepth sets the deepest child event the service accepts.
// Root events have depth 0. Default: 16.
func WithMaxDepth(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxDepth = n
		}
	}
}

// WithPanicRecovery controls whether processor panics become errors.
// Default: true.
func WithPanicRecovery(enabled bool) ServiceOption {
	return func(s *Service) {
		s.recoverPanics = enabled
	}
}

// ServiceOptionsFrom maps decoded engine settings to service options.
func ServiceOptionsFrom(settings config.EngineSettings) []ServiceOption {
	opts := []ServiceOption{
		WithMaxDepth(settings.MaxDepth),
		WithPanicRecovery(settings.RecoverPanics),
	}
	if settings.Metrics {
		opts = append(opts, WithMetrics(observability.NewMetricsRecorder()))
	}
	if settings.Tracing {
		opts = append(opts, WithSpans(observability.NewSpanManager()))
	}
	return opts
}

// NewService creates a service over r.
func NewService(r *Registry, opts ...ServiceOption) (*Service, error) {
	if r == nil {
		return nil, configError("NewService", ErrNilRegistry)
	}

	s := &Service{
		registry:      r,
		logger:        slog.Default(),
		metrics:       observability.NoopMetrics{},
		spans:         observability.NoopSpanManager{},
		maxDepth:      DefaultMaxDepth,
		recoverPanics: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Registry returns the registry the service dispatches from.
func (s *Service) Registry() *Registry {
	return s.registry
}

// MaxDepth returns the configured depth limit.
func (s *Service) MaxDepth() int {
	return s.maxDepth
}

// Process runs every applicable processor for evt in order and returns the
// final event.
//
// Before each invocation the processor's Supports is re-checked against the
// current event and ctx is checked for cancellation. The chain stops after
// the first processor that leaves the event complete, or at the first error.
// On error the returned event carries the results of the processors that
// completed; their in-memory changes are not rolled back. Processor errors
// are wrapped in *ProcessorError; match them with errors.Is or errors.As.
func Process[T any](ctx context.Context, s *Service, evt *Event[T]) (*Event[T], error) {
	if s == nil {
		return evt, configError("Process", ErrNilService)
	}
	if ctx == nil {
		return evt, configError("Process", ErrNilContext)
	}
	if evt == nil {
		return nil, configError("Process", ErrNilEvent)
	}
	if evt.Depth() > s.maxDepth {
		return evt, &DepthExceededError{
			EventID:   evt.ID(),
			EventType: evt.Type(),
			Depth:     evt.Depth(),
			Max:       s.maxDepth,
			Chain:     Lineage(evt),
		}
	}

	eventType := string(evt.Type())
	chain := candidates(s.registry, evt)
	logger := observability.EnrichLogger(s.logger, evt.ID(), eventType, evt.Depth())
	ctx, span := s.spans.StartDispatchSpan(ctx, evt.ID(), eventType, evt.Depth())
	elapsed := observability.TimedOperation()
	start := time.Now()

	observability.LogDispatchStart(logger, evt.ContentType().String(), len(chain))

	current := evt
	var err error
	var last string

	for i, p := range chain {
		if current.IsComplete() {
			break
		}
		if !p.Supports(current) {
			continue
		}
		if cerr := ctx.Err(); cerr != nil {
			err = &CancellationError{
				EventID:       current.ID(),
				NextProcessor: p.Name(),
				Executed:      current.ctx.Len(),
				Cause:         cerr,
			}
			break
		}

		last = p.Name()
		next, stepErr := step(ctx, s, logger, current, p)
		if stepErr != nil {
			err = stepErr
			break
		}
		current = next

		if current.IsComplete() {
			observability.LogShortCircuit(logger, last, len(chain)-i-1)
			s.metrics.RecordShortCircuit(ctx, eventType, last)
			s.spans.AddSpanEvent(ctx, "eventchain.short_circuit", attribute.String("processor", last))
		}
	}

	executed := current.ctx.Len()
	s.metrics.RecordDispatch(ctx, eventType, executed, time.Since(start), err)
	s.spans.EndSpanWithError(span, err)
	if err != nil {
		observability.LogDispatchError(logger, err, elapsed(), last)
	} else {
		observability.LogDispatchComplete(logger, elapsed(), executed, current.IsComplete())
	}

	return current, err
}

// step invokes one processor and records its result.
func step[T any](ctx context.Context, s *Service, logger *slog.Logger, evt *Event[T], p Processor[T]) (*Event[T], error) {
	name, order := p.Name(), p.Order()
	position := evt.ctx.Len() + 1

	pctx, span := s.spans.StartProcessorSpan(ctx, name, order)
	observability.LogProcessorStart(logger, name, order)
	start := time.Now()

	next, err := invoke(pctx, p, evt, s.recoverPanics)
	if err == nil {
		switch {
		case next == nil:
			err = ErrNilResult
		case next.Type() != evt.Type():
			err = ErrEventTypeChanged
		}
	}
	duration := time.Since(start)

	if err != nil {
		err = &ProcessorError{
			EventID:   evt.ID(),
			EventType: evt.Type(),
			Processor: name,
			Order:     order,
			Position:  position,
			Err:       err,
		}
		s.metrics.RecordProcessor(pctx, name, duration, err)
		s.spans.EndSpanWithError(span, err)
		observability.LogProcessorError(logger, name, err, float64(duration.Microseconds())/1000)
		return nil, err
	}

	if next != evt {
		next.adopt(evt)
	}
	next.ctx.record(name, order, next.content)

	s.metrics.RecordProcessor(pctx, name, duration, nil)
	s.spans.EndSpanWithError(span, nil)
	observability.LogProcessorComplete(logger, name, float64(duration.Microseconds())/1000)

	return next, nil
}

func invoke[T any](ctx context.Context, p Processor[T], evt *Event[T], recoverPanics bool) (next *Event[T], err error) {
	if recoverPanics {
		defer func() {
			if r := recover(); r != nil {
				next = nil
				err = &PanicError{
					Processor: p.Name(),
					Value:     r,
					Stack:     string(debug.Stack()),
				}
			}
		}()
	}
	return p.Process(ctx, evt)
}
