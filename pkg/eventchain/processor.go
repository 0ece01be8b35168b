package eventchain

import "context"

// Processor is a unit of business logic reacting to events carrying
// content of type T.
type Processor[T any] interface {
	// Name identifies the processor in results, logs and metrics.
	// Names are unique within a registry.
	Name() string

	// Order determines call order. Lower values are called first.
	Order() int

	// EventTypes returns the event types this processor handles.
	// An empty slice means every type.
	EventTypes() []EventType

	// Supports is a pure, fast predicate checked on every dispatch after
	// the content and event type already matched.
	Supports(evt *Event[T]) bool

	// Process handles the event and returns it, or an event replacing it.
	// It may mutate content, set properties and call Complete. A
	// replacement keeps the dispatch identity, the original snapshot and
	// every property it does not set itself.
	Process(ctx context.Context, evt *Event[T]) (*Event[T], error)
}

// ProcessFunc is the body of a function-backed processor.
type ProcessFunc[T any] func(ctx context.Context, evt *Event[T]) (*Event[T], error)

// ProcessorOption configures a function-backed processor.
type ProcessorOption func(*processorConfig)

type processorConfig struct {
	eventTypes []EventType
	supports   func(Envelope) bool
}

// WithEventTypes restricts the processor to the given event types.
func WithEventTypes(types ...EventType) ProcessorOption {
	return func(cfg *processorConfig) {
		cfg.eventTypes = append(cfg.eventTypes, types...)
	}
}

// WithSupports adds a predicate over the event envelope, typically one that
// inspects properties.
func WithSupports(fn func(Envelope) bool) ProcessorOption {
	return func(cfg *processorConfig) {
		cfg.supports = fn
	}
}

// NewProcessor builds a Processor from a function.
//
//	audit := eventchain.NewProcessor("audit", 1000,
//	    func(ctx context.Context, evt *eventchain.Event[*User]) (*eventchain.Event[*User], error) {
//	        evt.Content().ModifiedAt = time.Now()
//	        return evt, nil
//	    },
//	    eventchain.WithEventTypes(eventchain.Create, eventchain.Update))
func NewProcessor[T any](name string, order int, fn ProcessFunc[T], opts ...ProcessorOption) Processor[T] {
	cfg := &processorConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return &funcProcessor[T]{
		name:       name,
		order:      order,
		fn:         fn,
		eventTypes: cfg.eventTypes,
		supports:   cfg.supports,
	}
}

type funcProcessor[T any] struct {
	name       string
	order      int
	fn         ProcessFunc[T]
	eventTypes []EventType
	supports   func(Envelope) bool
}

func (p *funcProcessor[T]) Name() string            { return p.name }
func (p *funcProcessor[T]) Order() int              { return p.order }
func (p *funcProcessor[T]) EventTypes() []EventType { return p.eventTypes }

func (p *funcProcessor[T]) Supports(evt *Event[T]) bool {
	if p.supports == nil {
		return true
	}
	return p.supports(evt)
}

func (p *funcProcessor[T]) Process(ctx context.Context, evt *Event[T]) (*Event[T], error) {
	return p.fn(ctx, evt)
}
