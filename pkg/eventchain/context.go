package eventchain

import "time"

// Cloner is implemented by content types that want deep snapshots in the
// event context. Without it, results hold the content value as is, so
// pointer content aliases the live entity.
type Cloner[T any] interface {
	Clone() T
}

// Result is one processor's recorded outcome.
type Result[T any] struct {
	// Processor is the processor's name.
	Processor string
	// Order is the processor's declared order.
	Order int
	// Sequence is the 1-based execution position.
	Sequence int
	// Content is the content snapshot after the processor returned.
	Content T
	// Timestamp is when the result was recorded.
	Timestamp time.Time
}

// EventContext is the append-only record of a dispatch. It is owned by
// a single event and never shared between goroutines.
type EventContext[T any] struct {
	initial T
	results []Result[T]
}

func newEventContext[T any](initial T) *EventContext[T] {
	return &EventContext[T]{initial: snapshot(initial)}
}

func snapshot[T any](v T) T {
	if c, ok := any(v).(Cloner[T]); ok {
		return c.Clone()
	}
	return v
}

func (c *EventContext[T]) record(processor string, order int, content T) {
	c.results = append(c.results, Result[T]{
		Processor: processor,
		Order:     order,
		Sequence:  len(c.results) + 1,
		Content:   snapshot(content),
		Timestamp: time.Now(),
	})
}

// Results returns the recorded results in execution order.
func (c *EventContext[T]) Results() []Result[T] {
	out := make([]Result[T], len(c.results))
	copy(out, c.results)
	return out
}

// Len returns the number of recorded results.
func (c *EventContext[T]) Len() int {
	return len(c.results)
}

// Processors returns the names of the processors that ran, in order.
func (c *EventContext[T]) Processors() []string {
	names := make([]string, len(c.results))
	for i, r := range c.results {
		names[i] = r.Processor
	}
	return names
}

// Content returns the last recorded content, or the event's initial
// content when no processor ran.
func (c *EventContext[T]) Content() T {
	if len(c.results) == 0 {
		return c.initial
	}
	return c.results[len(c.results)-1].Content
}

// Last returns the most recent result.
func (c *EventContext[T]) Last() (Result[T], bool) {
	if len(c.results) == 0 {
		return Result[T]{}, false
	}
	return c.results[len(c.results)-1], true
}
