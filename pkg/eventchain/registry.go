package eventchain

import (
	"fmt"
	"reflect"
	"slices"
	"sort"
)

// Registration is a processor with its content type erased, ready for
// NewRegistry. Build one with Bind.
type Registration struct {
	e *entry
}

// entry stores a processor with the capability data checked before Supports.
type entry struct {
	name        string
	order       int
	seq         int
	contentType reflect.Type
	eventTypes  map[EventType]struct{} // nil = all types
	processor   any                    // Processor[T] for contentType T
}

func (e *entry) handles(t EventType) bool {
	if e.eventTypes == nil {
		return true
	}
	_, ok := e.eventTypes[t]
	return ok
}

// Bind registers p for events whose content type is exactly T.
func Bind[T any](p Processor[T]) Registration {
	if isNil(p) {
		return Registration{}
	}
	if fp, ok := p.(*funcProcessor[T]); ok && fp.fn == nil {
		return Registration{}
	}

	e := &entry{
		name:        p.Name(),
		order:       p.Order(),
		contentType: reflect.TypeFor[T](),
		processor:   p,
	}
	if types := p.EventTypes(); len(types) > 0 {
		e.eventTypes = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			e.eventTypes[t] = struct{}{}
		}
	}
	return Registration{e: e}
}

// Registry is the immutable, ordered index of all processors.
//
// It is built once at startup and only read afterwards, so lookups take
// no locks and are safe for any number of concurrent callers.
type Registry struct {
	byContent map[reflect.Type][]*entry
	names     []string
}

// NewRegistry indexes regs by content type and sorts each group by order.
// Processors with equal order keep their registration order.
//
// A nil list, a nil processor or a duplicate name is a configuration error.
// An empty, non-nil list yields a registry that matches nothing.
func NewRegistry(regs []Registration) (*Registry, error) {
	if regs == nil {
		return nil, configError("NewRegistry", ErrNilProcessors)
	}

	r := &Registry{
		byContent: make(map[reflect.Type][]*entry),
		names:     make([]string, 0, len(regs)),
	}
	seen := make(map[string]struct{}, len(regs))

	for i, reg := range regs {
		if reg.e == nil {
			return nil, configError("NewRegistry", fmt.Errorf("%w at index %d", ErrNilProcessor, i))
		}
		if _, dup := seen[reg.e.name]; dup {
			return nil, configError("NewRegistry", fmt.Errorf("%w: %q", ErrDuplicateProcessor, reg.e.name))
		}
		seen[reg.e.name] = struct{}{}

		e := *reg.e
		e.seq = i
		r.byContent[e.contentType] = append(r.byContent[e.contentType], &e)
		r.names = append(r.names, e.name)
	}

	for _, group := range r.byContent {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].order < group[j].order
		})
	}

	return r, nil
}

// Len returns the number of registered processors.
func (r *Registry) Len() int {
	return len(r.names)
}

// Names returns processor names in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// Applicable returns the processors that apply to evt, ordered ascending by
// order with ties in registration order. The result is never nil.
//
// Supports is evaluated against evt as it is now. Service evaluates it again
// right before each invocation, so a processor can enable a later one by
// setting a property.
func Applicable[T any](r *Registry, evt *Event[T]) []Processor[T] {
	matched := candidates(r, evt)
	chain := matched[:0]
	for _, p := range matched {
		if p.Supports(evt) {
			chain = append(chain, p)
		}
	}
	return chain
}

// candidates returns the processors whose content type and event types match
// evt, in chain order, without consulting Supports.
func candidates[T any](r *Registry, evt *Event[T]) []Processor[T] {
	if r == nil || evt == nil {
		return []Processor[T]{}
	}

	group := r.byContent[reflect.TypeFor[T]()]
	out := make([]Processor[T], 0, len(group))
	for _, e := range group {
		if e.handles(evt.Type()) {
			out = append(out, e.processor.(Processor[T]))
		}
	}
	return out
}
