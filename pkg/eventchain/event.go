package eventchain

import (
	"reflect"

	"github.com/google/uuid"
)

// EventType identifies the kind of change an event describes. Domains
// add their own tags without touching the engine.
type EventType string

// Lifecycle event types shared by every entity.
const (
	Create EventType = "CREATE"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
)

// Well-known property keys. They are conventions between producers and
// processors; the engine never reads them.
const (
	// PropertySkipNotification suppresses outcome notifications for the event.
	PropertySkipNotification = "eventchain.skip_notification"

	// PropertyIsNew marks content that has not been persisted yet.
	PropertyIsNew = "eventchain.is_new"

	// PropertySkipPermission asks processors to bypass authorization checks.
	PropertySkipPermission = "eventchain.skip_permission"
)

// Properties is the open side channel carried by an event.
type Properties map[string]any

// Get returns the value stored under key.
func (p Properties) Get(key string) (any, bool) {
	v, ok := p[key]
	return v, ok
}

// Set stores value under key.
func (p Properties) Set(key string, value any) {
	p[key] = value
}

// Has reports whether key is present.
func (p Properties) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Bool returns the value under key if it is a bool, false otherwise.
func (p Properties) Bool(key string) bool {
	b, _ := p[key].(bool)
	return b
}

// String returns the value under key if it is a string, "" otherwise.
func (p Properties) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Delete removes key.
func (p Properties) Delete(key string) {
	delete(p, key)
}

// Envelope is the content-independent view of an event. Parent links and
// processors that only inspect type or properties work through it.
type Envelope interface {
	ID() string
	Type() EventType
	ContentType() reflect.Type
	Properties() Properties
	IsComplete() bool
	Parent() Envelope
	Depth() int
}

// Event carries a changed entity of type T through a processor chain.
//
// The type is fixed at construction. Content is mutated in place by
// processors and is never nil. Once Complete is called the event stays
// complete and no further processor runs for it.
type Event[T any] struct {
	id          string
	typ         EventType
	content     T
	original    T
	hasOriginal bool
	properties  Properties
	complete    bool
	parent      Envelope
	depth       int
	ctx         *EventContext[T]
}

// Compile-time interface check.
var _ Envelope = (*Event[struct{}])(nil)

// EventOption configures event creation.
type EventOption func(*eventConfig)

type eventConfig struct {
	id          string
	properties  Properties
	parent      Envelope
	original    any
	hasOriginal bool
}

// WithEventID sets a specific event ID (default: auto-generated UUID).
func WithEventID(id string) EventOption {
	return func(cfg *eventConfig) {
		cfg.id = id
	}
}

// WithProperty sets one property on the new event.
func WithProperty(key string, value any) EventOption {
	return func(cfg *eventConfig) {
		cfg.properties[key] = value
	}
}

// WithProperties copies props onto the new event.
func WithProperties(props Properties) EventOption {
	return func(cfg *eventConfig) {
		for k, v := range props {
			cfg.properties[k] = v
		}
	}
}

// WithOriginalContent records the pre-change snapshot. Its dynamic type must
// be the event's content type.
func WithOriginalContent(original any) EventOption {
	return func(cfg *eventConfig) {
		cfg.original = original
		cfg.hasOriginal = true
	}
}

// WithParent links the new event to the event whose processing spawned it.
func WithParent(parent Envelope) EventOption {
	return func(cfg *eventConfig) {
		cfg.parent = parent
	}
}

// NewEvent creates an event of type typ around content.
func NewEvent[T any](typ EventType, content T, opts ...EventOption) (*Event[T], error) {
	if typ == "" {
		return nil, configError("NewEvent", ErrEmptyEventType)
	}
	if isNil(content) {
		return nil, configError("NewEvent", ErrNilContent)
	}

	cfg := &eventConfig{
		id:         uuid.New().String(),
		properties: make(Properties),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	evt := &Event[T]{
		id:         cfg.id,
		typ:        typ,
		content:    content,
		properties: cfg.properties,
		ctx:        newEventContext(content),
	}

	if cfg.hasOriginal {
		original, ok := cfg.original.(T)
		if !ok {
			return nil, configError("NewEvent", ErrOriginalContentType)
		}
		evt.original = original
		evt.hasOriginal = true
	}

	if cfg.parent != nil {
		evt.linkParent(cfg.parent)
	}

	return evt, nil
}

// ID returns the unique event identifier.
func (e *Event[T]) ID() string {
	return e.id
}

// Type returns the event type.
func (e *Event[T]) Type() EventType {
	return e.typ
}

// ContentType returns the type token used for processor matching.
func (e *Event[T]) ContentType() reflect.Type {
	return reflect.TypeFor[T]()
}

// Content returns the current authoritative content.
func (e *Event[T]) Content() T {
	return e.content
}

// SetContent replaces the content. Nil content is rejected.
func (e *Event[T]) SetContent(content T) error {
	if isNil(content) {
		return ErrNilContent
	}
	e.content = content
	return nil
}

// OriginalContent returns the pre-change snapshot, if one was recorded.
func (e *Event[T]) OriginalContent() (T, bool) {
	return e.original, e.hasOriginal
}

// Properties returns the event's property map. Writes are visible to
// every later processor in the chain.
func (e *Event[T]) Properties() Properties {
	return e.properties
}

// IsComplete reports whether a processor stopped the chain.
func (e *Event[T]) IsComplete() bool {
	return e.complete
}

// Complete stops the chain after the current processor.
func (e *Event[T]) Complete() {
	e.complete = true
}

// Context returns the accumulated processor results.
func (e *Event[T]) Context() *EventContext[T] {
	return e.ctx
}

// Parent returns the event whose processing spawned this one, or nil.
func (e *Event[T]) Parent() Envelope {
	return e.parent
}

// Depth is 0 for root events and parent depth + 1 for child events.
func (e *Event[T]) Depth() int {
	return e.depth
}

func (e *Event[T]) linkParent(parent Envelope) {
	e.parent = parent
	e.depth = parent.Depth() + 1
}

// adopt carries dispatch state from prev onto an event a processor returned
// in its place. Identity, lineage and results stay with the dispatch, and
// completion never resets. Properties of prev survive unless the
// replacement sets the same key; the original snapshot survives unless the
// replacement records its own.
func (e *Event[T]) adopt(prev *Event[T]) {
	e.id = prev.id
	e.parent = prev.parent
	e.depth = prev.depth
	e.ctx = prev.ctx
	if prev.complete {
		e.complete = true
	}
	if !e.hasOriginal && prev.hasOriginal {
		e.original = prev.original
		e.hasOriginal = true
	}
	if e.properties == nil {
		e.properties = make(Properties, len(prev.properties))
	}
	for k, v := range prev.properties {
		if _, ok := e.properties[k]; !ok {
			e.properties[k] = v
		}
	}
}

// Lineage returns event types from the root down to env.
func Lineage(env Envelope) []EventType {
	var chain []EventType
	for cur := env; cur != nil; cur = cur.Parent() {
		chain = append(chain, cur.Type())
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
