package eventchain

import (
	"context"
	"errors"
	"log/slog"
	"time"

	ecerrors "github.com/randalmurphal/eventchain/pkg/eventchain/errors"
	"github.com/randalmurphal/eventchain/pkg/eventchain/observability"
)

// Step is one executed processor in an Outcome.
type Step struct {
	Processor string    `json:"processor"`
	Order     int       `json:"order"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

// Outcome summarizes a finished dispatch for listeners. It carries no
// content, so it can cross package and process boundaries.
type Outcome struct {
	EventID     string    `json:"event_id"`
	EventType   EventType `json:"event_type"`
	ContentType string    `json:"content_type"`
	ParentID    string    `json:"parent_id,omitempty"`
	Depth       int       `json:"depth"`
	Steps       []Step    `json:"steps"`
	Completed   bool      `json:"completed"`

	// FailedProcessor names the processor whose error aborted the chain.
	FailedProcessor string `json:"failed_processor,omitempty"`
	Error           string `json:"error,omitempty"`
	ErrorCategory   string `json:"error_category,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	// Properties is the event's property map at the end of the dispatch.
	Properties Properties `json:"-"`
	// Err is the error returned to the caller, if any.
	Err error `json:"-"`
}

// Failed reports whether the dispatch returned an error. It also holds for
// an outcome decoded from JSON, which only carries the message.
func (o Outcome) Failed() bool {
	return o.Err != nil || o.Error != ""
}

func newOutcome[T any](evt *Event[T], started time.Time, err error) Outcome {
	results := evt.ctx.results
	o := Outcome{
		EventID:     evt.ID(),
		EventType:   evt.Type(),
		ContentType: evt.ContentType().String(),
		Depth:       evt.Depth(),
		Steps:       make([]Step, len(results)),
		Completed:   evt.IsComplete(),
		StartedAt:   started,
		Duration:    time.Since(started),
		Properties:  evt.Properties(),
		Err:         err,
	}
	if p := evt.Parent(); p != nil {
		o.ParentID = p.ID()
	}
	for i, r := range results {
		o.Steps[i] = Step{
			Processor: r.Processor,
			Order:     r.Order,
			Sequence:  r.Sequence,
			Timestamp: r.Timestamp,
		}
	}
	if err != nil {
		o.Error = err.Error()
		o.ErrorCategory = ecerrors.Categorize(err).String()
		var perr *ProcessorError
		if errors.As(err, &perr) {
			o.FailedProcessor = perr.Processor
		}
	}
	return o
}

// Listener observes finished dispatches.
type Listener interface {
	OnDispatched(ctx context.Context, outcome Outcome) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, outcome Outcome) error

// OnDispatched calls f.
func (f ListenerFunc) OnDispatched(ctx context.Context, outcome Outcome) error {
	return f(ctx, outcome)
}

// Manager is the entry point callers submit events to. It delegates to a
// Service and reports every dispatch to its listeners.
type Manager struct {
	service   *Service
	listeners []Listener
	logger    *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithListener adds a listener. Listeners run in the order added, after the
// chain finished, on the dispatching goroutine.
func WithListener(l Listener) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.listeners = append(m.listeners, l)
		}
	}
}

// WithManagerLogger sets the logger for listener failures. Nil disables it.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a manager over s.
func NewManager(s *Service, opts ...ManagerOption) (*Manager, error) {
	if s == nil {
		return nil, configError("NewManager", ErrNilService)
	}

	m := &Manager{
		service: s,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Service returns the service the manager delegates to.
func (m *Manager) Service() *Service {
	return m.service
}

type managerKey struct{}

// ContextWithManager returns a copy of ctx carrying m.
func ContextWithManager(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, managerKey{}, m)
}

// ManagerFromContext returns the manager dispatching the current chain, or nil.
func ManagerFromContext(ctx context.Context) *Manager {
	if ctx == nil {
		return nil
	}
	m, _ := ctx.Value(managerKey{}).(*Manager)
	return m
}

// Dispatch runs evt through the processor chain and returns its context.
//
// The returned context is non-nil for any non-nil event. When a processor
// fails it holds the results recorded before the failure.
//
// A processor's error comes back wrapped in *ProcessorError, which names the
// failing processor and unwraps to the original. Compare with errors.Is or
// errors.As; err == sentinel does not hold.
func Dispatch[T any](ctx context.Context, m *Manager, evt *Event[T]) (*EventContext[T], error) {
	if m == nil {
		return nil, configError("Dispatch", ErrNilManager)
	}
	if ctx == nil {
		return nil, configError("Dispatch", ErrNilContext)
	}
	if evt == nil {
		return nil, configError("Dispatch", ErrNilEvent)
	}

	started := time.Now()
	final, err := Process(ContextWithManager(ctx, m), m.service, evt)
	if final == nil {
		final = evt
	}

	m.notify(context.WithoutCancel(ctx), newOutcome(final, started, err))
	return final.Context(), err
}

// DispatchChild dispatches child as a consequence of parent, through the
// manager running the current chain. The child's depth is checked against
// the service's limit before any of its processors run.
//
//	func(ctx context.Context, evt *eventchain.Event[*User]) (*eventchain.Event[*User], error) {
//	    child, _ := eventchain.NewEvent(eventchain.Update, contractFor(evt.Content()))
//	    if _, err := eventchain.DispatchChild(ctx, evt, child); err != nil {
//	        return nil, err
//	    }
//	    return evt, nil
//	}
func DispatchChild[T any](ctx context.Context, parent Envelope, child *Event[T]) (*EventContext[T], error) {
	m := ManagerFromContext(ctx)
	if m == nil {
		return nil, configError("DispatchChild", ErrNoManager)
	}
	if child == nil {
		return nil, configError("DispatchChild", ErrNilEvent)
	}
	if parent != nil {
		child.linkParent(parent)
	}
	return Dispatch(ctx, m, child)
}

func (m *Manager) notify(ctx context.Context, outcome Outcome) {
	for _, l := range m.listeners {
		if err := l.OnDispatched(ctx, outcome); err != nil {
			observability.LogListenerError(m.logger, outcome.EventID, err)
		}
	}
}
