package eventchain

import (
	"errors"
	"fmt"

	ecerrors "github.com/randalmurphal/eventchain/pkg/eventchain/errors"
)

// Sentinel errors for wiring and invocation mistakes.
var (
	// ErrNilProcessors indicates NewRegistry was given a nil registration list.
	ErrNilProcessors = errors.New("processor list is nil")

	// ErrNilProcessor indicates a nil processor inside the registration list.
	ErrNilProcessor = errors.New("processor is nil")

	// ErrDuplicateProcessor indicates two processors registered under one name.
	ErrDuplicateProcessor = errors.New("duplicate processor name")

	// ErrNilRegistry indicates NewService was given a nil registry.
	ErrNilRegistry = errors.New("registry is nil")

	// ErrNilService indicates a nil service was used for processing.
	ErrNilService = errors.New("service is nil")

	// ErrNilManager indicates a nil manager was used for dispatch.
	ErrNilManager = errors.New("manager is nil")

	// ErrNoManager indicates DispatchChild was called outside a dispatch.
	ErrNoManager = errors.New("no manager in context")

	// ErrNilEvent indicates a nil event was submitted.
	ErrNilEvent = errors.New("event is nil")

	// ErrNilContext indicates processing was started with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrEmptyEventType indicates an event was built without a type.
	ErrEmptyEventType = errors.New("event type is empty")

	// ErrNilContent indicates an attempt to carry nil content in an event.
	ErrNilContent = errors.New("event content is nil")

	// ErrOriginalContentType indicates an original snapshot of the wrong type.
	ErrOriginalContentType = errors.New("original content has wrong type")
)

// Sentinel errors for chain execution.
var (
	// ErrMaxDepth indicates nested child dispatches exceeded the configured limit.
	ErrMaxDepth = errors.New("exceeded maximum event depth")

	// ErrNilResult indicates a processor returned a nil event without an error.
	ErrNilResult = errors.New("processor returned nil event")

	// ErrEventTypeChanged indicates a processor returned an event of another type.
	ErrEventTypeChanged = errors.New("processor changed event type")
)

// ConfigurationError reports a wiring or invocation mistake. Retrying the
// same call cannot succeed.
type ConfigurationError struct {
	// Op is the operation that rejected its input (e.g. "NewRegistry").
	Op string
	// Err is the underlying sentinel or detail.
	Err error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("eventchain: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ErrorCategory marks configuration errors for retry decisions.
func (e *ConfigurationError) ErrorCategory() ecerrors.Category {
	return ecerrors.CategoryConfiguration
}

func configError(op string, err error) error {
	return &ConfigurationError{Op: op, Err: err}
}

// ProcessorError wraps an error returned by a processor with its chain position.
// The original error stays reachable through errors.Is and errors.As.
type ProcessorError struct {
	// EventID identifies the event being processed.
	EventID string
	// EventType is the type of that event.
	EventType EventType
	// Processor is the failing processor's name.
	Processor string
	// Order is the failing processor's order.
	Order int
	// Position is the 1-based position in the chain.
	Position int
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ProcessorError) Error() string {
	return fmt.Sprintf("event %s (%s): processor %s (order %d, position %d): %v",
		e.EventID, e.EventType, e.Processor, e.Order, e.Position, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ProcessorError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic raised inside a processor.
type PanicError struct {
	// Processor is the processor that panicked.
	Processor string
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("processor %s panicked: %v", e.Processor, e.Value)
}

// CancellationError reports a chain stopped because its context was done.
type CancellationError struct {
	// EventID identifies the event being processed.
	EventID string
	// NextProcessor is the processor that would have run next.
	NextProcessor string
	// Executed is the number of processors that had completed.
	Executed int
	// Cause is context.Canceled or context.DeadlineExceeded.
	Cause error
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	return fmt.Sprintf("event %s cancelled before processor %s after %d steps: %v",
		e.EventID, e.NextProcessor, e.Executed, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// DepthExceededError reports a child event nested deeper than allowed.
type DepthExceededError struct {
	// EventID identifies the rejected event.
	EventID string
	// EventType is the type of the rejected event.
	EventType EventType
	// Depth is the rejected event's depth.
	Depth int
	// Max is the configured limit.
	Max int
	// Chain lists event types from the root to the rejected event.
	Chain []EventType
}

// Error implements the error interface.
func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("event %s (%s) at depth %d exceeds maximum depth %d: chain %v",
		e.EventID, e.EventType, e.Depth, e.Max, e.Chain)
}

// Unwrap returns ErrMaxDepth for errors.Is support.
func (e *DepthExceededError) Unwrap() error {
	return ErrMaxDepth
}
