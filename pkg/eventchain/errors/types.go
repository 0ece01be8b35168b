package errors

import "fmt"

// ValidationError indicates a processor rejected the entity it was given.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ConflictError indicates a concurrent modification of the same entity.
type ConflictError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting update of %s %s", e.Entity, e.ID)
}

// TimeoutError indicates an operation timed out.
type TimeoutError struct {
	Operation string
	Duration  string
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Duration, e.Operation)
}
