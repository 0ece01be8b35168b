// Package errors provides error categorization and retry helpers for code
// that dispatches entity events.
//
// The dispatch engine never retries on its own. Callers that want retries
// layer WithRetryContext on top of a dispatch, and the category of the
// returned error decides whether another attempt is worthwhile:
//   - Transient: a conflicting write or a timeout, retry may help
//   - Validation: a processor rejected the entity, retry will not help
//   - Configuration: the engine was wired or invoked incorrectly
//   - Permanent: anything else
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: optimistic lock conflicts, timeouts.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry won't help.
	CategoryPermanent

	// CategoryValidation indicates a processor rejected the event content.
	CategoryValidation

	// CategoryConfiguration indicates the engine was set up or called incorrectly.
	CategoryConfiguration
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryValidation:
		return "validation"
	case CategoryConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Categorizer is implemented by errors that know their own category.
type Categorizer interface {
	ErrorCategory() Category
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Category indicates how this error should be handled.
	Category Category

	// Retries is the number of attempts that have been made.
	Retries int

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Context, e.Err, e.Category, e.Retries)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)",
		e.Err, e.Category, e.Retries)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// NewCategorized creates a new categorized error.
func NewCategorized(err error, category Category, context string) *CategorizedError {
	return &CategorizedError{
		Err:      err,
		Category: category,
		Context:  context,
	}
}

// Transient creates a transient error.
func Transient(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryTransient, context)
}

// Permanent creates a permanent error.
func Permanent(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryPermanent, context)
}

// Categorize determines how an error should be handled.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent // shouldn't happen, fail safe
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return CategoryValidation
	}

	var conflictErr *ConflictError
	if errors.As(err, &conflictErr) {
		return CategoryTransient
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return CategoryTransient
	}

	var c Categorizer
	if errors.As(err, &c) {
		return c.ErrorCategory()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}

	// Unknown errors are permanent (fail safe)
	return CategoryPermanent
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}

// IsValidation reports whether a processor rejected the event content.
func IsValidation(err error) bool {
	return Categorize(err) == CategoryValidation
}
