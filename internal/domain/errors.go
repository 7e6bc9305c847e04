package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrParse signals a document that is not well-formed JSON.
	ErrParse = errors.New("malformed document")
	// ErrEmptyRuleSet signals a reconcile attempt with no desired rules.
	ErrEmptyRuleSet = errors.New("rule set is empty")
	// ErrInvalidConfig signals an invalid configuration value.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrClosed signals an operation on a closed pipeline.
	ErrClosed = errors.New("pipeline closed")
)

// RetryExhaustedError wraps the last transport error after the bulk retry
// limit has been reached. The batch it covers was not durably written.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("bulk write failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// ParseError wraps ErrParse with the underlying decode failure so callers
// can report why a document was rejected without reaching the store.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %v", ErrParse.Error(), e.Err)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// NewParseError creates a parse error.
func NewParseError(err error) error { return &ParseError{Err: err} }
