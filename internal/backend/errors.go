package backend

import (
	"errors"
	"fmt"
)

// ErrorClass categorizes a backend failure for the retry policy.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassRateLimited
	ClassOverloaded
	ClassBadRequest
	ClassAuth
)

func (c ErrorClass) String() string {
	switch c {
	case ClassRateLimited:
		return "rate_limited"
	case ClassOverloaded:
		return "overloaded"
	case ClassBadRequest:
		return "bad_request"
	case ClassAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Retryable reports whether retrying an error of this class can succeed.
// Only rate-limit and overload conditions clear up on their own; retrying
// anything else wastes quota and masks bugs.
func (c ErrorClass) Retryable() bool {
	return c == ClassRateLimited || c == ClassOverloaded
}

// TransientError is a retryable backend failure (rate-limited or overloaded).
type TransientError struct {
	Class ErrorClass
	Err   error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient backend error (%s): %v", e.Class, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError is a backend failure retrying cannot fix: malformed request,
// authentication, or an unclassified condition.
type FatalError struct {
	Class ErrorClass
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal backend error (%s): %v", e.Class, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// ExhaustedError is surfaced after the retry ceiling is hit on a retryable
// class. It carries the attempt count and the last underlying error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("backend retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// transient wraps err with a retryable class.
func transient(class ErrorClass, err error) error {
	return &TransientError{Class: class, Err: err}
}

// fatal wraps err with a non-retryable class.
func fatal(class ErrorClass, err error) error {
	return &FatalError{Class: class, Err: err}
}

// IsRetryable reports whether err is a transient backend error.
func IsRetryable(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
