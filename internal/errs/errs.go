// Package errs defines the error taxonomy shared by every component: each
// kind knows whether the consumer/dispatcher retry loop is allowed to retry
// it, so callers never have to string-match error messages.
package errs

import "errors"

// Kind classifies an error for the consumer/dispatcher retry policy.
type Kind string

const (
	KindValidation  Kind = "VALIDATION"
	KindOptimistic  Kind = "OPTIMISTIC_LOCK_CONFLICT"
	KindConflict    Kind = "DOMAIN_CONFLICT"
	KindNotFound    Kind = "NOT_FOUND"
	KindTransient   Kind = "DOWNSTREAM_TRANSIENT"
	KindInternal    Kind = "INTERNAL"
)

// Error is a classified, wrapped error carrying a machine-readable code and
// whether it is safe to retry.
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Retriable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, code, message string, retriable bool, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Retriable: retriable, Err: cause}
}

// Validation builds a non-retriable validation error (4xx at the HTTP
// boundary, which lives outside this module).
func Validation(code, message string) *Error {
	return New(KindValidation, code, message, false, nil)
}

// OptimisticConflict builds a retriable row-version CAS failure.
func OptimisticConflict(message string) *Error {
	return New(KindOptimistic, "OPTIMISTIC_LOCK_CONFLICT", message, true, nil)
}

// NegativeStockBlocked builds the non-retriable domain conflict raised when
// a movement would drive on-hand stock below zero without an override.
func NegativeStockBlocked(message string) *Error {
	return New(KindConflict, "NEGATIVE_STOCK_BLOCKED", message, false, nil)
}

// NotFound builds a non-retriable not-found error.
func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message, false, nil)
}

// Transient wraps a downstream infrastructure error (broker/store) as
// retriable.
func Transient(message string, cause error) *Error {
	return New(KindTransient, "DOWNSTREAM_TRANSIENT", message, true, cause)
}

// Internal wraps an unhandled error; retriable at the consumer level up to
// its retry cap.
func Internal(message string, cause error) *Error {
	return New(KindInternal, "INTERNAL", message, true, cause)
}

// IsRetriable reports whether err (or one of the errors it wraps) is marked
// retriable. Unclassified errors default to retriable: an unhandled bug is
// retriable at the consumer level up to the retry cap.
func IsRetriable(err error) bool {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Retriable
	}
	return true
}
