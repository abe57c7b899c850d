package executor

import (
	"context"
	"errors"
	"fmt"

	"xeroexport/internal/xero"
)

// Errors raised by the executor itself rather than by the ledger
var (
	// ErrMissingPrerequisite is returned when a task runs before the task it
	// depends on has completed.
	ErrMissingPrerequisite = errors.New("prerequisite task has not completed")

	// ErrTaxRateUnavailable is returned when no tax rate could be found or
	// created for a group of lines.
	ErrTaxRateUnavailable = errors.New("could not determine tax rate")

	// ErrIncompleteExport is returned when the export lacks a field that
	// remote documents need.
	ErrIncompleteExport = errors.New("export is incomplete")

	// ErrEmptyResponse is returned when the ledger accepted a request but
	// returned no record.
	ErrEmptyResponse = errors.New("ledger returned no record")

	// ErrUnknownTask is returned by RunTask for names outside the task sequence.
	ErrUnknownTask = errors.New("unknown task")

	// ErrTaskNameCollision is returned when two groups of one task would be
	// recorded under the same name.
	ErrTaskNameCollision = errors.New("task names collide")
)

// Kinds recorded on failed tasks
const (
	ErrorKindConnection = "connection"
	ErrorKindAPI        = "api"
	ErrorKindDomain     = "domain"
	ErrorKindInternal   = "internal"
)

// DomainError wraps a sequencing or resolution failure with the operation
// that raised it.
type DomainError struct {
	// Op is the task or resolver step that failed (e.g. "create_invoice_payment").
	Op string

	// Err is one of the sentinel errors above.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("executor: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("executor: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *DomainError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, details string) *DomainError {
	return &DomainError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// IsDomainError reports whether err is, or wraps, a DomainError
func IsDomainError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr)
}

// ErrorKind classifies an error for the task record
func ErrorKind(err error) string {
	switch {
	case xero.IsConnectionError(err), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorKindConnection
	case xero.IsAPIError(err):
		return ErrorKindAPI
	case IsDomainError(err):
		return ErrorKindDomain
	default:
		return ErrorKindInternal
	}
}
