package xero

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimitExceeded is returned when the API rate limit was hit and the
	// limit is not one that can be waited out (anything other than the
	// per-minute limit).
	ErrRateLimitExceeded = errors.New("rate limit exceeded (retry not possible)")

	// ErrMissingCredentials is returned when the client is built without an
	// access token or tenant ID.
	ErrMissingCredentials = errors.New("missing Xero credentials: set XERO_ACCESS_TOKEN and XERO_TENANT_ID")
)

// ConnectionError means the API could not be reached, or could not be reached
// in a way that retrying would help. The request may or may not have been
// processed remotely.
type ConnectionError struct {
	// Op is the request that failed (e.g. "POST Invoices").
	Op string

	// Err is the underlying transport error.
	Err error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("xero: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// APIError means the API answered and rejected the request.
type APIError struct {
	// Status is the HTTP status code of the response.
	Status int

	// Message is a human readable description, built from the JSON error
	// body when there is one.
	Message string

	// Body is the raw response body.
	Body string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("[%d] %s", e.Status, e.Message)
}

// IsConnectionError reports whether err is, or wraps, a ConnectionError
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// IsAPIError reports whether err is, or wraps, an APIError
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
