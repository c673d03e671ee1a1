// Package errors defines unified error types for language-model backend calls.
// Backend-specific failures are mapped to these standard types so the retry
// manager and breaker can classify them uniformly.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// BackendError represents a standardized error from the language-model backend.
type BackendError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Backend    string `json:"backend"`
	Retryable  bool   `json:"-"`
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("[%s] %s (backend=%s, code=%d)",
		e.Type, e.Message, e.Backend, e.StatusCode)
}

// HTTPStatusCode returns the appropriate HTTP status code for the error.
func (e *BackendError) HTTPStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// Common error types as constants for consistency.
const (
	TypeAuthentication     = "authentication_error"
	TypeRateLimit          = "rate_limit_error"
	TypeInvalidRequest     = "invalid_request_error"
	TypeTimeout            = "timeout_error"
	TypeConnection         = "connection_error"
	TypeServiceUnavailable = "service_unavailable_error"
	TypeInternalError      = "internal_error"
	TypeMalformedResponse  = "malformed_response_error"
)

func newError(status int, typ, backend, message string, retryable bool) *BackendError {
	return &BackendError{
		StatusCode: status,
		Message:    message,
		Type:       typ,
		Backend:    backend,
		Retryable:  retryable,
	}
}

// NewAuthenticationError creates an authentication error (401).
func NewAuthenticationError(backend, message string) *BackendError {
	return newError(http.StatusUnauthorized, TypeAuthentication, backend, message, false)
}

// NewRateLimitError creates a rate limit error (429).
func NewRateLimitError(backend, message string) *BackendError {
	return newError(http.StatusTooManyRequests, TypeRateLimit, backend, message, true)
}

// NewInvalidRequestError creates an invalid request error (400).
func NewInvalidRequestError(backend, message string) *BackendError {
	return newError(http.StatusBadRequest, TypeInvalidRequest, backend, message, false)
}

// NewTimeoutError creates a timeout error (408).
func NewTimeoutError(backend, message string) *BackendError {
	return newError(http.StatusRequestTimeout, TypeTimeout, backend, message, true)
}

// NewConnectionError creates a connection failure error (502).
func NewConnectionError(backend, message string) *BackendError {
	return newError(http.StatusBadGateway, TypeConnection, backend, message, true)
}

// NewServiceUnavailableError creates a service unavailable error (503).
func NewServiceUnavailableError(backend, message string) *BackendError {
	return newError(http.StatusServiceUnavailable, TypeServiceUnavailable, backend, message, true)
}

// NewInternalError creates a backend internal error (500). Backend 5xx
// responses are retryable.
func NewInternalError(backend, message string) *BackendError {
	return newError(http.StatusInternalServerError, TypeInternalError, backend, message, true)
}

// NewMalformedResponseError reports a payload that is an error in disguise.
func NewMalformedResponseError(backend, message string) *BackendError {
	return newError(http.StatusBadGateway, TypeMalformedResponse, backend, message, false)
}

// FromStatus maps an HTTP-like status code to a BackendError.
func FromStatus(backend string, statusCode int, message string) *BackendError {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return NewAuthenticationError(backend, message)
	case statusCode == http.StatusTooManyRequests:
		return NewRateLimitError(backend, message)
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return NewTimeoutError(backend, message)
	case statusCode == http.StatusServiceUnavailable || statusCode == http.StatusBadGateway:
		return NewServiceUnavailableError(backend, message)
	case statusCode >= 500:
		return NewInternalError(backend, message)
	default:
		return NewInvalidRequestError(backend, message)
	}
}

// IsRetryable classifies an error returned by a single backend attempt.
// Timeouts, connection resets and 5xx-equivalents are retryable; malformed
// input, auth failures and caller cancellation are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var be *BackendError
	if stderrors.As(err, &be) {
		return be.Retryable
	}

	if stderrors.Is(err, context.Canceled) {
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if stderrors.Is(err, syscall.ECONNRESET) ||
		stderrors.Is(err, syscall.ECONNREFUSED) ||
		stderrors.Is(err, syscall.EPIPE) ||
		stderrors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	return stderrors.As(err, &opErr)
}

// IsTimeout reports whether err represents a backend timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var be *BackendError
	if stderrors.As(err, &be) {
		return be.Type == TypeTimeout
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}
