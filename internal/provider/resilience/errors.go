package resilience

import (
	"errors"
	"fmt"
	"net/http"
)

// Predefined errors for resilient operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrMaxRetriesExceeded is the cause recorded when all attempts ended in
	// retriable statuses.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// TransportError reports a call that could not complete after exhausting
// retries: connection failures, timeouts, retriable statuses, or an open circuit.
type TransportError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure calling %s after %d attempt(s): %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ClientError reports a non-retriable HTTP status.
type ClientError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%s returned %d %s: %s", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// ParseError reports a response body that could not be decoded.
type ParseError struct {
	Endpoint string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("decoding response from %s: %v", e.Endpoint, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StatusError is a retriable HTTP status (429 or a retriable 5xx).
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("retriable status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsRetriableStatus reports whether a status is worth retrying.
func IsRetriableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
