package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyConnected is returned when Connect is called twice
	ErrAlreadyConnected = errors.New("already connected")

	// ErrConnectionClosed is returned when Connect is called after Close
	ErrConnectionClosed = errors.New("connection closed")

	// ErrFrameTooLarge is returned when a single event line exceeds the
	// decoder's size limit
	ErrFrameTooLarge = errors.New("event frame exceeds size limit")
)

// ConnectionError represents a failure in the underlying HTTP stream
type ConnectionError struct {
	Message string
	Cause   error
}

func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("stream connection error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("stream connection error: %s", e.Message)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// HTTPStatusError represents a non-2xx response from the runtime
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("runtime returned HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("runtime returned HTTP %d", e.StatusCode)
}
