package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrTurnActive is returned when a driver is invoked while another turn
	// is still open on the session
	ErrTurnActive = errors.New("a turn is already active for this session")

	// ErrInterruptionPending is returned when Send is invoked while the
	// session is waiting on a question or permission decision
	ErrInterruptionPending = errors.New("an interruption is pending; resolve it first")

	// ErrNoPendingQuestion is returned when AnswerQuestion is invoked
	// without a pending question
	ErrNoPendingQuestion = errors.New("no pending question to answer")

	// ErrNoPendingPermission is returned when a permission decision is
	// submitted without a pending permission request
	ErrNoPendingPermission = errors.New("no pending permission request")

	// ErrSessionNotAssigned is returned when an operation requires a
	// backend-assigned session id that has not arrived yet
	ErrSessionNotAssigned = errors.New("session id not yet assigned")
)

// EventParseError represents an error decoding an event payload
type EventParseError struct {
	Message string
	Data    []byte
	Cause   error
}

func (e *EventParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("event parse error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("event parse error: %s", e.Message)
}

func (e *EventParseError) Unwrap() error {
	return e.Cause
}
