package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnconfiguredEvent     = errors.New("event is not configured")
	ErrUnknownEvent          = errors.New("unknown event")
	ErrDuplicateEventName    = errors.New("event name already configured")
	ErrDuplicateListenerName = errors.New("listener name already registered")
	ErrListenerTimeout       = errors.New("listener execution timed out")
	ErrAwaitInExternalTx     = errors.New("cannot await dispatch inside an external unit of work")
	ErrRecordNotFound        = errors.New("outbox record not found")
)

type (
	// ListenerTimeoutError reports a listener that exceeded the event's
	// max execution time.
	ListenerTimeoutError struct {
		ListenerName string
		EventName    string
		Timeout      time.Duration
	}

	// ListenerPanicError wraps a panic recovered from a listener or a
	// middleware so it surfaces as a regular delivery failure.
	ListenerPanicError struct {
		ListenerName string
		Value        any
	}
)

func (e *ListenerTimeoutError) Error() string {
	return fmt.Sprintf("listener %q timed out after %s handling %q", e.ListenerName, e.Timeout, e.EventName)
}

func (e *ListenerTimeoutError) Unwrap() error {
	return ErrListenerTimeout
}

func (e *ListenerPanicError) Error() string {
	return fmt.Sprintf("listener %q panicked: %v", e.ListenerName, e.Value)
}
