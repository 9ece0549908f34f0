// Package apperr defines the error kinds shared across the bridge.
//
// Every failure from an external endpoint is converted to one of these at
// the client/adapter boundary; nothing above that layer inspects HTTP
// status codes or raw response bodies.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports an absent deck, note type, note id, or media file.
	ErrNotFound = errors.New("not found")
	// ErrNoCredential reports a missing API key for an optional capability.
	ErrNoCredential = errors.New("credential not configured")
	// ErrInvalidInput reports malformed caller parameters, detected before
	// any external call is attempted.
	ErrInvalidInput = errors.New("invalid input")
)

// StoreError carries a non-null error field returned by AnkiConnect.
type StoreError struct {
	Action  string
	Message string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("anki %s: %s", e.Action, e.Message)
}

// TransportError reports an unreachable endpoint or a non-2xx response.
type TransportError struct {
	Endpoint string
	Status   int
	Cause    error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s unreachable: %v", e.Endpoint, e.Cause)
	}
	return fmt.Sprintf("%s returned status %d", e.Endpoint, e.Status)
}

func (e *TransportError) Unwrap() error { return e.Cause }
