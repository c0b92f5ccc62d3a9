package index

import (
	"errors"
	"fmt"
)

// ErrTruncatedStream is returned when a stream ends before its end marker.
var ErrTruncatedStream = errors.New("index: event stream truncated before end marker")

// ErrEventAfterEnd is returned when an event follows the end marker.
var ErrEventAfterEnd = errors.New("index: event after end marker")

// IdentityConflictError reports a USR observed with two different kinds.
type IdentityConflictError struct {
	USR      string
	Existing Kind
	Got      Kind
}

func (e *IdentityConflictError) Error() string {
	return fmt.Sprintf("index: identity conflict: usr %q resolved as %s, got %s", e.USR, e.Existing, e.Got)
}

// EventError attributes a build failure to the event at stream index Seq.
type EventError struct {
	Seq int
	Err error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("index: event %d: %v", e.Seq, e.Err)
}

func (e *EventError) Unwrap() error {
	return e.Err
}
