package main

import "fmt"

// Error taxonomy crossing the control-plane boundary. Everything else stays
// an ordinary wrapped error and is logged, never surfaced to IPC clients.

// ValidationError reports rejected profile/schedule/override data. The
// offending change is never partially applied.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// NotFoundError reports a reference to a profile or schedule entry that does
// not exist.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string { return e.What + " not found" }

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
