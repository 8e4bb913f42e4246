package sched

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateRequestID reports a Submit with an explicit id that is
	// already known to the scheduler.
	ErrDuplicateRequestID = errors.New("sched: duplicate request id")

	// ErrAlreadyRunning reports a nested or concurrent Run on one scheduler.
	ErrAlreadyRunning = errors.New("sched: run cycle already in progress")

	// ErrInvalidConfiguration reports a concurrency limit below 1.
	ErrInvalidConfiguration = errors.New("sched: concurrency limit must be >= 1")

	// ErrRequestNotFound reports a lookup for an id the scheduler does not
	// know, including ids discarded by Reset.
	ErrRequestNotFound = errors.New("sched: request not found")

	// ErrInternalConsistency signals a scheduler invariant violation, such
	// as restarting a terminated task. It is a programming bug, not a
	// recoverable condition; the scheduler panics with it.
	ErrInternalConsistency = errors.New("sched: internal consistency violation")
)

// TaskError wraps the failure of one request's operation. It surfaces only
// through that request's handle or GetResult; it never aborts sibling
// requests or the run cycle.
type TaskError struct {
	ID  string
	Err error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("sched: request %s failed: %v", e.ID, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }
