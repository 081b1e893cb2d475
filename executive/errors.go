package executive

import (
	"errors"
	"fmt"
)

// InvalidScheduleError is returned when an event is requested for a time
// earlier than the executive's current clock.
type InvalidScheduleError struct {
	Now     Time
	When    Time
	Message string
}

func (e *InvalidScheduleError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("executive: cannot schedule event at %v, now is %v", e.When, e.Now)
}

// InvalidStateError is returned when an operation is forbidden in the
// executive's current run state.
type InvalidStateError struct {
	State   RunState
	Op      string
	Message string
}

func (e *InvalidStateError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("executive: operation %q invalid in state %s", e.Op, e.State)
}

// IllegalCrossExecCallError is returned when a traced value owned by a
// serial-only executive is accessed from another executive.
type IllegalCrossExecCallError struct {
	Owner string
	Caller string
}

func (e *IllegalCrossExecCallError) Error() string {
	return fmt.Sprintf("executive: illegal cross-executive call: %q accessed by %q, owner is not parallel-capable", e.Owner, e.Caller)
}

// OwnerTerminatedError is returned when a blocked cross-executive operation
// cannot complete because the owning executive has finished.
type OwnerTerminatedError struct {
	Owner string
}

func (e *OwnerTerminatedError) Error() string {
	return fmt.Sprintf("executive: owner %q terminated before call could complete", e.Owner)
}

// AbortedError is returned when a blocked call is released by Abort.
type AbortedError struct {
	Executive string
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("executive: %q aborted", e.Executive)
}

// EventCallbackFailedError wraps a panic or error raised inside a user event
// callback. It is surfaced via the EventHasCompleted/ExecutiveErrored
// signals and never propagates across executives.
type EventCallbackFailedError struct {
	EventID EventID
	Cause   any
}

func (e *EventCallbackFailedError) Error() string {
	return fmt.Sprintf("executive: event %d callback failed: %v", e.EventID, e.Cause)
}

func (e *EventCallbackFailedError) Unwrap() error {
	if err, ok := e.Cause.(error); ok {
		return err
	}
	return nil
}

// RollbackFailedError is a diagnostic raised by the co-executor when an
// owner could not reach a safe point within a bounded wait. Not expected in
// normal operation.
type RollbackFailedError struct {
	Executive string
	Message   string
}

func (e *RollbackFailedError) Error() string {
	return fmt.Sprintf("executive: rollback of %q failed: %s", e.Executive, e.Message)
}

// Sentinel errors for simple, non-parameterized cases.
var (
	// ErrAlreadyRunning is returned by Start when called twice.
	ErrAlreadyRunning = errors.New("executive: already running")
	// ErrNotRunning is returned by operations that require a running executive.
	ErrNotRunning = errors.New("executive: not running")
	// ErrNoCoordinator is returned when a cross-executive operation is
	// attempted on an executive that was never handed to a co-executor.
	ErrNoCoordinator = errors.New("executive: no coordinator configured")
)
