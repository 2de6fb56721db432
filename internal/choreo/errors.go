package choreo

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeUnknownProcedure indicates a start request named an unregistered procedure.
	ErrCodeUnknownProcedure ErrorCode = "UNKNOWN_PROCEDURE"

	// ErrCodeStepFailed indicates a procedure step returned an error or panicked,
	// or its step record could not be persisted.
	ErrCodeStepFailed ErrorCode = "STEP_FAILED"

	// ErrCodeChildFailed indicates a sub-procedure the process was waiting on failed.
	ErrCodeChildFailed ErrorCode = "CHILD_FAILED"

	// ErrCodeResumeFailed indicates a persisted process could not be reconstructed.
	ErrCodeResumeFailed ErrorCode = "RESUME_FAILED"

	// ErrCodeNotStarted indicates a procedure was started before Choreographer.Start.
	ErrCodeNotStarted ErrorCode = "NOT_STARTED"

	// ErrCodeStopped indicates a top-level procedure was started after
	// Choreographer.Stop.
	ErrCodeStopped ErrorCode = "STOPPED"

	// ErrCodeCallCycle indicates a sub-procedure call resolved to a live
	// process that is already waiting, directly or through its parents, on
	// the caller.
	ErrCodeCallCycle ErrorCode = "CALL_CYCLE"
)

// ErrChildLost is the cause reported to a resumed parent whose awaited child
// was not itself resumed (its record was missing or unreadable).
var ErrChildLost = errors.New("awaited child process was not resumed")

// Error is the engine's structured error.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// PID identifies the process concerned, or -1. For CHILD_FAILED it is the
	// child's pid.
	PID int

	// Procedure names the procedure concerned, if any.
	Procedure string

	// Step names the step that failed (STEP_FAILED only).
	Step string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)

	var ctx []string
	if e.PID >= 0 {
		ctx = append(ctx, fmt.Sprintf("pid=%d", e.PID))
	}
	if e.Procedure != "" {
		ctx = append(ctx, "procedure="+e.Procedure)
	}
	if e.Step != "" {
		ctx = append(ctx, "step="+e.Step)
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
	}

	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsUnknownProcedure reports whether err is an UNKNOWN_PROCEDURE error.
func IsUnknownProcedure(err error) bool { return hasCode(err, ErrCodeUnknownProcedure) }

// IsStepFailed reports whether err is a STEP_FAILED error.
func IsStepFailed(err error) bool { return hasCode(err, ErrCodeStepFailed) }

// IsChildFailed reports whether err is a CHILD_FAILED error.
func IsChildFailed(err error) bool { return hasCode(err, ErrCodeChildFailed) }

// IsResumeFailed reports whether err is a RESUME_FAILED error.
func IsResumeFailed(err error) bool { return hasCode(err, ErrCodeResumeFailed) }

// IsCallCycle reports whether err is a CALL_CYCLE error.
func IsCallCycle(err error) bool { return hasCode(err, ErrCodeCallCycle) }

// NewUnknownProcedureError creates an error for an unregistered procedure name.
func NewUnknownProcedureError(name string) *Error {
	return &Error{
		Code:      ErrCodeUnknownProcedure,
		Message:   "procedure not registered",
		PID:       -1,
		Procedure: name,
	}
}

// NewStepError wraps a failure raised while executing a step.
func NewStepError(pid int, procedure, step string, cause error) *Error {
	return &Error{
		Code:      ErrCodeStepFailed,
		Message:   "step execution failed",
		PID:       pid,
		Procedure: procedure,
		Step:      step,
		Cause:     cause,
	}
}

// NewChildFailedError wraps the failure of the child process childPID.
func NewChildFailedError(childPID int, procedure string, cause error) *Error {
	return &Error{
		Code:      ErrCodeChildFailed,
		Message:   "child process failed",
		PID:       childPID,
		Procedure: procedure,
		Cause:     cause,
	}
}

// NewResumeError reports a persisted process that could not be reconstructed.
func NewResumeError(pid int, cause error) *Error {
	return &Error{
		Code:    ErrCodeResumeFailed,
		Message: "could not reconstruct process",
		PID:     pid,
		Cause:   cause,
	}
}

// NewCallCycleError reports a call that would make the process wait on
// itself: joining pid would close a loop of waits.
func NewCallCycleError(pid int, procedure string) *Error {
	return &Error{
		Code:      ErrCodeCallCycle,
		Message:   "call would wait on its own caller",
		PID:       pid,
		Procedure: procedure,
	}
}

func newStateError(code ErrorCode, msg, procedure string) *Error {
	return &Error{Code: code, Message: msg, PID: -1, Procedure: procedure}
}
