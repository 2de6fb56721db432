package choreo

import (
	"github.com/roach88/choreo/internal/value"
)

// Procedure is step-based business logic registered under a name.
//
// Step is called with the process, the name of the step being entered and
// its arguments. The first step of every process is "start". Before Step
// returns it should do exactly one of:
//
//   - p.Step(next, args...) to advance
//   - p.Call(sub, cont, args...) to run a sub-procedure and resume at cont
//   - p.Done(result) to complete
//   - p.Fail(err), or return a non-nil error, or panic, to fail
//
// Returning without any of these leaves the process parked at the current
// step until the next Start replays it.
//
// A step may run more than once with the same arguments (after a crash), so
// its side effects must be idempotent.
type Procedure interface {
	Step(p *Process, step string, args []value.Value) error
}

// ProcedureFunc adapts a function to the Procedure interface.
type ProcedureFunc func(p *Process, step string, args []value.Value) error

// Step implements Procedure.
func (f ProcedureFunc) Step(p *Process, step string, args []value.Value) error {
	return f(p, step, args)
}

// Listener is notified when a process running a procedure completes.
// It is called once per completed process, after the process has been
// removed from the live set, and never for a failed process.
type Listener interface {
	ProcedureCompleted(procedure string, pid int, result value.Value)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(procedure string, pid int, result value.Value)

// ProcedureCompleted implements Listener.
func (f ListenerFunc) ProcedureCompleted(procedure string, pid int, result value.Value) {
	f(procedure, pid, result)
}

// FailureListener is notified when a process running a procedure fails.
// Top-level processes have no parent to receive their failure, so this is
// the only caller-visible failure signal for them.
type FailureListener interface {
	ProcedureFailed(procedure string, pid int, err error)
}

// FailureListenerFunc adapts a function to the FailureListener interface.
type FailureListenerFunc func(procedure string, pid int, err error)

// ProcedureFailed implements FailureListener.
func (f FailureListenerFunc) ProcedureFailed(procedure string, pid int, err error) {
	f(procedure, pid, err)
}
