// Package choreo implements the choreography engine: durable, resumable
// execution of multi-step procedures.
//
// ARCHITECTURE:
//
// A Procedure is application code registered under a name. Each invocation of
// a procedure runs as a Process identified by a pid. A process advances
// through named steps; before a step's body runs, the step name and its
// arguments are written to the process's private namespace in the durable
// store ("process.<pid>"). If the host dies mid-step, the next Start replays
// that same step with the same arguments. Steps therefore execute at least
// once, never exactly once, and procedures must tolerate replay.
//
// A process may call a sub-procedure and park until it finishes. The parent
// records {child pid, continuation step} and returns; it holds no goroutine
// while waiting. When the child completes, the parent re-enters at the
// continuation step with the child's result as its only argument. When the
// child fails, the parent fails with a CHILD_FAILED error wrapping the cause.
//
// Equivalent concurrent invocations (same name, canonically equal arguments)
// are folded onto one live process and share its pid.
//
// CONCURRENCY:
//
// The Choreographer's bookkeeping (live processes, identity index, waiting
// parents, pid counter) sits behind a single mutex. Procedure code never runs
// while that mutex is held. Work is either run on the caller's goroutine
// (RunProcedure, and continuation steps, which run on the goroutine of the
// child that completed) or handed to an executor.Executor.
//
// DURABLE LAYOUT:
//
//	choreographer/pids            JSON list of live pids
//	process.<pid>/procedureName   registered procedure name
//	process.<pid>/procedureIdentity
//	process.<pid>/flow            flow token shared with sub-procedures
//	process.<pid>/$step           {"step": ..., "args": [...]}
//	process.<pid>/$wait           {"pid": ..., "cont": ...}
//
// Processes have no time-to-live. A process that never finishes stays in the
// pid set, and is resumed on every Start, until it completes or fails.
package choreo
