package testutil

import (
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/choreo/internal/value"
)

// DefaultWait bounds how long the wait helpers poll.
const DefaultWait = 5 * time.Second

// Completion is one recorded completion notification.
type Completion struct {
	Procedure string
	PID       int
	Result    value.Value
}

// Failure is one recorded failure notification.
type Failure struct {
	Procedure string
	PID       int
	Err       error
}

// Recorder collects completion and failure notifications. It satisfies both
// choreo.Listener and choreo.FailureListener.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Recorder struct {
	mu          sync.Mutex
	completions []Completion
	failures    []Failure
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// ProcedureCompleted records a completion.
func (r *Recorder) ProcedureCompleted(procedure string, pid int, result value.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completions = append(r.completions, Completion{Procedure: procedure, PID: pid, Result: result})
}

// ProcedureFailed records a failure.
func (r *Recorder) ProcedureFailed(procedure string, pid int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, Failure{Procedure: procedure, PID: pid, Err: err})
}

// Completions returns a copy of the recorded completions.
func (r *Recorder) Completions() []Completion {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.completions)
}

// Failures returns a copy of the recorded failures.
func (r *Recorder) Failures() []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.failures)
}

// WaitCompletions blocks until at least n completions were recorded and
// returns them. The test fails after DefaultWait.
func (r *Recorder) WaitCompletions(t testing.TB, n int) []Completion {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(r.Completions()) >= n
	}, DefaultWait, time.Millisecond, "waiting for %d completions", n)
	return r.Completions()
}

// WaitFailures blocks until at least n failures were recorded and returns
// them. The test fails after DefaultWait.
func (r *Recorder) WaitFailures(t testing.TB, n int) []Failure {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(r.Failures()) >= n
	}, DefaultWait, time.Millisecond, "waiting for %d failures", n)
	return r.Failures()
}
