package testutil

import (
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/choreo/internal/value"
)

// StepCall is one recorded step invocation.
type StepCall struct {
	// Seq is the 1-based position of the call in the log.
	Seq  int64
	PID  int
	Step string
	Args []value.Value
}

// String renders the call as "pid:step(args)".
func (c StepCall) String() string {
	return fmt.Sprintf("%d:%s%s", c.PID, c.Step, value.Format(value.Args(c.Args...)))
}

// StepLog records step invocations in the order they happen. Procedures under
// test call Record at the top of their Step method.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepLog struct {
	mu    sync.Mutex
	seq   int64
	calls []StepCall
}

// NewStepLog creates an empty log.
func NewStepLog() *StepLog {
	return &StepLog{}
}

// Record appends a call and returns its sequence number.
func (l *StepLog) Record(pid int, step string, args []value.Value) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.calls = append(l.calls, StepCall{
		Seq:  l.seq,
		PID:  pid,
		Step: step,
		Args: slices.Clone(args),
	})
	return l.seq
}

// Calls returns a copy of every recorded call.
func (l *StepLog) Calls() []StepCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.calls)
}

// Steps returns the recorded step names, in order.
func (l *StepLog) Steps() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	steps := make([]string, len(l.calls))
	for i, c := range l.calls {
		steps[i] = c.Step
	}
	return steps
}

// Count returns how many times step was invoked.
func (l *StepLog) Count(step string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		if c.Step == step {
			n++
		}
	}
	return n
}

// Reset empties the log. The next Record returns 1.
func (l *StepLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq = 0
	l.calls = nil
}
