package choreo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/choreo/internal/choreo"
	"github.com/roach88/choreo/internal/executor"
	"github.com/roach88/choreo/internal/kv/memkv"
	"github.com/roach88/choreo/internal/testutil"
	"github.com/roach88/choreo/internal/value"
)

// callAfterGate registers a parent whose start step blocks on gate and then
// calls child, and a child that completes with 42.
func callAfterGate(t *testing.T, c *choreo.Choreographer, entered chan<- struct{}, gate <-chan struct{}) {
	t.Helper()
	require.NoError(t, c.RegisterFunc("parent", func(p *choreo.Process, step string, args []value.Value) error {
		switch step {
		case "start":
			if entered != nil {
				entered <- struct{}{}
			}
			<-gate
			p.Call("child", "after")
		case "after":
			p.Done(args[0])
		}
		return nil
	}))
	require.NoError(t, c.RegisterFunc("child", func(p *choreo.Process, step string, args []value.Value) error {
		p.Done(value.Int(42))
		return nil
	}))
}

// waitStopped blocks until c rejects top-level starts.
func waitStopped(t *testing.T, c *choreo.Choreographer) {
	t.Helper()
	require.Eventually(t, func() bool {
		// Unregistered, so nothing starts whichever state c is in.
		_, err := c.StartProcedure(context.Background(), "unregistered")
		var cerr *choreo.Error
		return errors.As(err, &cerr) && cerr.Code == choreo.ErrCodeStopped
	}, testutil.DefaultWait, time.Millisecond)
}

func TestStop_DrainingStepMayCallSubProcedure(t *testing.T) {
	c := newChoreographer(memkv.New())
	entered := make(chan struct{}, 1)
	gate := make(chan struct{})
	callAfterGate(t, c, entered, gate)

	rec := testutil.NewRecorder()
	c.AddListener("parent", rec)
	c.AddFailureListener("parent", rec)
	start(t, c)

	pid, err := c.StartProcedure(context.Background(), "parent")
	require.NoError(t, err)
	<-entered

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()
	waitStopped(t, c)
	close(gate)
	<-stopped

	got := rec.Completions()
	require.Len(t, got, 1)
	assert.Equal(t, pid, got[0].PID)
	assert.Equal(t, value.Int(42), got[0].Result)
	assert.Empty(t, rec.Failures())
	assert.Empty(t, c.Processes())
}

func TestStop_CallAfterExecutorClosedResumesOnNextStart(t *testing.T) {
	store := memkv.New()
	exec := executor.NewGo()
	first := newChoreographer(store, choreo.WithExecutor(exec))
	entered := make(chan struct{}, 1)
	gate := make(chan struct{})
	callAfterGate(t, first, entered, gate)

	failed := testutil.NewRecorder()
	first.AddFailureListener("parent", failed)
	start(t, first)

	parentPID, err := first.StartProcedure(context.Background(), "parent")
	require.NoError(t, err)
	<-entered

	stopped := make(chan struct{})
	go func() {
		first.Stop()
		close(stopped)
	}()
	waitStopped(t, first)

	closed := make(chan struct{})
	go func() {
		_ = exec.Close()
		close(closed)
	}()
	require.Eventually(t, func() bool {
		return errors.Is(exec.Submit(func() {}), executor.ErrClosed)
	}, testutil.DefaultWait, time.Millisecond)

	close(gate)
	<-stopped
	<-closed

	assert.Empty(t, failed.Failures())
	infos := first.Processes()
	require.Len(t, infos, 2)
	require.NotNil(t, infos[0].WaitingOn)
	childPID := *infos[0].WaitingOn
	assert.Equal(t, "after", infos[0].Continuation)
	assert.ElementsMatch(t, []int{parentPID, childPID}, persistedPIDs(t, store))

	// Next host.
	second := newChoreographer(store, inline())
	callAfterGate(t, second, nil, gate)
	rec := testutil.NewRecorder()
	second.AddListener("parent", rec)
	start(t, second)

	got := rec.Completions()
	require.Len(t, got, 1)
	assert.Equal(t, parentPID, got[0].PID)
	assert.Equal(t, value.Int(42), got[0].Result)
	assert.Empty(t, second.Processes())
	assert.Empty(t, persistedPIDs(t, store))
}
