package procedures

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/choreo/internal/choreo"
	"github.com/roach88/choreo/internal/executor"
	"github.com/roach88/choreo/internal/kv/memkv"
	"github.com/roach88/choreo/internal/testutil"
	"github.com/roach88/choreo/internal/value"
)

func setup(t *testing.T) (*choreo.Choreographer, *testutil.Recorder) {
	t.Helper()
	c := choreo.New(memkv.New(),
		choreo.WithExecutor(executor.Inline{}),
		choreo.WithLogger(slog.New(slog.DiscardHandler)),
	)
	require.NoError(t, Register(c))

	rec := testutil.NewRecorder()
	for _, name := range c.Procedures() {
		c.AddListener(name, rec)
		c.AddFailureListener(name, rec)
	}
	require.NoError(t, c.Start(context.Background()))
	return c, rec
}

func run(t *testing.T, c *choreo.Choreographer, rec *testutil.Recorder, name string, args ...value.Value) testutil.Completion {
	t.Helper()
	pid, err := c.RunProcedure(context.Background(), name, args...)
	require.NoError(t, err)
	require.Empty(t, rec.Failures())
	for _, comp := range rec.Completions() {
		if comp.PID == pid && comp.Procedure == name {
			return comp
		}
	}
	require.FailNow(t, "no completion", "%s pid %d", name, pid)
	return testutil.Completion{}
}

func TestRegister_AllNames(t *testing.T) {
	c, _ := setup(t)
	assert.Equal(t, []string{CountdownName, DoubleName, GreetName, SumName}, c.Procedures())
}

func TestGreet(t *testing.T) {
	c, rec := setup(t)
	assert.Equal(t, value.String("Hi Bob"), run(t, c, rec, GreetName, value.String("Bob")).Result)
}

func TestGreet_BadArgument(t *testing.T) {
	c, rec := setup(t)
	_, err := c.RunProcedure(context.Background(), GreetName, value.Int(1))
	require.NoError(t, err)

	failures := rec.Failures()
	require.Len(t, failures, 1)
	assert.True(t, choreo.IsStepFailed(failures[0].Err))
	assert.ErrorContains(t, failures[0].Err, "expected string")
}

func TestCountdown(t *testing.T) {
	tests := []struct {
		from  int64
		ticks int64
	}{
		{0, 1},
		{1, 2},
		{5, 6},
	}
	for _, tt := range tests {
		c, rec := setup(t)
		assert.Equal(t, value.Int(tt.ticks), run(t, c, rec, CountdownName, value.Int(tt.from)).Result, "from %d", tt.from)
	}
}

func TestCountdown_Negative(t *testing.T) {
	c, rec := setup(t)
	_, err := c.RunProcedure(context.Background(), CountdownName, value.Int(-1))
	require.NoError(t, err)
	require.Len(t, rec.Failures(), 1)
	assert.ErrorContains(t, rec.Failures()[0].Err, "must not be negative")
}

func TestDouble(t *testing.T) {
	c, rec := setup(t)
	assert.Equal(t, value.Int(42), run(t, c, rec, DoubleName, value.Int(21)).Result)
}

func TestSum(t *testing.T) {
	tests := []struct {
		name  string
		terms []value.Value
		want  int64
	}{
		{"empty", nil, 0},
		{"one", []value.Value{value.Int(4)}, 8},
		{"several", []value.Value{value.Int(1), value.Int(2), value.Int(3)}, 12},
		{"repeated terms", []value.Value{value.Int(5), value.Int(5)}, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := setup(t)
			assert.Equal(t, value.Int(tt.want), run(t, c, rec, SumName, tt.terms...).Result)
			assert.Empty(t, c.Processes())
		})
	}
}

func TestSum_RejectsNonIntegers(t *testing.T) {
	c, rec := setup(t)
	_, err := c.RunProcedure(context.Background(), SumName, value.Int(1), value.String("x"))
	require.NoError(t, err)
	require.Len(t, rec.Failures(), 1)
	assert.ErrorContains(t, rec.Failures()[0].Err, "expected int")
}
