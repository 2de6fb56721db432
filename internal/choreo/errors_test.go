package choreo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "unknown procedure",
			err:  NewUnknownProcedureError("nope"),
			want: "UNKNOWN_PROCEDURE: procedure not registered (procedure=nope)",
		},
		{
			name: "step failed",
			err:  NewStepError(3, "greet", "start", errors.New("boom")),
			want: "STEP_FAILED: step execution failed (pid=3, procedure=greet, step=start): boom",
		},
		{
			name: "call cycle",
			err:  NewCallCycleError(2, "rec"),
			want: "CALL_CYCLE: call would wait on its own caller (pid=2, procedure=rec)",
		},
		{
			name: "resume failed",
			err:  NewResumeError(0, errors.New("missing")),
			want: "RESUME_FAILED: could not reconstruct process (pid=0): missing",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_ChildFailedUnwrapsToCause(t *testing.T) {
	cause := errors.New("disk full")
	step := NewStepError(4, "child", "write", cause)
	err := fmt.Errorf("wrapped: %w", NewChildFailedError(4, "child", step))

	assert.True(t, IsChildFailed(err))
	assert.False(t, IsStepFailed(err), "outermost engine error decides the code")
	assert.ErrorIs(t, err, cause)

	var inner *Error
	assert.ErrorAs(t, errors.Unwrap(errors.Unwrap(err)), &inner)
	assert.Equal(t, ErrCodeStepFailed, inner.Code)
}

func TestError_HelpersOnPlainErrors(t *testing.T) {
	plain := errors.New("plain")
	assert.False(t, IsUnknownProcedure(plain))
	assert.False(t, IsStepFailed(plain))
	assert.False(t, IsChildFailed(plain))
	assert.False(t, IsResumeFailed(plain))
	assert.False(t, IsChildFailed(nil))
}
