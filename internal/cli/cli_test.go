package cli

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/roach88/choreo/internal/choreo"
	"github.com/roach88/choreo/internal/procedures"
	"github.com/roach88/choreo/internal/testutil"
	"github.com/roach88/choreo/internal/value"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(opts)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "choreo.db")
}

// testProcedures extends the built-ins with procedures that park or fail.
func testProcedures() map[string]choreo.Procedure {
	procs := procedures.All()
	procs["hold"] = choreo.ProcedureFunc(func(p *choreo.Process, step string, args []value.Value) error {
		return nil
	})
	procs["parent"] = choreo.ProcedureFunc(func(p *choreo.Process, step string, args []value.Value) error {
		if step == "start" {
			p.Call("hold", "after", value.String("x"))
			return nil
		}
		p.Done(args[0])
		return nil
	})
	procs["boom"] = choreo.ProcedureFunc(func(p *choreo.Process, step string, args []value.Value) error {
		p.Failf("boom: %s", value.Format(value.Args(args...)))
		return nil
	})
	return procs
}

func testOptions() *RootOptions {
	return &RootOptions{
		FlowGenerator: testutil.NewFixedFlowGenerator("flow-1"),
		Procedures:    testProcedures(),
	}
}
