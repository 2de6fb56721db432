package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/choreo/internal/choreo"
	"github.com/roach88/choreo/internal/value"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Timeout time.Duration
}

// RunResult is the JSON payload of a completed run.
type RunResult struct {
	PID       int    `json:"pid"`
	Procedure string `json:"procedure"`
	Result    any    `json:"result"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <procedure> [args...]",
		Short: "Run a procedure and wait for its result",
		Long: `Run a procedure and wait until it completes or fails.

Arguments that are valid JSON are decoded (5 is an integer, [1,2] a list);
anything else is passed as a string. Processes left over from a previous
session are resumed first. If an equivalent process is already live, run
waits for that one instead of starting another.

Example:
  choreo run greet Bob
  choreo run --db ./choreo.db sum 1 2 3
  choreo run --format json countdown 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcedure(cmd, opts, args[0], args[1:])
		},
	}

	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "how long to wait for the result (0 waits forever)")

	return cmd
}

func runProcedure(cmd *cobra.Command, opts *RunOptions, name string, rawArgs []string) error {
	args, err := parseArgs(rawArgs)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	h, err := openHost(ctx, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := h.Close(); closeErr != nil {
			h.logger.Error("error closing host", "error", closeErr)
		}
	}()

	// Let resumed work settle so its completions cannot be mistaken for ours.
	h.exec.Wait()

	outcomes := newOutcomeSet()
	h.c.AddListener(name, outcomes)
	h.c.AddFailureListener(name, outcomes)

	out := opts.formatter(cmd)
	pid, err := h.c.RunProcedure(ctx, name, args...)
	if err != nil {
		_ = out.Error(errorReport(err))
		return WrapExitError(ExitCommandError, "failed to start procedure", err)
	}

	o, err := outcomes.wait(ctx, pid)
	if err != nil {
		return WrapExitError(ExitFailure,
			fmt.Sprintf("process %d did not finish; it resumes on the next start", pid), err)
	}
	if o.err != nil {
		report := errorReport(o.err)
		report.PID = &pid
		_ = out.Error(report)
		return WrapExitError(ExitFailure, "process failed", o.err)
	}

	return out.Success(
		RunResult{PID: pid, Procedure: name, Result: value.ToGo(o.result)},
		fmt.Sprintf("%s (pid %d) completed: %s", name, pid, value.Format(o.result)),
	)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

type outcome struct {
	result value.Value
	err    error
}

// outcomeSet records the outcome of each finished process by pid.
type outcomeSet struct {
	mu      sync.Mutex
	got     map[int]outcome
	changed chan struct{}
}

var (
	_ choreo.Listener        = (*outcomeSet)(nil)
	_ choreo.FailureListener = (*outcomeSet)(nil)
)

func newOutcomeSet() *outcomeSet {
	return &outcomeSet{got: map[int]outcome{}, changed: make(chan struct{}, 1)}
}

func (s *outcomeSet) record(pid int, o outcome) {
	s.mu.Lock()
	s.got[pid] = o
	s.mu.Unlock()

	select {
	case s.changed <- struct{}{}:
	default:
	}
}

func (s *outcomeSet) ProcedureCompleted(_ string, pid int, result value.Value) {
	s.record(pid, outcome{result: result})
}

func (s *outcomeSet) ProcedureFailed(_ string, pid int, err error) {
	s.record(pid, outcome{err: err})
}

func (s *outcomeSet) wait(ctx context.Context, pid int) (outcome, error) {
	for {
		s.mu.Lock()
		o, ok := s.got[pid]
		s.mu.Unlock()
		if ok {
			return o, nil
		}

		select {
		case <-s.changed:
		case <-ctx.Done():
			return outcome{}, ctx.Err()
		}
	}
}
