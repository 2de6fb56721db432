package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// StartResult is the JSON payload of the start command.
type StartResult struct {
	PID       int    `json:"pid"`
	Procedure string `json:"procedure"`
	Live      bool   `json:"live"`
}

// NewStartCommand creates the start command.
func NewStartCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start <procedure> [args...]",
		Short: "Start a procedure and return once its work drains",
		Long: `Start a procedure in the background and print its pid.

The command returns once no step is running. A process that is still live
at that point (for example one waiting on a sub-procedure that parked) stays
persisted and is resumed by the next run, start or resume.

Example:
  choreo start --db ./choreo.db countdown 10`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return startProcedure(cmd, opts, args[0], args[1:])
		},
	}
}

func startProcedure(cmd *cobra.Command, opts *RootOptions, name string, rawArgs []string) error {
	args, err := parseArgs(rawArgs)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	h, err := openHost(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	out := opts.formatter(cmd)
	pid, startErr := h.c.StartProcedure(ctx, name, args...)
	closeErr := h.Close()
	if startErr != nil {
		_ = out.Error(errorReport(startErr))
		return WrapExitError(ExitCommandError, "failed to start procedure", startErr)
	}
	if closeErr != nil {
		return WrapExitError(ExitFailure, "failed to close host", closeErr)
	}

	live := false
	for _, info := range h.c.Processes() {
		if info.PID == pid {
			live = true
		}
	}

	text := fmt.Sprintf("started %s as pid %d", name, pid)
	if live {
		text += " (still live)"
	}
	return out.Success(StartResult{PID: pid, Procedure: name, Live: live}, text)
}
