package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// ResumeResult is the JSON payload of the resume command.
type ResumeResult struct {
	Live          []int `json:"live"`
	Unrecoverable []int `json:"unrecoverable"`
}

// NewResumeCommand creates the resume command.
func NewResumeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume persisted processes and return once their work drains",
		Long: `Replay every process that was live when the last session stopped.

Each process re-enters the step it was about to run. Waiting processes stay
parked until their sub-procedure finishes. Records that cannot be read are
reported and left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return resumeProcesses(cmd, opts)
		},
	}
}

func resumeProcesses(cmd *cobra.Command, opts *RootOptions) error {
	h, err := openHost(commandContext(cmd), opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if err := h.Close(); err != nil {
		return WrapExitError(ExitFailure, "failed to close host", err)
	}

	res := ResumeResult{Live: []int{}, Unrecoverable: []int{}}
	for _, info := range h.c.Processes() {
		res.Live = append(res.Live, info.PID)
	}
	for pid := range h.c.Unrecoverable() {
		res.Unrecoverable = append(res.Unrecoverable, pid)
	}
	slices.Sort(res.Unrecoverable)

	text := fmt.Sprintf("%d live, %d unrecoverable", len(res.Live), len(res.Unrecoverable))
	return opts.formatter(cmd).Success(res, text)
}
