package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/choreo/internal/choreo"
	"github.com/roach88/choreo/internal/value"
)

// NewPsCommand creates the ps command.
func NewPsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "List persisted processes without running them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listProcesses(cmd, opts)
		},
	}
}

func listProcesses(cmd *cobra.Command, opts *RootOptions) error {
	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	infos, err := choreo.ReadSnapshot(context.WithoutCancel(commandContext(cmd)), st)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read processes", err)
	}

	out := opts.formatter(cmd)
	if out.Format == "json" {
		return out.Success(infos, "")
	}
	return writeProcessTable(out.Writer, infos)
}

func writeProcessTable(w io.Writer, infos []choreo.ProcessInfo) error {
	if len(infos) == 0 {
		_, err := fmt.Fprintln(w, "no live processes")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "PID\tPROCEDURE\tSTEP\tARGS\tWAITING\tFLOW")
	for _, info := range infos {
		if info.Error != "" {
			fmt.Fprintf(tw, "%d\t?\t?\t?\t-\t%s\n", info.PID, info.Error)
			continue
		}
		waiting := "-"
		if info.WaitingOn != nil {
			waiting = fmt.Sprintf("%d -> %s", *info.WaitingOn, info.Continuation)
		}
		args := value.Format(info.Args)
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", info.PID, info.Procedure, info.Step, args, waiting, info.Flow)
	}
	return tw.Flush()
}
