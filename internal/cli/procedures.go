package cli

import (
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/choreo/internal/procedures"
)

// NewProceduresCommand creates the procedures command.
func NewProceduresCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "procedures",
		Short: "List the registered procedures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			procs := opts.Procedures
			if procs == nil {
				procs = procedures.All()
			}
			names := slices.Sorted(maps.Keys(procs))
			return opts.formatter(cmd).Success(names, strings.Join(names, "\n"))
		},
	}
}
