// Package main is the choreo command-line entry point.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/choreo/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "choreo: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
