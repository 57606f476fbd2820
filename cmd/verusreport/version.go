package main

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func (a *app) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// No config needed to print the version.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			bold := color.New(color.FgCyan, color.Bold)
			fmt.Fprintf(a.stdout, "%s %s\n", bold.Sprint("verusreport"), Version)
			fmt.Fprintf(a.stdout, "  commit:  %s\n", GitCommit)
			fmt.Fprintf(a.stdout, "  built:   %s\n", BuildDate)
			fmt.Fprintf(a.stdout, "  go:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
