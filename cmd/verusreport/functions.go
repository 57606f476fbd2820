package main

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/dejo1307/verusreport/internal/engine"
	"github.com/dejo1307/verusreport/internal/extractors"
	"github.com/dejo1307/verusreport/internal/renderers/listing"
)

func (a *app) newFunctionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "functions [path]",
		Short: "List the functions of a source tree",
		Long: `List every function declared in a Verus/Rust file or directory, including
functions inside verus! blocks and in every cfg_if! branch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := listing.ParseFormat(a.getString(cmd, "format"))
			if err != nil {
				return err
			}

			eng, err := buildEngine(a.cfg)
			if err != nil {
				return err
			}

			opts := extractors.Options{
				IncludeVerificationConstructs: !a.getBool(cmd, "exclude-verus-constructs"),
				IncludeMethods:                !a.getBool(cmd, "exclude-methods"),
			}
			if a.getBool(cmd, "progress") {
				p := newProgress(a)
				opts.OnTotal = p.start
				opts.OnFile = p.fileDone
			}

			snapshot, err := eng.Run(cmd.Context(), engine.Request{
				Root:      a.rootArg(args),
				Options:   opts,
				Renderers: []string{listing.New(format).Name()},
			})
			if err != nil {
				return err
			}

			w, closeOut, err := a.output(a.getString(cmd, "output"))
			if err != nil {
				return err
			}
			if err := listing.Write(w, snapshot.Inventory, format); err != nil {
				closeOut()
				return err
			}
			if err := closeOut(); err != nil {
				return err
			}

			if n := len(snapshot.Inventory.Skips()); n > 0 {
				fmt.Fprintf(a.stderr, "warning: %d files or declarations skipped\n", n)
			}
			return nil
		},
	}

	cmd.Flags().StringP("format", "f", string(listing.FormatText), "output format: text, detailed, json or jsonl")
	cmd.Flags().Bool("exclude-verus-constructs", false, "drop spec, proof, exec and const functions")
	cmd.Flags().Bool("exclude-methods", false, "drop trait and impl methods")
	cmd.Flags().Bool("progress", false, "show a progress bar while parsing")
	cmd.Flags().StringP("output", "o", "", "write the listing to a file instead of stdout")
	a.bindFlags(cmd, "format", "exclude-verus-constructs", "exclude-methods", "progress", "output")
	return cmd
}

// progress reports parsed files on a progress bar written to stderr.
type progress struct {
	a   *app
	bar *progressbar.ProgressBar
}

func newProgress(a *app) *progress {
	return &progress{a: a}
}

func (p *progress) start(total int) {
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.a.stderr),
		progressbar.OptionSetDescription("Parsing files"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files/s"),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(p.a.stderr)
		}),
	)
}

// fileDone may be called from several parser goroutines; the bar locks.
func (p *progress) fileDone(string) {
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}
