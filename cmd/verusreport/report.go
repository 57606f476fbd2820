package main

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dejo1307/verusreport/internal/correlate"
	"github.com/dejo1307/verusreport/internal/engine"
	"github.com/dejo1307/verusreport/internal/extractors"
	"github.com/dejo1307/verusreport/internal/facts"
	"github.com/dejo1307/verusreport/internal/transcript"
)

// Report formats the report command can print.
var reportFormats = map[string]string{
	"json":        "report.json",
	"msgpack":     "report.msgpack",
	"llm_context": "report.md",
}

// Exit status of --strict when the run did not succeed.
const strictFailureStatus = 2

var (
	successColor       = color.New(color.FgGreen, color.Bold)
	verifyFailedColor  = color.New(color.FgYellow, color.Bold)
	compileFailedColor = color.New(color.FgRed, color.Bold)
)

func (a *app) newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [path]",
		Short: "Correlate a verifier transcript with the source tree",
		Long: `Parse the captured output of one verifier run (stdout and stderr merged) and
correlate it with the functions of the source tree. The report goes to stdout
or -o; a one-line status summary goes to stderr.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format := a.getString(cmd, "format")
			artifact, ok := reportFormats[format]
			if !ok {
				return fmt.Errorf("unknown report format %q (want json, msgpack or llm_context)", format)
			}

			tr, err := a.readTranscript(a.getString(cmd, "transcript"), a.v.GetInt(cmd.Name()+".exit-code"))
			if err != nil {
				return err
			}
			tr.Truncated = a.getBool(cmd, "truncated")

			req := engine.Request{
				Root:       a.rootArg(args),
				Transcript: &tr,
				Options:    extractors.DefaultOptions(),
				Correlate: correlate.Options{
					InferVerified: a.getBool(cmd, "infer-verified") || a.cfg.Report.InferVerified,
					Module:        firstNonEmpty(a.getString(cmd, "module"), a.cfg.Report.Module),
					Function:      firstNonEmpty(a.getString(cmd, "function"), a.cfg.Report.Function),
				},
				Renderers: []string{format},
			}
			if path := a.getString(cmd, "inventory"); path != "" {
				inv, err := facts.ReadJSONLFile(path)
				if err != nil {
					return err
				}
				req.Inventory = inv
			}

			eng, err := buildEngine(a.cfg)
			if err != nil {
				return err
			}
			if a.getBool(cmd, "write-artifacts") {
				req.Renderers = append(req.Renderers, a.cfg.Renderers...)
			}
			snapshot, err := eng.Run(cmd.Context(), req)
			if err != nil {
				return err
			}

			content, err := eng.GetArtifact(artifact)
			if err != nil {
				return err
			}
			w, closeOut, err := a.output(a.getString(cmd, "output"))
			if err != nil {
				return err
			}
			if _, err := w.Write(content); err != nil {
				closeOut()
				return fmt.Errorf("writing report: %w", err)
			}
			if err := closeOut(); err != nil {
				return err
			}

			if a.getBool(cmd, "write-artifacts") {
				dir := filepath.Join(req.Root, a.cfg.Output.Dir)
				if err := eng.WriteArtifacts(dir); err != nil {
					return err
				}
			}

			a.printStatus(snapshot.Report)
			if a.getBool(cmd, "strict") && snapshot.Report.Status != facts.StatusSuccess {
				return &exitError{code: strictFailureStatus}
			}
			return nil
		},
	}

	cmd.Flags().StringP("transcript", "t", "", "file holding the verifier output, or - for stdin (required)")
	cmd.Flags().Int("exit-code", 0, "exit status of the verifier process (negative when killed)")
	cmd.Flags().Bool("truncated", false, "the transcript is known to be incomplete")
	cmd.Flags().String("inventory", "", "use an inventory.jsonl written by an earlier run instead of parsing sources")
	cmd.Flags().StringP("format", "f", "json", "report format: json, msgpack or llm_context")
	cmd.Flags().StringP("output", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().Bool("infer-verified", false, "count functions without an explicit outcome as verified when verification ran")
	cmd.Flags().String("module", "", "restrict the report to a module path such as seq::lemmas")
	cmd.Flags().String("function", "", "restrict the report to functions with this exact name")
	cmd.Flags().Bool("strict", false, "exit with status 2 unless the run succeeded")
	cmd.Flags().Bool("write-artifacts", false, "also write every configured artifact to the output directory")
	_ = cmd.MarkFlagRequired("transcript")
	a.bindFlags(cmd, "transcript", "exit-code", "truncated", "inventory", "format", "output",
		"infer-verified", "module", "function", "strict", "write-artifacts")
	return cmd
}

func (a *app) readTranscript(path string, exitCode int) (facts.Transcript, error) {
	if path == "-" {
		return transcript.Read(a.stdin, exitCode)
	}
	return transcript.ReadFile(path, exitCode)
}

// printStatus writes the colored one-line summary to stderr.
func (a *app) printStatus(rep *facts.Report) {
	c := successColor
	switch rep.Status {
	case facts.StatusCompilationFailed:
		c = compileFailedColor
	case facts.StatusVerificationFailed:
		c = verifyFailedColor
	}
	s := rep.Summary
	fmt.Fprintf(a.stderr, "%s: %d verified, %d failed of %d functions; %d compilation errors, %d warnings\n",
		c.Sprint(rep.Status), s.VerifiedFunctions, s.FailedFunctions, s.TotalFunctions,
		s.CompilationErrors, s.CompilationWarnings)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
