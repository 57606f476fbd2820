package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/dejo1307/verusreport/internal/config"
	"github.com/dejo1307/verusreport/internal/engine"
	"github.com/dejo1307/verusreport/internal/extractors/verusextractor"
	"github.com/dejo1307/verusreport/internal/renderers/jsonreport"
	"github.com/dejo1307/verusreport/internal/renderers/listing"
	"github.com/dejo1307/verusreport/internal/renderers/llmcontext"
	"github.com/dejo1307/verusreport/internal/renderers/msgpackreport"
)

func main() {
	// Log output goes to stderr, never stdout (reports and MCP use stdout)
	log.SetOutput(os.Stderr)

	// Optional .env in the working directory
	_ = godotenv.Load()

	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// exitError carries a process exit status chosen by a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// execute runs the command line and maps the outcome to an exit status:
// 0 on success, 1 on error, or the status a command asked for.
func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd(stdin, stdout, stderr)
	root.SetArgs(args)
	err := root.Execute()

	var ee *exitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ee):
		return ee.code
	default:
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
}

// buildEngine creates an engine with the Verus extractor and every renderer.
func buildEngine(cfg *config.Config) (*engine.Engine, error) {
	eng, err := engine.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	ext, err := verusextractor.New(cfg.ExtractorOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}
	eng.RegisterExtractor(ext)

	eng.RegisterRenderer(jsonreport.New())
	eng.RegisterRenderer(msgpackreport.New())
	eng.RegisterRenderer(llmcontext.New(cfg.Output.MaxContextTokens))
	for _, r := range listing.All() {
		eng.RegisterRenderer(r)
	}
	return eng, nil
}
