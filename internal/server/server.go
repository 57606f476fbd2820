package server

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dejo1307/verusreport/internal/config"
	"github.com/dejo1307/verusreport/internal/correlate"
	"github.com/dejo1307/verusreport/internal/engine"
	"github.com/dejo1307/verusreport/internal/extractors"
	"github.com/dejo1307/verusreport/internal/facts"
	"github.com/dejo1307/verusreport/internal/renderers/jsonreport"
	"github.com/dejo1307/verusreport/internal/renderers/listing"
	"github.com/dejo1307/verusreport/internal/transcript"
)

// Server wraps the MCP server and connects it to the engine.
type Server struct {
	mcp     *mcp.Server
	eng     *engine.Engine
	cfg     *config.Config
	version string
}

// New creates a new MCP server wired to the given engine.
func New(eng *engine.Engine, cfg *config.Config, version string) (*Server, error) {
	s := &Server{
		eng:     eng,
		cfg:     cfg,
		version: version,
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "verusreport",
		Version: version,
	}, nil)

	s.registerResources()
	s.registerTools()

	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	log.Println("[server] starting MCP server on stdio transport")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// artifactResource describes one resource backed by an engine artifact.
type artifactResource struct {
	uri         string
	name        string
	description string
	artifact    string
	mimeType    string
}

var resources = []artifactResource{
	{
		uri:         "verus://report/json",
		name:        "Verification Report",
		description: "Correlated verification report of the last analyzed transcript",
		artifact:    "report.json",
		mimeType:    "application/json",
	},
	{
		uri:         "verus://report/summary",
		name:        "Verification Summary",
		description: "Compact markdown summary of the last run, sized for LLM context",
		artifact:    "report.md",
		mimeType:    "text/markdown",
	},
	{
		uri:         "verus://inventory/jsonl",
		name:        "Function Inventory",
		description: "Every function of the last run in JSONL format",
		artifact:    engine.InventoryArtifact,
		mimeType:    "application/jsonl",
	},
}

// registerResources adds MCP resources for run artifacts.
func (s *Server) registerResources() {
	for _, res := range resources {
		s.mcp.AddResource(&mcp.Resource{
			URI:         res.uri,
			Name:        res.name,
			Description: res.description,
			MIMEType:    res.mimeType,
		}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			content, err := s.eng.GetArtifact(res.artifact)
			if err != nil {
				return nil, fmt.Errorf("no run available: %w (run list_functions or analyze_transcript first)", err)
			}
			return &mcp.ReadResourceResult{
				Contents: []*mcp.ResourceContents{
					{URI: req.Params.URI, Text: string(content), MIMEType: res.mimeType},
				},
			}, nil
		})
	}
}

// listFunctionsArgs are the arguments for the list_functions tool.
type listFunctionsArgs struct {
	Path                   string `json:"path,omitempty" jsonschema:"Source file or directory to scan. Defaults to the configured root."`
	ExcludeVerusConstructs bool   `json:"exclude_verus_constructs,omitempty" jsonschema:"Drop spec, proof, exec and const functions"`
	ExcludeMethods         bool   `json:"exclude_methods,omitempty" jsonschema:"Drop trait and impl methods"`
	Format                 string `json:"format,omitempty" jsonschema:"Output format: text, detailed (default), json or jsonl"`
}

// analyzeTranscriptArgs are the arguments for the analyze_transcript tool.
type analyzeTranscriptArgs struct {
	Path           string  `json:"path,omitempty" jsonschema:"Source file or directory the transcript belongs to. Defaults to the configured root."`
	TranscriptPath string  `json:"transcript_path,omitempty" jsonschema:"File holding the captured verifier output"`
	Transcript     *string `json:"transcript,omitempty" jsonschema:"Captured verifier output, used when transcript_path is empty. An empty string is a valid transcript."`
	ExitCode       int     `json:"exit_code" jsonschema:"Exit status of the verifier process"`
	Truncated      bool    `json:"truncated,omitempty" jsonschema:"Set when the transcript is known to be incomplete"`
	InferVerified  bool    `json:"infer_verified,omitempty" jsonschema:"Count functions without an explicit outcome as verified when verification ran"`
	Module         string  `json:"module,omitempty" jsonschema:"Restrict the report to a module path such as seq::lemmas"`
	Function       string  `json:"function,omitempty" jsonschema:"Restrict the report to functions with this exact name"`
}

// showFunctionArgs are the arguments for the show_function tool.
type showFunctionArgs struct {
	Name         string `json:"name" jsonschema:"required,Exact function name to look up"`
	ContextLines int    `json:"context_lines,omitempty" jsonschema:"Number of source lines to show around the function start (default 30)"`
}

// registerTools adds MCP tools for inventory listing, transcript analysis
// and source lookup.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_functions",
		Description: "List the functions declared in a Verus/Rust source tree, including functions inside verus! and cfg_if! blocks, with kind, visibility, context and line span.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args listFunctionsArgs) (*mcp.CallToolResult, any, error) {
		return s.listFunctions(ctx, args), nil, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "analyze_transcript",
		Description: "Parse the captured output of a Verus verification run and correlate it with the source tree. Returns the overall status, compilation errors, verified and failed functions as JSON.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args analyzeTranscriptArgs) (*mcp.CallToolResult, any, error) {
		return s.analyzeTranscript(ctx, args), nil, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "show_function",
		Description: "Show the source code of a function from the last run's inventory, with surrounding context lines.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args showFunctionArgs) (*mcp.CallToolResult, any, error) {
		return s.showFunction(args), nil, nil
	})
}

func (s *Server) listFunctions(ctx context.Context, args listFunctionsArgs) *mcp.CallToolResult {
	if args.Format == "" {
		args.Format = string(listing.FormatDetailed)
	}
	format, err := listing.ParseFormat(args.Format)
	if err != nil {
		return errorResult(err.Error())
	}

	snapshot, err := s.eng.Run(ctx, engine.Request{
		Root: s.root(args.Path),
		Options: extractors.Options{
			IncludeVerificationConstructs: !args.ExcludeVerusConstructs,
			IncludeMethods:                !args.ExcludeMethods,
		},
		Renderers: []string{listing.New(format).Name()},
	})
	if err != nil {
		return errorResult(fmt.Sprintf("extraction failed: %v", err))
	}

	var buf bytes.Buffer
	if err := listing.Write(&buf, snapshot.Inventory, format); err != nil {
		return errorResult(err.Error())
	}
	if n := len(snapshot.Inventory.Skips()); n > 0 {
		fmt.Fprintf(&buf, "\n(%d files or declarations skipped; see verus://inventory/jsonl)\n", n)
	}
	return textResult(buf.String())
}

func (s *Server) analyzeTranscript(ctx context.Context, args analyzeTranscriptArgs) *mcp.CallToolResult {
	var tr facts.Transcript
	switch {
	case args.TranscriptPath != "":
		var err error
		tr, err = transcript.ReadFile(args.TranscriptPath, args.ExitCode)
		if err != nil {
			return errorResult(err.Error())
		}
	case args.Transcript != nil:
		tr = facts.Transcript{Text: *args.Transcript, ExitCode: args.ExitCode}
	default:
		return errorResult("transcript_path or transcript is required")
	}
	tr.Truncated = args.Truncated

	root := s.root(args.Path)
	snapshot, err := s.eng.Run(ctx, engine.Request{
		Root:       root,
		Transcript: &tr,
		Options:    extractors.DefaultOptions(),
		Correlate: correlate.Options{
			InferVerified: args.InferVerified || s.cfg.Report.InferVerified,
			Module:        firstNonEmpty(args.Module, s.cfg.Report.Module),
			Function:      firstNonEmpty(args.Function, s.cfg.Report.Function),
		},
	})
	if err != nil {
		return errorResult(fmt.Sprintf("analysis failed: %v", err))
	}

	if info, err := os.Stat(root); err == nil && info.IsDir() {
		if err := s.eng.WriteArtifacts(filepath.Join(root, s.cfg.Output.Dir)); err != nil {
			log.Printf("[server] warning: failed to write artifacts: %v", err)
		}
	}

	data, err := jsonreport.Marshal(snapshot.Report)
	if err != nil {
		return errorResult(err.Error())
	}
	sum := snapshot.Report.Summary
	header := fmt.Sprintf("Status: %s (%d verified, %d failed of %d functions; %d compilation errors)\n\n",
		snapshot.Report.Status, sum.VerifiedFunctions, sum.FailedFunctions, sum.TotalFunctions, sum.CompilationErrors)
	return textResult(header + string(data))
}

func (s *Server) showFunction(args showFunctionArgs) *mcp.CallToolResult {
	snapshot := s.eng.Snapshot()
	if snapshot == nil {
		return errorResult("No inventory available. Run list_functions or analyze_transcript first.")
	}
	if args.Name == "" {
		return errorResult("name is required")
	}

	records := snapshot.Inventory.ByName(args.Name)
	if len(records) == 0 {
		return errorResult(fmt.Sprintf("No functions named %q", args.Name))
	}

	contextLines := args.ContextLines
	if contextLines <= 0 {
		contextLines = 30
	}

	// Limit to 5 results
	if len(records) > 5 {
		records = records[:5]
	}

	var sb strings.Builder
	for i, r := range records {
		if i > 0 {
			sb.WriteString("\n---\n\n")
		}
		fmt.Fprintf(&sb, "### %s\n", r.Name)
		fmt.Fprintf(&sb, "%s\n\n", r.Detailed())

		source, err := readSourceWindow(r.File, r.StartLine, r.EndLine, contextLines)
		if err != nil {
			fmt.Fprintf(&sb, "_Could not read source: %v_\n", err)
			continue
		}
		fmt.Fprintf(&sb, "```rust\n%s```\n", source)
	}
	return textResult(sb.String())
}

func (s *Server) root(path string) string {
	if path == "" {
		path = s.cfg.Root
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// readSourceWindow reads the lines of a function span, padded by half the
// context on each side and capped at contextLines beyond the start.
func readSourceWindow(file string, startLine, endLine, contextLines int) (string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return "", err
	}

	lines := strings.Split(string(data), "\n")
	from := max(startLine-contextLines/2, 1)
	to := min(endLine+contextLines/2, startLine+contextLines, len(lines))

	var sb strings.Builder
	for i := from; i <= to; i++ {
		fmt.Fprintf(&sb, "%4d│ %s\n", i, lines[i-1])
	}
	return sb.String(), nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}
