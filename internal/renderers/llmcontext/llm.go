package llmcontext

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dejo1307/verusreport/internal/facts"
)

// LLMContextRenderer produces a compact markdown summary of a verification
// run, sized for LLM consumption.
type LLMContextRenderer struct {
	maxTokens int
}

// New creates a new LLMContextRenderer with the given token budget.
func New(maxTokens int) *LLMContextRenderer {
	if maxTokens <= 0 {
		maxTokens = 16000
	}
	return &LLMContextRenderer{maxTokens: maxTokens}
}

func (r *LLMContextRenderer) Name() string {
	return "llm_context"
}

// section holds a rendered section with its display name.
type section struct {
	name    string
	content string
}

// Render produces the report.md artifact using progressive summarization.
// Sections are ordered by priority; lower-priority sections are omitted first
// when the token budget is tight.
func (r *LLMContextRenderer) Render(ctx context.Context, snapshot *facts.Snapshot) ([]facts.Artifact, error) {
	// Sections ordered by priority (most important first)
	sections := []section{
		{"Status", r.renderStatus(snapshot)},
		{"Compilation Errors", r.renderCompilationErrors(snapshot)},
		{"Verification Failures", r.renderFailures(snapshot)},
		{"Verified Functions", r.renderVerified(snapshot)},
		{"Anomalies", r.renderAnomalies(snapshot)},
		{"Functions by File", r.renderFunctionsByFile(snapshot)},
		{"Warnings", r.renderWarnings(snapshot)},
		{"Meta", r.renderMeta(snapshot)},
	}

	header := "# Verification Report\n\n"
	maxChars := r.maxTokens * 4 // rough estimate: 1 token ~= 4 chars
	remaining := maxChars - len(header)

	var sb strings.Builder
	sb.WriteString(header)

	for i, sec := range sections {
		if sec.content == "" {
			continue
		}
		if len(sec.content) <= remaining {
			sb.WriteString(sec.content)
			remaining -= len(sec.content)
		} else if remaining > 200 {
			// Partially include this section, cut at a line boundary.
			cut := sec.content[:remaining-100]
			if nl := strings.LastIndexByte(cut, '\n'); nl > 0 {
				cut = cut[:nl+1]
			}
			sb.WriteString(cut)
			fmt.Fprintf(&sb, "\n---\n*[Truncated in: %s]*\n", sec.name)
			break
		} else {
			var omitted []string
			for _, s := range sections[i:] {
				if s.content != "" {
					omitted = append(omitted, s.name)
				}
			}
			fmt.Fprintf(&sb, "\n---\n*[Omitted: %s]*\n", strings.Join(omitted, ", "))
			break
		}
	}

	return []facts.Artifact{
		{
			Name:    "report.md",
			Content: []byte(sb.String()),
			Type:    "text/markdown",
		},
	}, nil
}

func (r *LLMContextRenderer) renderStatus(snapshot *facts.Snapshot) string {
	var sb strings.Builder
	sb.WriteString("## Status\n\n")

	rep := snapshot.Report
	if rep == nil {
		total, files := 0, 0
		if snapshot.Inventory != nil {
			total, files = snapshot.Inventory.Count(), len(snapshot.Inventory.Files())
		}
		fmt.Fprintf(&sb, "_No transcript analyzed._ %d functions in %d files.\n\n", total, files)
		return sb.String()
	}

	s := rep.Summary
	fmt.Fprintf(&sb, "**%s**\n\n", rep.Status)
	sb.WriteString("| Metric | Count |\n")
	sb.WriteString("|--------|-------|\n")
	rows := []struct {
		name string
		n    int
	}{
		{"Functions", s.TotalFunctions},
		{"Verified", s.VerifiedFunctions},
		{"Failed", s.FailedFunctions},
		{"Compilation errors", s.CompilationErrors},
		{"Compilation warnings", s.CompilationWarnings},
		{"Verification errors", s.VerificationErrors},
		{"Files scanned", s.FilesScanned},
	}
	for _, row := range rows {
		fmt.Fprintf(&sb, "| %s | %d |\n", row.name, row.n)
	}
	if res := rep.Verification.Results; res != nil {
		fmt.Fprintf(&sb, "\nVerifier totals: %d verified, %d errors.\n", res.Verified, res.Errors)
	}
	sb.WriteString("\n")
	return sb.String()
}

func (r *LLMContextRenderer) renderCompilationErrors(snapshot *facts.Snapshot) string {
	if snapshot.Report == nil || len(snapshot.Report.Compilation.Errors) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Compilation Errors\n\n")
	for _, e := range snapshot.Report.Compilation.Errors {
		sb.WriteString("- " + issueLine(e) + "\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func (r *LLMContextRenderer) renderWarnings(snapshot *facts.Snapshot) string {
	if snapshot.Report == nil || len(snapshot.Report.Compilation.Warnings) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Warnings\n\n")
	for _, w := range snapshot.Report.Compilation.Warnings {
		sb.WriteString("- " + issueLine(w) + "\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func (r *LLMContextRenderer) renderFailures(snapshot *facts.Snapshot) string {
	rep := snapshot.Report
	if rep == nil || (len(rep.Verification.Failed) == 0 && len(rep.Verification.Errors) == 0) {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Verification Failures\n\n")
	if len(rep.Verification.Failed) > 0 {
		sb.WriteString("| Function | Location |\n")
		sb.WriteString("|----------|----------|\n")
		for _, f := range rep.Verification.Failed {
			fmt.Fprintf(&sb, "| `%s` | `%s:%d` |\n", f.Name, f.File, f.Line)
		}
		sb.WriteString("\n")
	}
	for _, e := range rep.Verification.Errors {
		loc := "unknown location"
		if e.HasLocation() {
			loc = fmt.Sprintf("`%s:%d:%d`", e.File, e.Line, e.Column)
		}
		fn := ""
		if e.Function != "" {
			fn = fmt.Sprintf(" in `%s`", e.Function)
		}
		fmt.Fprintf(&sb, "- **%s**%s at %s\n", e.ErrorType, fn, loc)
		if e.Message != "" && e.Message != e.ErrorType {
			fmt.Fprintf(&sb, "  - %s\n", e.Message)
		}
	}
	sb.WriteString("\n")
	return sb.String()
}

func (r *LLMContextRenderer) renderVerified(snapshot *facts.Snapshot) string {
	if snapshot.Report == nil || len(snapshot.Report.Verification.Verified) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Verified Functions\n\n")
	for _, f := range snapshot.Report.Verification.Verified {
		fmt.Fprintf(&sb, "- `%s` (%s:%d)\n", f.Name, f.File, f.Line)
	}
	sb.WriteString("\n")
	return sb.String()
}

func (r *LLMContextRenderer) renderAnomalies(snapshot *facts.Snapshot) string {
	var lines []string
	if snapshot.Inventory != nil {
		for _, s := range snapshot.Inventory.Skips() {
			loc := s.File
			if s.Line > 0 {
				loc = fmt.Sprintf("%s:%d", s.File, s.Line)
			}
			lines = append(lines, fmt.Sprintf("- %s `%s`: %s", s.Reason, loc, s.Message))
		}
	}
	if rep := snapshot.Report; rep != nil {
		for _, u := range rep.Anomalies.UnclassifiedLines {
			lines = append(lines, fmt.Sprintf("- unclassified transcript line %d: `%s`", u.Line, u.Text))
		}
		for _, name := range rep.Anomalies.InconsistentOutcomes {
			lines = append(lines, fmt.Sprintf("- inconsistent outcome for `%s`", name))
		}
	}
	if len(lines) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Anomalies\n\n")
	for _, l := range lines {
		sb.WriteString(l + "\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func (r *LLMContextRenderer) renderFunctionsByFile(snapshot *facts.Snapshot) string {
	if snapshot.Inventory == nil || snapshot.Inventory.Count() == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Functions by File\n\n")
	sb.WriteString("| File | Functions | Verification constructs | Methods |\n")
	sb.WriteString("|------|-----------|-------------------------|---------|\n")

	grouped := snapshot.Inventory.Grouped()
	files := make([]string, 0, len(grouped))
	for f := range grouped {
		files = append(files, f)
	}
	sort.Strings(files)

	for _, f := range files {
		constructs, methods := 0, 0
		for _, rec := range grouped[f] {
			if !rec.IsBareFn() {
				constructs++
			}
			if rec.Context != facts.ContextStandalone {
				methods++
			}
		}
		fmt.Fprintf(&sb, "| `%s` | %d | %d | %d |\n", f, len(grouped[f]), constructs, methods)
	}
	sb.WriteString("\n")
	return sb.String()
}

func (r *LLMContextRenderer) renderMeta(snapshot *facts.Snapshot) string {
	var sb strings.Builder
	sb.WriteString("---\n\n")
	total := 0
	if snapshot.Inventory != nil {
		total = snapshot.Inventory.Count()
	}
	fmt.Fprintf(&sb, "*Generated at %s in %s. %d functions.*\n",
		snapshot.Meta.GeneratedAt, snapshot.Meta.Duration, total)
	return sb.String()
}

func issueLine(i facts.CompilationIssue) string {
	code := ""
	if i.Code != "" {
		code = "[" + i.Code + "] "
	}
	if i.File == "" {
		return code + i.Message
	}
	return fmt.Sprintf("%s%s (`%s:%d:%d`)", code, i.Message, i.File, i.Line, i.Column)
}
