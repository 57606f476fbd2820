package facts

import (
	"fmt"
	"strings"
)

// FunctionRecord is one function-like declaration extracted from a source file.
type FunctionRecord struct {
	Name       string `json:"name" msgpack:"name"`
	File       string `json:"file" msgpack:"file"`
	StartLine  int    `json:"start_line" msgpack:"start_line"` // 1-based, inclusive
	EndLine    int    `json:"end_line" msgpack:"end_line"`     // 1-based, inclusive
	Kind       string `json:"kind" msgpack:"kind"`             // e.g. "fn", "spec fn", "proof(axiom) fn"
	Visibility string `json:"visibility" msgpack:"visibility"` // e.g. "pub", "pub(crate)", "private"
	Context    string `json:"context" msgpack:"context"`       // "standalone", "trait" or "impl"
}

// FunctionKey identifies a record within one run.
type FunctionKey struct {
	File      string
	Name      string
	StartLine int
}

// Function kind values. Mode-annotated kinds are built by FunctionKind.
const (
	KindFn      = "fn"
	KindConstFn = "const fn"
)

// Verification modes.
const (
	ModeSpec  = "spec"
	ModeProof = "proof"
	ModeExec  = "exec"
)

// Visibility values.
const (
	VisibilityPublic     = "pub"
	VisibilityCrate      = "pub(crate)"
	VisibilitySuper      = "pub(super)"
	VisibilitySelf       = "pub(self)"
	VisibilityRestricted = "pub(restricted)"
	VisibilityPrivate    = "private"
)

// Syntactic contexts.
const (
	ContextStandalone = "standalone"
	ContextTrait      = "trait"
	ContextImpl       = "impl"
)

// FunctionKind renders a kind string from a mode (possibly empty or with a
// parenthesized sub-mode such as "spec(checked)") and constness.
func FunctionKind(mode string, isConst bool) string {
	switch {
	case mode == "" && isConst:
		return KindConstFn
	case mode == "":
		return KindFn
	case isConst:
		return mode + " " + KindConstFn
	default:
		return mode + " " + KindFn
	}
}

// Key returns the identity key of the record.
func (r FunctionRecord) Key() FunctionKey {
	return FunctionKey{File: r.File, Name: r.Name, StartLine: r.StartLine}
}

// IsBareFn reports whether the record carries no verification mode and no constness.
func (r FunctionRecord) IsBareFn() bool {
	return r.Kind == KindFn
}

// Contains reports whether line falls inside the record's span.
func (r FunctionRecord) Contains(line int) bool {
	return line >= r.StartLine && line <= r.EndLine
}

// Detailed renders the record in the one-line detailed listing format.
func (r FunctionRecord) Detailed() string {
	return fmt.Sprintf("%s [%s] (%s) @ %s:%d:%d in %s",
		r.Name, r.Kind, r.Visibility, r.File, r.StartLine, r.EndLine, r.Context)
}

// Ref returns the compact {name, file, line} reference for the record.
func (r FunctionRecord) Ref() FunctionRef {
	return FunctionRef{Name: r.Name, File: r.File, Line: r.StartLine}
}

// FunctionRef is a compact pointer to a function used in report listings.
type FunctionRef struct {
	Name string `json:"name" msgpack:"name"`
	File string `json:"file,omitempty" msgpack:"file,omitempty"`
	Line int    `json:"line" msgpack:"line"`
}

// Severity distinguishes blocking from advisory compilation diagnostics.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// CompilationIssue is one aggregated compiler diagnostic.
// An unknown location is File "" and Line/Column 0.
type CompilationIssue struct {
	Severity Severity `json:"severity" msgpack:"severity"`
	Code     string   `json:"code,omitempty" msgpack:"code,omitempty"` // rustc code such as "E0425"
	Message  string   `json:"message" msgpack:"message"`
	File     string   `json:"file" msgpack:"file"`
	Line     int      `json:"line" msgpack:"line"`
	Column   int      `json:"column" msgpack:"column"`
	RawText  []string `json:"raw_text" msgpack:"raw_text"`
}

// OutcomeStatus is the verification result of one function.
type OutcomeStatus string

const (
	OutcomeVerified OutcomeStatus = "verified"
	OutcomeFailed   OutcomeStatus = "failed"
)

// VerificationOutcome is a per-function result marker read from a transcript.
type VerificationOutcome struct {
	FunctionName   string        `json:"function_name" msgpack:"function_name"`
	Status         OutcomeStatus `json:"status" msgpack:"status"`
	TranscriptLine int           `json:"transcript_line" msgpack:"transcript_line"`
}

// ShortName returns the final path segment of a module-qualified function name.
func (o VerificationOutcome) ShortName() string {
	if i := strings.LastIndex(o.FunctionName, "::"); i >= 0 {
		return o.FunctionName[i+2:]
	}
	return o.FunctionName
}

// ModulePath returns the module qualifier of the function name without the
// leading "crate" segment, or "" when unqualified.
func (o VerificationOutcome) ModulePath() string {
	i := strings.LastIndex(o.FunctionName, "::")
	if i < 0 {
		return ""
	}
	mod := o.FunctionName[:i]
	mod = strings.TrimPrefix(mod, "crate::")
	if mod == "crate" {
		return ""
	}
	return mod
}

// Error types synthesized by the transcript parser when the transcript
// itself proves the run did not succeed.
const (
	ErrorTypeExitStatus     = "exit_status"
	ErrorTypeIncomplete     = "incomplete_transcript"
	ErrorTypeResultsSummary = "results_summary"
)

// VerificationError is a verifier failure diagnostic (assertion failed,
// postcondition not satisfied, ...) or a synthesized run-level failure.
type VerificationError struct {
	ErrorType string   `json:"error_type" msgpack:"error_type"`
	Message   string   `json:"message" msgpack:"message"`
	File      string   `json:"file" msgpack:"file"`
	Line      int      `json:"line" msgpack:"line"`
	Column    int      `json:"column" msgpack:"column"`
	Function  string   `json:"function,omitempty" msgpack:"function,omitempty"` // attributed by the correlator
	Details   []string `json:"details" msgpack:"details"`
	RawText   []string `json:"raw_text" msgpack:"raw_text"`
}

// HasLocation reports whether the error points into a source file.
func (e VerificationError) HasLocation() bool {
	return e.File != "" && e.Line > 0
}

// VerifierResults holds the totals of every "verification results::" line.
type VerifierResults struct {
	Verified int `json:"verified" msgpack:"verified"`
	Errors   int `json:"errors" msgpack:"errors"`
}

// Transcript is one captured verifier invocation: stdout and stderr merged
// in order, plus the process exit code. A negative exit code means the
// process was killed or its status is unknown.
type Transcript struct {
	Text      string
	ExitCode  int
	Truncated bool
}

// UnclassifiedLine is a diagnostic-looking transcript line that matched no
// known marker. It is kept verbatim.
type UnclassifiedLine struct {
	Line int    `json:"line" msgpack:"line"`
	Text string `json:"text" msgpack:"text"`
}

// Diagnostics is the structured result of parsing one transcript.
type Diagnostics struct {
	Errors             []CompilationIssue
	Warnings           []CompilationIssue
	Outcomes           []VerificationOutcome
	VerificationErrors []VerificationError
	Results            *VerifierResults
	Unclassified       []UnclassifiedLine
	Inconsistent       []string // function names reported both verified and failed
	ExitCode           int
	Status             Status // status implied by the transcript alone
}

// VerificationRan reports whether the verifier printed at least one results line.
func (d *Diagnostics) VerificationRan() bool {
	return d != nil && d.Results != nil
}

// Artifact represents a generated output file.
type Artifact struct {
	Name    string `json:"name"` // e.g. "report.json"
	Content []byte `json:"-"`
	Type    string `json:"type"` // MIME type hint
}

// Snapshot holds the complete result of one pipeline run.
type Snapshot struct {
	Meta        SnapshotMeta
	Inventory   *Inventory
	Diagnostics *Diagnostics // nil for inventory-only runs
	Report      *Report      // nil for inventory-only runs
	Artifacts   []Artifact
}

// SnapshotMeta contains run metadata. It is never part of the serialized report.
type SnapshotMeta struct {
	Root        string   `json:"root"`
	GeneratedAt string   `json:"generated_at"`
	Duration    string   `json:"duration"`
	Extractor   string   `json:"extractor"`
	Renderers   []string `json:"renderers"`
}
