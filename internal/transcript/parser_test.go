package transcript

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejo1307/verusreport/internal/facts"
)

// --- helpers ---

func parseText(t *testing.T, text string, exit int) *facts.Diagnostics {
	t.Helper()
	p, err := New(DefaultConfig())
	require.NoError(t, err)
	return p.Parse(facts.Transcript{Text: text, ExitCode: exit})
}

func lines(ls ...string) string { return strings.Join(ls, "\n") + "\n" }

// --- status and classification ---

func TestParse_ExitZeroNoDiagnosticsIsSuccess(t *testing.T) {
	d := parseText(t, lines("   Compiling demo v0.1.0", "    Finished dev profile"), 0)
	assert.Equal(t, facts.StatusSuccess, d.Status)
	assert.Empty(t, d.Errors)
	assert.Empty(t, d.VerificationErrors)
	assert.Empty(t, d.Unclassified, "cargo progress is noise")
}

func TestParse_EmptyTranscriptExitZero(t *testing.T) {
	d := parseText(t, "", 0)
	assert.Equal(t, facts.StatusSuccess, d.Status)
}

func TestParse_SingleCompileErrorNoMarkers(t *testing.T) {
	d := parseText(t, lines(
		"error[E0425]: cannot find value `y` in this scope",
		"  --> src/lib.rs:7:13",
		"   |",
		"7  |     let x = y;",
		"   |             ^ not found in this scope",
	), 101)

	require.Len(t, d.Errors, 1)
	e := d.Errors[0]
	assert.Equal(t, facts.SeverityError, e.Severity)
	assert.Equal(t, "E0425", e.Code)
	assert.Equal(t, "cannot find value `y` in this scope", e.Message)
	assert.Equal(t, "src/lib.rs", e.File)
	assert.Equal(t, 7, e.Line)
	assert.Equal(t, 13, e.Column)
	assert.Len(t, e.RawText, 5)
	assert.Equal(t, "error[E0425]: cannot find value `y` in this scope", e.RawText[0])

	assert.Equal(t, facts.StatusCompilationFailed, d.Status)
	assert.Empty(t, d.Outcomes)
	assert.Empty(t, d.VerificationErrors)
	assert.Nil(t, d.Results)
}

func TestParse_AssertionFailedWithoutResultsIsCompileError(t *testing.T) {
	d := parseText(t, "error: assertion failed at file.rs:10:4", 101)

	require.Len(t, d.Errors, 1)
	assert.Equal(t, facts.StatusCompilationFailed, d.Status)
	assert.Equal(t, "file.rs", d.Errors[0].File)
	assert.Equal(t, 10, d.Errors[0].Line)
	assert.Equal(t, 4, d.Errors[0].Column)
}

func TestParse_VerificationFailure(t *testing.T) {
	d := parseText(t, lines(
		"verifying module demo",
		"error: assertion failed",
		"  --> src/lib.rs:12:9",
		"   |",
		"12 |         assert(x > 10);",
		"   |         ^^^^^^^^^^^^^^ assertion failed",
		"",
		"verification results:: 3 verified, 1 errors",
		"error: aborting due to 1 previous error",
		"error: could not compile `demo` (lib) due to 1 previous error",
	), 101)

	assert.Empty(t, d.Errors, "trailers are dropped once verification ran")
	require.Len(t, d.VerificationErrors, 1)
	v := d.VerificationErrors[0]
	assert.Equal(t, "assertion failed", v.ErrorType)
	assert.Equal(t, "src/lib.rs", v.File)
	assert.Equal(t, 12, v.Line)
	assert.Equal(t, 9, v.Column)
	assert.Contains(t, v.Details, "12 |         assert(x > 10);")
	assert.Contains(t, v.Details, "--> src/lib.rs:12:9")

	require.NotNil(t, d.Results)
	assert.Equal(t, facts.VerifierResults{Verified: 3, Errors: 1}, *d.Results)
	assert.Equal(t, facts.StatusVerificationFailed, d.Status)
}

func TestParse_ResultsAreSummed(t *testing.T) {
	d := parseText(t, lines(
		"verification results:: 2 verified, 0 errors",
		"verification results:: 5 verified, 0 errors",
	), 0)
	require.NotNil(t, d.Results)
	assert.Equal(t, 7, d.Results.Verified)
	assert.Equal(t, facts.StatusSuccess, d.Status)
}

func TestParse_OnlyTrailerIsKept(t *testing.T) {
	d := parseText(t, "error: could not compile `demo` (lib) due to 2 previous errors\n", 101)
	require.Len(t, d.Errors, 1)
	assert.Equal(t, facts.StatusCompilationFailed, d.Status)

	d = parseText(t, lines("error[E0308]: mismatched types", "error: aborting due to 1 previous error"), 1)
	require.Len(t, d.Errors, 1)
	assert.Equal(t, "E0308", d.Errors[0].Code)
}

func TestParse_Warnings(t *testing.T) {
	d := parseText(t, lines(
		"warning: unused variable: `x`",
		" --> src/main.rs:2:9",
		"  |",
		"  = note: `#[warn(unused_variables)]` on by default",
		"",
		"warning: 1 warning emitted",
		"warning: `demo` (bin \"demo\") generated 1 warning",
		"verification results:: 1 verified, 0 errors",
	), 0)

	require.Len(t, d.Warnings, 1)
	w := d.Warnings[0]
	assert.Equal(t, facts.SeverityWarning, w.Severity)
	assert.Equal(t, "src/main.rs", w.File)
	assert.Equal(t, 2, w.Line)
	assert.Len(t, w.RawText, 4)
	assert.Empty(t, d.Unclassified)
	assert.Equal(t, facts.StatusSuccess, d.Status)
}

func TestParse_WarningBlockEndsAtNextMarker(t *testing.T) {
	d := parseText(t, lines(
		"warning: unused import",
		"  --> src/a.rs:1:5",
		"error[E0599]: no method named `foo`",
		"  --> src/b.rs:9:7",
	), 1)
	require.Len(t, d.Warnings, 1)
	require.Len(t, d.Errors, 1)
	assert.Equal(t, "src/a.rs", d.Warnings[0].File)
	assert.Equal(t, "src/b.rs", d.Errors[0].File)
}

func TestParse_FirstLocationWins(t *testing.T) {
	d := parseText(t, lines(
		"error: postcondition not satisfied",
		"  --> src/lib.rs:20:5",
		"   |",
		"note: failed this postcondition",
		"  --> src/lib.rs:18:13",
		"verification results:: 0 verified, 1 errors",
	), 1)
	require.Len(t, d.VerificationErrors, 1)
	assert.Equal(t, 20, d.VerificationErrors[0].Line)
	assert.Len(t, d.VerificationErrors[0].RawText, 5)
}

func TestParse_FatalLines(t *testing.T) {
	d := parseText(t, lines(
		"error: could not compile `demo`",
		"",
		"Caused by:",
		"  process didn't exit successfully: `rustc` (signal: 9, SIGKILL: kill)",
		"memory allocation of 4294967296 bytes failed",
	), 101)

	require.Len(t, d.Errors, 1, "the trailer is dropped next to a real error")
	assert.Contains(t, d.Errors[0].Message, "process didn't exit successfully")
	assert.Len(t, d.Errors[0].RawText, 2, "the allocation failure continues the open block")

	require.Len(t, d.Unclassified, 1)
	assert.Equal(t, "Caused by:", d.Unclassified[0].Text)
}

func TestParse_PanicIsCompileError(t *testing.T) {
	d := parseText(t, lines(
		"verification results:: 4 verified, 0 errors",
		"thread 'main' panicked at src/main.rs:3:5:",
		"explicit panic",
	), 101)
	require.Len(t, d.Errors, 1)
	assert.Equal(t, facts.StatusCompilationFailed, d.Status)
	assert.Nil(t, d.Results)
}

func TestParse_ANSIStripped(t *testing.T) {
	d := parseText(t, lines(
		"\x1b[0m\x1b[1m\x1b[38;5;9merror[E0425]\x1b[0m\x1b[0m\x1b[1m: cannot find value `q`\x1b[0m",
		"\x1b[0m  \x1b[0m\x1b[0m\x1b[1m\x1b[38;5;12m--> \x1b[0m\x1b[0msrc/lib.rs:3:1\x1b[0m",
	), 1)
	require.Len(t, d.Errors, 1)
	assert.Equal(t, "E0425", d.Errors[0].Code)
	assert.Equal(t, "src/lib.rs", d.Errors[0].File)
	assert.NotContains(t, d.Errors[0].RawText[0], "\x1b")
}

func TestParse_UnclassifiedDiagnosticLinesKept(t *testing.T) {
	d := parseText(t, lines(
		"note: automatically chose triggers for this expression:",
		"   |",
		"Error while running the solver",
		"random progress output",
	), 0)
	require.Len(t, d.Unclassified, 3)
	assert.Equal(t, 1, d.Unclassified[0].Line)
	assert.Equal(t, 3, d.Unclassified[2].Line)

	errs := Anomalies(d)
	require.Len(t, errs, 3)
	var lf *facts.LogFormatError
	assert.True(t, errors.As(errs[0], &lf))
}

// --- outcomes ---

func TestParse_OutcomeMarkers(t *testing.T) {
	d := parseText(t, lines(
		"verified: lemma_a",
		"verified: `crate::seq::lemma_b`",
		"failed: lemma_c",
		"verification results:: 2 verified, 1 errors",
	), 1)

	require.Len(t, d.Outcomes, 3)
	assert.Equal(t, "crate::seq::lemma_b", d.Outcomes[1].FunctionName)
	assert.Equal(t, facts.OutcomeFailed, d.Outcomes[2].Status)
	assert.Equal(t, 3, d.Outcomes[2].TranscriptLine)
	assert.Equal(t, facts.StatusVerificationFailed, d.Status)
	for _, v := range d.VerificationErrors {
		assert.NotEqual(t, facts.ErrorTypeResultsSummary, v.ErrorType, "a failed marker explains the error count")
	}
}

func TestParse_InconsistentOutcomeLastWins(t *testing.T) {
	d := parseText(t, lines(
		"failed: f",
		"verified: g",
		"verified: f",
	), 0)

	require.Len(t, d.Outcomes, 2)
	assert.Equal(t, "g", d.Outcomes[0].FunctionName)
	assert.Equal(t, "f", d.Outcomes[1].FunctionName)
	assert.Equal(t, facts.OutcomeVerified, d.Outcomes[1].Status)
	assert.Equal(t, []string{"f"}, d.Inconsistent)

	errs := Anomalies(d)
	require.Len(t, errs, 1)
	var inc *facts.InconsistentOutcomeError
	require.ErrorAs(t, errs[0], &inc)
	assert.Equal(t, facts.OutcomeVerified, inc.Final)
}

func TestParse_CompileErrorClearsOutcomes(t *testing.T) {
	d := parseText(t, lines(
		"verified: f",
		"error[E0433]: failed to resolve",
		"verification results:: 1 verified, 0 errors",
	), 1)
	assert.Equal(t, facts.StatusCompilationFailed, d.Status)
	assert.Empty(t, d.Outcomes)
	assert.Nil(t, d.Results)
}

func TestParse_CustomMarkers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VerifiedMarker = `^\[ok\]\s+(\S+)$`
	cfg.FailedMarker = `^\[FAIL\]\s+(?P<name>\S+)`
	p, err := New(cfg)
	require.NoError(t, err)

	d := p.Parse(facts.Transcript{Text: "[ok] a\n[FAIL] b\n", ExitCode: 1})
	require.Len(t, d.Outcomes, 2)
	assert.Equal(t, "a", d.Outcomes[0].FunctionName)
	assert.Equal(t, facts.OutcomeFailed, d.Outcomes[1].Status)
}

// --- safety nets ---

func TestParse_NonzeroExitWithoutEvidence(t *testing.T) {
	d := parseText(t, lines("verification results:: 3 verified, 0 errors"), 1)
	require.Len(t, d.VerificationErrors, 1)
	assert.Equal(t, facts.ErrorTypeExitStatus, d.VerificationErrors[0].ErrorType)
	assert.Equal(t, facts.StatusVerificationFailed, d.Status)
}

func TestParse_ResultsErrorsWithoutBlocks(t *testing.T) {
	d := parseText(t, lines("verification results:: 3 verified, 2 errors"), 0)
	require.Len(t, d.VerificationErrors, 1)
	assert.Equal(t, facts.ErrorTypeResultsSummary, d.VerificationErrors[0].ErrorType)
	assert.Equal(t, facts.StatusVerificationFailed, d.Status)
}

func TestParse_TruncatedNeverSucceeds(t *testing.T) {
	p, err := New(DefaultConfig())
	require.NoError(t, err)

	d := p.Parse(facts.Transcript{Text: "verified: f\nverification results:: 1 verified, 0 errors\n", ExitCode: 0, Truncated: true})
	assert.Equal(t, facts.StatusVerificationFailed, d.Status)
	require.Len(t, d.VerificationErrors, 1)
	assert.Equal(t, facts.ErrorTypeIncomplete, d.VerificationErrors[0].ErrorType)

	d = p.Parse(facts.Transcript{Text: "verified: f\n", ExitCode: -9})
	assert.Equal(t, facts.StatusVerificationFailed, d.Status)
	assert.Equal(t, facts.ErrorTypeIncomplete, d.VerificationErrors[0].ErrorType)
}

// --- config ---

func TestNew_RejectsBadMarkers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VerifiedMarker = "^verified: ("
	_, err := New(cfg)
	assert.Error(t, err)
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.FailedMarker = "^failed: \\S+"
	_, err = New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capture group")

	cfg = DefaultConfig()
	cfg.VerificationErrorTypes = []string{""}
	assert.Error(t, cfg.Validate())
	assert.NoError(t, DefaultConfig().Validate())
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, os.WriteFile(path, []byte("error: boom\n"), 0o644))

	tr, err := ReadFile(path, 2)
	require.NoError(t, err)
	assert.Equal(t, "error: boom\n", tr.Text)
	assert.Equal(t, 2, tr.ExitCode)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.txt"), 0)
	assert.Error(t, err)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "Scanning", scanning.String())
	assert.Equal(t, "InErrorBlock", inErrorBlock.String())
	assert.Equal(t, "InWarningBlock", inWarningBlock.String())
}
