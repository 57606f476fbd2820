package transcript

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dejo1307/verusreport/internal/facts"
)

// Error messages cargo and rustc print after the real diagnostics.
var errorTrailers = []string{"could not compile", "aborting due to"}

const maxDetails = 10

// classify separates the collected blocks into compile errors, warnings and
// verification errors, resolves outcomes and applies the exit-code safety
// nets.
func (p *Parser) classify(s *scan, t facts.Transcript) *facts.Diagnostics {
	d := &facts.Diagnostics{
		Unclassified: s.unclassified,
		ExitCode:     t.ExitCode,
	}
	ran := s.results != nil

	// A trailer only stands for a compile error when nothing else explains it.
	realCompileError := false
	for _, b := range s.blocks {
		if b.severity == facts.SeverityError && !isTrailer(b.message) && !(ran && p.errorType(b.message) != "") {
			realCompileError = true
			break
		}
	}

	var verificationErrors []facts.VerificationError
	for _, b := range s.blocks {
		switch {
		case b.severity == facts.SeverityWarning:
			d.Warnings = append(d.Warnings, b.issue())
		case ran && p.errorType(b.message) != "":
			verificationErrors = append(verificationErrors, b.verificationError(p.errorType(b.message)))
		case isTrailer(b.message):
			if !ran && !realCompileError {
				d.Errors = append(d.Errors, b.issue())
			}
		default:
			d.Errors = append(d.Errors, b.issue())
		}
	}

	if len(d.Errors) > 0 {
		// The verifier did not run to completion; nothing it printed about
		// individual functions can be trusted.
		d.Status = facts.StatusCompilationFailed
		return d
	}

	d.Results = s.results
	d.Outcomes, d.Inconsistent = resolveOutcomes(s.outcomes)
	d.VerificationErrors = verificationErrors

	hasFailedOutcome := slices.ContainsFunc(d.Outcomes, func(o facts.VerificationOutcome) bool {
		return o.Status == facts.OutcomeFailed
	})

	if t.Truncated || t.ExitCode < 0 {
		d.VerificationErrors = append(d.VerificationErrors, facts.VerificationError{
			ErrorType: facts.ErrorTypeIncomplete,
			Message:   incompleteMessage(t),
		})
	}
	if ran && s.results.Errors > 0 && len(verificationErrors) == 0 && !hasFailedOutcome {
		d.VerificationErrors = append(d.VerificationErrors, facts.VerificationError{
			ErrorType: facts.ErrorTypeResultsSummary,
			Message:   fmt.Sprintf("verifier reported %d errors without diagnostics", s.results.Errors),
		})
	}
	if t.ExitCode != 0 && !hasFailedOutcome && len(d.VerificationErrors) == 0 {
		d.VerificationErrors = append(d.VerificationErrors, facts.VerificationError{
			ErrorType: facts.ErrorTypeExitStatus,
			Message:   fmt.Sprintf("verifier exited with status %d", t.ExitCode),
		})
	}

	if hasFailedOutcome || len(d.VerificationErrors) > 0 {
		d.Status = facts.StatusVerificationFailed
	} else {
		d.Status = facts.StatusSuccess
	}
	return d
}

// resolveOutcomes keeps the last outcome per function name, in the order
// the winning lines appear, and lists names seen with both statuses.
func resolveOutcomes(all []facts.VerificationOutcome) ([]facts.VerificationOutcome, []string) {
	last := make(map[string]facts.VerificationOutcome, len(all))
	statuses := make(map[string]map[facts.OutcomeStatus]bool, len(all))
	for _, o := range all {
		last[o.FunctionName] = o
		if statuses[o.FunctionName] == nil {
			statuses[o.FunctionName] = make(map[facts.OutcomeStatus]bool, 2)
		}
		statuses[o.FunctionName][o.Status] = true
	}

	outcomes := make([]facts.VerificationOutcome, 0, len(last))
	var inconsistent []string
	for name, o := range last {
		outcomes = append(outcomes, o)
		if len(statuses[name]) > 1 {
			inconsistent = append(inconsistent, name)
		}
	}
	slices.SortFunc(outcomes, func(a, b facts.VerificationOutcome) int { return a.TranscriptLine - b.TranscriptLine })
	slices.Sort(inconsistent)
	return outcomes, inconsistent
}

// errorType returns the configured verification error type the message
// starts with, or "".
func (p *Parser) errorType(message string) string {
	for _, t := range p.errorTypes {
		if strings.HasPrefix(message, t) {
			return t
		}
	}
	return ""
}

func isTrailer(message string) bool {
	for _, t := range errorTrailers {
		if strings.HasPrefix(message, t) {
			return true
		}
	}
	return false
}

func incompleteMessage(t facts.Transcript) string {
	if t.Truncated {
		return "transcript is truncated; the verifier run did not complete"
	}
	return fmt.Sprintf("verifier was terminated (exit status %d)", t.ExitCode)
}

func (b block) issue() facts.CompilationIssue {
	return facts.CompilationIssue{
		Severity: b.severity,
		Code:     b.code,
		Message:  b.message,
		File:     b.file,
		Line:     b.line,
		Column:   b.column,
		RawText:  b.raw,
	}
}

func (b block) verificationError(errorType string) facts.VerificationError {
	var details []string
	for _, l := range b.raw {
		l = strings.TrimSpace(l)
		if l != "" && (strings.Contains(l, "assert") || strings.Contains(l, "|") || strings.HasPrefix(l, "-->")) {
			details = append(details, l)
		}
		if len(details) == maxDetails {
			break
		}
	}
	return facts.VerificationError{
		ErrorType: errorType,
		Message:   b.message,
		File:      b.file,
		Line:      b.line,
		Column:    b.column,
		Details:   details,
		RawText:   b.raw,
	}
}

// Anomalies returns the parse anomalies of d as typed errors, for callers
// that log or count them.
func Anomalies(d *facts.Diagnostics) []error {
	var errs []error
	for _, u := range d.Unclassified {
		errs = append(errs, &facts.LogFormatError{Line: u.Line, Text: u.Text})
	}
	final := make(map[string]facts.OutcomeStatus, len(d.Outcomes))
	for _, o := range d.Outcomes {
		final[o.FunctionName] = o.Status
	}
	for _, name := range d.Inconsistent {
		errs = append(errs, &facts.InconsistentOutcomeError{Function: name, Final: final[name]})
	}
	return errs
}
