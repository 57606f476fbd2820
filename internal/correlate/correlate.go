// Package correlate joins a source inventory with the diagnostics of one
// verifier run into a report.
package correlate

import (
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dejo1307/verusreport/internal/facts"
)

// Options controls correlation.
type Options struct {
	// InferVerified marks every function without an explicit outcome as
	// verified when verification ran and nothing failed to compile.
	InferVerified bool
	// Module restricts the report to files of a module path such as "a::b".
	Module string
	// Function restricts the report to functions with this exact name.
	Function string
}

// InScope reports whether r passes the module and function scope.
func (o Options) InScope(r facts.FunctionRecord) bool {
	if o.Function != "" && r.Name != o.Function {
		return false
	}
	if o.Module != "" && !inModule(r.File, o.Module) {
		return false
	}
	return true
}

// correlation is the mutable state of one Correlate call.
type correlation struct {
	records      []facts.FunctionRecord
	byName       map[string][]int
	byFile       map[string][]int
	files        []string
	status       map[facts.FunctionKey]facts.OutcomeStatus
	inconsistent map[string]struct{}
}

// Correlate merges inv and diag. It never mutates either input and always
// returns a normalized report whose status is recomputed from the merged data.
func Correlate(inv *facts.Inventory, diag *facts.Diagnostics, opts Options) *facts.Report {
	if diag == nil {
		diag = &facts.Diagnostics{}
	}

	c := newCorrelation(inv.Filter(opts.InScope).All())
	for _, name := range diag.Inconsistent {
		c.inconsistent[name] = struct{}{}
	}

	compileFailed := len(diag.Errors) > 0
	var verificationErrors []facts.VerificationError
	if !compileFailed {
		for _, o := range diag.Outcomes {
			for _, i := range c.matchOutcome(o) {
				c.status[c.records[i].Key()] = o.Status
			}
		}

		verificationErrors = slices.Clone(diag.VerificationErrors)
		for k := range verificationErrors {
			e := &verificationErrors[k]
			if !e.HasLocation() {
				continue
			}
			i, ok := c.attribute(e.File, e.Line)
			if !ok {
				continue
			}
			r := c.records[i]
			e.Function = r.Name
			if c.status[r.Key()] == facts.OutcomeVerified {
				c.inconsistent[r.Name] = struct{}{}
			}
			c.status[r.Key()] = facts.OutcomeFailed
		}

		if opts.InferVerified && diag.VerificationRan() {
			for _, r := range c.records {
				if _, ok := c.status[r.Key()]; !ok {
					c.status[r.Key()] = facts.OutcomeVerified
				}
			}
		}
	}

	report := &facts.Report{
		Compilation: facts.CompilationSection{
			Errors:   slices.Clone(diag.Errors),
			Warnings: slices.Clone(diag.Warnings),
		},
		FunctionsByFile: make(facts.FunctionsByFile, len(c.files)),
		Anomalies: facts.Anomalies{
			Skipped:           inv.Skips(),
			UnclassifiedLines: slices.Clone(diag.Unclassified),
		},
	}
	if !compileFailed {
		report.Verification.Errors = verificationErrors
		if diag.Results != nil {
			results := *diag.Results
			report.Verification.Results = &results
		}
	}

	// Records are already in (file, line, name) order.
	for _, r := range c.records {
		report.FunctionsByFile[r.File] = append(report.FunctionsByFile[r.File], facts.FunctionLine{Name: r.Name, Line: r.StartLine})
		switch c.status[r.Key()] {
		case facts.OutcomeVerified:
			report.Verification.Verified = append(report.Verification.Verified, r.Ref())
		case facts.OutcomeFailed:
			report.Verification.Failed = append(report.Verification.Failed, r.Ref())
		}
	}

	for name := range c.inconsistent {
		report.Anomalies.InconsistentOutcomes = append(report.Anomalies.InconsistentOutcomes, name)
	}
	slices.Sort(report.Anomalies.InconsistentOutcomes)

	report.Summary = facts.Summary{
		TotalFunctions:       len(c.records),
		VerifiedFunctions:    len(report.Verification.Verified),
		FailedFunctions:      len(report.Verification.Failed),
		CompilationErrors:    len(report.Compilation.Errors),
		CompilationWarnings:  len(report.Compilation.Warnings),
		VerificationErrors:   len(report.Verification.Errors),
		FilesScanned:         inv.FilesScanned(),
		ReadErrors:           inv.SkipCount(facts.SkipReadError),
		ParseErrors:          inv.SkipCount(facts.SkipParseError) + inv.SkipCount(facts.SkipDuplicate),
		UnclassifiedLines:    len(report.Anomalies.UnclassifiedLines),
		InconsistentOutcomes: len(report.Anomalies.InconsistentOutcomes),
	}
	report.Status = status(report, diag)
	return report.Normalize()
}

func newCorrelation(records []facts.FunctionRecord) *correlation {
	c := &correlation{
		records:      records,
		byName:       make(map[string][]int),
		byFile:       make(map[string][]int),
		status:       make(map[facts.FunctionKey]facts.OutcomeStatus, len(records)),
		inconsistent: make(map[string]struct{}),
	}
	for i, r := range records {
		if _, ok := c.byFile[r.File]; !ok {
			c.files = append(c.files, r.File)
		}
		c.byFile[r.File] = append(c.byFile[r.File], i)
		c.byName[r.Name] = append(c.byName[r.Name], i)
	}
	return c
}

// status derives the report status. Compile errors dominate; any failure
// evidence after that makes the run a verification failure.
func status(r *facts.Report, diag *facts.Diagnostics) facts.Status {
	if len(r.Compilation.Errors) > 0 {
		return facts.StatusCompilationFailed
	}
	if len(r.Verification.Failed) > 0 || len(r.Verification.Errors) > 0 {
		return facts.StatusVerificationFailed
	}
	for _, o := range diag.Outcomes {
		if o.Status == facts.OutcomeFailed {
			return facts.StatusVerificationFailed
		}
	}
	return facts.StatusSuccess
}

// matchOutcome returns the records an outcome refers to. Names are matched
// by their final segment; a module qualifier narrows the candidates to the
// module's files when any of them match.
func (c *correlation) matchOutcome(o facts.VerificationOutcome) []int {
	candidates := c.byName[o.ShortName()]
	mod := o.ModulePath()
	if mod == "" || len(candidates) < 2 {
		return candidates
	}
	var preferred []int
	for _, i := range candidates {
		if inModule(c.records[i].File, mod) {
			preferred = append(preferred, i)
		}
	}
	if len(preferred) > 0 {
		return preferred
	}
	return candidates
}

// attribute finds the record a diagnostic at file:line belongs to: the
// innermost record containing the line, else the nearest record starting
// above it.
func (c *correlation) attribute(file string, line int) (int, bool) {
	f, ok := c.matchFile(file)
	if !ok {
		return 0, false
	}

	best, bestAbove := -1, -1
	for _, i := range c.byFile[f] {
		r := c.records[i]
		if r.StartLine > line {
			break
		}
		bestAbove = i
		if r.Contains(line) {
			// Later starts within a containing span are nested deeper.
			best = i
		}
	}
	if best >= 0 {
		return best, true
	}
	if bestAbove >= 0 {
		return bestAbove, true
	}
	return 0, false
}

// matchFile maps a diagnostic path onto an inventory file: exact match,
// then a path-suffix match in either direction, then the base name.
func (c *correlation) matchFile(file string) (string, bool) {
	file = cleanPath(file)
	if file == "" {
		return "", false
	}
	if _, ok := c.byFile[file]; ok {
		return file, true
	}
	for _, f := range c.files {
		cf := cleanPath(f)
		if cf == file || hasPathSuffix(cf, file) || hasPathSuffix(file, cf) {
			return f, true
		}
	}
	base := path.Base(file)
	for _, f := range c.files {
		if path.Base(cleanPath(f)) == base {
			return f, true
		}
	}
	return "", false
}

func cleanPath(p string) string {
	if p == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean(filepath.ToSlash(p)), "./")
}

func hasPathSuffix(p, suffix string) bool {
	return strings.HasSuffix(p, "/"+suffix)
}

// inModule reports whether file belongs to the module path mod ("a::b"),
// i.e. it is a/b.rs or lives under a/b/.
func inModule(file, mod string) bool {
	mod = strings.TrimPrefix(strings.Trim(mod, ":"), "crate::")
	p := "/" + strings.ReplaceAll(mod, "::", "/")
	f := "/" + cleanPath(file)
	return strings.Contains(f, p+".rs") || strings.Contains(f, p+"/")
}
