package facts

import (
	"maps"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
)

// Status is the overall outcome of one verification run.
type Status string

const (
	StatusSuccess            Status = "success"
	StatusCompilationFailed  Status = "compilation_failed"
	StatusVerificationFailed Status = "verification_failed"
)

// Report is the correlated, serializable result of one run.
type Report struct {
	Status          Status              `json:"status" msgpack:"status"`
	Summary         Summary             `json:"summary" msgpack:"summary"`
	Compilation     CompilationSection  `json:"compilation" msgpack:"compilation"`
	Verification    VerificationSection `json:"verification" msgpack:"verification"`
	FunctionsByFile FunctionsByFile     `json:"functions_by_file" msgpack:"functions_by_file"`
	Anomalies       Anomalies           `json:"anomalies" msgpack:"anomalies"`
}

// Summary holds the counts derived from the merged data.
type Summary struct {
	TotalFunctions       int `json:"total_functions" msgpack:"total_functions"`
	VerifiedFunctions    int `json:"verified_functions" msgpack:"verified_functions"`
	FailedFunctions      int `json:"failed_functions" msgpack:"failed_functions"`
	CompilationErrors    int `json:"compilation_errors" msgpack:"compilation_errors"`
	CompilationWarnings  int `json:"compilation_warnings" msgpack:"compilation_warnings"`
	VerificationErrors   int `json:"verification_errors" msgpack:"verification_errors"`
	FilesScanned         int `json:"files_scanned" msgpack:"files_scanned"`
	ReadErrors           int `json:"read_errors" msgpack:"read_errors"`
	ParseErrors          int `json:"parse_errors" msgpack:"parse_errors"`
	UnclassifiedLines    int `json:"unclassified_lines" msgpack:"unclassified_lines"`
	InconsistentOutcomes int `json:"inconsistent_outcomes" msgpack:"inconsistent_outcomes"`
}

type CompilationSection struct {
	Errors   []CompilationIssue `json:"errors" msgpack:"errors"`
	Warnings []CompilationIssue `json:"warnings" msgpack:"warnings"`
}

type VerificationSection struct {
	Verified []FunctionRef       `json:"verified" msgpack:"verified"`
	Failed   []FunctionRef       `json:"failed" msgpack:"failed"`
	Errors   []VerificationError `json:"errors" msgpack:"errors"`
	Results  *VerifierResults    `json:"results,omitempty" msgpack:"results,omitempty"`
}

// FunctionsByFile lists the functions of each file, keyed by path.
type FunctionsByFile map[string][]FunctionLine

// EncodeMsgpack writes the files in path order. The msgpack encoder only
// sorts keys of a few builtin map types.
func (m FunctionsByFile) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(len(m)); err != nil {
		return err
	}
	for _, file := range slices.Sorted(maps.Keys(m)) {
		if err := enc.EncodeString(file); err != nil {
			return err
		}
		if err := enc.Encode(m[file]); err != nil {
			return err
		}
	}
	return nil
}

// FunctionLine is one entry of the functions_by_file listing.
type FunctionLine struct {
	Name string `json:"name" msgpack:"name"`
	Line int    `json:"line" msgpack:"line"`
}

// Anomalies surfaces everything the run skipped or could not classify.
type Anomalies struct {
	Skipped              []Skip             `json:"skipped" msgpack:"skipped"`
	UnclassifiedLines    []UnclassifiedLine `json:"unclassified_lines" msgpack:"unclassified_lines"`
	InconsistentOutcomes []string           `json:"inconsistent_outcomes" msgpack:"inconsistent_outcomes"`
}

// Normalize replaces nil slices and maps with empty ones so every array
// serializes as [] and never null. It returns the report for chaining.
func (r *Report) Normalize() *Report {
	r.Compilation.Errors = nonNil(r.Compilation.Errors)
	r.Compilation.Warnings = nonNil(r.Compilation.Warnings)
	for i := range r.Compilation.Errors {
		r.Compilation.Errors[i].RawText = nonNil(r.Compilation.Errors[i].RawText)
	}
	for i := range r.Compilation.Warnings {
		r.Compilation.Warnings[i].RawText = nonNil(r.Compilation.Warnings[i].RawText)
	}
	r.Verification.Verified = nonNil(r.Verification.Verified)
	r.Verification.Failed = nonNil(r.Verification.Failed)
	r.Verification.Errors = nonNil(r.Verification.Errors)
	for i := range r.Verification.Errors {
		r.Verification.Errors[i].Details = nonNil(r.Verification.Errors[i].Details)
		r.Verification.Errors[i].RawText = nonNil(r.Verification.Errors[i].RawText)
	}
	if r.FunctionsByFile == nil {
		r.FunctionsByFile = FunctionsByFile{}
	}
	r.Anomalies.Skipped = nonNil(r.Anomalies.Skipped)
	r.Anomalies.UnclassifiedLines = nonNil(r.Anomalies.UnclassifiedLines)
	r.Anomalies.InconsistentOutcomes = nonNil(r.Anomalies.InconsistentOutcomes)
	return r
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
