package facts

import (
	"errors"
	"fmt"
)

// FileReadError reports a source file or directory that could not be read.
// The file is skipped and the run continues.
type FileReadError struct {
	Path string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("reading %s: %v", e.Path, e.Err)
}

func (e *FileReadError) Unwrap() error { return e.Err }

// ParseError reports a file or a single declaration that could not be
// parsed. Line is 0 when the whole file was rejected.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parsing %s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("parsing %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// LogFormatError reports a diagnostic-looking transcript line that matched
// no known marker. The line is kept verbatim as unclassified.
type LogFormatError struct {
	Line int
	Text string
}

func (e *LogFormatError) Error() string {
	return fmt.Sprintf("unrecognized diagnostic at transcript line %d: %q", e.Line, e.Text)
}

// InconsistentOutcomeError reports a function seen with both outcomes.
// The last occurrence wins.
type InconsistentOutcomeError struct {
	Function string
	Final    OutcomeStatus
}

func (e *InconsistentOutcomeError) Error() string {
	return fmt.Sprintf("function %s reported both verified and failed (kept %s)", e.Function, e.Final)
}

// SkipFor converts a read or parse error into an inventory skip entry.
// Any other error is recorded as a read error on an unknown path.
func SkipFor(err error) Skip {
	var readErr *FileReadError
	var parseErr *ParseError
	switch {
	case errors.As(err, &parseErr):
		return Skip{File: parseErr.Path, Line: parseErr.Line, Reason: SkipParseError, Message: parseErr.Err.Error()}
	case errors.As(err, &readErr):
		return Skip{File: readErr.Path, Reason: SkipReadError, Message: readErr.Err.Error()}
	default:
		return Skip{Reason: SkipReadError, Message: err.Error()}
	}
}
