package transcript

import (
	"fmt"
	"regexp"
)

// Config holds the markers the parser recognizes. It is passed explicitly
// to New; nothing is cached between parsers.
type Config struct {
	// VerifiedMarker and FailedMarker match per-function result lines. The
	// function name is taken from the capture group named "name", or the
	// first group when there is none.
	VerifiedMarker string
	FailedMarker   string
	// VerificationErrorTypes are the error message prefixes that denote a
	// verification failure rather than a compile error.
	VerificationErrorTypes []string
}

// DefaultConfig returns the markers printed by Verus.
func DefaultConfig() Config {
	return Config{
		VerifiedMarker: "^verified:\\s*`?(?P<name>[A-Za-z_][A-Za-z0-9_:]*)`?",
		FailedMarker:   "^failed:\\s*`?(?P<name>[A-Za-z_][A-Za-z0-9_:]*)`?",
		VerificationErrorTypes: []string{
			"assertion failed",
			"postcondition not satisfied",
			"precondition not satisfied",
			"loop invariant not preserved",
			"loop invariant not satisfied on entry",
			"assertion not satisfied",
			"possible arithmetic underflow/overflow",
			"decreases not satisfied",
		},
	}
}

// marker is a compiled outcome marker.
type marker struct {
	re   *regexp.Regexp
	name int // submatch index of the function name
}

func compileMarker(expr string) (marker, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return marker{}, err
	}
	idx := re.SubexpIndex("name")
	if idx < 0 {
		if re.NumSubexp() < 1 {
			return marker{}, fmt.Errorf("marker %q has no capture group for the function name", expr)
		}
		idx = 1
	}
	return marker{re: re, name: idx}, nil
}

func (m marker) match(line string) (string, bool) {
	sm := m.re.FindStringSubmatch(line)
	if sm == nil || sm[m.name] == "" {
		return "", false
	}
	return sm[m.name], true
}

// Validate compiles the markers and reports the first problem.
func (c Config) Validate() error {
	if _, err := compileMarker(c.VerifiedMarker); err != nil {
		return fmt.Errorf("verified marker: %w", err)
	}
	if _, err := compileMarker(c.FailedMarker); err != nil {
		return fmt.Errorf("failed marker: %w", err)
	}
	for _, t := range c.VerificationErrorTypes {
		if t == "" {
			return fmt.Errorf("empty verification error type")
		}
	}
	return nil
}
