package transcript

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/dejo1307/verusreport/internal/facts"
)

var (
	ansiRe     = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)
	resultsRe  = regexp.MustCompile(`verification results::\s*(\d+)\s+verified,\s*(\d+)\s+errors?`)
	errorRe    = regexp.MustCompile(`^error(?:\[(E\d+)\])?:\s*(.*)$`)
	warningRe  = regexp.MustCompile(`^warning(?:\[([A-Za-z0-9_]+)\])?:\s*(.*)$`)
	locationRe = regexp.MustCompile(`-->\s+(.+):(\d+):(\d+)\s*$`)
	inlineLoc  = regexp.MustCompile(`\bat\s+(\S+):(\d+):(\d+)$`)
	severityRe = regexp.MustCompile(`(?i)^(error|warning)\b`)

	warningTrailerRe = regexp.MustCompile(`^(\d+ warnings? emitted|.*generated \d+ warnings?.*|build failed, waiting for other jobs to finish.*)$`)

	fatalRes = []*regexp.Regexp{
		regexp.MustCompile(`^memory allocation of \d+ bytes failed`),
		regexp.MustCompile(`^thread '.*' panicked at`),
		regexp.MustCompile(`process didn't exit successfully`),
	}
)

// Prefixes of lines that belong to a diagnostic. Outside a block they are
// kept as unclassified rather than dropped.
var diagnosticPrefixes = []string{"note:", "help:", "-->", "|", "=", "Caused by:"}

type mode int

const (
	scanning mode = iota
	inErrorBlock
	inWarningBlock
)

func (m mode) String() string {
	switch m {
	case inErrorBlock:
		return "InErrorBlock"
	case inWarningBlock:
		return "InWarningBlock"
	default:
		return "Scanning"
	}
}

// block is a diagnostic being accumulated.
type block struct {
	severity facts.Severity
	code     string
	message  string
	file     string
	line     int
	column   int
	located  bool
	raw      []string
}

// Parser turns verifier transcripts into diagnostics. A Parser holds only
// compiled configuration and is safe for concurrent use.
type Parser struct {
	verified   marker
	failed     marker
	errorTypes []string
}

// New compiles the configured markers.
func New(cfg Config) (*Parser, error) {
	verified, err := compileMarker(cfg.VerifiedMarker)
	if err != nil {
		return nil, fmt.Errorf("compiling verified marker: %w", err)
	}
	failed, err := compileMarker(cfg.FailedMarker)
	if err != nil {
		return nil, fmt.Errorf("compiling failed marker: %w", err)
	}
	return &Parser{verified: verified, failed: failed, errorTypes: cfg.VerificationErrorTypes}, nil
}

// scan is the per-transcript state of the line state machine.
type scan struct {
	p            *Parser
	mode         mode
	cur          *block
	blocks       []block
	outcomes     []facts.VerificationOutcome
	results      *facts.VerifierResults
	unclassified []facts.UnclassifiedLine
}

// Parse runs the line state machine over the transcript and classifies
// the collected blocks. Lines are processed strictly in order.
func (p *Parser) Parse(t facts.Transcript) *facts.Diagnostics {
	s := &scan{p: p}
	for i, raw := range strings.Split(t.Text, "\n") {
		s.step(i+1, raw)
	}
	s.flush()
	return p.classify(s, t)
}

func (s *scan) step(n int, raw string) {
	line := strings.TrimRight(ansiRe.ReplaceAllString(raw, ""), " \t\r")
	trimmed := strings.TrimSpace(line)

	if trimmed == "" {
		s.flush()
		return
	}

	if m := resultsRe.FindStringSubmatch(trimmed); m != nil {
		s.flush()
		verified, _ := strconv.Atoi(m[1])
		errs, _ := strconv.Atoi(m[2])
		if s.results == nil {
			s.results = &facts.VerifierResults{}
		}
		s.results.Verified += verified
		s.results.Errors += errs
		return
	}

	if m := errorRe.FindStringSubmatch(trimmed); m != nil {
		s.open(inErrorBlock, facts.SeverityError, m[1], m[2], line)
		return
	}

	if m := warningRe.FindStringSubmatch(trimmed); m != nil {
		if warningTrailerRe.MatchString(m[2]) {
			s.flush()
			return
		}
		s.open(inWarningBlock, facts.SeverityWarning, m[1], m[2], line)
		return
	}

	if isFatal(trimmed) {
		if s.mode == inErrorBlock {
			s.cur.raw = append(s.cur.raw, line)
			return
		}
		s.open(inErrorBlock, facts.SeverityError, "", trimmed, line)
		return
	}

	if name, ok := s.p.failed.match(trimmed); ok {
		s.flush()
		s.outcomes = append(s.outcomes, facts.VerificationOutcome{FunctionName: name, Status: facts.OutcomeFailed, TranscriptLine: n})
		return
	}
	if name, ok := s.p.verified.match(trimmed); ok {
		s.flush()
		s.outcomes = append(s.outcomes, facts.VerificationOutcome{FunctionName: name, Status: facts.OutcomeVerified, TranscriptLine: n})
		return
	}

	if s.mode != scanning {
		s.cur.raw = append(s.cur.raw, line)
		if !s.cur.located {
			if m := locationRe.FindStringSubmatch(trimmed); m != nil {
				s.cur.setLocation(m[1], m[2], m[3])
			}
		}
		return
	}

	if looksDiagnostic(trimmed) {
		s.unclassified = append(s.unclassified, facts.UnclassifiedLine{Line: n, Text: line})
	}
}

func (s *scan) open(m mode, sev facts.Severity, code, message, line string) {
	s.flush()
	b := &block{severity: sev, code: code, message: message, raw: []string{line}}
	if loc := inlineLoc.FindStringSubmatch(message); loc != nil {
		b.setLocation(loc[1], loc[2], loc[3])
	}
	s.cur = b
	s.mode = m
}

func (s *scan) flush() {
	if s.cur != nil {
		s.blocks = append(s.blocks, *s.cur)
		s.cur = nil
	}
	s.mode = scanning
}

func (b *block) setLocation(file, line, col string) {
	b.file = file
	b.line, _ = strconv.Atoi(line)
	b.column, _ = strconv.Atoi(col)
	b.located = true
}

func isFatal(line string) bool {
	for _, re := range fatalRes {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func looksDiagnostic(line string) bool {
	for _, p := range diagnosticPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return severityRe.MatchString(line)
}

// Read consumes a transcript from r.
func Read(r io.Reader, exitCode int) (facts.Transcript, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return facts.Transcript{}, fmt.Errorf("reading transcript: %w", err)
	}
	return facts.Transcript{Text: string(data), ExitCode: exitCode}, nil
}

// ReadFile loads a transcript captured to a file.
func ReadFile(path string, exitCode int) (facts.Transcript, error) {
	f, err := os.Open(path)
	if err != nil {
		return facts.Transcript{}, fmt.Errorf("opening transcript %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, exitCode)
}
