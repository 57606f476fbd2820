package facts

import (
	"encoding/json"
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunctionKind(t *testing.T) {
	tests := []struct {
		mode    string
		isConst bool
		want    string
	}{
		{"", false, "fn"},
		{"", true, "const fn"},
		{"spec", false, "spec fn"},
		{"proof(axiom)", false, "proof(axiom) fn"},
		{"exec", true, "exec const fn"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FunctionKind(tt.mode, tt.isConst))
	}
}

func TestFunctionRecord_Detailed(t *testing.T) {
	r := FunctionRecord{
		Name: "f", File: "src/lib.rs", StartLine: 2, EndLine: 4,
		Kind: "spec fn", Visibility: VisibilityPrivate, Context: ContextStandalone,
	}
	assert.Equal(t, "f [spec fn] (private) @ src/lib.rs:2:4 in standalone", r.Detailed())
	assert.True(t, r.Contains(2))
	assert.True(t, r.Contains(4))
	assert.False(t, r.Contains(5))
}

func TestVerificationOutcome_Names(t *testing.T) {
	tests := []struct {
		name      string
		wantShort string
		wantMod   string
	}{
		{"f", "f", ""},
		{"crate::f", "f", ""},
		{"crate::seq::lemma_len", "lemma_len", "seq"},
		{"a::b::g", "g", "a::b"},
	}
	for _, tt := range tests {
		o := VerificationOutcome{FunctionName: tt.name}
		assert.Equal(t, tt.wantShort, o.ShortName(), tt.name)
		assert.Equal(t, tt.wantMod, o.ModulePath(), tt.name)
	}
}

func TestReport_NormalizeSerializesEmptyArrays(t *testing.T) {
	r := (&Report{Status: StatusSuccess}).Normalize()
	data, err := json.Marshal(r)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "null")
	assert.Contains(t, string(data), `"verified":[]`)
	assert.Contains(t, string(data), `"functions_by_file":{}`)
	assert.NotContains(t, string(data), `"results"`)
}

func TestReport_JSONRoundTripKeepsSummaryAndStatus(t *testing.T) {
	r := (&Report{
		Status: StatusVerificationFailed,
		Summary: Summary{
			TotalFunctions: 3, VerifiedFunctions: 1, FailedFunctions: 1,
			CompilationWarnings: 2, VerificationErrors: 1, FilesScanned: 2,
		},
		Verification: VerificationSection{Results: &VerifierResults{Verified: 1, Errors: 1}},
	}).Normalize()

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var back Report
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, r.Status, back.Status)
	assert.Equal(t, r.Summary, back.Summary)
	assert.Equal(t, r.Verification.Results, back.Verification.Results)
}

func TestSkipFor(t *testing.T) {
	s := SkipFor(&FileReadError{Path: "a.rs", Err: fs.ErrPermission})
	assert.Equal(t, Skip{File: "a.rs", Reason: SkipReadError, Message: fs.ErrPermission.Error()}, s)

	s = SkipFor(&ParseError{Path: "b.rs", Line: 7, Err: errors.New("fn without name")})
	assert.Equal(t, Skip{File: "b.rs", Line: 7, Reason: SkipParseError, Message: "fn without name"}, s)

	s = SkipFor(errors.New("boom"))
	assert.Equal(t, SkipReadError, s.Reason)
}

func TestErrorKinds(t *testing.T) {
	readErr := &FileReadError{Path: "a.rs", Err: fs.ErrNotExist}
	assert.ErrorIs(t, readErr, fs.ErrNotExist)
	assert.Equal(t, "reading a.rs: file does not exist", readErr.Error())

	parseErr := &ParseError{Path: "a.rs", Err: errors.New("syntax error")}
	assert.Equal(t, "parsing a.rs: syntax error", parseErr.Error())
	parseErr.Line = 3
	assert.Equal(t, "parsing a.rs:3: syntax error", parseErr.Error())

	var target *ParseError
	wrapped := errors.Join(errors.New("outer"), parseErr)
	require.ErrorAs(t, wrapped, &target)
	assert.Equal(t, 3, target.Line)

	logErr := &LogFormatError{Line: 4, Text: "note: something"}
	assert.Contains(t, logErr.Error(), "line 4")

	inc := &InconsistentOutcomeError{Function: "f", Final: OutcomeFailed}
	assert.Contains(t, inc.Error(), "kept failed")
}
