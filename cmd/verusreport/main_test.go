package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejo1307/verusreport/internal/facts"
	"github.com/dejo1307/verusreport/internal/renderers/msgpackreport"
)

const libSource = `verus! {

spec fn double(x: int) -> int {
    x * 2
}

proof fn lemma_double(x: int)
    ensures double(x) == x + x,
{
}

fn main() {
    let x = 1;
    assert(x == 2);
}

} // verus!
`

const failingTranscript = `error: assertion failed
  --> src/lib.rs:14:12
   |
14 |     assert(x == 2);
   |            ^^^^^^ assertion failed

verification results:: 2 verified, 1 errors
`

func setupCrate(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "lib.rs"), []byte(libSource), 0o644))
	return root
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// run executes the command line and returns the exit status and outputs.
func run(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(append([]string{"--quiet"}, args...), strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	code, out, _ := run(t, "", "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "verusreport")
	assert.Contains(t, out, Version)
}

func TestFunctions(t *testing.T) {
	root := setupCrate(t)

	code, out, stderr := run(t, "", "functions", root)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "double\nlemma_double\nmain\n", out)

	code, out, _ = run(t, "", "functions", "--exclude-verus-constructs", root)
	require.Equal(t, 0, code)
	assert.Equal(t, "main\n", out)

	code, out, _ = run(t, "", "functions", "--format", "detailed", root)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "lemma_double [proof fn] (private)")
	assert.Contains(t, out, "Summary: 3 functions in 1 files")

	code, out, _ = run(t, "", "functions", "-f", "json", root)
	require.Equal(t, 0, code)
	var doc struct {
		Summary struct {
			TotalFunctions int `json:"total_functions"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, 3, doc.Summary.TotalFunctions)
}

func TestFunctions_OutputFile(t *testing.T) {
	root := setupCrate(t)
	path := filepath.Join(t.TempDir(), "functions.jsonl")

	code, out, _ := run(t, "", "functions", "--format", "jsonl", "-o", path, root)
	require.Equal(t, 0, code)
	assert.Empty(t, out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 3)
}

func TestFunctions_Errors(t *testing.T) {
	root := setupCrate(t)

	code, _, stderr := run(t, "", "functions", "--format", "yaml", root)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "error:")

	code, _, _ = run(t, "", "functions", filepath.Join(root, "missing"))
	assert.Equal(t, 1, code)
}

func TestReport_JSON(t *testing.T) {
	root := setupCrate(t)
	tr := writeFile(t, t.TempDir(), "verus.log", failingTranscript)

	code, out, stderr := run(t, "", "report", "--transcript", tr, "--exit-code", "1", root)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "verification_failed")

	var rep facts.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, facts.StatusVerificationFailed, rep.Status)
	require.Len(t, rep.Verification.Failed, 1)
	assert.Equal(t, "main", rep.Verification.Failed[0].Name)
	require.Len(t, rep.Verification.Errors, 1)
	assert.Equal(t, "main", rep.Verification.Errors[0].Function)
}

func TestReport_Stdin(t *testing.T) {
	root := setupCrate(t)

	code, out, stderr := run(t, "verification results:: 3 verified, 0 errors\n",
		"report", "--transcript", "-", "--infer-verified", root)
	require.Equal(t, 0, code, stderr)

	var rep facts.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, facts.StatusSuccess, rep.Status)
	assert.Len(t, rep.Verification.Verified, 3)
}

func TestReport_Msgpack(t *testing.T) {
	root := setupCrate(t)
	tr := writeFile(t, t.TempDir(), "verus.log", failingTranscript)

	code, out, _ := run(t, "", "report", "-t", tr, "-f", "msgpack", root)
	require.Equal(t, 0, code)

	rep, err := msgpackreport.Unmarshal([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, facts.StatusVerificationFailed, rep.Status)
}

func TestReport_MsgpackDeterministic(t *testing.T) {
	root := setupCrate(t)
	for _, name := range []string{"seq.rs", "map.rs", "set.rs"} {
		writeFile(t, filepath.Join(root, "src"), name, "fn helper() {}\n")
	}
	tr := writeFile(t, t.TempDir(), "verus.log", failingTranscript)

	code, first, stderr := run(t, "", "report", "-t", tr, "-f", "msgpack", root)
	require.Equal(t, 0, code, stderr)
	for i := 0; i < 5; i++ {
		code, again, _ := run(t, "", "report", "-t", tr, "-f", "msgpack", root)
		require.Equal(t, 0, code)
		require.Equal(t, first, again)
	}

	rep, err := msgpackreport.Unmarshal([]byte(first))
	require.NoError(t, err)
	assert.Len(t, rep.FunctionsByFile, 4)
}

func TestReport_Strict(t *testing.T) {
	root := setupCrate(t)
	tr := writeFile(t, t.TempDir(), "verus.log", failingTranscript)

	code, _, _ := run(t, "", "report", "-t", tr, "--strict", root)
	assert.Equal(t, strictFailureStatus, code)

	ok := writeFile(t, t.TempDir(), "verus.log", "verification results:: 3 verified, 0 errors\n")
	code, _, _ = run(t, "", "report", "-t", ok, "--strict", root)
	assert.Equal(t, 0, code)
}

func TestReport_WriteArtifacts(t *testing.T) {
	root := setupCrate(t)
	tr := writeFile(t, t.TempDir(), "verus.log", failingTranscript)

	code, _, stderr := run(t, "", "report", "-t", tr, "-o", filepath.Join(t.TempDir(), "r.json"), "--write-artifacts", root)
	require.Equal(t, 0, code, stderr)

	out := filepath.Join(root, ".verusreport")
	assert.FileExists(t, filepath.Join(out, "report.json"))
	assert.FileExists(t, filepath.Join(out, "report.md"))
	assert.FileExists(t, filepath.Join(out, "inventory.jsonl"))

	// The written inventory can stand in for the source tree.
	code, rep, stderr := run(t, "", "report", "-t", tr, "--inventory", filepath.Join(out, "inventory.jsonl"), root)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, rep, `"name": "main"`)
}

func TestReport_Errors(t *testing.T) {
	root := setupCrate(t)

	code, _, stderr := run(t, "", "report", root)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "transcript")

	code, _, _ = run(t, "", "report", "-t", filepath.Join(root, "missing.log"), root)
	assert.Equal(t, 1, code)

	tr := writeFile(t, t.TempDir(), "verus.log", failingTranscript)
	code, _, stderr = run(t, "", "report", "-t", tr, "-f", "xml", root)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown report format")
}

func TestBadConfig(t *testing.T) {
	root := setupCrate(t)
	cfg := writeFile(t, t.TempDir(), "verusreport.yaml", "renderers: [bogus]\n")

	code, _, stderr := run(t, "", "--config", cfg, "functions", root)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "bogus")
}

func TestConfigFile(t *testing.T) {
	root := setupCrate(t)
	cfg := writeFile(t, t.TempDir(), "verusreport.toml", "[report]\nfunction = \"main\"\n")
	tr := writeFile(t, t.TempDir(), "verus.log", failingTranscript)

	code, out, stderr := run(t, "", "--config", cfg, "report", "-t", tr, root)
	require.Equal(t, 0, code, stderr)

	var rep facts.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 1, rep.Summary.TotalFunctions)
}
