package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GeekMasher/advanced-security-compliance/internal/model"
	"github.com/GeekMasher/advanced-security-compliance/internal/remote"
	"github.com/GeekMasher/advanced-security-compliance/internal/version"
)

const testPolicy = `name: Test Policy
codescanning:
  level: error
secretscanning:
  level: all
`

const codeScanningRecords = `[
  {"number": 1, "state": "open", "rule": {"id": "js/xss", "severity": "error", "description": "Reflected XSS"},
   "tool": {"name": "CodeQL"}, "most_recent_instance": {"location": {"path": "src/app.js", "start_line": 3}}},
  {"number": 2, "state": "open", "rule": {"id": "js/unused", "severity": "note", "description": "Unused variable"},
   "tool": {"name": "CodeQL"}, "most_recent_instance": {"location": {"path": "src/app.js", "start_line": 9}}}
]`

const secretScanningRecords = `[{"number": 7, "state": "open", "secret_type": "github_personal_access_token"}]`

type testEnv struct {
	dir    string
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

// setupCLI isolates config lookup, swaps the output writers and writes a
// policy plus an offline record directory.
func setupCLI(t *testing.T, env map[string]string) testEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	oldStdout, oldStderr, oldLookup := stdout, stderr, lookupEnv
	stdout, stderr = out, errOut
	lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	t.Cleanup(func() {
		stdout, stderr, lookupEnv = oldStdout, oldStderr, oldLookup
		_ = os.Chdir(oldWD)
	})

	writeFile(t, filepath.Join(dir, "policy.yml"), testPolicy)
	records := filepath.Join(dir, "records")
	writeFile(t, filepath.Join(records, "code-scanning.json"), codeScanningRecords)
	writeFile(t, filepath.Join(records, "secretscanning.json"), secretScanningRecords)

	return testEnv{dir: dir, stdout: out, stderr: errOut}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestExecute_UsageErrors(t *testing.T) {
	setupCLI(t, nil)

	cases := [][]string{
		nil,
		{"bogus"},
		{"check", "--action", "explode"},
		{"check", "--format", "xml"},
		{"check", "extra-arg"},
		{"check", "--disable", "not-a-tech"},
		{"policy"},
		{"policy", "delete"},
		{"severities", "--from", "urgent"},
	}
	for _, args := range cases {
		err := Execute(args)
		if code := ExitCode(err); code != 2 {
			t.Fatalf("Execute(%v): expected exit 2, got %d (%v)", args, code, err)
		}
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Fatal("nil error should exit 0")
	}
	if ExitCode(errors.New("boom")) != 1 {
		t.Fatal("plain error should exit 1")
	}
	wrapped := errors.Join(errors.New("ctx"), &ExitError{Code: 2, Err: errors.New("usage")})
	if ExitCode(wrapped) != 2 {
		t.Fatal("wrapped ExitError should keep its code")
	}
}

func TestExecute_Version(t *testing.T) {
	te := setupCLI(t, nil)
	if err := Execute([]string{"version"}); err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(te.stdout.String()) != version.Version {
		t.Fatalf("unexpected version output %q", te.stdout.String())
	}
}

func TestExecute_Severities(t *testing.T) {
	te := setupCLI(t, nil)
	if err := Execute([]string{"severities"}); err != nil {
		t.Fatalf("severities: %v", err)
	}
	lines := strings.Fields(te.stdout.String())
	if len(lines) != 13 || lines[0] != "critical" || lines[12] != "none" {
		t.Fatalf("unexpected severities: %v", lines)
	}

	te.stdout.Reset()
	if err := Execute([]string{"severities", "--from", "error"}); err != nil {
		t.Fatalf("severities --from: %v", err)
	}
	if got := strings.Fields(te.stdout.String()); strings.Join(got, ",") != "critical,high,error" {
		t.Fatalf("unexpected expansion: %v", got)
	}
}

func TestCheck_OfflineViolationsFail(t *testing.T) {
	te := setupCLI(t, nil)
	jsonPath := filepath.Join(te.dir, "out", "report.json")
	sarifPath := filepath.Join(te.dir, "out", "report.sarif")
	if err := os.MkdirAll(filepath.Dir(jsonPath), 0o700); err != nil {
		t.Fatal(err)
	}

	err := Execute([]string{
		"check", "--policy", "./policy.yml", "--offline", "records",
		"--format", "plain", "--json", jsonPath, "--sarif", sarifPath,
	})
	if ExitCode(err) != 1 {
		t.Fatalf("expected exit 1 on violations, got %v", err)
	}
	if !strings.Contains(err.Error(), "2 violations found") {
		t.Fatalf("unexpected error: %v", err)
	}

	b, readErr := os.ReadFile(jsonPath)
	if readErr != nil {
		t.Fatalf("read json report: %v", readErr)
	}
	var rep model.Report
	if err := json.Unmarshal(b, &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if rep.TotalViolations != 2 || rep.Passed {
		t.Fatalf("unexpected report: total=%d passed=%v", rep.TotalViolations, rep.Passed)
	}
	if rep.Policy != "./policy.yml" || rep.Threshold != "error" {
		t.Fatalf("unexpected policy metadata: %q %q", rep.Policy, rep.Threshold)
	}
	if _, err := os.Stat(sarifPath); err != nil {
		t.Fatalf("expected sarif output: %v", err)
	}
	if !strings.Contains(te.stdout.String(), "FAILED: 2 violations") {
		t.Fatalf("expected summary on stdout:\n%s", te.stdout.String())
	}
}

func TestCheck_CountAndContinue(t *testing.T) {
	setupCLI(t, nil)

	if err := Execute([]string{"check", "--policy", "./policy.yml", "--offline", "records", "--count", "2"}); err != nil {
		t.Fatalf("expected pass with --count 2, got %v", err)
	}
	if err := Execute([]string{"check", "--policy", "./policy.yml", "--offline", "records", "--action", "continue"}); err != nil {
		t.Fatalf("expected pass with --action continue, got %v", err)
	}
}

func TestCheck_DisableTechnology(t *testing.T) {
	te := setupCLI(t, nil)
	jsonPath := filepath.Join(te.dir, "report.json")

	err := Execute([]string{
		"check", "--policy", "./policy.yml", "--offline", "records",
		"--disable", "secretscanning", "--json", jsonPath,
	})
	if ExitCode(err) != 1 {
		t.Fatalf("expected code scanning violation to fail, got %v", err)
	}
	b, readErr := os.ReadFile(jsonPath)
	if readErr != nil {
		t.Fatal(readErr)
	}
	var rep model.Report
	if err := json.Unmarshal(b, &rep); err != nil {
		t.Fatal(err)
	}
	for _, r := range rep.Results {
		if r.Technology == "secretscanning" {
			t.Fatal("secretscanning should not run when disabled")
		}
	}
	if rep.TotalViolations != 1 {
		t.Fatalf("expected 1 violation, got %d", rep.TotalViolations)
	}
}

func TestCheck_ActionsFormatGroupsOutput(t *testing.T) {
	te := setupCLI(t, map[string]string{"GITHUB_ACTIONS": "true"})

	_ = Execute([]string{"check", "--policy", "./policy.yml", "--offline", "records", "--display"})
	out := te.stderr.String()
	if !strings.Contains(out, "::group::") || !strings.Contains(out, "::endgroup::") {
		t.Fatalf("expected workflow groups in actions output:\n%s", out)
	}
	if !strings.Contains(out, "::error") {
		t.Fatalf("expected violation annotations:\n%s", out)
	}
}

func TestCheck_SchemaErrorIsFatal(t *testing.T) {
	te := setupCLI(t, nil)
	writeFile(t, filepath.Join(te.dir, "bad.yml"), "codescan:\n  level: error\n")

	err := Execute([]string{"check", "--policy", "./bad.yml", "--offline", "records"})
	if ExitCode(err) != 1 || !strings.Contains(err.Error(), "Schema Validation Failed") {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestCheck_AbsolutePolicyRejected(t *testing.T) {
	setupCLI(t, nil)

	err := Execute([]string{"check", "--policy", "/etc/policy.yml", "--offline", "records"})
	if !errors.Is(err, remote.ErrAbsolutePath) {
		t.Fatalf("expected absolute path error, got %v", err)
	}
}

func TestCheck_RequiresTokenOnline(t *testing.T) {
	setupCLI(t, map[string]string{"GITHUB_REPOSITORY": "octo/repo"})

	err := Execute([]string{"check", "--policy", "./policy.yml"})
	if err == nil || !strings.Contains(err.Error(), "token is required") {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestCheck_SnapshotWritesResolvedPolicy(t *testing.T) {
	te := setupCLI(t, nil)
	snap := filepath.Join(te.dir, "snapshot.json")

	_ = Execute([]string{"check", "--policy", "./policy.yml", "--offline", "records", "--snapshot", snap})
	b, err := os.ReadFile(snap)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if doc["name"] != "Test Policy" {
		t.Fatalf("unexpected snapshot name %v", doc["name"])
	}
}

func TestPolicyValidateAndShow(t *testing.T) {
	te := setupCLI(t, nil)

	if err := Execute([]string{"policy", "validate", "./policy.yml"}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	out := te.stdout.String()
	if !strings.Contains(out, "policy is valid: Test Policy") || !strings.Contains(out, "codescanning") {
		t.Fatalf("unexpected validate output:\n%s", out)
	}

	te.stdout.Reset()
	if err := Execute([]string{"policy", "show", "./policy.yml"}); err != nil {
		t.Fatalf("show: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(te.stdout.Bytes(), &doc); err != nil {
		t.Fatalf("show output is not json: %v\n%s", err, te.stdout.String())
	}
	if doc["name"] != "Test Policy" {
		t.Fatalf("unexpected policy name %v", doc["name"])
	}
}

func TestPolicyValidate_DefaultDocument(t *testing.T) {
	te := setupCLI(t, nil)
	if err := os.Remove(filepath.Join(te.dir, "policy.yml")); err != nil {
		t.Fatal(err)
	}

	if err := Execute([]string{"policy", "validate", "--severity", "high"}); err != nil {
		t.Fatalf("validate default: %v", err)
	}
	out := te.stdout.String()
	if !strings.Contains(out, "policy is valid: Policy (Policy)") {
		t.Fatalf("expected default policy:\n%s", out)
	}
	if !strings.Contains(out, "level=high") {
		t.Fatalf("expected inherited threshold:\n%s", out)
	}
}

func TestPolicyValidate_RepositoryDefaultFile(t *testing.T) {
	te := setupCLI(t, nil)
	writeFile(t, filepath.Join(te.dir, ".compliance", "policy.yml"), "name: Repo Policy\ngeneral:\n  level: warning\n")

	if err := Execute([]string{"policy", "validate"}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(te.stdout.String(), "policy is valid: Repo Policy") {
		t.Fatalf("expected repository policy:\n%s", te.stdout.String())
	}
}

func TestCheck_WritesBadge(t *testing.T) {
	te := setupCLI(t, nil)
	path := filepath.Join(te.dir, "compliance.svg")

	_ = Execute([]string{"check", "--policy", "./policy.yml", "--offline", "records", "--badge", path})
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read badge: %v", err)
	}
	if !strings.Contains(string(b), "2 violations") {
		t.Fatalf("unexpected badge:\n%s", b)
	}
}
