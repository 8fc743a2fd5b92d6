package envsafe

import (
	"os"
	"strings"
	"testing"
)

func envMap(env []string) map[string]string {
	out := map[string]string{}
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		out[k] = v
	}
	return out
}

func TestGitEnv_DropsTokens(t *testing.T) {
	env := envMap(GitEnv([]string{
		"PATH=/usr/bin",
		"HOME=/home/runner",
		"GITHUB_TOKEN=ghp_secret",
		"GH_TOKEN=ghp_other",
		"AWS_SECRET_ACCESS_KEY=abc",
		"HTTPS_PROXY=http://proxy:3128",
	}))

	for _, key := range []string{"GITHUB_TOKEN", "GH_TOKEN", "AWS_SECRET_ACCESS_KEY"} {
		if _, ok := env[key]; ok {
			t.Fatalf("%s must not be forwarded", key)
		}
	}
	if env["HOME"] != "/home/runner" || env["HTTPS_PROXY"] != "http://proxy:3128" {
		t.Fatalf("expected allowlisted values, got %v", env)
	}
	if env["GIT_TERMINAL_PROMPT"] != "0" {
		t.Fatalf("expected prompts disabled, got %q", env["GIT_TERMINAL_PROMPT"])
	}
}

func TestGitEnv_Deterministic(t *testing.T) {
	in := []string{"TMPDIR=/tmp", "PATH=/bin", "HOME=/root"}
	a := GitEnv(in)
	b := GitEnv([]string{in[2], in[0], in[1]})
	if strings.Join(a, "\n") != strings.Join(b, "\n") {
		t.Fatalf("expected sorted output regardless of input order:\n%v\n%v", a, b)
	}
}

func TestGitEnv_PathSanitized(t *testing.T) {
	sep := string(os.PathListSeparator)
	env := envMap(GitEnv([]string{"PATH=." + sep + "relative/bin" + sep + "/usr/bin" + sep + "/usr/bin/" + sep + ".."}))
	if env["PATH"] != "/usr/bin" {
		t.Fatalf("expected only absolute unique entries, got %q", env["PATH"])
	}
}

func TestGitEnv_DefaultPath(t *testing.T) {
	env := envMap(GitEnv(nil))
	if env["PATH"] != defaultSafePath() {
		t.Fatalf("expected default PATH, got %q", env["PATH"])
	}

	env = envMap(GitEnv([]string{"PATH=./only-relative"}))
	if env["PATH"] != defaultSafePath() {
		t.Fatalf("expected default PATH for relative-only input, got %q", env["PATH"])
	}
}

func TestGitEnv_MalformedEntries(t *testing.T) {
	env := GitEnv([]string{"", "=value", "NOEQUALS", "HOME=/h"})
	m := envMap(env)
	if m["HOME"] != "/h" {
		t.Fatalf("expected HOME preserved, got %v", env)
	}
	if len(env) != 3 {
		t.Fatalf("expected HOME, PATH and GIT_TERMINAL_PROMPT only, got %v", env)
	}
}
