package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func initTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test",
			"GIT_AUTHOR_EMAIL=test@test.com",
			"GIT_COMMITTER_NAME=test",
			"GIT_COMMITTER_EMAIL=test@test.com",
		)
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("git %v failed: %v\n%s", args, err, out)
		}
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@test.com")
	run("config", "user.name", "test")
	run("remote", "add", "origin", "git@github.com:octo-org/web-app.git")
	if err := os.WriteFile(filepath.Join(dir, "initial.txt"), []byte("init"), 0o600); err != nil {
		t.Fatal(err)
	}
	run("add", "initial.txt")
	run("commit", "-m", "initial")
	return dir
}

func TestRepoRoot(t *testing.T) {
	dir := initTestRepo(t)
	sub := filepath.Join(dir, "nested")
	if err := os.MkdirAll(sub, 0o700); err != nil {
		t.Fatal(err)
	}
	root, err := RepoRoot(sub)
	if err != nil {
		t.Fatalf("RepoRoot: %v", err)
	}
	// Resolve symlinks for macOS /private/var/folders comparison.
	wantAbs, _ := filepath.EvalSymlinks(dir)
	gotAbs, _ := filepath.EvalSymlinks(root)
	if gotAbs != wantAbs {
		t.Errorf("RepoRoot = %q, want %q", gotAbs, wantAbs)
	}
}

func TestRepoRootNotARepo(t *testing.T) {
	dir := t.TempDir()
	_, err := RepoRoot(dir)
	if err == nil {
		t.Fatal("expected error for non-git directory")
	}
}

func TestCurrentRef(t *testing.T) {
	dir := initTestRepo(t)
	ref, err := CurrentRef(dir)
	if err != nil {
		t.Fatalf("CurrentRef: %v", err)
	}
	if ref != "refs/heads/main" {
		t.Errorf("CurrentRef = %q, want refs/heads/main", ref)
	}
}

func TestOriginRepository(t *testing.T) {
	dir := initTestRepo(t)
	repo, err := OriginRepository(dir)
	if err != nil {
		t.Fatalf("OriginRepository: %v", err)
	}
	if repo != "octo-org/web-app" {
		t.Errorf("OriginRepository = %q, want octo-org/web-app", repo)
	}
}

func TestParseRemoteURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://github.com/octo/repo.git", "octo/repo", true},
		{"https://github.com/octo/repo", "octo/repo", true},
		{"https://ghe.example.com/octo/repo/", "octo/repo", true},
		{"ssh://git@github.com/octo/repo.git", "octo/repo", true},
		{"git@github.com:octo/repo.git", "octo/repo", true},
		{"/srv/git/repo", "", false},
		{"https://github.com/repo", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseRemoteURL(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseRemoteURL(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
