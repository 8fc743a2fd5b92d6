package git

import (
	"fmt"
	"net/url"
	"os/exec"
	"strings"
)

// RepoRoot returns the git repository root for the given path,
// or an error if the path is not inside a git repository.
func RepoRoot(path string) (string, error) {
	out, err := run(path, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("not a git repository (or git not installed): %w", err)
	}
	return out, nil
}

// CurrentRef returns the symbolic ref of HEAD, e.g. refs/heads/main.
// A detached HEAD yields an error.
func CurrentRef(repoRoot string) (string, error) {
	out, err := run(repoRoot, "symbolic-ref", "-q", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git symbolic-ref HEAD: %w", err)
	}
	return out, nil
}

// OriginRepository returns owner/repo parsed from the origin remote URL.
func OriginRepository(repoRoot string) (string, error) {
	out, err := run(repoRoot, "config", "--get", "remote.origin.url")
	if err != nil {
		return "", fmt.Errorf("git remote origin: %w", err)
	}
	repo, ok := ParseRemoteURL(out)
	if !ok {
		return "", fmt.Errorf("origin %q is not an owner/repo remote", out)
	}
	return repo, nil
}

// ParseRemoteURL extracts owner/repo from https, ssh and scp-style remotes.
func ParseRemoteURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	var path string
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false
		}
		path = u.Path
	} else if host, after, ok := strings.Cut(raw, ":"); ok && strings.Contains(host, "@") {
		path = after
	} else {
		return "", false
	}
	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return "", false
	}
	owner, name := parts[len(parts)-2], parts[len(parts)-1]
	if owner == "" || name == "" {
		return "", false
	}
	return owner + "/" + name, true
}

func run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
