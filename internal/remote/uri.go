// Package remote resolves policy references that live in another
// repository and loads them from a shallow clone.
package remote

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// DefaultPolicyPath is used when a repository reference names no file.
const DefaultPolicyPath = "policy.yml"

var (
	ErrEmptyURI      = errors.New("policy reference is empty")
	ErrAbsolutePath  = errors.New("absolute paths are not allowed")
	ErrInvalidURI    = errors.New("invalid policy reference")
	ErrCloneFailed   = errors.New("repository failed to clone")
	ErrGitNotPresent = errors.New("git executable not found")
)

// URI is a parsed policy reference. Repository is empty for local paths.
type URI struct {
	Repository string
	Path       string
	Branch     string
}

func (u URI) Remote() bool {
	return u.Repository != ""
}

// PolicyPath is the file to load inside the clone.
func (u URI) PolicyPath() string {
	if u.Path == "" {
		return DefaultPolicyPath
	}
	return u.Path
}

func (u URI) String() string {
	if !u.Remote() {
		return u.Path
	}
	out := u.Repository
	if u.Path != "" {
		out += "/" + u.Path
	}
	if u.Branch != "" {
		out += "@" + u.Branch
	}
	return out
}

// ParseURI accepts:
//
//	./policy.yml, policies/default.yml        local path
//	owner/repo                                 repository, default file
//	owner/repo@branch                          repository at branch
//	owner/repo/path/to/policy.yml@branch       file in repository at branch
//
// Absolute paths and ".." segments are rejected.
func ParseURI(raw string) (URI, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return URI{}, ErrEmptyURI
	}
	if strings.HasPrefix(raw, "/") || filepath.IsAbs(raw) || hasParentSegment(raw) {
		return URI{}, fmt.Errorf("%w: %s", ErrAbsolutePath, raw)
	}
	if strings.HasPrefix(raw, "./") {
		return URI{Path: raw}, nil
	}

	ref, branch, hasBranch := strings.Cut(raw, "@")
	if hasBranch {
		branch = strings.TrimSpace(branch)
		if branch == "" {
			return URI{}, fmt.Errorf("%w: empty branch in %q", ErrInvalidURI, raw)
		}
	}
	parts := strings.SplitN(ref, "/", 3)
	if !hasBranch && !(len(parts) == 2 && !isPolicyFile(parts[1])) {
		return URI{Path: raw}, nil
	}
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return URI{}, fmt.Errorf("%w: expected owner/repo in %q", ErrInvalidURI, raw)
	}
	u := URI{
		Repository: parts[0] + "/" + parts[1],
		Branch:     branch,
	}
	if len(parts) == 3 {
		u.Path = strings.Trim(parts[2], "/")
	}
	return u, nil
}

func hasParentSegment(raw string) bool {
	for _, seg := range strings.FieldsFunc(raw, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}

func isPolicyFile(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".yml", ".yaml", ".json":
		return true
	default:
		return false
	}
}
