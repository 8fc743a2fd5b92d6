package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/GeekMasher/advanced-security-compliance/internal/envsafe"
	"github.com/GeekMasher/advanced-security-compliance/internal/policy"
	"github.com/GeekMasher/advanced-security-compliance/internal/progress"
	"github.com/GeekMasher/advanced-security-compliance/internal/redact"
	"github.com/GeekMasher/advanced-security-compliance/internal/safefile"
)

const DefaultInstance = "https://github.com"

// CloneOptions configures a policy repository clone.
type CloneOptions struct {
	// Instance is the server URL, e.g. https://github.com.
	Instance string
	Token    string
	// AppToken switches the credential form to x-access-token.
	AppToken bool
	// TempDir overrides the OS temp directory for the scratch checkout.
	TempDir string
	// URL bypasses Instance/Token and clones from this location as given.
	URL  string
	Sink progress.Sink
}

// CloneURL builds the https clone URL for repo, embedding token when set.
func CloneURL(instance, repo, token string, appToken bool) (string, error) {
	instance = strings.TrimSpace(instance)
	if instance == "" {
		instance = DefaultInstance
	}
	if !strings.Contains(instance, "://") {
		instance = "https://" + instance
	}
	base, err := url.Parse(instance)
	if err != nil || base.Host == "" {
		return "", fmt.Errorf("%w: instance %q", ErrInvalidURI, instance)
	}
	u := url.URL{
		Scheme: "https",
		Host:   base.Host,
		Path:   "/" + strings.Trim(repo, "/"),
	}
	if token != "" {
		if appToken {
			u.User = url.UserPassword("x-access-token", token)
		} else {
			u.User = url.User(token)
		}
	}
	return u.String(), nil
}

// Clone performs a shallow clone of uri into a fresh scratch directory.
// The caller must invoke cleanup once the checkout is no longer needed.
func Clone(ctx context.Context, uri URI, opts CloneOptions) (string, func(), error) {
	noop := func() {}
	if !uri.Remote() {
		return "", noop, fmt.Errorf("%w: %q is not a repository reference", ErrInvalidURI, uri.String())
	}
	if _, err := exec.LookPath("git"); err != nil {
		return "", noop, ErrGitNotPresent
	}

	source := opts.URL
	if source == "" {
		var err error
		source, err = CloneURL(opts.Instance, uri.Repository, opts.Token, opts.AppToken)
		if err != nil {
			return "", noop, err
		}
	}

	tmp := opts.TempDir
	if tmp == "" {
		tmp = os.TempDir()
	}
	dir, err := safefile.EnsureFreshDir(filepath.Join(tmp, "ghascompliance-policy-"+uuid.NewString()), 0o700)
	if err != nil {
		return "", noop, fmt.Errorf("%w: %w", ErrCloneFailed, err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			progress.Warnf(opts.Sink, "remove policy checkout %s: %v", dir, err)
		}
	}

	args := []string{"clone", "--depth=1"}
	if uri.Branch != "" {
		args = append(args, "-b", uri.Branch)
	}
	args = append(args, "--", source, dir)

	progress.Infof(opts.Sink, "cloning policy repository %s", uri.Repository)
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = envsafe.GitEnv(os.Environ())
	out, err := cmd.CombinedOutput()
	if err != nil {
		cleanup()
		msg := redact.Secret(redact.Text(strings.TrimSpace(string(out))), opts.Token)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", noop, fmt.Errorf("%w: %s: %w", ErrCloneFailed, uri.Repository, ctxErr)
		}
		return "", noop, fmt.Errorf("%w: %s: %s", ErrCloneFailed, uri.Repository, msg)
	}
	if info, statErr := os.Stat(dir); statErr != nil || !info.IsDir() {
		cleanup()
		return "", noop, fmt.Errorf("%w: %s", ErrCloneFailed, uri.Repository)
	}
	return dir, cleanup, nil
}

// LoadFromRemote clones the repository named by uri, loads the referenced
// policy with the checkout as an import root, and removes the checkout.
func LoadFromRemote(ctx context.Context, uri URI, clone CloneOptions, load policy.LoadOptions) (*policy.Document, error) {
	dir, cleanup, err := Clone(ctx, uri, clone)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	full := filepath.Join(dir, filepath.FromSlash(uri.PolicyPath()))
	load.PolicyRepository = dir
	if load.TempDir == "" {
		load.TempDir = clone.TempDir
	}
	if load.Sink == nil {
		load.Sink = clone.Sink
	}
	doc, err := policy.Load(full, load)
	if err != nil {
		if errors.Is(err, policy.ErrPolicyNotFound) {
			return nil, fmt.Errorf("%w: %s in %s", policy.ErrPolicyNotFound, uri.PolicyPath(), uri.Repository)
		}
		return nil, err
	}
	return doc, nil
}
