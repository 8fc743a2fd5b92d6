package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/GeekMasher/advanced-security-compliance/internal/model"
	"github.com/GeekMasher/advanced-security-compliance/internal/progress"
	"github.com/GeekMasher/advanced-security-compliance/internal/redact"
	"github.com/GeekMasher/advanced-security-compliance/internal/version"
)

const perPage = 100

// APIError is a non-success response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github api: %d %s", e.Status, e.Message)
}

// knownErrors are API responses that mean "feature unavailable" rather than
// failure. They are reported as warnings and yield no records.
var knownErrors = []struct {
	message string
	pretty  string
}{
	{message: "repository not enabled for code scanning", pretty: "Code Scanning is Disabled on Repository"},
	{message: "Secret scanning APIs are not available on public repositories"},
	{message: "Secret scanning is disabled on this repository"},
	{message: "Repository is not part of an organization."},
}

func benign(err error) (string, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return "", false
	}
	for _, known := range knownErrors {
		if strings.EqualFold(strings.TrimSpace(apiErr.Message), known.message) {
			if known.pretty != "" {
				return known.pretty, true
			}
			return known.message, true
		}
	}
	return "", false
}

type ClientOptions struct {
	Instance   string
	Token      string
	Repository Repository
	// Ref limits code scanning alerts to a branch, e.g. refs/heads/main.
	Ref        string
	HTTPClient *http.Client
	Sink       progress.Sink
	// RESTURL and GraphQLURL override the endpoints derived from Instance.
	RESTURL    string
	GraphQLURL string
}

// Client is a minimal GitHub API client for the compliance checks.
type Client struct {
	http    *http.Client
	rest    string
	graphql string
	token   string
	repo    Repository
	ref     string
	sink    progress.Sink
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Repository.Owner == "" || opts.Repository.Name == "" {
		return nil, ErrInvalidRepository
	}
	rest, graphql, err := Endpoints(opts.Instance)
	if err != nil {
		return nil, err
	}
	if opts.RESTURL != "" {
		rest = opts.RESTURL
	}
	if opts.GraphQLURL != "" {
		graphql = opts.GraphQLURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	sink := opts.Sink
	if sink == nil {
		sink = progress.NoopSink{}
	}
	return &Client{
		http:    httpClient,
		rest:    strings.TrimRight(rest, "/"),
		graphql: graphql,
		token:   opts.Token,
		repo:    opts.Repository,
		ref:     opts.Ref,
		sink:    sink,
	}, nil
}

func (c *Client) Repository() Repository {
	return c.repo
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "ghascompliance/"+version.Version)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %s", req.Method, req.URL.Path, redact.Secret(err.Error(), c.token))
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var payload struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &payload)
		if payload.Message == "" {
			payload.Message = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{Status: resp.StatusCode, Message: payload.Message}
	}
	return data, nil
}

// getPaged follows page/per_page pagination until a short page.
func getPaged[T any](ctx context.Context, c *Client, path string, params url.Values) ([]T, error) {
	var out []T
	if params == nil {
		params = url.Values{}
	}
	for page := 1; ; page++ {
		params.Set("per_page", strconv.Itoa(perPage))
		params.Set("page", strconv.Itoa(page))
		target := c.rest + path + "?" + params.Encode()
		progress.Debugf(c.sink, "GET %s", path+"?"+params.Encode())

		req, err := c.newRequest(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		data, err := c.do(req)
		if err != nil {
			return nil, err
		}
		var batch []T
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		out = append(out, batch...)
		if len(batch) < perPage {
			return out, nil
		}
	}
}

func (c *Client) repoPath(suffix string) string {
	return "/repos/" + url.PathEscape(c.repo.Owner) + "/" + url.PathEscape(c.repo.Name) + suffix
}

// downgrade turns known "feature unavailable" errors into a warning.
func (c *Client) downgrade(err error) error {
	if msg, ok := benign(err); ok {
		progress.Warnf(c.sink, "%s", msg)
		return nil
	}
	return err
}

func (c *Client) CodeScanningAlerts(ctx context.Context) ([]model.CodeScanningAlert, error) {
	params := url.Values{"state": {"open"}}
	if c.ref != "" {
		params.Set("ref", c.ref)
	}
	alerts, err := getPaged[model.CodeScanningAlert](ctx, c, c.repoPath("/code-scanning/alerts"), params)
	if err != nil {
		return nil, c.downgrade(err)
	}
	return alerts, nil
}

func (c *Client) SecretScanningAlerts(ctx context.Context) ([]model.SecretScanningAlert, error) {
	alerts, err := getPaged[model.SecretScanningAlert](ctx, c, c.repoPath("/secret-scanning/alerts"), url.Values{"state": {"open"}})
	if err != nil {
		return nil, c.downgrade(err)
	}
	return alerts, nil
}

type graphqlError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

func (c *Client) query(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.graphql, bytes.NewReader(body))
	if err != nil {
		return err
	}
	data, err := c.do(req)
	if err != nil {
		return err
	}
	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphqlError  `json:"errors"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("decode graphql response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return &APIError{Status: http.StatusOK, Message: envelope.Errors[0].Message}
	}
	return json.Unmarshal(envelope.Data, out)
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

const dependabotQuery = `query($owner: String!, $repo: String!, $after: String) {
  repository(owner: $owner, name: $repo) {
    vulnerabilityAlerts(first: 100, after: $after) {
      pageInfo { hasNextPage endCursor }
      nodes {
        number
        createdAt
        dismissReason
        securityVulnerability { package { ecosystem name } }
        securityAdvisory { ghsaId severity summary identifiers { type value } }
      }
    }
  }
}`

func (c *Client) DependabotAlerts(ctx context.Context) ([]model.DependabotAlert, error) {
	var out []model.DependabotAlert
	var after *string
	for {
		var resp struct {
			Repository struct {
				VulnerabilityAlerts struct {
					PageInfo pageInfo                `json:"pageInfo"`
					Nodes    []model.DependabotAlert `json:"nodes"`
				} `json:"vulnerabilityAlerts"`
			} `json:"repository"`
		}
		vars := map[string]any{"owner": c.repo.Owner, "repo": c.repo.Name, "after": after}
		if err := c.query(ctx, dependabotQuery, vars, &resp); err != nil {
			return nil, c.downgrade(err)
		}
		alerts := resp.Repository.VulnerabilityAlerts
		out = append(out, alerts.Nodes...)
		if !alerts.PageInfo.HasNextPage || alerts.PageInfo.EndCursor == "" {
			return out, nil
		}
		cursor := alerts.PageInfo.EndCursor
		after = &cursor
	}
}

const dependenciesQuery = `query($owner: String!, $repo: String!, $after: String) {
  repository(owner: $owner, name: $repo) {
    dependencyGraphManifests(first: 100, after: $after) {
      pageInfo { hasNextPage endCursor }
      edges {
        node {
          filename
          dependencies(first: 100) {
            edges {
              node {
                packageName
                packageManager
                requirements
                repository { isInOrganization licenseInfo { name spdxId } }
              }
            }
          }
        }
      }
    }
  }
}`

type graphDependency struct {
	PackageName    string `json:"packageName"`
	PackageManager string `json:"packageManager"`
	Requirements   string `json:"requirements"`
	Repository     *struct {
		IsInOrganization *bool `json:"isInOrganization"`
		LicenseInfo      *struct {
			Name   string `json:"name"`
			SPDXID string `json:"spdxId"`
		} `json:"licenseInfo"`
	} `json:"repository"`
}

// Dependencies returns the dependency graph flattened across manifests.
func (c *Client) Dependencies(ctx context.Context) ([]model.Dependency, error) {
	var out []model.Dependency
	var after *string
	for {
		var resp struct {
			Repository struct {
				Manifests struct {
					PageInfo pageInfo `json:"pageInfo"`
					Edges    []struct {
						Node struct {
							Filename     string `json:"filename"`
							Dependencies struct {
								Edges []struct {
									Node graphDependency `json:"node"`
								} `json:"edges"`
							} `json:"dependencies"`
						} `json:"node"`
					} `json:"edges"`
				} `json:"dependencyGraphManifests"`
			} `json:"repository"`
		}
		vars := map[string]any{"owner": c.repo.Owner, "repo": c.repo.Name, "after": after}
		if err := c.query(ctx, dependenciesQuery, vars, &resp); err != nil {
			return nil, c.downgrade(err)
		}
		manifests := resp.Repository.Manifests
		for _, manifest := range manifests.Edges {
			for _, edge := range manifest.Node.Dependencies.Edges {
				out = append(out, toDependency(manifest.Node.Filename, edge.Node))
			}
		}
		if !manifests.PageInfo.HasNextPage || manifests.PageInfo.EndCursor == "" {
			return out, nil
		}
		cursor := manifests.PageInfo.EndCursor
		after = &cursor
	}
}

func toDependency(manifest string, node graphDependency) model.Dependency {
	var license, spdx string
	var org *bool
	if node.Repository != nil {
		org = node.Repository.IsInOrganization
		if node.Repository.LicenseInfo != nil {
			license = node.Repository.LicenseInfo.Name
			spdx = node.Repository.LicenseInfo.SPDXID
		}
	}
	return model.NewDependency(node.PackageManager, node.PackageName, node.Requirements, manifest, license, spdx, org)
}
