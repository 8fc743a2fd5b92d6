package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GeekMasher/advanced-security-compliance/internal/model"
	"github.com/GeekMasher/advanced-security-compliance/internal/progress"
)

func TestParseRepository(t *testing.T) {
	r, err := ParseRepository(" GeekMasher/advanced-security-compliance ")
	require.NoError(t, err)
	assert.Equal(t, "GeekMasher", r.Owner)
	assert.Equal(t, "GeekMasher/advanced-security-compliance", r.String())

	for _, raw := range []string{"", "owner", "owner/", "/repo", "a/b/c"} {
		_, err := ParseRepository(raw)
		assert.ErrorIs(t, err, ErrInvalidRepository, raw)
	}
}

func TestEndpoints(t *testing.T) {
	rest, gql, err := Endpoints("")
	require.NoError(t, err)
	assert.Equal(t, "https://api.github.com", rest)
	assert.Equal(t, "https://api.github.com/graphql", gql)

	rest, gql, err = Endpoints("https://ghe.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://ghe.example.com/api/v3", rest)
	assert.Equal(t, "https://ghe.example.com/api/graphql", gql)

	_, _, err = Endpoints("::not a url")
	assert.Error(t, err)
}

func newTestClient(t *testing.T, srv *httptest.Server, sink progress.Sink) *Client {
	t.Helper()
	c, err := NewClient(ClientOptions{
		Token:      "test-token",
		Repository: Repository{Owner: "octo", Name: "app"},
		Ref:        "refs/heads/main",
		RESTURL:    srv.URL,
		GraphQLURL: srv.URL + "/graphql",
		HTTPClient: srv.Client(),
		Sink:       sink,
	})
	require.NoError(t, err)
	return c
}

func TestCodeScanningAlertsPaginates(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/octo/app/code-scanning/alerts", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "refs/heads/main", r.URL.Query().Get("ref"))
		assert.Equal(t, "open", r.URL.Query().Get("state"))
		page := r.URL.Query().Get("page")
		pages = append(pages, page)

		count := 1
		if page == "1" {
			count = perPage
		}
		alerts := make([]model.CodeScanningAlert, count)
		for i := range alerts {
			alerts[i] = model.CodeScanningAlert{Number: i + 1, Rule: model.CodeScanningRule{ID: "js/xss", Severity: "error"}}
		}
		_ = json.NewEncoder(w).Encode(alerts)
	}))
	defer srv.Close()

	alerts, err := newTestClient(t, srv, nil).CodeScanningAlerts(context.Background())
	require.NoError(t, err)
	assert.Len(t, alerts, perPage+1)
	assert.Equal(t, []string{"1", "2"}, pages)
}

func TestKnownErrorsAreDowngraded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"message":"repository not enabled for code scanning"}`)
	}))
	defer srv.Close()

	rec := &progress.Recorder{}
	alerts, err := newTestClient(t, srv, rec).CodeScanningAlerts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerts)
	assert.Equal(t, []string{"Code Scanning is Disabled on Repository"}, rec.Messages(progress.EventWarning))
}

func TestUnknownErrorsPropagate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"Not Found"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, nil).SecretScanningAlerts(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Not Found", apiErr.Message)
}

func TestDependabotAlertsFollowsCursor(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/graphql", r.URL.Path)
		var body struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body.Query, "vulnerabilityAlerts")
		assert.Equal(t, "octo", body.Variables["owner"])
		calls++

		next, cursor, ghsa := true, "c1", "GHSA-1"
		if body.Variables["after"] == "c1" {
			next, cursor, ghsa = false, "", "GHSA-2"
		}
		fmt.Fprintf(w, `{"data":{"repository":{"vulnerabilityAlerts":{
			"pageInfo":{"hasNextPage":%t,"endCursor":%q},
			"nodes":[{"createdAt":"2024-01-01T00:00:00Z","dismissReason":null,
			  "securityVulnerability":{"package":{"ecosystem":"NPM","name":"lodash"}},
			  "securityAdvisory":{"ghsaId":%q,"severity":"HIGH"}}]}}}}`, next, cursor, ghsa)
	}))
	defer srv.Close()

	alerts, err := newTestClient(t, srv, nil).DependabotAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "GHSA-2", alerts[1].SecurityAdvisory.GHSAID)
}

func TestGraphQLErrorsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":null,"errors":[{"message":"Resource not accessible by integration"}]}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, nil).Dependencies(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Resource not accessible")
}

func TestDependenciesFlattenManifests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"repository":{"dependencyGraphManifests":{
			"pageInfo":{"hasNextPage":false,"endCursor":null},
			"edges":[{"node":{"filename":"package.json","dependencies":{"edges":[
			  {"node":{"packageName":"Lodash","packageManager":"NPM","requirements":"= 4.17.21",
			    "repository":{"isInOrganization":false,"licenseInfo":{"name":"MIT License","spdxId":"MIT"}}}},
			  {"node":{"packageName":"left-pad","packageManager":"NPM","requirements":"^ 1.3.0","repository":null}}
			]}}}]}}}}`)
	}))
	defer srv.Close()

	deps, err := newTestClient(t, srv, nil).Dependencies(context.Background())
	require.NoError(t, err)
	require.Len(t, deps, 2)

	assert.Equal(t, "npm://lodash#4.17.21", deps[0].FullName)
	assert.Equal(t, "MIT License", deps[0].License)
	assert.Equal(t, "MIT", deps[0].SPDXID)
	assert.Equal(t, "package.json", deps[0].ManifestPath)
	require.NotNil(t, deps[0].Organization)
	assert.False(t, *deps[0].Organization)

	assert.Equal(t, model.Unknown, deps[1].License)
	assert.Equal(t, "1.3.0", deps[1].Version)
}

func TestClientErrorRedactsToken(t *testing.T) {
	c, err := NewClient(ClientOptions{
		Token:      "test-token",
		Repository: Repository{Owner: "octo", Name: "app"},
		RESTURL:    "http://127.0.0.1:1",
	})
	require.NoError(t, err)
	_, err = c.SecretScanningAlerts(context.Background())
	require.Error(t, err)
	assert.False(t, strings.Contains(err.Error(), "test-token"))
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	deps := []model.Dependency{model.NewDependency("pip", "requests", "2.0", "requirements.txt", "Apache-2.0", "Apache-2.0", nil)}
	data, err := json.Marshal(deps)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DependenciesFile), data, 0o600))

	src := FileSource{Dir: dir}
	got, err := src.Dependencies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, deps, got)

	alerts, err := src.CodeScanningAlerts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerts)

	require.NoError(t, os.WriteFile(filepath.Join(dir, DependabotFile), []byte("{"), 0o600))
	_, err = src.DependabotAlerts(context.Background())
	assert.Error(t, err)
}
