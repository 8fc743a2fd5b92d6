// Package github fetches alerts and dependency data for a repository from
// the GitHub REST and GraphQL APIs.
package github

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const DefaultInstance = "https://github.com"

var ErrInvalidRepository = errors.New("repository must be in the form owner/repo")

type Repository struct {
	Owner string
	Name  string
}

func ParseRepository(raw string) (Repository, error) {
	raw = strings.Trim(strings.TrimSpace(raw), "/")
	owner, name, ok := strings.Cut(raw, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repository{}, fmt.Errorf("%w: %q", ErrInvalidRepository, raw)
	}
	return Repository{Owner: owner, Name: name}, nil
}

func (r Repository) String() string {
	return r.Owner + "/" + r.Name
}

// Endpoints returns the REST and GraphQL base URLs for instance. GitHub.com
// uses api.github.com; Enterprise Server hosts serve under /api.
func Endpoints(instance string) (rest, graphql string, err error) {
	instance = strings.TrimSpace(instance)
	if instance == "" {
		instance = DefaultInstance
	}
	u, err := url.Parse(instance)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("invalid instance url %q", instance)
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	if u.Host == "github.com" {
		api := scheme + "://api.github.com"
		return api, api + "/graphql", nil
	}
	api := scheme + "://" + u.Host + "/api"
	return api + "/v3", api + "/graphql", nil
}
