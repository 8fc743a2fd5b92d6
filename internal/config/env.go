package config

import (
	"os"
	"strconv"
	"strings"
)

// Env holds the values taken from the process environment, the way a
// GitHub Actions runner provides them.
type Env struct {
	Token      string
	Repository string
	Ref        string
	ServerURL  string
	Debug      bool
	Actions    bool
}

// FromEnv reads Env using lookup. A nil lookup uses os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) Env {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}
	return Env{
		Token:      get("GITHUB_TOKEN"),
		Repository: get("GITHUB_REPOSITORY"),
		Ref:        get("GITHUB_REF"),
		ServerURL:  get("GITHUB_SERVER_URL"),
		Debug:      truthy(get("DEBUG")),
		Actions:    truthy(get("GITHUB_ACTIONS")),
	}
}

func truthy(v string) bool {
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

// ApplyEnv fills GitHub settings the config left unset.
func (c Config) ApplyEnv(env Env) Config {
	if c.GitHub.Repository == "" {
		c.GitHub.Repository = env.Repository
	}
	if c.GitHub.Ref == "" {
		c.GitHub.Ref = env.Ref
	}
	if c.GitHub.Instance == "" {
		c.GitHub.Instance = env.ServerURL
	}
	if c.Policy.Instance == "" {
		c.Policy.Instance = c.GitHub.Instance
	}
	return c
}
