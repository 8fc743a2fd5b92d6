package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/GeekMasher/advanced-security-compliance/internal/policy"
)

const (
	dirName  = ".ghascompliance"
	fileName = "config.yaml"

	DefaultSeverity = "error"
)

// PolicyConfig locates the policy to evaluate. Zero values mean "not set".
type PolicyConfig struct {
	Instance   string `yaml:"instance,omitempty"`
	Repository string `yaml:"repository,omitempty"`
	Path       string `yaml:"path,omitempty"`
	Branch     string `yaml:"branch,omitempty"`
	Severity   string `yaml:"severity,omitempty"`
	Display    *bool  `yaml:"display,omitempty"`
}

// ThreatModels maps threat levels to alternative policies.
type ThreatModels struct {
	// Source is a file naming the threat level of this repository.
	Source string        `yaml:"source,omitempty"`
	High   *PolicyConfig `yaml:"high,omitempty"`
	Normal *PolicyConfig `yaml:"normal,omitempty"`
	Low    *PolicyConfig `yaml:"low,omitempty"`
}

// Checkers toggles individual technologies. Unset means enabled.
type Checkers struct {
	CodeScanning   *bool `yaml:"codescanning,omitempty"`
	Dependabot     *bool `yaml:"dependabot,omitempty"`
	Licensing      *bool `yaml:"licensing,omitempty"`
	Dependencies   *bool `yaml:"dependencies,omitempty"`
	SecretScanning *bool `yaml:"secretscanning,omitempty"`
}

type GitHub struct {
	Instance   string `yaml:"instance,omitempty"`
	Repository string `yaml:"repository,omitempty"`
	Ref        string `yaml:"ref,omitempty"`
}

// Reporting names the files written after a run.
type Reporting struct {
	SARIF    string `yaml:"sarif,omitempty"`
	JSON     string `yaml:"json,omitempty"`
	Snapshot string `yaml:"snapshot,omitempty"`
	Badge    string `yaml:"badge,omitempty"`
	DebugDir string `yaml:"debug_dir,omitempty"`
}

type Config struct {
	Name         string       `yaml:"name,omitempty"`
	GitHub       GitHub       `yaml:"github,omitempty"`
	Policy       PolicyConfig `yaml:"policy,omitempty"`
	ThreatModels ThreatModels `yaml:"threat_models,omitempty"`
	Checkers     Checkers     `yaml:"checkers,omitempty"`
	Reporting    Reporting    `yaml:"reporting,omitempty"`
}

// Load reads config from layered sources:
//  1. ~/.ghascompliance/config.yaml (global)
//  2. ./.ghascompliance/config.yaml (repo-local)
//  3. explicit, when non-empty (must exist)
//
// Later layers win field by field. Missing global and local files are
// ignored.
func Load(explicit string) (Config, error) {
	home, _ := os.UserHomeDir()
	var globalPath, localPath string
	if home != "" {
		globalPath = filepath.Join(home, dirName, fileName)
	}

	cwd, _ := os.Getwd()
	if cwd != "" {
		localPath = filepath.Join(cwd, dirName, fileName)
	}

	var merged Config

	if globalPath != "" {
		global, err := loadFile(globalPath)
		if err != nil {
			return Config{}, fmt.Errorf("load global config %s: %w", globalPath, err)
		}
		merged = merge(merged, global)
	}

	if localPath != "" && localPath != globalPath {
		local, err := loadFile(localPath)
		if err != nil {
			return Config{}, fmt.Errorf("load local config %s: %w", localPath, err)
		}
		merged = merge(merged, local)
	}

	if explicit = strings.TrimSpace(explicit); explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", explicit, err)
		}
		cfg, err := loadFile(explicit)
		if err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", explicit, err)
		}
		merged = merge(merged, cfg)
	}

	return merged, nil
}

func loadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Config{}, nil
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// merge applies overrides from b onto a. Non-zero fields in b win.
func merge(a, b Config) Config {
	if b.Name != "" {
		a.Name = b.Name
	}
	a.GitHub = mergeGitHub(a.GitHub, b.GitHub)
	a.Policy = mergePolicy(a.Policy, b.Policy)

	if b.ThreatModels.Source != "" {
		a.ThreatModels.Source = b.ThreatModels.Source
	}
	if b.ThreatModels.High != nil {
		a.ThreatModels.High = b.ThreatModels.High
	}
	if b.ThreatModels.Normal != nil {
		a.ThreatModels.Normal = b.ThreatModels.Normal
	}
	if b.ThreatModels.Low != nil {
		a.ThreatModels.Low = b.ThreatModels.Low
	}

	if b.Checkers.CodeScanning != nil {
		a.Checkers.CodeScanning = b.Checkers.CodeScanning
	}
	if b.Checkers.Dependabot != nil {
		a.Checkers.Dependabot = b.Checkers.Dependabot
	}
	if b.Checkers.Licensing != nil {
		a.Checkers.Licensing = b.Checkers.Licensing
	}
	if b.Checkers.Dependencies != nil {
		a.Checkers.Dependencies = b.Checkers.Dependencies
	}
	if b.Checkers.SecretScanning != nil {
		a.Checkers.SecretScanning = b.Checkers.SecretScanning
	}

	if b.Reporting.SARIF != "" {
		a.Reporting.SARIF = b.Reporting.SARIF
	}
	if b.Reporting.JSON != "" {
		a.Reporting.JSON = b.Reporting.JSON
	}
	if b.Reporting.Snapshot != "" {
		a.Reporting.Snapshot = b.Reporting.Snapshot
	}
	if b.Reporting.Badge != "" {
		a.Reporting.Badge = b.Reporting.Badge
	}
	if b.Reporting.DebugDir != "" {
		a.Reporting.DebugDir = b.Reporting.DebugDir
	}
	return a
}

func mergeGitHub(a, b GitHub) GitHub {
	if b.Instance != "" {
		a.Instance = b.Instance
	}
	if b.Repository != "" {
		a.Repository = b.Repository
	}
	if b.Ref != "" {
		a.Ref = b.Ref
	}
	return a
}

func mergePolicy(a, b PolicyConfig) PolicyConfig {
	if b.Instance != "" {
		a.Instance = b.Instance
	}
	if b.Repository != "" {
		a.Repository = b.Repository
	}
	if b.Path != "" {
		a.Path = b.Path
	}
	if b.Branch != "" {
		a.Branch = b.Branch
	}
	if b.Severity != "" {
		a.Severity = b.Severity
	}
	if b.Display != nil {
		a.Display = b.Display
	}
	return a
}

// Enabled reports whether the technology check is switched on.
func (c Checkers) Enabled(t policy.Technology) bool {
	var v *bool
	switch t {
	case policy.CodeScanning:
		v = c.CodeScanning
	case policy.Dependabot:
		v = c.Dependabot
	case policy.Licensing:
		v = c.Licensing
	case policy.Dependencies:
		v = c.Dependencies
	case policy.SecretScanning:
		v = c.SecretScanning
	default:
		return false
	}
	return v == nil || *v
}

// Technologies returns the enabled technologies in check order.
func (c Checkers) Technologies() []policy.Technology {
	var out []policy.Technology
	for _, t := range policy.Technologies() {
		if c.Enabled(t) {
			out = append(out, t)
		}
	}
	return out
}

// Disable switches a technology off.
func (c *Checkers) Disable(t policy.Technology) {
	off := false
	switch t {
	case policy.CodeScanning:
		c.CodeScanning = &off
	case policy.Dependabot:
		c.Dependabot = &off
	case policy.Licensing:
		c.Licensing = &off
	case policy.Dependencies:
		c.Dependencies = &off
	case policy.SecretScanning:
		c.SecretScanning = &off
	}
}

// SeverityOrDefault is the configured threshold, lowercased.
func (p PolicyConfig) SeverityOrDefault() string {
	if s := strings.TrimSpace(p.Severity); s != "" {
		return strings.ToLower(s)
	}
	return DefaultSeverity
}

func (p PolicyConfig) DisplayEnabled() bool {
	return p.Display != nil && *p.Display
}
