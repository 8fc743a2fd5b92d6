package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/GeekMasher/advanced-security-compliance/internal/progress"
)

const (
	ThreatHigh   = "high"
	ThreatNormal = "normal"
	ThreatLow    = "low"
)

// SelectThreatModel returns the policy configured for level, falling back
// to the default policy.
func SelectThreatModel(cfg Config, level string, sink progress.Sink) PolicyConfig {
	level = strings.ToLower(strings.TrimSpace(level))
	var selected *PolicyConfig
	switch level {
	case ThreatHigh:
		selected = cfg.ThreatModels.High
	case ThreatNormal:
		selected = cfg.ThreatModels.Normal
	case ThreatLow:
		selected = cfg.ThreatModels.Low
	}
	if selected == nil {
		progress.Debugf(sink, "threat model selected: default")
		return cfg.Policy
	}
	progress.Infof(sink, "threat model selected: `%s`", level)
	return mergePolicy(PolicyConfig{Instance: cfg.Policy.Instance}, *selected)
}

type applicationModel struct {
	Repository string `yaml:"repository"`
	Level      string `yaml:"level"`
}

// LoadThreatLevel reads a threat model source file. The file either sets
// `level` directly or maps application names to {repository, level}; the
// entry matching repository wins. Unmatched repositories are "normal".
func LoadThreatLevel(path, repository string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("threat model file %s: %w", path, err)
	}
	var direct struct {
		Level string `yaml:"level"`
	}
	if err := yaml.Unmarshal(data, &direct); err == nil && strings.TrimSpace(direct.Level) != "" {
		return validLevel(direct.Level)
	}

	var apps map[string]applicationModel
	if err := yaml.Unmarshal(data, &apps); err != nil {
		return "", fmt.Errorf("parse threat model %s: %w", path, err)
	}
	for _, app := range apps {
		if app.Repository != "" && strings.EqualFold(app.Repository, repository) {
			return validLevel(app.Level)
		}
	}
	return ThreatNormal, nil
}

func validLevel(raw string) (string, error) {
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case ThreatHigh, ThreatNormal, ThreatLow:
		return level, nil
	case "":
		return ThreatNormal, nil
	default:
		return "", fmt.Errorf("unknown threat level %q", raw)
	}
}
