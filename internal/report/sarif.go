package report

import (
	"fmt"
	"strings"

	"github.com/GeekMasher/advanced-security-compliance/internal/model"
	"github.com/GeekMasher/advanced-security-compliance/internal/safefile"
	"github.com/GeekMasher/advanced-security-compliance/internal/severity"
	"github.com/GeekMasher/advanced-security-compliance/internal/version"
)

const (
	toolName = "ghascompliance"
	toolURI  = "https://github.com/GeekMasher/advanced-security-compliance"
)

// SARIF v2.1.0 types. Minimal subset accepted by GitHub Code Scanning.

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	InformationURI string      `json:"informationUri"`
	Version        string      `json:"version"`
	Rules          []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID               string              `json:"id"`
	Name             string              `json:"name,omitempty"`
	ShortDescription sarifMessage        `json:"shortDescription,omitempty"`
	DefaultConfig    *sarifDefaultConfig `json:"defaultConfiguration,omitempty"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifResult struct {
	RuleID     string           `json:"ruleId"`
	Level      string           `json:"level"`
	Message    sarifMessage     `json:"message"`
	Locations  []sarifLocation  `json:"locations,omitempty"`
	Properties *sarifProperties `json:"properties,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn,omitempty"`
}

type sarifProperties struct {
	Severity   string `json:"severity,omitempty"`
	Technology string `json:"technology,omitempty"`
	URL        string `json:"url,omitempty"`
}

func WriteSARIF(path string, report model.Report) error {
	if err := safefile.WriteJSON(path, buildSARIF(report), 0o600); err != nil {
		return fmt.Errorf("write sarif report: %w", err)
	}
	return nil
}

func buildSARIF(report model.Report) sarifLog {
	ruleIndex := map[string]int{}
	rules := []sarifRule{}
	results := []sarifResult{}

	for _, v := range report.Violations() {
		ruleID := strings.TrimSpace(v.RuleID)
		if ruleID == "" {
			ruleID = "ghascompliance/" + v.Technology
		}
		level := mapSeverityToSARIF(v.Severity)

		if _, seen := ruleIndex[ruleID]; !seen {
			ruleIndex[ruleID] = len(rules)
			rules = append(rules, sarifRule{
				ID:               ruleID,
				Name:             v.Title,
				ShortDescription: sarifMessage{Text: v.Title},
				DefaultConfig:    &sarifDefaultConfig{Level: level},
			})
		}

		var locations []sarifLocation
		if file := strings.TrimSpace(v.File); file != "" {
			loc := sarifLocation{
				PhysicalLocation: sarifPhysicalLocation{
					ArtifactLocation: sarifArtifactLocation{URI: file},
				},
			}
			if v.Line > 0 {
				loc.PhysicalLocation.Region = &sarifRegion{StartLine: v.Line, StartColumn: v.Column}
			}
			locations = append(locations, loc)
		}

		results = append(results, sarifResult{
			RuleID:    ruleID,
			Level:     level,
			Message:   sarifMessage{Text: v.Title},
			Locations: locations,
			Properties: &sarifProperties{
				Severity:   v.Severity,
				Technology: v.Technology,
				URL:        v.URL,
			},
		})
	}

	return sarifLog{
		Version: "2.1.0",
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json",
		Runs: []sarifRun{{
			Tool: sarifTool{
				Driver: sarifDriver{
					Name:           toolName,
					InformationURI: toolURI,
					Version:        version.Version,
					Rules:          rules,
				},
			},
			Results: results,
		}},
	}
}

func mapSeverityToSARIF(sev string) string {
	switch severity.Level(strings.ToLower(strings.TrimSpace(sev))) {
	case severity.Critical, severity.High, severity.Error, severity.Errors:
		return "error"
	case severity.Medium, severity.Moderate, severity.Warning, severity.Warnings:
		return "warning"
	default:
		return "note"
	}
}
