package model

import (
	"strings"
	"time"
)

type Location struct {
	Path        string `json:"path"`
	StartLine   int    `json:"start_line,omitempty"`
	StartColumn int    `json:"start_column,omitempty"`
	EndLine     int    `json:"end_line,omitempty"`
	EndColumn   int    `json:"end_column,omitempty"`
}

type CodeScanningRule struct {
	ID                    string   `json:"id"`
	Name                  string   `json:"name,omitempty"`
	Severity              string   `json:"severity"`
	SecuritySeverityLevel string   `json:"security_severity_level,omitempty"`
	Description           string   `json:"description"`
	Tags                  []string `json:"tags,omitempty"`
}

type CodeScanningTool struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type CodeScanningInstance struct {
	Ref      string   `json:"ref,omitempty"`
	State    string   `json:"state,omitempty"`
	Location Location `json:"location"`
}

// CodeScanningAlert mirrors the code-scanning alerts REST payload.
type CodeScanningAlert struct {
	Number             int                  `json:"number"`
	State              string               `json:"state"`
	CreatedAt          *time.Time           `json:"created_at,omitempty"`
	HTMLURL            string               `json:"html_url,omitempty"`
	Rule               CodeScanningRule     `json:"rule"`
	Tool               CodeScanningTool     `json:"tool"`
	MostRecentInstance CodeScanningInstance `json:"most_recent_instance"`
}

// Severity prefers the rule severity and falls back to the security
// severity level.
func (a CodeScanningAlert) Severity() string {
	if s := strings.TrimSpace(a.Rule.Severity); s != "" {
		return strings.ToLower(s)
	}
	return strings.ToLower(strings.TrimSpace(a.Rule.SecuritySeverityLevel))
}

type Package struct {
	Ecosystem string `json:"ecosystem"`
	Name      string `json:"name"`
}

type AdvisoryIdentifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type SecurityAdvisory struct {
	GHSAID      string               `json:"ghsaId"`
	Severity    string               `json:"severity"`
	Summary     string               `json:"summary,omitempty"`
	Identifiers []AdvisoryIdentifier `json:"identifiers,omitempty"`
}

type SecurityVulnerability struct {
	Package Package `json:"package"`
}

// DependabotAlert mirrors a vulnerabilityAlerts GraphQL node.
type DependabotAlert struct {
	Number                int                   `json:"number,omitempty"`
	CreatedAt             *time.Time            `json:"createdAt,omitempty"`
	DismissReason         *string               `json:"dismissReason"`
	SecurityVulnerability SecurityVulnerability `json:"securityVulnerability"`
	SecurityAdvisory      SecurityAdvisory      `json:"securityAdvisory"`
}

func (a DependabotAlert) Dismissed() bool {
	return a.DismissReason != nil && strings.TrimSpace(*a.DismissReason) != ""
}

// IDs returns the lowercased GHSA id followed by any CVE identifiers.
func (a DependabotAlert) IDs() []string {
	var out []string
	if id := strings.TrimSpace(a.SecurityAdvisory.GHSAID); id != "" {
		out = append(out, strings.ToLower(id))
	}
	for _, ident := range a.SecurityAdvisory.Identifiers {
		if strings.EqualFold(ident.Type, "CVE") && ident.Value != "" {
			out = append(out, strings.ToLower(ident.Value))
		}
	}
	return out
}

// Names returns "ecosystem://package" and the bare package name.
func (a DependabotAlert) Names() []string {
	pkg := a.SecurityVulnerability.Package
	if pkg.Name == "" {
		return nil
	}
	name := strings.ToLower(pkg.Name)
	if pkg.Ecosystem == "" {
		return []string{name}
	}
	return []string{strings.ToLower(pkg.Ecosystem) + "://" + name, name}
}

// SecretScanningAlert mirrors the secret-scanning alerts REST payload.
type SecretScanningAlert struct {
	Number                int        `json:"number"`
	State                 string     `json:"state"`
	CreatedAt             *time.Time `json:"created_at,omitempty"`
	HTMLURL               string     `json:"html_url,omitempty"`
	SecretType            string     `json:"secret_type"`
	SecretTypeDisplayName string     `json:"secret_type_display_name,omitempty"`
}

// Dependency is one entry of the repository dependency graph.
type Dependency struct {
	Name         string   `json:"name"`
	FullName     string   `json:"full_name"`
	Manager      string   `json:"manager"`
	ManifestPath string   `json:"manager_path,omitempty"`
	Version      string   `json:"version,omitempty"`
	License      string   `json:"license"`
	SPDXID       string   `json:"spdxId"`
	Organization *bool    `json:"organization,omitempty"`
	Maintenance  []string `json:"maintenance,omitempty"`
}

// Unknown marks missing license and manager values.
const Unknown = "NA"

// NewDependency normalizes graph fields into a Dependency.
func NewDependency(manager, name, requirement, manifest, license, spdxID string, organization *bool) Dependency {
	manager = strings.ToLower(strings.TrimSpace(manager))
	if manager == "" {
		manager = Unknown
	}
	if name == "" {
		name = Unknown
	}
	if license == "" {
		license = Unknown
	}
	if spdxID == "" {
		spdxID = Unknown
	}
	version := strings.TrimSpace(strings.NewReplacer("= ", "", "^ ", "").Replace(requirement))
	return Dependency{
		Name:         name,
		FullName:     DependencyName(manager, name, version),
		Manager:      manager,
		ManifestPath: manifest,
		Version:      version,
		License:      license,
		SPDXID:       spdxID,
		Organization: organization,
	}
}

// DependencyName builds "manager://name#version", lowercased. The version
// part is omitted when empty.
func DependencyName(manager, name, version string) string {
	out := strings.ToLower(manager) + "://" + strings.ToLower(name)
	if version != "" {
		out += "#" + strings.ToLower(version)
	}
	return out
}

// ManagerName is "manager://name" without the version.
func (d Dependency) ManagerName() string {
	return strings.ToLower(d.Manager) + "://" + strings.ToLower(d.Name)
}

// Violation is a finding that broke policy.
type Violation struct {
	Technology string `json:"technology"`
	RuleID     string `json:"rule_id"`
	Title      string `json:"title"`
	Severity   string `json:"severity"`
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	Column     int    `json:"column,omitempty"`
	URL        string `json:"url,omitempty"`
}

const (
	StatusPassed   = "passed"
	StatusFailed   = "failed"
	StatusErrored  = "error"
	StatusDisabled = "disabled"
)

// TechnologyResult is the outcome of one technology check.
type TechnologyResult struct {
	Technology     string      `json:"technology"`
	Status         string      `json:"status"`
	Total          int         `json:"total"`
	ViolationCount int         `json:"violations"`
	Skipped        int         `json:"skipped,omitempty"`
	Warnings       int         `json:"warnings,omitempty"`
	DurationMS     int64       `json:"duration_ms"`
	Violations     []Violation `json:"details,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// Report aggregates one compliance run.
type Report struct {
	RunID           string             `json:"run_id"`
	Repository      string             `json:"repository,omitempty"`
	Ref             string             `json:"ref,omitempty"`
	Policy          string             `json:"policy"`
	Threshold       string             `json:"threshold"`
	StartedAt       time.Time          `json:"started_at"`
	CompletedAt     time.Time          `json:"completed_at"`
	DurationMS      int64              `json:"duration_ms"`
	Results         []TechnologyResult `json:"results"`
	TotalViolations int                `json:"total_violations"`
	AllowedCount    int                `json:"allowed_count"`
	Passed          bool               `json:"passed"`
}

// Violations flattens every technology's violations in result order.
func (r Report) Violations() []Violation {
	var out []Violation
	for _, res := range r.Results {
		out = append(out, res.Violations...)
	}
	return out
}
