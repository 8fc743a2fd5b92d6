package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/GeekMasher/advanced-security-compliance/internal/model"
	"github.com/GeekMasher/advanced-security-compliance/internal/redact"
	"github.com/GeekMasher/advanced-security-compliance/internal/safefile"
	"github.com/GeekMasher/advanced-security-compliance/internal/sanitize"
	"github.com/GeekMasher/advanced-security-compliance/internal/severity"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	idleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func WriteJSON(path string, report model.Report) error {
	report = redactReport(report)
	if err := safefile.WriteJSON(path, report, 0o600); err != nil {
		return fmt.Errorf("write compliance json: %w", err)
	}
	return nil
}

func WriteMarkdown(path string, report model.Report) error {
	content := RenderMarkdown(report)
	if err := safefile.WriteFileAtomic(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write compliance markdown: %w", err)
	}
	return nil
}

// RenderMarkdown renders the report for a GitHub step summary.
func RenderMarkdown(report model.Report) string {
	report = redactReport(report)
	var b bytes.Buffer

	b.WriteString("# Advanced Security Compliance\n\n")
	b.WriteString(fmt.Sprintf("- Run ID: `%s`\n", report.RunID))
	if report.Repository != "" {
		b.WriteString(fmt.Sprintf("- Repository: `%s`\n", sanitize.Inline(report.Repository)))
	}
	if report.Ref != "" {
		b.WriteString(fmt.Sprintf("- Ref: `%s`\n", sanitize.Inline(report.Ref)))
	}
	b.WriteString(fmt.Sprintf("- Policy: `%s`\n", sanitize.Inline(report.Policy)))
	b.WriteString(fmt.Sprintf("- Threshold: `%s`\n", report.Threshold))
	b.WriteString(fmt.Sprintf("- Result: **%s** (%d violations, %d allowed)\n\n", outcome(report), report.TotalViolations, report.AllowedCount))

	b.WriteString("| Technology | Status | Alerts | Violations |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, r := range report.Results {
		b.WriteString(fmt.Sprintf("| %s | %s | %d | %d |\n", r.Technology, r.Status, r.Total, r.ViolationCount))
	}
	b.WriteString("\n")

	var errs []string
	for _, r := range report.Results {
		if r.Error != "" {
			errs = append(errs, fmt.Sprintf("%s: %s", r.Technology, r.Error))
		}
	}
	if len(errs) > 0 {
		b.WriteString("## Errors\n\n")
		for _, e := range errs {
			b.WriteString("- " + sanitize.Inline(e) + "\n")
		}
		b.WriteString("\n")
	}

	violations := sortedViolations(report)
	if len(violations) == 0 {
		b.WriteString("## Violations\n\nNo policy violations found.\n")
		return b.String()
	}

	b.WriteString("## Violations\n\n")
	for _, v := range violations {
		line := fmt.Sprintf("- [%s] %s: %s", strings.ToUpper(v.Severity), v.Technology, sanitize.Inline(v.Title))
		if v.File != "" {
			line += fmt.Sprintf(" (`%s`", sanitize.Inline(v.File))
			if v.Line > 0 {
				line += fmt.Sprintf(":%d", v.Line)
			}
			line += ")"
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// RenderSummary renders a terminal summary. Styles are dropped when color
// is false.
func RenderSummary(report model.Report, color bool) string {
	style := func(s lipgloss.Style, text string) string {
		if !color {
			return text
		}
		return s.Render(text)
	}

	var b strings.Builder
	b.WriteString(style(titleStyle, "Advanced Security Compliance"))
	b.WriteString("\n")
	b.WriteString(style(headerStyle, fmt.Sprintf("%-16s %-9s %-8s %-10s", "Technology", "Status", "Alerts", "Violations")))
	b.WriteString("\n")
	for _, r := range report.Results {
		line := fmt.Sprintf("%-16s %-9s %-8d %-10d", r.Technology, r.Status, r.Total, r.ViolationCount)
		b.WriteString(style(statusStyle(r.Status), line))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	result := fmt.Sprintf("%s: %d violations (%d allowed)", outcome(report), report.TotalViolations, report.AllowedCount)
	if report.Passed {
		b.WriteString(style(okStyle, result))
	} else {
		b.WriteString(style(errorStyle, result))
	}
	b.WriteString("\n")
	return b.String()
}

func outcome(report model.Report) string {
	if report.Passed {
		return "PASSED"
	}
	return "FAILED"
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case model.StatusPassed:
		return okStyle
	case model.StatusFailed:
		return errorStyle
	case model.StatusErrored:
		return warnStyle
	default:
		return idleStyle
	}
}

func sortedViolations(report model.Report) []model.Violation {
	out := report.Violations()
	sort.SliceStable(out, func(i, j int) bool {
		return severityRank(out[i].Severity) < severityRank(out[j].Severity)
	})
	return out
}

// severityRank orders unknown severities last.
func severityRank(s string) int {
	rank := severity.Level(strings.ToLower(strings.TrimSpace(s))).Rank()
	if rank < 0 {
		return len(severity.Levels(false))
	}
	return rank
}

func redactReport(in model.Report) model.Report {
	if len(in.Results) == 0 {
		return in
	}
	results := make([]model.TechnologyResult, 0, len(in.Results))
	for _, r := range in.Results {
		r.Error = redact.Text(r.Error)
		if len(r.Violations) > 0 {
			vs := make([]model.Violation, len(r.Violations))
			for i, v := range r.Violations {
				v.Title = redact.Text(v.Title)
				vs[i] = v
			}
			r.Violations = vs
		}
		results = append(results, r)
	}
	in.Results = results
	return in
}
