package checks

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/GeekMasher/advanced-security-compliance/internal/github"
	"github.com/GeekMasher/advanced-security-compliance/internal/model"
	"github.com/GeekMasher/advanced-security-compliance/internal/policy"
	"github.com/GeekMasher/advanced-security-compliance/internal/progress"
)

func (r *Runner) checkCodeScanning(ctx context.Context, run *checkRun) error {
	alerts, err := r.source.CodeScanningAlerts(ctx)
	if err != nil {
		return err
	}
	run.result.Total = len(alerts)
	progress.Infof(run.buffer, "Total Code Scanning Alerts :: %d", len(alerts))
	r.writeRecords(run, github.CodeScanningFile, alerts)

	for _, alert := range alerts {
		names := nonEmpty(alert.Rule.Description, alert.Rule.Name)
		ids := nonEmpty(alert.Rule.ID)
		violated, err := run.checker.IsViolation(alert.Severity(), policy.CodeScanning, names, ids, alert.CreatedAt)
		if err != nil {
			return err
		}
		if !violated {
			continue
		}
		loc := alert.MostRecentInstance.Location
		title := alert.Rule.Description
		if title == "" {
			title = alert.Rule.ID
		}
		run.violation(model.Violation{
			Technology: string(policy.CodeScanning),
			RuleID:     alert.Rule.ID,
			Title:      title,
			Severity:   alert.Severity(),
			File:       loc.Path,
			Line:       loc.StartLine,
			Column:     loc.StartColumn,
			URL:        alert.HTMLURL,
		}, fmt.Sprintf("%s - %s", alert.Tool.Name, title))
	}
	return nil
}

func (r *Runner) checkDependabot(ctx context.Context, run *checkRun) error {
	alerts, err := r.source.DependabotAlerts(ctx)
	if err != nil {
		return err
	}
	run.result.Total = len(alerts)
	progress.Infof(run.buffer, "Total Dependabot Alerts :: %d", len(alerts))
	r.writeRecords(run, github.DependabotFile, alerts)

	for _, alert := range alerts {
		pkg := alert.SecurityVulnerability.Package
		if alert.Dismissed() {
			run.result.Skipped++
			progress.Debugf(run.buffer, "Skipping Dependabot alert :: %s=%s - %s", orNA(pkg.Ecosystem), orNA(pkg.Name), *alert.DismissReason)
			continue
		}
		sev := strings.ToLower(alert.SecurityAdvisory.Severity)
		violated, err := run.checker.IsViolation(sev, policy.Dependabot, alert.Names(), alert.IDs(), alert.CreatedAt)
		if err != nil {
			return err
		}
		if !violated {
			continue
		}
		run.violation(model.Violation{
			Technology: string(policy.Dependabot),
			RuleID:     alert.SecurityAdvisory.GHSAID,
			Title:      fmt.Sprintf("%s=%s", orNA(pkg.Ecosystem), orNA(pkg.Name)),
			Severity:   sev,
		}, fmt.Sprintf("Dependabot Alert :: %s=%s", orNA(pkg.Ecosystem), orNA(pkg.Name)))
	}
	return nil
}

func (r *Runner) checkLicensing(ctx context.Context, run *checkRun) error {
	deps, err := r.source.Dependencies(ctx)
	if err != nil {
		return err
	}
	run.result.Total = len(deps)
	progress.Infof(run.buffer, "Total Dependency Graph Dependencies :: %d", len(deps))
	r.writeRecords(run, github.DependenciesFile, deps)

	for _, dep := range deps {
		progress.Debugf(run.buffer, " > %s (%s) - %s", dep.Name, dep.Manager, dep.License)
		verdict := run.checker.EvaluateLicense(dep.License, dep)
		if verdict.Warning {
			run.result.Warnings++
		}
		if !verdict.Violation {
			continue
		}
		run.violation(model.Violation{
			Technology: string(policy.Licensing),
			RuleID:     dep.License,
			Title:      fmt.Sprintf("%s (%s) = %s", dep.Name, dep.Manager, dep.License),
			File:       dep.ManifestPath,
		}, fmt.Sprintf("Dependency Graph Alert :: %s (%s) = %s", dep.Name, dep.Manager, dep.License))
	}
	return nil
}

func (r *Runner) checkDependencies(ctx context.Context, run *checkRun) error {
	deps, err := r.source.Dependencies(ctx)
	if err != nil {
		return err
	}
	run.result.Total = len(deps)
	progress.Infof(run.buffer, "Total Dependency Graph Dependencies :: %d", len(deps))

	for _, dep := range deps {
		names := []string{dep.FullName, dep.ManagerName(), dep.Name}
		ids := nonEmpty(dep.SPDXID)
		violated, err := run.checker.IsListed(policy.Dependencies, names, ids)
		if err != nil {
			return err
		}
		if !violated {
			continue
		}
		run.violation(model.Violation{
			Technology: string(policy.Dependencies),
			RuleID:     dep.FullName,
			Title:      fmt.Sprintf("%s (%s)", dep.Name, dep.Manager),
			File:       dep.ManifestPath,
		}, fmt.Sprintf("Dependency Graph Alert :: %s", dep.FullName))
	}
	return nil
}

func (r *Runner) checkSecretScanning(ctx context.Context, run *checkRun) error {
	alerts, err := r.source.SecretScanningAlerts(ctx)
	if err != nil {
		return err
	}
	run.result.Total = len(alerts)
	progress.Infof(run.buffer, "Total Secret Scanning Alerts :: %d", len(alerts))
	r.writeRecords(run, github.SecretScanningFile, alerts)

	for _, alert := range alerts {
		names := nonEmpty(alert.SecretType, alert.SecretTypeDisplayName)
		ids := []string{strconv.Itoa(alert.Number)}
		violated, err := run.checker.IsViolation("critical", policy.SecretScanning, names, ids, alert.CreatedAt)
		if err != nil {
			return err
		}
		if !violated {
			continue
		}
		run.violation(model.Violation{
			Technology: string(policy.SecretScanning),
			RuleID:     alert.SecretType,
			Title:      "Unresolved Secret - " + alert.SecretType,
			Severity:   "critical",
			URL:        alert.HTMLURL,
		}, "Unresolved Secret - "+alert.SecretType)
	}
	return nil
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

func orNA(s string) string {
	if s == "" {
		return model.Unknown
	}
	return s
}
