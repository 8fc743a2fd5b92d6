package checker

import (
	"strings"

	"github.com/GeekMasher/advanced-security-compliance/internal/model"
	"github.com/GeekMasher/advanced-security-compliance/internal/policy"
	"github.com/GeekMasher/advanced-security-compliance/internal/progress"
)

// DefaultDisallowedLicenses applies when no licensing policy is enabled.
var DefaultDisallowedLicenses = []string{"GPL-2.0", "GPL-3.0", "LGPL-2.1", "LGPL-3.0"}

// LicenseVerdict is the outcome of one licensing evaluation.
type LicenseVerdict struct {
	Violation bool
	Warning   bool
	// Matched is the candidate value that decided the verdict, if any.
	Matched string
}

// IsLicenseViolation reports whether dependency, carrying license, breaks
// the licensing policy.
func (c *Checker) IsLicenseViolation(license string, dep model.Dependency) bool {
	return c.EvaluateLicense(license, dep).Violation
}

func (c *Checker) EvaluateLicense(license string, dep model.Dependency) LicenseVerdict {
	license = strings.ToLower(strings.TrimSpace(license))
	p, err := c.doc.Policy(policy.Licensing)
	if err != nil || !p.Enabled() {
		for _, disallowed := range DefaultDisallowedLicenses {
			d := strings.ToLower(disallowed)
			if license == d || strings.Contains(license, d) {
				return LicenseVerdict{Violation: true, Matched: license}
			}
		}
		return LicenseVerdict{}
	}
	return c.checkLicenseAgainstPolicy(license, dep, p)
}

func (c *Checker) checkLicenseAgainstPolicy(license string, dep model.Dependency, p policy.TechnologyPolicy) LicenseVerdict {
	short := orUnknown(dep.Name)
	managed := orUnknown(dep.Manager) + "://" + short
	full := dep.FullName
	if full == "" {
		full = "NA://NA#NA"
	}
	spdx := orUnknown(dep.SPDXID)

	var verdict LicenseVerdict
	if p.Warnings.MatchID(license) || p.Warnings.MatchName(strings.ToLower(full)) {
		verdict.Warning = true
		progress.Warnf(c.sink, "Dependency License Warning :: %s = %s", full, license)
	}

	for _, value := range []string{license, full, managed, short, spdx} {
		value = strings.ToLower(value)
		if p.Ignores.MatchAny(value) {
			progress.Debugf(c.sink, "dependency license ignored :: %s", value)
			verdict.Matched = value
			return verdict
		}
		if p.Conditions.MatchAny(value) {
			verdict.Violation = true
			verdict.Matched = value
			return verdict
		}
	}
	return verdict
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return model.Unknown
	}
	return s
}
