package badge

import (
	"fmt"

	"github.com/GeekMasher/advanced-security-compliance/internal/model"
)

// Status computes the badge message and color for a compliance report.
// Only counts reach the badge, never alert details.
func Status(report model.Report) (message string, color string) {
	errored := 0
	for _, r := range report.Results {
		if r.Status == model.StatusErrored {
			errored++
		}
	}

	switch {
	case report.Passed && report.TotalViolations == 0:
		return "passing", "brightgreen"
	case report.Passed:
		return fmt.Sprintf("%d allowed", report.TotalViolations), "yellow"
	case report.TotalViolations == 0 && errored > 0:
		return "error", "lightgrey"
	case report.TotalViolations == 1:
		return "1 violation", "red"
	default:
		return fmt.Sprintf("%d violations", report.TotalViolations), "red"
	}
}
