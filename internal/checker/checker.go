// Package checker decides whether individual findings violate a resolved
// policy document.
package checker

import (
	"fmt"
	"strings"
	"time"

	"github.com/GeekMasher/advanced-security-compliance/internal/policy"
	"github.com/GeekMasher/advanced-security-compliance/internal/progress"
	"github.com/GeekMasher/advanced-security-compliance/internal/remediate"
	"github.com/GeekMasher/advanced-security-compliance/internal/severity"
)

// Options configures a Checker.
type Options struct {
	// Threshold applies to technologies whose policy is disabled.
	Threshold severity.Level
	Clock     remediate.Clock
	Sink      progress.Sink
}

// Checker evaluates findings against a read-only document. It is safe for
// concurrent use.
type Checker struct {
	doc        *policy.Document
	threshold  severity.Level
	severities []severity.Level
	clock      remediate.Clock
	sink       progress.Sink
}

// New builds a Checker. A nil document behaves like an empty one.
func New(doc *policy.Document, opts Options) (*Checker, error) {
	if doc == nil {
		doc = policy.NewDocument("", "", nil, nil)
	}
	threshold := opts.Threshold
	if threshold == "" {
		threshold = severity.Error
	}
	levels, err := severity.Expand(threshold, severity.Higher)
	if err != nil {
		return nil, fmt.Errorf("checker threshold: %w", err)
	}
	clock := opts.Clock
	if clock == nil {
		clock = remediate.SystemClock{}
	}
	sink := opts.Sink
	if sink == nil {
		sink = progress.NoopSink{}
	}
	return &Checker{
		doc:        doc,
		threshold:  threshold,
		severities: levels,
		clock:      clock,
		sink:       sink,
	}, nil
}

// WithSink returns a copy of c that reports to sink.
func (c *Checker) WithSink(sink progress.Sink) *Checker {
	cp := *c
	if sink == nil {
		sink = progress.NoopSink{}
	}
	cp.sink = sink
	return &cp
}

func (c *Checker) Document() *policy.Document {
	return c.doc
}

func (c *Checker) Threshold() severity.Level {
	return c.threshold
}

// IsViolation reports whether a finding of the given severity, names and
// ids breaks the policy for technology. createdAt may be nil.
func (c *Checker) IsViolation(sev string, technology policy.Technology, names, ids []string, createdAt *time.Time) (bool, error) {
	sev = strings.ToLower(strings.TrimSpace(sev))
	if technology == "" {
		return false, policy.ErrEmptyTechnology
	}
	p, err := c.doc.Policy(technology)
	if err != nil {
		return false, err
	}

	if p.RemediationEnabled() {
		progress.Debugf(c.sink, "checking violation against remediation (%s)", p.Remediate)
		overdue := c.overdue(sev, p.Remediate, createdAt)
		if p.HasLevel() {
			return overdue && c.checkAgainstPolicy(sev, p, names, ids), nil
		}
		return overdue, nil
	}
	return c.checkAgainstPolicy(sev, p, names, ids), nil
}

func (c *Checker) overdue(sev string, s *remediate.Schedule, createdAt *time.Time) bool {
	level, err := severity.Parse(sev)
	if err != nil {
		progress.Warnf(c.sink, "unknown severity used - %s", sev)
		return false
	}
	return remediate.IsOverdue(level, s, createdAt, c.clock.Now())
}

// checkAgainstPolicy: ignores beat conditions, names are checked before ids
// and the first match ends evaluation. Otherwise the severity threshold
// decides.
func (c *Checker) checkAgainstPolicy(sev string, p policy.TechnologyPolicy, names, ids []string) bool {
	if !p.Enabled() {
		return c.checkGlobal(sev)
	}
	if verdict, decided := matchLists(p, names, ids); decided {
		return verdict
	}
	level, ok := c.level(sev)
	if !ok {
		return false
	}
	switch level {
	case severity.All:
		// A policy made only of block lists has no threshold to satisfy.
		return p.HasLevel()
	case severity.None:
		return false
	}
	return severity.Contains(p.Severities(), level)
}

// IsListed reports whether a finding without a severity of its own hits an
// explicit condition of an enabled technology policy. Ignores still win and
// the level threshold is never consulted.
func (c *Checker) IsListed(technology policy.Technology, names, ids []string) (bool, error) {
	if technology == "" {
		return false, policy.ErrEmptyTechnology
	}
	p, err := c.doc.Policy(technology)
	if err != nil {
		return false, err
	}
	if !p.Enabled() {
		return false, nil
	}
	verdict, _ := matchLists(p, names, ids)
	return verdict, nil
}

// matchLists walks names then ids, ignore before condition. decided is false
// when no pattern matched.
func matchLists(p policy.TechnologyPolicy, names, ids []string) (verdict, decided bool) {
	for _, name := range names {
		name = strings.ToLower(name)
		if p.Ignores.MatchName(name) {
			return false, true
		}
		if p.Conditions.MatchName(name) {
			return true, true
		}
	}
	for _, id := range ids {
		id = strings.ToLower(id)
		if p.Ignores.MatchID(id) {
			return false, true
		}
		if p.Conditions.MatchID(id) {
			return true, true
		}
	}
	return false, false
}

func (c *Checker) checkGlobal(sev string) bool {
	level, ok := c.level(sev)
	if !ok {
		return false
	}
	switch level {
	case severity.All:
		return true
	case severity.None:
		return false
	}
	return severity.Contains(c.severities, level)
}

func (c *Checker) level(sev string) (severity.Level, bool) {
	level, err := severity.Parse(sev)
	if err != nil {
		progress.Warnf(c.sink, "unknown severity used - %s", sev)
		return "", false
	}
	return level, true
}
