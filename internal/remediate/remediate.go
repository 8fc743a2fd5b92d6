// Package remediate decides whether a finding has outlived the grace period
// configured for its severity.
package remediate

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/GeekMasher/advanced-security-compliance/internal/severity"
)

// ErrNegativeGrace is returned when a schedule carries a negative day count.
var ErrNegativeGrace = errors.New("remediation grace period must be >= 0")

// Schedule maps severity levels to grace days. Only explicitly configured
// levels are stored; lookups fall back along the severity ordering.
type Schedule struct {
	days map[severity.Level]int
}

// NewSchedule validates raw (severity name -> days). The key "all" is
// accepted and used as the last fallback.
func NewSchedule(raw map[string]int) (*Schedule, error) {
	s := &Schedule{days: make(map[severity.Level]int, len(raw))}
	for key, days := range raw {
		level, err := severity.Parse(key)
		if err != nil || level == severity.None {
			return nil, fmt.Errorf("remediate: unknown severity key %q", key)
		}
		if days < 0 {
			return nil, fmt.Errorf("%w: %s=%d", ErrNegativeGrace, level, days)
		}
		s.days[level] = days
	}
	return s, nil
}

// MustSchedule is NewSchedule for literals in tests and defaults.
func MustSchedule(raw map[string]int) *Schedule {
	s, err := NewSchedule(raw)
	if err != nil {
		panic(err)
	}
	return s
}

// Enabled is true when at least one level has an explicit value, zero
// included.
func (s *Schedule) Enabled() bool {
	return s != nil && len(s.days) > 0
}

// GraceDays returns the grace period for level. The lookup walks from level
// towards the least severe level and returns the first explicit value, so a
// value configured on "error" also covers unset "critical" and "high".
func (s *Schedule) GraceDays(level severity.Level) (int, bool) {
	if !s.Enabled() {
		return 0, false
	}
	levels, err := severity.Expand(level, severity.Lower)
	if err != nil {
		return 0, false
	}
	for _, l := range levels {
		if days, ok := s.days[l]; ok {
			return days, true
		}
	}
	if level == severity.None {
		return 0, false
	}
	days, ok := s.days[severity.All]
	return days, ok
}

// Map returns a copy of the explicit values.
func (s *Schedule) Map() map[string]int {
	out := make(map[string]int)
	if s == nil {
		return out
	}
	for l, d := range s.days {
		out[string(l)] = d
	}
	return out
}

func (s *Schedule) String() string {
	m := s.Map()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, ",")
}

func (s *Schedule) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

// Clock supplies "now" so callers can pin the current date.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always reports the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

// IsOverdue reports whether a finding created at createdAt has reached its
// remediation deadline. Dates are compared at midnight in now's location: a
// grace period of zero is overdue on the creation day itself.
func IsOverdue(level severity.Level, s *Schedule, createdAt *time.Time, now time.Time) bool {
	if createdAt == nil || createdAt.IsZero() {
		return false
	}
	days, ok := s.GraceDays(level)
	if !ok {
		return false
	}
	deadline := midnight(createdAt.In(now.Location())).AddDate(0, 0, days)
	return !midnight(now).Before(deadline)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
