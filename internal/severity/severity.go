// Package severity holds the ordered severity vocabulary shared by the
// scanning platforms (code scanning, Dependabot, secret scanning).
package severity

import (
	"errors"
	"fmt"
	"strings"
)

// Level is a single severity token. Concrete levels are totally ordered from
// most to least severe; All and None are meta-levels.
type Level string

const (
	Critical Level = "critical"
	High     Level = "high"
	Error    Level = "error"
	Errors   Level = "errors"
	Medium   Level = "medium"
	Moderate Level = "moderate"
	Low      Level = "low"
	Warning  Level = "warning"
	Warnings Level = "warnings"
	Note     Level = "note"
	Notes    Level = "notes"

	All  Level = "all"
	None Level = "none"
)

// Grouping selects which side of a level Expand returns.
type Grouping string

const (
	Higher Grouping = "higher"
	Lower  Grouping = "lower"
)

// ErrUnknownSeverity is returned for tokens outside the vocabulary.
var ErrUnknownSeverity = errors.New("unknown severity")

var ordered = []Level{
	Critical, High, Error, Errors,
	Medium, Moderate, Low, Warning, Warnings,
	Note, Notes,
}

var rank = func() map[Level]int {
	m := make(map[Level]int, len(ordered))
	for i, l := range ordered {
		m[l] = i
	}
	return m
}()

// Levels returns the concrete levels, most severe first. With includeMeta the
// meta-levels all and none are appended.
func Levels(includeMeta bool) []Level {
	n := len(ordered)
	if includeMeta {
		n += 2
	}
	out := make([]Level, 0, n)
	out = append(out, ordered...)
	if includeMeta {
		out = append(out, All, None)
	}
	return out
}

// Parse normalizes raw and checks it against the vocabulary, meta-levels
// included.
func Parse(raw string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(raw)))
	if !l.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSeverity, raw)
	}
	return l, nil
}

// Known reports whether raw names a level, case-insensitively.
func Known(raw string) bool {
	_, err := Parse(raw)
	return err == nil
}

func (l Level) Valid() bool {
	if l.IsMeta() {
		return true
	}
	_, ok := rank[l]
	return ok
}

func (l Level) IsMeta() bool {
	return l == All || l == None
}

// Rank is the position of a concrete level in the ordering (0 = critical),
// or -1 for meta and unknown levels.
func (l Level) Rank() int {
	if r, ok := rank[l]; ok {
		return r
	}
	return -1
}

func (l Level) String() string {
	return string(l)
}

// Expand returns the contiguous run of levels anchored at level: everything
// at least as severe for Higher, everything at most as severe for Lower.
// None expands to nothing and All to every concrete level.
func Expand(level Level, grouping Grouping) ([]Level, error) {
	switch level {
	case None:
		return []Level{}, nil
	case All:
		return Levels(false), nil
	}
	idx, ok := rank[level]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSeverity, string(level))
	}
	switch grouping {
	case Higher, "":
		return append([]Level{}, ordered[:idx+1]...), nil
	case Lower:
		return append([]Level{}, ordered[idx:]...), nil
	default:
		return nil, fmt.Errorf("unknown severity grouping %q", grouping)
	}
}

// Contains reports whether l appears in levels.
func Contains(levels []Level, l Level) bool {
	for _, item := range levels {
		if item == l {
			return true
		}
	}
	return false
}

// Strings converts levels to their string form.
func Strings(levels []Level) []string {
	out := make([]string, 0, len(levels))
	for _, l := range levels {
		out = append(out, string(l))
	}
	return out
}
