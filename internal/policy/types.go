package policy

import (
	"fmt"
	"strings"

	"github.com/GeekMasher/advanced-security-compliance/internal/match"
	"github.com/GeekMasher/advanced-security-compliance/internal/remediate"
	"github.com/GeekMasher/advanced-security-compliance/internal/severity"
	"github.com/GeekMasher/advanced-security-compliance/internal/version"
)

const DefaultName = "Policy"

// Technology is one of the checked alert categories.
type Technology string

const (
	CodeScanning   Technology = "codescanning"
	Dependabot     Technology = "dependabot"
	Licensing      Technology = "licensing"
	Dependencies   Technology = "dependencies"
	SecretScanning Technology = "secretscanning"
)

var technologies = []Technology{CodeScanning, Dependabot, Licensing, Dependencies, SecretScanning}

// Technologies returns every technology in check order.
func Technologies() []Technology {
	return append([]Technology{}, technologies...)
}

func ParseTechnology(raw string) (Technology, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return "", ErrEmptyTechnology
	}
	for _, t := range technologies {
		if string(t) == raw {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTechnology, raw)
}

// Title is the display name used for output groups.
func (t Technology) Title() string {
	switch t {
	case CodeScanning:
		return "Code Scanning"
	case Dependabot:
		return "Dependabot"
	case Licensing:
		return "Dependency Graph - Licensing"
	case Dependencies:
		return "Dependency Graph"
	case SecretScanning:
		return "Secret Scanning"
	default:
		return string(t)
	}
}

// ImportSpec names line-delimited files merged into a BlockList at load time.
type ImportSpec struct {
	IDs     string `json:"ids,omitempty" yaml:"ids"`
	Names   string `json:"names,omitempty" yaml:"names"`
	Replace bool   `json:"replace,omitempty" yaml:"replace"`
}

// BlockList is a pair of lowercased id and name pattern lists.
type BlockList struct {
	IDs     []string    `json:"ids"`
	Names   []string    `json:"names"`
	Imports *ImportSpec `json:"imports,omitempty"`

	ids   *match.Set
	names *match.Set
}

// NewBlockList lowercases ids and names and compiles them for matching.
func NewBlockList(ids, names []string, imports *ImportSpec) BlockList {
	b := BlockList{
		IDs:     lowerAll(ids),
		Names:   lowerAll(names),
		Imports: imports,
	}
	b.ids = match.NewSet(b.IDs)
	b.names = match.NewSet(b.Names)
	return b
}

func (b BlockList) Enabled() bool {
	return len(b.IDs) > 0 || len(b.Names) > 0
}

func (b BlockList) MatchID(candidate string) bool {
	if b.ids == nil {
		return match.Matches(candidate, b.IDs)
	}
	return b.ids.Match(candidate)
}

func (b BlockList) MatchName(candidate string) bool {
	if b.names == nil {
		return match.Matches(candidate, b.Names)
	}
	return b.names.Match(candidate)
}

// MatchAny checks candidate against both lists.
func (b BlockList) MatchAny(candidate string) bool {
	return b.MatchID(candidate) || b.MatchName(candidate)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, strings.ToLower(item))
	}
	return out
}

// TechnologyPolicy is the rule set for one technology (or the general
// default).
type TechnologyPolicy struct {
	Level      severity.Level      `json:"level"`
	Conditions BlockList           `json:"conditions"`
	Warnings   BlockList           `json:"warnings"`
	Ignores    BlockList           `json:"ignores"`
	Remediate  *remediate.Schedule `json:"remediate,omitempty"`
}

// NewTechnologyPolicy returns a disabled policy at level. An empty level
// means none; anything outside the severity vocabulary is an error.
func NewTechnologyPolicy(level string) (TechnologyPolicy, error) {
	p := TechnologyPolicy{Level: severity.None}
	if strings.TrimSpace(level) == "" {
		return p, nil
	}
	l, err := severity.Parse(level)
	if err != nil {
		return TechnologyPolicy{}, fmt.Errorf("`level` variable is set to unknown value: %w", err)
	}
	p.Level = l
	return p, nil
}

func (p TechnologyPolicy) Enabled() bool {
	if p.Level != "" && p.Level != severity.None {
		return true
	}
	return p.Conditions.Enabled() || p.Warnings.Enabled() || p.Ignores.Enabled()
}

// HasLevel reports whether a severity threshold applies.
func (p TechnologyPolicy) HasLevel() bool {
	return p.Level != "" && p.Level != severity.None
}

func (p TechnologyPolicy) RemediationEnabled() bool {
	return p.Remediate.Enabled()
}

// Severities expands the policy level to every level at least as severe.
func (p TechnologyPolicy) Severities() []severity.Level {
	level := p.Level
	if level == "" {
		level = severity.None
	}
	levels, err := severity.Expand(level, severity.Higher)
	if err != nil {
		return nil
	}
	return levels
}

// Document is a resolved policy: an optional general default plus one policy
// per technology. It is read-only once built.
type Document struct {
	Version string `json:"version"`
	Name    string `json:"name"`

	General *TechnologyPolicy `json:"general,omitempty"`

	CodeScanning   TechnologyPolicy `json:"codescanning"`
	Dependabot     TechnologyPolicy `json:"dependabot"`
	Licensing      TechnologyPolicy `json:"licensing"`
	Dependencies   TechnologyPolicy `json:"dependencies"`
	SecretScanning TechnologyPolicy `json:"secretscanning"`
}

// NewDocument assembles a document and applies general inheritance once.
// Technologies missing from policies start disabled.
func NewDocument(name, ver string, general *TechnologyPolicy, policies map[Technology]TechnologyPolicy) *Document {
	d := &Document{
		Version: ver,
		Name:    name,
		General: general,
	}
	if d.Version == "" {
		d.Version = version.Version
	}
	if d.Name == "" {
		d.Name = DefaultName
	}
	for _, t := range technologies {
		p, ok := policies[t]
		if !ok {
			p = TechnologyPolicy{Level: severity.None}
		}
		if p.Level == "" {
			p.Level = severity.None
		}
		*d.field(t) = p
	}
	d.applyGeneral()
	return d
}

// Default is the document used when no policy file is configured: every
// technology inherits threshold from general.
func Default(threshold severity.Level) *Document {
	return NewDocument("", "", &TechnologyPolicy{Level: threshold}, nil)
}

func (d *Document) applyGeneral() {
	if d.General == nil {
		return
	}
	for _, t := range technologies {
		p := d.field(t)
		if !p.HasLevel() {
			p.Level = d.General.Level
		}
		if p.Remediate == nil {
			p.Remediate = d.General.Remediate
		}
	}
}

func (d *Document) field(t Technology) *TechnologyPolicy {
	switch t {
	case CodeScanning:
		return &d.CodeScanning
	case Dependabot:
		return &d.Dependabot
	case Licensing:
		return &d.Licensing
	case Dependencies:
		return &d.Dependencies
	case SecretScanning:
		return &d.SecretScanning
	default:
		return nil
	}
}

// Policy returns the policy for technology.
func (d *Document) Policy(t Technology) (TechnologyPolicy, error) {
	if t == "" {
		return TechnologyPolicy{}, ErrEmptyTechnology
	}
	p := d.field(t)
	if p == nil {
		return TechnologyPolicy{}, fmt.Errorf("%w: %q", ErrUnknownTechnology, string(t))
	}
	return *p, nil
}

// Enabled returns the technologies whose policy is enabled.
func (d *Document) Enabled() []Technology {
	var out []Technology
	for _, t := range technologies {
		if d.field(t).Enabled() {
			out = append(out, t)
		}
	}
	return out
}
