package policy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/GeekMasher/advanced-security-compliance/internal/progress"
	"github.com/GeekMasher/advanced-security-compliance/internal/remediate"
	"github.com/GeekMasher/advanced-security-compliance/internal/safefile"
)

// DefaultPath is where a repository keeps its own policy.
func DefaultPath(root string) string {
	return filepath.Join(root, ".compliance", "policy.yml")
}

// LoadOptions controls where imports are resolved and where diagnostics go.
type LoadOptions struct {
	// WorkDir is the first import root. Defaults to the process working
	// directory.
	WorkDir string
	// PolicyRepository is the checkout of a remote policy repository, if any.
	PolicyRepository string
	// InstallDir is the last import root. Defaults to the executable's
	// directory.
	InstallDir string
	// TempDir bounds imports from a PolicyRepository checkout. Defaults to
	// the OS temp directory.
	TempDir string
	Sink    progress.Sink
}

func (o LoadOptions) importer() *Importer {
	im := &Importer{Sink: o.Sink, TempDir: o.TempDir}
	workDir := strings.TrimSpace(o.WorkDir)
	if workDir == "" {
		if wd, err := os.Getwd(); err == nil {
			workDir = wd
		}
	}
	if workDir != "" {
		im.Roots = append(im.Roots, Root{Dir: workDir})
	}
	if repo := strings.TrimSpace(o.PolicyRepository); repo != "" {
		im.Roots = append(im.Roots, Root{Dir: repo, Remote: true})
	}
	installDir := strings.TrimSpace(o.InstallDir)
	if installDir == "" {
		if exe, err := os.Executable(); err == nil {
			installDir = filepath.Dir(exe)
		}
	}
	if installDir != "" {
		im.Roots = append(im.Roots, Root{Dir: installDir})
	}
	return im
}

// Load reads a policy file from disk.
func Load(path string, opts LoadOptions) (*Document, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("policy path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, path)
		}
		return nil, fmt.Errorf("stat policy file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrPolicyNotFound, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	progress.Debugf(opts.Sink, "loading policy file: %s", path)
	return Parse(data, opts)
}

type rawDocument struct {
	Version        string         `yaml:"version"`
	Name           string         `yaml:"name"`
	General        *rawTechnology `yaml:"general"`
	CodeScanning   *rawTechnology `yaml:"codescanning"`
	Dependabot     *rawTechnology `yaml:"dependabot"`
	Licensing      *rawTechnology `yaml:"licensing"`
	Dependencies   *rawTechnology `yaml:"dependencies"`
	SecretScanning *rawTechnology `yaml:"secretscanning"`
}

type rawTechnology struct {
	Level      string         `yaml:"level"`
	Conditions *rawBlock      `yaml:"conditions"`
	Warnings   *rawBlock      `yaml:"warnings"`
	Ignores    *rawBlock      `yaml:"ignores"`
	Remediate  map[string]int `yaml:"remediate"`
}

type rawBlock struct {
	IDs     []string    `yaml:"ids"`
	Names   []string    `yaml:"names"`
	Imports *ImportSpec `yaml:"imports"`
}

// Parse validates and resolves a YAML policy document. Imports are expanded
// here, so the returned document never touches the filesystem again.
func Parse(data []byte, opts LoadOptions) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &SchemaError{Msg: "invalid yaml", Err: err}
	}
	if err := validateNode(&root); err != nil {
		return nil, err
	}
	var raw rawDocument
	if len(root.Content) > 0 {
		if err := root.Decode(&raw); err != nil {
			return nil, &SchemaError{Msg: "decode policy", Err: err}
		}
	}

	im := opts.importer()
	var general *TechnologyPolicy
	if raw.General != nil {
		p, err := buildTechnology("general", raw.General, im)
		if err != nil {
			return nil, err
		}
		general = &p
	}

	sections := map[Technology]*rawTechnology{
		CodeScanning:   raw.CodeScanning,
		Dependabot:     raw.Dependabot,
		Licensing:      raw.Licensing,
		Dependencies:   raw.Dependencies,
		SecretScanning: raw.SecretScanning,
	}
	policies := make(map[Technology]TechnologyPolicy, len(sections))
	for _, t := range technologies {
		section := sections[t]
		if section == nil {
			continue
		}
		p, err := buildTechnology(string(t), section, im)
		if err != nil {
			return nil, err
		}
		policies[t] = p
	}

	doc := NewDocument(strings.TrimSpace(raw.Name), strings.TrimSpace(raw.Version), general, policies)
	progress.Debugf(opts.Sink, "policy %q loaded (enabled: %v)", doc.Name, doc.Enabled())
	return doc, nil
}

func buildTechnology(path string, raw *rawTechnology, im *Importer) (TechnologyPolicy, error) {
	p, err := NewTechnologyPolicy(raw.Level)
	if err != nil {
		return TechnologyPolicy{}, &SchemaError{Path: path, Key: "level", Msg: "invalid level", Err: err}
	}
	if p.Conditions, err = buildBlock(raw.Conditions, im); err != nil {
		return TechnologyPolicy{}, err
	}
	if p.Warnings, err = buildBlock(raw.Warnings, im); err != nil {
		return TechnologyPolicy{}, err
	}
	if p.Ignores, err = buildBlock(raw.Ignores, im); err != nil {
		return TechnologyPolicy{}, err
	}
	if raw.Remediate != nil {
		schedule, err := remediate.NewSchedule(raw.Remediate)
		if err != nil {
			return TechnologyPolicy{}, &SchemaError{Path: path, Key: "remediate", Msg: "invalid remediation", Err: err}
		}
		p.Remediate = schedule
	}
	return p, nil
}

func buildBlock(raw *rawBlock, im *Importer) (BlockList, error) {
	if raw == nil {
		return NewBlockList(nil, nil, nil), nil
	}
	ids := append([]string{}, raw.IDs...)
	names := append([]string{}, raw.Names...)
	if imp := raw.Imports; imp != nil {
		if path := strings.TrimSpace(imp.IDs); path != "" {
			lines, err := im.Load(path)
			if err != nil {
				return BlockList{}, err
			}
			if imp.Replace {
				ids = nil
			}
			ids = append(ids, lines...)
		}
		if path := strings.TrimSpace(imp.Names); path != "" {
			lines, err := im.Load(path)
			if err != nil {
				return BlockList{}, err
			}
			if imp.Replace {
				names = nil
			}
			names = append(names, lines...)
		}
	}
	return NewBlockList(ids, names, raw.Imports), nil
}

// Save writes a JSON snapshot of the resolved document, replacing any file
// already at path.
func Save(path string, doc *Document) error {
	if doc == nil {
		return fmt.Errorf("policy document is nil")
	}
	if err := safefile.WriteJSON(path, doc, 0o600); err != nil {
		return fmt.Errorf("write policy snapshot: %w", err)
	}
	return nil
}
