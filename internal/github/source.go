package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/GeekMasher/advanced-security-compliance/internal/model"
)

// Source supplies the records each technology check evaluates.
type Source interface {
	CodeScanningAlerts(ctx context.Context) ([]model.CodeScanningAlert, error)
	DependabotAlerts(ctx context.Context) ([]model.DependabotAlert, error)
	SecretScanningAlerts(ctx context.Context) ([]model.SecretScanningAlert, error)
	Dependencies(ctx context.Context) ([]model.Dependency, error)
}

// Record file names shared by FileSource and the debug dumps.
const (
	CodeScanningFile   = "code-scanning.json"
	DependabotFile     = "dependabot.json"
	SecretScanningFile = "secretscanning.json"
	DependenciesFile   = "dependencies.json"
)

// FileSource reads previously exported records from a directory. Missing
// files yield no records.
type FileSource struct {
	Dir string
}

func (s FileSource) CodeScanningAlerts(ctx context.Context) ([]model.CodeScanningAlert, error) {
	return readRecords[model.CodeScanningAlert](ctx, filepath.Join(s.Dir, CodeScanningFile))
}

func (s FileSource) DependabotAlerts(ctx context.Context) ([]model.DependabotAlert, error) {
	return readRecords[model.DependabotAlert](ctx, filepath.Join(s.Dir, DependabotFile))
}

func (s FileSource) SecretScanningAlerts(ctx context.Context) ([]model.SecretScanningAlert, error) {
	return readRecords[model.SecretScanningAlert](ctx, filepath.Join(s.Dir, SecretScanningFile))
}

func (s FileSource) Dependencies(ctx context.Context) ([]model.Dependency, error) {
	return readRecords[model.Dependency](ctx, filepath.Join(s.Dir, DependenciesFile))
}

func readRecords[T any](ctx context.Context, path string) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}

var (
	_ Source = (*Client)(nil)
	_ Source = FileSource{}
)
