package policy

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/GeekMasher/advanced-security-compliance/internal/progress"
)

var supportedImportTypes = []string{".txt"}

// Root is a directory imports may be resolved against.
type Root struct {
	Dir string
	// Remote roots are temporary checkouts of a policy repository. Their
	// containment boundary is the OS temp directory.
	Remote bool
}

// Importer resolves import paths against an ordered list of roots. The
// first root holding the file wins.
type Importer struct {
	Roots   []Root
	TempDir string
	Sink    progress.Sink
}

// Load returns the non-empty, non-comment lines of the import file at path.
// A path missing from every root yields no lines and a warning.
func (im *Importer) Load(path string) ([]string, error) {
	for _, root := range im.Roots {
		rootAbs, err := filepath.Abs(root.Dir)
		if err != nil {
			continue
		}
		full := filepath.Clean(filepath.Join(rootAbs, path))
		info, err := os.Stat(full)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if err := im.checkContainment(root, rootAbs, full); err != nil {
			return nil, err
		}
		if !supportedImport(full) {
			progress.Warnf(im.Sink, "import file type is not supported: %s", path)
			continue
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("read import file %s: %w", full, err)
		}
		progress.Debugf(im.Sink, "importing %s", full)
		return parseImportLines(data), nil
	}
	progress.Warnf(im.Sink, "import file not found: %s", path)
	return nil, nil
}

// checkContainment resolves symlinks on both sides: an import inside root
// that links elsewhere is judged by where it really points.
func (im *Importer) checkContainment(root Root, rootAbs, full string) error {
	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		return fmt.Errorf("resolve import path %s: %w", full, err)
	}
	if within(rootAbs, full) && within(realPath(rootAbs), resolved) {
		return nil
	}
	if root.Remote {
		tmp := im.TempDir
		if tmp == "" {
			tmp = os.TempDir()
		}
		if tmpAbs, err := filepath.Abs(tmp); err == nil && within(realPath(tmpAbs), resolved) {
			progress.Debugf(im.Sink, "import from temporary checkout: %s", full)
			return nil
		}
	}
	return &PathTraversalError{Path: full, Root: rootAbs}
}

func realPath(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return path
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func supportedImport(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, t := range supportedImportTypes {
		if ext == t {
			return true
		}
	}
	return false
}

func parseImportLines(data []byte) []string {
	var out []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(strings.ReplaceAll(scanner.Text(), "\b", ""))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
