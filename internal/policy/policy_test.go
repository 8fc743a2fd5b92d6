package policy

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GeekMasher/advanced-security-compliance/internal/progress"
	"github.com/GeekMasher/advanced-security-compliance/internal/severity"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func localOpts(dir string, sink progress.Sink) LoadOptions {
	return LoadOptions{WorkDir: dir, InstallDir: dir, Sink: sink}
}

func TestParseGeneralInheritance(t *testing.T) {
	doc, err := Parse([]byte(`
name: Example
general:
  level: error
  remediate:
    error: 7
codescanning:
  level: warning
  ignores:
    ids:
      - JS/Log-Injection
dependabot:
  conditions:
    ids:
      - GHSA-*
`), localOpts(t.TempDir(), nil))
	require.NoError(t, err)

	assert.Equal(t, "Example", doc.Name)
	assert.NotEmpty(t, doc.Version)
	require.NotNil(t, doc.General)

	cs, err := doc.Policy(CodeScanning)
	require.NoError(t, err)
	assert.Equal(t, severity.Warning, cs.Level)
	assert.Equal(t, []string{"js/log-injection"}, cs.Ignores.IDs)
	assert.True(t, cs.Ignores.MatchID("js/log-injection"))
	assert.True(t, cs.RemediationEnabled())

	dep, err := doc.Policy(Dependabot)
	require.NoError(t, err)
	assert.Equal(t, severity.Error, dep.Level)
	assert.True(t, dep.Conditions.MatchID("ghsa-1234"))

	secrets, err := doc.Policy(SecretScanning)
	require.NoError(t, err)
	assert.Equal(t, severity.Error, secrets.Level)
	days, ok := secrets.Remediate.GraceDays(severity.Critical)
	assert.True(t, ok)
	assert.Equal(t, 7, days)
}

func TestParseWithoutGeneralLeavesTechnologiesDisabled(t *testing.T) {
	doc, err := Parse([]byte("codescanning:\n  level: high\n"), localOpts(t.TempDir(), nil))
	require.NoError(t, err)
	assert.Nil(t, doc.General)
	assert.Equal(t, []Technology{CodeScanning}, doc.Enabled())

	lic, err := doc.Policy(Licensing)
	require.NoError(t, err)
	assert.Equal(t, severity.None, lic.Level)
	assert.False(t, lic.Enabled())
}

func TestParseEmptyDocument(t *testing.T) {
	doc, err := Parse(nil, localOpts(t.TempDir(), nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultName, doc.Name)
	assert.Empty(t, doc.Enabled())
}

func TestParseIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "ids.txt"), "A\nb\n")
	src := []byte(`
general:
  level: high
licensing:
  conditions:
    ids: [GPL-*]
    imports:
      ids: ids.txt
`)
	first, err := Parse(src, localOpts(dir, nil))
	require.NoError(t, err)
	second, err := Parse(src, localOpts(dir, nil))
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestImportsAppendAndReplace(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "lists", "ids.txt"), "# header\n\nCVE-2021-1\n  cve-2021-2  \n#cve-2021-3\n")
	writeFile(t, filepath.Join(dir, "lists", "names.txt"), "lodash\n")

	doc, err := Parse([]byte(`
dependabot:
  level: all
  ignores:
    ids: [GHSA-base]
    names: [left-pad]
    imports:
      ids: lists/ids.txt
  conditions:
    names: [react]
    imports:
      names: lists/names.txt
      replace: true
`), localOpts(dir, nil))
	require.NoError(t, err)

	p, err := doc.Policy(Dependabot)
	require.NoError(t, err)
	assert.Equal(t, []string{"ghsa-base", "cve-2021-1", "cve-2021-2"}, p.Ignores.IDs)
	assert.Equal(t, []string{"left-pad"}, p.Ignores.Names)
	assert.Equal(t, []string{"lodash"}, p.Conditions.Names)
}

func TestImportSearchesRootsInOrder(t *testing.T) {
	work := t.TempDir()
	install := t.TempDir()
	writeFile(t, filepath.Join(install, "ids.txt"), "from-install\n")

	doc, err := Parse([]byte("codescanning:\n  ignores:\n    imports:\n      ids: ids.txt\n"),
		LoadOptions{WorkDir: work, InstallDir: install})
	require.NoError(t, err)
	assert.Equal(t, []string{"from-install"}, doc.CodeScanning.Ignores.IDs)

	writeFile(t, filepath.Join(work, "ids.txt"), "from-work\n")
	doc, err = Parse([]byte("codescanning:\n  ignores:\n    imports:\n      ids: ids.txt\n"),
		LoadOptions{WorkDir: work, InstallDir: install})
	require.NoError(t, err)
	assert.Equal(t, []string{"from-work"}, doc.CodeScanning.Ignores.IDs)
}

func TestImportPathTraversalRejected(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "project")
	require.NoError(t, os.MkdirAll(root, 0o755))
	writeFile(t, filepath.Join(base, "secret.txt"), "leak\n")

	_, err := Parse([]byte("codescanning:\n  ignores:\n    imports:\n      ids: ../secret.txt\n"), localOpts(root, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPathTraversal))

	var traversal *PathTraversalError
	require.True(t, errors.As(err, &traversal))
	assert.Equal(t, filepath.Join(base, "secret.txt"), traversal.Path)
}

func TestImportSymlinkEscapeRejected(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "secret.txt"), "leaked\n")
	if err := os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(root, "ids.txt")); err != nil {
		t.Skipf("symlink not supported: %v", err)
	}

	opts := localOpts(root, nil)
	opts.TempDir = "/nonexistent"
	doc, err := Parse([]byte("codescanning:\n  ignores:\n    imports:\n      ids: ids.txt\n"), opts)
	require.Error(t, err, "document: %+v", doc)
	assert.ErrorIs(t, err, ErrPathTraversal)

	var traversal *PathTraversalError
	require.True(t, errors.As(err, &traversal))
	assert.Equal(t, filepath.Join(root, "ids.txt"), traversal.Path)
}

func TestImportSymlinkWithinRootAllowed(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "lists", "ids.txt"), "js/sql-injection\n")
	if err := os.Symlink(filepath.Join(root, "lists", "ids.txt"), filepath.Join(root, "ids.txt")); err != nil {
		t.Skipf("symlink not supported: %v", err)
	}

	im := &Importer{Roots: []Root{{Dir: root}}}
	lines, err := im.Load("ids.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"js/sql-injection"}, lines)
}

func TestImportFromRemoteRootMayLeaveCheckoutWithinTemp(t *testing.T) {
	tmp := t.TempDir()
	checkout := filepath.Join(tmp, "checkout")
	require.NoError(t, os.MkdirAll(checkout, 0o755))
	writeFile(t, filepath.Join(tmp, "shared", "ids.txt"), "shared-id\n")

	im := &Importer{
		Roots:   []Root{{Dir: checkout, Remote: true}},
		TempDir: tmp,
	}
	lines, err := im.Load("../shared/ids.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"shared-id"}, lines)

	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "x.txt"), "nope\n")
	rel, err := filepath.Rel(checkout, filepath.Join(outside, "x.txt"))
	require.NoError(t, err)
	_, err = im.Load(rel)
	assert.ErrorIs(t, err, ErrPathTraversal)
}

func TestImportUnsupportedTypeWarns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "ids.json"), `["x"]`)
	rec := &progress.Recorder{}

	doc, err := Parse([]byte("codescanning:\n  ignores:\n    imports:\n      ids: ids.json\n"), localOpts(dir, rec))
	require.NoError(t, err)
	assert.Empty(t, doc.CodeScanning.Ignores.IDs)

	warnings := rec.Messages(progress.EventWarning)
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[0], "not supported")
}

func TestSchemaErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		key  string
	}{
		{name: "unknown top-level", src: "codescan:\n  level: high\n", key: "codescan"},
		{name: "unknown section key", src: "codescanning:\n  severity: high\n", key: "severity"},
		{name: "unknown block key", src: "dependabot:\n  ignores:\n    paths: [a]\n", key: "paths"},
		{name: "circular import", src: "dependabot:\n  ignores:\n    imports:\n      imports:\n        ids: x.txt\n", key: "imports"},
		{name: "unknown level", src: "codescanning:\n  level: urgent\n", key: "level"},
		{name: "unknown remediate key", src: "general:\n  remediate:\n    soon: 1\n", key: "soon"},
		{name: "ids not a list", src: "codescanning:\n  ignores:\n    ids: abc\n", key: "ids"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.src), localOpts(t.TempDir(), nil))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSchemaValidation)
			var schemaErr *SchemaError
			require.True(t, errors.As(err, &schemaErr))
			assert.Equal(t, tc.key, schemaErr.Key)
		})
	}
}

func TestCircularImportMessage(t *testing.T) {
	_, err := Parse([]byte("licensing:\n  conditions:\n    imports:\n      imports: {}\n"), localOpts(t.TempDir(), nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular import")
}

func TestNegativeRemediationRejected(t *testing.T) {
	_, err := Parse([]byte("general:\n  remediate:\n    high: -1\n"), localOpts(t.TempDir(), nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaValidation)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"), LoadOptions{})
	assert.ErrorIs(t, err, ErrPolicyNotFound)
}

func TestLoadAndSaveSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yml")
	writeFile(t, path, "name: Snap\ngeneral:\n  level: high\n  remediate:\n    high: 3\n")

	doc, err := Load(path, localOpts(dir, nil))
	require.NoError(t, err)

	out := filepath.Join(dir, "snapshot.json")
	writeFile(t, out, "stale")
	require.NoError(t, Save(out, doc))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var snapshot map[string]any
	require.NoError(t, json.Unmarshal(data, &snapshot))
	assert.Equal(t, "Snap", snapshot["name"])
	cs := snapshot["codescanning"].(map[string]any)
	assert.Equal(t, "high", cs["level"])
	assert.Equal(t, map[string]any{"high": float64(3)}, cs["remediate"])
}

func TestDefaultDocument(t *testing.T) {
	doc := Default(severity.Error)
	assert.Len(t, doc.Enabled(), len(Technologies()))
	p, err := doc.Policy(Dependabot)
	require.NoError(t, err)
	assert.Equal(t, []severity.Level{severity.Critical, severity.High, severity.Error}, p.Severities())
}

func TestPolicyLookupErrors(t *testing.T) {
	doc := Default(severity.Error)
	_, err := doc.Policy("")
	assert.ErrorIs(t, err, ErrEmptyTechnology)
	_, err = doc.Policy(Technology("containers"))
	assert.ErrorIs(t, err, ErrUnknownTechnology)

	_, err = ParseTechnology(" CodeScanning ")
	assert.NoError(t, err)
	_, err = ParseTechnology("")
	assert.ErrorIs(t, err, ErrEmptyTechnology)
}
