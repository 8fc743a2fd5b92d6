package envsafe

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// gitAllowedEnv lists what a git subprocess may inherit. Tokens travel in
// the clone URL only, so GITHUB_TOKEN and friends are never forwarded.
var gitAllowedEnv = map[string]struct{}{
	"PATH":            {},
	"HOME":            {},
	"USER":            {},
	"LOGNAME":         {},
	"LANG":            {},
	"LC_ALL":          {},
	"LC_CTYPE":        {},
	"TMPDIR":          {},
	"TMP":             {},
	"TEMP":            {},
	"XDG_CONFIG_HOME": {},
	"SSL_CERT_FILE":   {},
	"SSL_CERT_DIR":    {},
	"GIT_SSL_CAINFO":  {},
	"GIT_SSL_CAPATH":  {},
	"HTTP_PROXY":      {},
	"HTTPS_PROXY":     {},
	"NO_PROXY":        {},
	"http_proxy":      {},
	"https_proxy":     {},
	"no_proxy":        {},
}

// GitEnv returns a deterministic env allowlist for git subprocesses with
// interactive credential prompts disabled.
func GitEnv(in []string) []string {
	outMap := make(map[string]string, len(gitAllowedEnv)+1)
	for _, kv := range in {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		if _, allowed := gitAllowedEnv[key]; !allowed {
			continue
		}
		if key == "PATH" {
			val = sanitizePathValue(val)
		}
		outMap[key] = val
	}
	if v, ok := outMap["PATH"]; !ok || strings.TrimSpace(v) == "" {
		outMap["PATH"] = defaultSafePath()
	}
	outMap["GIT_TERMINAL_PROMPT"] = "0"

	keys := make([]string, 0, len(outMap))
	for k := range outMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+outMap[k])
	}
	return out
}

// sanitizePathValue drops relative and duplicate PATH entries.
func sanitizePathValue(in string) string {
	if strings.TrimSpace(in) == "" {
		return defaultSafePath()
	}

	parts := strings.Split(in, string(os.PathListSeparator))
	seen := map[string]struct{}{}
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || !filepath.IsAbs(part) {
			continue
		}
		clean := filepath.Clean(part)
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	if len(out) == 0 {
		return defaultSafePath()
	}
	return strings.Join(out, string(os.PathListSeparator))
}

func defaultSafePath() string {
	return "/usr/bin:/bin:/usr/sbin:/sbin"
}
