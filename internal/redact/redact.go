package redact

import "regexp"

var (
	bearerPattern  = regexp.MustCompile(`(?i)\b(Bearer|token)\s+[A-Za-z0-9._~+/=-]{8,}`)
	tokenAssign    = regexp.MustCompile(`(?i)\b(api[_-]?key|secret|token|password|passwd|pwd)\b(\s*[:=]\s*)(["']?)([A-Za-z0-9._~+/=-]{8,})(["']?)`)
	githubToken    = regexp.MustCompile(`\b(gh[pousr]_[A-Za-z0-9]{20,}|github_pat_[A-Za-z0-9_]{22,})\b`)
	urlCredentials = regexp.MustCompile(`(?i)\b(https?://)[^/\s@]+@`)
)

// Text masks access tokens before they reach logs, annotations or reports.
// Clone URLs carry the token as userinfo, so userinfo is always stripped.
func Text(in string) string {
	out := in
	out = urlCredentials.ReplaceAllString(out, "${1}[REDACTED]@")
	out = bearerPattern.ReplaceAllString(out, "${1} [REDACTED]")
	out = tokenAssign.ReplaceAllString(out, `${1}${2}${3}[REDACTED]${5}`)
	out = githubToken.ReplaceAllString(out, "[REDACTED_GITHUB_TOKEN]")
	return out
}

// Secret masks every literal occurrence of secret in in, on top of Text.
func Secret(in, secret string) string {
	out := Text(in)
	if len(secret) < 4 {
		return out
	}
	return regexp.MustCompile(regexp.QuoteMeta(secret)).ReplaceAllString(out, "[REDACTED]")
}
