package sanitize

import (
	"strings"
	"unicode/utf8"
)

const maxInlineLen = 240

// Inline strips control characters from untrusted alert text (rule names,
// file paths, package names) before it is embedded into a single output line.
func Inline(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(text))

	for _, r := range text {
		switch r {
		case '\n', '\r', '\t':
			b.WriteRune(' ')
		default:
			if r < 0x20 || r == 0x7f {
				continue
			}
			if r == utf8.RuneError {
				continue
			}
			b.WriteRune(r)
		}
	}

	out := strings.TrimSpace(b.String())
	if len(out) > maxInlineLen {
		out = out[:maxInlineLen] + "..."
	}
	return out
}

// ActionsData escapes the message part of a workflow command so alert
// content cannot terminate the command or inject a new one.
func ActionsData(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	s = strings.ReplaceAll(s, "\n", "%0A")
	return s
}

// ActionsProperty escapes a workflow command property value (file=, title=).
func ActionsProperty(s string) string {
	s = ActionsData(s)
	s = strings.ReplaceAll(s, ":", "%3A")
	s = strings.ReplaceAll(s, ",", "%2C")
	return s
}
