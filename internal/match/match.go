// Package match implements the case-insensitive, shell-style wildcard
// matching used by every ignore/condition/warning lookup.
package match

import (
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// cache holds compiled patterns keyed by their lowercased source so that
// repeated evaluation of the same policy never recompiles.
var cache sync.Map

type compiled struct {
	raw  string
	glob glob.Glob
}

func (c compiled) match(candidate string) bool {
	if c.raw == candidate {
		return true
	}
	if c.glob == nil {
		return false
	}
	return c.glob.Match(candidate)
}

func compile(pattern string) compiled {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if v, ok := cache.Load(pattern); ok {
		return v.(compiled)
	}
	c := compiled{raw: pattern}
	if hasMeta(pattern) {
		// No separators: '*' spans '/', ':' and '.' so that
		// "maven://org.*" matches qualified dependency names.
		if g, err := glob.Compile(quoteBraces(pattern)); err == nil {
			c.glob = g
		}
	}
	cache.Store(pattern, c)
	return c
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, `*?[\`)
}

// quoteBraces escapes '{' and '}' outside character classes. Only '*', '?'
// and '[...]' are wildcards; "{a,b}" is matched literally.
func quoteBraces(pattern string) string {
	if !strings.ContainsAny(pattern, "{}") {
		return pattern
	}
	var b strings.Builder
	inClass := false
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		switch {
		case ch == '\\' && i+1 < len(pattern):
			b.WriteByte(ch)
			i++
			b.WriteByte(pattern[i])
			continue
		case ch == '[' && !inClass:
			inClass = true
		case ch == ']' && inClass:
			inClass = false
		case (ch == '{' || ch == '}') && !inClass:
			b.WriteByte('\\')
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// Matches reports whether candidate equals, or is matched by, any of
// patterns. Comparison is case-insensitive; an empty pattern list never
// matches.
func Matches(candidate string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	candidate = strings.ToLower(candidate)
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if compile(p).match(candidate) {
			return true
		}
	}
	return false
}

// Set is an immutable, precompiled list of patterns.
type Set struct {
	patterns []string
	compiled []compiled
}

// NewSet compiles patterns once. Blank entries are dropped.
func NewSet(patterns []string) *Set {
	s := &Set{
		patterns: make([]string, 0, len(patterns)),
		compiled: make([]compiled, 0, len(patterns)),
	}
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		c := compile(p)
		s.patterns = append(s.patterns, c.raw)
		s.compiled = append(s.compiled, c)
	}
	return s
}

// Match reports whether candidate matches any pattern in the set.
func (s *Set) Match(candidate string) bool {
	if s == nil || len(s.compiled) == 0 {
		return false
	}
	candidate = strings.ToLower(candidate)
	for _, c := range s.compiled {
		if c.match(candidate) {
			return true
		}
	}
	return false
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.compiled)
}

// Patterns returns the normalized pattern sources.
func (s *Set) Patterns() []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s.patterns...)
}
