// Package globmatch implements the watch-pattern glob syntax: `*` matches
// within a single path segment, `**` matches across segments, everything
// else matches literally after normalization to forward slashes.
package globmatch

import (
	"regexp"
	"strings"

	"tia/internal/paths"
)

// Pattern is a compiled glob pattern.
type Pattern struct {
	raw string
	re  *regexp.Regexp
}

// Compile translates a glob pattern into its matcher.
func Compile(pattern string) *Pattern {
	normalized := paths.NormalizePath(pattern)
	var b strings.Builder
	b.WriteString("^")

	i := 0
	for i < len(normalized) {
		c := normalized[i]
		switch c {
		case '*':
			if i+1 < len(normalized) && normalized[i+1] == '*' {
				// `**/` or trailing `**` spans path separators
				if i+2 < len(normalized) && normalized[i+2] == '/' {
					b.WriteString(`(?:[^/]*/)*`)
					i += 3
				} else {
					b.WriteString(`.*`)
					i += 2
				}
			} else {
				b.WriteString(`[^/]*`)
				i++
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}
	b.WriteString("$")

	return &Pattern{raw: pattern, re: regexp.MustCompile(b.String())}
}

// Match reports whether the path matches the pattern.
func (p *Pattern) Match(path string) bool {
	return p.re.MatchString(paths.NormalizePath(path))
}

// String returns the original pattern text.
func (p *Pattern) String() string {
	return p.raw
}

// Set is a compiled list of patterns.
type Set struct {
	patterns []*Pattern
}

// CompileSet compiles every pattern in the list.
func CompileSet(patterns []string) *Set {
	s := &Set{patterns: make([]*Pattern, 0, len(patterns))}
	for _, p := range patterns {
		s.patterns = append(s.patterns, Compile(p))
	}
	return s
}

// MatchAny reports whether any pattern in the set matches the path.
func (s *Set) MatchAny(path string) bool {
	for _, p := range s.patterns {
		if p.Match(path) {
			return true
		}
	}
	return false
}

// Len returns the number of patterns in the set.
func (s *Set) Len() int {
	return len(s.patterns)
}
