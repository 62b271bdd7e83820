// Package filter selects a subset of expanded jobs by pattern.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bgricker/matrixdrive/internal/matrix"
)

// Pattern represents a compiled filter condition supporting substring and regex matching.
type Pattern struct {
	raw   string
	regex *regexp.Regexp
	lower string
}

// Compile transforms raw pattern strings into Pattern values. Patterns of
// the form /expr/ compile as regular expressions; anything else matches as a
// case-insensitive substring.
func Compile(patterns []string) ([]Pattern, error) {
	result := make([]Pattern, 0, len(patterns))
	for _, raw := range patterns {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.HasPrefix(raw, "/") && strings.HasSuffix(raw, "/") && len(raw) >= 2 {
			expr := raw[1 : len(raw)-1]
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("compile regexp %q: %w", raw, err)
			}
			result = append(result, Pattern{raw: raw, regex: re})
			continue
		}
		result = append(result, Pattern{raw: raw, lower: strings.ToLower(raw)})
	}
	return result, nil
}

// Match reports whether the pattern matches the supplied string.
func (p Pattern) Match(s string) bool {
	if s == "" {
		return false
	}
	if p.regex != nil {
		return p.regex.MatchString(s)
	}
	return strings.Contains(strings.ToLower(s), p.lower)
}

// JobSpecs returns the specs matching any of the patterns. With no patterns
// every spec is retained. A spec matches on its identity, family name, or
// any pinned axis value. Order is preserved.
func JobSpecs(specs []matrix.JobSpec, patterns []Pattern) []matrix.JobSpec {
	if len(patterns) == 0 {
		return specs
	}
	result := make([]matrix.JobSpec, 0, len(specs))
	for _, spec := range specs {
		if matchesSpec(spec, patterns) {
			result = append(result, spec)
		}
	}
	return result
}

func matchesSpec(spec matrix.JobSpec, patterns []Pattern) bool {
	for _, pattern := range patterns {
		if pattern.Match(spec.ID()) || pattern.Match(spec.Family) {
			return true
		}
		for _, av := range spec.Axes {
			if pattern.Match(av.Value) {
				return true
			}
		}
	}
	return false
}
