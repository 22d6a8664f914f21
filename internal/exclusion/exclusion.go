// Package exclusion filters task types by shell-style glob patterns (`*`, `?`, `[a-z]`, `{a,b}`).
// Matching is case-sensitive and covers the whole type name. Wildcards stop at '/', and a type
// starting with '.' only matches a pattern that starts with '.'. Dots after a '/' are not special.
package exclusion

import (
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// compiled patterns; invalid patterns cache nil and never match
var cache sync.Map // map[string]glob.Glob

func compile(pattern string) glob.Glob {
	if g, ok := cache.Load(pattern); ok {
		gg, _ := g.(glob.Glob)
		return gg
	}
	g, err := glob.Compile(pattern, separator)
	if err != nil {
		cache.Store(pattern, nil)
		return nil
	}
	cache.Store(pattern, g)
	return g
}

const separator = '/'

// Valid reports whether pattern compiles.
func Valid(pattern string) error {
	_, err := glob.Compile(pattern, separator)
	return err
}

// IsTaskTypeExcluded reports whether taskType matches any pattern.
func IsTaskTypeExcluded(patterns []string, taskType string) bool {
	for _, p := range patterns {
		if p == taskType {
			return true
		}
		if strings.HasPrefix(taskType, ".") && !strings.HasPrefix(p, ".") {
			continue
		}
		if g := compile(p); g != nil && g.Match(taskType) {
			return true
		}
	}
	return false
}

// ExcludedTaskTypes returns every type in types matching any pattern, in input order.
func ExcludedTaskTypes(types []string, patterns []string) []string {
	if len(patterns) == 0 {
		return nil
	}
	var out []string
	for _, t := range types {
		if IsTaskTypeExcluded(patterns, t) {
			out = append(out, t)
		}
	}
	return out
}
