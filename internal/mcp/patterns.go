package mcp

import (
	"regexp"
	"strings"

	"github.com/blakazulu/search-mcp/internal/errors"
)

// Pattern safety limits for search_by_path (ReDoS guard).
const (
	MaxGlobPatternLength  = 200
	MaxGlobWildcards      = 10
	MaxBraceGroups        = 5
	MaxBraceItems         = 20
)

// redosShapes are pattern fragments with catastrophic expansion.
var redosShapes = []*regexp.Regexp{
	regexp.MustCompile(`\*{3,}`),           // ***+
	regexp.MustCompile(`(\*\*/){3,}`),      // **/**/**/...
	regexp.MustCompile(`\([^)]*[+*]\)[+*]`), // (x+)+ style
}

// IsPatternSafe validates a glob pattern against the resource limits.
// Returns nil when safe.
func IsPatternSafe(pattern string) error {
	if pattern == "" {
		return errors.InvalidInput("pattern is empty")
	}
	if len(pattern) > MaxGlobPatternLength {
		return errors.ResourceLimit("glob pattern length", MaxGlobPatternLength)
	}

	wildcards := strings.Count(pattern, "*") + strings.Count(pattern, "?")
	if wildcards > MaxGlobWildcards {
		return errors.ResourceLimit("glob wildcards", MaxGlobWildcards)
	}

	braceGroups := strings.Count(pattern, "{")
	if braceGroups > MaxBraceGroups {
		return errors.ResourceLimit("glob brace groups", MaxBraceGroups)
	}
	if braceGroups > 0 {
		items := 0
		for _, group := range strings.Split(pattern, "{")[1:] {
			end := strings.Index(group, "}")
			if end < 0 {
				return errors.InvalidInput("unbalanced braces in pattern")
			}
			items += strings.Count(group[:end], ",") + 1
		}
		if items > MaxBraceItems {
			return errors.ResourceLimit("glob brace items", MaxBraceItems)
		}
	}

	for _, shape := range redosShapes {
		if shape.MatchString(pattern) {
			return errors.InvalidInput("pattern matches a known pathological shape")
		}
	}
	return nil
}
