package pathutil

import (
	"regexp"
	"strings"
)

// PathPattern represents a regex pattern and its corresponding normalized template.
type PathPattern struct {
	Pattern  *regexp.Regexp
	Template string
}

// pathPatterns defines the list of patterns for dynamic routes.
// Patterns are evaluated in order from most specific to least specific.
// Pre-compiled at initialization for optimal performance (<1μs per operation).
var pathPatterns = []*PathPattern{
	// Library entry routes with IDs
	{Pattern: regexp.MustCompile(`^/entries/\d+/progress$`), Template: "/entries/:id/progress"},
	{Pattern: regexp.MustCompile(`^/entries/\d+$`), Template: "/entries/:id"},

	// User routes with IDs
	{Pattern: regexp.MustCompile(`^/users/\d+/profile$`), Template: "/users/:id/profile"},
	{Pattern: regexp.MustCompile(`^/users/\d+$`), Template: "/users/:id"},
}

// NormalizePath normalizes dynamic URL paths to prevent metrics label cardinality explosion.
// It converts paths with IDs (e.g., /entries/123/progress) to template format
// (e.g., /entries/:id/progress). Static paths remain unchanged.
//
// Examples:
//
//	NormalizePath("/entries/123/progress")  // "/entries/:id/progress"
//	NormalizePath("/entries/456")           // "/entries/:id"
//	NormalizePath("/healthz")               // "/healthz" (unchanged)
//	NormalizePath("/metrics")               // "/metrics" (unchanged)
//
// Query parameters and trailing slashes are handled:
//
//	NormalizePath("/entries/123?debug=1")   // "/entries/:id"
//	NormalizePath("/entries/123/")          // "/entries/:id"
func NormalizePath(path string) string {
	// Strip query parameters if present
	if idx := strings.IndexByte(path, '?'); idx != -1 {
		path = path[:idx]
	}

	// Strip trailing slash if present (except for root path)
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}

	for _, p := range pathPatterns {
		if p.Pattern.MatchString(path) {
			return p.Template
		}
	}

	// No match found, return original path. Static paths like /healthz and
	// /metrics pass through unchanged.
	return path
}
