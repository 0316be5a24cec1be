// Package router implements the endpoint-facing matching layer: per-host
// ordered route tables with group-skip optimization, host name matching with
// wildcard suffixes, and per-content-type streaming policy.
package router

import (
	"regexp"
	"strings"

	"github.com/yourusername/surge/pkg/surge/http1"
)

// Route is one entry in a host's ordered route table. Routes with the same
// starting URL segment form a contiguous group; NextGroup is the index of
// the first route past the group, letting the matcher skip the whole run in
// O(1) when the leading segment does not match.
type Route struct {
	// Name identifies the route in configuration and logs.
	Name string

	// Pattern is the route's match expression. The empty pattern marks the
	// terminal default route, which always matches.
	Pattern string

	// StartSegment is the leading URL segment the pattern anchors to, used
	// for group skipping. Empty for patterns that do not begin with a
	// literal segment.
	StartSegment string

	// Methods restricts the route to a method subset.
	Methods http1.MethodFlags

	// Handler is the pipeline run for requests this route wins.
	Handler http1.Pipeline

	// Target names the handler-specific destination (a directory, an
	// upstream, a script).
	Target string

	// NextGroup is the index of the first route whose StartSegment differs,
	// or the table length when this group runs to the end.
	NextGroup int

	// Limits, when set on a host's default route, seeds the limits of any
	// endpoint the host is first on.
	Limits *http1.Limits

	compiled *regexp.Regexp
}

// NewRoute builds a route from a pattern. The starting segment is derived
// from the pattern's first literal path segment.
func NewRoute(name, pattern string, methods http1.MethodFlags, handler http1.Pipeline) (*Route, error) {
	r := &Route{
		Name:    name,
		Pattern: pattern,
		Methods: methods,
		Handler: handler,
	}
	if methods == 0 {
		r.Methods = http1.MethodAll
	}
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		r.compiled = re
		r.StartSegment = patternStartSegment(pattern)
	}
	return r, nil
}

// Default reports whether this is the terminal default route.
func (r *Route) Default() bool {
	return r.Pattern == ""
}

// Match reports whether the route accepts the given method and path.
func (r *Route) Match(method http1.MethodFlags, path string) bool {
	if r.Methods&method == 0 {
		return false
	}
	if r.compiled == nil {
		return true
	}
	return r.compiled.MatchString(path)
}

// patternStartSegment extracts the leading literal segment of a pattern,
// stopping at the first metacharacter. "^/cgi-bin/.*" yields "cgi-bin".
func patternStartSegment(pattern string) string {
	p := strings.TrimPrefix(pattern, "^")
	p = strings.TrimPrefix(p, "/")
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c == '/' {
			break
		}
		if c == '$' && i == len(p)-1 {
			// A trailing anchor ends the segment without voiding it.
			break
		}
		if strings.IndexByte(`.*+?()[]{}|\$`, c) >= 0 {
			return ""
		}
		b.WriteByte(c)
	}
	return b.String()
}
