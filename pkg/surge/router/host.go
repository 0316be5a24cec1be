package router

import (
	"strings"
	"sync"

	"github.com/yourusername/surge/pkg/surge/http1"
)

// Host is a named collection of routes bound to an endpoint. A clone shares
// its parent's route table copy-on-write: the table is copied on the first
// mutation after cloning, never before.
type Host struct {
	// Name is "ip:port" or a wildcard form like "*.example.com".
	Name string

	// Protocol is the default protocol the host speaks: "HTTP/1.0" or
	// "HTTP/1.1".
	Protocol string

	mu           sync.Mutex
	routes       []*Route
	defaultRoute *Route
	parent       *Host
	owned        bool // routes slice is ours to mutate

	streaming []streamPolicy
}

// streamPolicy records whether request bodies of a MIME prefix, optionally
// limited to URIs under a prefix, stream to handlers or buffer whole.
type streamPolicy struct {
	mime    string
	uri     string
	enabled bool
}

// NewHost returns an empty HTTP/1.1 host.
func NewHost(name string) *Host {
	return &Host{
		Name:     name,
		Protocol: http1.Proto11,
		owned:    true,
	}
}

// Clone returns a host that shares this host's route table until either side
// mutates it.
func (h *Host) Clone(name string) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	// The parent copies too on its next mutation, so neither side ever
	// rewrites the table the other still reads.
	h.owned = false
	return &Host{
		Name:         name,
		Protocol:     h.Protocol,
		routes:       h.routes,
		defaultRoute: h.defaultRoute,
		parent:       h,
		streaming:    append([]streamPolicy(nil), h.streaming...),
	}
}

// Routes returns a snapshot of the route table.
func (h *Host) Routes() []*Route {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Route(nil), h.routes...)
}

// DefaultRoute returns the terminal default route, if any.
func (h *Host) DefaultRoute() *Route {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.defaultRoute
}

// AddRoute inserts a route, preserving two invariants: the terminal
// empty-pattern route, if any, stays last, and every route's NextGroup
// points to the first index whose StartSegment differs (or past the end).
// When the inserted route starts a new group, the predecessor group's
// NextGroup links are rewritten by walking backward across the contiguous
// run sharing the predecessor's segment.
func (h *Host) AddRoute(r *Route) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensureOwned()

	if r.Default() {
		h.defaultRoute = r
		h.routes = append(h.routes, r)
		r.NextGroup = len(h.routes)
		return
	}

	idx := len(h.routes)
	if n := len(h.routes); n > 0 && h.routes[n-1].Default() {
		// Insert before the terminal default route.
		idx = n - 1
	}
	h.routes = append(h.routes, nil)
	copy(h.routes[idx+1:], h.routes[idx:])
	h.routes[idx] = r
	r.NextGroup = idx + 1

	// Shift the skip links of everything after the insertion point.
	for i := idx + 1; i < len(h.routes); i++ {
		if h.routes[i].NextGroup >= idx {
			h.routes[i].NextGroup++
		}
	}

	if idx == 0 {
		return
	}
	prev := h.routes[idx-1]
	if prev.StartSegment == r.StartSegment {
		// Same group: the group now ends past the new route; update the
		// whole contiguous run.
		for i := idx - 1; i >= 0 && h.routes[i].StartSegment == r.StartSegment; i-- {
			h.routes[i].NextGroup = idx + 1
		}
		return
	}
	// The predecessor group must skip past the new route; walk backward
	// across every contiguous entry sharing the predecessor's segment.
	for i := idx - 1; i >= 0 && h.routes[i].StartSegment == prev.StartSegment; i-- {
		h.routes[i].NextGroup = idx
	}
}

// ensureOwned copies the shared parent table before the first mutation.
func (h *Host) ensureOwned() {
	if h.owned {
		return
	}
	copied := make([]*Route, len(h.routes))
	for i, r := range h.routes {
		dup := *r
		copied[i] = &dup
	}
	h.routes = copied
	if h.defaultRoute != nil {
		h.defaultRoute = copied[len(copied)-1]
	}
	h.owned = true
}

// MatchRoute finds the first route accepting the request, skipping whole
// groups whose starting segment does not match the request's leading
// segment.
func (h *Host) MatchRoute(method http1.MethodFlags, path string) *Route {
	seg := http1.FirstSegment(path)
	h.mu.Lock()
	routes := h.routes
	h.mu.Unlock()

	for i := 0; i < len(routes); {
		r := routes[i]
		if r.StartSegment != "" && r.StartSegment != seg {
			i = r.NextGroup
			continue
		}
		if r.Match(method, path) {
			return r
		}
		i++
	}
	return nil
}

// MatchName reports whether this host serves the given Host header value.
// Rules: empty header matches (the endpoint picks the first host), "*"
// matches anything, "*.suffix" matches any name containing ".suffix",
// otherwise exact case-insensitive comparison.
func (h *Host) MatchName(name string) bool {
	if name == "" {
		return true
	}
	hn := h.Name
	if hn == "*" {
		return true
	}
	if strings.HasPrefix(hn, "*") {
		return strings.Contains(strings.ToLower(name), strings.ToLower(hn[1:]))
	}
	return strings.EqualFold(hn, name)
}

// SetStreaming records the streaming policy for a MIME prefix under a URI
// prefix. Later entries win over earlier ones.
func (h *Host) SetStreaming(mime, uriPrefix string, enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streaming = append(h.streaming, streamPolicy{mime: strings.ToLower(mime), uri: uriPrefix, enabled: enabled})
}

// Streaming reports whether bodies of the given content type, for the given
// URI, stream to handlers. Any ";" parameters on the received MIME are
// stripped before comparison.
func (h *Host) Streaming(mime, uri string) bool {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.ToLower(strings.TrimSpace(mime))

	h.mu.Lock()
	defer h.mu.Unlock()
	enabled := false
	for _, p := range h.streaming {
		if !strings.HasPrefix(mime, p.mime) {
			continue
		}
		if p.uri != "" && !strings.HasPrefix(uri, p.uri) {
			continue
		}
		enabled = p.enabled
	}
	return enabled
}
