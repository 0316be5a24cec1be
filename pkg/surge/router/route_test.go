package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/surge/pkg/surge/http1"
)

func mustRoute(t *testing.T, name, pattern string) *Route {
	t.Helper()
	r, err := NewRoute(name, pattern, http1.MethodAll, nil)
	require.NoError(t, err)
	return r
}

// checkGroupInvariant asserts that every route's NextGroup points to the
// first index whose StartSegment differs, or past the list end, and that
// the terminal empty-pattern route, if any, is last.
func checkGroupInvariant(t *testing.T, h *Host) {
	t.Helper()
	routes := h.Routes()
	for i, r := range routes {
		if r.Default() {
			assert.Equal(t, len(routes)-1, i, "default route not last")
			continue
		}
		want := len(routes)
		for j := i + 1; j < len(routes); j++ {
			if routes[j].StartSegment != r.StartSegment {
				want = j
				break
			}
		}
		assert.Equal(t, want, r.NextGroup, "route %d (%s) nextGroup", i, r.Name)
	}
}

func TestAddRouteKeepsDefaultLast(t *testing.T) {
	h := NewHost("x")
	h.AddRoute(mustRoute(t, "default", ""))
	h.AddRoute(mustRoute(t, "api", "^/api/"))
	h.AddRoute(mustRoute(t, "static", "^/static/"))

	routes := h.Routes()
	require.Len(t, routes, 3)
	assert.Equal(t, "api", routes[0].Name)
	assert.Equal(t, "static", routes[1].Name)
	assert.True(t, routes[2].Default())
	checkGroupInvariant(t, h)
}

func TestAddRouteGroupLinks(t *testing.T) {
	h := NewHost("x")
	h.AddRoute(mustRoute(t, "a1", "^/alpha/one"))
	h.AddRoute(mustRoute(t, "a2", "^/alpha/two"))
	h.AddRoute(mustRoute(t, "b1", "^/beta/one"))
	h.AddRoute(mustRoute(t, "b2", "^/beta/two"))
	h.AddRoute(mustRoute(t, "default", ""))
	checkGroupInvariant(t, h)

	routes := h.Routes()
	// The alpha group skips straight to the beta group.
	assert.Equal(t, 2, routes[0].NextGroup)
	assert.Equal(t, 2, routes[1].NextGroup)
	// The beta group skips past itself.
	assert.Equal(t, 4, routes[2].NextGroup)
	assert.Equal(t, 4, routes[3].NextGroup)
}

func TestAddRouteBackWalkAcrossPredecessorGroup(t *testing.T) {
	h := NewHost("x")
	h.AddRoute(mustRoute(t, "default", ""))
	h.AddRoute(mustRoute(t, "a1", "^/alpha/one"))
	h.AddRoute(mustRoute(t, "a2", "^/alpha/two"))
	// New group: the whole alpha run must be rewired to point at it.
	h.AddRoute(mustRoute(t, "b1", "^/beta/one"))
	checkGroupInvariant(t, h)

	routes := h.Routes()
	assert.Equal(t, 2, routes[0].NextGroup, "a1")
	assert.Equal(t, 2, routes[1].NextGroup, "a2")
	assert.Equal(t, 3, routes[2].NextGroup, "b1")
}

func TestMatchRouteGroupSkip(t *testing.T) {
	h := NewHost("x")
	h.AddRoute(mustRoute(t, "a1", "^/alpha/one$"))
	h.AddRoute(mustRoute(t, "a2", "^/alpha/two$"))
	h.AddRoute(mustRoute(t, "b1", "^/beta/one$"))
	h.AddRoute(mustRoute(t, "default", ""))

	r := h.MatchRoute(http1.MethodGet, "/beta/one")
	require.NotNil(t, r)
	assert.Equal(t, "b1", r.Name)

	r = h.MatchRoute(http1.MethodGet, "/alpha/two")
	require.NotNil(t, r)
	assert.Equal(t, "a2", r.Name)

	// No pattern matches: the default route wins.
	r = h.MatchRoute(http1.MethodGet, "/gamma")
	require.NotNil(t, r)
	assert.True(t, r.Default())
}

func TestMatchRouteMethodMask(t *testing.T) {
	h := NewHost("x")
	post, err := NewRoute("post-only", "^/submit$", http1.MethodPost, nil)
	require.NoError(t, err)
	h.AddRoute(post)

	assert.Nil(t, h.MatchRoute(http1.MethodGet, "/submit"))
	assert.NotNil(t, h.MatchRoute(http1.MethodPost, "/submit"))
}

func TestPatternStartSegment(t *testing.T) {
	tests := []struct{ pattern, want string }{
		{"^/cgi-bin/.*", "cgi-bin"},
		{"/static/img", "static"},
		{"^/api$", "api"},
		{"^/.*", ""},
		{"^/v[0-9]+/", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, patternStartSegment(tt.pattern), tt.pattern)
	}
}

func TestCloneCopyOnWrite(t *testing.T) {
	parent := NewHost("parent")
	parent.AddRoute(mustRoute(t, "a", "^/a"))
	parent.AddRoute(mustRoute(t, "default", ""))

	child := parent.Clone("child")
	require.Len(t, child.Routes(), 2)

	// Mutating the child must not disturb the parent's table.
	child.AddRoute(mustRoute(t, "b", "^/b"))
	assert.Len(t, child.Routes(), 3)
	assert.Len(t, parent.Routes(), 2)
	checkGroupInvariant(t, parent)
	checkGroupInvariant(t, child)
}
