package http1

// HeaderMap stores parsed header fields in arrival order. Keys are lowercased
// once at parse time, so lookups compare lowercased input against lowercased
// storage. Duplicate keys fold into a single entry by value concatenation
// with ", " per RFC 7230 field-order rules.
//
// Design:
//   - Linear scan over a small slice beats a map for typical header counts
//     and preserves arrival order for free
//   - Entries reference copies, never the connection input buffer, so they
//     survive buffer compaction across suspensions
type HeaderMap struct {
	entries []headerEntry
}

type headerEntry struct {
	key   string // lowercased
	value string
}

// Add appends a header, folding duplicates by ", " concatenation. The key
// must already be lowercased; the parser lowercases in place before storing.
func (h *HeaderMap) Add(key, value string) {
	for i := range h.entries {
		if h.entries[i].key == key {
			h.entries[i].value = h.entries[i].value + ", " + value
			return
		}
	}
	h.entries = append(h.entries, headerEntry{key: key, value: value})
}

// Get returns the value for key (case-insensitive) and whether it exists.
func (h *HeaderMap) Get(key string) (string, bool) {
	key = lowercase(key)
	for i := range h.entries {
		if h.entries[i].key == key {
			return h.entries[i].value, true
		}
	}
	return "", false
}

// Value returns the value for key, or "" when absent.
func (h *HeaderMap) Value(key string) string {
	v, _ := h.Get(key)
	return v
}

// Has reports whether key exists (case-insensitive).
func (h *HeaderMap) Has(key string) bool {
	_, ok := h.Get(key)
	return ok
}

// Len returns the number of distinct header keys.
func (h *HeaderMap) Len() int {
	return len(h.entries)
}

// VisitAll calls visitor for each entry in arrival order. Iteration stops if
// the visitor returns false.
func (h *HeaderMap) VisitAll(visitor func(key, value string) bool) {
	for i := range h.entries {
		if !visitor(h.entries[i].key, h.entries[i].value) {
			return
		}
	}
}

// Reset clears the map for reuse, keeping the entry slice capacity.
func (h *HeaderMap) Reset() {
	h.entries = h.entries[:0]
}

// validHeaderKey reports whether a key contains none of the bytes that mark
// a malformed or smuggled field name.
func validHeaderKey(key []byte) bool {
	if len(key) == 0 {
		return false
	}
	for _, c := range key {
		switch c {
		case '%', '<', '>', '/', '\\', ' ', '\t', '\r', '\n':
			return false
		}
	}
	return true
}

// lowercaseInPlace lowercases ASCII letters in b and returns b.
func lowercaseInPlace(b []byte) []byte {
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return b
}

// lowercase returns s lowercased, avoiding the allocation when s already is.
func lowercase(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			b := []byte(s)
			return string(lowercaseInPlace(b))
		}
	}
	return s
}

// trimWhite strips leading and trailing spaces and tabs.
func trimWhite(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t') {
		b = b[1:]
	}
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}
	return b
}
