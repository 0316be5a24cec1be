package http1

import "strings"

// normalizePath collapses duplicate separators and resolves "." and ".."
// segments. ".." never escapes the root. The result always begins with "/"
// for non-empty input.
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	segs := make([]string, 0, 8)
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
			// duplicate separator or self reference
		case "..":
			if len(segs) > 0 {
				segs = segs[:len(segs)-1]
			}
		default:
			segs = append(segs, seg)
		}
	}
	if len(segs) == 0 {
		return "/"
	}
	return "/" + strings.Join(segs, "/")
}

// pathExtension returns the extension of the final segment without the dot,
// or "" when there is none.
func pathExtension(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		switch p[i] {
		case '.':
			return p[i+1:]
		case '/':
			return ""
		}
	}
	return ""
}

// firstSegment returns the leading URL segment of a normalized path, without
// slashes. Used by the route tables for group skipping.
func firstSegment(p string) string {
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return p
}

// FirstSegment exposes the leading-segment split for the routing layer.
func FirstSegment(p string) string {
	return firstSegment(p)
}
