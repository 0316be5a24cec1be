package http1

// ParseMethod converts an HTTP method token to its flag bit. Returns
// MethodUnknown for unrecognized methods. Length-first dispatch keeps the
// comparisons byte-level and allocation-free.
func ParseMethod(method []byte) MethodFlags {
	switch len(method) {
	case 3: // GET, PUT
		if method[0] == 'G' && method[1] == 'E' && method[2] == 'T' {
			return MethodGet
		}
		if method[0] == 'P' && method[1] == 'U' && method[2] == 'T' {
			return MethodPut
		}

	case 4: // POST, HEAD
		if method[0] == 'P' && method[1] == 'O' && method[2] == 'S' && method[3] == 'T' {
			return MethodPost
		}
		if method[0] == 'H' && method[1] == 'E' && method[2] == 'A' && method[3] == 'D' {
			return MethodHead
		}

	case 5: // TRACE
		if method[0] == 'T' && method[1] == 'R' && method[2] == 'A' && method[3] == 'C' && method[4] == 'E' {
			return MethodTrace
		}

	case 6: // DELETE
		if method[0] == 'D' && method[1] == 'E' && method[2] == 'L' &&
			method[3] == 'E' && method[4] == 'T' && method[5] == 'E' {
			return MethodDelete
		}

	case 7: // OPTIONS, CONNECT
		if method[0] == 'O' && method[1] == 'P' && method[2] == 'T' &&
			method[3] == 'I' && method[4] == 'O' && method[5] == 'N' && method[6] == 'S' {
			return MethodOptions
		}
		if method[0] == 'C' && method[1] == 'O' && method[2] == 'N' &&
			method[3] == 'N' && method[4] == 'E' && method[5] == 'C' && method[6] == 'T' {
			return MethodConnect
		}
	}

	return MethodUnknown
}

// MethodString returns the canonical token for a single method flag.
func MethodString(m MethodFlags) string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodPost:
		return "POST"
	case MethodPut:
		return "PUT"
	case MethodDelete:
		return "DELETE"
	case MethodHead:
		return "HEAD"
	case MethodOptions:
		return "OPTIONS"
	case MethodTrace:
		return "TRACE"
	case MethodConnect:
		return "CONNECT"
	default:
		return ""
	}
}

// suppressesBody reports whether responses to this method carry headers but
// no body.
func suppressesBody(m MethodFlags) bool {
	return m == MethodHead || m == MethodOptions || m == MethodTrace
}
