package http1

import (
	"bytes"
	"strconv"
	"time"
)

var (
	crlfBytes      = []byte("\r\n")
	headerEndBytes = []byte("\r\n\r\n")
)

// parseIncoming attempts to parse one message head from the input queue. It
// succeeds only when the buffer already contains the \r\n\r\n terminator;
// until then the connection suspends and the next readable event re-enters.
func (c *Conn) parseIncoming() bool {
	// Stray CRLFs between pipelined requests are legal; skip them.
	for {
		b := c.Input.Bytes()
		if len(b) >= 2 && b[0] == '\r' && b[1] == '\n' {
			c.Input.Skip(2)
			continue
		}
		break
	}

	if c.Input.Len() == 0 {
		return false
	}

	end := c.Input.Index(headerEndBytes)
	if end < 0 {
		if c.Input.Len() > c.Limits.HeaderSize {
			c.abort(limitError(StatusRequestTooLarge, "header block too large"))
			return true
		}
		return false
	}
	if end+4 > c.Limits.HeaderSize {
		c.abort(limitError(StatusRequestTooLarge, "header block too large"))
		return true
	}

	// The endpoint's concurrency limits are validated before parsing.
	if c.Validator != nil {
		if se := c.Validator(c); se != nil {
			c.abort(se)
			return true
		}
	}

	packet := c.Input.Take(end + 4)
	c.Rx.HeaderPacket = packet
	block := packet.Data()

	var se *StatusError
	if c.ClientSide {
		se = c.parseResponseLine(block)
	} else {
		se = c.parseRequestLine(block)
	}
	if se == nil {
		se = c.parseHeaders(block)
	}
	if se != nil {
		c.abort(se)
		return true
	}
	c.applyFraming()

	// Tracing is deferred until after parsing so malformed keys are never
	// logged.
	if c.Tracer != nil {
		c.Tracer(c, block)
	}

	c.setState(StateParsed)
	return true
}

// parseRequestLine parses "METHOD SP URI SP VERSION".
func (c *Conn) parseRequestLine(block []byte) *StatusError {
	lineEnd := bytes.Index(block, crlfBytes)
	line := block[:lineEnd]

	sp := bytes.IndexByte(line, ' ')
	if sp < 0 {
		return protocolError(StatusBadRequest, "bad request line")
	}
	method := line[:sp]
	rx := c.Rx
	rx.MethodFlags = ParseMethod(method)
	if rx.MethodFlags == MethodUnknown {
		return protocolError(StatusBadRequest, "bad method")
	}
	rx.Method = MethodString(rx.MethodFlags)

	line = line[sp+1:]
	sp = bytes.LastIndexByte(line, ' ')
	if sp < 0 {
		return protocolError(StatusBadRequest, "bad request line")
	}
	uri := line[:sp]
	proto := line[sp+1:]

	if len(uri) == 0 {
		return protocolError(StatusBadRequest, "empty URI")
	}
	if len(uri) > c.Limits.URISize {
		return limitError(StatusURITooLong, "URI too long")
	}

	switch {
	case bytes.Equal(proto, []byte(Proto11)):
		rx.Protocol = Proto11
	case bytes.Equal(proto, []byte(Proto10)):
		rx.Protocol = Proto10
		c.HTTP10 = true
	default:
		return protocolError(StatusBadRequest, "unsupported protocol")
	}

	if err := rx.SetURI(string(uri)); err != nil {
		return err.(*StatusError)
	}
	c.Tx.Ext = rx.Ext
	if suppressesBody(rx.MethodFlags) {
		c.Tx.SuppressBody = true
	}
	return nil
}

// parseResponseLine parses "VERSION SP STATUS SP MESSAGE" on the client
// side; framing is symmetric with the request path.
func (c *Conn) parseResponseLine(block []byte) *StatusError {
	lineEnd := bytes.Index(block, crlfBytes)
	line := block[:lineEnd]

	sp := bytes.IndexByte(line, ' ')
	if sp < 0 {
		return protocolError(StatusBadRequest, "bad status line")
	}
	proto := line[:sp]
	rx := c.Rx
	switch {
	case bytes.Equal(proto, []byte(Proto11)):
		rx.Protocol = Proto11
	case bytes.Equal(proto, []byte(Proto10)):
		rx.Protocol = Proto10
		c.HTTP10 = true
	default:
		return protocolError(StatusBadRequest, "unsupported protocol")
	}

	line = line[sp+1:]
	sp = bytes.IndexByte(line, ' ')
	var code, message []byte
	if sp < 0 {
		code = line
	} else {
		code = line[:sp]
		message = line[sp+1:]
	}
	status, err := strconv.Atoi(string(code))
	if err != nil || status < 100 || status > 599 {
		return protocolError(StatusBadRequest, "bad status code")
	}
	rx.Status = status
	rx.StatusMessage = string(message)
	return nil
}

// parseHeaders walks the header lines after the start line, lowercasing keys
// in place, folding duplicates, and applying the per-field side effects.
func (c *Conn) parseHeaders(block []byte) *StatusError {
	lineEnd := bytes.Index(block, crlfBytes)
	// Header region excludes the start line and the final blank line; each
	// remaining header line keeps its own CRLF terminator.
	region := block[lineEnd+2 : len(block)-2]

	count := 0
	for len(region) > 0 {
		var line []byte
		if i := bytes.Index(region, crlfBytes); i >= 0 {
			line = region[:i]
			region = region[i+2:]
		} else {
			line = region
			region = nil
		}
		count++
		if count > c.Limits.HeaderCount {
			return limitError(StatusBadRequest, "too many headers")
		}

		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return protocolError(StatusBadRequest, "bad header line")
		}
		keyBytes := line[:colon]
		if !validHeaderKey(keyBytes) {
			return protocolError(StatusBadRequest, "bad header key")
		}
		key := string(lowercaseInPlace(keyBytes))
		value := string(trimWhite(line[colon+1:]))

		c.Rx.Headers.Add(key, value)
		if se := c.processHeader(key, value); se != nil {
			return se
		}
	}

	// HTTP/1.0 disables reuse unless the peer asked to keep the connection.
	if c.HTTP10 && !c.keepAliveHeader && c.KeepAliveCount > 0 {
		c.KeepAliveCount = 0
	}
	return nil
}

// processHeader applies the side effects of one parsed field.
func (c *Conn) processHeader(key, value string) *StatusError {
	rx := c.Rx
	switch key {
	case "content-length":
		if c.seenContentLength {
			return protocolError(StatusBadRequest, "duplicate Content-Length")
		}
		c.seenContentLength = true
		if rx.Chunked() {
			return protocolError(StatusBadRequest, "Content-Length with chunked encoding")
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			return protocolError(StatusBadRequest, "bad Content-Length")
		}
		if n > c.Limits.ReceiveBodySize {
			return limitError(StatusRequestTooLarge, "request body too large")
		}
		rx.Length = n

	case "transfer-encoding":
		if !hasToken(value, "chunked") {
			break
		}
		if c.seenContentLength {
			return protocolError(StatusBadRequest, "Content-Length with chunked encoding")
		}
		rx.Flags |= FlagChunked
		rx.Length = ContentLengthUnbounded

	case "connection":
		if hasToken(value, "close") {
			c.KeepAliveCount = -1
		}
		if hasToken(value, "keep-alive") {
			c.keepAliveHeader = true
		}

	case "host":
		rx.HostHeader = value

	case "user-agent":
		rx.UserAgent = value

	case "referer":
		rx.Referer = value

	case "cookie":
		rx.Cookie = value

	case "pragma":
		rx.Pragma = value

	case "location":
		rx.Redirect = value

	case "accept":
		rx.Accept = value

	case "accept-charset":
		rx.AcceptCharset = value

	case "accept-encoding":
		rx.AcceptEncoding = value

	case "accept-language":
		rx.AcceptLanguage = value

	case "content-type":
		rx.ContentType = value

	case "content-encoding":
		rx.ContentEncoding = value

	case "authorization":
		if se := parseAuthorization(rx, value); se != nil {
			return se
		}

	case "www-authenticate":
		scheme, dir, se := parseChallenge(value)
		if se != nil {
			return se
		}
		rx.AuthType = scheme
		rx.Auth = dir

	case "if-modified-since", "if-unmodified-since":
		v := truncateAt(value, ';')
		if t, err := parseHTTPDate(v); err == nil {
			rx.Since = t
			rx.IfModified = key == "if-modified-since"
			rx.Flags |= FlagIfModified
		}

	case "if-match", "if-none-match", "if-range":
		v := truncateAt(value, ';')
		rx.ETags = append(rx.ETags, splitETags(v)...)
		rx.IfMatch = key == "if-match"

	case "range":
		ranges, se := parseRangeHeader(value)
		if se != nil {
			return se
		}
		rx.Ranges = ranges
	}
	return nil
}

// applyFraming decides how the body will arrive once the headers are known.
func (c *Conn) applyFraming() {
	rx := c.Rx
	switch {
	case rx.Chunked():
		rx.ChunkState = ChunkStart
		rx.RemainingContent = ContentLengthUnbounded
	case rx.Length >= 0:
		rx.RemainingContent = rx.Length
	case c.ClientSide:
		// No length, not chunked: the body runs to connection close.
		rx.Length = ContentLengthUnbounded
		rx.RemainingContent = ContentLengthUnbounded
	default:
		rx.RemainingContent = 0
	}
}

// hasToken reports whether a comma-separated field value contains token,
// compared case-insensitively.
func hasToken(value, token string) bool {
	for len(value) > 0 {
		var piece string
		if i := indexByteStr(value, ','); i >= 0 {
			piece, value = value[:i], value[i+1:]
		} else {
			piece, value = value, ""
		}
		piece = lowercase(trimWhiteStr(piece))
		if piece == token {
			return true
		}
	}
	return false
}

// truncateAt cuts value at the first occurrence of sep.
func truncateAt(value string, sep byte) string {
	if i := indexByteStr(value, sep); i >= 0 {
		return trimWhiteStr(value[:i])
	}
	return value
}

// splitETags splits a comma-separated etag list, stripping quotes.
func splitETags(value string) []string {
	var tags []string
	for len(value) > 0 {
		var piece string
		if i := indexByteStr(value, ','); i >= 0 {
			piece, value = value[:i], value[i+1:]
		} else {
			piece, value = value, ""
		}
		piece = trimWhiteStr(piece)
		piece = trimQuotes(piece)
		if piece != "" {
			tags = append(tags, piece)
		}
	}
	return tags
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func indexByteStr(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

func trimWhiteStr(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}

// parseHTTPDate accepts the three date formats RFC 7231 permits.
var httpDateFormats = []string{
	time.RFC1123,
	"Monday, 02-Jan-06 15:04:05 MST",
	time.ANSIC,
}

func parseHTTPDate(value string) (time.Time, error) {
	var t time.Time
	var err error
	for _, layout := range httpDateFormats {
		if t, err = time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return t, err
}
