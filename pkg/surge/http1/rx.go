package http1

import (
	"net/url"
	"time"

	"github.com/yourusername/surge/pkg/surge/buffer"
)

// Rx is the receive-side context of one request (server side) or one
// response (client side). It owns the parsed header map, the etag and range
// lists, and the body-framing progress counters. The back-edge to the owning
// Conn is lookup-only and never extends the connection's lifetime.
type Rx struct {
	// Request line.
	Method      string
	MethodFlags MethodFlags
	URI         string
	Protocol    string

	// Parsed URI forms. PathInfo is the decoded, normalized path; handlers
	// may later rewrite the split between ScriptName and PathInfo.
	Parsed     *url.URL
	PathInfo   string
	ScriptName string
	Ext        string

	// Body framing. Length is the declared content length:
	// ContentLengthUnset when absent, ContentLengthUnbounded for chunked and
	// HTTP/1.0 body-to-close messages.
	Length           int64
	RemainingContent int64
	ReceivedContent  int64
	ChunkState       ChunkState
	ChunkRemaining   int64

	// Flags is a bitmask of FlagChunked and FlagIfModified.
	Flags uint32

	// Headers holds every parsed field, lowercased keys, arrival order.
	Headers HeaderMap

	// Conditional request state.
	ETags      []string
	IfMatch    bool
	IfModified bool
	Since      time.Time

	// Ranges parsed from a Range header, in request order.
	Ranges []Range

	// Authentication. AuthType is the lowercased scheme; AuthDetails is the
	// raw directive text after the scheme token.
	AuthType    string
	AuthDetails string
	Auth        AuthDirectives
	Username    string
	Password    string

	// Client-side response status.
	Status        int
	StatusMessage string

	// Frequently consulted fields, extracted at parse time.
	HostHeader      string
	UserAgent       string
	Referer         string
	Cookie          string
	Pragma          string
	Redirect        string
	Accept          string
	AcceptCharset   string
	AcceptEncoding  string
	AcceptLanguage  string
	ContentType     string
	ContentEncoding string

	// HeaderPacket is the framed header block this context was parsed from.
	HeaderPacket *buffer.Packet

	// EOF is set once the end-of-stream marker has been queued.
	EOF bool
}

// NewRx returns an empty receive context.
func NewRx() *Rx {
	return &Rx{Length: ContentLengthUnset}
}

// Chunked reports whether the body uses chunked transfer encoding.
func (rx *Rx) Chunked() bool {
	return rx.Flags&FlagChunked != 0
}

// SetURI parses the raw request URI, records the parsed form, URL-decodes
// and normalizes the path into PathInfo, resets ScriptName, and captures the
// extension for the transmit side.
func (rx *Rx) SetURI(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return protocolError(StatusBadRequest, "bad URI")
	}
	rx.URI = raw
	rx.Parsed = u
	rx.PathInfo = normalizePath(u.Path)
	rx.ScriptName = ""
	rx.Ext = pathExtension(rx.PathInfo)
	return nil
}

// reset clears the context for pooling. The header packet, if any, is
// released.
func (rx *Rx) reset() {
	if rx.HeaderPacket != nil {
		rx.HeaderPacket.Release()
	}
	*rx = Rx{
		Headers: rx.Headers,
		ETags:   rx.ETags[:0],
		Ranges:  rx.Ranges[:0],
	}
	rx.Headers.Reset()
	rx.Length = ContentLengthUnset
}
