package http1

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/yourusername/surge/pkg/surge/buffer"
)

// inflateBody decodes a compressed client-side response body before it is
// handed to the receiver. The receive queue is rewritten in place: the
// framed packets collapse into one decoded packet followed by the original
// end-of-stream marker. Identity bodies pass through untouched.
func (c *Conn) inflateBody() error {
	encoding := lowercase(c.Rx.ContentEncoding)
	switch encoding {
	case "", "identity":
		return nil
	case "gzip", "br", "zstd":
	default:
		// Unknown codings are the receiver's problem, not a framing error.
		return nil
	}

	var body bytes.Buffer
	var end *buffer.Packet
	for _, p := range c.queue {
		if p.Last() {
			end = p
			continue
		}
		body.Write(p.Data())
		p.Release()
	}
	c.queue = c.queue[:0]

	var (
		reader io.Reader
		err    error
	)
	switch encoding {
	case "gzip":
		reader, err = gzip.NewReader(&body)
	case "br":
		reader = brotli.NewReader(&body)
	case "zstd":
		var zr *zstd.Decoder
		zr, err = zstd.NewReader(&body)
		if err == nil {
			defer zr.Close()
			reader = zr
		}
	}
	if err != nil {
		if end != nil {
			end.Release()
		}
		return err
	}

	decoded, err := io.ReadAll(io.LimitReader(reader, c.Limits.ReceiveBodySize+1))
	if err != nil {
		if end != nil {
			end.Release()
		}
		return err
	}
	if int64(len(decoded)) > c.Limits.ReceiveBodySize {
		if end != nil {
			end.Release()
		}
		return limitError(StatusRequestTooLarge, "decoded body too large")
	}

	if len(decoded) > 0 {
		c.enqueue(buffer.NewPacket(decoded))
	}
	if end != nil {
		c.enqueue(end)
	}
	return nil
}
