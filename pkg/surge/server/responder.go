package server

import (
	"fmt"
	"io"
	"strconv"

	"github.com/yourusername/surge/pkg/surge/http1"
)

// WriteResponse emits a minimal framed response for the current exchange:
// status line, staged headers, Content-Length, and the body unless the
// request method suppresses it. The full outbound pipeline lives outside
// this core; this responder exists so built-in error and default responses
// still reach the wire.
func WriteResponse(w io.Writer, c *http1.Conn, body []byte) error {
	tx := c.Tx
	status := tx.Status
	if status == 0 {
		status = http1.StatusOK
	}
	message := tx.StatusMessage
	if message == "" {
		message = "OK"
	}

	proto := http1.Proto11
	if c.HTTP10 {
		proto = http1.Proto10
	}

	if _, err := fmt.Fprintf(w, "%s %d %s\r\n", proto, status, message); err != nil {
		return err
	}
	var werr error
	tx.Headers.VisitAll(func(key, value string) bool {
		_, werr = fmt.Fprintf(w, "%s: %s\r\n", key, value)
		return werr == nil
	})
	if werr != nil {
		return werr
	}
	if _, err := io.WriteString(w, "content-length: "+strconv.Itoa(len(body))+"\r\n"); err != nil {
		return err
	}
	if c.KeepAliveCount <= 0 {
		if _, err := io.WriteString(w, "connection: close\r\n"); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, "\r\n"); err != nil {
		return err
	}
	if len(body) > 0 && !tx.SuppressBody {
		if _, err := w.Write(body); err != nil {
			return err
		}
	}
	return nil
}
