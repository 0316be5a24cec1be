package server

import "github.com/yourusername/surge/pkg/surge/http1"

// HandlerFunc adapts a plain request function to the pipeline capability
// set. The function's result is framed through WriteResponse on the
// connection's socket; body packets are available on the receive queue.
type HandlerFunc func(c *http1.Conn) (status int, body []byte)

// Start implements http1.Pipeline.
func (f HandlerFunc) Start(c *http1.Conn) error {
	return nil
}

// Process runs the function and completes the exchange.
func (f HandlerFunc) Process(c *http1.Conn) {
	status, body := f(c)
	c.Tx.SetStatus(status, statusMessage(status))
	if err := WriteResponse(c.Sock, c, body); err != nil {
		c.SetIOError(err)
		return
	}
	c.SetWriteComplete()
	c.SetComplete()
}

// Writable implements http1.Pipeline.
func (f HandlerFunc) Writable(c *http1.Conn) {
}

// Finalize implements http1.Pipeline.
func (f HandlerFunc) Finalize(c *http1.Conn) {
}

// statusMessage returns the reason phrase for the statuses the core deals
// in.
func statusMessage(status int) string {
	switch status {
	case http1.StatusOK:
		return "OK"
	case http1.StatusBadRequest:
		return "Bad Request"
	case http1.StatusUnauthorized:
		return "Unauthorized"
	case http1.StatusNotFound:
		return "Not Found"
	case http1.StatusRequestTooLarge:
		return "Request Entity Too Large"
	case http1.StatusURITooLong:
		return "URI Too Long"
	case http1.StatusRangeNotSatisfiable:
		return "Range Not Satisfiable"
	case http1.StatusServiceUnavailable:
		return "Service Unavailable"
	case http1.StatusInternalServerError:
		return "Internal Server Error"
	default:
		return "OK"
	}
}
