package http1

import "time"

// Limits bounds what a connection will accept before the request is refused.
// An Endpoint defaults its limits from the first host's default route; tests
// and embedders tighten individual fields as needed.
type Limits struct {
	// HeaderSize is the maximum byte size of the request header block.
	// Exceeding it yields 413 Request Entity Too Large.
	HeaderSize int

	// HeaderCount is the maximum number of header lines. Exceeding it yields
	// 400 Bad Request.
	HeaderCount int

	// URISize is the maximum request-URI length. Exceeding it yields 414.
	URISize int

	// ReceiveBodySize is the maximum declared or accumulated body size.
	// Exceeding it yields 413.
	ReceiveBodySize int64

	// ChunkSize is the preferred packet size when slicing body bytes onto the
	// receive queue.
	ChunkSize int

	// QueueMax is the maximum number of undrained packets on the receive
	// queue before analyseContent stalls for backpressure.
	QueueMax int

	// KeepAlive is the number of additional requests permitted on a
	// connection. 0 disables reuse; -1 forces close after the current
	// response.
	KeepAlive int

	// Period is the housekeeping tick of the owning dispatcher. Wakeups are
	// aligned to it so the periodic timer fires without an extra wakeup.
	Period time.Duration
}

// DefaultLimits returns the limits used when an endpoint has no route to
// inherit from.
func DefaultLimits() *Limits {
	return &Limits{
		HeaderSize:      8192,
		HeaderCount:     64,
		URISize:         8192,
		ReceiveBodySize: 10 << 20,
		ChunkSize:       8192,
		QueueMax:        16,
		KeepAlive:       100,
		Period:          10 * time.Second,
	}
}
