package server

import (
	"net"

	"github.com/yourusername/surge/pkg/surge/http1"
	"github.com/yourusername/surge/pkg/surge/router"
)

// connPipeline adapts the endpoint's matching layer to the state machine's
// handler capability set. Start locates the host by Host header and the
// route by pattern; Process, Writable and Finalize delegate to the winning
// route's handler.
type connPipeline struct {
	endpoint *Endpoint
	sock     net.Conn

	host      *router.Host
	route     *router.Route
	inner     http1.Pipeline
	streaming bool
	notFound  bool
}

func newConnPipeline(e *Endpoint, sock net.Conn) *connPipeline {
	return &connPipeline{endpoint: e, sock: sock}
}

// Start runs once the request headers have parsed: host selection, route
// matching, streaming policy.
func (p *connPipeline) Start(c *http1.Conn) error {
	e := p.endpoint
	rx := c.Rx

	// Match state is per request; the pipeline outlives it across
	// keep-alive.
	p.host = nil
	p.route = nil
	p.inner = nil
	p.streaming = false
	p.notFound = false

	p.host = e.LookupHost(rx.HostHeader)
	if p.host == nil {
		// No name matched under named virtual hosting: the request 404s,
		// rendered against the first host.
		p.host = e.firstHost()
		p.notFound = true
	}
	if p.host == nil {
		return &http1.StatusError{Kind: http1.KindProtocol, Status: http1.StatusInternalServerError, Message: "endpoint has no host"}
	}

	if !p.notFound {
		p.route = p.host.MatchRoute(rx.MethodFlags, rx.PathInfo)
		if p.route == nil {
			p.notFound = true
		}
	}
	if p.notFound {
		c.Tx.SetStatus(http1.StatusNotFound, "Not Found")
		return nil
	}

	p.streaming = p.host.Streaming(rx.ContentType, rx.PathInfo)
	p.inner = p.route.Handler
	if p.inner != nil {
		return p.inner.Start(c)
	}
	return nil
}

// Process drives the handler; without one, the exchange is answered with
// whatever status is latched on the transmit context.
func (p *connPipeline) Process(c *http1.Conn) {
	if p.inner != nil {
		p.inner.Process(c)
		return
	}
	c.Tx.SetStatus(http1.StatusOK, "OK")
	if err := WriteResponse(p.sock, c, nil); err != nil {
		c.SetIOError(err)
		return
	}
	c.SetWriteComplete()
	c.SetComplete()
}

// Writable forwards output-progress notifications.
func (p *connPipeline) Writable(c *http1.Conn) {
	if p.inner != nil {
		p.inner.Writable(c)
	}
}

// Finalize forwards end-of-exchange for symmetric client use.
func (p *connPipeline) Finalize(c *http1.Conn) {
	if p.inner != nil {
		p.inner.Finalize(c)
	}
}

// Streaming reports the streaming-policy decision made at Start.
func (p *connPipeline) Streaming() bool {
	return p.streaming
}

// Route returns the matched route, nil for 404s.
func (p *connPipeline) Route() *router.Route {
	return p.route
}
