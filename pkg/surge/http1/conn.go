package http1

import (
	"io"

	"github.com/yourusername/surge/pkg/surge/buffer"
)

// Pipeline is the capability set a handler exposes to the state machine.
// The core invokes Start after the headers parse, Process while the request
// runs, Writable when output progress is possible, and Finalize at the end
// of a client-side exchange. The machine depends on nothing else.
type Pipeline interface {
	// Start is invoked once the request is parsed, before body ingestion.
	// Returning an error aborts the request with that status.
	Start(c *Conn) error

	// Process runs the handler while the request is in the running state.
	// The handler marks progress through SetComplete / SetWriteComplete.
	Process(c *Conn)

	// Writable notifies the handler that output can make progress.
	Writable(c *Conn)

	// Finalize completes a client-side exchange after the response body has
	// been received.
	Finalize(c *Conn)
}

// Conn drives one connection through its request lifecycle. All methods must
// be called from the connection's dispatcher; the machine is re-entrant and
// non-blocking and never loses bytes across suspensions.
//
// Design:
//   - A single Advance loop reads the current state and steps until a step
//     reports it cannot proceed; the next readable/writable event re-enters
//   - Body packets that extend past the request boundary are split and the
//     tail becomes the next pipelined request's input
//   - Completion inspects the input queue so one event can advance multiple
//     pipelined requests without a round trip through the event loop
type Conn struct {
	// Sock is the transport the outbound pipeline writes to. The core never
	// writes it itself and treats TLS wrappers as opaque.
	Sock io.Writer

	// Input is the ordered byte queue of unparsed connection data. It may
	// straddle packet boundaries; the parser only advances on whole logical
	// units.
	Input *buffer.Buf

	// Rx and Tx are the contexts of the current exchange.
	Rx *Rx
	Tx *Tx

	// Limits bounds this connection, normally inherited from the endpoint.
	Limits *Limits

	// KeepAliveCount is the number of further requests permitted. 0 disables
	// reuse; -1 forces close after the current response.
	KeepAliveCount int

	// ClientSide selects response-line parsing and the client completion
	// path.
	ClientSide bool

	// Secure is set when the socket is TLS-wrapped. The core treats the
	// wrapper as opaque.
	Secure bool

	// HTTP10 is latched when the peer speaks HTTP/1.0.
	HTTP10 bool

	// ConnError is the latched connection-fatal error. Once set the machine
	// races toward completion, discarding remaining body bytes.
	ConnError error

	// Err is the current request's failure, if any.
	Err *StatusError

	// AbortPipeline tells the handler pipeline not to flush partial output.
	AbortPipeline bool

	// WriteComplete and Complete are set by the outbound pipeline and
	// observed by the machine.
	WriteComplete bool
	Complete      bool

	// WriteBlocked is set when a write has blocked; cleared by the writable
	// event.
	WriteBlocked bool

	// Validator checks endpoint concurrency limits before each parse.
	Validator func(c *Conn) *StatusError

	// Tracer, when set, receives the raw header block after it has parsed
	// cleanly. Tracing is deferred past validation so malformed keys are
	// never logged.
	Tracer func(c *Conn, header []byte)

	// OnState observes every state transition; installed by the wait glue.
	OnState func(c *Conn, s State)

	// OnWritable schedules a writable notification on the dispatcher.
	OnWritable func(c *Conn)

	// OnClose runs once when the connection tears down.
	OnClose func(c *Conn)

	pipeline  Pipeline
	state     State
	advancing bool
	closed    bool
	requests  int // completed requests, pipelining included

	queue []*buffer.Packet

	// seenContentLength disambiguates duplicate Content-Length across one
	// request.
	seenContentLength bool
	keepAliveHeader   bool
}

// NewConn returns a connection in the begin state.
func NewConn(limits *Limits, pipeline Pipeline) *Conn {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Conn{
		Input:          buffer.New(),
		Rx:             GetRx(),
		Tx:             GetTx(),
		Limits:         limits,
		KeepAliveCount: limits.KeepAlive,
		pipeline:       pipeline,
	}
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	return c.state
}

// Closed reports whether the connection has torn down.
func (c *Conn) Closed() bool {
	return c.closed
}

// Requests returns the number of requests completed on this connection.
func (c *Conn) Requests() int {
	return c.requests
}

// FeedBytes appends raw socket bytes to the input queue and drives the state
// machine. This is the readable-event entry point.
func (c *Conn) FeedBytes(data []byte) {
	if c.closed {
		return
	}
	if len(data) > 0 {
		c.Input.Write(data)
	}
	c.Advance()
}

// Writable is the writable-event entry point: clears the write block and
// re-enters the machine.
func (c *Conn) Writable() {
	if c.closed {
		return
	}
	c.WriteBlocked = false
	if c.pipeline != nil && !c.AbortPipeline {
		c.pipeline.Writable(c)
	}
	c.Advance()
}

// SetIOError latches a connection-fatal I/O failure. Remaining body bytes
// are discarded and the machine races toward completion.
func (c *Conn) SetIOError(err error) {
	if c.closed || c.ConnError != nil {
		return
	}
	c.ConnError = err
	c.AbortPipeline = true
	c.Advance()
}

// SetComplete marks the current exchange finished. Called by the pipeline.
func (c *Conn) SetComplete() {
	c.Complete = true
}

// SetWriteComplete marks the response fully written. Called by the pipeline.
func (c *Conn) SetWriteComplete() {
	c.WriteComplete = true
}

// ReadPacket pops the next packet from the receive queue, or nil when the
// queue is empty. A packet with Last() set is the end-of-stream marker.
func (c *Conn) ReadPacket() *buffer.Packet {
	if len(c.queue) == 0 {
		return nil
	}
	p := c.queue[0]
	c.queue = c.queue[1:]
	return p
}

// QueueLen returns the number of undrained receive-queue packets.
func (c *Conn) QueueLen() int {
	return len(c.queue)
}

// Advance reads the current state and loops until no state can make
// progress. Each state step returns whether the machine can proceed; on
// false the driver returns and the next event re-enters.
func (c *Conn) Advance() {
	if c.advancing || c.closed {
		return
	}
	c.advancing = true
	defer func() { c.advancing = false }()

	proceed := true
	for proceed && !c.closed {
		switch c.state {
		case StateBegin:
			proceed = c.parseIncoming()
		case StateParsed:
			proceed = c.startPipeline()
		case StateContent:
			proceed = c.analyseContent()
		case StateRunning:
			proceed = c.runPipeline()
		case StateComplete:
			proceed = c.processCompletion()
		}
	}
}

// setState transitions the lifecycle state and notifies any observer.
// Transitions are monotone within a request.
func (c *Conn) setState(s State) {
	c.state = s
	if c.OnState != nil {
		c.OnState(c, s)
	}
}

// abort fails the current request. Protocol, limit and I/O errors also
// latch ConnError and the connection closes after the error response is
// flushed. Range and auth errors stay request-level and keep-alive may
// still serve the next request, unless the failed request carries an
// unconsumed body that would desynchronize framing.
func (c *Conn) abort(se *StatusError) {
	if c.Err == nil {
		c.Err = se
		c.Tx.SetStatus(se.Status, se.Message)
	}
	c.AbortPipeline = true
	switch se.Kind {
	case KindProtocol, KindLimit, KindIO:
		if c.ConnError == nil {
			c.ConnError = se
		}
	default:
		if c.bodyPending() && c.ConnError == nil {
			c.ConnError = se
		}
	}
	c.setState(StateRunning)
}

// bodyPending reports whether declared body bytes remain unconsumed.
func (c *Conn) bodyPending() bool {
	rx := c.Rx
	if rx == nil {
		return false
	}
	if rx.Chunked() {
		return rx.ChunkState != ChunkEOF
	}
	if rx.RemainingContent > 0 {
		return true
	}
	return rx.Length > 0 && rx.ReceivedContent < rx.Length
}

// startPipeline runs after a successful parse: unless the pipeline is being
// aborted, the start hook is invoked and, when there will be no body, one
// writable tick is delivered. The transition to the content state is
// unconditional.
func (c *Conn) startPipeline() bool {
	if !c.AbortPipeline && c.pipeline != nil {
		if err := c.pipeline.Start(c); err != nil {
			if se, ok := err.(*StatusError); ok {
				c.abort(se)
			} else {
				c.abort(&StatusError{Kind: KindProtocol, Status: StatusInternalServerError, Message: err.Error()})
			}
			return true
		}
		if !c.hasBody() {
			c.pipeline.Writable(c)
		}
	}
	c.setState(StateContent)
	return true
}

// hasBody reports whether the parsed request declares body content.
func (c *Conn) hasBody() bool {
	return c.Rx.Chunked() || c.Rx.RemainingContent > 0
}

// analyseContent consumes one logical unit of body data: a chunk header, a
// slice of chunk payload, or a slice of identity-framed content. It returns
// false when more bytes are needed or the receive queue is full.
func (c *Conn) analyseContent() bool {
	rx := c.Rx

	if c.ConnError != nil || c.Err != nil {
		// Fatal or aborted: discard what remains and finish the request.
		c.Input.Reset()
		c.setState(StateRunning)
		return true
	}

	if rx.Chunked() {
		switch rx.ChunkState {
		case ChunkStart:
			return c.parseChunkHeader()
		case ChunkData:
			return c.consumeBody(rx.RemainingContent, func() {
				if rx.RemainingContent == 0 {
					rx.ChunkState = ChunkStart
				}
			})
		case ChunkEOF:
			c.endContent()
			return true
		}
	}

	if rx.RemainingContent > 0 {
		return c.consumeBody(rx.RemainingContent, nil)
	}

	c.endContent()
	return true
}

// consumeBody moves up to want buffered bytes onto the receive queue,
// splitting at the request boundary so pipelined follow-on bytes stay in the
// input. Declines when the queue is at its maximum; the machine stalls and
// retries once the handler drains it.
func (c *Conn) consumeBody(want int64, after func()) bool {
	if len(c.queue) >= c.Limits.QueueMax {
		// Give the handler one chance to drain before stalling.
		if c.pipeline != nil && !c.AbortPipeline {
			c.pipeline.Writable(c)
		}
		if len(c.queue) >= c.Limits.QueueMax {
			return false
		}
	}
	avail := int64(c.Input.Len())
	if avail == 0 {
		return false
	}
	n := want
	if avail < n {
		n = avail
	}
	if int64(c.Limits.ChunkSize) > 0 && n > int64(c.Limits.ChunkSize) {
		n = int64(c.Limits.ChunkSize)
	}

	rx := c.Rx
	rx.ReceivedContent += n
	rx.RemainingContent -= n
	if rx.ReceivedContent > c.Limits.ReceiveBodySize {
		c.abort(limitError(StatusRequestTooLarge, "request body too large"))
		return true
	}

	c.enqueue(c.Input.Take(int(n)))
	if after != nil {
		after()
	}
	return true
}

// parseChunkHeader reads one chunk-size line: optional leading CRLF (the
// trailing CRLF of the previous data chunk), hex count, optional extensions,
// CRLF. Size zero terminates the body; its trailing CRLF is consumed
// leniently.
func (c *Conn) parseChunkHeader() bool {
	rx := c.Rx
	buf := c.Input.Bytes()

	i := 0
	if len(buf) >= 2 && buf[0] == '\r' && buf[1] == '\n' {
		i = 2
	} else if len(buf) == 1 && buf[0] == '\r' {
		return false
	}

	j := indexCRLF(buf[i:])
	if j < 0 {
		if len(buf)-i > maxChunkLineSize {
			c.abort(protocolError(StatusBadRequest, "bad chunk specification"))
			return true
		}
		return false
	}

	line := buf[i : i+j]
	if k := indexByte(line, ';'); k >= 0 {
		line = line[:k]
	}
	size, ok := parseHex(line)
	if !ok {
		c.abort(protocolError(StatusBadRequest, "bad chunk specification"))
		return true
	}
	c.Input.Skip(i + j + 2)

	if size == 0 {
		// Trailing CRLF after the last chunk is consumed leniently; its
		// absence is tolerated.
		if rest := c.Input.Bytes(); len(rest) >= 2 && rest[0] == '\r' && rest[1] == '\n' {
			c.Input.Skip(2)
		}
		rx.RemainingContent = 0
		rx.ChunkState = ChunkEOF
		return true
	}

	rx.RemainingContent = size
	rx.ChunkState = ChunkData
	return true
}

// endContent emits the end-of-stream marker and moves to the running state.
func (c *Conn) endContent() {
	rx := c.Rx
	rx.EOF = true
	rx.RemainingContent = 0
	c.enqueue(buffer.EndPacket())
	c.setState(StateRunning)
}

// enqueue appends a packet to the receive queue.
func (c *Conn) enqueue(p *buffer.Packet) {
	c.queue = append(c.queue, p)
}

// runPipeline services the running state. Servers invoke the process hook
// and either finish or schedule a writable notification and yield. Clients
// decode and finalize the received response.
func (c *Conn) runPipeline() bool {
	if c.ClientSide {
		if err := c.inflateBody(); err != nil {
			c.abort(protocolError(StatusBadRequest, err.Error()))
		}
		if c.pipeline != nil && !c.AbortPipeline {
			c.pipeline.Finalize(c)
		}
		c.setState(StateComplete)
		return true
	}

	if c.Err == nil && !c.AbortPipeline && c.pipeline != nil {
		c.pipeline.Process(c)
	}
	if c.pipeline == nil {
		// No handler will ever drive the exchange; finish it.
		c.SetComplete()
	}
	if c.Complete || c.WriteComplete || c.Err != nil || c.ConnError != nil {
		c.setState(StateComplete)
		return true
	}
	c.scheduleWritable()
	return false
}

// scheduleWritable posts a writable notification through the dispatcher.
func (c *Conn) scheduleWritable() {
	if c.OnWritable != nil && !c.WriteBlocked {
		c.OnWritable(c)
	}
}

// processCompletion destroys the request contexts, preserving unread input
// bytes as the next request's input. It returns true exactly when more input
// is already buffered and the connection stays open: the only path by which
// a single event advances more than one request.
func (c *Conn) processCompletion() bool {
	c.requests++
	c.destroyExchange()

	if c.ClientSide {
		c.teardown()
		return false
	}
	if c.ConnError != nil || c.KeepAliveCount <= 0 {
		c.teardown()
		return false
	}
	c.KeepAliveCount--
	// Rewinding for the next pipelined request is bookkeeping, not a
	// request-state transition; observers are not notified.
	c.state = StateBegin
	return c.Input.Len() > 0
}

// destroyExchange resets the per-request state, releasing queued packets the
// handler never drained.
func (c *Conn) destroyExchange() {
	for _, p := range c.queue {
		p.Release()
	}
	c.queue = c.queue[:0]
	c.Rx.reset()
	c.Tx.reset()
	c.Err = nil
	c.AbortPipeline = false
	c.WriteComplete = false
	c.Complete = false
	c.seenContentLength = false
	c.keepAliveHeader = false
}

// teardown closes the connection and releases its buffers.
func (c *Conn) teardown() {
	if c.closed {
		return
	}
	c.closed = true
	if c.OnClose != nil {
		c.OnClose(c)
	}
	for _, p := range c.queue {
		p.Release()
	}
	c.queue = nil
	if c.Rx != nil {
		PutRx(c.Rx)
		c.Rx = nil
	}
	if c.Tx != nil {
		PutTx(c.Tx)
		c.Tx = nil
	}
	c.Input.Release()
}

// Close tears the connection down from outside the machine, e.g. during
// endpoint shutdown.
func (c *Conn) Close() {
	if c.closed {
		return
	}
	if c.ConnError == nil {
		c.ConnError = ErrConnectionClosed
	}
	c.teardown()
}

// Byte helpers shared with the parser.

func indexCRLF(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' {
			return i
		}
	}
	return -1
}

func indexByte(b []byte, ch byte) int {
	for i := range b {
		if b[i] == ch {
			return i
		}
	}
	return -1
}

// parseHex decodes a chunk-size hex count.
func parseHex(b []byte) (int64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	var n int64
	for _, ch := range b {
		var d int64
		switch {
		case ch >= '0' && ch <= '9':
			d = int64(ch - '0')
		case ch >= 'a' && ch <= 'f':
			d = int64(ch-'a') + 10
		case ch >= 'A' && ch <= 'F':
			d = int64(ch-'A') + 10
		default:
			return 0, false
		}
		n = n<<4 | d
		if n < 0 {
			return 0, false
		}
	}
	return n, true
}
