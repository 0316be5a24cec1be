package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"

	"github.com/yourusername/surge/pkg/surge/dispatch"
	"github.com/yourusername/surge/pkg/surge/http1"
	"github.com/yourusername/surge/pkg/surge/router"
	"github.com/yourusername/surge/pkg/surge/socket"
)

// Endpoint is one bound listener. It owns its listen socket and host list;
// accepted sockets are handed to per-connection dispatchers by posting a
// single accept event, never by shared mutation.
//
// Invariant: an endpoint with an open listen socket has at least one host.
type Endpoint struct {
	// IP may be empty, meaning all interfaces.
	IP   string
	Port int

	// NamedVirtualHosts makes the Host header select among this endpoint's
	// hosts. Without it the first host always wins.
	NamedVirtualHosts bool

	// FreshDispatcherPerConn gives every accepted connection its own
	// dispatcher instead of the endpoint default.
	FreshDispatcherPerConn bool

	// TLSConfig, when set, wraps accepted sockets. The core treats the
	// wrapper as opaque and only records the secure bit.
	TLSConfig *tls.Config

	// Limits bounds every connection accepted here. Defaulted on Open from
	// the first host's default route, then the service.
	Limits *http1.Limits

	// MaxConnections caps concurrently accepted sockets; 0 means unlimited.
	MaxConnections int

	// SocketConfig tunes the listener and accepted sockets.
	SocketConfig *socket.Config

	svc *Service
	log logrus.FieldLogger

	mu    sync.Mutex
	hosts []*router.Host

	listener net.Listener

	// dispatcher is the endpoint default; waitDispatcher, when installed,
	// takes precedence for new connections.
	dispatcher     *dispatch.Dispatcher
	waitDispatcher *dispatch.Dispatcher

	active  atomic.Int64
	serial  atomic.Int64
	closing atomic.Bool
	wg      sync.WaitGroup
}

// NewEndpoint builds an endpoint bound to (ip, port). If ip has the form
// "host:port" and port is -1, the colon is split first.
func NewEndpoint(svc *Service, ip string, port int) (*Endpoint, error) {
	if port == -1 {
		if i := strings.LastIndexByte(ip, ':'); i >= 0 {
			p, err := strconv.Atoi(ip[i+1:])
			if err != nil {
				return nil, fmt.Errorf("server: bad endpoint address %q: %w", ip, err)
			}
			ip, port = ip[:i], p
		}
	}
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("server: bad endpoint port %d", port)
	}
	e := &Endpoint{
		IP:   ip,
		Port: port,
		svc:  svc,
		log:  svc.log.WithField("component", "endpoint").WithField("bind", fmt.Sprintf("%s:%d", ip, port)),
	}
	svc.AddEndpoint(e)
	return e, nil
}

// AddHost appends a host to the endpoint's host list.
func (e *Endpoint) AddHost(h *router.Host) {
	e.mu.Lock()
	e.hosts = append(e.hosts, h)
	e.mu.Unlock()
}

// Hosts returns a snapshot of the host list.
func (e *Endpoint) Hosts() []*router.Host {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*router.Host(nil), e.hosts...)
}

// LookupHost returns the first host whose name matches the Host header, in
// endpoint order. Without named virtual hosting the first host always wins.
// A miss under named virtual hosting returns nil; the caller renders 404
// against the first host.
func (e *Endpoint) LookupHost(name string) *router.Host {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.hosts) == 0 {
		return nil
	}
	if !e.NamedVirtualHosts || name == "" {
		return e.hosts[0]
	}
	for _, h := range e.hosts {
		if h.MatchName(name) {
			return h
		}
	}
	return nil
}

// firstHost returns the endpoint's first host, the 404 fallback under named
// virtual hosting.
func (e *Endpoint) firstHost() *router.Host {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.hosts) == 0 {
		return nil
	}
	return e.hosts[0]
}

// Open binds the listen socket and starts the accept loop on a goroutine of
// its own; the service dispatcher does not run it. The endpoint must have at
// least one host.
func (e *Endpoint) Open(ctx context.Context) error {
	e.mu.Lock()
	hostCount := len(e.hosts)
	e.mu.Unlock()
	if hostCount == 0 {
		return fmt.Errorf("server: endpoint %s:%d has no host", e.IP, e.Port)
	}

	e.resolveLimits()

	lc := socket.ListenConfig(e.SocketConfig)
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(e.IP, strconv.Itoa(e.Port)))
	if err != nil {
		return fmt.Errorf("server: listen %s:%d: %w", e.IP, e.Port, err)
	}
	if e.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, e.MaxConnections)
	}
	if e.TLSConfig != nil {
		ln = tls.NewListener(ln, e.TLSConfig)
	}
	e.listener = ln
	if e.dispatcher == nil {
		e.dispatcher = dispatch.New(fmt.Sprintf("endpoint-%d", e.Port), e.Limits.Period, e.svc.log)
	}

	e.wg.Add(1)
	go e.acceptLoop()
	e.log.Info("endpoint open")
	return nil
}

// Addr returns the bound listener address, nil before Open.
func (e *Endpoint) Addr() net.Addr {
	if e.listener == nil {
		return nil
	}
	return e.listener.Addr()
}

// resolveLimits defaults the endpoint limits from the first host's default
// route, then the service.
func (e *Endpoint) resolveLimits() {
	if e.Limits != nil {
		return
	}
	if h := e.firstHost(); h != nil {
		if dr := h.DefaultRoute(); dr != nil && dr.Limits != nil {
			e.Limits = dr.Limits
			return
		}
	}
	e.Limits = e.svc.Limits
}

// acceptLoop accepts sockets until the listener closes, posting one
// non-queued accept event per connection onto the chosen dispatcher. Before
// queueing, the dispatcher's sleep budget is aligned to the housekeeping
// period so the periodic timer fires without an extra wakeup.
func (e *Endpoint) acceptLoop() {
	defer e.wg.Done()
	for {
		sock, err := e.listener.Accept()
		if err != nil {
			if e.closing.Load() {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			e.log.WithError(err).Warn("accept failed")
			return
		}

		disp := e.chooseDispatcher()
		disp.SetSleepBudget(e.Limits.Period)
		disp.Post("httpAcceptConn", func() {
			e.setupConn(sock, disp)
		})
	}
}

// chooseDispatcher picks the dispatcher for a new connection: a fresh one
// when so configured, the wait handler's when installed, the endpoint
// default otherwise.
func (e *Endpoint) chooseDispatcher() *dispatch.Dispatcher {
	if e.FreshDispatcherPerConn {
		n := e.serial.Add(1)
		return dispatch.New(fmt.Sprintf("conn-%d-%d", e.Port, n), e.Limits.Period, e.svc.log)
	}
	if e.waitDispatcher != nil {
		return e.waitDispatcher
	}
	return e.dispatcher
}

// SetWaitDispatcher installs a dispatcher that takes precedence for new
// connections, used by the wait glue. Passing nil removes it.
func (e *Endpoint) SetWaitDispatcher(d *dispatch.Dispatcher) {
	e.waitDispatcher = d
}

// setupConn wires an accepted socket into a connection state machine. Runs
// on the connection's dispatcher.
func (e *Endpoint) setupConn(sock net.Conn, disp *dispatch.Dispatcher) {
	if err := socket.Apply(sock, e.SocketConfig); err != nil {
		e.log.WithError(err).Warn("socket tuning failed")
	}

	pipe := newConnPipeline(e, sock)
	c := http1.NewConn(e.Limits, pipe)
	c.Sock = sock
	_, c.Secure = sock.(*tls.Conn)

	c.OnState = func(conn *http1.Conn, s http1.State) {
		// Failed requests still answer with the latched error status; the
		// contexts are intact until completion processing runs.
		if s == http1.StateComplete && conn.Err != nil {
			_ = WriteResponse(sock, conn, []byte(conn.Err.Message))
		}
	}

	e.active.Add(1)
	c.Validator = func(conn *http1.Conn) *http1.StatusError {
		return e.validateLimits(conn)
	}
	c.OnWritable = func(conn *http1.Conn) {
		disp.TryPost("httpWritable", conn.Writable)
	}
	c.OnClose = func(conn *http1.Conn) {
		e.active.Add(-1)
		e.svc.unregisterConn(conn)
		sock.Close()
		if e.FreshDispatcherPerConn {
			// The per-connection dispatcher dies with its connection. Stop
			// waits for the loop, so it cannot run on the loop itself.
			go disp.Stop()
		}
	}

	e.svc.registerConn(c, &connEntry{endpoint: e, sock: sock, disp: disp})
	e.log.WithField("remote", sock.RemoteAddr().String()).Debug("connection accepted")

	// The read pump is the only goroutine touching the socket read side; it
	// hands bytes to the dispatcher, which owns all connection state.
	e.wg.Add(1)
	go e.readPump(c, sock, disp)
}

// validateLimits is consulted before each request parse.
func (e *Endpoint) validateLimits(c *http1.Conn) *http1.StatusError {
	if e.MaxConnections > 0 && int(e.active.Load()) > e.MaxConnections {
		return &http1.StatusError{
			Kind:    http1.KindLimit,
			Status:  http1.StatusServiceUnavailable,
			Message: "server too busy",
		}
	}
	return nil
}

// readPump moves raw socket bytes onto the connection's dispatcher. One
// readable event appends the bytes and advances the state machine; the pump
// blocks rather than outrun a stalled dispatcher.
func (e *Endpoint) readPump(c *http1.Conn, sock net.Conn, disp *dispatch.Dispatcher) {
	defer e.wg.Done()
	buf := make([]byte, 8192)
	for {
		n, err := sock.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			disp.Post("httpReadable", func() {
				c.FeedBytes(data)
			})
		}
		if err != nil {
			disp.Post("httpIoError", func() {
				if c.Closed() {
					return
				}
				if err == io.EOF && c.State() == http1.StateBegin && c.Input.Len() == 0 {
					// Clean close between requests.
					c.Close()
					return
				}
				c.SetIOError(err)
			})
			return
		}
	}
}

// Close shuts the listener, tears down this endpoint's connections, and
// stops the default dispatcher.
func (e *Endpoint) Close() error {
	if !e.closing.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if e.listener != nil {
		err = e.listener.Close()
	}
	e.svc.closeEndpointConns(e)
	e.wg.Wait()
	if e.dispatcher != nil {
		e.dispatcher.Stop()
	}
	e.log.Info("endpoint closed")
	return err
}
