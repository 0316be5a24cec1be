// Package server binds the HTTP/1.x core to the network: it owns the
// process-level registry of endpoints and live connections, runs the accept
// loops, and dispatches accepted sockets onto per-connection cooperative
// execution contexts.
package server

import (
	"context"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/surge/pkg/surge/dispatch"
	"github.com/yourusername/surge/pkg/surge/http1"
	"github.com/yourusername/surge/pkg/surge/router"
)

// Service is the top-level object embedders instantiate. It owns the
// endpoint list, the live-connection registry, the default host handle, and
// a service dispatcher that Shutdown stops. The accept loops run on
// goroutines of their own, not on the service dispatcher. Tests instantiate
// an isolated Service; there is no process-wide singleton.
type Service struct {
	mu        sync.Mutex
	endpoints []*Endpoint
	conns     map[*http1.Conn]*connEntry

	defaultHost *router.Host

	// Limits seeds endpoints that have no host route to inherit from.
	Limits *http1.Limits

	log        logrus.FieldLogger
	dispatcher *dispatch.Dispatcher
}

// connEntry tracks what the registry needs to tear a connection down.
type connEntry struct {
	endpoint *Endpoint
	sock     net.Conn
	disp     *dispatch.Dispatcher
}

// NewService returns an empty service. A nil logger gets a quiet default.
func NewService(log logrus.FieldLogger) *Service {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	limits := http1.DefaultLimits()
	return &Service{
		conns:      make(map[*http1.Conn]*connEntry),
		Limits:     limits,
		log:        log,
		dispatcher: dispatch.New("service", limits.Period, log),
	}
}

// SetDefaultHost records the host used when an endpoint has none of its own.
func (s *Service) SetDefaultHost(h *router.Host) {
	s.mu.Lock()
	s.defaultHost = h
	s.mu.Unlock()
}

// DefaultHost returns the service-wide default host, or nil.
func (s *Service) DefaultHost() *router.Host {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultHost
}

// AddEndpoint registers an endpoint with the service.
func (s *Service) AddEndpoint(e *Endpoint) {
	s.mu.Lock()
	s.endpoints = append(s.endpoints, e)
	s.mu.Unlock()
}

// LookupEndpoint finds the endpoint bound to (ip, port). An endpoint bound
// to all interfaces (empty ip) matches any ip on its port.
func (s *Service) LookupEndpoint(ip string, port int) *Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.endpoints {
		if e.Port != port {
			continue
		}
		if e.IP == "" || e.IP == ip {
			return e
		}
	}
	return nil
}

// registerConn adds a live connection to the registry.
func (s *Service) registerConn(c *http1.Conn, entry *connEntry) {
	s.mu.Lock()
	s.conns[c] = entry
	s.mu.Unlock()
}

// unregisterConn drops a connection from the registry.
func (s *Service) unregisterConn(c *http1.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// Connections returns the number of live connections.
func (s *Service) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// closeEndpointConns tears down every live connection belonging to the
// endpoint. The registry is locked only while the list is snapshotted; each
// teardown is posted to the connection's own dispatcher.
func (s *Service) closeEndpointConns(e *Endpoint) {
	s.mu.Lock()
	var victims []*connEntry
	var conns []*http1.Conn
	for c, entry := range s.conns {
		if entry.endpoint == e {
			victims = append(victims, entry)
			conns = append(conns, c)
		}
	}
	s.mu.Unlock()

	for i, entry := range victims {
		c := conns[i]
		entry.disp.Post("httpDestroyConn", func() {
			c.Close()
		})
	}
}

// Shutdown closes every endpoint, tears down its connections, and stops the
// service dispatcher. The context bounds how long draining may take.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	endpoints := append([]*Endpoint(nil), s.endpoints...)
	s.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, e := range endpoints {
		g.Go(e.Close)
	}
	err := g.Wait()

	done := make(chan struct{})
	go func() {
		s.dispatcher.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}
