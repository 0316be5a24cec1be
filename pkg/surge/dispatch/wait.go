package dispatch

import (
	"time"

	"github.com/yourusername/surge/pkg/surge/http1"
)

// WaitResult classifies how a Wait ended.
type WaitResult int

const (
	// WaitReached: the connection arrived at the target state.
	WaitReached WaitResult = iota

	// WaitTimeout: the deadline expired; the connection is intact.
	WaitTimeout

	// WaitConnection: the socket closed or errored; the connection is
	// unusable.
	WaitConnection
)

// Wait installs a temporary state observer on the connection and services
// events until the target state is reached, the connection closes or
// errors, or the deadline expires. The observer is removed on every exit
// path. Wait must be called from outside the connection's dispatcher.
func Wait(d *Dispatcher, c *http1.Conn, target http1.State, timeout time.Duration) WaitResult {
	reached := make(chan WaitResult, 1)

	var prevState func(*http1.Conn, http1.State)
	var prevClose func(*http1.Conn)

	install := make(chan struct{})
	d.Post("httpInstallWait", func() {
		prevState = c.OnState
		prevClose = c.OnClose

		report := func(r WaitResult) {
			select {
			case reached <- r:
			default:
			}
		}

		c.OnState = func(conn *http1.Conn, s http1.State) {
			if prevState != nil {
				prevState(conn, s)
			}
			if s >= target {
				report(WaitReached)
			}
		}
		c.OnClose = func(conn *http1.Conn) {
			if prevClose != nil {
				prevClose(conn)
			}
			report(WaitConnection)
		}

		// The state may already be past the target, or the connection may
		// already be down.
		if c.Closed() || c.ConnError != nil {
			report(WaitConnection)
		} else if c.State() >= target {
			report(WaitReached)
		}
		close(install)
	})
	<-install

	var result WaitResult
	select {
	case result = <-reached:
	case <-time.After(timeout):
		result = WaitTimeout
	}

	// Remove the temporary handlers on any exit.
	removed := make(chan struct{})
	d.Post("httpRemoveWait", func() {
		c.OnState = prevState
		c.OnClose = prevClose
		close(removed)
	})
	<-removed
	return result
}
