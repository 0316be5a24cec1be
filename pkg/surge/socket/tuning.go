// Package socket applies listener and per-connection socket tuning for the
// endpoint layer. Platform specifics live in tuning_linux.go and
// tuning_other.go.
package socket

import (
	"net"
	"syscall"
)

// Config selects the socket options an endpoint applies. Zero values mean
// system defaults.
type Config struct {
	// NoDelay disables Nagle's algorithm. HTTP/1.x request/response traffic
	// wants it off.
	NoDelay bool

	// RecvBuffer and SendBuffer size the kernel buffers in bytes.
	RecvBuffer int
	SendBuffer int

	// ReusePort allows multiple endpoints to bind the same address, one per
	// accepting process.
	ReusePort bool

	// KeepAlive enables TCP keepalive on accepted sockets.
	KeepAlive bool
}

// DefaultConfig returns the options an endpoint uses unless overridden.
func DefaultConfig() *Config {
	return &Config{
		NoDelay:    true,
		RecvBuffer: 256 * 1024,
		SendBuffer: 256 * 1024,
		KeepAlive:  true,
	}
}

// ListenConfig returns a net.ListenConfig whose Control hook applies the
// bind-time options (address and, when requested, port reuse).
func ListenConfig(cfg *Config) net.ListenConfig {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var ctlErr error
			err := c.Control(func(fd uintptr) {
				ctlErr = applyListenOptions(int(fd), cfg)
			})
			if err != nil {
				return err
			}
			return ctlErr
		},
	}
}

// Apply tunes an accepted connection. Failures on non-critical options are
// ignored; an endpoint should serve traffic even when a knob is missing.
func Apply(conn net.Conn, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	if cfg.NoDelay {
		if err := tcpConn.SetNoDelay(true); err != nil {
			return err
		}
	}
	if cfg.KeepAlive {
		_ = tcpConn.SetKeepAlive(true)
	}
	if cfg.RecvBuffer > 0 {
		_ = tcpConn.SetReadBuffer(cfg.RecvBuffer)
	}
	if cfg.SendBuffer > 0 {
		_ = tcpConn.SetWriteBuffer(cfg.SendBuffer)
	}

	rawConn, err := tcpConn.SyscallConn()
	if err != nil {
		return err
	}
	return rawConn.Control(func(fd uintptr) {
		applyConnOptions(int(fd), cfg)
	})
}
